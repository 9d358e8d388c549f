package trending

import (
	"context"
	"math"
	"sort"

	"github.com/recstack/recstack/core"
)

// Query 是一次热点查询。
type Query struct {
	// Window 是时间窗口，空值按 day 处理
	Window core.TimeWindow

	// Category / Tags / ContentType / Language 是可选过滤条件（Tags 为任一命中）
	Category    string
	Tags        []string
	ContentType string
	Language    string

	// Exclude 是要排除的物品 ID（已读、已推荐等）
	Exclude []string

	// Limit 是返回上限，默认 20
	Limit int

	// MinViews / MinBookmarks / MinUniqueUsers 是最低指标门槛，过滤早期噪声
	MinViews       int64
	MinBookmarks   int64
	MinUniqueUsers int64

	// MinScore 是混合总分下限，计分后低于该值的物品被丢弃
	MinScore float64

	// MaxPerCategory 限制单一类别的条数。0 表示按候选类别数均分：
	// ceil(Limit / 类别数)。截断后若结果不足 Limit，溢出物品按得分回填。
	MaxPerCategory int
}

func (q Query) withDefaults() Query {
	if q.Window == "" {
		q.Window = core.WindowDay
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

// Discover 返回窗口内的热点物品，按窗口相关的混合得分降序。
//
// 窗口语义：只参与比较最近一次更新落在窗口内的物品；
// 短窗口上调速度/加速度权重，长窗口上调累计热度与持续性。
// 没有达标物品时返回空切片而非错误。
func (d *Discovery) Discover(ctx context.Context, q Query) ([]*core.TrendingItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q = q.withDefaults()

	now := d.now()
	cutoff := now.Add(-q.Window.Duration())
	blend := blendFor(q.Window)

	excluded := make(map[string]struct{}, len(q.Exclude))
	for _, id := range q.Exclude {
		excluded[id] = struct{}{}
	}

	d.mu.RLock()
	candidates := make([]*core.TrendingItem, 0, len(d.items))
	for _, st := range d.items {
		if _, skip := excluded[st.item.ID]; skip {
			continue
		}
		if !st.item.LastUpdated.After(cutoff) {
			continue
		}
		if st.item.Metrics.Views < q.MinViews ||
			st.item.Metrics.Bookmarks < q.MinBookmarks ||
			st.item.Metrics.UniqueUsers < q.MinUniqueUsers {
			continue
		}
		if q.Category != "" && st.item.Category != q.Category {
			continue
		}
		if q.ContentType != "" && st.item.ContentType != q.ContentType {
			continue
		}
		if q.Language != "" && st.item.Language != q.Language {
			continue
		}
		if len(q.Tags) > 0 && !anyTagMatch(st.item.Tags, q.Tags) {
			continue
		}

		cp := cloneItem(&st.item)
		cp.Score = d.scoreLocked(st, now)
		cp.Score.Overall = blend.overall(cp.Score)
		if cp.Score.Overall < q.MinScore {
			continue
		}
		candidates = append(candidates, cp)
	}
	d.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score.Overall != candidates[j].Score.Overall {
			return candidates[i].Score.Overall > candidates[j].Score.Overall
		}
		return candidates[i].ID < candidates[j].ID
	})

	maxPer := q.MaxPerCategory
	if maxPer <= 0 {
		maxPer = evenCategoryCap(candidates, q.Limit)
	}
	candidates = capPerCategory(candidates, maxPer, q.Limit)
	if len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}
	return candidates, nil
}

// evenCategoryCap 把限额在候选出现的类别之间均分：ceil(limit / 类别数)。
// 没有带类别的候选时不设上限。
func evenCategoryCap(items []*core.TrendingItem, limit int) int {
	categories := make(map[string]struct{})
	for _, it := range items {
		if it.Category != "" {
			categories[it.Category] = struct{}{}
		}
	}
	if len(categories) == 0 {
		return limit
	}
	return int(math.Ceil(float64(limit) / float64(len(categories))))
}

// capPerCategory 限制单一类别的条数，溢出物品在结果不足时按原序回填。
// 无类别的物品不占配额。
func capPerCategory(items []*core.TrendingItem, maxPer, limit int) []*core.TrendingItem {
	counts := make(map[string]int)
	kept := make([]*core.TrendingItem, 0, len(items))
	var overflow []*core.TrendingItem
	for _, it := range items {
		if it.Category != "" && counts[it.Category] >= maxPer {
			overflow = append(overflow, it)
			continue
		}
		if it.Category != "" {
			counts[it.Category]++
		}
		kept = append(kept, it)
	}
	for _, it := range overflow {
		if len(kept) >= limit {
			break
		}
		kept = append(kept, it)
	}
	return kept
}

func anyTagMatch(itemTags, queryTags []string) bool {
	for _, qt := range queryTags {
		for _, it := range itemTags {
			if it == qt {
				return true
			}
		}
	}
	return false
}
