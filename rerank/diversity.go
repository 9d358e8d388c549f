package rerank

import (
	"context"
	"math"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pipeline"
	"github.com/recstack/recstack/pkg/utils"
)

// Diversity 是多样性重排节点：按类别限额截断，防止单一类别霸榜。
//
// 算法：
//  1. 统计候选中出现的类别数 n，每个类别的限额 = ceil(Limit / n)
//  2. 按原有排序逐个放行，超过类别限额的候选暂存
//  3. 若放行数不足 Limit，用暂存候选中排名最高的回填剩余位置
//
// 类别来源优先级：
//   - label["category"].Value
//   - meta["category"] (string)
//
// Limit <= 0 时不限制总量，只做类别限额（限额按候选总数计算）。
type Diversity struct {
	// Limit 是期望的输出数量（类别限额的分母基数）
	Limit int

	// LabelKey 类别标签的 key，默认 "category"
	LabelKey string
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	key := n.LabelKey
	if key == "" {
		key = "category"
	}

	limit := n.Limit
	if limit <= 0 {
		limit = len(items)
	}

	// 统计类别数，计算每类限额
	categories := make(map[string]bool)
	for _, it := range items {
		if it == nil {
			continue
		}
		if c := itemCategory(it, key); c != "" {
			categories[c] = true
		}
	}
	perCategory := limit
	if len(categories) > 0 {
		perCategory = int(math.Ceil(float64(limit) / float64(len(categories))))
	}

	taken := make(map[string]int)
	out := make([]*core.Item, 0, limit)
	overflow := make([]*core.Item, 0)

	for _, it := range items {
		if it == nil {
			continue
		}
		if len(out) >= limit {
			break
		}
		cate := itemCategory(it, key)
		if cate != "" && taken[cate] >= perCategory {
			overflow = append(overflow, it)
			continue
		}
		if cate != "" {
			taken[cate]++
		}
		out = append(out, it)
	}

	// 回填：限额截断后剩余的位置由总排名最高的候选补齐
	for _, it := range overflow {
		if len(out) >= limit {
			break
		}
		it.PutLabel("diversity_backfill", utils.Label{Value: "true", Source: n.Name()})
		out = append(out, it)
	}

	return out, nil
}

func itemCategory(it *core.Item, key string) string {
	if it.Labels != nil {
		if lbl, ok := it.Labels[key]; ok && lbl.Value != "" {
			return lbl.Value
		}
	}
	return it.GetMetaString(key)
}
