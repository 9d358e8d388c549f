package trending

import (
	"sort"
	"time"
)

func (d *Discovery) sweepLoop() {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.Sweep()
		case <-d.done:
			return
		}
	}
}

// Sweep 执行一轮维护：
//  1. 回收保留期内无更新的物品
//  2. 对存活物品重算热度分（新鲜度随时间衰减）
//  3. 聚合类别热度画像（条数、均分、高频标签、增长率）
//
// 上一轮还在进行时直接跳过，不排队。
func (d *Discovery) Sweep() {
	if !d.sweeping.CompareAndSwap(false, true) {
		d.log.Debug("trending: sweep already in progress, skipping")
		return
	}
	defer d.sweeping.Store(false)

	now := d.now()
	cutoff := now.Add(-d.cfg.RetainFor)

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, st := range d.items {
		if st.item.LastUpdated.Before(cutoff) {
			delete(d.items, id)
			removed++
			continue
		}
		st.trimEvents(now)
		st.item.Score = d.scoreLocked(st, now)
	}

	d.aggregateCategoriesLocked(now)

	if removed > 0 {
		d.log.WithFields(map[string]any{
			"removed":   removed,
			"remaining": len(d.items),
		}).Info("trending: swept stale items")
	}
}

// categoryAccum 是类别聚合的中间量。
type categoryAccum struct {
	itemCount    int
	scoreSum     float64
	tagCounts    map[string]int
	recentEvents int
	priorEvents  int
}

// aggregateCategoriesLocked 重建类别热度画像。调用方必须持有写锁。
func (d *Discovery) aggregateCategoriesLocked(now time.Time) {
	accums := make(map[string]*categoryAccum)
	for _, st := range d.items {
		cat := st.item.Category
		if cat == "" {
			continue
		}
		acc, ok := accums[cat]
		if !ok {
			acc = &categoryAccum{tagCounts: make(map[string]int)}
			accums[cat] = acc
		}
		acc.itemCount++
		acc.scoreSum += st.item.Score.Overall
		for _, tag := range st.item.Tags {
			acc.tagCounts[tag]++
		}
		acc.recentEvents += countBetween(st.events, now.Add(-24*time.Hour), now)
		acc.priorEvents += countBetween(st.events, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	}

	trends := make(map[string]*CategoryTrend, len(accums))
	for cat, acc := range accums {
		trends[cat] = &CategoryTrend{
			Category:   cat,
			ItemCount:  acc.itemCount,
			AvgScore:   acc.scoreSum / float64(acc.itemCount),
			TopTags:    topTags(acc.tagCounts, 5),
			GrowthRate: growthRate(acc.recentEvents, acc.priorEvents),
			UpdatedAt:  now,
		}
	}
	d.categories = trends
}

// growthRate 返回相邻两个 24 小时段的事件量增长率。
func growthRate(recent, prior int) float64 {
	if prior == 0 {
		if recent == 0 {
			return 0
		}
		return 1
	}
	return float64(recent-prior) / float64(prior)
}

// topTags 返回出现次数最多的 n 个标签，按次数降序、同次数按字典序。
func topTags(counts map[string]int, n int) []string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if counts[tags[i]] != counts[tags[j]] {
			return counts[tags[i]] > counts[tags[j]]
		}
		return tags[i] < tags[j]
	})
	if len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
