package tracker

import (
	"context"
	"sort"
	"time"

	"github.com/recstack/recstack/core"
)

// 排名得分权重：收藏被视为远强于点击的正反馈。
const (
	performerCTRWeight      = 0.3
	performerBookmarkWeight = 0.7
)

// Filters 限定报表统计的记录范围，零值字段不过滤。
type Filters struct {
	Strategy core.Strategy
	Page     string
	Device   string
}

// GroupStats 是一个聚合维度下的汇总指标。
type GroupStats struct {
	Presented    int64   `json:"presented"`
	Clicked      int64   `json:"clicked"`
	Bookmarked   int64   `json:"bookmarked"`
	CTR          float64 `json:"ctr"`
	BookmarkRate float64 `json:"bookmark_rate"`
	AvgRating    float64 `json:"avg_rating,omitempty"`

	ratingSum   float64
	ratingCount int64
}

func (g *GroupStats) add(m *Metrics) {
	g.Presented++
	if m.Clicked {
		g.Clicked++
	}
	if m.Bookmarked {
		g.Bookmarked++
	}
	if m.Rating > 0 {
		g.ratingSum += m.Rating
		g.ratingCount++
	}
}

func (g *GroupStats) finish() {
	if g.Presented > 0 {
		g.CTR = float64(g.Clicked) / float64(g.Presented)
		g.BookmarkRate = float64(g.Bookmarked) / float64(g.Presented)
	}
	if g.ratingCount > 0 {
		g.AvgRating = g.ratingSum / float64(g.ratingCount)
	}
}

// Performer 是按目标物品聚合的表现条目。
type Performer struct {
	TargetID     string  `json:"target_id"`
	Presented    int64   `json:"presented"`
	CTR          float64 `json:"ctr"`
	BookmarkRate float64 `json:"bookmark_rate"`

	// Score = 0.3×CTR + 0.7×BookmarkRate
	Score float64 `json:"score"`
}

// DailyPoint 是按天的趋势点。
type DailyPoint struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	Presented int64   `json:"presented"`
	Clicked   int64   `json:"clicked"`
	CTR       float64 `json:"ctr"`
}

// Report 是一个时间窗口内的效果汇总。
type Report struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Total GroupStats `json:"total"`

	ByStrategy map[core.Strategy]*GroupStats `json:"by_strategy"`
	ByPage     map[string]*GroupStats        `json:"by_page"`
	ByDevice   map[string]*GroupStats        `json:"by_device"`
	ByHour     map[int]*GroupStats           `json:"by_hour"`
	ByWeekday  map[string]*GroupStats        `json:"by_weekday"`

	DailyTrend []DailyPoint `json:"daily_trend"`

	// GrowthRate 比较相邻两个滚动窗口的点击量增长
	GrowthRate float64 `json:"growth_rate"`

	TopPerformers    []Performer `json:"top_performers"`
	BottomPerformers []Performer `json:"bottom_performers"`
}

// Report 聚合时间窗口内的效果记录。窗口内没有记录时返回空报表。
func (t *Tracker) Report(ctx context.Context, start, end time.Time, filters Filters) (*Report, error) {
	if !end.After(start) {
		return nil, core.NewDomainError(core.ModuleTracker, core.ErrorCodeInvalidInput, "tracker: report window is empty")
	}

	rep := &Report{
		Start:      start,
		End:        end,
		ByStrategy: make(map[core.Strategy]*GroupStats),
		ByPage:     make(map[string]*GroupStats),
		ByDevice:   make(map[string]*GroupStats),
		ByHour:     make(map[int]*GroupStats),
		ByWeekday:  make(map[string]*GroupStats),
	}
	daily := make(map[string]*DailyPoint)
	targets := make(map[string]*GroupStats)

	t.mu.RLock()
	for _, m := range t.records {
		if m.PresentedAt.Before(start) || !m.PresentedAt.Before(end) {
			continue
		}
		if filters.Strategy != "" && m.Strategy != filters.Strategy {
			continue
		}
		if filters.Page != "" && m.Page != filters.Page {
			continue
		}
		if filters.Device != "" && m.Device != filters.Device {
			continue
		}

		rep.Total.add(m)
		groupInto(rep.ByStrategy, m.Strategy, m)
		if m.Page != "" {
			groupInto(rep.ByPage, m.Page, m)
		}
		if m.Device != "" {
			groupInto(rep.ByDevice, m.Device, m)
		}
		groupInto(rep.ByHour, m.PresentedAt.Hour(), m)
		groupInto(rep.ByWeekday, m.PresentedAt.Weekday().String(), m)
		groupInto(targets, m.TargetID, m)

		day := m.PresentedAt.Format("2006-01-02")
		dp, ok := daily[day]
		if !ok {
			dp = &DailyPoint{Date: day}
			daily[day] = dp
		}
		dp.Presented++
		if m.Clicked {
			dp.Clicked++
		}
	}
	t.mu.RUnlock()

	rep.Total.finish()
	finishAll(rep.ByStrategy)
	finishAll(rep.ByPage)
	finishAll(rep.ByDevice)
	finishAll(rep.ByHour)
	finishAll(rep.ByWeekday)

	for _, dp := range daily {
		if dp.Presented > 0 {
			dp.CTR = float64(dp.Clicked) / float64(dp.Presented)
		}
		rep.DailyTrend = append(rep.DailyTrend, *dp)
	}
	sort.Slice(rep.DailyTrend, func(i, j int) bool {
		return rep.DailyTrend[i].Date < rep.DailyTrend[j].Date
	})

	rep.GrowthRate = trailingGrowth(rep.DailyTrend, end, t.cfg.TrendWindowDays)
	rep.TopPerformers, rep.BottomPerformers = rankPerformers(targets, t.cfg.MinImpressions)
	return rep, nil
}

func groupInto[K comparable](groups map[K]*GroupStats, key K, m *Metrics) {
	g, ok := groups[key]
	if !ok {
		g = &GroupStats{}
		groups[key] = g
	}
	g.add(m)
}

func finishAll[K comparable](groups map[K]*GroupStats) {
	for _, g := range groups {
		g.finish()
	}
}

// trailingGrowth 比较相邻两个 windowDays 天窗口的点击量。
// 前一窗口无点击时：本窗口有点击记 1，否则记 0。
func trailingGrowth(trend []DailyPoint, end time.Time, windowDays int) float64 {
	recentFrom := end.AddDate(0, 0, -windowDays).Format("2006-01-02")
	priorFrom := end.AddDate(0, 0, -2*windowDays).Format("2006-01-02")

	var recent, prior int64
	for _, dp := range trend {
		switch {
		case dp.Date >= recentFrom:
			recent += dp.Clicked
		case dp.Date >= priorFrom:
			prior += dp.Clicked
		}
	}
	if prior == 0 {
		if recent > 0 {
			return 1
		}
		return 0
	}
	return float64(recent-prior) / float64(prior)
}

// rankPerformers 按 0.3×CTR + 0.7×收藏率给目标物品排名，
// 曝光不足 minImpressions 的物品不参与。
func rankPerformers(targets map[string]*GroupStats, minImpressions int64) (top, bottom []Performer) {
	performers := make([]Performer, 0, len(targets))
	for id, g := range targets {
		g.finish()
		if g.Presented < minImpressions {
			continue
		}
		performers = append(performers, Performer{
			TargetID:     id,
			Presented:    g.Presented,
			CTR:          g.CTR,
			BookmarkRate: g.BookmarkRate,
			Score:        performerCTRWeight*g.CTR + performerBookmarkWeight*g.BookmarkRate,
		})
	}
	sort.Slice(performers, func(i, j int) bool {
		if performers[i].Score != performers[j].Score {
			return performers[i].Score > performers[j].Score
		}
		return performers[i].TargetID < performers[j].TargetID
	})

	n := len(performers)
	k := 5
	if k > n {
		k = n
	}
	top = append(top, performers[:k]...)
	bottom = append(bottom, performers[n-k:]...)
	return top, bottom
}
