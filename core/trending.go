package core

import "time"

// TrendingMetrics 是单个物品的累计互动指标。
// 计数来自 RecordEvent；派生率（互动率、传播率、平均停留）在读取时计算。
// 事件流里没有曝光记录，view 事件本身就是一次点开，
// 因此这里没有点击率：点击/曝光的换算在按推荐登记曝光的 tracker 侧统计。
type TrendingMetrics struct {
	Views       int64 `json:"views"`
	Bookmarks   int64 `json:"bookmarks"`
	Shares      int64 `json:"shares"`
	Comments    int64 `json:"comments"`
	Favorites   int64 `json:"favorites"`
	UniqueUsers int64 `json:"unique_users"`
	TimeSpent   int64 `json:"time_spent_seconds"`
}

// EngagementRate 返回互动率：非浏览互动 / 浏览。
func (m *TrendingMetrics) EngagementRate() float64 {
	if m.Views == 0 {
		return 0
	}
	engaged := m.Bookmarks + m.Shares + m.Comments + m.Favorites
	return float64(engaged) / float64(m.Views)
}

// Virality 返回传播率：(shares+comments)/views，按 /3 封顶到 [0,1]。
func (m *TrendingMetrics) Virality() float64 {
	if m.Views == 0 {
		return 0
	}
	v := float64(m.Shares+m.Comments) / float64(m.Views) / 3
	if v > 1 {
		v = 1
	}
	return v
}

// TimePerView 返回平均单次浏览停留（秒）。
func (m *TrendingMetrics) TimePerView() float64 {
	if m.Views == 0 {
		return 0
	}
	return float64(m.TimeSpent) / float64(m.Views)
}

// TrendingScore 是多因子热度分：总分 + 七个命名子分，均在 [0,1]。
type TrendingScore struct {
	Overall        float64 `json:"overall"`
	Popularity     float64 `json:"popularity"`
	Velocity       float64 `json:"velocity"`
	Acceleration   float64 `json:"acceleration"`
	Freshness      float64 `json:"freshness"`
	Quality        float64 `json:"quality"`
	Diversity      float64 `json:"diversity"`
	Sustainability float64 `json:"sustainability"`
}

// TrendingItem 是热点发现维护的物品状态。
// 首次事件即创建；30 天无更新后由后台清扫回收。
type TrendingItem struct {
	ID          string   `json:"id"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Language    string   `json:"language,omitempty"`

	Metrics TrendingMetrics `json:"metrics"`
	Score   TrendingScore   `json:"score"`

	Meta map[string]any `json:"meta,omitempty"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`
}

// TimeWindow 是热点查询的时间范围。
type TimeWindow string

const (
	WindowHour  TimeWindow = "hour"
	WindowDay   TimeWindow = "day"
	WindowWeek  TimeWindow = "week"
	WindowMonth TimeWindow = "month"
)

// Duration 返回时间窗口对应的跨度。
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	case WindowWeek:
		return 7 * 24 * time.Hour
	case WindowMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}
