package trending

import (
	"math"
	"time"

	"github.com/recstack/recstack/core"
)

// 默认的七因子混合权重（day 窗口），合计 1.0。
const (
	weightPopularity     = 0.25
	weightVelocity       = 0.20
	weightAcceleration   = 0.15
	weightFreshness      = 0.15
	weightQuality        = 0.10
	weightDiversity      = 0.10
	weightSustainability = 0.05
)

// blendWeights 是一套窗口相关的子分混合权重。
type blendWeights struct {
	popularity, velocity, acceleration, freshness, quality, diversity, sustainability float64
}

var defaultBlend = blendWeights{
	popularity:     weightPopularity,
	velocity:       weightVelocity,
	acceleration:   weightAcceleration,
	freshness:      weightFreshness,
	quality:        weightQuality,
	diversity:      weightDiversity,
	sustainability: weightSustainability,
}

// hourBlend 上调速度与加速度：短窗口里"正在爆发"比"一直流行"重要。
var hourBlend = blendWeights{
	popularity:     0.15,
	velocity:       0.30,
	acceleration:   0.25,
	freshness:      0.15,
	quality:        0.05,
	diversity:      0.05,
	sustainability: 0.05,
}

// longBlend 上调累计热度与持续性：周/月窗口关心的是持续的热点。
var longBlend = blendWeights{
	popularity:     0.30,
	velocity:       0.10,
	acceleration:   0.05,
	freshness:      0.10,
	quality:        0.15,
	diversity:      0.15,
	sustainability: 0.15,
}

func blendFor(window core.TimeWindow) blendWeights {
	switch window {
	case core.WindowHour:
		return hourBlend
	case core.WindowWeek, core.WindowMonth:
		return longBlend
	default:
		return defaultBlend
	}
}

func (w blendWeights) overall(s core.TrendingScore) float64 {
	return s.Popularity*w.popularity +
		s.Velocity*w.velocity +
		s.Acceleration*w.acceleration +
		s.Freshness*w.freshness +
		s.Quality*w.quality +
		s.Diversity*w.diversity +
		s.Sustainability*w.sustainability
}

// scoreLocked 重算一个物品的全部子分。调用方必须持锁。
//
// 所有子分都落在 [0,1]；Overall 用默认（day）权重混合，
// Discover 会按查询窗口重新混合。
func (d *Discovery) scoreLocked(st *itemState, now time.Time) core.TrendingScore {
	s := core.TrendingScore{
		Popularity:     d.popularity(&st.item.Metrics),
		Velocity:       d.velocity(st, now),
		Acceleration:   acceleration(st, now),
		Freshness:      d.freshness(st.item.FirstSeen, now),
		Quality:        quality(&st.item.Metrics),
		Diversity:      audienceSpread(&st.item.Metrics),
		Sustainability: sustainability(st, now),
	}
	s.Overall = defaultBlend.overall(s)
	return s
}

// popularity 是多路计数的归一化均值：
// 浏览/1000、收藏/100、分享/50 各自封顶后与互动率等权混合。
func (d *Discovery) popularity(m *core.TrendingMetrics) float64 {
	views := clamp01(float64(m.Views) / 1000)
	bookmarks := clamp01(float64(m.Bookmarks) / 100)
	shares := clamp01(float64(m.Shares) / 50)
	engagement := clamp01(m.EngagementRate())
	return (views + bookmarks + shares + engagement) / 4
}

// velocity 按最近一小时的事件数归一化。
func (d *Discovery) velocity(st *itemState, now time.Time) float64 {
	recent := countBetween(st.events, now.Add(-time.Hour), now)
	return clamp01(float64(recent) / d.cfg.VelocityScale)
}

// acceleration 比较最近一小时与前一小时的事件量。
// 0.5 为持平，加速趋向 1，降温趋向 0；前一小时为零但当前有事件视为满加速。
func acceleration(st *itemState, now time.Time) float64 {
	recent := countBetween(st.events, now.Add(-time.Hour), now)
	prior := countBetween(st.events, now.Add(-2*time.Hour), now.Add(-time.Hour))
	if prior == 0 {
		if recent == 0 {
			return 0
		}
		return 1
	}
	growth := float64(recent-prior) / float64(prior)
	return clamp01(0.5 + growth/2)
}

// freshness 按首次出现后的小时数做指数衰减，age=0 时恒为 1。
func (d *Discovery) freshness(firstSeen, now time.Time) float64 {
	ageHours := now.Sub(firstSeen).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return math.Exp(-ageHours * d.cfg.FreshnessDecay)
}

// quality 混合互动率、传播率与平均停留。
func quality(m *core.TrendingMetrics) float64 {
	dwell := clamp01(m.TimePerView() / 180)
	return clamp01(0.4*clamp01(m.EngagementRate()) + 0.3*m.Virality() + 0.3*dwell)
}

// audienceSpread 度量受众分散度：独立用户 / 浏览量。
// 同一批人反复刷的物品得分低，破圈的物品得分高。
func audienceSpread(m *core.TrendingMetrics) float64 {
	if m.Views == 0 {
		return 0
	}
	return clamp01(float64(m.UniqueUsers) / float64(m.Views))
}

// sustainability 要求物品至少存在 1 小时，
// 随存续时长（24 小时封顶）增长，并按最近活跃度折扣：
// 存在够久且最近仍有事件的物品才算"持续热"。
func sustainability(st *itemState, now time.Time) float64 {
	ageHours := now.Sub(st.item.FirstSeen).Hours()
	if ageHours < 1 {
		return 0
	}
	elapsed := clamp01(ageHours / 24)

	idleHours := now.Sub(st.item.LastUpdated).Hours()
	if idleHours < 0 {
		idleHours = 0
	}
	recency := clamp01(1 - idleHours/24)
	return elapsed * recency
}

func countBetween(events []time.Time, from, to time.Time) int {
	n := 0
	for _, at := range events {
		if at.After(from) && !at.After(to) {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
