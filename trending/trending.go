package trending

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recstack/recstack/core"
)

// Config 是热点发现的配置，零值字段回退到默认值。
type Config struct {
	// VelocityScale 是每小时事件数的归一化基准，默认 100
	VelocityScale float64

	// FreshnessDecay 是新鲜度的小时衰减系数，默认 0.05
	FreshnessDecay float64

	// SweepInterval 是后台清扫周期，默认 15 分钟
	SweepInterval time.Duration

	// RetainFor 是无更新物品的保留期，默认 30 天
	RetainFor time.Duration
}

func (c Config) withDefaults() Config {
	if c.VelocityScale <= 0 {
		c.VelocityScale = 100
	}
	if c.FreshnessDecay <= 0 {
		c.FreshnessDecay = 0.05
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 15 * time.Minute
	}
	if c.RetainFor <= 0 {
		c.RetainFor = 30 * 24 * time.Hour
	}
	return c
}

// itemState 是单个物品的内部状态：公开指标加上计分所需的原始痕迹。
type itemState struct {
	item core.TrendingItem

	// seenUsers 支撑 UniqueUsers 的去重
	seenUsers map[string]struct{}

	// events 是近 48 小时的事件时间线，速度/加速度/增长率都从这里推导
	events []time.Time
}

// eventRetention 是事件时间线的保留窗口。
// 增长率要比较相邻两个 24 小时段，因此保留 48 小时。
const eventRetention = 48 * time.Hour

// CategoryTrend 是清扫时聚合出的类别热度画像。
type CategoryTrend struct {
	Category  string   `json:"category"`
	ItemCount int      `json:"item_count"`
	AvgScore  float64  `json:"avg_score"`
	TopTags   []string `json:"top_tags"`

	// GrowthRate 是近 24 小时事件量相对前一个 24 小时的增长率
	GrowthRate float64 `json:"growth_rate"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Discovery 是热点发现组件（TrendingDiscovery）。
//
// 写路径：RecordEvent 累计指标并就地重算热度分。
// 读路径：Discover 按时间窗口混合子分并排序，结果是副本。
// 后台：固定周期清扫——回收长期无更新的物品、聚合类别热度。
type Discovery struct {
	mu    sync.RWMutex
	items map[string]*itemState

	categories map[string]*CategoryTrend

	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	sweeping atomic.Bool
	done     chan struct{}
	closed   sync.Once
}

// Option 配置 Discovery。
type Option func(*Discovery)

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Discovery) { d.log = log }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(d *Discovery) { d.now = now }
}

// New 创建热点发现组件并启动后台清扫。
func New(cfg Config, opts ...Option) *Discovery {
	d := &Discovery{
		items:      make(map[string]*itemState),
		categories: make(map[string]*CategoryTrend),
		cfg:        cfg.withDefaults(),
		log:        logrus.StandardLogger(),
		now:        time.Now,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	go d.sweepLoop()
	return d
}

// RecordEvent 记录一次互动事件并更新对应物品的指标与热度分。
// 首次出现的物品就地创建。
func (d *Discovery) RecordEvent(ctx context.Context, ev core.InteractionEvent) error {
	if ev.ItemID == "" {
		return core.NewDomainError(core.ModuleTrending, core.ErrorCodeInvalidInput, "trending: event missing item id")
	}
	if _, ok := interactionDelta(ev.Type); !ok {
		return core.NewDomainError(core.ModuleTrending, core.ErrorCodeInvalidInput, "trending: unknown interaction type "+string(ev.Type))
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.items[ev.ItemID]
	if !ok {
		st = &itemState{
			item: core.TrendingItem{
				ID:        ev.ItemID,
				FirstSeen: at,
			},
			seenUsers: make(map[string]struct{}),
		}
		d.items[ev.ItemID] = st
	}

	applyEvent(&st.item.Metrics, ev)
	if ev.UserID != "" {
		if _, seen := st.seenUsers[ev.UserID]; !seen {
			st.seenUsers[ev.UserID] = struct{}{}
			st.item.Metrics.UniqueUsers++
		}
	}
	if ev.Category != "" {
		st.item.Category = ev.Category
	}
	if ev.ContentType != "" {
		st.item.ContentType = ev.ContentType
	}
	if ev.Language != "" {
		st.item.Language = ev.Language
	}
	if len(ev.Tags) > 0 {
		st.item.Tags = append([]string(nil), ev.Tags...)
	}
	if at.After(st.item.LastUpdated) {
		st.item.LastUpdated = at
	}

	st.events = append(st.events, at)
	st.trimEvents(d.now())

	st.item.Score = d.scoreLocked(st, d.now())
	return nil
}

// trimEvents 丢弃保留窗口之外的事件时间戳。
func (st *itemState) trimEvents(now time.Time) {
	cutoff := now.Add(-eventRetention)
	kept := st.events[:0]
	for _, at := range st.events {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	st.events = kept
}

// applyEvent 把事件计入累计指标。
func applyEvent(m *core.TrendingMetrics, ev core.InteractionEvent) {
	switch ev.Type {
	case core.InteractionView:
		m.Views++
		m.TimeSpent += int64(ev.Dwell.Seconds())
	case core.InteractionBookmark:
		m.Bookmarks++
	case core.InteractionComment:
		m.Comments++
	case core.InteractionShare:
		m.Shares++
	case core.InteractionFavorite:
		m.Favorites++
	}
}

// interactionDelta 返回事件类型的计分权重，未知类型返回 false。
func interactionDelta(t core.InteractionType) (float64, bool) {
	w := core.InteractionWeight(t, 0)
	if w == 0 {
		return 0, false
	}
	return w, true
}

// Item 返回单个物品的快照；不存在时返回 NOT_FOUND。
func (d *Discovery) Item(itemID string) (*core.TrendingItem, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st, ok := d.items[itemID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleTrending, core.ErrorCodeNotFound, "trending: item "+itemID+" not found")
	}
	cp := cloneItem(&st.item)
	return cp, nil
}

// CategoryTrends 返回最近一次清扫聚合出的类别热度画像。
func (d *Discovery) CategoryTrends() []*CategoryTrend {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*CategoryTrend, 0, len(d.categories))
	for _, ct := range d.categories {
		cp := *ct
		cp.TopTags = append([]string(nil), ct.TopTags...)
		out = append(out, &cp)
	}
	return out
}

// Close 停止后台清扫。幂等。
func (d *Discovery) Close() error {
	d.closed.Do(func() { close(d.done) })
	return nil
}

func cloneItem(it *core.TrendingItem) *core.TrendingItem {
	cp := *it
	cp.Tags = append([]string(nil), it.Tags...)
	if it.Meta != nil {
		cp.Meta = make(map[string]any, len(it.Meta))
		for k, v := range it.Meta {
			cp.Meta[k] = v
		}
	}
	return &cp
}
