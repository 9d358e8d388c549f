package tracker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recstack/recstack/core"
)

// Config 是效果追踪的配置，零值字段回退到默认值。
type Config struct {
	// MinImpressions 是参与报表排名与建议判定的最低曝光数，默认 10
	MinImpressions int64

	// TrendWindowDays 是增长率对比的滚动窗口天数，默认 7
	TrendWindowDays int

	// SuggestInterval 是优化建议的再生成周期，默认 1 小时
	SuggestInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinImpressions <= 0 {
		c.MinImpressions = 10
	}
	if c.TrendWindowDays <= 0 {
		c.TrendWindowDays = 7
	}
	if c.SuggestInterval <= 0 {
		c.SuggestInterval = time.Hour
	}
	return c
}

// Metrics 是一条推荐的效果记录：展示时创建，互动/评分时就地更新。
// 每个推荐 ID 只存在一条记录，从不重复。
type Metrics struct {
	RecID    string        `json:"rec_id"`
	UserID   string        `json:"user_id"`
	Strategy core.Strategy `json:"strategy"`
	TargetID string        `json:"target_id"`
	Category string        `json:"category,omitempty"`

	// Position 是展示位次（从 1 开始）
	Position int    `json:"position"`
	Page     string `json:"page,omitempty"`
	Device   string `json:"device,omitempty"`

	PresentedAt time.Time `json:"presented_at"`

	Clicked    bool      `json:"clicked"`
	ClickedAt  time.Time `json:"clicked_at,omitempty"`
	Bookmarked bool      `json:"bookmarked"`
	Shared     bool      `json:"shared"`
	Commented  bool      `json:"commented"`
	Favorited  bool      `json:"favorited"`

	DwellSeconds int64 `json:"dwell_seconds"`

	// Rating 是显式评分（1-5），0 表示未评分
	Rating  float64 `json:"rating,omitempty"`
	Comment string  `json:"comment,omitempty"`
}

// ProfileSink 接收互动反馈以更新画像。profile.Store 实现此接口。
type ProfileSink interface {
	TrackInteraction(ctx context.Context, ev core.InteractionEvent) error
}

// CollabSink 接收互动反馈以更新协同矩阵。collab.Filter 实现此接口。
type CollabSink interface {
	RecordInteraction(ctx context.Context, ev core.InteractionEvent) error
}

// TrendingSink 接收互动反馈以更新热度计数。trending.Discovery 实现此接口。
type TrendingSink interface {
	RecordEvent(ctx context.Context, ev core.InteractionEvent) error
}

// Tracker 是效果追踪器（PerformanceTracker）。
//
// 写路径：Present 创建记录，Interact/Rate 就地更新并把反馈
// 转发给画像/协同/热点（反馈链路单向，转发失败只降级记录日志）。
// 读路径：Report 聚合窗口内的记录；Suggestions 返回最近一轮规则建议。
// 后台：按固定周期再生成建议，上一轮未结束时跳过。
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Metrics

	profiles ProfileSink
	collab   CollabSink
	trending TrendingSink

	suggestions []Suggestion
	suggesting  atomic.Bool

	cfg Config
	log logrus.FieldLogger
	now func() time.Time

	done   chan struct{}
	closed sync.Once
}

// Option 配置 Tracker。
type Option func(*Tracker)

// WithProfileSink 注入画像反馈接收端。
func WithProfileSink(s ProfileSink) Option {
	return func(t *Tracker) { t.profiles = s }
}

// WithCollabSink 注入协同过滤反馈接收端。
func WithCollabSink(s CollabSink) Option {
	return func(t *Tracker) { t.collab = s }
}

// WithTrendingSink 注入热点反馈接收端。
func WithTrendingSink(s TrendingSink) Option {
	return func(t *Tracker) { t.trending = s }
}

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Tracker) { t.log = log }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New 创建效果追踪器并启动建议再生成循环。
func New(cfg Config, opts ...Option) *Tracker {
	t := &Tracker{
		records: make(map[string]*Metrics),
		cfg:     cfg.withDefaults(),
		log:     logrus.StandardLogger(),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	go t.suggestLoop()
	return t
}

// Present 登记一次推荐展示。同一推荐 ID 重复展示是无操作：
// 记录在首次展示时创建且唯一。
func (t *Tracker) Present(ctx context.Context, rec *core.Recommendation, rctx *core.RecommendContext, position int) error {
	if rec == nil || rec.ID == "" {
		return core.NewDomainError(core.ModuleTracker, core.ErrorCodeInvalidInput, "tracker: recommendation without id")
	}

	m := &Metrics{
		RecID:       rec.ID,
		UserID:      rec.UserID,
		Strategy:    rec.Strategy,
		TargetID:    rec.TargetID,
		Category:    rec.Metadata.Category,
		Position:    position,
		PresentedAt: t.now(),
	}
	if rctx != nil {
		m.Page = rctx.CurrentPage
		m.Device = rctx.GetParamString("device_type")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.records[rec.ID]; exists {
		return nil
	}
	t.records[rec.ID] = m
	return nil
}

// Interact 登记对已展示推荐的一次互动，并把反馈转发给
// 画像/协同/热点。未知推荐 ID 返回 NOT_FOUND。
func (t *Tracker) Interact(ctx context.Context, recID string, typ core.InteractionType, at time.Time, dwell time.Duration) error {
	if core.InteractionWeight(typ, 0) == 0 {
		return core.NewDomainError(core.ModuleTracker, core.ErrorCodeInvalidInput, "tracker: unknown interaction type "+string(typ))
	}
	if at.IsZero() {
		at = t.now()
	}

	t.mu.Lock()
	m, ok := t.records[recID]
	if !ok {
		t.mu.Unlock()
		return core.NewDomainError(core.ModuleTracker, core.ErrorCodeNotFound, "tracker: recommendation "+recID+" not presented")
	}
	switch typ {
	case core.InteractionView:
		if !m.Clicked {
			m.Clicked = true
			m.ClickedAt = at
		}
		m.DwellSeconds += int64(dwell.Seconds())
	case core.InteractionBookmark:
		m.Bookmarked = true
	case core.InteractionShare:
		m.Shared = true
	case core.InteractionComment:
		m.Commented = true
	case core.InteractionFavorite:
		m.Favorited = true
	}
	ev := core.InteractionEvent{
		UserID:    m.UserID,
		ItemID:    m.TargetID,
		Type:      typ,
		Category:  m.Category,
		Dwell:     dwell,
		Timestamp: at,
	}
	t.mu.Unlock()

	t.forward(ctx, ev)
	return nil
}

// Rate 登记显式评分（1-5）。
func (t *Tracker) Rate(ctx context.Context, recID, userID string, rating float64, comment string) error {
	if rating < 1 || rating > 5 {
		return core.NewDomainError(core.ModuleTracker, core.ErrorCodeInvalidInput, "tracker: rating must be within 1-5")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.records[recID]
	if !ok {
		return core.NewDomainError(core.ModuleTracker, core.ErrorCodeNotFound, "tracker: recommendation "+recID+" not presented")
	}
	m.Rating = rating
	m.Comment = comment
	return nil
}

// Metrics 返回一条效果记录的快照。
func (t *Tracker) Metrics(recID string) (*Metrics, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.records[recID]
	if !ok {
		return nil, core.NewDomainError(core.ModuleTracker, core.ErrorCodeNotFound, "tracker: recommendation "+recID+" not presented")
	}
	cp := *m
	return &cp, nil
}

// forward 把互动反馈转发给下游。反馈链路是尽力而为的：
// 任一下游失败不影响追踪记录本身，只降级为 warning。
func (t *Tracker) forward(ctx context.Context, ev core.InteractionEvent) {
	if t.profiles != nil {
		if err := t.profiles.TrackInteraction(ctx, ev); err != nil {
			t.log.WithError(err).Warn("tracker: profile feedback failed")
		}
	}
	if t.collab != nil {
		if err := t.collab.RecordInteraction(ctx, ev); err != nil {
			t.log.WithError(err).Warn("tracker: collab feedback failed")
		}
	}
	if t.trending != nil {
		if err := t.trending.RecordEvent(ctx, ev); err != nil {
			t.log.WithError(err).Warn("tracker: trending feedback failed")
		}
	}
}

// Close 停止后台建议循环。幂等。
func (t *Tracker) Close() error {
	t.closed.Do(func() { close(t.done) })
	return nil
}
