package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/recstack/recstack/collab"
	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/trending"
)

// 各策略在请求 count 中的目标占比。
// 只请求部分策略时按占比重新归一。
var strategyShares = map[core.Strategy]float64{
	core.StrategyContent:       0.40,
	core.StrategyCollaborative: 0.30,
	core.StrategyTrending:      0.20,
	core.StrategyHybrid:        0.10,
}

// ProfileSource 提供用户画像。profile.Store 实现此接口。
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*core.UserProfile, error)
}

// CollaborativeSource 提供协同过滤候选。collab.Filter 实现此接口。
type CollaborativeSource interface {
	RecommendFor(ctx context.Context, userID string, count int, exclude map[string]bool) ([]*collab.Recommendation, error)
}

// TrendingSource 提供热点候选。trending.Discovery 实现此接口。
type TrendingSource interface {
	Discover(ctx context.Context, q trending.Query) ([]*core.TrendingItem, error)
}

// Config 是推荐引擎的配置，零值字段回退到默认值。
type Config struct {
	// DefaultCount 是未指定时的返回条数，默认 10
	DefaultCount int

	// OverGenerate 是每路策略的超量生成倍数，默认 3。
	// 各策略先生成 count×OverGenerate 个候选再截断到配额，
	// 保证过滤与去重之后仍然填得满。
	OverGenerate int

	// ContentKeepThreshold 是内容召回的保留阈值，默认 0.3
	ContentKeepThreshold float64

	// DiversityWeight 是混合策略的多样性加分权重，默认 0.1
	DiversityWeight float64

	// CacheTTL 是每用户推荐列表的缓存时长，默认 30 分钟
	CacheTTL time.Duration

	// TrendingWindow 是热点召回的时间窗口，默认 day
	TrendingWindow core.TimeWindow

	// TimeBoosts 是时段 → 类别 → 加权倍数；nil 时使用内置默认
	TimeBoosts map[string]map[string]float64
}

func (c Config) withDefaults() Config {
	if c.DefaultCount <= 0 {
		c.DefaultCount = 10
	}
	if c.OverGenerate <= 0 {
		c.OverGenerate = 3
	}
	if c.ContentKeepThreshold <= 0 {
		c.ContentKeepThreshold = 0.3
	}
	if c.DiversityWeight <= 0 {
		c.DiversityWeight = 0.1
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 30 * time.Minute
	}
	if c.TrendingWindow == "" {
		c.TrendingWindow = core.WindowDay
	}
	if c.TimeBoosts == nil {
		c.TimeBoosts = defaultTimeBoosts
	}
	return c
}

// Engine 是推荐编排器（RecommendationEngine）。
//
// 生成链路：画像加载 → 三路并发召回（内容/协同/热点）→ 各自截断到配额
// → 混合策略合并 → 上下文加权 → 置信度折算 → 排序截断。
// 生成是只读的、无副作用的（缓存写入除外），命中与否都安全。
type Engine struct {
	profiles ProfileSource
	collab   CollaborativeSource
	trending TrendingSource
	catalog  Catalog

	cache core.Store

	cfg Config
	log logrus.FieldLogger
	now func() time.Time
}

// Option 配置 Engine。
type Option func(*Engine)

// WithCache 注入推荐列表缓存后端。
func WithCache(store core.Store) Option {
	return func(e *Engine) { e.cache = store }
}

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New 创建推荐引擎。profiles 与 catalog 是必须的；
// collab/trending 为空时对应策略退化为空结果。
func New(cfg Config, profiles ProfileSource, collabSrc CollaborativeSource, trendingSrc TrendingSource, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		profiles: profiles,
		collab:   collabSrc,
		trending: trendingSrc,
		catalog:  catalog,
		cfg:      cfg.withDefaults(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request 是一次推荐请求。
type Request struct {
	UserID string

	// Count 是期望条数，<=0 时取 DefaultCount
	Count int

	// Strategies 限定参与的策略，空切片表示全部
	Strategies []core.Strategy

	// Exclude 是调用方要求排除的物品
	Exclude []string

	// Filters 是请求级的内容约束（类别/标签/语言/最低质量）
	Filters Filters

	// Context 是可选的请求上下文（时段/当前物品加权的输入）
	Context *core.RecommendContext
}

// Generate 生成推荐列表。
//
// 冷启动（画像缺失、协同无数据、热点为空）产出空结果而非错误；
// 只有输入非法与内部计算失败才返回错误。
func (e *Engine) Generate(ctx context.Context, req Request) ([]*core.Recommendation, error) {
	if req.UserID == "" {
		return nil, core.NewDomainError(core.ModuleEngine, core.ErrorCodeInvalidInput, "engine: empty user id")
	}
	if req.Count <= 0 {
		req.Count = e.cfg.DefaultCount
	}
	strategies := normalizeStrategies(req.Strategies)

	if cached := e.cacheGet(ctx, req, strategies); cached != nil {
		return cached, nil
	}

	prof := e.loadProfile(ctx, req.UserID)
	exclude := e.buildExclusions(req, prof)

	pools, err := e.recall(ctx, req, strategies, prof, exclude)
	if err != nil {
		return nil, err
	}
	e.applyFilters(ctx, req.Filters, pools)

	quotas := strategyQuotas(strategies, req.Count)
	var combined []*core.Recommendation
	for _, s := range strategies {
		pool := pools[s]
		if s == core.StrategyHybrid {
			pool = e.hybrid(pools)
		}
		combined = append(combined, truncate(pool, quotas[s])...)
	}

	e.applyContext(ctx, req.Context, combined)
	e.finalize(req, prof, combined)

	sort.SliceStable(combined, func(i, j int) bool {
		if combined[i].Score != combined[j].Score {
			return combined[i].Score > combined[j].Score
		}
		if combined[i].Confidence != combined[j].Confidence {
			return combined[i].Confidence > combined[j].Confidence
		}
		return combined[i].TargetID < combined[j].TargetID
	})
	if len(combined) > req.Count {
		combined = combined[:req.Count]
	}

	e.cachePut(ctx, req, strategies, combined)
	return combined, nil
}

// recall 并发执行三路基础策略。单路失败降级为空并记录 warning，
// 不拖垮整个请求。hybrid 依赖三路的完整候选集，因此即使只请求
// hybrid 也会触发全部召回。
func (e *Engine) recall(ctx context.Context, req Request, strategies []core.Strategy, prof *core.UserProfile, exclude map[string]bool) (map[core.Strategy][]*core.Recommendation, error) {
	want := make(map[core.Strategy]bool, len(strategies))
	for _, s := range strategies {
		want[s] = true
	}
	needAll := want[core.StrategyHybrid]
	overCount := req.Count * e.cfg.OverGenerate

	pools := make(map[core.Strategy][]*core.Recommendation, 4)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	run := func(s core.Strategy, gen func(context.Context) ([]*core.Recommendation, error)) {
		if !want[s] && !needAll {
			return
		}
		g.Go(func() error {
			recs, err := gen(gctx)
			if err != nil {
				e.log.WithFields(logrus.Fields{
					"user_id":  req.UserID,
					"strategy": s,
				}).WithError(err).Warn("engine: recall strategy degraded to empty")
				recs = nil
			}
			mu.Lock()
			pools[s] = recs
			mu.Unlock()
			return nil
		})
	}

	run(core.StrategyContent, func(c context.Context) ([]*core.Recommendation, error) {
		return e.contentBased(c, req.UserID, prof, overCount, exclude)
	})
	run(core.StrategyCollaborative, func(c context.Context) ([]*core.Recommendation, error) {
		return e.collaborative(c, req.UserID, overCount, exclude)
	})
	run(core.StrategyTrending, func(c context.Context) ([]*core.Recommendation, error) {
		return e.trendingRecall(c, req.UserID, overCount, exclude)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pools, nil
}

// loadProfile 加载画像；缺失按冷启动处理（nil）。
func (e *Engine) loadProfile(ctx context.Context, userID string) *core.UserProfile {
	if e.profiles == nil {
		return nil
	}
	prof, err := e.profiles.Get(ctx, userID)
	if err != nil {
		if !core.IsNotFound(err) {
			e.log.WithField("user_id", userID).WithError(err).Warn("engine: profile load failed, treating as cold start")
		}
		return nil
	}
	return prof
}

// buildExclusions 合并调用方排除集与用户已互动过的物品。
func (e *Engine) buildExclusions(req Request, prof *core.UserProfile) map[string]bool {
	exclude := make(map[string]bool, len(req.Exclude))
	for _, id := range req.Exclude {
		exclude[id] = true
	}
	if prof != nil {
		for _, ev := range prof.Behavior.InteractionHistory {
			exclude[ev.ItemID] = true
		}
	}
	return exclude
}

// finalize 补齐输出字段：ID、置信度、时间戳、TTL。
// 置信度 = 分数 × 画像完整度，冷启动用户的置信度自然压到 0。
func (e *Engine) finalize(req Request, prof *core.UserProfile, recs []*core.Recommendation) {
	completeness := 0.0
	if prof != nil {
		completeness = prof.Completeness()
	}
	now := e.now()
	for _, rec := range recs {
		rec.ID = uuid.NewString()
		rec.UserID = req.UserID
		rec.Score = clamp01(rec.Score)
		rec.Confidence = rec.Score * completeness
		rec.CreatedAt = now
		rec.ExpiresAt = now.Add(core.StrategyTTL(rec.Strategy))
	}
}

// normalizeStrategies 过滤未知策略并按固定顺序去重；空输入表示全部。
func normalizeStrategies(requested []core.Strategy) []core.Strategy {
	all := []core.Strategy{core.StrategyContent, core.StrategyCollaborative, core.StrategyTrending, core.StrategyHybrid}
	if len(requested) == 0 {
		return all
	}
	want := make(map[core.Strategy]bool, len(requested))
	for _, s := range requested {
		if _, ok := strategyShares[s]; ok {
			want[s] = true
		}
	}
	out := make([]core.Strategy, 0, len(want))
	for _, s := range all {
		if want[s] {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// strategyQuotas 把请求条数按占比拆成每策略配额，占比按请求的
// 策略子集重新归一，向上取整保证配额合计不小于请求条数。
func strategyQuotas(strategies []core.Strategy, count int) map[core.Strategy]int {
	total := 0.0
	for _, s := range strategies {
		total += strategyShares[s]
	}
	quotas := make(map[core.Strategy]int, len(strategies))
	for _, s := range strategies {
		q := int(math.Ceil(float64(count) * strategyShares[s] / total))
		if q < 1 {
			q = 1
		}
		quotas[s] = q
	}
	return quotas
}

func truncate(recs []*core.Recommendation, n int) []*core.Recommendation {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Score > recs[j].Score
	})
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}

func strategiesKey(strategies []core.Strategy) string {
	parts := make([]string, len(strategies))
	for i, s := range strategies {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
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
