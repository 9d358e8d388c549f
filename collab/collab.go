package collab

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/recstack/recstack/core"
)

// Config 是协同过滤的配置，零值字段回退到默认值。
type Config struct {
	// MinSimilarity 是相似用户的准入阈值，默认 0.3
	MinSimilarity float64

	// MaxSimilarUsers 是参与推荐的相似用户上限，默认 50
	MaxSimilarUsers int

	// MinSupportingUsers 是每个候选物品所需的最少支持用户数，默认 3
	MinSupportingUsers int

	// DecayFactor 是隐式评分的时间衰减系数（按天），默认 0.1
	DecayFactor float64

	// DiversityWeight / NoveltyWeight 是最终排序的加分权重，默认 0.2 / 0.1
	DiversityWeight float64
	NoveltyWeight   float64
}

func (c Config) withDefaults() Config {
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.3
	}
	if c.MaxSimilarUsers <= 0 {
		c.MaxSimilarUsers = 50
	}
	if c.MinSupportingUsers <= 0 {
		c.MinSupportingUsers = 3
	}
	if c.DecayFactor <= 0 {
		c.DecayFactor = 0.1
	}
	if c.DiversityWeight <= 0 {
		c.DiversityWeight = 0.2
	}
	if c.NoveltyWeight <= 0 {
		c.NoveltyWeight = 0.1
	}
	return c
}

// ProfileSource 提供用户画像，用于画像派生的相似度因子。
// profile.Store 实现此接口。
type ProfileSource interface {
	Get(ctx context.Context, userID string) (*core.UserProfile, error)
}

// Filter 是基于用户的协同过滤（User-CF）。
//
// 核心思想："兴趣相似的用户，喜欢相似的物品"
//
// 算法流程：
//  1. 互动 → 用户×物品矩阵（带时间衰减的隐式评分）
//  2. 五信号加权相似度（Pearson / cosine / Jaccard / 画像因子）
//  3. 取相似度达标的 TopK 用户
//  4. 推荐这些用户喜欢但目标用户未见过的物品
//
// 失败语义：数据不足（相似用户太少、支持用户太少、矩阵为空）
// 一律返回空结果并记录 warning——协同过滤是建议性的，从不阻塞调用方。
type Filter struct {
	mu sync.RWMutex

	// matrix: userID -> itemID -> 互动记录
	matrix map[string]map[string]*ItemInteraction

	// simCache: 双向存储的对称相似度缓存，key 为 "u1|u2"
	simCache map[string]*UserSimilarity

	profiles ProfileSource
	cfg      Config
	log      logrus.FieldLogger

	now func() time.Time // 可注入时钟，便于测试衰减
}

// Option 配置 Filter。
type Option func(*Filter)

// WithProfiles 注入画像源（缺省时画像因子记 0）。
func WithProfiles(p ProfileSource) Option {
	return func(f *Filter) { f.profiles = p }
}

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(f *Filter) { f.log = log }
}

// WithClock 注入时钟（测试用）。
func WithClock(now func() time.Time) Option {
	return func(f *Filter) { f.now = now }
}

// New 创建协同过滤器。
func New(cfg Config, opts ...Option) *Filter {
	f := &Filter{
		matrix:   make(map[string]map[string]*ItemInteraction),
		simCache: make(map[string]*UserSimilarity),
		cfg:      cfg.withDefaults(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// MatrixSize 返回矩阵中的用户数。
func (f *Filter) MatrixSize() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.matrix)
}

// Close 释放资源（当前无后台任务，保留生命周期对称性）。
func (f *Filter) Close() error { return nil }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
