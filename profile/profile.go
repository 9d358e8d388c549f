package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/recstack/recstack/core"
)

// Store 是用户画像的唯一属主（UserProfileStore）。
//
// 职责：
//   - 持有每用户的偏好/行为/兴趣状态，是其他所有组件的叶子依赖
//   - 每次被追踪的互动都就地更新画像（偏好权重、行为统计、隐式兴趣）
//   - 画像只会被覆盖，不会被自动删除
//
// 持久化：
//   - 画像以 JSON 写入注入的 core.Store（可选）；读路径优先命中内存缓存
//   - 存储失败降级为仅缓存并记录 warning，画像更新永不因存储失败而丢弃
type Store struct {
	mu    sync.RWMutex
	cache map[string]*core.UserProfile

	kv  core.Store
	log logrus.FieldLogger

	keyPrefix string
}

// Option 配置 Store。
type Option func(*Store)

// WithBackend 注入持久化后端。
func WithBackend(kv core.Store) Option {
	return func(s *Store) { s.kv = kv }
}

// WithLogger 注入日志器。
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Store) { s.log = log }
}

// WithKeyPrefix 覆盖持久化 key 前缀（默认 "profile"）。
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// NewStore 创建用户画像存储。
func NewStore(opts ...Option) *Store {
	s := &Store{
		cache:     make(map[string]*core.UserProfile),
		log:       logrus.StandardLogger(),
		keyPrefix: "profile",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(userID string) string {
	return s.keyPrefix + ":" + userID
}

// Get 返回用户画像；不存在时返回 (nil, NOT_FOUND)。
// 返回的是内部副本，调用方可安全读取，写回需通过 Put/Track 系列方法。
func (s *Store) Get(ctx context.Context, userID string) (*core.UserProfile, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: empty user id")
	}

	s.mu.RLock()
	p, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return cloneProfile(p), nil
	}

	if s.kv != nil {
		data, err := s.kv.Get(ctx, s.key(userID))
		if err == nil {
			var loaded core.UserProfile
			if jsonErr := json.Unmarshal(data, &loaded); jsonErr == nil {
				normalizeProfile(&loaded)
				s.mu.Lock()
				s.cache[userID] = &loaded
				s.mu.Unlock()
				return cloneProfile(&loaded), nil
			}
		} else if !core.IsStoreNotFound(err) {
			s.log.WithField("user_id", userID).WithError(err).Warn("profile load failed, falling back to cache")
		}
	}

	return nil, core.NewDomainError(core.ModuleProfile, core.ErrorCodeNotFound,
		fmt.Sprintf("profile: user %s not found", userID))
}

// GetOrCreate 返回用户画像，不存在时创建空画像。
func (s *Store) GetOrCreate(ctx context.Context, userID string) (*core.UserProfile, error) {
	p, err := s.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !core.IsNotFound(err) {
		return nil, err
	}
	fresh := core.NewUserProfile(userID)
	if putErr := s.Put(ctx, fresh); putErr != nil {
		return nil, putErr
	}
	return cloneProfile(fresh), nil
}

// Put 覆盖写入画像。
func (s *Store) Put(ctx context.Context, p *core.UserProfile) error {
	if p == nil || p.UserID == "" {
		return core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: nil profile or empty user id")
	}

	s.mu.Lock()
	s.cache[p.UserID] = cloneProfile(p)
	s.mu.Unlock()

	if s.kv != nil {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("profile: marshal %s: %w", p.UserID, err)
		}
		if err := s.kv.Set(ctx, s.key(p.UserID), data); err != nil {
			s.log.WithField("user_id", p.UserID).WithError(err).Warn("profile persist failed, cache retained")
		}
	}
	return nil
}

// PreferenceVector 将画像的偏好展开为带前缀的特征向量，
// 供内容召回做加权重叠计算：category:xxx / tag:xxx / type:xxx / lang:xxx。
func PreferenceVector(p *core.UserProfile) map[string]float64 {
	if p == nil {
		return nil
	}
	out := make(map[string]float64,
		len(p.Preferences.Categories)+len(p.Preferences.Tags)+len(p.Preferences.ContentTypes)+len(p.Preferences.Languages))
	for k, v := range p.Preferences.Categories {
		out["category:"+k] = v
	}
	for k, v := range p.Preferences.Tags {
		out["tag:"+k] = v
	}
	for k, v := range p.Preferences.ContentTypes {
		out["type:"+k] = v
	}
	for k, v := range p.Preferences.Languages {
		out["lang:"+k] = v
	}
	return out
}

// normalizeProfile 补齐反序列化后可能为 nil 的映射。
// 其他写入方产出的 JSON 可以省略任意字段，而就地更新路径假定映射非 nil。
func normalizeProfile(p *core.UserProfile) {
	if p.Preferences.Categories == nil {
		p.Preferences.Categories = make(map[string]float64)
	}
	if p.Preferences.Tags == nil {
		p.Preferences.Tags = make(map[string]float64)
	}
	if p.Preferences.ContentTypes == nil {
		p.Preferences.ContentTypes = make(map[string]float64)
	}
	if p.Preferences.Languages == nil {
		p.Preferences.Languages = make(map[string]float64)
	}
	if p.Behavior.CategoryUsage == nil {
		p.Behavior.CategoryUsage = make(map[string]core.CategoryUsage)
	}
	if p.Interests == nil {
		p.Interests = make(map[string]core.Interest)
	}
}

func cloneProfile(p *core.UserProfile) *core.UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Preferences.Categories = cloneFloatMap(p.Preferences.Categories)
	cp.Preferences.Tags = cloneFloatMap(p.Preferences.Tags)
	cp.Preferences.ContentTypes = cloneFloatMap(p.Preferences.ContentTypes)
	cp.Preferences.Languages = cloneFloatMap(p.Preferences.Languages)

	cp.Behavior.InteractionHistory = append([]core.InteractionEvent(nil), p.Behavior.InteractionHistory...)
	cp.Behavior.SearchHistory = append([]string(nil), p.Behavior.SearchHistory...)
	cp.Behavior.CategoryUsage = make(map[string]core.CategoryUsage, len(p.Behavior.CategoryUsage))
	for k, v := range p.Behavior.CategoryUsage {
		cp.Behavior.CategoryUsage[k] = v
	}

	cp.Interests = make(map[string]core.Interest, len(p.Interests))
	for k, v := range p.Interests {
		cp.Interests[k] = v
	}
	return &cp
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
