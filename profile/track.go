package profile

import (
	"context"
	"time"

	"github.com/recstack/recstack/core"
)

// 偏好权重的学习步长：每次互动按互动权重 × learnRate 抬升对应维度，
// 随后整体归一化，保证所有权重落在 [0,1]。
const learnRate = 0.2

// 隐式兴趣置信度按证据次数线性增长，confidenceFullAt 次后到 1.0。
const confidenceFullAt = 10

// TrackInteraction 记录一次互动并就地更新画像：
//   - 互动历史（有界 1000 条）
//   - 类别/标签/内容类型偏好权重（归一化）
//   - 每类别使用统计、收藏频率
//   - 隐式兴趣（provenance=implicit，置信度随证据增长）
//
// 画像不存在时自动创建（冷启动即第一次互动）。
func (s *Store) TrackInteraction(ctx context.Context, ev core.InteractionEvent) error {
	if ev.UserID == "" || ev.ItemID == "" {
		return core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: interaction missing user or item id")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	s.mu.Lock()
	p, ok := s.cache[ev.UserID]
	if !ok {
		p = core.NewUserProfile(ev.UserID)
		s.cache[ev.UserID] = p
	}

	p.AddInteraction(ev)

	weight := ev.Weight()
	if ev.Category != "" {
		bumpPreference(p.Preferences.Categories, ev.Category, weight)
		updateCategoryUsage(p, ev)
		inferInterest(p, ev.Category, weight)
	}
	for _, tag := range ev.Tags {
		bumpPreference(p.Preferences.Tags, tag, weight*0.5)
	}
	if ev.ContentType != "" {
		bumpPreference(p.Preferences.ContentTypes, ev.ContentType, weight*0.5)
	}
	if ev.Language != "" {
		bumpPreference(p.Preferences.Languages, ev.Language, weight*0.5)
	}

	if ev.Type == core.InteractionBookmark {
		updateBookmarkCadence(p, ev.Timestamp)
	}

	snapshot := cloneProfile(p)
	s.mu.Unlock()

	// 持久化在锁外进行；失败不回滚缓存
	return s.persist(ctx, snapshot)
}

// TrackSearch 记录一次搜索，并把查询词作为弱信号计入标签偏好。
func (s *Store) TrackSearch(ctx context.Context, userID, query string) error {
	if userID == "" || query == "" {
		return core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: search missing user or query")
	}

	s.mu.Lock()
	p, ok := s.cache[userID]
	if !ok {
		p = core.NewUserProfile(userID)
		s.cache[userID] = p
	}
	p.AddSearch(query)
	bumpPreference(p.Preferences.Tags, query, 0.05)
	snapshot := cloneProfile(p)
	s.mu.Unlock()

	return s.persist(ctx, snapshot)
}

// SetExplicitInterest 写入显式声明的兴趣（provenance=explicit，置信度 1）。
func (s *Store) SetExplicitInterest(ctx context.Context, userID, topic string, score float64) error {
	if userID == "" || topic == "" {
		return core.NewDomainError(core.ModuleProfile, core.ErrorCodeInvalidInput, "profile: interest missing user or topic")
	}
	score = clamp01(score)

	s.mu.Lock()
	p, ok := s.cache[userID]
	if !ok {
		p = core.NewUserProfile(userID)
		s.cache[userID] = p
	}
	p.UpdateInterest(topic, core.Interest{
		Score:      score,
		Confidence: 1,
		Provenance: core.ProvenanceExplicit,
	})
	snapshot := cloneProfile(p)
	s.mu.Unlock()

	return s.persist(ctx, snapshot)
}

func (s *Store) persist(ctx context.Context, p *core.UserProfile) error {
	if s.kv == nil {
		return nil
	}
	return s.Put(ctx, p)
}

// bumpPreference 抬升一个偏好维度并归一化到 [0,1]。
// 归一化按最大值缩放：最强的偏好恒为 1，其余维度按相对强度分布。
func bumpPreference(prefs map[string]float64, key string, weight float64) {
	if prefs == nil {
		return
	}
	prefs[key] += weight * learnRate

	max := 0.0
	for _, v := range prefs {
		if v > max {
			max = v
		}
	}
	if max > 1 {
		for k, v := range prefs {
			prefs[k] = v / max
		}
	}
}

func updateCategoryUsage(p *core.UserProfile, ev core.InteractionEvent) {
	usage := p.Behavior.CategoryUsage[ev.Category]
	usage.Interactions++
	usage.TotalDwell += int64(ev.Dwell.Seconds())
	usage.LastUsed = ev.Timestamp
	p.Behavior.CategoryUsage[ev.Category] = usage
}

// inferInterest 从互动推断隐式兴趣。显式兴趣不会被隐式信号覆盖。
func inferInterest(p *core.UserProfile, topic string, weight float64) {
	existing, ok := p.Interests[topic]
	if ok && existing.Provenance == core.ProvenanceExplicit {
		return
	}

	score := weight
	confidence := 1.0 / confidenceFullAt
	if ok {
		// 指数滑动：新证据占 30%
		score = existing.Score*0.7 + weight*0.3
		confidence = existing.Confidence + 1.0/confidenceFullAt
	}
	p.UpdateInterest(topic, core.Interest{
		Score:      clamp01(score),
		Confidence: clamp01(confidence),
		Provenance: core.ProvenanceImplicit,
	})
}

// updateBookmarkCadence 滚动估计收藏频率（次/天）。
func updateBookmarkCadence(p *core.UserProfile, at time.Time) {
	days := at.Sub(p.CreatedAt).Hours() / 24
	if days < 1 {
		days = 1
	}
	bookmarks := 0
	for _, ev := range p.Behavior.InteractionHistory {
		if ev.Type == core.InteractionBookmark {
			bookmarks++
		}
	}
	p.Behavior.BookmarkCadence = float64(bookmarks) / days
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
