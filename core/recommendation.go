package core

import "time"

// Strategy 是推荐策略类型。
type Strategy string

const (
	StrategyContent       Strategy = "content"       // 基于内容：偏好向量与物品特征的加权重叠
	StrategyCollaborative Strategy = "collaborative" // 协同过滤：相似用户的加权预测
	StrategyTrending      Strategy = "trending"      // 热点：时间窗口内的多因子热度
	StrategyHybrid        Strategy = "hybrid"        // 混合：按权重合并前三种策略的候选
)

// 各策略推荐结果的缓存存活时间。
// hybrid 的 TTL 取各贡献来源中最短的（trending 6h）。
var strategyTTLs = map[Strategy]time.Duration{
	StrategyContent:       24 * time.Hour,
	StrategyCollaborative: 12 * time.Hour,
	StrategyTrending:      6 * time.Hour,
	StrategyHybrid:        6 * time.Hour,
}

// StrategyTTL 返回某策略推荐的存活时间。
func StrategyTTL(s Strategy) time.Duration {
	if ttl, ok := strategyTTLs[s]; ok {
		return ttl
	}
	return 6 * time.Hour
}

// RecommendationMetadata 是推荐结果的附加信息，供展示层与效果追踪使用。
type RecommendationMetadata struct {
	Category          string   `json:"category,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	Quality           float64  `json:"quality,omitempty"`            // 来源内容的质量分 0-100
	Freshness         float64  `json:"freshness,omitempty"`          // 新鲜度 [0,1]
	Popularity        float64  `json:"popularity,omitempty"`         // 热度 [0,1]
	PersonalRelevance float64  `json:"personal_relevance,omitempty"` // 个性化相关度 [0,1]
	RelatedItems      []string `json:"related_items,omitempty"`
}

// Recommendation 是输出给调用方的最终推荐。
// 创建后不可变；超过策略 TTL 后从任何缓存中淘汰。
type Recommendation struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Strategy   Strategy               `json:"strategy"`
	TargetID   string                 `json:"target_id"`  // 物品 ID 或 URL
	Score      float64                `json:"score"`      // [0,1]
	Confidence float64                `json:"confidence"` // [0,1]，= Score × 画像完整度
	Reasoning  []string               `json:"reasoning"`  // 有序的人类可读理由
	Metadata   RecommendationMetadata `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
	ExpiresAt  time.Time              `json:"expires_at"`
}

// Expired 判断推荐是否已过期。
func (r *Recommendation) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
