package engine

import (
	"context"
	"fmt"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/trending"
)

// 内容召回的重叠权重：类别 0.4、标签 0.3、内容类型 0.3。
const (
	overlapCategory = 0.4
	overlapTags     = 0.3
	overlapType     = 0.3
)

// 混合策略合并三路候选时的来源权重。
const (
	hybridContentWeight  = 0.4
	hybridCollabWeight   = 0.3
	hybridTrendingWeight = 0.2
)

// contentBased 按画像偏好向量对目录候选做加权重叠评分。
// 冷启动（无画像）返回空：没有偏好就没有内容召回的依据。
func (e *Engine) contentBased(ctx context.Context, userID string, prof *core.UserProfile, count int, exclude map[string]bool) ([]*core.Recommendation, error) {
	if prof == nil || e.catalog == nil {
		return nil, nil
	}

	records, err := e.catalog.List(ctx, 0)
	if err != nil {
		return nil, err
	}

	var recs []*core.Recommendation
	for _, rec := range records {
		if exclude[rec.ID] {
			continue
		}
		score, reasons := contentScore(prof, rec)
		if score <= e.cfg.ContentKeepThreshold {
			continue
		}
		recs = append(recs, &core.Recommendation{
			Strategy:  core.StrategyContent,
			TargetID:  rec.ID,
			Score:     score,
			Reasoning: reasons,
			Metadata: core.RecommendationMetadata{
				Category:          rec.Category,
				Tags:              append([]string(nil), rec.Tags...),
				Quality:           rec.Quality,
				PersonalRelevance: score,
			},
		})
		if len(recs) >= count {
			break
		}
	}
	return recs, nil
}

// contentScore 计算偏好与内容的加权重叠，并给出可读的理由。
func contentScore(prof *core.UserProfile, rec *core.ContentRecord) (float64, []string) {
	var reasons []string

	catScore := prof.Preferences.Categories[rec.Category]
	if catScore > 0 {
		reasons = append(reasons, fmt.Sprintf("matches your interest in %s", rec.Category))
	}

	tagScore := 0.0
	if len(rec.Tags) > 0 {
		matched := 0
		for _, tag := range rec.Tags {
			if w, ok := prof.Preferences.Tags[tag]; ok {
				tagScore += w
				matched++
			}
		}
		tagScore /= float64(len(rec.Tags))
		if matched > 0 {
			reasons = append(reasons, fmt.Sprintf("%d of its topics overlap your reading history", matched))
		}
	}

	typeScore := prof.Preferences.ContentTypes[rec.ContentType]
	if typeScore > 0 {
		reasons = append(reasons, fmt.Sprintf("you often read %s content", rec.ContentType))
	}

	score := overlapCategory*catScore + overlapTags*tagScore + overlapType*typeScore
	return score, reasons
}

// collaborative 把协同过滤候选映射为推荐。无数据时上游已返回空。
func (e *Engine) collaborative(ctx context.Context, userID string, count int, exclude map[string]bool) ([]*core.Recommendation, error) {
	if e.collab == nil {
		return nil, nil
	}
	candidates, err := e.collab.RecommendFor(ctx, userID, count, exclude)
	if err != nil {
		return nil, err
	}
	recs := make([]*core.Recommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, &core.Recommendation{
			Strategy: core.StrategyCollaborative,
			TargetID: c.ItemID,
			Score:    clamp01(c.Score),
			Reasoning: []string{
				fmt.Sprintf("%d readers with similar taste engaged with this", c.Supporters),
			},
			Metadata: core.RecommendationMetadata{
				Category:          c.Category,
				PersonalRelevance: c.Predicted,
			},
		})
	}
	return recs, nil
}

// trendingRecall 把热点候选映射为推荐。
func (e *Engine) trendingRecall(ctx context.Context, userID string, count int, exclude map[string]bool) ([]*core.Recommendation, error) {
	if e.trending == nil {
		return nil, nil
	}
	items, err := e.trending.Discover(ctx, trending.Query{
		Window: e.cfg.TrendingWindow,
		Limit:  count + len(exclude),
	})
	if err != nil {
		return nil, err
	}
	var recs []*core.Recommendation
	for _, it := range items {
		if exclude[it.ID] {
			continue
		}
		reason := "trending now"
		if it.Category != "" {
			reason = fmt.Sprintf("trending in %s", it.Category)
		}
		recs = append(recs, &core.Recommendation{
			Strategy:  core.StrategyTrending,
			TargetID:  it.ID,
			Score:     clamp01(it.Score.Overall),
			Reasoning: []string{reason},
			Metadata: core.RecommendationMetadata{
				Category:   it.Category,
				Tags:       append([]string(nil), it.Tags...),
				Freshness:  it.Score.Freshness,
				Popularity: it.Score.Popularity,
			},
		})
		if len(recs) >= count {
			break
		}
	}
	return recs, nil
}

// hybrid 按来源权重合并三路候选：
// 同一物品的得分加权累计、理由串接；
// 合并后按类别频次加多样性分，避免单一类别垄断。
func (e *Engine) hybrid(pools map[core.Strategy][]*core.Recommendation) []*core.Recommendation {
	weights := map[core.Strategy]float64{
		core.StrategyContent:       hybridContentWeight,
		core.StrategyCollaborative: hybridCollabWeight,
		core.StrategyTrending:      hybridTrendingWeight,
	}

	merged := make(map[string]*core.Recommendation)
	var order []string
	for _, s := range []core.Strategy{core.StrategyContent, core.StrategyCollaborative, core.StrategyTrending} {
		w := weights[s]
		for _, rec := range pools[s] {
			m, ok := merged[rec.TargetID]
			if !ok {
				m = &core.Recommendation{
					Strategy: core.StrategyHybrid,
					TargetID: rec.TargetID,
					Metadata: rec.Metadata,
				}
				merged[rec.TargetID] = m
				order = append(order, rec.TargetID)
			}
			m.Score += w * rec.Score
			m.Reasoning = append(m.Reasoning, rec.Reasoning...)
			if m.Metadata.Category == "" {
				m.Metadata.Category = rec.Metadata.Category
			}
		}
	}

	categoryFreq := make(map[string]int)
	for _, id := range order {
		categoryFreq[merged[id].Metadata.Category]++
	}

	out := make([]*core.Recommendation, 0, len(order))
	for _, id := range order {
		m := merged[id]
		if freq := categoryFreq[m.Metadata.Category]; freq > 0 {
			m.Score += (1 / float64(freq)) * e.cfg.DiversityWeight
		}
		out = append(out, m)
	}
	return out
}
