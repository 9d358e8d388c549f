package collab

import (
	"context"
	"sort"
	"time"

	"github.com/recstack/recstack/core"
)

// Recommendation 是协同过滤产出的一条候选。
type Recommendation struct {
	ItemID   string `json:"item_id"`
	Category string `json:"category,omitempty"`

	// Predicted 是相似用户评分的加权预测，范围 [0,1]
	Predicted float64 `json:"predicted"`

	// Score 是参与最终排序的得分：预测值加上多样性/新颖性加分
	Score float64 `json:"score"`

	// Confidence 由支持用户数量和平均相似度折算
	Confidence float64 `json:"confidence"`

	Supporters      int     `json:"supporters"`
	AvgSupporterSim float64 `json:"avg_supporter_sim"`
	Novelty         float64 `json:"novelty"`
	Diversity       float64 `json:"diversity"`
}

// similarNeighbor 是一个达标的相似用户及其评分快照。
type similarNeighbor struct {
	userID  string
	sim     float64
	ratings map[string]float64
}

// RecommendFor 为用户生成协同过滤候选。
//
// 数据不足（目标用户无互动、相似用户不够、候选支持用户不够）时
// 返回空切片而非错误：协同过滤只是引擎的一路召回，缺数据不是故障。
func (f *Filter) RecommendFor(ctx context.Context, userID string, count int, exclude map[string]bool) ([]*Recommendation, error) {
	if userID == "" {
		return nil, core.NewDomainError(core.ModuleCollab, core.ErrorCodeInvalidInput, "collab: empty user id")
	}
	if count <= 0 {
		count = 10
	}

	f.mu.RLock()
	now := f.now()
	targetRatings := f.ratingsLocked(userID, now)
	others := make([]string, 0, len(f.matrix))
	for uid := range f.matrix {
		if uid != userID {
			others = append(others, uid)
		}
	}
	f.mu.RUnlock()

	if len(targetRatings) == 0 {
		f.log.WithField("user_id", userID).Warn("collab: no interaction history, returning empty")
		return []*Recommendation{}, nil
	}

	neighbors := f.similarNeighbors(ctx, userID, others, now)
	if len(neighbors) == 0 {
		f.log.WithField("user_id", userID).Warn("collab: no similar users above threshold, returning empty")
		return []*Recommendation{}, nil
	}

	recs := f.aggregate(userID, targetRatings, neighbors, exclude)
	if len(recs) == 0 {
		f.log.WithFields(map[string]any{
			"user_id":   userID,
			"neighbors": len(neighbors),
		}).Warn("collab: no candidate with enough supporting users, returning empty")
		return []*Recommendation{}, nil
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		if recs[i].Confidence != recs[j].Confidence {
			return recs[i].Confidence > recs[j].Confidence
		}
		return recs[i].ItemID < recs[j].ItemID
	})
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

// similarNeighbors 计算目标用户对全体用户的相似度，
// 过滤低于阈值的，按相似度降序取 MaxSimilarUsers 个。
func (f *Filter) similarNeighbors(ctx context.Context, userID string, others []string, now time.Time) []similarNeighbor {
	var neighbors []similarNeighbor
	for _, uid := range others {
		sim, err := f.Similarity(ctx, userID, uid)
		if err != nil {
			continue
		}
		if sim.Similarity < f.cfg.MinSimilarity {
			continue
		}
		f.mu.RLock()
		ratings := f.ratingsLocked(uid, now)
		f.mu.RUnlock()
		if len(ratings) == 0 {
			continue
		}
		neighbors = append(neighbors, similarNeighbor{userID: uid, sim: sim.Similarity, ratings: ratings})
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].sim != neighbors[j].sim {
			return neighbors[i].sim > neighbors[j].sim
		}
		return neighbors[i].userID < neighbors[j].userID
	})
	if len(neighbors) > f.cfg.MaxSimilarUsers {
		neighbors = neighbors[:f.cfg.MaxSimilarUsers]
	}
	return neighbors
}

// candidate 聚合一个候选物品的支持证据。
type candidate struct {
	weightedSum float64
	simSum      float64
	supporters  []similarNeighbor
}

// aggregate 聚合相似用户的评分为候选集合：
//
//	predicted = Σ(sim × rating) / Σ sim
//	confidence = min(supporters/MaxSimilarUsers × avgSim, 1)
//	score = predicted + diversityWeight×diversity + noveltyWeight×novelty
func (f *Filter) aggregate(userID string, targetRatings map[string]float64, neighbors []similarNeighbor, exclude map[string]bool) []*Recommendation {
	candidates := make(map[string]*candidate)
	for _, nb := range neighbors {
		for itemID, rating := range nb.ratings {
			if _, seen := targetRatings[itemID]; seen {
				continue
			}
			if exclude[itemID] {
				continue
			}
			c, ok := candidates[itemID]
			if !ok {
				c = &candidate{}
				candidates[itemID] = c
			}
			c.weightedSum += nb.sim * rating
			c.simSum += nb.sim
			c.supporters = append(c.supporters, nb)
		}
	}

	recs := make([]*Recommendation, 0, len(candidates))
	for itemID, c := range candidates {
		if len(c.supporters) < f.cfg.MinSupportingUsers {
			continue
		}
		predicted := c.weightedSum / c.simSum
		avgSim := c.simSum / float64(len(c.supporters))
		novelty := 1 - avgSim
		diversity := f.supporterDiversity(c.supporters)

		recs = append(recs, &Recommendation{
			ItemID:          itemID,
			Category:        f.itemCategory(itemID, c.supporters),
			Predicted:       clamp01(predicted),
			Score:           clamp01(predicted) + f.cfg.DiversityWeight*diversity + f.cfg.NoveltyWeight*novelty,
			Confidence:      clamp01(float64(len(c.supporters)) / float64(f.cfg.MaxSimilarUsers) * avgSim),
			Supporters:      len(c.supporters),
			AvgSupporterSim: avgSim,
			Novelty:         novelty,
			Diversity:       diversity,
		})
	}
	return recs
}

// supporterDiversity 度量支持用户口味的分散程度：
// 取各支持用户的主类别，1 - HHI（赫芬达尔指数）。
// 支持用户来自同一类别圈子时趋近 0，口味分散时趋近 1。
func (f *Filter) supporterDiversity(supporters []similarNeighbor) float64 {
	counts := make(map[string]int)
	total := 0
	f.mu.RLock()
	for _, nb := range supporters {
		cat := f.dominantCategoryLocked(nb.userID)
		if cat == "" {
			continue
		}
		counts[cat]++
		total++
	}
	f.mu.RUnlock()

	if total == 0 {
		return 0
	}
	hhi := 0.0
	for _, n := range counts {
		share := float64(n) / float64(total)
		hhi += share * share
	}
	return 1 - hhi
}

// dominantCategoryLocked 返回用户互动最多的类别。调用方必须持锁。
func (f *Filter) dominantCategoryLocked(userID string) string {
	counts := make(map[string]int)
	for _, ii := range f.matrix[userID] {
		if ii.Category != "" {
			counts[ii.Category]++
		}
	}
	best, bestN := "", 0
	for cat, n := range counts {
		if n > bestN || (n == bestN && cat < best) {
			best, bestN = cat, n
		}
	}
	return best
}

// itemCategory 从任一支持用户的互动记录里取物品类别。
func (f *Filter) itemCategory(itemID string, supporters []similarNeighbor) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, nb := range supporters {
		if ii, ok := f.matrix[nb.userID][itemID]; ok && ii.Category != "" {
			return ii.Category
		}
	}
	return ""
}
