package collab

import (
	"context"
	"math"
	"time"

	"github.com/recstack/recstack/core"
)

// 五信号相似度的固定权重，合计 1.0。
const (
	weightPearson    = 0.25
	weightCosine     = 0.25
	weightJaccard    = 0.15
	weightCategory   = 0.15
	weightTag        = 0.10
	weightBehavioral = 0.10
)

// UserSimilarity 是一对用户的相似度结果。
type UserSimilarity struct {
	UserA string `json:"user_a"`
	UserB string `json:"user_b"`

	// Similarity 是五信号加权合成后的相似度，范围 [0,1]
	Similarity float64 `json:"similarity"`

	// Factors 保留各信号的原始得分，便于解释与调参
	Factors map[string]float64 `json:"factors"`

	// Confidence 反映证据量：共同物品占比 × 矩阵规模因子
	Confidence float64 `json:"confidence"`

	ComputedAt time.Time `json:"computed_at"`
}

func simKey(a, b string) string { return a + "|" + b }

// Similarity 返回两个用户的相似度，懒计算并双向缓存。
// 缓存一直有效，直到 Invalidate 显式失效；评分衰减不触发重算。
func (f *Filter) Similarity(ctx context.Context, userA, userB string) (*UserSimilarity, error) {
	if userA == "" || userB == "" {
		return nil, core.NewDomainError(core.ModuleCollab, core.ErrorCodeInvalidInput, "collab: empty user id")
	}
	if userA == userB {
		return nil, core.NewDomainError(core.ModuleCollab, core.ErrorCodeInvalidInput, "collab: self similarity")
	}

	f.mu.RLock()
	cached, ok := f.simCache[simKey(userA, userB)]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// 双重检查：写锁等待期间可能已被并发计算
	if cached, ok := f.simCache[simKey(userA, userB)]; ok {
		return cached, nil
	}

	sim := f.computeLocked(ctx, userA, userB)
	f.simCache[simKey(userA, userB)] = sim
	f.simCache[simKey(userB, userA)] = &UserSimilarity{
		UserA:      userB,
		UserB:      userA,
		Similarity: sim.Similarity,
		Factors:    sim.Factors,
		Confidence: sim.Confidence,
		ComputedAt: sim.ComputedAt,
	}
	return sim, nil
}

// Invalidate 清除涉及某用户的全部相似度缓存。
// 通常在该用户积累了一批新互动后调用。
func (f *Filter) Invalidate(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, sim := range f.simCache {
		if sim.UserA == userID || sim.UserB == userID {
			delete(f.simCache, key)
		}
	}
}

// computeLocked 计算五信号加权相似度。调用方必须持有写锁。
func (f *Filter) computeLocked(ctx context.Context, userA, userB string) *UserSimilarity {
	now := f.now()
	ratingsA := f.ratingsLocked(userA, now)
	ratingsB := f.ratingsLocked(userB, now)

	shared := sharedItems(ratingsA, ratingsB)

	factors := map[string]float64{
		"pearson":          pearson(ratingsA, ratingsB, shared),
		"cosine":           cosine(ratingsA, ratingsB),
		"jaccard":          jaccard(ratingsA, ratingsB),
		"category_overlap": 0,
		"tag_similarity":   0,
		"behavioral":       0,
	}

	if f.profiles != nil {
		profA, errA := f.profiles.Get(ctx, userA)
		profB, errB := f.profiles.Get(ctx, userB)
		if errA == nil && errB == nil {
			factors["category_overlap"] = vectorCosine(profA.Preferences.Categories, profB.Preferences.Categories)
			factors["tag_similarity"] = keyJaccard(profA.Preferences.Tags, profB.Preferences.Tags)
			factors["behavioral"] = behavioralAffinity(profA, profB)
		}
	}

	combined := factors["pearson"]*weightPearson +
		factors["cosine"]*weightCosine +
		factors["jaccard"]*weightJaccard +
		factors["category_overlap"]*weightCategory +
		factors["tag_similarity"]*weightTag +
		factors["behavioral"]*weightBehavioral

	return &UserSimilarity{
		UserA:      userA,
		UserB:      userB,
		Similarity: clamp01(combined),
		Factors:    factors,
		Confidence: f.confidenceLocked(len(shared), len(ratingsA), len(ratingsB)),
		ComputedAt: now,
	}
}

// confidenceLocked 按证据量折算置信度：
// 共同物品占双方较小一侧的比例，乘以矩阵规模因子（10 个用户封顶）。
func (f *Filter) confidenceLocked(shared, totalA, totalB int) float64 {
	if shared == 0 || totalA == 0 || totalB == 0 {
		return 0
	}
	ratioA := float64(shared) / float64(totalA)
	ratioB := float64(shared) / float64(totalB)
	ratio := math.Min(ratioA, ratioB)

	scale := float64(len(f.matrix)) / 10
	if scale > 1 {
		scale = 1
	}
	return clamp01(ratio * scale)
}

func sharedItems(a, b map[string]float64) []string {
	var shared []string
	for item := range a {
		if _, ok := b[item]; ok {
			shared = append(shared, item)
		}
	}
	return shared
}

// pearson 计算两用户在共同物品上的 Pearson 相关系数，负相关截断为 0。
func pearson(a, b map[string]float64, shared []string) float64 {
	n := float64(len(shared))
	if n < 2 {
		return 0
	}
	var sumA, sumB, sumA2, sumB2, sumAB float64
	for _, item := range shared {
		ra, rb := a[item], b[item]
		sumA += ra
		sumB += rb
		sumA2 += ra * ra
		sumB2 += rb * rb
		sumAB += ra * rb
	}
	num := sumAB - sumA*sumB/n
	den := math.Sqrt((sumA2 - sumA*sumA/n) * (sumB2 - sumB*sumB/n))
	if den == 0 {
		return 0
	}
	r := num / den
	if r < 0 {
		return 0
	}
	return r
}

// cosine 计算两用户评分向量的余弦相似度（全量物品空间）。
func cosine(a, b map[string]float64) float64 {
	return vectorCosine(a, b)
}

func vectorCosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for k, va := range a {
		normA += va * va
		if vb, ok := b[k]; ok {
			dot += va * vb
		}
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccard 计算两用户互动物品集合的 Jaccard 系数。
func jaccard(a, b map[string]float64) float64 {
	return keyJaccard(a, b)
}

func keyJaccard(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// behavioralAffinity 比较两用户的行为节奏：收藏频率越接近得分越高。
func behavioralAffinity(a, b *core.UserProfile) float64 {
	ca, cb := a.Behavior.BookmarkCadence, b.Behavior.BookmarkCadence
	if ca == 0 && cb == 0 {
		return 0
	}
	max := math.Max(ca, cb)
	return 1 - math.Abs(ca-cb)/max
}
