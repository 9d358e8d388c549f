package collab

import (
	"context"
	"math"
	"time"

	"github.com/recstack/recstack/core"
)

// recordedInteraction 是矩阵中的一条原始互动。
type recordedInteraction struct {
	Type   core.InteractionType
	Weight float64
	At     time.Time
}

// ItemInteraction 是用户对单个物品的互动聚合。
// 隐式评分永远由当前互动列表即时推导，不单独存储。
type ItemInteraction struct {
	interactions []recordedInteraction

	Category string
	Tags     []string
	LastAt   time.Time
}

// ImplicitRating 计算带时间衰减的隐式评分，范围 [0,1]：
//
//	rating = min(Σ weight, 5)/5 × exp(-decay × daysSinceLast)
//
// 多次互动累加权重（封顶 5），距最近一次互动的天数做指数衰减。
func (ii *ItemInteraction) ImplicitRating(now time.Time, decay float64) float64 {
	sum := 0.0
	for _, it := range ii.interactions {
		sum += it.Weight
	}
	if sum == 0 {
		return 0
	}
	if sum > 5 {
		sum = 5
	}
	days := now.Sub(ii.LastAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return sum / 5 * math.Exp(-decay*days)
}

// RecordInteraction 把一次互动写入用户×物品矩阵。
// 旧互动按同一衰减系数连续衰减，衰减后权重低于 0.01 的条目被修剪，
// 矩阵因此有界而无需整行硬删除。
func (f *Filter) RecordInteraction(ctx context.Context, ev core.InteractionEvent) error {
	if ev.UserID == "" || ev.ItemID == "" {
		return core.NewDomainError(core.ModuleCollab, core.ErrorCodeInvalidInput, "collab: interaction missing user or item id")
	}
	weight := ev.Weight()
	if weight == 0 {
		return core.NewDomainError(core.ModuleCollab, core.ErrorCodeInvalidInput, "collab: unknown interaction type "+string(ev.Type))
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = f.now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.matrix[ev.UserID]
	if !ok {
		row = make(map[string]*ItemInteraction)
		f.matrix[ev.UserID] = row
	}
	ii, ok := row[ev.ItemID]
	if !ok {
		ii = &ItemInteraction{}
		row[ev.ItemID] = ii
	}

	ii.interactions = append(ii.interactions, recordedInteraction{
		Type:   ev.Type,
		Weight: weight,
		At:     at,
	})
	if at.After(ii.LastAt) {
		ii.LastAt = at
	}
	if ev.Category != "" {
		ii.Category = ev.Category
	}
	if len(ev.Tags) > 0 {
		ii.Tags = append([]string(nil), ev.Tags...)
	}

	f.pruneLocked(ev.UserID, ev.ItemID)
	return nil
}

// pruneLocked 修剪衰减后权重低于 0.01 的互动，条目清空时整体移除。
// 调用方必须持有写锁。
func (f *Filter) pruneLocked(userID, itemID string) {
	now := f.now()
	row := f.matrix[userID]
	ii := row[itemID]

	kept := ii.interactions[:0]
	for _, it := range ii.interactions {
		days := now.Sub(it.At).Hours() / 24
		if days < 0 {
			days = 0
		}
		if it.Weight*math.Exp(-f.cfg.DecayFactor*days) >= 0.01 {
			kept = append(kept, it)
		}
	}
	ii.interactions = kept

	if len(ii.interactions) == 0 {
		delete(row, itemID)
		if len(row) == 0 {
			delete(f.matrix, userID)
		}
	}
}

// Rating 返回用户对物品的当前隐式评分；无互动时返回 0。
func (f *Filter) Rating(userID, itemID string) float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ii, ok := f.matrix[userID][itemID]
	if !ok {
		return 0
	}
	return ii.ImplicitRating(f.now(), f.cfg.DecayFactor)
}

// ratingsLocked 返回用户整行的隐式评分。调用方必须持锁。
func (f *Filter) ratingsLocked(userID string, now time.Time) map[string]float64 {
	row, ok := f.matrix[userID]
	if !ok {
		return nil
	}
	out := make(map[string]float64, len(row))
	for itemID, ii := range row {
		if r := ii.ImplicitRating(now, f.cfg.DecayFactor); r > 0 {
			out[itemID] = r
		}
	}
	return out
}
