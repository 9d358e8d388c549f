package filter

import (
	"context"
	"time"

	"github.com/recstack/recstack/core"
)

// ExposedFilter 是已曝光过滤器，过滤掉用户近期已经看过的物品。
// 曝光历史以有序集合存储：member 为物品 ID，score 为曝光时间戳（秒），
// 时间窗口之外的记录由 ZRemRangeByScore 周期性裁剪。
type ExposedFilter struct {
	// Store 用于读写用户曝光历史
	Store core.KeyValueStore

	// KeyPrefix 是 Store 中的 key 前缀，实际 key 为 {KeyPrefix}:{UserID}
	KeyPrefix string

	// TimeWindow 是曝光时间窗口，0 表示不限
	TimeWindow time.Duration
}

func (f *ExposedFilter) Name() string {
	return "filter.exposed"
}

func (f *ExposedFilter) key(userID string) string {
	prefix := f.KeyPrefix
	if prefix == "" {
		prefix = "user:exposed"
	}
	return prefix + ":" + userID
}

// MarkExposed 记录一次曝光，并裁剪窗口外的旧记录。
func (f *ExposedFilter) MarkExposed(ctx context.Context, userID, itemID string, at time.Time) error {
	if f.Store == nil || userID == "" || itemID == "" {
		return nil
	}
	key := f.key(userID)
	if err := f.Store.ZAdd(ctx, key, float64(at.Unix()), itemID); err != nil {
		return err
	}
	if f.TimeWindow > 0 {
		cutoff := at.Add(-f.TimeWindow).Unix()
		return f.Store.ZRemRangeByScore(ctx, key, 0, float64(cutoff))
	}
	return nil
}

func (f *ExposedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID == "" || f.Store == nil {
		return false, nil
	}

	ts, err := f.Store.ZScore(ctx, f.key(rctx.UserID), item.ID)
	if err != nil {
		// 未曝光或存储暂不可用都按保留处理
		return false, nil
	}

	if f.TimeWindow > 0 {
		exposedAt := time.Unix(int64(ts), 0)
		if rctx.Now().Sub(exposedAt) > f.TimeWindow {
			return false, nil
		}
	}
	return true, nil
}
