package filter

import (
	"context"

	"github.com/recstack/recstack/core"
)

// QualityFilter 过滤掉质量分低于阈值的物品。
// 质量分（0-100）来自质量过滤子系统，经 ContentRecord.ToItem 写入 Meta["quality"]。
// 缺失质量分的物品默认保留：质量过滤是约束，不是准入。
type QualityFilter struct {
	// MinQuality 是最低质量分，<= 0 表示不过滤
	MinQuality float64
}

func (f *QualityFilter) Name() string {
	return "filter.quality"
}

func (f *QualityFilter) ShouldFilter(
	_ context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	if f.MinQuality <= 0 {
		return false, nil
	}

	quality, ok := item.GetMetaFloat("quality")
	if !ok {
		return false, nil
	}
	return quality < f.MinQuality, nil
}
