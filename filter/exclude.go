package filter

import (
	"context"

	"github.com/recstack/recstack/core"
)

// ExcludeFilter 过滤掉显式排除的物品（请求级排除列表 + 可选的存储黑名单）。
type ExcludeFilter struct {
	// ItemIDs 是内存中的排除物品 ID 列表（通常来自请求参数）
	ItemIDs []string

	// Store 用于从存储中读取黑名单（可选）
	Store ExcludeStore

	// Key 是 Store 中的黑名单 key（可选）
	Key string
}

// ExcludeStore 是黑名单存储接口。
type ExcludeStore interface {
	// GetExcluded 获取排除物品 ID 列表
	GetExcluded(ctx context.Context, key string) ([]string, error)
}

func (f *ExcludeFilter) Name() string {
	return "filter.exclude"
}

func (f *ExcludeFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}

	for _, id := range f.ItemIDs {
		if item.ID == id {
			return true, nil
		}
	}

	if f.Store != nil && f.Key != "" {
		excluded, err := f.Store.GetExcluded(ctx, f.Key)
		if err == nil {
			for _, id := range excluded {
				if item.ID == id {
					return true, nil
				}
			}
		}
	}

	return false, nil
}
