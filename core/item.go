package core

import "github.com/recstack/recstack/pkg/utils"

// Item 是推荐链路中的统一承载结构：特征、分数、元信息、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
// 最终输出给调用方时，Item 会被封装为 Recommendation（带置信度与理由）。
type Item struct {
	ID       string
	Score    float64
	Features map[string]float64
	Meta     map[string]any
	Labels   map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:       id,
		Score:    0,
		Features: make(map[string]float64),
		Meta:     make(map[string]any),
		Labels:   make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// GetMetaString 读取 Meta 中的字符串字段，不存在或类型不符时返回空串。
func (it *Item) GetMetaString(key string) string {
	if it.Meta == nil {
		return ""
	}
	if s, ok := it.Meta[key].(string); ok {
		return s
	}
	return ""
}

// GetMetaFloat 读取 Meta 中的数值字段。
func (it *Item) GetMetaFloat(key string) (float64, bool) {
	if it.Meta == nil {
		return 0, false
	}
	switch v := it.Meta[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
