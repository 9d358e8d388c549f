package core

import (
	"time"

	"github.com/recstack/recstack/pkg/utils"
)

// RecommendContext 承载用户/场景/实时信息，贯穿整个链路透传。
type RecommendContext struct {
	UserID   string
	DeviceID string
	Scene    string // home / feed / detail / search ...

	// User 是强类型用户画像；为空时各策略按冷启动处理
	User *UserProfile

	// CurrentItem 是用户当前正在浏览的物品 ID（用于上下文相关度加权）
	CurrentItem string

	// CurrentPage 是当前页面（用于效果追踪的分页聚合）
	CurrentPage string

	// At 是请求时间；零值时各组件取 time.Now()
	At time.Time

	// Labels 是用户级标签，可驱动整个链路行为
	Labels map[string]utils.Label

	// Params 请求级上下文参数：device_type、time_of_day、query 等
	Params map[string]any
}

// Now 返回请求时间，零值时回退到当前时间。
func (rctx *RecommendContext) Now() time.Time {
	if rctx != nil && !rctx.At.IsZero() {
		return rctx.At
	}
	return time.Now()
}

// HourOfDay 返回请求时刻的小时（0-23）。
func (rctx *RecommendContext) HourOfDay() int {
	return rctx.Now().Hour()
}

// DayOfWeek 返回请求时刻的星期。
func (rctx *RecommendContext) DayOfWeek() time.Weekday {
	return rctx.Now().Weekday()
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}

// GetParamString 读取请求参数中的字符串值。
func (rctx *RecommendContext) GetParamString(key string) string {
	if rctx.Params == nil {
		return ""
	}
	if s, ok := rctx.Params[key].(string); ok {
		return s
	}
	return ""
}
