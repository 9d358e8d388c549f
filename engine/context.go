package engine

import (
	"context"

	"github.com/recstack/recstack/core"
)

// 内置的时段类别加权：早间偏资讯，晚间偏休闲。
// 倍数限定在 1.1–1.2，时段信号只微调排序，不翻转策略结果。
var defaultTimeBoosts = map[string]map[string]float64{
	"morning": {
		"news":     1.2,
		"business": 1.1,
	},
	"afternoon": {
		"tech":      1.1,
		"education": 1.1,
	},
	"evening": {
		"entertainment": 1.2,
		"cooking":       1.1,
	},
	"night": {
		"entertainment": 1.1,
	},
}

// relatedBoost 是与用户当前浏览物品同类候选的加权倍数。
const relatedBoost = 1.3

// timeBucket 把小时映射到时段名。
func timeBucket(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 23:
		return "evening"
	default:
		return "night"
	}
}

// applyContext 按请求上下文就地调整候选得分：
//   - 时段类别加权（1.1–1.2×）
//   - 与当前浏览物品同类的相关度加权（1.3×）
//
// 所有倍数作用在截断前的得分上，最终得分仍会被压回 [0,1]。
func (e *Engine) applyContext(ctx context.Context, rctx *core.RecommendContext, recs []*core.Recommendation) {
	if rctx == nil || len(recs) == 0 {
		return
	}

	boosts := e.cfg.TimeBoosts[timeBucket(rctx.HourOfDay())]

	var currentCategory string
	if rctx.CurrentItem != "" && e.catalog != nil {
		if rec, err := e.catalog.Get(ctx, rctx.CurrentItem); err == nil {
			currentCategory = rec.Category
		}
	}

	for _, rec := range recs {
		cat := rec.Metadata.Category
		if cat == "" {
			continue
		}
		if mult, ok := boosts[cat]; ok {
			rec.Score *= mult
		}
		if currentCategory != "" && cat == currentCategory && rec.TargetID != rctx.CurrentItem {
			rec.Score *= relatedBoost
			rec.Reasoning = append(rec.Reasoning, "related to what you are reading")
			rec.Metadata.RelatedItems = append(rec.Metadata.RelatedItems, rctx.CurrentItem)
		}
	}
}
