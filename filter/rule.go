package filter

import (
	"context"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pkg/dsl"
)

// RuleFilter 是基于 CEL 表达式的规则过滤器。
// 表达式返回 true 时物品被过滤，例如：
//   - `item.score < 0.3`
//   - `label.recall_source == "trending" && item.score < 0.5`
//
// 表达式在构建时编译一次，逐 item 求值只做 Eval。
type RuleFilter struct {
	prg *dsl.Program
}

// NewRuleFilter 编译表达式并创建规则过滤器。
func NewRuleFilter(expr string) (*RuleFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &RuleFilter{prg: prg}, nil
}

func (f *RuleFilter) Name() string {
	return "filter.rule"
}

func (f *RuleFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	return f.prg.Match(item, rctx)
}
