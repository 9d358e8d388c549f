package pipeline

import (
	"context"

	"github.com/recstack/recstack/core"
)

// Pipeline 是 recstack 的核心抽象：把推荐逻辑拆成可组合的 Node 链。
// 推荐引擎内部即按 召回 fanout -> 过滤 -> 重排 -> 截断 组装。
type Pipeline struct {
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}
