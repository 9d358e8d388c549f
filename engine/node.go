package engine

import (
	"context"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pipeline"
	"github.com/recstack/recstack/pkg/utils"
)

// Node 把引擎封装为召回 Node，使推荐生成可以与 filter/rerank 节点
// 组装在同一条 Pipeline 上。引擎输出的策略与理由转为 Label 透传，
// 下游的规则过滤与多样性重排可直接消费。
type Node struct {
	Engine *Engine

	// Count 是召回条数，<=0 时取引擎默认
	Count int

	// Strategies 限定参与的策略，空切片表示全部
	Strategies []core.Strategy
}

func (n *Node) Name() string {
	return "recall.engine"
}

func (n *Node) Kind() pipeline.Kind {
	return pipeline.KindRecall
}

func (n *Node) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Engine == nil || rctx == nil || rctx.UserID == "" {
		return items, nil
	}

	recs, err := n.Engine.Generate(ctx, Request{
		UserID:     rctx.UserID,
		Count:      n.Count,
		Strategies: n.Strategies,
		Context:    rctx,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it != nil {
			seen[it.ID] = true
		}
	}

	out := append([]*core.Item(nil), items...)
	for _, rec := range recs {
		if seen[rec.TargetID] {
			continue
		}
		seen[rec.TargetID] = true

		it := core.NewItem(rec.TargetID)
		it.Score = rec.Score
		it.Meta["category"] = rec.Metadata.Category
		it.Meta["confidence"] = rec.Confidence
		it.PutLabel("recall_source", utils.Label{Value: string(rec.Strategy), Source: n.Name()})
		for _, reason := range rec.Reasoning {
			it.PutLabel("reasoning", utils.Label{Value: reason, Source: string(rec.Strategy)})
		}
		out = append(out, it)
	}
	return out, nil
}

var _ pipeline.Node = (*Node)(nil)
