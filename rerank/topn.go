package rerank

import (
	"context"
	"sort"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pipeline"
)

// TopNNode 是一个 Top-N 截断节点，用于在排序后截取前 N 个物品。
// 通常在最终排序节点之后使用，用于限制返回结果数量。
type TopNNode struct {
	// N 要保留的物品数量（Top N）
	// 如果 N <= 0，则返回所有物品（不截断）
	N int

	// SortFirst 为 true 时先按 Score 降序排序再截断
	SortFirst bool
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.SortFirst {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Score > items[j].Score
		})
	}

	if n.N <= 0 || len(items) <= n.N {
		return items, nil
	}
	return items[:n.N], nil
}
