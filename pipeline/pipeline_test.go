package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
)

type appendNode struct {
	id   string
	fail bool
}

func (n *appendNode) Name() string { return "test.append." + n.id }
func (n *appendNode) Kind() Kind   { return KindPostProcess }

func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.fail {
		return nil, fmt.Errorf("node %s failed", n.id)
	}
	return append(items, core.NewItem(n.id)), nil
}

func TestPipelineRunChainsNodes(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}, &appendNode{id: "b"}}}

	out, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
}

func TestPipelineRunStopsOnError(t *testing.T) {
	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}, &appendNode{id: "b", fail: true}}}

	_, err := p.Run(context.Background(), &core.RecommendContext{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node b failed")
}

func TestPipelineRunHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Pipeline{Nodes: []Node{&appendNode{id: "a"}}}
	_, err := p.Run(ctx, &core.RecommendContext{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pipeline:
  name: homepage
  nodes:
    - type: filter
      config:
        filters:
          - type: quality
            min_quality: 60
    - type: rerank.topn
      config:
        n: 10
        sort_first: true
`), 0o644))

	cfg, err := LoadFromYAML(path)
	require.NoError(t, err)
	assert.Equal(t, "homepage", cfg.Pipeline.Name)
	require.Len(t, cfg.Pipeline.Nodes, 2)
	assert.Equal(t, "filter", cfg.Pipeline.Nodes[0].Type)
	assert.Equal(t, "rerank.topn", cfg.Pipeline.Nodes[1].Type)

	_, err = LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNodeFactory(t *testing.T) {
	f := NewNodeFactory()
	f.Register("test.append", func(cfg map[string]interface{}) (Node, error) {
		id, _ := cfg["id"].(string)
		return &appendNode{id: id}, nil
	})

	node, err := f.Build("test.append", map[string]interface{}{"id": "x"})
	require.NoError(t, err)
	assert.Equal(t, "test.append.x", node.Name())

	_, err = f.Build("unknown", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node type")
}
