package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/config"
	_ "github.com/recstack/recstack/config/builders"
	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pipeline"
)

func pipelineConfig(nodes ...pipeline.NodeConfig) *pipeline.Config {
	var cfg pipeline.Config
	cfg.Pipeline.Name = "test"
	cfg.Pipeline.Nodes = nodes
	return &cfg
}

func TestSupportedTypes(t *testing.T) {
	types := config.SupportedTypes()
	assert.Contains(t, types, "filter")
	assert.Contains(t, types, "rerank.diversity")
	assert.Contains(t, types, "rerank.topn")
}

func TestValidatePipelineConfig(t *testing.T) {
	require.NoError(t, config.ValidatePipelineConfig(nil))
	require.NoError(t, config.ValidatePipelineConfig(pipelineConfig(
		pipeline.NodeConfig{Type: "rerank.topn"},
	)))

	err := config.ValidatePipelineConfig(pipelineConfig(
		pipeline.NodeConfig{Type: "rank.gbdt"},
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rank.gbdt")
}

func TestBuildPipelineFromConfig(t *testing.T) {
	cfg := pipelineConfig(
		pipeline.NodeConfig{
			Type: "filter",
			Config: map[string]interface{}{
				"filters": []interface{}{
					map[string]interface{}{
						"type":     "exclude",
						"item_ids": []interface{}{"banned-1"},
					},
					map[string]interface{}{
						"type": "rule",
						"expr": `item.score < 0.2`,
					},
				},
			},
		},
		pipeline.NodeConfig{
			Type:   "rerank.topn",
			Config: map[string]interface{}{"n": 2, "sort_first": true},
		},
	)
	require.NoError(t, config.ValidatePipelineConfig(cfg))

	p, err := cfg.BuildPipeline(config.DefaultFactory())
	require.NoError(t, err)
	require.Len(t, p.Nodes, 2)

	items := []*core.Item{
		newScoredItem("banned-1", 0.9),
		newScoredItem("low", 0.1),
		newScoredItem("a", 0.5),
		newScoredItem("b", 0.7),
		newScoredItem("c", 0.6),
	}
	out, err := p.Run(context.Background(), &core.RecommendContext{UserID: "u1"}, items)
	require.NoError(t, err)

	// 排除 banned-1、规则过滤 low，TopN 留下分数最高的两个
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestBuildPipelineUnknownFilterType(t *testing.T) {
	cfg := pipelineConfig(pipeline.NodeConfig{
		Type: "filter",
		Config: map[string]interface{}{
			"filters": []interface{}{
				map[string]interface{}{"type": "geo_fence"},
			},
		},
	})
	_, err := cfg.BuildPipeline(config.DefaultFactory())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geo_fence")
}

func newScoredItem(id string, score float64) *core.Item {
	it := core.NewItem(id)
	it.Score = score
	return it
}

func TestLoadApp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recstack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collab:
  min_similarity: 0.25
  max_similar_users: 100
trending:
  sweep_interval: 5m
engine:
  default_count: 20
  cache_ttl: 10m
  trending_window: week
tracker:
  min_impressions: 50
`), 0o644))

	app, err := config.LoadApp(path)
	require.NoError(t, err)

	cc := app.Collab.Build()
	assert.Equal(t, 0.25, cc.MinSimilarity)
	assert.Equal(t, 100, cc.MaxSimilarUsers)
	assert.Equal(t, 0, cc.MinSupportingUsers, "unset fields stay zero and fall back to component defaults")

	tc := app.Trending.Build()
	assert.Equal(t, 5*time.Minute, tc.SweepInterval)

	ec := app.Engine.Build()
	assert.Equal(t, 20, ec.DefaultCount)
	assert.Equal(t, 10*time.Minute, ec.CacheTTL)
	assert.Equal(t, core.WindowWeek, ec.TrendingWindow)

	assert.Equal(t, int64(50), app.Tracker.Build().MinImpressions)

	_, err = config.LoadApp(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDurationRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trending:\n  sweep_interval: soon\n"), 0o644))

	_, err := config.LoadApp(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}
