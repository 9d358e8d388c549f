package filter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pkg/utils"
	"github.com/recstack/recstack/store"
)

func TestExcludeFilter(t *testing.T) {
	f := &ExcludeFilter{ItemIDs: []string{"banned"}}
	ctx := context.Background()

	drop, err := f.ShouldFilter(ctx, nil, core.NewItem("banned"))
	require.NoError(t, err)
	assert.True(t, drop)

	drop, err = f.ShouldFilter(ctx, nil, core.NewItem("ok"))
	require.NoError(t, err)
	assert.False(t, drop)

	drop, err = f.ShouldFilter(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, drop, "nil items never pass")
}

func TestQualityFilter(t *testing.T) {
	f := &QualityFilter{MinQuality: 60}
	ctx := context.Background()

	low := core.NewItem("low")
	low.Meta["quality"] = 40.0
	high := core.NewItem("high")
	high.Meta["quality"] = 80.0
	unknown := core.NewItem("unknown")

	drop, err := f.ShouldFilter(ctx, nil, low)
	require.NoError(t, err)
	assert.True(t, drop)

	drop, err = f.ShouldFilter(ctx, nil, high)
	require.NoError(t, err)
	assert.False(t, drop)

	drop, err = f.ShouldFilter(ctx, nil, unknown)
	require.NoError(t, err)
	assert.False(t, drop, "missing quality keeps the item")

	drop, err = (&QualityFilter{}).ShouldFilter(ctx, nil, low)
	require.NoError(t, err)
	assert.False(t, drop, "zero threshold disables the filter")
}

func TestRuleFilter(t *testing.T) {
	_, err := NewRuleFilter("item.score <")
	require.Error(t, err, "broken expressions fail at build time")

	f, err := NewRuleFilter(`item.score < 0.3 || label.recall_source == "blocked"`)
	require.NoError(t, err)
	ctx := context.Background()

	low := core.NewItem("low")
	low.Score = 0.1
	drop, err := f.ShouldFilter(ctx, nil, low)
	require.NoError(t, err)
	assert.True(t, drop)

	blocked := core.NewItem("blocked")
	blocked.Score = 0.9
	blocked.PutLabel("recall_source", utils.Label{Value: "blocked"})
	drop, err = f.ShouldFilter(ctx, nil, blocked)
	require.NoError(t, err)
	assert.True(t, drop)

	keep := core.NewItem("keep")
	keep.Score = 0.9
	keep.PutLabel("recall_source", utils.Label{Value: "trending"})
	drop, err = f.ShouldFilter(ctx, nil, keep)
	require.NoError(t, err)
	assert.False(t, drop)
}

func TestExposedFilter(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()
	now := time.Now()

	f := &ExposedFilter{Store: kv, TimeWindow: time.Hour}
	require.NoError(t, f.MarkExposed(ctx, "u1", "seen", now))
	require.NoError(t, f.MarkExposed(ctx, "u1", "old", now.Add(-2*time.Hour)))

	rctx := &core.RecommendContext{UserID: "u1", At: now}

	drop, err := f.ShouldFilter(ctx, rctx, core.NewItem("seen"))
	require.NoError(t, err)
	assert.True(t, drop)

	drop, err = f.ShouldFilter(ctx, rctx, core.NewItem("old"))
	require.NoError(t, err)
	assert.False(t, drop, "exposures outside the window do not filter")

	drop, err = f.ShouldFilter(ctx, rctx, core.NewItem("fresh"))
	require.NoError(t, err)
	assert.False(t, drop)

	drop, err = f.ShouldFilter(ctx, &core.RecommendContext{}, core.NewItem("seen"))
	require.NoError(t, err)
	assert.False(t, drop, "anonymous requests skip exposure filtering")
}

func TestFilterNodeComposesAndLabels(t *testing.T) {
	node := &FilterNode{Filters: []Filter{
		&ExcludeFilter{ItemIDs: []string{"banned"}},
		&QualityFilter{MinQuality: 60},
	}}

	good := core.NewItem("good")
	good.Meta["quality"] = 90.0
	banned := core.NewItem("banned")
	banned.Meta["quality"] = 90.0
	low := core.NewItem("low")
	low.Meta["quality"] = 10.0

	out, err := node.Process(context.Background(), nil, []*core.Item{good, banned, low, nil})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "good", out[0].ID)

	assert.Equal(t, "filter.exclude", banned.Labels["filtered"].Source)
	assert.Equal(t, "filter.quality", low.Labels["filtered"].Source)
}
