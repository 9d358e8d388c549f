package collab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func bookmark(user, item, category string, at time.Time) core.InteractionEvent {
	return core.InteractionEvent{
		UserID:    user,
		ItemID:    item,
		Type:      core.InteractionBookmark,
		Category:  category,
		Timestamp: at,
	}
}

func TestImplicitRatingRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{}, WithClock(fixedClock(now)))

	// 大量互动：权重累加封顶 5，评分封顶 1
	for i := 0; i < 20; i++ {
		err := f.RecordInteraction(context.Background(), bookmark("u1", "item-a", "tech", now))
		require.NoError(t, err)
	}
	r := f.Rating("u1", "item-a")
	assert.Greater(t, r, 0.0)
	assert.LessOrEqual(t, r, 1.0)
	assert.InDelta(t, 1.0, r, 1e-9, "20 bookmarks saturate the weight cap")
}

func TestImplicitRatingDecayMonotonic(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f := New(Config{DecayFactor: 0.1}, WithClock(func() time.Time { return clock }))

	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", "item-a", "tech", base)))

	var prev = 2.0
	for _, days := range []int{0, 1, 7, 30} {
		clock = base.AddDate(0, 0, days)
		r := f.Rating("u1", "item-a")
		assert.Less(t, r, prev, "rating must strictly decrease as interactions age (day %d)", days)
		assert.GreaterOrEqual(t, r, 0.0)
		prev = r
	}
}

func TestRecordInteractionPrunesDecayedWeights(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	f := New(Config{DecayFactor: 0.1}, WithClock(func() time.Time { return clock }))

	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", "item-a", "tech", base)))

	// 60 天后再互动一次：旧权重 0.5×exp(-6) < 0.01，被修剪
	clock = base.AddDate(0, 0, 60)
	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", "item-a", "tech", clock)))

	assert.InDelta(t, 0.1, f.Rating("u1", "item-a"), 1e-9, "only the fresh bookmark should remain")
}

func TestRecordInteractionValidation(t *testing.T) {
	f := New(Config{})

	err := f.RecordInteraction(context.Background(), core.InteractionEvent{ItemID: "item-a", Type: core.InteractionView})
	assert.True(t, core.IsInvalidInput(err))

	err = f.RecordInteraction(context.Background(), core.InteractionEvent{UserID: "u1", ItemID: "item-a", Type: "unknown"})
	assert.True(t, core.IsInvalidInput(err))
}

func TestSimilarityZeroSharedItems(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{}, WithClock(fixedClock(now)))

	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", "item-a", "tech", now)))
	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u2", "item-b", "cooking", now)))

	sim, err := f.Similarity(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.Zero(t, sim.Similarity, "no shared items and no profiles means no evidence of similarity")
	assert.Zero(t, sim.Confidence)
}

func TestSimilaritySymmetricCache(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{}, WithClock(fixedClock(now)))

	for _, item := range []string{"item-a", "item-b", "item-c"} {
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", item, "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u2", item, "tech", now)))
	}

	ab, err := f.Similarity(context.Background(), "u1", "u2")
	require.NoError(t, err)
	ba, err := f.Similarity(context.Background(), "u2", "u1")
	require.NoError(t, err)

	assert.Equal(t, ab.Similarity, ba.Similarity)
	assert.Equal(t, ab.Confidence, ba.Confidence)
	assert.Equal(t, ab.ComputedAt, ba.ComputedAt, "reverse direction must come from the cache, not a recompute")

	f.Invalidate("u1")
	fresh, err := f.Similarity(context.Background(), "u1", "u2")
	require.NoError(t, err)
	assert.Equal(t, ab.Similarity, fresh.Similarity)
}

func TestSimilaritySelfAndEmpty(t *testing.T) {
	f := New(Config{})

	_, err := f.Similarity(context.Background(), "u1", "u1")
	assert.True(t, core.IsInvalidInput(err))

	_, err = f.Similarity(context.Background(), "", "u2")
	assert.True(t, core.IsInvalidInput(err))
}

func TestEqualWeightBookmarksYieldEqualRatings(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{}, WithClock(fixedClock(now)))

	items := []struct {
		id       string
		category string
	}{
		{"item-a", "tech"},
		{"item-b", "cooking"},
		{"item-c", "travel"},
		{"item-d", "finance"},
		{"item-e", "health"},
	}
	for _, it := range items {
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark("u1", it.id, it.category, now)))
	}

	first := f.Rating("u1", "item-a")
	for _, it := range items[1:] {
		assert.InDelta(t, first, f.Rating("u1", it.id), 1e-9,
			"same interaction type at the same instant must rate equally regardless of category")
	}
}

func TestRecommendForEmptyHistory(t *testing.T) {
	f := New(Config{})

	recs, err := f.RecommendFor(context.Background(), "ghost", 10, nil)
	require.NoError(t, err, "missing history is not an error for an advisory recall source")
	assert.Empty(t, recs)
}

func TestRecommendFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{MinSimilarity: 0.2, MinSupportingUsers: 3}, WithClock(fixedClock(now)))

	// 目标用户与三个邻居共享 item-a/item-b，邻居们都收藏了 item-x
	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("target", "item-a", "tech", now)))
	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("target", "item-b", "tech", now)))
	for _, uid := range []string{"n1", "n2", "n3"} {
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-a", "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-b", "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-x", "tech", now)))
	}

	recs, err := f.RecommendFor(context.Background(), "target", 10, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "item-x", rec.ItemID)
	assert.Equal(t, 3, rec.Supporters)
	assert.Greater(t, rec.Predicted, 0.0)
	assert.LessOrEqual(t, rec.Predicted, 1.0)
	assert.Greater(t, rec.Confidence, 0.0)
	assert.Equal(t, "tech", rec.Category)
}

func TestRecommendForExcludesSeenAndExcluded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := New(Config{MinSimilarity: 0.2, MinSupportingUsers: 2}, WithClock(fixedClock(now)))

	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("target", "item-a", "tech", now)))
	require.NoError(t, f.RecordInteraction(context.Background(), bookmark("target", "item-b", "tech", now)))
	for _, uid := range []string{"n1", "n2"} {
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-a", "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-b", "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-x", "tech", now)))
		require.NoError(t, f.RecordInteraction(context.Background(), bookmark(uid, "item-y", "tech", now)))
	}

	recs, err := f.RecommendFor(context.Background(), "target", 10, map[string]bool{"item-y": true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "item-x", recs[0].ItemID)
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, clamp01(-0.3))
	assert.Equal(t, 0.42, clamp01(0.42))
	assert.Equal(t, 1.0, clamp01(1.7))
}
