package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/store"
)

func bookmarkEvent(userID, itemID, category string, tags ...string) core.InteractionEvent {
	return core.InteractionEvent{
		UserID:    userID,
		ItemID:    itemID,
		Type:      core.InteractionBookmark,
		Category:  category,
		Tags:      tags,
		Timestamp: time.Now(),
	}
}

func TestGetValidation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "")
	assert.True(t, core.IsInvalidInput(err))

	_, err = s.Get(ctx, "ghost")
	assert.True(t, core.IsNotFound(err))
}

func TestPutAndGetReturnsCopy(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	p := core.NewUserProfile("u1")
	p.Preferences.Categories["tech"] = 0.8
	require.NoError(t, s.Put(ctx, p))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	got.Preferences.Categories["tech"] = 0.0

	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.8, again.Preferences.Categories["tech"], "callers must not mutate the stored profile")
}

func TestGetOrCreate(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	p, err := s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UserID)
	assert.Empty(t, p.Behavior.InteractionHistory)

	require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech")))
	p, err = s.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.Behavior.InteractionHistory, 1)
}

func TestTrackInteractionUpdatesProfile(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech", "go")))

	err := s.TrackInteraction(ctx, core.InteractionEvent{UserID: "", ItemID: "item-a"})
	assert.True(t, core.IsInvalidInput(err))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)

	require.Len(t, p.Behavior.InteractionHistory, 1)
	assert.InDelta(t, 0.1, p.Preferences.Categories["tech"], 1e-9, "bookmark weight 0.5 at learn rate 0.2")
	assert.InDelta(t, 0.05, p.Preferences.Tags["go"], 1e-9, "tags learn at half rate")
	assert.Equal(t, 1, p.Behavior.CategoryUsage["tech"].Interactions)

	in, ok := p.Interests["tech"]
	require.True(t, ok, "interactions must infer an implicit interest")
	assert.Equal(t, core.ProvenanceImplicit, in.Provenance)
	assert.InDelta(t, 0.5, in.Score, 1e-9)
	assert.InDelta(t, 0.1, in.Confidence, 1e-9)
}

func TestPreferenceNormalization(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech")))
	}
	require.NoError(t, s.TrackInteraction(ctx, core.InteractionEvent{
		UserID: "u1", ItemID: "item-b", Type: core.InteractionView, Category: "news",
	}))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.Preferences.Categories["tech"], "the dominant preference pins to 1")
	assert.Greater(t, p.Preferences.Categories["news"], 0.0)
	assert.Less(t, p.Preferences.Categories["news"], p.Preferences.Categories["tech"])
	for cat, w := range p.Preferences.Categories {
		assert.LessOrEqual(t, w, 1.0, "category %s out of range", cat)
	}
}

func TestExplicitInterestNotOverwritten(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.SetExplicitInterest(ctx, "u1", "tech", 0.9))
	require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech")))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	in := p.Interests["tech"]
	assert.Equal(t, core.ProvenanceExplicit, in.Provenance)
	assert.Equal(t, 0.9, in.Score)
	assert.Equal(t, 1.0, in.Confidence)
}

func TestTrackSearch(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	assert.True(t, core.IsInvalidInput(s.TrackSearch(ctx, "u1", "")))
	require.NoError(t, s.TrackSearch(ctx, "u1", "golang concurrency"))

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang concurrency"}, p.Behavior.SearchHistory)
	assert.Greater(t, p.Preferences.Tags["golang concurrency"], 0.0, "queries count as weak tag signals")
}

func TestPersistenceRoundTrip(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()

	s := NewStore(WithBackend(kv))
	require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech")))

	// 新实例从后端冷加载
	reloaded := NewStore(WithBackend(kv))
	p, err := reloaded.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.Behavior.InteractionHistory, 1)
	assert.Greater(t, p.Preferences.Categories["tech"], 0.0)
}

func TestGetNormalizesSparseStoredProfile(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	ctx := context.Background()

	// 其他生产方写入的画像可以省略任意字段
	require.NoError(t, kv.Set(ctx, "profile:u1", []byte(`{"user_id":"u1"}`)))

	s := NewStore(WithBackend(kv))
	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, p.Preferences.Categories)
	assert.NotNil(t, p.Preferences.Languages)
	assert.NotNil(t, p.Behavior.CategoryUsage)
	assert.NotNil(t, p.Interests)

	// 冷加载后的就地更新路径不得因缺字段而崩溃
	require.NoError(t, s.TrackInteraction(ctx, bookmarkEvent("u1", "item-a", "tech")))
	p, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Behavior.CategoryUsage["tech"].Interactions)
}

func TestPreferenceVector(t *testing.T) {
	assert.Nil(t, PreferenceVector(nil))

	p := core.NewUserProfile("u1")
	p.Preferences.Categories["tech"] = 1.0
	p.Preferences.Tags["go"] = 0.5
	p.Preferences.ContentTypes["article"] = 0.3
	p.Preferences.Languages["en"] = 0.2

	vec := PreferenceVector(p)
	assert.Equal(t, 1.0, vec["category:tech"])
	assert.Equal(t, 0.5, vec["tag:go"])
	assert.Equal(t, 0.3, vec["type:article"])
	assert.Equal(t, 0.2, vec["lang:en"])
}
