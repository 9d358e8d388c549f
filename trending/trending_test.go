package trending

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
)

func newTestDiscovery(t *testing.T, cfg Config, now func() time.Time) *Discovery {
	t.Helper()
	d := New(cfg, WithClock(now))
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func event(user, item string, typ core.InteractionType, at time.Time) core.InteractionEvent {
	return core.InteractionEvent{
		UserID:    user,
		ItemID:    item,
		Type:      typ,
		Category:  "tech",
		Timestamp: at,
	}
}

func TestRecordEventAccumulatesMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })

	ctx := context.Background()
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "u1", ItemID: "item-a", Type: core.InteractionView,
		Dwell: 90 * time.Second, Timestamp: now,
	}))
	require.NoError(t, d.RecordEvent(ctx, event("u1", "item-a", core.InteractionBookmark, now)))
	require.NoError(t, d.RecordEvent(ctx, event("u2", "item-a", core.InteractionShare, now)))

	it, err := d.Item("item-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), it.Metrics.Views)
	assert.Equal(t, int64(1), it.Metrics.Bookmarks)
	assert.Equal(t, int64(1), it.Metrics.Shares)
	assert.Equal(t, int64(90), it.Metrics.TimeSpent)
	assert.Equal(t, int64(2), it.Metrics.UniqueUsers, "same user must not double count")
	assert.Equal(t, now, it.FirstSeen)
}

func TestRecordEventValidation(t *testing.T) {
	d := newTestDiscovery(t, Config{}, time.Now)

	err := d.RecordEvent(context.Background(), core.InteractionEvent{UserID: "u1", Type: core.InteractionView})
	assert.True(t, core.IsInvalidInput(err))

	err = d.RecordEvent(context.Background(), core.InteractionEvent{UserID: "u1", ItemID: "item-a", Type: "unknown"})
	assert.True(t, core.IsInvalidInput(err))
}

func TestFreshnessDecay(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return base })

	assert.Equal(t, 1.0, d.freshness(base, base), "freshness must be exactly 1 at age zero")

	prev := 1.0
	for _, hours := range []int{1, 6, 24, 72} {
		f := d.freshness(base, base.Add(time.Duration(hours)*time.Hour))
		assert.Less(t, f, prev, "freshness must strictly decrease with age (%dh)", hours)
		assert.Greater(t, f, 0.0)
		prev = f
	}
}

func TestDiscoverEmpty(t *testing.T) {
	d := newTestDiscovery(t, Config{}, time.Now)

	items, err := d.Discover(context.Background(), Query{})
	require.NoError(t, err, "an empty trending set is a normal state, not a failure")
	assert.Empty(t, items)
}

func TestDiscoverWindowAndFilters(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	// item-old 的最后一次事件在窗口之外
	require.NoError(t, d.RecordEvent(ctx, event("u1", "item-old", core.InteractionShare, now.Add(-48*time.Hour))))
	require.NoError(t, d.RecordEvent(ctx, event("u1", "item-fresh", core.InteractionShare, now.Add(-time.Minute))))
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "u2", ItemID: "item-cooking", Type: core.InteractionShare,
		Category: "cooking", Tags: []string{"recipe"}, Timestamp: now.Add(-time.Minute),
	}))

	items, err := d.Discover(ctx, Query{Window: core.WindowDay})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		assert.NotEqual(t, "item-old", it.ID)
	}

	items, err = d.Discover(ctx, Query{Window: core.WindowDay, Category: "cooking"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-cooking", items[0].ID)

	items, err = d.Discover(ctx, Query{Window: core.WindowDay, Tags: []string{"recipe"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-cooking", items[0].ID)

	items, err = d.Discover(ctx, Query{Window: core.WindowMonth})
	require.NoError(t, err)
	assert.Len(t, items, 3, "month window includes the older item")
}

func TestDiscoverMinViews(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, d.RecordEvent(ctx, event("u1", "item-noisy", core.InteractionView, now)))
	for i := 0; i < 5; i++ {
		require.NoError(t, d.RecordEvent(ctx, event(fmt.Sprintf("u%d", i), "item-seen", core.InteractionView, now)))
	}

	items, err := d.Discover(ctx, Query{MinViews: 5})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-seen", items[0].ID)
}

func TestDiscoverMetricFloorsAndFieldFilters(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	// item-en：英文文章，两个用户收藏
	for _, u := range []string{"u1", "u2"} {
		require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
			UserID: u, ItemID: "item-en", Type: core.InteractionBookmark,
			Category: "tech", ContentType: "article", Language: "en", Timestamp: now,
		}))
	}
	// item-es：西语视频，单用户浏览
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "u3", ItemID: "item-es", Type: core.InteractionView,
		Category: "tech", ContentType: "video", Language: "es", Timestamp: now,
	}))

	cases := []struct {
		name string
		q    Query
		want []string
	}{
		{"content type", Query{ContentType: "article"}, []string{"item-en"}},
		{"language", Query{Language: "es"}, []string{"item-es"}},
		{"min bookmarks", Query{MinBookmarks: 2}, []string{"item-en"}},
		{"min unique users", Query{MinUniqueUsers: 2}, []string{"item-en"}},
		{"min views", Query{MinViews: 1}, []string{"item-es"}},
		{"exclude", Query{Exclude: []string{"item-en"}}, []string{"item-es"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, err := d.Discover(ctx, tc.q)
			require.NoError(t, err)
			require.Len(t, items, len(tc.want))
			for i, id := range tc.want {
				assert.Equal(t, id, items[i].ID)
			}
		})
	}
}

func TestDiscoverMinScore(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.RecordEvent(ctx, event(fmt.Sprintf("u%d", i), "item-hot", core.InteractionShare, now)))
	}
	require.NoError(t, d.RecordEvent(ctx, event("u9", "item-cold", core.InteractionView, now.Add(-20*time.Hour))))

	all, err := d.Discover(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "item-hot", all[0].ID)
	require.Greater(t, all[0].Score.Overall, all[1].Score.Overall)

	floor := (all[0].Score.Overall + all[1].Score.Overall) / 2
	items, err := d.Discover(ctx, Query{MinScore: floor})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "item-hot", items[0].ID)
}

func TestDiscoverPerCategoryCapWithBackfill(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	// tech 类三个高热物品，cooking 类一个低热物品
	for i, id := range []string{"tech-1", "tech-2", "tech-3"} {
		for j := 0; j <= 3-i; j++ {
			require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
				UserID: fmt.Sprintf("u%d-%d", i, j), ItemID: id, Type: core.InteractionShare,
				Category: "tech", Timestamp: now,
			}))
		}
	}
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "uc", ItemID: "cooking-1", Type: core.InteractionShare,
		Category: "cooking", Timestamp: now,
	}))

	items, err := d.Discover(ctx, Query{Limit: 3, MaxPerCategory: 2})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "cooking-1", items[2].ID, "the cap must let the weaker category in")

	// 回填：cooking 只有一个物品，配额外的 tech 物品补足 limit
	items, err = d.Discover(ctx, Query{Limit: 4, MaxPerCategory: 2})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "tech-3", items[3].ID)
}

func TestDiscoverDefaultCategoryCapSplitsEvenly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := newTestDiscovery(t, Config{}, func() time.Time { return now })
	ctx := context.Background()

	for i, id := range []string{"tech-1", "tech-2", "tech-3"} {
		for j := 0; j <= 3-i; j++ {
			require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
				UserID: fmt.Sprintf("u%d-%d", i, j), ItemID: id, Type: core.InteractionShare,
				Category: "tech", Timestamp: now,
			}))
		}
	}
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "uc", ItemID: "cooking-1", Type: core.InteractionShare,
		Category: "cooking", Timestamp: now,
	}))

	// 不设 MaxPerCategory 时限额为 ceil(4/2)=2：
	// cooking-1 挤进前三，溢出的 tech-3 回填到末位
	items, err := d.Discover(ctx, Query{Limit: 4})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "cooking-1", items[2].ID)
	assert.Equal(t, "tech-3", items[3].ID)
}

func TestSweepRemovesStaleAndAggregatesCategories(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	d := newTestDiscovery(t, Config{}, func() time.Time { return clock })
	ctx := context.Background()

	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "u1", ItemID: "item-stale", Type: core.InteractionView,
		Category: "tech", Timestamp: base.AddDate(0, 0, -40),
	}))
	require.NoError(t, d.RecordEvent(ctx, core.InteractionEvent{
		UserID: "u2", ItemID: "item-live", Type: core.InteractionShare,
		Category: "tech", Tags: []string{"go", "infra"}, Timestamp: base.Add(-time.Hour),
	}))

	d.Sweep()

	_, err := d.Item("item-stale")
	assert.True(t, core.IsNotFound(err), "items idle past the retention period are reclaimed")
	_, err = d.Item("item-live")
	assert.NoError(t, err)

	trends := d.CategoryTrends()
	require.Len(t, trends, 1)
	ct := trends[0]
	assert.Equal(t, "tech", ct.Category)
	assert.Equal(t, 1, ct.ItemCount)
	assert.Equal(t, []string{"go", "infra"}, ct.TopTags)
	assert.Greater(t, ct.AvgScore, 0.0)
}

func TestAccelerationBands(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	heating := &itemState{events: []time.Time{
		now.Add(-90 * time.Minute),
		now.Add(-30 * time.Minute), now.Add(-20 * time.Minute), now.Add(-10 * time.Minute),
	}}
	cooling := &itemState{events: []time.Time{
		now.Add(-110 * time.Minute), now.Add(-100 * time.Minute), now.Add(-90 * time.Minute),
		now.Add(-10 * time.Minute),
	}}
	flat := &itemState{events: []time.Time{
		now.Add(-90 * time.Minute), now.Add(-10 * time.Minute),
	}}

	assert.Greater(t, acceleration(heating, now), 0.5)
	assert.Less(t, acceleration(cooling, now), 0.5)
	assert.Equal(t, 0.5, acceleration(flat, now))
	assert.Equal(t, 0.0, acceleration(&itemState{}, now))
}
