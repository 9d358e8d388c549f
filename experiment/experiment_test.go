package experiment

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
)

func twoVariantSpec() Spec {
	return Spec{
		Name: "ranking-weights",
		Variants: []Variant{
			{ID: "control", Name: "control", TrafficAllocation: 0.5},
			{ID: "test", Name: "heavier-collab", TrafficAllocation: 0.5},
		},
	}
}

func TestCreateRejectsBadAllocations(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	cases := []struct {
		name        string
		allocations []float64
	}{
		{"sum above one", []float64{0.5, 0.6}},
		{"sum below one", []float64{0.5, 0.4}},
		{"negative share", []float64{1.2, -0.2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			variants := make([]Variant, len(tc.allocations))
			for i, a := range tc.allocations {
				variants[i] = Variant{ID: fmt.Sprintf("v%d", i), TrafficAllocation: a}
			}
			_, err := r.Create(ctx, Spec{Name: "bad", Variants: variants})
			assert.True(t, core.IsInvalidInput(err))
		})
	}

	_, err := r.Create(ctx, Spec{Name: "solo", Variants: []Variant{{ID: "only", TrafficAllocation: 1.0}}})
	assert.True(t, core.IsInvalidInput(err), "an experiment needs something to compare against")

	// 浮点容差内的合计可以接受
	_, err = r.Create(ctx, Spec{Name: "tolerated", Variants: []Variant{
		{ID: "a", TrafficAllocation: 0.3334},
		{ID: "b", TrafficAllocation: 0.3333},
		{ID: "c", TrafficAllocation: 0.3333},
	}})
	assert.NoError(t, err)
}

func TestStateMachine(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, twoVariantSpec())
	require.NoError(t, err)
	assert.Equal(t, StateDraft, exp.State)

	assert.True(t, core.IsInvalidState(r.Pause(ctx, exp.ID)), "draft cannot pause")
	assert.True(t, core.IsInvalidState(r.Complete(ctx, exp.ID)), "draft cannot complete")

	require.NoError(t, r.Start(ctx, exp.ID))
	assert.True(t, core.IsInvalidState(r.Start(ctx, exp.ID)), "running cannot start again")

	require.NoError(t, r.Pause(ctx, exp.ID))
	require.NoError(t, r.Start(ctx, exp.ID), "paused resumes to running")
	require.NoError(t, r.Complete(ctx, exp.ID))

	assert.True(t, core.IsInvalidState(r.Start(ctx, exp.ID)), "completed is terminal")

	got, err := r.Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, got.State)
	assert.False(t, got.StartedAt.IsZero())
	assert.False(t, got.EndedAt.IsZero())
}

func TestAssignDeterministic(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, twoVariantSpec())
	require.NoError(t, err)

	// draft 状态不分流
	v, err := r.Assign(ctx, exp.ID, "u1")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, r.Start(ctx, exp.ID))

	seen := map[string]int{}
	for i := 0; i < 200; i++ {
		userID := fmt.Sprintf("user-%d", i)
		first, err := r.Assign(ctx, exp.ID, userID)
		require.NoError(t, err)
		require.NotEmpty(t, first)

		second, err := r.Assign(ctx, exp.ID, userID)
		require.NoError(t, err)
		assert.Equal(t, first, second, "assignment must be stable for the same user")
		seen[first]++
	}
	assert.Len(t, seen, 2, "both variants should receive traffic over 200 users")

	_, err = r.Assign(ctx, "missing", "u1")
	assert.True(t, core.IsNotFound(err))
}

func TestExposureAndConversionAttribution(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, twoVariantSpec())
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx, exp.ID))

	variantID, err := r.RecordExposure(ctx, exp.ID, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, variantID)

	require.NoError(t, r.RecordConversion(ctx, exp.ID, "u1"))
	require.NoError(t, r.RecordConversion(ctx, exp.ID, "never-exposed"), "unexposed users are silently ignored")

	res, err := r.Analyze(ctx, exp.ID)
	require.NoError(t, err)

	var converted int64
	for _, vs := range res.Variants {
		converted += vs.Conversions
		if vs.VariantID == variantID {
			assert.Equal(t, int64(1), vs.Exposures)
			assert.Equal(t, int64(1), vs.Conversions)
		}
	}
	assert.Equal(t, int64(1), converted)
}

func TestAnalyzeSignificantWinner(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, twoVariantSpec())
	require.NoError(t, err)
	require.NoError(t, r.Start(ctx, exp.ID))

	// 对照 1000 次曝光 10% 转化，实验 1000 次曝光 15% 转化
	r.mu.Lock()
	r.exposures[exp.ID]["control"] = 1000
	r.conversions[exp.ID]["control"] = 100
	r.exposures[exp.ID]["test"] = 1000
	r.conversions[exp.ID]["test"] = 150
	r.mu.Unlock()

	res, err := r.Analyze(ctx, exp.ID)
	require.NoError(t, err)

	assert.True(t, res.StatisticallySignificant)
	assert.Equal(t, "test", res.WinningVariant)
	require.Len(t, res.Comparisons, 1)
	cmp := res.Comparisons[0]
	assert.Less(t, cmp.PValue, 0.05)
	assert.Greater(t, cmp.ZScore, 0.0)
	assert.InDelta(t, 0.5, cmp.Lift, 1e-9)

	// 结果按需计算后挂在实验记录上
	got, err := r.Get(ctx, exp.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Results)
	assert.Equal(t, res.WinningVariant, got.Results.WinningVariant)
}

func TestAnalyzeNotSignificant(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, twoVariantSpec())
	require.NoError(t, err)

	r.mu.Lock()
	r.exposures[exp.ID]["control"] = 100
	r.conversions[exp.ID]["control"] = 10
	r.exposures[exp.ID]["test"] = 100
	r.conversions[exp.ID]["test"] = 11
	r.mu.Unlock()

	res, err := r.Analyze(ctx, exp.ID)
	require.NoError(t, err)
	assert.False(t, res.StatisticallySignificant)
	assert.Empty(t, res.WinningVariant)
}

func TestAnalyzeMultiVariant(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	exp, err := r.Create(ctx, Spec{
		Name: "three-way",
		Variants: []Variant{
			{ID: "control", TrafficAllocation: 0.4},
			{ID: "flat", TrafficAllocation: 0.3},
			{ID: "better", TrafficAllocation: 0.3},
		},
	})
	require.NoError(t, err)

	r.mu.Lock()
	r.exposures[exp.ID]["control"] = 1000
	r.conversions[exp.ID]["control"] = 100
	r.exposures[exp.ID]["flat"] = 1000
	r.conversions[exp.ID]["flat"] = 102
	r.exposures[exp.ID]["better"] = 1000
	r.conversions[exp.ID]["better"] = 160
	r.mu.Unlock()

	res, err := r.Analyze(ctx, exp.ID)
	require.NoError(t, err)

	require.Len(t, res.Comparisons, 2, "control is compared against every other variant")
	assert.True(t, res.StatisticallySignificant)
	assert.Equal(t, "better", res.WinningVariant)

	byID := map[string]Comparison{}
	for _, cmp := range res.Comparisons {
		byID[cmp.VariantID] = cmp
	}
	assert.False(t, byID["flat"].Significant)
	assert.True(t, byID["better"].Significant)
}
