package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recstack/recstack/core"
	"github.com/recstack/recstack/pkg/utils"
)

func TestCompileRejectsBrokenExpressions(t *testing.T) {
	_, err := Compile("item.score >")
	assert.Error(t, err)

	_, err = Compile(`item.score + 1`)
	require.NoError(t, err, "non-boolean expressions compile but fail at eval")
}

func TestMatch(t *testing.T) {
	item := core.NewItem("a")
	item.Score = 0.8
	item.PutLabel("recall_source", utils.Label{Value: "trending", Source: "recall"})

	rctx := &core.RecommendContext{UserID: "u1", Scene: "home"}

	cases := []struct {
		expr string
		want bool
	}{
		{`item.score > 0.5`, true},
		{`item.score > 0.9`, false},
		{`label.recall_source == "trending"`, true},
		{`label.recall_source.contains("trend")`, true},
		{`rctx.scene == "home" && item.score >= 0.8`, true},
		{`rctx.user_id == "someone-else"`, false},
	}
	for _, tc := range cases {
		prg, err := Compile(tc.expr)
		require.NoError(t, err, tc.expr)
		got, err := prg.Match(item, rctx)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestMatchNonBooleanResult(t *testing.T) {
	prg, err := Compile(`item.score + 1`)
	require.NoError(t, err)

	_, err = prg.Match(core.NewItem("a"), nil)
	assert.Error(t, err)
}
