package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MRamiBalles/PandemicSim/internal/platform/logger"
)

func TestBuiltinScenariosPass(t *testing.T) {
	suite := NewSuite(logger.NewNopLogger())

	results := suite.Run(context.Background())

	require.Len(t, results, len(Builtin()))
	for _, r := range results {
		assert.True(t, r.Passed, "%s: %s", r.Name, r.Reason)
		assert.Positive(t, r.Ticks, r.Name)
	}
	passed, failed := Tally(results)
	assert.Equal(t, len(results), passed)
	assert.Zero(t, failed)
}

func TestSuiteReportsFailuresAndPanics(t *testing.T) {
	suite := NewSuite(logger.NewNopLogger(),
		Scenario{Name: "ok", Run: func(context.Context, *Harness) error { return nil }},
		Scenario{Name: "fails", Run: func(context.Context, *Harness) error { return errors.New("boom") }},
		Scenario{Name: "panics", Run: func(context.Context, *Harness) error { panic("broken invariant") }},
	)

	results := suite.Run(context.Background())

	require.Len(t, results, 3)
	assert.True(t, results[0].Passed)
	assert.Equal(t, "boom", results[1].Reason)
	assert.False(t, results[2].Passed)
	assert.Equal(t, "panic: broken invariant", results[2].Reason)

	passed, failed := Tally(results)
	assert.Equal(t, 1, passed)
	assert.Equal(t, 2, failed)
	assert.Equal(t, results, suite.Results())
}

func TestSuiteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	suite := NewSuite(logger.NewNopLogger(), Scenario{Name: "never", Run: func(context.Context, *Harness) error {
		ran = true
		return nil
	}})

	results := suite.Run(ctx)

	require.Len(t, results, 1)
	assert.False(t, ran)
	assert.False(t, results[0].Passed)
	assert.Equal(t, context.Canceled.Error(), results[0].Reason)
}
