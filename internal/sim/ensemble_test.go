package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEnsemble_IndependentSeededRuns(t *testing.T) {
	p := DefaultParams()
	p.Years = 10
	p.MonteCarloRuns = 4

	result, err := RunEnsemble(context.Background(), p, testLogger())
	require.NoError(t, err)
	require.Len(t, result.Runs, 4)
	assert.Equal(t, 4, result.Summary.Completed)
	assert.Zero(t, result.Summary.Aborted)

	// Every run keeps its own RNG stream: sibling runs must diverge.
	assert.NotEqual(t, result.Runs[0].Snapshots, result.Runs[1].Snapshots)

	ids := map[string]bool{}
	for _, run := range result.Runs {
		require.Len(t, run.Snapshots, 10)
		ids[run.RunID] = true
	}
	assert.Len(t, ids, 4, "run IDs must be unique")
}

func TestRunEnsemble_SummaryBounds(t *testing.T) {
	p := DefaultParams()
	p.Years = 10
	p.MonteCarloRuns = 3

	result, err := RunEnsemble(context.Background(), p, testLogger())
	require.NoError(t, err)

	s := result.Summary
	assert.GreaterOrEqual(t, s.FinalCO2Mean, s.FinalCO2Min)
	assert.LessOrEqual(t, s.FinalCO2Mean, s.FinalCO2Max)
	assert.Positive(t, s.FinalCO2Mean)
}

func TestRunEnsemble_Reproducible(t *testing.T) {
	p := DefaultParams()
	p.Years = 8
	p.MonteCarloRuns = 3

	a, err := RunEnsemble(context.Background(), p, testLogger())
	require.NoError(t, err)
	b, err := RunEnsemble(context.Background(), p, testLogger())
	require.NoError(t, err)

	require.Len(t, b.Runs, len(a.Runs))
	for i := range a.Runs {
		assert.Equal(t, a.Runs[i].Snapshots, b.Runs[i].Snapshots,
			"ensemble member %d must replay identically", i)
	}
	assert.Equal(t, a.Summary.FinalCO2Mean, b.Summary.FinalCO2Mean)
}

func TestRunEnsemble_ValidatesParams(t *testing.T) {
	p := DefaultParams()
	p.Years = -1
	_, err := RunEnsemble(context.Background(), p, testLogger())
	assert.ErrorIs(t, err, ErrInvalidParams)
}
