package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveExactMatch(t *testing.T) {
	r := NewResolver(nil, nil)

	stepCol, valueCol, err := r.Resolve([]string{"Step", "episode_return"})
	require.NoError(t, err)
	require.Equal(t, "Step", stepCol)
	require.Equal(t, "episode_return", valueCol)
}

func TestResolveSubstringMatch(t *testing.T) {
	r := NewResolver(nil, nil)

	// Prefixed export column names still resolve.
	stepCol, valueCol, err := r.Resolve([]string{"global_step", "env: task - episode_return"})
	require.NoError(t, err)
	require.Equal(t, "global_step", stepCol)
	require.Equal(t, "env: task - episode_return", valueCol)
}

func TestResolveCandidateOrderWins(t *testing.T) {
	r := NewResolver([]string{"Step", "Epoch"}, []string{"reward", "loss"})

	// Both candidates match; the earlier one in the list is chosen.
	stepCol, valueCol, err := r.Resolve([]string{"Epoch", "Step", "loss", "mean reward"})
	require.NoError(t, err)
	require.Equal(t, "Step", stepCol)
	require.Equal(t, "mean reward", valueCol)
}

func TestResolveCaseSensitive(t *testing.T) {
	r := NewResolver([]string{"Step"}, []string{"Value"})

	_, _, err := r.Resolve([]string{"STEP", "VALUE"})
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestResolveColumnNotFound(t *testing.T) {
	r := NewResolver(nil, nil)

	_, _, err := r.Resolve([]string{"wallclock", "gpu_util"})
	require.ErrorIs(t, err, ErrColumnNotFound)

	// A step column alone is not enough.
	_, _, err = r.Resolve([]string{"Step", "gpu_util"})
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestResolveCustomCandidates(t *testing.T) {
	r := NewResolver([]string{"tick"}, []string{"score"})

	stepCol, valueCol, err := r.Resolve([]string{"tick", "score"})
	require.NoError(t, err)
	require.Equal(t, "tick", stepCol)
	require.Equal(t, "score", valueCol)
}
