package curve

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vjranagit/runmetrics/pkg/types"
)

func TestSummarize(t *testing.T) {
	agg := &types.AggregateSeries{
		Grid:       []uint64{0, 10, 20, 30},
		Mean:       []float64{1, 8, 5, 3},
		Dispersion: []float64{0.1, 0.8, 0.5, 0.3},
		Count:      []int{3, 3, 2, 1},
	}

	s := Summarize("lr=0.1", agg)

	require.Equal(t, "lr=0.1", s.Label)
	require.False(t, s.NoData)

	require.Equal(t, 8.0, s.Best)
	require.Equal(t, 0.8, s.BestDispersion)
	require.Equal(t, uint64(10), s.BestStep)
	require.Equal(t, 3, s.BestN)

	require.Equal(t, 3.0, s.Final)
	require.Equal(t, 0.3, s.FinalDispersion)
	require.Equal(t, uint64(30), s.FinalStep)
	require.Equal(t, 1, s.FinalN)
}

func TestSummarizeFirstBestWins(t *testing.T) {
	agg := &types.AggregateSeries{
		Grid:       []uint64{0, 10},
		Mean:       []float64{5, 5},
		Dispersion: []float64{0.1, 0.9},
		Count:      []int{2, 2},
	}

	s := Summarize("x", agg)
	require.Equal(t, uint64(0), s.BestStep)
	require.Equal(t, 0.1, s.BestDispersion)
}

func TestSummarizeNoData(t *testing.T) {
	for _, agg := range []*types.AggregateSeries{nil, {}} {
		s := Summarize("empty", agg)
		require.True(t, s.NoData)
		require.Equal(t, "empty", s.Label)
		require.Zero(t, s.BestN)
		require.Zero(t, s.FinalN)
	}
}
