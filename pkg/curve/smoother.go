package curve

import (
	"math"

	"github.com/vjranagit/runmetrics/pkg/types"
)

// Smooth applies a causal exponential moving average over the grid, left to
// right, with alpha = 2/(window+1). A window of 1 (or less) is the identity.
// NaN inputs stay NaN in the output and do not disturb the running average:
// the average carries over the gap and resumes at the next defined value.
func Smooth(s types.AlignedSeries, window int) types.AlignedSeries {
	if window <= 1 || len(s.Values) == 0 {
		return s
	}

	alpha := 2.0 / (float64(window) + 1.0)

	values := make([]float64, len(s.Values))
	ema := math.NaN()
	for i, v := range s.Values {
		if math.IsNaN(v) {
			values[i] = math.NaN()
			continue
		}
		if math.IsNaN(ema) {
			ema = v
		} else {
			ema = alpha*v + (1-alpha)*ema
		}
		values[i] = ema
	}

	return types.AlignedSeries{RunID: s.RunID, Grid: s.Grid, Values: values}
}

// SmoothAll smooths every series with the same window.
func SmoothAll(series []types.AlignedSeries, window int) []types.AlignedSeries {
	if window <= 1 {
		return series
	}
	out := make([]types.AlignedSeries, len(series))
	for i, s := range series {
		out[i] = Smooth(s, window)
	}
	return out
}
