package curve

import (
	"math"

	"github.com/vjranagit/runmetrics/pkg/types"
)

// Aggregate combines aligned series sharing one grid into a mean trajectory
// with a per-step dispersion band. At each grid step only runs with a
// defined value contribute; the contributor count is exposed per step so
// callers can flag low-confidence tails where shorter runs have ended. Grid
// steps with no contributors at all are removed from the output.
//
// Dispersion is 0 wherever a single run contributes. An empty input yields
// an empty (zero-length) series, not nil.
func Aggregate(series []types.AlignedSeries, mode types.DispersionMode) *types.AggregateSeries {
	agg := &types.AggregateSeries{
		Grid:       []uint64{},
		Mean:       []float64{},
		Dispersion: []float64{},
		Count:      []int{},
	}
	if len(series) == 0 {
		return agg
	}
	if mode == "" {
		mode = types.SampleStdDev
	}

	grid := series[0].Grid
	for i, step := range grid {
		var sum float64
		n := 0
		for _, s := range series {
			if v := s.Values[i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}

		mean := sum / float64(n)

		agg.Grid = append(agg.Grid, step)
		agg.Mean = append(agg.Mean, mean)
		agg.Dispersion = append(agg.Dispersion, dispersion(series, i, mean, n, mode))
		agg.Count = append(agg.Count, n)
	}

	return agg
}

func dispersion(series []types.AlignedSeries, i int, mean float64, n int, mode types.DispersionMode) float64 {
	if n < 2 {
		return 0
	}

	var sumSq float64
	for _, s := range series {
		if v := s.Values[i]; !math.IsNaN(v) {
			d := v - mean
			sumSq += d * d
		}
	}

	switch mode {
	case types.PopulationStdDev:
		return math.Sqrt(sumSq / float64(n))
	case types.StandardError:
		return math.Sqrt(sumSq/float64(n-1)) / math.Sqrt(float64(n))
	default: // SampleStdDev
		return math.Sqrt(sumSq / float64(n-1))
	}
}
