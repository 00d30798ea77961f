package curve

import "github.com/vjranagit/runmetrics/pkg/types"

// Summarize reduces one aggregate trajectory to its best mean value (with
// the dispersion and contributor count observed at that same step) and the
// final mean value likewise. An empty series yields a NoData summary so
// batch reports over many metrics never abort on a miss.
func Summarize(label string, agg *types.AggregateSeries) types.Summary {
	if agg == nil || agg.Len() == 0 {
		return types.Summary{Label: label, NoData: true}
	}

	best := 0
	for i := 1; i < agg.Len(); i++ {
		if agg.Mean[i] > agg.Mean[best] {
			best = i
		}
	}
	last := agg.Len() - 1

	return types.Summary{
		Label:           label,
		Best:            agg.Mean[best],
		BestDispersion:  agg.Dispersion[best],
		BestStep:        agg.Grid[best],
		BestN:           agg.Count[best],
		Final:           agg.Mean[last],
		FinalDispersion: agg.Dispersion[last],
		FinalStep:       agg.Grid[last],
		FinalN:          agg.Count[last],
	}
}
