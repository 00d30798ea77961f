// Package curve turns sets of irregular per-run metric sequences into
// statistically summarized trajectories: alignment onto a common step grid,
// causal smoothing, mean and dispersion aggregation, config-key grouping and
// scalar summaries. Everything here is a pure function of its inputs.
package curve

import (
	"math"
	"sort"

	"github.com/vjranagit/runmetrics/pkg/types"
)

// Align resamples each run's points onto the union grid of all distinct
// steps, optionally capped at maxStep. A grid step a run has no point at is
// linearly interpolated between its nearest neighbors; grid steps before a
// run's first point or after its last are NaN, never extrapolated. Input
// points must be ordered by step; duplicate steps collapse last-wins. Runs
// with zero points (or none below the cap) contribute no series.
//
// The returned series all share one grid, strictly increasing, so they can
// be combined pointwise. Series are ordered by run ID for determinism.
func Align(runs map[string][]types.RawPoint, maxStep *uint64) []types.AlignedSeries {
	gridSet := make(map[uint64]struct{})
	for _, points := range runs {
		for _, p := range points {
			if maxStep != nil && p.Step > *maxStep {
				continue
			}
			gridSet[p.Step] = struct{}{}
		}
	}
	if len(gridSet) == 0 {
		return nil
	}

	grid := make([]uint64, 0, len(gridSet))
	for step := range gridSet {
		grid = append(grid, step)
	}
	sort.Slice(grid, func(i, j int) bool { return grid[i] < grid[j] })

	runIDs := make([]string, 0, len(runs))
	for runID := range runs {
		runIDs = append(runIDs, runID)
	}
	sort.Strings(runIDs)

	series := make([]types.AlignedSeries, 0, len(runIDs))
	for _, runID := range runIDs {
		points := dedupePoints(capPoints(runs[runID], maxStep))
		if len(points) == 0 {
			continue
		}
		series = append(series, types.AlignedSeries{
			RunID:  runID,
			Grid:   grid,
			Values: resample(points, grid),
		})
	}

	return series
}

// capPoints drops points beyond the step cap. Input is already ordered.
func capPoints(points []types.RawPoint, maxStep *uint64) []types.RawPoint {
	if maxStep == nil {
		return points
	}
	cut := len(points)
	for i, p := range points {
		if p.Step > *maxStep {
			cut = i
			break
		}
	}
	return points[:cut]
}

// dedupePoints collapses runs of equal steps in an ordered sequence, keeping
// the last value. Store reads and CSV parsing already dedupe; this covers
// callers handing Align raw sequences.
func dedupePoints(points []types.RawPoint) []types.RawPoint {
	for i := 1; i < len(points); i++ {
		if points[i].Step == points[i-1].Step {
			out := make([]types.RawPoint, 0, len(points))
			out = append(out, points[:i-1]...)
			for _, p := range points[i-1:] {
				if n := len(out); n > 0 && out[n-1].Step == p.Step {
					out[n-1] = p
					continue
				}
				out = append(out, p)
			}
			return out
		}
	}
	return points
}

// resample evaluates one ordered point sequence at every grid step: the
// exact value when present, linear interpolation between the bracketing
// points otherwise, NaN outside the run's logged range.
func resample(points []types.RawPoint, grid []uint64) []float64 {
	values := make([]float64, len(grid))
	j := 0 // index of the first point with Step >= grid[i]

	for i, step := range grid {
		for j < len(points) && points[j].Step < step {
			j++
		}

		switch {
		case j < len(points) && points[j].Step == step:
			values[i] = points[j].Value
		case j == 0 || j == len(points):
			// Before the first point or after the last one.
			values[i] = math.NaN()
		default:
			values[i] = lerp(points[j-1], points[j], step)
		}
	}

	return values
}

func lerp(a, b types.RawPoint, step uint64) float64 {
	span := float64(b.Step - a.Step)
	if span == 0 {
		return b.Value
	}
	t := float64(step-a.Step) / span
	return a.Value + t*(b.Value-a.Value)
}
