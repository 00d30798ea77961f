package types

import "time"

// RawPoint is a single logged metric sample. Steps within a run are
// non-decreasing; a later point at the same step supersedes the earlier one.
type RawPoint struct {
	Step  uint64  `json:"step"`
	Value float64 `json:"value"`
}

// RunInfo describes one experiment run. Config is written once at run
// creation and never changes afterwards.
type RunInfo struct {
	Project   string         `json:"project"`
	RunID     string         `json:"run_id"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AlignedSeries is one run's metric resampled onto a shared step grid.
// Values holds one entry per grid step; NaN marks a grid step the run has no
// data for (before its first point or after its last).
type AlignedSeries struct {
	RunID  string    `json:"run_id"`
	Grid   []uint64  `json:"grid"`
	Values []float64 `json:"values"`
}

// AggregateSeries is the pointwise combination of several aligned series.
// Count[i] is the number of runs contributing at Grid[i]; it is always >= 1
// because grid steps with no contributors are dropped entirely.
type AggregateSeries struct {
	Grid       []uint64  `json:"grid"`
	Mean       []float64 `json:"mean"`
	Dispersion []float64 `json:"dispersion"`
	Count      []int     `json:"count"`
}

// Len returns the number of grid points in the series.
func (s *AggregateSeries) Len() int {
	return len(s.Grid)
}

// DispersionMode selects how run-to-run spread is reported.
type DispersionMode string

const (
	// SampleStdDev is the n-1 denominator standard deviation across runs.
	SampleStdDev DispersionMode = "sample_stddev"
	// PopulationStdDev is the n denominator standard deviation across runs.
	PopulationStdDev DispersionMode = "population_stddev"
	// StandardError is the sample standard deviation divided by sqrt(n).
	StandardError DispersionMode = "stderr"
)

// Valid reports whether m is a known mode. The empty string is valid and
// means SampleStdDev.
func (m DispersionMode) Valid() bool {
	switch m {
	case "", SampleStdDev, PopulationStdDev, StandardError:
		return true
	}
	return false
}

// QueryRequest selects and shapes one aggregation query.
type QueryRequest struct {
	Project string `json:"project"`
	Metric  string `json:"metric"`
	// GroupBy partitions runs by a config key; empty means one combined group.
	GroupBy string `json:"group_by,omitempty"`
	// Runs restricts the query to an explicit run subset and overrides GroupBy.
	Runs []string `json:"runs,omitempty"`
	// MaxStep caps the grid; nil means uncapped.
	MaxStep *uint64 `json:"max_step,omitempty"`
	// SmoothWindow is the EMA window; values <= 1 leave the data untouched.
	SmoothWindow int `json:"smooth_window,omitempty"`
	// Dispersion defaults to SampleStdDev when empty.
	Dispersion DispersionMode `json:"dispersion,omitempty"`
}

// LabeledSeries pairs an aggregate with the label a renderer should show,
// either the group value or the run scope name.
type LabeledSeries struct {
	Label  string           `json:"label"`
	Series *AggregateSeries `json:"series"`
}

// QueryResult is always returned, possibly with zero series. Warnings carry
// per-run skip reasons that did not abort the query.
type QueryResult struct {
	Series   []LabeledSeries `json:"series"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Summary reduces one labeled aggregate to scalar statistics. NoData is set
// when no run in scope carried the metric; the numeric fields are then zero.
type Summary struct {
	Label           string  `json:"label"`
	Best            float64 `json:"best"`
	BestDispersion  float64 `json:"best_dispersion"`
	BestStep        uint64  `json:"best_step"`
	BestN           int     `json:"best_n"`
	Final           float64 `json:"final"`
	FinalDispersion float64 `json:"final_dispersion"`
	FinalStep       uint64  `json:"final_step"`
	FinalN          int     `json:"final_n"`
	NoData          bool    `json:"no_data"`
}

// AppendRequest is the wire form of a batched metric append for one run.
type AppendRequest struct {
	Project string                `json:"project"`
	RunID   string                `json:"run_id"`
	Metrics map[string][]RawPoint `json:"metrics"`
}

// CreateRunRequest is the wire form of run creation. An empty RunID asks the
// store to generate one.
type CreateRunRequest struct {
	Project string         `json:"project"`
	RunID   string         `json:"run_id,omitempty"`
	Config  map[string]any `json:"config,omitempty"`
}
