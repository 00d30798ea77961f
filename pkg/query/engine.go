// Package query wires the run store and the curve pipeline into the
// request surface consumed by renderers and summary reports.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/vjranagit/runmetrics/pkg/curve"
	"github.com/vjranagit/runmetrics/pkg/store"
	"github.com/vjranagit/runmetrics/pkg/types"
)

// Engine executes aggregation queries against a run store. Every query
// recomputes its derived series from the log; nothing is cached, so
// concurrent queries never share mutable state.
type Engine struct {
	store store.RunStore
}

// NewEngine creates a query engine on top of a run store.
func NewEngine(s store.RunStore) *Engine {
	return &Engine{store: s}
}

// Query runs the full pipeline for one request: scope resolution, optional
// grouping, then align, smooth and aggregate per group. Per-run problems
// (missing metric, empty run) turn into warnings and skips; the result is
// always well-formed, possibly with zero series. Hard errors are reserved
// for caller-contract violations: unknown project, empty group key, missing
// required parameters.
func (e *Engine) Query(ctx context.Context, req *types.QueryRequest) (*types.QueryResult, error) {
	if req.Project == "" {
		return nil, fmt.Errorf("project is required")
	}
	if req.Metric == "" {
		return nil, fmt.Errorf("metric is required")
	}
	if !req.Dispersion.Valid() {
		return nil, fmt.Errorf("unknown dispersion mode %q", req.Dispersion)
	}

	runs, err := e.store.ListRuns(ctx, req.Project)
	if err != nil {
		return nil, err
	}

	result := &types.QueryResult{Series: []types.LabeledSeries{}}

	groups, err := e.resolveScope(req, runs, result)
	if err != nil {
		return nil, err
	}

	for _, label := range curve.GroupLabels(groups) {
		agg := e.aggregateGroup(ctx, req, label, groups[label], result)
		if agg == nil || agg.Len() == 0 {
			warnf(result, "group %q: no data for metric %q", label, req.Metric)
			continue
		}
		result.Series = append(result.Series, types.LabeledSeries{Label: label, Series: agg})
	}

	return result, nil
}

// Summarize reduces each group of a query to scalar statistics. A query that
// matched no data returns one explicit no-data row rather than failing, so
// batch summaries over many projects and metrics can proceed.
func (e *Engine) Summarize(ctx context.Context, req *types.QueryRequest) ([]types.Summary, []string, error) {
	result, err := e.Query(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	if len(result.Series) == 0 {
		return []types.Summary{{Label: req.Metric, NoData: true}}, result.Warnings, nil
	}

	summaries := make([]types.Summary, 0, len(result.Series))
	for _, ls := range result.Series {
		summaries = append(summaries, curve.Summarize(ls.Label, ls.Series))
	}
	return summaries, result.Warnings, nil
}

// resolveScope maps the request onto group label -> run IDs. An explicit run
// subset overrides grouping and collapses into a single group labeled by the
// metric; so does the ungrouped case, which combines every run in scope.
func (e *Engine) resolveScope(req *types.QueryRequest, runs []types.RunInfo, result *types.QueryResult) (map[string][]string, error) {
	if len(req.Runs) > 0 {
		known := make(map[string]struct{}, len(runs))
		for _, run := range runs {
			known[run.RunID] = struct{}{}
		}

		var scoped []string
		for _, runID := range req.Runs {
			if _, ok := known[runID]; !ok {
				warnf(result, "run %q: not found in project %q", runID, req.Project)
				continue
			}
			scoped = append(scoped, runID)
		}
		return map[string][]string{req.Metric: scoped}, nil
	}

	if req.GroupBy != "" {
		return curve.GroupRuns(runs, req.GroupBy)
	}

	all := make([]string, 0, len(runs))
	for _, run := range runs {
		all = append(all, run.RunID)
	}
	return map[string][]string{req.Metric: all}, nil
}

// aggregateGroup pushes one group of runs through read -> align -> smooth ->
// aggregate, accumulating skip warnings along the way.
func (e *Engine) aggregateGroup(ctx context.Context, req *types.QueryRequest, label string, runIDs []string, result *types.QueryResult) *types.AggregateSeries {
	points := make(map[string][]types.RawPoint, len(runIDs))
	for _, runID := range runIDs {
		runPoints, err := e.store.ReadAll(ctx, req.Project, runID, req.Metric)
		if err != nil {
			if errors.Is(err, store.ErrMetricNotFound) {
				warnf(result, "run %q: metric %q not logged", runID, req.Metric)
				continue
			}
			warnf(result, "run %q: read failed: %v", runID, err)
			continue
		}
		if len(runPoints) == 0 {
			warnf(result, "run %q: no points logged", runID)
			continue
		}
		points[runID] = runPoints
	}

	if len(points) == 0 {
		return nil
	}

	aligned := curve.Align(points, req.MaxStep)
	for _, runID := range missingRuns(points, aligned) {
		warnf(result, "run %q: no points within step cap", runID)
	}

	smoothed := curve.SmoothAll(aligned, req.SmoothWindow)
	return curve.Aggregate(smoothed, req.Dispersion)
}

// missingRuns lists runs that had points but produced no aligned series,
// which happens when a step cap excludes everything they logged.
func missingRuns(points map[string][]types.RawPoint, aligned []types.AlignedSeries) []string {
	contributed := make(map[string]struct{}, len(aligned))
	for _, s := range aligned {
		contributed[s.RunID] = struct{}{}
	}
	var missing []string
	for runID := range points {
		if _, ok := contributed[runID]; !ok {
			missing = append(missing, runID)
		}
	}
	sort.Strings(missing)
	return missing
}

func warnf(r *types.QueryResult, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.WithField("component", "query").Debug(msg)
	r.Warnings = append(r.Warnings, msg)
}
