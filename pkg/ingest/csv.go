package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vjranagit/runmetrics/pkg/store"
	"github.com/vjranagit/runmetrics/pkg/types"
)

// ReadCSV parses one exported run log. The header is resolved to step and
// value columns; rows with unparsable cells are skipped. The result is
// ordered by step with duplicate steps collapsed last-wins.
func ReadCSV(r io.Reader, resolver *Resolver) ([]types.RawPoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	stepCol, valueCol, err := resolver.Resolve(header)
	if err != nil {
		return nil, err
	}

	stepIdx, valueIdx := -1, -1
	for i, name := range header {
		if name == stepCol {
			stepIdx = i
		}
		if name == valueCol {
			valueIdx = i
		}
	}

	var points []types.RawPoint
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if stepIdx >= len(record) || valueIdx >= len(record) {
			continue
		}

		step, err := parseStep(record[stepIdx])
		if err != nil {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(record[valueIdx]), 64)
		if err != nil || math.IsNaN(value) {
			continue
		}

		points = append(points, types.RawPoint{Step: step, Value: value})
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Step < points[j].Step })

	deduped := points[:0]
	for _, p := range points {
		if len(deduped) > 0 && deduped[len(deduped)-1].Step == p.Step {
			deduped[len(deduped)-1] = p
			continue
		}
		deduped = append(deduped, p)
	}

	return deduped, nil
}

// parseStep accepts integer steps written either plainly or in float
// notation (tabular exports often write 1000.0).
func parseStep(cell string) (uint64, error) {
	cell = strings.TrimSpace(cell)
	if step, err := strconv.ParseUint(cell, 10, 64); err == nil {
		return step, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	// The upper bound guards the float-to-uint conversion, which is
	// undefined out of range.
	if err != nil || f < 0 || math.IsNaN(f) || f >= math.MaxUint64 {
		return 0, fmt.Errorf("not a step value: %q", cell)
	}
	return uint64(f), nil
}

// ImportDir creates one run per CSV file in dir and appends its points under
// metric. Per-file failures become warnings; the import continues.
func ImportDir(ctx context.Context, s store.RunStore, project, metric, dir string, resolver *Resolver, config map[string]any) ([]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var runIDs []string
	var warnings []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		points, err := readCSVFile(path, resolver)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", entry.Name(), err))
			continue
		}
		if len(points) == 0 {
			warnings = append(warnings, fmt.Sprintf("skipped %s: no usable rows", entry.Name()))
			continue
		}

		runID := strings.TrimSuffix(entry.Name(), ".csv")
		if _, err := s.CreateRun(ctx, project, runID, config); err != nil {
			warnings = append(warnings, fmt.Sprintf("skipped %s: %v", entry.Name(), err))
			continue
		}

		failed := false
		for _, p := range points {
			if err := s.Append(ctx, project, runID, metric, p.Step, p.Value); err != nil {
				warnings = append(warnings, fmt.Sprintf("partial import of %s: %v", entry.Name(), err))
				failed = true
				break
			}
		}
		if !failed {
			runIDs = append(runIDs, runID)
		}
	}

	return runIDs, warnings, nil
}

func readCSVFile(path string, resolver *Resolver) ([]types.RawPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, resolver)
}
