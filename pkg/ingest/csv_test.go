package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vjranagit/runmetrics/pkg/store"
	"github.com/vjranagit/runmetrics/pkg/types"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"Step,episode_return,extra",
		"0,10.5,x",
		"1000,12.0,y",
		"2000,11.0,z",
	}, "\n")

	points, err := ReadCSV(strings.NewReader(input), NewResolver(nil, nil))
	require.NoError(t, err)
	require.Equal(t, []types.RawPoint{
		{Step: 0, Value: 10.5},
		{Step: 1000, Value: 12.0},
		{Step: 2000, Value: 11.0},
	}, points)
}

func TestReadCSVFloatStepsAndBadRows(t *testing.T) {
	input := strings.Join([]string{
		"global_step,rollout/ep_rew_mean",
		"1000.0,3.5",
		"not-a-number,4.0",
		"2000,NaN",
		"-5,4.0",
		"1e20,4.0",
		"3000,5.5",
	}, "\n")

	points, err := ReadCSV(strings.NewReader(input), NewResolver(nil, nil))
	require.NoError(t, err)
	require.Equal(t, []types.RawPoint{
		{Step: 1000, Value: 3.5},
		{Step: 3000, Value: 5.5},
	}, points)
}

func TestReadCSVSortsAndDeduplicates(t *testing.T) {
	input := strings.Join([]string{
		"Step,Value",
		"20,3",
		"0,1",
		"20,4",
		"10,2",
	}, "\n")

	points, err := ReadCSV(strings.NewReader(input), NewResolver(nil, nil))
	require.NoError(t, err)
	require.Equal(t, []types.RawPoint{
		{Step: 0, Value: 1},
		{Step: 10, Value: 2},
		{Step: 20, Value: 4}, // later row wins at a duplicate step
	}, points)
}

func TestReadCSVColumnNotFound(t *testing.T) {
	input := "wallclock,gpu_util\n1,2\n"

	_, err := ReadCSV(strings.NewReader(input), NewResolver(nil, nil))
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()

	writeFile := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	writeFile("seed1.csv", "Step,episode_return\n0,1.0\n10,2.0\n")
	writeFile("seed2.csv", "Step,episode_return\n0,1.5\n10,2.5\n")
	writeFile("broken.csv", "wallclock,gpu_util\n1,2\n")
	writeFile("notes.txt", "not a csv")

	s, err := store.NewStore(&store.Config{Path: t.TempDir(), CompressionLevel: 3, BlockSize: 4, EnableWAL: false})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	runIDs, warnings, err := ImportDir(ctx, s, "proj", "episode_return", dir, NewResolver(nil, nil), map[string]any{"source": "csv"})
	require.NoError(t, err)

	require.ElementsMatch(t, []string{"seed1", "seed2"}, runIDs)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "broken.csv")

	points, err := s.ReadAll(ctx, "proj", "seed1", "episode_return")
	require.NoError(t, err)
	require.Equal(t, []types.RawPoint{{Step: 0, Value: 1.0}, {Step: 10, Value: 2.0}}, points)

	runs, err := s.ListRuns(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "csv", runs[0].Config["source"])
}
