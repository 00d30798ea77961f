package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/vjranagit/runmetrics/pkg/types"
)

// Store-level errors. Per-run data problems are handled upstream as
// warnings; these indicate a broken caller contract.
var (
	ErrRunExists       = errors.New("run already exists")
	ErrRunNotFound     = errors.New("run not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrMetricNotFound  = errors.New("metric not found")
	ErrStepOutOfOrder  = errors.New("step out of order")
)

// RunStore is the append-only experiment metric log.
type RunStore interface {
	// CreateRun registers a run with its immutable config. The project is
	// created on first use. An empty runID gets a generated one.
	CreateRun(ctx context.Context, project, runID string, config map[string]any) (types.RunInfo, error)

	// Append logs one point for a run's metric. Steps must be non-decreasing
	// per metric within a session.
	Append(ctx context.Context, project, runID, metric string, step uint64, value float64) error

	// ReadAll returns the full ordered point sequence for a run's metric,
	// with duplicate steps collapsed last-wins.
	ReadAll(ctx context.Context, project, runID, metric string) ([]types.RawPoint, error)

	// ListRuns returns every run in a project with its config.
	ListRuns(ctx context.Context, project string) ([]types.RunInfo, error)

	// ListMetrics returns the metric names logged for one run.
	ListMetrics(ctx context.Context, project, runID string) ([]string, error)

	// Flush forces buffered points into durable blocks.
	Flush() error

	// Close flushes and closes the store.
	Close() error
}

// Config holds store configuration.
type Config struct {
	Path             string
	CompressionLevel int
	BlockSize        int
	EnableWAL        bool
}

// DefaultConfig returns default store configuration.
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
		BlockSize:        512,
		EnableWAL:        true,
	}
}

// badgerStore implements RunStore on BadgerDB.
type badgerStore struct {
	cfg        *Config
	db         *badger.DB
	catalog    *Catalog
	compressor *Compressor
	wal        *WAL

	mu       sync.RWMutex
	buffers  map[SeriesID]*seriesBuffer
	runs     map[string]struct{} // "project/runID" keys known to exist
	blockSeq uint64              // guarded by mu; disambiguates block keys
}

// seriesBuffer holds points not yet flushed into a block.
type seriesBuffer struct {
	project  string
	runID    string
	metric   string
	points   []types.RawPoint
	lastStep uint64
	hasLast  bool
}

type blockPayload struct {
	Count            int    `json:"count"`
	CompressedSteps  []byte `json:"steps"`
	CompressedValues []byte `json:"values"`
}

// NewStore opens (or creates) a run store at cfg.Path, replaying any WAL
// left behind by an unclean shutdown.
func NewStore(cfg *Config) (RunStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 512
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &badgerStore{
		cfg:        cfg,
		db:         db,
		catalog:    NewCatalog(),
		compressor: compressor,
		buffers:    make(map[SeriesID]*seriesBuffer),
		runs:       make(map[string]struct{}),
		// Seed the block sequence from the clock so keys from earlier
		// sessions are never reused.
		blockSeq: uint64(time.Now().UnixNano()),
	}

	if err := s.loadCatalog(); err != nil {
		s.closeQuiet()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	if cfg.EnableWAL {
		if err := ReplayWAL(cfg.Path, func(entry *WALEntry) error {
			err := s.appendBuffered(entry.Project, entry.RunID, entry.Metric, entry.Step, entry.Value)
			if errors.Is(err, ErrStepOutOfOrder) {
				// Segments written before the pre-WAL ordering check may
				// carry rejected points. The read path sorts and dedupes,
				// so skipping here loses nothing.
				return nil
			}
			return err
		}); err != nil {
			s.closeQuiet()
			return nil, fmt.Errorf("failed to replay WAL: %w", err)
		}

		wal, err := NewWAL(cfg.Path)
		if err != nil {
			s.closeQuiet()
			return nil, fmt.Errorf("failed to open WAL: %w", err)
		}
		s.wal = wal
	}

	return s, nil
}

// loadCatalog rebuilds the in-memory series catalog from metric markers.
func (s *badgerStore) loadCatalog() error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("m/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			parts := strings.SplitN(string(it.Item().Key()[len(prefix):]), "/", 3)
			if len(parts) != 3 {
				continue
			}
			s.catalog.AddSeries(parts[0], parts[1], parts[2])
		}
		return nil
	})
}

// CreateRun implements RunStore.CreateRun.
func (s *badgerStore) CreateRun(ctx context.Context, project, runID string, config map[string]any) (types.RunInfo, error) {
	if project == "" {
		return types.RunInfo{}, fmt.Errorf("project name is required")
	}
	// Slashes are key separators; metric names may carry them, but project
	// and run IDs may not.
	if strings.Contains(project, "/") {
		return types.RunInfo{}, fmt.Errorf("project name must not contain '/': %q", project)
	}
	if strings.Contains(runID, "/") {
		return types.RunInfo{}, fmt.Errorf("run ID must not contain '/': %q", runID)
	}
	if runID == "" {
		runID = uuid.NewString()
	}

	info := types.RunInfo{
		Project:   project,
		RunID:     runID,
		Config:    config,
		CreatedAt: time.Now().UTC(),
	}

	infoBytes, err := json.Marshal(&info)
	if err != nil {
		return types.RunInfo{}, fmt.Errorf("failed to marshal run info: %w", err)
	}

	runKey := runInfoKey(project, runID)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(runKey); err == nil {
			return fmt.Errorf("%w: %s/%s", ErrRunExists, project, runID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if err := txn.Set(projectKey(project), []byte{}); err != nil {
			return err
		}
		return txn.Set(runKey, infoBytes)
	})
	if err != nil {
		return types.RunInfo{}, err
	}

	s.mu.Lock()
	s.runs[project+"/"+runID] = struct{}{}
	s.mu.Unlock()

	return info, nil
}

// Append implements RunStore.Append. The step is validated against the
// series buffer before the WAL write, so a rejected append is never made
// durable; replaying the WAL after a crash can only see accepted points.
func (s *badgerStore) Append(ctx context.Context, project, runID, metric string, step uint64, value float64) error {
	if err := s.checkRun(project, runID); err != nil {
		return err
	}

	id := s.catalog.AddSeries(project, runID, metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.bufferLocked(id, project, runID, metric)
	if err != nil {
		return err
	}

	if buf.hasLast && step < buf.lastStep {
		return fmt.Errorf("%w: step %d after %d for %s/%s/%s",
			ErrStepOutOfOrder, step, buf.lastStep, project, runID, metric)
	}

	if s.wal != nil {
		entry := &WALEntry{Project: project, RunID: runID, Metric: metric, Step: step, Value: value}
		if err := s.wal.Append(entry); err != nil {
			return fmt.Errorf("WAL append failed: %w", err)
		}
	}

	return s.pushLocked(id, buf, step, value)
}

// appendBuffered adds a point to the series buffer without touching the WAL.
// Used by WAL replay.
func (s *badgerStore) appendBuffered(project, runID, metric string, step uint64, value float64) error {
	id := s.catalog.AddSeries(project, runID, metric)

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := s.bufferLocked(id, project, runID, metric)
	if err != nil {
		return err
	}

	if buf.hasLast && step < buf.lastStep {
		return fmt.Errorf("%w: step %d after %d for %s/%s/%s",
			ErrStepOutOfOrder, step, buf.lastStep, project, runID, metric)
	}

	return s.pushLocked(id, buf, step, value)
}

// bufferLocked returns the series buffer, creating it and persisting the
// metric marker on first use. Caller holds s.mu.
func (s *badgerStore) bufferLocked(id SeriesID, project, runID, metric string) (*seriesBuffer, error) {
	buf, ok := s.buffers[id]
	if ok {
		return buf, nil
	}

	buf = &seriesBuffer{project: project, runID: runID, metric: metric}
	s.buffers[id] = buf

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metricKey(project, runID, metric), seriesIDBytes(id))
	}); err != nil {
		return nil, fmt.Errorf("failed to persist metric marker: %w", err)
	}
	return buf, nil
}

// pushLocked appends the point, flushing a block when the buffer is full.
// Caller holds s.mu.
func (s *badgerStore) pushLocked(id SeriesID, buf *seriesBuffer, step uint64, value float64) error {
	buf.points = append(buf.points, types.RawPoint{Step: step, Value: value})
	buf.lastStep = step
	buf.hasLast = true

	if len(buf.points) >= s.cfg.BlockSize {
		return s.flushBufferLocked(id, buf)
	}

	return nil
}

// flushBufferLocked writes the buffered points as one compressed block.
func (s *badgerStore) flushBufferLocked(id SeriesID, buf *seriesBuffer) error {
	if len(buf.points) == 0 {
		return nil
	}

	steps := make([]uint64, len(buf.points))
	values := make([]float64, len(buf.points))
	for i, p := range buf.points {
		steps[i] = p.Step
		values[i] = p.Value
	}

	compressedSteps, err := s.compressor.CompressSteps(steps)
	if err != nil {
		return fmt.Errorf("failed to compress steps: %w", err)
	}

	compressedValues, err := s.compressor.CompressValues(values)
	if err != nil {
		return fmt.Errorf("failed to compress values: %w", err)
	}

	payload := &blockPayload{
		Count:            len(buf.points),
		CompressedSteps:  compressedSteps,
		CompressedValues: compressedValues,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	s.blockSeq++
	key := blockKey(id, steps[0], s.blockSeq)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payloadBytes)
	}); err != nil {
		return fmt.Errorf("failed to write block: %w", err)
	}

	buf.points = buf.points[:0]
	return nil
}

// ReadAll implements RunStore.ReadAll.
func (s *badgerStore) ReadAll(ctx context.Context, project, runID, metric string) ([]types.RawPoint, error) {
	if err := s.checkRun(project, runID); err != nil {
		return nil, err
	}
	if !s.catalog.HasSeries(project, runID, metric) {
		return nil, fmt.Errorf("%w: %s for %s/%s", ErrMetricNotFound, metric, project, runID)
	}

	id := Fingerprint(project, runID, metric)

	var points []types.RawPoint
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := blockPrefix(id)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var payloadBytes []byte
			if err := it.Item().Value(func(val []byte) error {
				payloadBytes = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			blockPoints, err := s.decodeBlock(payloadBytes)
			if err != nil {
				return err
			}
			points = append(points, blockPoints...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read blocks: %w", err)
	}

	s.mu.RLock()
	if buf, ok := s.buffers[id]; ok {
		points = append(points, buf.points...)
	}
	s.mu.RUnlock()

	sort.SliceStable(points, func(i, j int) bool { return points[i].Step < points[j].Step })

	// Collapse duplicate steps, last value wins.
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

// decodeBlock unpacks one compressed block payload.
func (s *badgerStore) decodeBlock(payloadBytes []byte) ([]types.RawPoint, error) {
	var payload blockPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	steps, err := s.compressor.DecompressSteps(payload.CompressedSteps, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress steps: %w", err)
	}

	values, err := s.compressor.DecompressValues(payload.CompressedValues, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	points := make([]types.RawPoint, payload.Count)
	for i := 0; i < payload.Count; i++ {
		points[i] = types.RawPoint{Step: steps[i], Value: values[i]}
	}

	return points, nil
}

// ListRuns implements RunStore.ListRuns.
func (s *badgerStore) ListRuns(ctx context.Context, project string) ([]types.RunInfo, error) {
	exists, err := s.projectExists(project)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, project)
	}

	var runs []types.RunInfo
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte("r/" + project + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var info types.RunInfo
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				return err
			}
			runs = append(runs, info)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })
	return runs, nil
}

// ListMetrics implements RunStore.ListMetrics.
func (s *badgerStore) ListMetrics(ctx context.Context, project, runID string) ([]string, error) {
	if err := s.checkRun(project, runID); err != nil {
		return nil, err
	}
	return s.catalog.Metrics(project, runID), nil
}

// Flush implements RunStore.Flush.
func (s *badgerStore) Flush() error {
	if s.wal != nil {
		if err := s.wal.Flush(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, buf := range s.buffers {
		if err := s.flushBufferLocked(id, buf); err != nil {
			return err
		}
	}
	return nil
}

// Close implements RunStore.Close.
func (s *badgerStore) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}

	if s.wal != nil {
		if err := s.wal.Close(); err != nil {
			return err
		}
		// All buffered points are in blocks now; the WAL is obsolete.
		if err := s.wal.Remove(); err != nil {
			return err
		}
	}

	s.compressor.Close()
	return s.db.Close()
}

func (s *badgerStore) closeQuiet() {
	s.compressor.Close()
	s.db.Close()
}

// checkRun verifies the run was created, consulting the store once and
// caching the result.
func (s *badgerStore) checkRun(project, runID string) error {
	s.mu.RLock()
	_, known := s.runs[project+"/"+runID]
	s.mu.RUnlock()
	if known {
		return nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(runInfoKey(project, runID))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s/%s", ErrRunNotFound, project, runID)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.runs[project+"/"+runID] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *badgerStore) projectExists(project string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(projectKey(project))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Key layouts. The block keyspace uses the series fingerprint instead of raw
// names so block keys stay fixed-width and sort by start step.
func projectKey(project string) []byte {
	return []byte("p/" + project)
}

func runInfoKey(project, runID string) []byte {
	return []byte("r/" + project + "/" + runID)
}

func metricKey(project, runID, metric string) []byte {
	return []byte("m/" + project + "/" + runID + "/" + metric)
}

func seriesIDBytes(id SeriesID) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func blockPrefix(id SeriesID) []byte {
	buf := new(bytes.Buffer)
	buf.WriteString("b/")
	buf.Write(seriesIDBytes(id))
	buf.WriteByte('/')
	return buf.Bytes()
}

// blockKey carries a sequence suffix so two blocks starting at the same
// step never overwrite each other. Reads sort decoded points by step, so key
// order beyond the prefix does not matter.
func blockKey(id SeriesID, startStep, seq uint64) []byte {
	buf := bytes.NewBuffer(blockPrefix(id))
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], startStep)
	binary.BigEndian.PutUint64(b[8:], seq)
	buf.Write(b[:])
	return buf.Bytes()
}
