package store

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// SeriesID identifies one (project, run, metric) sequence in the log.
type SeriesID uint64

// Fingerprint derives the stable SeriesID for a metric sequence. The NUL
// separator keeps ("a", "bc") and ("ab", "c") from colliding.
func Fingerprint(project, runID, metric string) SeriesID {
	h := xxhash.New()
	h.WriteString(project)
	h.Write([]byte{0})
	h.WriteString(runID)
	h.Write([]byte{0})
	h.WriteString(metric)
	return SeriesID(h.Sum64())
}

// Catalog is the in-memory view of which metric series exist per run. The
// durable copy lives in the key-value store; the catalog is rebuilt from it
// on open and kept current on writes.
type Catalog struct {
	mu      sync.RWMutex
	series  map[SeriesID]seriesEntry
	metrics map[string]map[string][]string // project -> run -> metric names
}

type seriesEntry struct {
	Project string
	RunID   string
	Metric  string
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		series:  make(map[SeriesID]seriesEntry),
		metrics: make(map[string]map[string][]string),
	}
}

// AddSeries registers a metric series and returns its ID. Registering the
// same series twice returns the same ID.
func (c *Catalog) AddSeries(project, runID, metric string) SeriesID {
	id := Fingerprint(project, runID, metric)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.series[id]; exists {
		return id
	}

	c.series[id] = seriesEntry{Project: project, RunID: runID, Metric: metric}

	if c.metrics[project] == nil {
		c.metrics[project] = make(map[string][]string)
	}
	c.metrics[project][runID] = append(c.metrics[project][runID], metric)

	return id
}

// HasSeries reports whether the series has been registered.
func (c *Catalog) HasSeries(project, runID, metric string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.series[Fingerprint(project, runID, metric)]
	return ok
}

// Metrics lists the metric names logged for one run, sorted.
func (c *Catalog) Metrics(project, runID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	runs, ok := c.metrics[project]
	if !ok {
		return nil
	}
	names := append([]string(nil), runs[runID]...)
	sort.Strings(names)
	return names
}

// SeriesCount returns the number of registered series.
func (c *Catalog) SeriesCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.series)
}
