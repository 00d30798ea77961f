package store

import (
	"errors"
	"testing"
)

func TestWALAppendAndReplay(t *testing.T) {
	dir := t.TempDir()

	wal, err := NewWAL(dir)
	if err != nil {
		t.Fatalf("Failed to create WAL: %v", err)
	}

	entries := []WALEntry{
		{Project: "proj", RunID: "run1", Metric: "loss", Step: 0, Value: 1.5},
		{Project: "proj", RunID: "run1", Metric: "loss", Step: 100, Value: 1.2},
		{Project: "proj", RunID: "run2", Metric: "reward", Step: 0, Value: -3.0},
	}
	for i := range entries {
		if err := wal.Append(&entries[i]); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	if err := wal.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}

	var replayed []WALEntry
	err = ReplayWAL(dir, func(entry *WALEntry) error {
		replayed = append(replayed, *entry)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to replay WAL: %v", err)
	}

	if len(replayed) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(replayed))
	}
	for i := range entries {
		if replayed[i] != entries[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, entries[i], replayed[i])
		}
	}

	// Replayed segments are removed; a second replay sees nothing.
	count := 0
	if err := ReplayWAL(dir, func(*WALEntry) error { count++; return nil }); err != nil {
		t.Fatalf("Second replay failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty WAL after replay, got %d entries", count)
	}
}

func TestReplayWALMissingDirectory(t *testing.T) {
	err := ReplayWAL(t.TempDir(), func(*WALEntry) error {
		t.Fatal("Handler should not be called")
		return nil
	})
	if err != nil {
		t.Errorf("Expected nil for missing WAL directory, got %v", err)
	}
}

func TestStoreRecoversUnflushedAppendsFromWAL(t *testing.T) {
	path := t.TempDir()
	cfg := &Config{Path: path, CompressionLevel: 3, BlockSize: 100, EnableWAL: true}

	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	bs := s.(*badgerStore)
	if _, err := bs.CreateRun(nil, "proj", "run1", nil); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if err := bs.Append(nil, "proj", "run1", "loss", 0, 1.0); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := bs.Append(nil, "proj", "run1", "loss", 10, 2.0); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// Simulate a crash: sync the WAL and drop the store without flushing
	// buffers into blocks.
	if err := bs.wal.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}
	if err := bs.db.Close(); err != nil {
		t.Fatalf("Failed to close badger: %v", err)
	}

	s, err = NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s.Close()

	points, err := s.ReadAll(nil, "proj", "run1", "loss")
	if err != nil {
		t.Fatalf("Failed to read after recovery: %v", err)
	}
	if len(points) != 2 || points[0].Value != 1.0 || points[1].Value != 2.0 {
		t.Errorf("Expected recovered points, got %v", points)
	}
}

func TestStoreReopensAfterRejectedAppendAndCrash(t *testing.T) {
	path := t.TempDir()
	cfg := &Config{Path: path, CompressionLevel: 3, BlockSize: 100, EnableWAL: true}

	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	bs := s.(*badgerStore)
	if _, err := bs.CreateRun(nil, "proj", "run1", nil); err != nil {
		t.Fatalf("Failed to create run: %v", err)
	}
	if err := bs.Append(nil, "proj", "run1", "loss", 100, 1.0); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// A rejected append must not reach the WAL.
	err = bs.Append(nil, "proj", "run1", "loss", 50, 2.0)
	if !errors.Is(err, ErrStepOutOfOrder) {
		t.Fatalf("Expected ErrStepOutOfOrder, got %v", err)
	}

	// Simulate a crash: sync the WAL and drop the store without flushing.
	if err := bs.wal.Close(); err != nil {
		t.Fatalf("Failed to close WAL: %v", err)
	}
	if err := bs.db.Close(); err != nil {
		t.Fatalf("Failed to close badger: %v", err)
	}

	s, err = NewStore(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen store after rejected append: %v", err)
	}
	defer s.Close()

	points, err := s.ReadAll(nil, "proj", "run1", "loss")
	if err != nil {
		t.Fatalf("Failed to read after recovery: %v", err)
	}
	if len(points) != 1 || points[0].Step != 100 || points[0].Value != 1.0 {
		t.Errorf("Expected only the accepted point, got %v", points)
	}
}
