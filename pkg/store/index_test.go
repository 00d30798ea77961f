package store

import "testing"

func TestFingerprintStableAndDistinct(t *testing.T) {
	a := Fingerprint("proj", "run1", "loss")
	b := Fingerprint("proj", "run1", "loss")
	if a != b {
		t.Error("Expected identical fingerprints for the same series")
	}

	if Fingerprint("proj", "run1", "reward") == a {
		t.Error("Expected different fingerprints for different metrics")
	}

	// Boundary ambiguity between fields must not collide.
	if Fingerprint("pr", "oj/run1", "loss") == a {
		t.Error("Expected separator to keep shifted fields distinct")
	}
}

func TestCatalogAddSeries(t *testing.T) {
	c := NewCatalog()

	id := c.AddSeries("proj", "run1", "loss")
	if id2 := c.AddSeries("proj", "run1", "loss"); id2 != id {
		t.Errorf("Expected same ID for duplicate series: %d != %d", id, id2)
	}

	if c.SeriesCount() != 1 {
		t.Errorf("Expected 1 series, got %d", c.SeriesCount())
	}

	if !c.HasSeries("proj", "run1", "loss") {
		t.Error("Expected series to be registered")
	}
	if c.HasSeries("proj", "run1", "reward") {
		t.Error("Unexpected series registered")
	}
}

func TestCatalogMetrics(t *testing.T) {
	c := NewCatalog()
	c.AddSeries("proj", "run1", "reward")
	c.AddSeries("proj", "run1", "loss")
	c.AddSeries("proj", "run2", "loss")

	metrics := c.Metrics("proj", "run1")
	if len(metrics) != 2 || metrics[0] != "loss" || metrics[1] != "reward" {
		t.Errorf("Expected sorted [loss reward], got %v", metrics)
	}

	if got := c.Metrics("other", "run1"); got != nil {
		t.Errorf("Expected nil for unknown project, got %v", got)
	}
}
