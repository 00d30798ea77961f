package api

import (
	"net/http/httptest"
	"testing"

	"github.com/vjranagit/runmetrics/pkg/types"
)

func TestParseQueryRequest(t *testing.T) {
	r := httptest.NewRequest("GET",
		"/api/v1/query?project=proj&metric=loss&runs=r1,r2&max_step=100&smooth_window=5&dispersion=stderr", nil)

	req, err := parseQueryRequest(r)
	if err != nil {
		t.Fatalf("Failed to parse request: %v", err)
	}
	if req.Project != "proj" || req.Metric != "loss" {
		t.Errorf("Unexpected scope: %+v", req)
	}
	if len(req.Runs) != 2 || req.Runs[0] != "r1" || req.Runs[1] != "r2" {
		t.Errorf("Unexpected runs: %v", req.Runs)
	}
	if req.MaxStep == nil || *req.MaxStep != 100 {
		t.Errorf("Unexpected max_step: %v", req.MaxStep)
	}
	if req.SmoothWindow != 5 {
		t.Errorf("Unexpected smooth_window: %d", req.SmoothWindow)
	}
	if req.Dispersion != types.StandardError {
		t.Errorf("Unexpected dispersion: %q", req.Dispersion)
	}
}

func TestParseQueryRequestRejectsUnknownDispersion(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/query?project=proj&metric=loss&dispersion=stdev", nil)
	if _, err := parseQueryRequest(r); err == nil {
		t.Fatal("Expected error for unknown dispersion mode")
	}

	// The empty mode means the default and stays valid.
	r = httptest.NewRequest("GET", "/api/v1/query?project=proj&metric=loss", nil)
	if _, err := parseQueryRequest(r); err != nil {
		t.Fatalf("Expected default dispersion to parse, got %v", err)
	}
}
