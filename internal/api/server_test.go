package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/heading/internal/db"
)

func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	run := &db.Run{Session: 1, Variant: "1_1", Seed: 7, StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := database.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	records := []db.EstimateRecord{
		{Time: 0, Speed: 10, SpeedP: 1},
		{Time: 0.1, FromFilter: true, Speed: 10, SpeedP: 1, Angle: 0.5, AngleP: 0.0004, Truth: &db.Truth{Speed: 10, Angle: 0.5}},
	}
	if err := database.RecordEstimates(run.ID, records); err != nil {
		t.Fatalf("RecordEstimates failed: %v", err)
	}
	consistency := []db.ConsistencyRecord{{Metric: "NEES Angle", Count: 1, DOF: 1, Mean: 0.5, MeanPerDOF: 0.5, Lower: 0.001, Upper: 5.02, Consistent: true}}
	if err := database.RecordConsistency(run.ID, consistency); err != nil {
		t.Fatalf("RecordConsistency failed: %v", err)
	}
	if err := database.FinishRun(run.ID, run.StartedAt.Add(time.Second), 2, "NEES Angle; consistent"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	return NewServer(database, "mps"), run.ID
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	LoggingMiddleware(s.ServeMux()).ServeHTTP(w, req)
	return w
}

func TestListRuns(t *testing.T) {
	s, id := setupTestServer(t)

	w := get(t, s, "/api/runs")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var runs []RunAPI
	if err := json.NewDecoder(w.Body).Decode(&runs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].Cycles != 2 {
		t.Errorf("Unexpected runs: %+v", runs)
	}
	if runs[0].Consistency != nil {
		t.Errorf("Run listing should not include consistency, got %+v", runs[0].Consistency)
	}
}

func TestShowRun(t *testing.T) {
	s, id := setupTestServer(t)

	w := get(t, s, "/api/runs/"+id)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var run RunAPI
	if err := json.NewDecoder(w.Body).Decode(&run); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(run.Consistency) != 1 || run.Consistency[0].Metric != "NEES Angle" || !run.Consistency[0].Consistent {
		t.Errorf("Unexpected consistency: %+v", run.Consistency)
	}
	if run.FinishedAt == nil {
		t.Error("Expected finished_at to be set")
	}

	w = get(t, s, "/api/runs/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 for unknown run, got %d", w.Code)
	}
}

func TestListEstimates(t *testing.T) {
	s, id := setupTestServer(t)

	w := get(t, s, "/api/runs/"+id+"/estimates?units=kph")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var estimates []EstimateAPI
	if err := json.NewDecoder(w.Body).Decode(&estimates); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	angle, sd := 28.64789, 1.14592
	want := []EstimateAPI{
		{Time: 0, Speed: 36},
		{Time: 0.1, FromFilter: true, Speed: 36, AngleDeg: &angle, AngleSDDeg: &sd},
	}
	if diff := cmp.Diff(want, estimates, cmpopts.EquateApprox(0, 1e-4)); diff != "" {
		t.Errorf("Estimates mismatch (-want +got):\n%s", diff)
	}

	w = get(t, s, "/api/runs/"+id+"/estimates?units=furlongs")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for invalid units, got %d", w.Code)
	}
}

func TestShowChart(t *testing.T) {
	s, id := setupTestServer(t)

	w := get(t, s, "/runs/"+id+"/chart?units=mph")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "Session 1 (1_1) - Speed") {
		t.Error("Chart does not contain the speed chart title")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	w := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{302, colorYellow + "302" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{500, colorBoldRed + "500" + colorReset},
		{100, "100"},
	}
	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
