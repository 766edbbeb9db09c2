// Package api serves stored runs over HTTP: JSON listings of runs and their
// consistency statistics, and interactive charts of their estimates.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/heading/internal/db"
	"github.com/banshee-data/heading/internal/report"
	"github.com/banshee-data/heading/internal/units"
)

// ANSI escape codes for status colouring in the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db    *db.DB
	units string
}

// NewServer returns a server over db. Speeds default to units.
func NewServer(db *db.DB, units string) *Server {
	return &Server{
		db:    db,
		units: units,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/runs", s.listRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.showRun)
	mux.HandleFunc("GET /api/runs/{id}/estimates", s.listEstimates)
	mux.HandleFunc("GET /runs/{id}/chart", s.showChart)
	return mux
}

// RunAPI is the JSON form of a run.
type RunAPI struct {
	ID          string                 `json:"id"`
	Session     int                    `json:"session"`
	Variant     string                 `json:"variant"`
	Seed        uint64                 `json:"seed"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	Cycles      int                    `json:"cycles"`
	Consistency []db.ConsistencyRecord `json:"consistency,omitempty"`
}

func runAPI(r db.Run) RunAPI {
	return RunAPI{
		ID:         r.ID,
		Session:    r.Session,
		Variant:    r.Variant,
		Seed:       r.Seed,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Cycles:     r.Cycles,
	}
}

// EstimateAPI is the JSON form of an estimate with speed in the requested
// units and angles in degrees.
type EstimateAPI struct {
	Time       float64  `json:"time"`
	FromFilter bool     `json:"from_filter"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Speed      float64  `json:"speed"`
	AngleDeg   *float64 `json:"angle_deg,omitempty"`
	AngleSDDeg *float64 `json:"angle_sd_deg,omitempty"`
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.db.Runs()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	out := make([]RunAPI, 0, len(runs))
	for _, run := range runs {
		out = append(out, runAPI(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	consistency, err := s.db.Consistency(run.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load consistency: %v", err))
		return
	}
	out := runAPI(*run)
	out.Consistency = consistency
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listEstimates(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	speedUnits, ok := s.requestUnits(w, r)
	if !ok {
		return
	}
	records, err := s.db.Estimates(run.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load estimates: %v", err))
		return
	}

	out := make([]EstimateAPI, 0, len(records))
	for _, rec := range records {
		e := EstimateAPI{
			Time:       rec.Time,
			FromFilter: rec.FromFilter,
			X:          rec.PositionX,
			Y:          rec.PositionY,
			Speed:      units.ConvertSpeed(rec.Speed, speedUnits),
		}
		if rec.FromFilter {
			angle := units.RadiansToDegrees(rec.Angle)
			sd := units.RadiansToDegrees(math.Sqrt(rec.AngleP))
			e.AngleDeg, e.AngleSDDeg = &angle, &sd
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	run, ok := s.getRun(w, r)
	if !ok {
		return
	}
	speedUnits, ok := s.requestUnits(w, r)
	if !ok {
		return
	}
	records, err := s.db.Estimates(run.ID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load estimates: %v", err))
		return
	}

	title := fmt.Sprintf("Session %d (%s)", run.Session, run.Variant)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.WriteChart(w, title, speedUnits, report.Samples(records)); err != nil {
		log.Printf("failed to render chart for run %s: %v", run.ID, err)
	}
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) (*db.Run, bool) {
	id := r.PathValue("id")
	run, err := s.db.GetRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return nil, false
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load run: %v", err))
		return nil, false
	}
	return run, true
}

func (s *Server) requestUnits(w http.ResponseWriter, r *http.Request) (string, bool) {
	u := r.URL.Query().Get("units")
	if u == "" {
		return s.units, true
	}
	if !units.IsValid(u) {
		writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid 'units' parameter. Must be one of: %s", units.GetValidUnitsString()))
		return "", false
	}
	return u, true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode json response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
