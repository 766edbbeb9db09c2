package db

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Run is one simulated session passed through a heading filter.
type Run struct {
	ID         string
	Session    int
	Variant    string
	Seed       uint64
	StartedAt  time.Time
	FinishedAt *time.Time
	Cycles     int
	// Report is the text consistency summary written when the run ends.
	Report string
}

// ErrRunNotFound is returned when no run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// CreateRun inserts run, assigning a new ID when run.ID is empty.
func (db *DB) CreateRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, session, variant, seed, started_unix) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Session, run.Variant, int64(run.Seed), unixSeconds(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the end of a run with its cycle count and report.
func (db *DB) FinishRun(id string, finishedAt time.Time, cycles int, report string) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_unix = ?, cycles = ?, report = ? WHERE run_id = ?`,
		unixSeconds(finishedAt), cycles, report, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

const runColumns = `run_id, session, variant, seed, started_unix, finished_unix, cycles, report`

// GetRun returns the run with the given ID.
func (db *DB) GetRun(id string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// Runs returns every run ordered by start time then session.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_unix, session`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run together with its estimates and consistency rows.
func (db *DB) DeleteRun(id string) error {
	if _, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var (
		run      Run
		seed     int64
		started  float64
		finished sql.NullFloat64
		report   sql.NullString
	)
	if err := s.Scan(&run.ID, &run.Session, &run.Variant, &seed, &started, &finished, &run.Cycles, &report); err != nil {
		return nil, err
	}
	run.Seed = uint64(seed)
	run.StartedAt = fromUnixSeconds(started)
	if finished.Valid {
		t := fromUnixSeconds(finished.Float64)
		run.FinishedAt = &t
	}
	run.Report = report.String
	return &run, nil
}

// Times are stored as fractional unix seconds with microsecond precision.
func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond()/1e3)/1e6
}

func fromUnixSeconds(s float64) time.Time {
	sec := math.Floor(s)
	usec := math.Round((s - sec) * 1e6)
	return time.Unix(int64(sec), int64(usec)*1e3).UTC()
}
