package db

import (
	"bytes"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestApplyPragmas(t *testing.T) {
	db := setupTestDB(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected journal_mode 'wal', got '%s'", journalMode)
	}

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys 1, got %d", foreignKeys)
	}
}

func TestApplyPragmas_ErrorPath(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	sqlDB.Close()

	if err := applyPragmas(sqlDB); err == nil {
		t.Error("Expected error when applying pragmas to closed database")
	}
}

func TestRunLifecycle(t *testing.T) {
	db := setupTestDB(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := &Run{Session: 2, Variant: "1_1", Seed: 1 << 63, StartedAt: started}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("CreateRun did not assign an ID")
	}

	got, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.FinishedAt != nil {
		t.Errorf("Expected unfinished run, got finished at %v", got.FinishedAt)
	}
	if diff := cmp.Diff(run, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}

	finished := started.Add(2 * time.Minute)
	if err := db.FinishRun(run.ID, finished, 1201, "NEES Angle; consistent"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}
	got, err = db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("Expected finished at %v, got %v", finished, got.FinishedAt)
	}
	if got.Cycles != 1201 || got.Report != "NEES Angle; consistent" {
		t.Errorf("Unexpected run summary: cycles=%d report=%q", got.Cycles, got.Report)
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := setupTestDB(t)

	if _, err := db.GetRun("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if err := db.FinishRun("missing", time.Now(), 0, ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestRunsOrder(t *testing.T) {
	db := setupTestDB(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, session := range []int{3, 1, 2} {
		if err := db.CreateRun(&Run{Session: session, Variant: "1_0", StartedAt: start}); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	var sessions []int
	for _, r := range runs {
		sessions = append(sessions, r.Session)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, sessions); diff != "" {
		t.Errorf("session order mismatch (-want +got):\n%s", diff)
	}
}

func TestEstimatesRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{Variant: "1_1", StartedAt: time.Unix(0, 0)}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rate := 0.01
	records := []EstimateRecord{
		{Time: 0.1, PositionX: 1, PositionY: 2, PositionPX: 4, PositionPY: 4, VelocityX: 3, VelocityY: 4, Speed: 5, SpeedP: 0.5},
		{Time: 0.2, FromFilter: true, PositionX: 1.5, PositionY: 2.5, PositionPX: 3, PositionPY: 3,
			VelocityX: 3, VelocityY: 4, Speed: 5, SpeedP: 0.4, Angle: 0.3, AngleP: 0.02, AngleSpeed: &rate, Truth: &Truth{X: 1.4, Y: 2.6, Speed: 5.1, Angle: 0.35}},
	}
	if err := db.RecordEstimates(run.ID, records); err != nil {
		t.Fatalf("RecordEstimates failed: %v", err)
	}

	got, err := db.Estimates(run.ID)
	if err != nil {
		t.Fatalf("Estimates failed: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("estimates mismatch (-want +got):\n%s", diff)
	}

	// Duplicate times violate the primary key and roll the batch back.
	if err := db.RecordEstimates(run.ID, []EstimateRecord{{Time: 0.3}, {Time: 0.1}}); err == nil {
		t.Error("Expected error for duplicate estimate time")
	}
	got, err = db.Estimates(run.ID)
	if err != nil {
		t.Fatalf("Estimates failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("Expected rollback to keep 2 estimates, got %d", len(got))
	}
}

func TestEstimatesRequireRun(t *testing.T) {
	db := setupTestDB(t)

	if err := db.RecordEstimates("missing", []EstimateRecord{{Time: 1}}); err == nil {
		t.Error("Expected foreign key violation for unknown run")
	}
}

func TestConsistencyAndCascade(t *testing.T) {
	db := setupTestDB(t)

	run := &Run{Variant: "2_1", StartedAt: time.Unix(100, 0)}
	if err := db.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	records := []ConsistencyRecord{
		{Metric: "NEES Position", Count: 10, DOF: 20, Mean: 2.1, MeanPerDOF: 1.05, Lower: 0.59, Upper: 1.49, Consistent: true},
		{Metric: "NIS", Count: 5, DOF: 5, Mean: 4, MeanPerDOF: 4, Lower: 0.17, Upper: 2.57},
	}
	if err := db.RecordConsistency(run.ID, records); err != nil {
		t.Fatalf("RecordConsistency failed: %v", err)
	}
	// Recording again replaces the previous summary.
	if err := db.RecordConsistency(run.ID, records); err != nil {
		t.Fatalf("RecordConsistency failed: %v", err)
	}
	got, err := db.Consistency(run.ID)
	if err != nil {
		t.Fatalf("Consistency failed: %v", err)
	}
	if diff := cmp.Diff(records, got); diff != "" {
		t.Errorf("consistency mismatch (-want +got):\n%s", diff)
	}

	if err := db.RecordEstimates(run.ID, []EstimateRecord{{Time: 1}}); err != nil {
		t.Fatalf("RecordEstimates failed: %v", err)
	}
	if err := db.DeleteRun(run.ID); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	for _, table := range []string{"estimates", "consistency"} {
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			t.Fatalf("count %s failed: %v", table, err)
		}
		if n != 0 {
			t.Errorf("Expected %s to cascade, %d rows left", table, n)
		}
	}
}

func TestMigrations(t *testing.T) {
	db := setupTestDB(t)
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if latest != 3 {
		t.Errorf("Expected latest version 3, got %d", latest)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("Expected version %d clean, got %d dirty=%v", latest, version, dirty)
	}

	if err := db.MigrateTo(migrationsFS, 1); err != nil {
		t.Fatalf("MigrateTo failed: %v", err)
	}
	var exists bool
	if err := db.QueryRow(`SELECT COUNT(*) > 0 FROM sqlite_master WHERE type='table' AND name='consistency'`).Scan(&exists); err != nil {
		t.Fatalf("table check failed: %v", err)
	}
	if exists {
		t.Error("Expected consistency table to be dropped")
	}

	if err := db.MigrateUp(migrationsFS); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	status, err := db.GetMigrationStatus(migrationsFS)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status["current_version"] != uint(3) || status["schema_migrations_exists"] != true {
		t.Errorf("Unexpected status: %v", status)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	var out bytes.Buffer
	if err := RunMigrateCommand([]string{"up"}, path, &out); err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 3 (dirty: false)") {
		t.Errorf("Unexpected output: %q", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"version", "1"}, path, &out); err != nil {
		t.Fatalf("migrate version failed: %v", err)
	}
	out.Reset()
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("migrate status failed: %v", err)
	}
	if !strings.Contains(out.String(), "2 version(s) behind") {
		t.Errorf("Unexpected status output: %q", out.String())
	}

	for _, args := range [][]string{nil, {"bogus"}, {"version"}, {"force", "x"}} {
		if err := RunMigrateCommand(args, path, &out); err == nil {
			t.Errorf("Expected error for args %v", args)
		}
	}
	out.Reset()
	if err := RunMigrateCommand([]string{"help"}, path, &out); err != nil {
		t.Errorf("help failed: %v", err)
	}
	if !strings.Contains(out.String(), "Usage: navsim migrate") {
		t.Errorf("Unexpected help output: %q", out.String())
	}
}
