package db

import (
	"database/sql"
	"fmt"
)

// EstimateRecord is one stored measurement cycle result.
type EstimateRecord struct {
	Time       float64
	FromFilter bool
	PositionX  float64
	PositionY  float64
	PositionPX float64
	PositionPY float64
	VelocityX  float64
	VelocityY  float64
	Speed      float64
	SpeedP     float64
	Angle      float64
	AngleP     float64
	AngleSpeed *float64
	// Truth is set for simulated runs.
	Truth *Truth
}

// Truth is the simulated ground truth of one cycle.
type Truth struct {
	X     float64
	Y     float64
	Speed float64
	Angle float64
}

// ConsistencyRecord is the summary of one NEES or NIS accumulator.
type ConsistencyRecord struct {
	Metric     string  `json:"metric"`
	Count      int     `json:"count"`
	DOF        int     `json:"dof"`
	Mean       float64 `json:"mean"`
	MeanPerDOF float64 `json:"mean_per_dof"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Consistent bool    `json:"consistent"`
}

// RecordEstimates inserts the estimates of a run in one transaction.
func (db *DB) RecordEstimates(runID string, records []EstimateRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO estimates (
			run_id, time, from_filter, position_x, position_y, position_px, position_py,
			velocity_x, velocity_y, speed, speed_p, angle, angle_p, angle_speed,
			true_x, true_y, true_speed, true_angle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare estimate insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		var truth [4]sql.NullFloat64
		if r.Truth != nil {
			for i, v := range []float64{r.Truth.X, r.Truth.Y, r.Truth.Speed, r.Truth.Angle} {
				truth[i] = sql.NullFloat64{Float64: v, Valid: true}
			}
		}
		_, err := stmt.Exec(
			runID, r.Time, r.FromFilter, r.PositionX, r.PositionY, r.PositionPX, r.PositionPY,
			r.VelocityX, r.VelocityY, r.Speed, r.SpeedP, r.Angle, r.AngleP,
			nullFloat(r.AngleSpeed), truth[0], truth[1], truth[2], truth[3],
		)
		if err != nil {
			return fmt.Errorf("failed to insert estimate at %v: %w", r.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit estimates: %w", err)
	}
	return nil
}

// Estimates returns the estimates of a run in time order.
func (db *DB) Estimates(runID string) ([]EstimateRecord, error) {
	rows, err := db.Query(`SELECT
			time, from_filter, position_x, position_y, position_px, position_py,
			velocity_x, velocity_y, speed, speed_p, angle, angle_p, angle_speed,
			true_x, true_y, true_speed, true_angle
		FROM estimates WHERE run_id = ? ORDER BY time`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	var records []EstimateRecord
	for rows.Next() {
		var (
			r          EstimateRecord
			angleSpeed sql.NullFloat64
			truth      [4]sql.NullFloat64
		)
		if err := rows.Scan(
			&r.Time, &r.FromFilter, &r.PositionX, &r.PositionY, &r.PositionPX, &r.PositionPY,
			&r.VelocityX, &r.VelocityY, &r.Speed, &r.SpeedP, &r.Angle, &r.AngleP,
			&angleSpeed, &truth[0], &truth[1], &truth[2], &truth[3],
		); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		r.AngleSpeed = floatPtr(angleSpeed)
		if truth[3].Valid {
			r.Truth = &Truth{X: truth[0].Float64, Y: truth[1].Float64, Speed: truth[2].Float64, Angle: truth[3].Float64}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RecordConsistency replaces the consistency summary of a run.
func (db *DB) RecordConsistency(runID string, records []ConsistencyRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM consistency WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to clear consistency of run %s: %w", runID, err)
	}
	for _, r := range records {
		_, err := tx.Exec(
			`INSERT INTO consistency (run_id, metric, count, dof, mean, mean_per_dof, lower, upper, consistent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Metric, r.Count, r.DOF, r.Mean, r.MeanPerDOF, r.Lower, r.Upper, r.Consistent,
		)
		if err != nil {
			return fmt.Errorf("failed to insert consistency %q: %w", r.Metric, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit consistency: %w", err)
	}
	return nil
}

// Consistency returns the consistency summary of a run in insertion order.
func (db *DB) Consistency(runID string) ([]ConsistencyRecord, error) {
	rows, err := db.Query(`SELECT metric, count, dof, mean, mean_per_dof, lower, upper, consistent
		FROM consistency WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query consistency: %w", err)
	}
	defer rows.Close()

	var records []ConsistencyRecord
	for rows.Next() {
		var r ConsistencyRecord
		if err := rows.Scan(&r.Metric, &r.Count, &r.DOF, &r.Mean, &r.MeanPerDOF, &r.Lower, &r.Upper, &r.Consistent); err != nil {
			return nil, fmt.Errorf("failed to scan consistency: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
