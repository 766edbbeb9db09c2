package main

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/heading/internal/db"
	"github.com/banshee-data/heading/internal/filter/direction"
	"github.com/banshee-data/heading/internal/filter/estimation"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/publish"
	"github.com/banshee-data/heading/internal/report"
	"github.com/banshee-data/heading/internal/simulator"
	"github.com/banshee-data/heading/internal/timeutil"
	"github.com/banshee-data/heading/internal/units"
	"github.com/google/uuid"
)

// session simulates one vehicle and runs its own filter over it. Store and
// publisher are optional and may be shared between sessions.
type session struct {
	id     int
	sim    simulator.Config
	filter direction.Config
	est    estimation.Config
	clock  timeutil.Clock
	// rate paces cycles relative to real time; 0 disables pacing.
	rate float64

	store     *db.DB
	publisher *publish.Publisher
	plotDir   string
	chartDir  string
	units     string
}

type result struct {
	session int
	runID   string
	seed    uint64
	variant direction.Variant
	cycles  int
	report  string
	records []db.EstimateRecord
	samples []report.Sample
	files   []string
}

func (r *result) summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %d: run %s; seed %d; variant %s; %d estimates\n", r.session, r.runID, r.seed, r.variant, r.cycles)
	if r.report == "" {
		b.WriteString("no consistency statistics\n")
	} else {
		b.WriteString(r.report)
		b.WriteString("\n")
	}
	for _, f := range r.files {
		fmt.Fprintf(&b, "wrote %s\n", f)
	}
	return b.String()
}

// run executes the session. Contract violations raised by the filter
// are returned as errors.
func (s *session) run(ctx context.Context) (res *result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("session %d: %v", s.id, r)
		}
	}()

	sim, err := simulator.New(s.sim)
	if err != nil {
		return nil, err
	}
	dir, err := direction.NewDirection(s.filter)
	if err != nil {
		return nil, err
	}
	est := estimation.New(s.est)

	res = &result{session: s.id, seed: s.sim.Seed, variant: s.filter.Variant}
	if s.store != nil {
		run := &db.Run{Session: s.id, Variant: string(s.filter.Variant), Seed: s.sim.Seed, StartedAt: s.clock.Now()}
		if err := s.store.CreateRun(run); err != nil {
			return nil, err
		}
		res.runID = run.ID
	} else {
		res.runID = uuid.NewString()
	}

	cycles := sim.Generate()
	for i, m := range cycles {
		if err := s.pace(ctx, cycles, i); err != nil {
			return nil, err
		}

		est.Update(m)
		e := dir.Update(m, est)
		if e == nil {
			continue
		}
		res.records = append(res.records, estimateRecord(e, m.TrueData))
		if s.publisher != nil {
			if err := s.publisher.Publish(estimateMessage(res.runID, s.id, e)); err != nil {
				return nil, err
			}
		}
	}
	res.cycles = len(res.records)
	res.samples = report.Samples(res.records)
	res.report = dir.ConsistencyString()

	if s.store != nil {
		if err := s.store.RecordEstimates(res.runID, res.records); err != nil {
			return nil, err
		}
		if err := s.store.RecordConsistency(res.runID, consistencyRecords(dir.ConsistencyMetrics())); err != nil {
			return nil, err
		}
		if err := s.store.FinishRun(res.runID, s.clock.Now(), res.cycles, res.report); err != nil {
			return nil, err
		}
	}

	title := fmt.Sprintf("Session %d (%s)", s.id, s.filter.Variant)
	prefix := fmt.Sprintf("session_%d", s.id)
	if s.plotDir != "" {
		files, err := report.SavePlots(s.plotDir, prefix, title, res.samples)
		if err != nil {
			return nil, err
		}
		res.files = append(res.files, files...)
	}
	if s.chartDir != "" {
		path := filepath.Join(s.chartDir, prefix+".html")
		if err := report.SaveChart(path, title, s.units, res.samples); err != nil {
			return nil, err
		}
		res.files = append(res.files, path)
	}
	return res, nil
}

// pace waits before cycle i for its simulated interval scaled by the
// replay rate. It returns early with the context error when ctx is done.
func (s *session) pace(ctx context.Context, cycles []measurement.Measurements, i int) error {
	if s.rate <= 0 || i == 0 {
		return ctx.Err()
	}
	d := time.Duration((cycles[i].Time - cycles[i-1].Time) / s.rate * float64(time.Second))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(d):
		return nil
	}
}

func estimateRecord(e *direction.Estimate, truth *measurement.TrueData) db.EstimateRecord {
	r := db.EstimateRecord{
		Time:       e.Time,
		FromFilter: e.FromFilter,
		PositionX:  e.Position.X,
		PositionY:  e.Position.Y,
		PositionPX: e.PositionP.X,
		PositionPY: e.PositionP.Y,
		VelocityX:  e.Velocity.X,
		VelocityY:  e.Velocity.Y,
		Speed:      e.Speed,
		SpeedP:     e.SpeedP,
		Angle:      e.Angle,
		AngleP:     e.AngleP,
		AngleSpeed: e.AngleSpeed,
	}
	if truth != nil {
		r.Truth = &db.Truth{X: truth.Position.X, Y: truth.Position.Y, Speed: truth.Speed, Angle: truth.Angle}
	}
	return r
}

func estimateMessage(runID string, session int, e *direction.Estimate) publish.EstimateMessage {
	msg := publish.EstimateMessage{
		RunID:      runID,
		Session:    session,
		Time:       e.Time,
		FromFilter: e.FromFilter,
		X:          e.Position.X,
		Y:          e.Position.Y,
		Speed:      e.Speed,
	}
	if e.FromFilter {
		msg.AngleDeg = units.RadiansToDegrees(e.Angle)
		msg.AngleSDDeg = units.RadiansToDegrees(math.Sqrt(e.AngleP))
	}
	if e.AngleSpeed != nil {
		rate := units.RadiansToDegrees(*e.AngleSpeed)
		msg.AngleSpeed = &rate
	}
	return msg
}

func consistencyRecords(metrics []direction.Metric) []db.ConsistencyRecord {
	records := make([]db.ConsistencyRecord, 0, len(metrics))
	for _, m := range metrics {
		lower, upper := m.Stats.Bounds()
		records = append(records, db.ConsistencyRecord{
			Metric:     m.Name,
			Count:      m.Stats.Count(),
			DOF:        m.Stats.DOF(),
			Mean:       m.Stats.Mean(),
			MeanPerDOF: m.Stats.MeanPerDOF(),
			Lower:      lower,
			Upper:      upper,
			Consistent: m.Stats.Consistent(),
		})
	}
	return records
}
