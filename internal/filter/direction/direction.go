package direction

import (
	"fmt"
	"math"

	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/filter/queue"
	"github.com/banshee-data/heading/internal/monitoring"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/spatial/r2"
)

// Estimate is the result of one measurement cycle.
type Estimate struct {
	Time float64
	// FromFilter is false when the estimate comes from the auxiliary
	// estimator, in which case the angle fields are zero.
	FromFilter bool
	Position   r2.Vec
	// PositionP holds the per-axis position variances.
	PositionP  r2.Vec
	Velocity   r2.Vec
	Speed      float64
	SpeedP     float64
	Angle      float64
	AngleP     float64
	AngleSpeed *float64
}

// Direction runs a heading filter over a stream of measurement cycles. It
// re-initialises the filter from a measurement queue after gaps, switches
// to synthetic velocity updates while the vehicle is standing and keeps
// consistency statistics.
type Direction struct {
	cfg    Config
	filter Filter
	queue  *queue.Queue

	nees Nees
	nis  Nis

	lastMeasurementTime *float64
	lastTime            *float64
	lastSpeed           *float64
	standing            bool
	standingVelocity    *r2.Vec
}

// NewDirection returns an orchestrator for the variant named in cfg.
func NewDirection(cfg Config) (*Direction, error) {
	f, err := New(cfg.Variant, cfg.SigmaPointsAlpha)
	if err != nil {
		return nil, err
	}
	return NewDirectionWithFilter(cfg, f), nil
}

// NewDirectionWithFilter returns an orchestrator driving f.
func NewDirectionWithFilter(cfg Config, f Filter) *Direction {
	return &Direction{
		cfg:    cfg,
		filter: f,
		queue:  queue.New(cfg.MeasurementQueueSize, cfg.ResetDT, cfg.AngleEstimationVariance),
	}
}

// Update processes one measurement cycle. est is the auxiliary estimator,
// already updated with m. It returns nil when there is nothing to report.
func (d *Direction) Update(m measurement.Measurements, est measurement.Estimation) *Estimate {
	if !m.HasUsableData() {
		return nil
	}

	d.checkTime(m.Time)
	d.updateStanding(m)
	d.queue.Update(m, est)

	if d.lastTime == nil || m.Time-*d.lastTime >= d.cfg.ResetDT {
		return d.restart(m, est)
	}

	dt := m.Time - *d.lastTime
	step := Step{
		DT:                dt,
		PositionNoise:     d.cfg.PositionNoise,
		AngleNoise:        d.cfg.AngleNoise,
		FadingMemoryAlpha: d.cfg.FadingMemoryAlpha,
		Gate:              d.cfg.Gate,
	}

	switch position, ok := m.UsablePosition(); {
	case d.standing:
		UpdateVelocity(d.filter, Step{
			DT:                dt,
			PositionNoise:     d.cfg.StandingNoise,
			AngleNoise:        d.cfg.StandingNoise,
			FadingMemoryAlpha: d.cfg.StandingFadingMemoryAlpha,
			Gate:              d.cfg.Gate,
		}, d.standingMeasurement(), &d.nis)
	case ok:
		UpdatePosition(d.filter, step, position, m.Direction, m.Speed, &d.nis)
		monitoring.Logf("%s", d.describe(m))
	default:
		if _, updated := UpdateNonPosition(d.filter, step, m.Direction, m.Speed, &d.nis); !updated {
			return nil
		}
	}

	d.nees.add(d.filter, m.TrueData)
	d.setLastTime(m.Time)
	return d.estimate(m.Time)
}

// restart handles the first cycle and cycles after a gap: once the queue
// holds a precise enough auxiliary snapshot the filter is rebuilt from it
// on a cycle with a position, and the auxiliary estimate is reported.
func (d *Direction) restart(m measurement.Measurements, est measurement.Estimation) *Estimate {
	if !m.Position.Usable() {
		return nil
	}

	if !d.queue.Empty() {
		d.standingVelocity = nil
		d.queue.UpdateFilter(
			func() {
				d.filter.Reset(d.queue.InitPositionVelocity(), d.queue.InitPositionVelocityP(), d.cfg.Init)
			},
			func(position *measurement.Measurement[r2.Vec], r measurement.Measurements, dt float64) {
				step := Step{
					DT:                dt,
					PositionNoise:     d.cfg.PositionNoise,
					AngleNoise:        d.cfg.AngleNoise,
					FadingMemoryAlpha: d.cfg.FadingMemoryAlpha,
					Gate:              d.cfg.Gate,
				}
				if position != nil {
					UpdatePosition(d.filter, step, *position, r.Direction, r.Speed, &d.nis)
					return
				}
				UpdateNonPosition(d.filter, step, r.Direction, r.Speed, &d.nis)
			})
		if last := d.queue.LastTime(); last != m.Time {
			monitoring.Fatalf("Filter time %v is not equal to measurement time %v", last, m.Time)
		}
		d.setLastTime(m.Time)
		monitoring.Logf("%.3f; filter reset from %d queued measurements", m.Time, d.queue.Len())
	}

	if est == nil || est.Empty() {
		return nil
	}
	pp := est.PositionP()
	return &Estimate{
		Time:      m.Time,
		Position:  est.Position(),
		PositionP: r2.Vec{X: pp.At(0, 0), Y: pp.At(1, 1)},
		Velocity:  est.Velocity(),
		Speed:     est.Speed(),
		SpeedP:    est.SpeedP(),
	}
}

func (d *Direction) estimate(t float64) *Estimate {
	pp := d.filter.PositionP()
	e := &Estimate{
		Time:       t,
		FromFilter: true,
		Position:   d.filter.Position(),
		PositionP:  r2.Vec{X: pp.At(0, 0), Y: pp.At(1, 1)},
		Velocity:   d.filter.Velocity(),
		Speed:      d.filter.Speed(),
		SpeedP:     d.filter.SpeedP(),
		Angle:      d.filter.Angle(),
		AngleP:     d.filter.AngleP(),
	}
	if rf, ok := d.filter.(AngularRateFilter); ok {
		s := rf.AngleSpeed()
		e.AngleSpeed = &s
	}
	return e
}

func (d *Direction) checkTime(t float64) {
	if d.lastMeasurementTime != nil && !(*d.lastMeasurementTime < t) {
		monitoring.Fatalf("Measurement time does not increase; from %v to %v", *d.lastMeasurementTime, t)
	}
	d.lastMeasurementTime = &t
}

func (d *Direction) setLastTime(t float64) {
	d.lastTime = &t
}

// updateStanding applies the standing hysteresis: standing requires two
// consecutive speed measurements below the limit.
func (d *Direction) updateStanding(m measurement.Measurements) {
	if m.Speed == nil {
		return
	}
	speed := m.Speed.Value
	if d.lastSpeed != nil {
		d.standing = *d.lastSpeed < d.cfg.StandingSpeedLimit && speed < d.cfg.StandingSpeedLimit
	}
	d.lastSpeed = &speed
	if !d.standing {
		d.standingVelocity = nil
	}
}

// standingMeasurement returns the synthetic velocity used while standing.
// Its direction is that of the filter velocity when standing begins.
func (d *Direction) standingMeasurement() measurement.Measurement[r2.Vec] {
	if d.standingVelocity == nil {
		v := d.cfg.StandingVelocityDefault
		fv := d.filter.Velocity()
		if n := r2.Norm(fv); n > 0 && !math.IsInf(n, 0) {
			v = r2.Scale(d.cfg.StandingVelocityMagnitude/n, fv)
		}
		d.standingVelocity = &v
	}
	variance := d.cfg.StandingVelocityVariance
	return measurement.Measurement[r2.Vec]{
		Value:    *d.standingVelocity,
		Variance: r2.Vec{X: variance, Y: variance},
	}
}

func (d *Direction) describe(m measurement.Measurements) string {
	s := fmt.Sprintf("%.3f", m.Time)
	if m.TrueData != nil {
		s += fmt.Sprintf("; true angle = %.2f", units.RadiansToDegrees(units.NormalizeAngle(m.TrueData.Angle)))
	}
	s += fmt.Sprintf("; angle = %.2f", units.RadiansToDegrees(d.filter.Angle()))
	if rf, ok := d.filter.(AngularRateFilter); ok {
		s += fmt.Sprintf("; angle speed = %.4f", units.RadiansToDegrees(rf.AngleSpeed()))
	}
	return s
}

// Standing reports whether the last speed measurements marked the vehicle
// as standing.
func (d *Direction) Standing() bool {
	return d.standing
}

// Nees returns the estimation consistency accumulated so far.
func (d *Direction) Nees() Nees {
	return d.nees
}

// Nis returns the innovation consistency accumulated so far.
func (d *Direction) Nis() Nis {
	return d.nis
}

// ConsistencyString formats the accumulated NEES and NIS.
func (d *Direction) ConsistencyString() string {
	return ConsistencyString(&d.nees, &d.nis)
}

// ConsistencyMetrics returns the non-empty NEES and NIS accumulators.
func (d *Direction) ConsistencyMetrics() []Metric {
	return ConsistencyMetrics(&d.nees, &d.nis)
}
