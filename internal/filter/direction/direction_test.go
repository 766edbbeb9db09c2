package direction

import (
	"fmt"
	"math"
	"testing"

	"github.com/banshee-data/heading/internal/filter/estimation"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/filter/noise"
	"github.com/banshee-data/heading/internal/filter/queue"
	"github.com/banshee-data/heading/internal/monitoring"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

func init() {
	monitoring.SetLogger(nil)
}

func testConfig(variant Variant) Config {
	cfg := DefaultConfig()
	cfg.Variant = variant
	cfg.PositionNoise = noise.Discrete{Variance: 1e-4}
	cfg.AngleNoise = noise.Discrete{Variance: 1e-8}
	cfg.Init = testInit()
	return cfg
}

func positionAt(t float64, p r2.Vec) measurement.Measurements {
	v := r2.Vec{X: 1, Y: 1}
	return measurement.Measurements{
		Time:     t,
		Position: &measurement.Position{Value: p, Variance: &v},
	}
}

// movingEstimation is an auxiliary estimate precise enough to initialise a
// filter.
type movingEstimation struct {
	velocity r2.Vec
}

func (e movingEstimation) Empty() bool              { return false }
func (e movingEstimation) Position() r2.Vec         { return r2.Vec{} }
func (e movingEstimation) PositionP() *mat.SymDense { return mat.NewSymDense(2, []float64{1, 0, 0, 1}) }
func (e movingEstimation) Velocity() r2.Vec         { return e.velocity }
func (e movingEstimation) Speed() float64           { return r2.Norm(e.velocity) }
func (e movingEstimation) SpeedP() float64          { return 0.01 }
func (e movingEstimation) AngleP() float64 {
	if e.velocity == (r2.Vec{}) {
		return math.Inf(1)
	}
	return 0.001
}
func (e movingEstimation) PositionVelocity() [4]float64 {
	return [4]float64{0, e.velocity.X, 0, e.velocity.Y}
}
func (e movingEstimation) PositionVelocityP() *mat.SymDense {
	return mat.NewSymDense(4, []float64{
		1, 0, 0, 0,
		0, 0.01, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 0.01,
	})
}

func speedAt(t, speed float64) measurement.Measurements {
	return measurement.Measurements{
		Time:  t,
		Speed: &measurement.Measurement[float64]{Value: speed, Variance: 0.01},
	}
}

func TestStandingHysteresis(t *testing.T) {
	t.Parallel()
	d, err := NewDirection(testConfig(Variant10))
	require.NoError(t, err)

	speeds := []float64{0.2, 0.05, 0.05, 0.2}
	var got []bool
	for i, s := range speeds {
		assert.Nil(t, d.Update(speedAt(float64(i+1), s), nil))
		got = append(got, d.Standing())
	}
	if diff := cmp.Diff([]bool{false, false, true, false}, got); diff != "" {
		t.Errorf("standing mismatch (-want +got):\n%s", diff)
	}
}

func TestMeasurementTimeMustIncrease(t *testing.T) {
	t.Parallel()
	tests := []struct {
		times  []float64
		panics bool
	}{
		{[]float64{1, 1}, true},
		{[]float64{2, 1}, true},
		{[]float64{1, 1.5, 2}, false},
	}
	for _, tt := range tests {
		d, err := NewDirection(testConfig(Variant10))
		require.NoError(t, err)
		run := func() {
			for _, ti := range tt.times {
				d.Update(speedAt(ti, 1), nil)
			}
		}
		if tt.panics {
			want := fmt.Sprintf("Measurement time does not increase; from %v to %v", tt.times[0], tt.times[1])
			assert.PanicsWithValue(t, want, run)
		} else {
			assert.NotPanics(t, run)
		}
	}
}

func TestIgnoresCyclesWithoutUsableData(t *testing.T) {
	t.Parallel()
	d, err := NewDirection(testConfig(Variant10))
	require.NoError(t, err)
	assert.Nil(t, d.Update(measurement.Measurements{Time: 1}, nil))
	assert.Nil(t, d.Update(measurement.Measurements{Time: 1, Position: &measurement.Position{}}, nil))
}

func TestPositionOnlyTrack(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant10)
	cfg.AngleEstimationVariance = 10
	d, err := NewDirection(cfg)
	require.NoError(t, err)
	est := estimation.New(estimation.Config{ProcessVariance: 1e-4, InitVelocityVariance: 100, ResetDT: cfg.ResetDT})

	step := func(ti float64) *Estimate {
		m := positionAt(ti, r2.Vec{X: ti})
		est.Update(m)
		return d.Update(m, est)
	}

	// The auxiliary estimate has no direction after one fix.
	first := step(0)
	require.NotNil(t, first)
	assert.False(t, first.FromFilter)
	assert.Equal(t, r2.Vec{X: 1, Y: 1}, first.PositionP)
	nis := d.Nis()
	assert.True(t, nis.Position.Empty())

	// The second fix makes it precise enough: the filter starts at the
	// first fix and replays the second.
	second := step(1)
	require.NotNil(t, second)
	assert.False(t, second.FromFilter)
	assert.InDelta(t, 100.0/102, second.Velocity.X, 0.01)
	nis = d.Nis()
	assert.Equal(t, 1, nis.Position.Count())

	third := step(2)
	require.NotNil(t, third)
	assert.True(t, third.FromFilter)
	assert.InDelta(t, 1.0, third.Velocity.X, 0.05)
	assert.InDelta(t, 2.0, third.Position.X, 0.1)
	assert.InDelta(t, 0.0, third.Velocity.Y, 1e-9)

	fourth := step(3)
	require.NotNil(t, fourth)
	assert.Less(t, fourth.PositionP.X, 1.0)

	nis = d.Nis()
	assert.Equal(t, 3, nis.Position.Count())
	assert.Equal(t, 3, nis.Innovation.Count())
	assert.True(t, nis.PositionSpeedDirection.Empty())
}

func TestRestartAfterGap(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant11)
	cfg.AngleEstimationVariance = 10
	d, err := NewDirection(cfg)
	require.NoError(t, err)
	est := estimation.New(estimation.Config{ProcessVariance: 1, InitVelocityVariance: 100, ResetDT: cfg.ResetDT})

	cycle := func(m measurement.Measurements) *Estimate {
		est.Update(m)
		return d.Update(m, est)
	}

	for _, ti := range []float64{0, 1, 2} {
		require.NotNil(t, cycle(positionAt(ti, r2.Vec{X: ti})))
	}

	// A direction-only cycle after the gap reports nothing.
	later := 2 + cfg.ResetDT
	assert.Nil(t, cycle(measurement.Measurements{
		Time:      later,
		Direction: &measurement.Measurement[float64]{Value: 0, Variance: 0.01},
	}))

	e := cycle(positionAt(later+1, r2.Vec{X: 50}))
	require.NotNil(t, e)
	assert.False(t, e.FromFilter, "the cycle after a gap reports the auxiliary estimate")
	assert.Equal(t, r2.Vec{X: 50}, e.Position)

	e = cycle(positionAt(later+2, r2.Vec{X: 51}))
	require.NotNil(t, e)
	assert.False(t, e.FromFilter, "the filter is rebuilt but the auxiliary estimate is reported")

	e = cycle(positionAt(later+3, r2.Vec{X: 52}))
	require.NotNil(t, e)
	assert.True(t, e.FromFilter)
	assert.NotNil(t, e.AngleSpeed)
	assert.InDelta(t, 52.0, e.Position.X, 0.5)
}

func TestRestartReplaysBufferedMeasurements(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant11)
	cfg.AngleEstimationVariance = 10
	estCfg := estimation.Config{ProcessVariance: 1e-4, InitVelocityVariance: 100, ResetDT: cfg.ResetDT}

	speed := &measurement.Measurement[float64]{Value: 2, Variance: 0.01}
	heading := &measurement.Measurement[float64]{Value: 0.3, Variance: 0.01}
	withSpeed := positionAt(2, r2.Vec{X: 4})
	withSpeed.Speed = speed
	withAll := positionAt(3, r2.Vec{X: 6})
	withAll.Speed, withAll.Direction = speed, heading
	cycles := []measurement.Measurements{
		{Time: 0, Direction: heading},
		positionAt(1, r2.Vec{X: 2}),
		{Time: 1.5, Speed: speed, Direction: heading},
		withSpeed,
		{Time: 2.5, Direction: heading},
		withAll,
	}

	d, err := NewDirection(cfg)
	require.NoError(t, err)
	est := estimation.New(estCfg)
	var estimates []*Estimate
	for _, m := range cycles {
		est.Update(m)
		estimates = append(estimates, d.Update(m, est))
	}
	fromFilter := make([]bool, len(estimates))
	for i, e := range estimates {
		fromFilter[i] = e != nil && e.FromFilter
	}
	if diff := cmp.Diff([]bool{false, false, false, false, true, true}, fromFilter); diff != "" {
		t.Errorf("FromFilter mismatch (-want +got):\n%s", diff)
	}

	// A filter started from the same queue state and fed every cycle after
	// the first fix directly ends in the same state.
	q := queue.New(cfg.MeasurementQueueSize, cfg.ResetDT, cfg.AngleEstimationVariance)
	qEst := estimation.New(estCfg)
	for _, m := range cycles[:4] {
		qEst.Update(m)
		q.Update(m, qEst)
	}
	require.False(t, q.Empty())

	ref, err := New(cfg.Variant, cfg.SigmaPointsAlpha)
	require.NoError(t, err)
	ref.Reset(q.InitPositionVelocity(), q.InitPositionVelocityP(), cfg.Init)
	last := cycles[1].Time
	for _, m := range cycles[2:] {
		s := Step{
			DT:                m.Time - last,
			PositionNoise:     cfg.PositionNoise,
			AngleNoise:        cfg.AngleNoise,
			FadingMemoryAlpha: cfg.FadingMemoryAlpha,
			Gate:              cfg.Gate,
		}
		last = m.Time
		if p, ok := m.UsablePosition(); ok {
			UpdatePosition(ref, s, p, m.Direction, m.Speed, nil)
			continue
		}
		UpdateNonPosition(ref, s, m.Direction, m.Speed, nil)
	}

	got := estimates[len(estimates)-1]
	const tol = 1e-9
	assert.InDelta(t, ref.Position().X, got.Position.X, tol)
	assert.InDelta(t, ref.Position().Y, got.Position.Y, tol)
	assert.InDelta(t, ref.Velocity().X, got.Velocity.X, tol)
	assert.InDelta(t, ref.Velocity().Y, got.Velocity.Y, tol)
	assert.InDelta(t, ref.Angle(), got.Angle, tol)
	assert.InDelta(t, ref.AngleP(), got.AngleP, tol)
	require.NotNil(t, got.AngleSpeed)
	assert.InDelta(t, ref.(AngularRateFilter).AngleSpeed(), *got.AngleSpeed, tol)

	// Replay reached the filter: two updates during the reset and two after.
	nis := d.Nis()
	assert.Equal(t, 4, nis.Innovation.Count())
}

func TestReplayDeliversSpeedBetweenFixes(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant10)
	f := &recordingFilter{velocity: r2.Vec{X: 1}}
	d := NewDirectionWithFilter(cfg, f)
	imprecise := movingEstimation{velocity: r2.Vec{}}
	precise := movingEstimation{velocity: r2.Vec{X: 1}}

	d.Update(speedAt(0, 1), nil)
	d.Update(positionAt(1, r2.Vec{X: 1}), imprecise)
	d.Update(speedAt(1.5, 1), nil)
	d.Update(positionAt(2, r2.Vec{X: 2}), precise)
	d.Update(speedAt(2.5, 1), nil)

	want := []string{
		"reset",
		"predict", "speed",
		"predict", "position",
		"predict", "speed",
	}
	if diff := cmp.Diff(want, f.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStandingUsesVelocityUpdates(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant10)
	f := &recordingFilter{velocity: r2.Vec{X: 3, Y: 4}}
	d := NewDirectionWithFilter(cfg, f)

	cycle := func(ti, speed float64) {
		m := positionAt(ti, r2.Vec{})
		m.Speed = &measurement.Measurement[float64]{Value: speed, Variance: 0.01}
		d.Update(m, movingEstimation{velocity: r2.Vec{X: 1}})
	}

	cycle(0, 0.05)
	cycle(1, 0.05)
	cycle(2, 0.05)
	cycle(3, 1)

	want := []string{
		"reset",
		"predict", "velocity",
		"predict", "velocity",
		"predict", "position speed",
	}
	if diff := cmp.Diff(want, f.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	scale := cfg.StandingVelocityMagnitude / 5
	assert.InDelta(t, 3*scale, f.lastValue.X, 1e-12)
	assert.InDelta(t, 4*scale, f.lastValue.Y, 1e-12)
}

func TestStandingVelocityDefault(t *testing.T) {
	t.Parallel()
	cfg := testConfig(Variant10)
	f := &recordingFilter{}
	d := NewDirectionWithFilter(cfg, f)
	for i, s := range []float64{0, 0, 0} {
		m := positionAt(float64(i), r2.Vec{})
		m.Speed = &measurement.Measurement[float64]{Value: s, Variance: 0.01}
		d.Update(m, movingEstimation{velocity: r2.Vec{X: 1}})
	}
	assert.Equal(t, cfg.StandingVelocityDefault, f.lastValue)
}

func TestHeadingConverges(t *testing.T) {
	t.Parallel()
	const offset = 0.3
	velocity := r2.Vec{X: 3, Y: -1.5}
	heading := math.Atan2(velocity.Y, velocity.X)

	for _, variant := range []Variant{Variant10, Variant11, Variant21} {
		t.Run(string(variant), func(t *testing.T) {
			cfg := testConfig(variant)
			d, err := NewDirection(cfg)
			require.NoError(t, err)
			est := estimation.New(estimation.DefaultConfig())

			var last *Estimate
			for i := 0; i < 100; i++ {
				ti := float64(i) * 0.5
				m := positionAt(ti, r2.Scale(ti, velocity))
				m.TrueData = &measurement.TrueData{
					Position: r2.Scale(ti, velocity),
					Speed:    r2.Norm(velocity),
					Angle:    offset,
				}
				if i >= 10 {
					m.Speed = &measurement.Measurement[float64]{Value: r2.Norm(velocity), Variance: 0.01}
					m.Direction = &measurement.Measurement[float64]{Value: heading + offset, Variance: 1e-4}
				}
				est.Update(m)
				if e := d.Update(m, est); e != nil {
					last = e
				}
			}

			require.NotNil(t, last)
			require.True(t, last.FromFilter)
			assert.InDelta(t, offset, last.Angle, 0.02)
			assert.InDelta(t, velocity.X, last.Velocity.X, 0.1)
			assert.InDelta(t, velocity.Y, last.Velocity.Y, 0.1)

			nees := d.Nees()
			assert.False(t, nees.Position.Empty())
			assert.False(t, nees.Angle.Empty())
			nis := d.Nis()
			assert.False(t, nis.PositionSpeedDirection.Empty())

			report := d.ConsistencyString()
			assert.Contains(t, report, "NEES Position")
			assert.Contains(t, report, "NIS Position Speed Direction")
		})
	}
}
