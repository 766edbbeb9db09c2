// Package estimation is a linear constant velocity Kalman filter over
// position fixes. It runs alongside the heading filter and supplies the
// fallback estimate and the snapshots used to initialise it.
package estimation

import (
	"math"

	"github.com/banshee-data/heading/internal/config"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Config holds the estimator parameters.
type Config struct {
	// ProcessVariance is the discrete white noise acceleration variance.
	ProcessVariance float64
	// InitVelocityVariance is the velocity variance after a reset.
	InitVelocityVariance float64
	// ResetDT is the gap after which the estimator restarts.
	ResetDT float64
}

// DefaultConfig returns the estimator parameters of the built-in tuning
// defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning reads the estimator parameters from a tuning file.
func ConfigFromTuning(t *config.TuningConfig) Config {
	return Config{
		ProcessVariance:      t.GetEstimationProcessVariance(),
		InitVelocityVariance: t.GetInitVelocityVariance(),
		ResetDT:              t.GetResetDT(),
	}
}

// Filter estimates px, vx, py, vy from position fixes. The zero value is
// not usable; call New.
type Filter struct {
	cfg      Config
	x        *mat.VecDense
	p        *mat.SymDense
	lastTime float64
}

// New returns an empty estimator.
func New(cfg Config) *Filter {
	if !(cfg.ProcessVariance >= 0) || !(cfg.InitVelocityVariance > 0) || !(cfg.ResetDT > 0) {
		monitoring.Fatalf("estimation: invalid config %+v", cfg)
	}
	return &Filter{cfg: cfg}
}

// Update feeds one measurement cycle. Only usable positions are used; other
// fields and non-increasing times are ignored.
func (f *Filter) Update(m measurement.Measurements) {
	z, ok := m.UsablePosition()
	if !ok {
		return
	}
	if f.x != nil && !(m.Time > f.lastTime) {
		return
	}

	if f.x == nil || m.Time-f.lastTime >= f.cfg.ResetDT {
		f.reset(z)
	} else {
		f.predict(m.Time - f.lastTime)
		f.update(z)
	}
	f.lastTime = m.Time
}

func (f *Filter) reset(z measurement.Measurement[r2.Vec]) {
	f.x = mat.NewVecDense(4, []float64{z.Value.X, 0, z.Value.Y, 0})
	f.p = mat.NewSymDense(4, nil)
	f.p.SetSym(0, 0, z.Variance.X)
	f.p.SetSym(1, 1, f.cfg.InitVelocityVariance)
	f.p.SetSym(2, 2, z.Variance.Y)
	f.p.SetSym(3, 3, f.cfg.InitVelocityVariance)
}

// predict applies the Kalman prediction step using a constant velocity
// model.
func (f *Filter) predict(dt float64) {
	// F = [1 dt 0 0 ]
	//     [0 1  0 0 ]
	//     [0 0  1 dt]
	//     [0 0  0 1 ]
	F := mat.NewDense(4, 4, []float64{
		1, dt, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, dt,
		0, 0, 0, 1,
	})

	// x' = F * x
	var x mat.VecDense
	x.MulVec(F, f.x)

	// P' = F * P * F^T + Q, with Q = G * var * G^T per axis and
	// G = [dt²/2, dt].
	var fp, p mat.Dense
	fp.Mul(F, f.p)
	p.Mul(&fp, F.T())

	g := []float64{dt * dt / 2, dt}
	for _, axis := range [][2]int{{0, 1}, {2, 3}} {
		for i, r := range axis {
			for j, c := range axis {
				p.Set(r, c, p.At(r, c)+g[i]*g[j]*f.cfg.ProcessVariance)
			}
		}
	}

	f.x = &x
	f.p = symmetric(&p)
}

// update applies the Kalman update step with a position fix.
func (f *Filter) update(z measurement.Measurement[r2.Vec]) {
	H := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 0, 1, 0,
	})
	R := mat.NewDense(2, 2, []float64{
		z.Variance.X, 0,
		0, z.Variance.Y,
	})

	// Innovation y = z - H * x
	y := mat.NewVecDense(2, []float64{
		z.Value.X - f.x.AtVec(0),
		z.Value.Y - f.x.AtVec(2),
	})

	// Innovation covariance S = H * P * H^T + R
	var hp, s mat.Dense
	hp.Mul(H, f.p)
	s.Mul(&hp, H.T())
	s.Add(&s, R)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		monitoring.Logf("estimation: singular innovation covariance, skipping update: %v", err)
		return
	}

	// Kalman gain K = P * H^T * S^-1
	var pht, k mat.Dense
	pht.Mul(f.p, H.T())
	k.Mul(&pht, &sInv)

	// x' = x + K * y
	var ky mat.VecDense
	ky.MulVec(&k, y)
	f.x.AddVec(f.x, &ky)

	// P' = (I - K*H) * P
	var khp, p mat.Dense
	khp.Mul(&k, &hp)
	p.Sub(f.p, &khp)
	f.p = symmetric(&p)

	// Guard: restart from the fix if the update produced NaN/Inf.
	if !f.isFinite() {
		monitoring.Logf("estimation: non-finite state after update, restarting")
		f.reset(z)
	}
}

func (f *Filter) isFinite() bool {
	for i := 0; i < 4; i++ {
		if math.IsNaN(f.x.AtVec(i)) || math.IsInf(f.x.AtVec(i), 0) {
			return false
		}
		for j := i; j < 4; j++ {
			if math.IsNaN(f.p.At(i, j)) || math.IsInf(f.p.At(i, j), 0) {
				return false
			}
		}
	}
	return true
}

func symmetric(a *mat.Dense) *mat.SymDense {
	s := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			s.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return s
}

// Empty reports whether no fix has been received yet.
func (f *Filter) Empty() bool {
	return f.x == nil
}

// LastTime returns the time of the last fix used.
func (f *Filter) LastTime() float64 {
	return f.lastTime
}

func (f *Filter) Position() r2.Vec {
	f.mustNotBeEmpty()
	return r2.Vec{X: f.x.AtVec(0), Y: f.x.AtVec(2)}
}

func (f *Filter) PositionP() *mat.SymDense {
	f.mustNotBeEmpty()
	return f.sub(0, 2)
}

func (f *Filter) Velocity() r2.Vec {
	f.mustNotBeEmpty()
	return r2.Vec{X: f.x.AtVec(1), Y: f.x.AtVec(3)}
}

// VelocityP returns the 2×2 velocity covariance.
func (f *Filter) VelocityP() *mat.SymDense {
	f.mustNotBeEmpty()
	return f.sub(1, 3)
}

func (f *Filter) Speed() float64 {
	return r2.Norm(f.Velocity())
}

func (f *Filter) SpeedP() float64 {
	return measurement.SpeedVariance(f.Velocity(), f.VelocityP())
}

func (f *Filter) AngleP() float64 {
	return measurement.DirectionVariance(f.Velocity(), f.VelocityP())
}

func (f *Filter) PositionVelocity() [4]float64 {
	f.mustNotBeEmpty()
	return [4]float64{f.x.AtVec(0), f.x.AtVec(1), f.x.AtVec(2), f.x.AtVec(3)}
}

func (f *Filter) PositionVelocityP() *mat.SymDense {
	f.mustNotBeEmpty()
	p := mat.NewSymDense(4, nil)
	p.CopySym(f.p)
	return p
}

func (f *Filter) sub(a, b int) *mat.SymDense {
	return mat.NewSymDense(2, []float64{
		f.p.At(a, a), f.p.At(a, b),
		f.p.At(b, a), f.p.At(b, b),
	})
}

func (f *Filter) mustNotBeEmpty() {
	if f.x == nil {
		monitoring.Fatalf("estimation: no position has been received")
	}
}

var _ measurement.Estimation = (*Filter)(nil)
