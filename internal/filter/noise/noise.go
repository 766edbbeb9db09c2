// Package noise builds process noise covariance matrices for kinematic
// chains under either a continuous or a discrete white noise assumption.
package noise

import (
	"fmt"
	"math"

	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// Model produces process noise for a one-, two- or three-state chain over a
// time step dt. The chain is ordered value, first derivative, second
// derivative.
type Model interface {
	// Q1 is the noise of a state driven directly by white noise
	// through a rate that is not itself estimated.
	Q1(dt float64) float64
	// Q2 is the noise of a value and its rate.
	Q2(dt float64) *mat.SymDense
	// Q3 is the noise of a value, its rate and its acceleration.
	Q3(dt float64) *mat.SymDense
	String() string

	model()
}

// Continuous is white noise with the given spectral density integrated over
// the step.
type Continuous struct {
	SpectralDensity float64
}

// Discrete is a piecewise constant white noise with the given variance
// applied to the highest derivative once per step.
type Discrete struct {
	Variance float64
}

func (Continuous) model() {}
func (Discrete) model()   {}

func (c Continuous) String() string {
	return fmt.Sprintf("continuous (spectral density %g)", c.SpectralDensity)
}

func (d Discrete) String() string {
	return fmt.Sprintf("discrete (variance %g)", d.Variance)
}

func (c Continuous) Q1(dt float64) float64 {
	check(dt, c.SpectralDensity)
	return c.SpectralDensity * dt
}

func (c Continuous) Q2(dt float64) *mat.SymDense {
	check(dt, c.SpectralDensity)
	dt2 := dt * dt
	dt3 := dt2 * dt
	q := mat.NewSymDense(2, []float64{
		dt3 / 3, dt2 / 2,
		dt2 / 2, dt,
	})
	q.ScaleSym(c.SpectralDensity, q)
	return q
}

func (c Continuous) Q3(dt float64) *mat.SymDense {
	check(dt, c.SpectralDensity)
	dt2 := dt * dt
	dt3 := dt2 * dt
	dt4 := dt3 * dt
	dt5 := dt4 * dt
	q := mat.NewSymDense(3, []float64{
		dt5 / 20, dt4 / 8, dt3 / 6,
		dt4 / 8, dt3 / 3, dt2 / 2,
		dt3 / 6, dt2 / 2, dt,
	})
	q.ScaleSym(c.SpectralDensity, q)
	return q
}

func (d Discrete) Q1(dt float64) float64 {
	check(dt, d.Variance)
	return dt * dt * d.Variance
}

func (d Discrete) Q2(dt float64) *mat.SymDense {
	check(dt, d.Variance)
	return outer(d.Variance, dt*dt/2, dt)
}

func (d Discrete) Q3(dt float64) *mat.SymDense {
	check(dt, d.Variance)
	return outer(d.Variance, dt*dt/2, dt, 1)
}

// outer returns scale·g·gᵀ.
func outer(scale float64, g ...float64) *mat.SymDense {
	v := mat.NewVecDense(len(g), g)
	q := mat.NewSymDense(len(g), nil)
	q.SymOuterK(scale, v)
	return q
}

func check(dt, value float64) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		monitoring.Fatalf("noise: time step %v is not a positive finite number", dt)
	}
	if !(value >= 0) || math.IsInf(value, 0) {
		monitoring.Fatalf("noise: parameter %v is not a non-negative finite number", value)
	}
}

// Parse converts a kind name and value into a Model. Accepted kinds are
// "continuous" and "discrete".
func Parse(kind string, value float64) (Model, error) {
	if !(value >= 0) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("noise value %v must be a non-negative finite number", value)
	}
	switch kind {
	case "continuous":
		return Continuous{SpectralDensity: value}, nil
	case "discrete":
		return Discrete{Variance: value}, nil
	default:
		return nil, fmt.Errorf("unknown noise kind %q (want continuous or discrete)", kind)
	}
}

// Place writes block into q at the rows and columns listed in indices,
// which must be as long as the block dimension.
func Place(q *mat.SymDense, block mat.Symmetric, indices ...int) {
	if block.SymmetricDim() != len(indices) {
		monitoring.Fatalf("noise: block size %d, %d indices", block.SymmetricDim(), len(indices))
	}
	for i, r := range indices {
		for j := i; j < len(indices); j++ {
			q.SetSym(r, indices[j], block.At(i, j))
		}
	}
}
