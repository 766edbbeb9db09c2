package direction

import (
	"math"

	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// layout gives the state vector index of each quantity, -1 when the
// variant does not estimate it. angle is the offset between the direction
// sensor and the direction of motion.
type layout struct {
	n      int
	px, vx int
	ax     int
	py, vy int
	ay     int
	angle  int
	rate   int
}

var (
	layout10 = layout{n: 5, px: 0, vx: 1, ax: -1, py: 2, vy: 3, ay: -1, angle: 4, rate: -1}
	layout11 = layout{n: 6, px: 0, vx: 1, ax: -1, py: 2, vy: 3, ay: -1, angle: 4, rate: 5}
	layout21 = layout{n: 8, px: 0, vx: 1, ax: 2, py: 3, vy: 4, ay: 5, angle: 6, rate: 7}
)

func (l layout) position(x mat.Vector) r2.Vec {
	return r2.Vec{X: x.AtVec(l.px), Y: x.AtVec(l.py)}
}

func (l layout) velocity(x mat.Vector) r2.Vec {
	return r2.Vec{X: x.AtVec(l.vx), Y: x.AtVec(l.vy)}
}

func (l layout) speed(x mat.Vector) float64 {
	return math.Hypot(x.AtVec(l.vx), x.AtVec(l.vy))
}

// direction is the heading a direction sensor reports for state x, not
// normalized.
func (l layout) direction(x mat.Vector) float64 {
	return math.Atan2(x.AtVec(l.vy), x.AtVec(l.vx)) + x.AtVec(l.angle)
}

// reference is the normalized direction of x. Sigma point directions are
// expressed relative to it so they do not straddle the ±π wrap.
func (l layout) reference(x mat.Vector) float64 {
	return units.NormalizeAngle(l.direction(x))
}

func (l layout) directionNear(x mat.Vector, reference float64) float64 {
	return reference + units.NormalizeAngle(l.direction(x)-reference)
}

// add is the state addition with the heading offset wrapped.
func (l layout) add(a, b mat.Vector) *mat.VecDense {
	v := core.Add(a, b)
	v.SetVec(l.angle, units.NormalizeAngle(v.AtVec(l.angle)))
	return v
}

// residual is the state difference with the heading offset wrapped.
func (l layout) residual(a, b mat.Vector) *mat.VecDense {
	v := core.Subtract(a, b)
	v.SetVec(l.angle, units.NormalizeAngle(v.AtVec(l.angle)))
	return v
}

// sub returns the 2×2 block of p at rows and columns i and j.
func sub(p mat.Symmetric, i, j int) *mat.SymDense {
	return mat.NewSymDense(2, []float64{
		p.At(i, i), p.At(i, j),
		p.At(j, i), p.At(j, j),
	})
}

func vec(values ...float64) *mat.VecDense {
	return mat.NewVecDense(len(values), values)
}

func diagonal(variances ...float64) *mat.SymDense {
	d := mat.NewSymDense(len(variances), nil)
	for i, v := range variances {
		d.SetSym(i, i, v)
	}
	return d
}

// wrapResidual returns a measurement residual that wraps component i.
func wrapResidual(i int) core.ResidualFunc {
	return func(a, b mat.Vector) *mat.VecDense {
		v := core.Subtract(a, b)
		v.SetVec(i, units.NormalizeAngle(v.AtVec(i)))
		return v
	}
}

// Measurement models. Those with a direction component take the reference
// direction of the current state.

func (l layout) positionH() core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(x.AtVec(l.px), x.AtVec(l.py))
	}
}

func (l layout) positionSpeedH() core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(x.AtVec(l.px), x.AtVec(l.py), l.speed(x))
	}
}

func (l layout) positionSpeedDirectionH(reference float64) core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(x.AtVec(l.px), x.AtVec(l.py), l.speed(x), l.directionNear(x, reference))
	}
}

func (l layout) positionDirectionH(reference float64) core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(x.AtVec(l.px), x.AtVec(l.py), l.directionNear(x, reference))
	}
}

func (l layout) speedDirectionH(reference float64) core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(l.speed(x), l.directionNear(x, reference))
	}
}

func (l layout) directionH(reference float64) core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(l.directionNear(x, reference))
	}
}

func (l layout) speedH() core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(l.speed(x))
	}
}

func (l layout) velocityH() core.MeasurementFunc {
	return func(x mat.Vector) *mat.VecDense {
		return vec(x.AtVec(l.vx), x.AtVec(l.vy))
	}
}
