package direction

import (
	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/noise"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/mat"
)

// Filter11 estimates px, vx, py, vy, the heading offset and its rate.
type Filter11 struct {
	ukfFilter
}

// NewFilter11 returns an unreset Filter11.
func NewFilter11(sigmaPointsAlpha float64) *Filter11 {
	return &Filter11{newUKFFilter("filter 1.1", model11{}, sigmaPointsAlpha)}
}

// AngleSpeed returns the heading offset rate in radians per second.
func (f *Filter11) AngleSpeed() float64 { return f.angleSpeed() }

// AngleSpeedP returns the variance of AngleSpeed.
func (f *Filter11) AngleSpeedP() float64 { return f.angleSpeedP() }

type model11 struct{}

func (model11) layout() layout { return layout11 }

func (model11) initial(pv [4]float64, pvP mat.Symmetric, init Init) (*mat.VecDense, *mat.SymDense) {
	checkPositionVelocity("filter 1.1", pv, pvP)
	core.CheckVariance("filter 1.1 reset", init.AngleVariance, init.AngleSpeedVariance)

	l := layout11
	x := mat.NewVecDense(l.n, nil)
	x.SetVec(l.px, pv[0])
	x.SetVec(l.vx, pv[1])
	x.SetVec(l.py, pv[2])
	x.SetVec(l.vy, pv[3])
	x.SetVec(l.angle, units.NormalizeAngle(init.Angle))
	x.SetVec(l.rate, init.AngleSpeed)

	p := mat.NewSymDense(l.n, nil)
	placePositionVelocity(p, l, pvP)
	p.SetSym(l.angle, l.angle, init.AngleVariance)
	p.SetSym(l.rate, l.rate, init.AngleSpeedVariance)
	return x, p
}

func (model11) transition(dt float64) core.TransitionFunc {
	l := layout11
	return func(x mat.Vector) *mat.VecDense {
		r := mat.VecDenseCopyOf(x)
		r.SetVec(l.px, x.AtVec(l.px)+dt*x.AtVec(l.vx))
		r.SetVec(l.py, x.AtVec(l.py)+dt*x.AtVec(l.vy))
		r.SetVec(l.angle, x.AtVec(l.angle)+dt*x.AtVec(l.rate))
		return r
	}
}

func (model11) processNoise(dt float64, positionNoise, angleNoise noise.Model) *mat.SymDense {
	l := layout11
	q := mat.NewSymDense(l.n, nil)
	position := positionNoise.Q2(dt)
	noise.Place(q, position, l.px, l.vx)
	noise.Place(q, position, l.py, l.vy)
	noise.Place(q, angleNoise.Q2(dt), l.angle, l.rate)
	return q
}

var _ AngularRateFilter = (*Filter11)(nil)
