package direction

import (
	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/noise"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/mat"
)

// Filter10 estimates px, vx, py, vy and a constant heading offset.
type Filter10 struct {
	ukfFilter
}

// NewFilter10 returns an unreset Filter10.
func NewFilter10(sigmaPointsAlpha float64) *Filter10 {
	return &Filter10{newUKFFilter("filter 1.0", model10{}, sigmaPointsAlpha)}
}

type model10 struct{}

func (model10) layout() layout { return layout10 }

func (model10) initial(pv [4]float64, pvP mat.Symmetric, init Init) (*mat.VecDense, *mat.SymDense) {
	checkPositionVelocity("filter 1.0", pv, pvP)
	core.CheckVariance("filter 1.0 reset", init.AngleVariance)

	l := layout10
	x := mat.NewVecDense(l.n, nil)
	x.SetVec(l.px, pv[0])
	x.SetVec(l.vx, pv[1])
	x.SetVec(l.py, pv[2])
	x.SetVec(l.vy, pv[3])
	x.SetVec(l.angle, units.NormalizeAngle(init.Angle))

	p := mat.NewSymDense(l.n, nil)
	placePositionVelocity(p, l, pvP)
	p.SetSym(l.angle, l.angle, init.AngleVariance)
	return x, p
}

func (model10) transition(dt float64) core.TransitionFunc {
	l := layout10
	return func(x mat.Vector) *mat.VecDense {
		r := mat.VecDenseCopyOf(x)
		r.SetVec(l.px, x.AtVec(l.px)+dt*x.AtVec(l.vx))
		r.SetVec(l.py, x.AtVec(l.py)+dt*x.AtVec(l.vy))
		return r
	}
}

func (model10) processNoise(dt float64, positionNoise, angleNoise noise.Model) *mat.SymDense {
	l := layout10
	q := mat.NewSymDense(l.n, nil)
	position := positionNoise.Q2(dt)
	noise.Place(q, position, l.px, l.vx)
	noise.Place(q, position, l.py, l.vy)
	q.SetSym(l.angle, l.angle, angleNoise.Q1(dt))
	return q
}
