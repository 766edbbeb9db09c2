package direction

import (
	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/noise"
	"github.com/banshee-data/heading/internal/units"
	"gonum.org/v1/gonum/mat"
)

// Filter21 estimates position, velocity and acceleration on both axes, the
// heading offset and its rate.
type Filter21 struct {
	ukfFilter
}

// NewFilter21 returns an unreset Filter21.
func NewFilter21(sigmaPointsAlpha float64) *Filter21 {
	return &Filter21{newUKFFilter("filter 2.1", model21{}, sigmaPointsAlpha)}
}

// AngleSpeed returns the heading offset rate in radians per second.
func (f *Filter21) AngleSpeed() float64 { return f.angleSpeed() }

// AngleSpeedP returns the variance of AngleSpeed.
func (f *Filter21) AngleSpeedP() float64 { return f.angleSpeedP() }

type model21 struct{}

func (model21) layout() layout { return layout21 }

func (model21) initial(pv [4]float64, pvP mat.Symmetric, init Init) (*mat.VecDense, *mat.SymDense) {
	checkPositionVelocity("filter 2.1", pv, pvP)
	core.CheckVariance("filter 2.1 reset", init.AngleVariance, init.AngleSpeedVariance, init.AccelerationVariance)

	l := layout21
	x := mat.NewVecDense(l.n, nil)
	x.SetVec(l.px, pv[0])
	x.SetVec(l.vx, pv[1])
	x.SetVec(l.ax, init.Acceleration)
	x.SetVec(l.py, pv[2])
	x.SetVec(l.vy, pv[3])
	x.SetVec(l.ay, init.Acceleration)
	x.SetVec(l.angle, units.NormalizeAngle(init.Angle))
	x.SetVec(l.rate, init.AngleSpeed)

	p := mat.NewSymDense(l.n, nil)
	placePositionVelocity(p, l, pvP)
	p.SetSym(l.ax, l.ax, init.AccelerationVariance)
	p.SetSym(l.ay, l.ay, init.AccelerationVariance)
	p.SetSym(l.angle, l.angle, init.AngleVariance)
	p.SetSym(l.rate, l.rate, init.AngleSpeedVariance)
	return x, p
}

func (model21) transition(dt float64) core.TransitionFunc {
	l := layout21
	dt2 := dt * dt / 2
	return func(x mat.Vector) *mat.VecDense {
		r := mat.VecDenseCopyOf(x)
		r.SetVec(l.px, x.AtVec(l.px)+dt*x.AtVec(l.vx)+dt2*x.AtVec(l.ax))
		r.SetVec(l.vx, x.AtVec(l.vx)+dt*x.AtVec(l.ax))
		r.SetVec(l.py, x.AtVec(l.py)+dt*x.AtVec(l.vy)+dt2*x.AtVec(l.ay))
		r.SetVec(l.vy, x.AtVec(l.vy)+dt*x.AtVec(l.ay))
		r.SetVec(l.angle, x.AtVec(l.angle)+dt*x.AtVec(l.rate))
		return r
	}
}

func (model21) processNoise(dt float64, positionNoise, angleNoise noise.Model) *mat.SymDense {
	l := layout21
	q := mat.NewSymDense(l.n, nil)
	position := positionNoise.Q3(dt)
	noise.Place(q, position, l.px, l.vx, l.ax)
	noise.Place(q, position, l.py, l.vy, l.ay)
	noise.Place(q, angleNoise.Q2(dt), l.angle, l.rate)
	return q
}

var _ AngularRateFilter = (*Filter21)(nil)
