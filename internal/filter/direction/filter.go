package direction

import (
	"fmt"

	"github.com/banshee-data/heading/internal/filter/core"
	"github.com/banshee-data/heading/internal/filter/measurement"
	"github.com/banshee-data/heading/internal/filter/noise"
	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Filter is a heading filter over one state layout. Reset must be called
// before any other method. Update methods return the innovation details;
// a gated update leaves the state unchanged.
type Filter interface {
	// Reset initialises the state from px, vx, py, vy, its covariance and
	// the remaining initial values.
	Reset(positionVelocity [4]float64, positionVelocityP mat.Symmetric, init Init)
	Predict(dt float64, positionNoise, angleNoise noise.Model, fadingMemoryAlpha float64)

	UpdatePosition(position measurement.Measurement[r2.Vec], gate *float64) core.UpdateInfo
	UpdatePositionSpeed(position measurement.Measurement[r2.Vec], speed measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdatePositionSpeedDirection(position measurement.Measurement[r2.Vec], speed, direction measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdatePositionDirection(position measurement.Measurement[r2.Vec], direction measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdateSpeedDirection(speed, direction measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdateDirection(direction measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdateSpeed(speed measurement.Measurement[float64], gate *float64) core.UpdateInfo
	UpdateVelocity(velocity measurement.Measurement[r2.Vec], gate *float64) core.UpdateInfo

	Position() r2.Vec
	PositionP() *mat.SymDense
	Velocity() r2.Vec
	VelocityP() *mat.SymDense
	Speed() float64
	SpeedP() float64
	// Angle is the heading offset in [-π, π).
	Angle() float64
	AngleP() float64
}

// AngularRateFilter is a Filter that also estimates the heading offset
// rate.
type AngularRateFilter interface {
	Filter
	AngleSpeed() float64
	AngleSpeedP() float64
}

// stateModel is the part of a filter that depends on the state layout.
type stateModel interface {
	layout() layout
	initial(positionVelocity [4]float64, positionVelocityP mat.Symmetric, init Init) (*mat.VecDense, *mat.SymDense)
	transition(dt float64) core.TransitionFunc
	processNoise(dt float64, positionNoise, angleNoise noise.Model) *mat.SymDense
}

// New returns an unreset filter of the given variant.
func New(variant Variant, sigmaPointsAlpha float64) (Filter, error) {
	switch variant {
	case Variant10:
		return NewFilter10(sigmaPointsAlpha), nil
	case Variant11:
		return NewFilter11(sigmaPointsAlpha), nil
	case Variant21:
		return NewFilter21(sigmaPointsAlpha), nil
	default:
		return nil, fmt.Errorf("unknown filter variant %q", variant)
	}
}

// ukfFilter implements Filter on top of the UKF engine.
type ukfFilter struct {
	name  string
	model stateModel
	l     layout
	ukf   *core.UKF
}

func newUKFFilter(name string, model stateModel, sigmaPointsAlpha float64) ukfFilter {
	l := model.layout()
	return ukfFilter{
		name:  name,
		model: model,
		l:     l,
		ukf:   core.NewUKF(core.NewSigmaPoints(l.n, sigmaPointsAlpha), l.add, l.residual),
	}
}

func (f *ukfFilter) Reset(positionVelocity [4]float64, positionVelocityP mat.Symmetric, init Init) {
	if positionVelocityP.SymmetricDim() != 4 {
		monitoring.Fatalf("%s reset: position velocity covariance size %d, expected 4",
			f.name, positionVelocityP.SymmetricDim())
	}
	x, p := f.model.initial(positionVelocity, positionVelocityP, init)
	f.ukf.Reset(x, p)
}

func (f *ukfFilter) Predict(dt float64, positionNoise, angleNoise noise.Model, fadingMemoryAlpha float64) {
	f.mustBeReset("predict")
	core.CheckDT(f.name+" predict", dt)
	f.ukf.Predict(f.model.transition(dt), f.model.processNoise(dt, positionNoise, angleNoise), fadingMemoryAlpha)
}

func (f *ukfFilter) update(operation string, h core.MeasurementFunc, r *mat.SymDense, z *mat.VecDense,
	residual core.ResidualFunc, gate *float64) core.UpdateInfo {
	f.mustBeReset(operation)
	core.CheckVariance(f.name+" "+operation, diagonalOf(r)...)
	return f.ukf.Update(h, r, z, nil, residual, gate, core.WithNIS())
}

func (f *ukfFilter) UpdatePosition(position measurement.Measurement[r2.Vec], gate *float64) core.UpdateInfo {
	return f.update("update position",
		f.l.positionH(),
		diagonal(position.Variance.X, position.Variance.Y),
		vec(position.Value.X, position.Value.Y),
		nil, gate)
}

func (f *ukfFilter) UpdatePositionSpeed(position measurement.Measurement[r2.Vec], speed measurement.Measurement[float64],
	gate *float64) core.UpdateInfo {
	return f.update("update position speed",
		f.l.positionSpeedH(),
		diagonal(position.Variance.X, position.Variance.Y, speed.Variance),
		vec(position.Value.X, position.Value.Y, speed.Value),
		nil, gate)
}

func (f *ukfFilter) UpdatePositionSpeedDirection(position measurement.Measurement[r2.Vec],
	speed, direction measurement.Measurement[float64], gate *float64) core.UpdateInfo {
	return f.update("update position speed direction",
		f.l.positionSpeedDirectionH(f.reference()),
		diagonal(position.Variance.X, position.Variance.Y, speed.Variance, direction.Variance),
		vec(position.Value.X, position.Value.Y, speed.Value, direction.Value),
		wrapResidual(3), gate)
}

func (f *ukfFilter) UpdatePositionDirection(position measurement.Measurement[r2.Vec], direction measurement.Measurement[float64],
	gate *float64) core.UpdateInfo {
	return f.update("update position direction",
		f.l.positionDirectionH(f.reference()),
		diagonal(position.Variance.X, position.Variance.Y, direction.Variance),
		vec(position.Value.X, position.Value.Y, direction.Value),
		wrapResidual(2), gate)
}

func (f *ukfFilter) UpdateSpeedDirection(speed, direction measurement.Measurement[float64], gate *float64) core.UpdateInfo {
	return f.update("update speed direction",
		f.l.speedDirectionH(f.reference()),
		diagonal(speed.Variance, direction.Variance),
		vec(speed.Value, direction.Value),
		wrapResidual(1), gate)
}

func (f *ukfFilter) UpdateDirection(direction measurement.Measurement[float64], gate *float64) core.UpdateInfo {
	return f.update("update direction",
		f.l.directionH(f.reference()),
		diagonal(direction.Variance),
		vec(direction.Value),
		wrapResidual(0), gate)
}

func (f *ukfFilter) UpdateSpeed(speed measurement.Measurement[float64], gate *float64) core.UpdateInfo {
	return f.update("update speed",
		f.l.speedH(),
		diagonal(speed.Variance),
		vec(speed.Value),
		nil, gate)
}

func (f *ukfFilter) UpdateVelocity(velocity measurement.Measurement[r2.Vec], gate *float64) core.UpdateInfo {
	return f.update("update velocity",
		f.l.velocityH(),
		diagonal(velocity.Variance.X, velocity.Variance.Y),
		vec(velocity.Value.X, velocity.Value.Y),
		nil, gate)
}

// reference reads the current state before a measurement model is built.
func (f *ukfFilter) reference() float64 {
	f.mustBeReset("reference")
	return f.l.reference(f.ukf.X())
}

func (f *ukfFilter) Position() r2.Vec {
	f.mustBeReset("position")
	return f.l.position(f.ukf.X())
}

func (f *ukfFilter) PositionP() *mat.SymDense {
	f.mustBeReset("position p")
	return sub(f.ukf.P(), f.l.px, f.l.py)
}

func (f *ukfFilter) Velocity() r2.Vec {
	f.mustBeReset("velocity")
	return f.l.velocity(f.ukf.X())
}

func (f *ukfFilter) VelocityP() *mat.SymDense {
	f.mustBeReset("velocity p")
	return sub(f.ukf.P(), f.l.vx, f.l.vy)
}

func (f *ukfFilter) Speed() float64 {
	f.mustBeReset("speed")
	return f.l.speed(f.ukf.X())
}

func (f *ukfFilter) SpeedP() float64 {
	return measurement.SpeedVariance(f.Velocity(), f.VelocityP())
}

func (f *ukfFilter) Angle() float64 {
	f.mustBeReset("angle")
	return f.ukf.X().AtVec(f.l.angle)
}

func (f *ukfFilter) AngleP() float64 {
	f.mustBeReset("angle p")
	return f.ukf.P().At(f.l.angle, f.l.angle)
}

func (f *ukfFilter) angleSpeed() float64 {
	f.mustBeReset("angle speed")
	return f.ukf.X().AtVec(f.l.rate)
}

func (f *ukfFilter) angleSpeedP() float64 {
	f.mustBeReset("angle speed p")
	return f.ukf.P().At(f.l.rate, f.l.rate)
}

func (f *ukfFilter) mustBeReset(operation string) {
	if !f.ukf.Initialized() {
		monitoring.Fatalf("%s %s: filter has not been reset", f.name, operation)
	}
}

func diagonalOf(s mat.Symmetric) []float64 {
	d := make([]float64, s.SymmetricDim())
	for i := range d {
		d[i] = s.At(i, i)
	}
	return d
}

// placePositionVelocity copies the px, vx, py, vy covariance into p at the
// layout's indices.
func placePositionVelocity(p *mat.SymDense, l layout, positionVelocityP mat.Symmetric) {
	indices := [4]int{l.px, l.vx, l.py, l.vy}
	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			p.SetSym(indices[i], indices[j], positionVelocityP.At(i, j))
		}
	}
}

func checkPositionVelocity(name string, positionVelocity [4]float64, positionVelocityP mat.Symmetric) {
	core.CheckVector(name+" reset", vec(positionVelocity[:]...))
	core.CheckCovariance(name+" reset", positionVelocityP)
}
