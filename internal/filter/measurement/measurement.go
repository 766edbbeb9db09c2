// Package measurement defines the timestamped observations fed to the
// heading filters and the interface of an auxiliary position/velocity
// estimator.
package measurement

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

// Value is the set of measurement value types.
type Value interface {
	float64 | r2.Vec
}

// Measurement is a value and its variance. For vectors the variance holds
// the per-axis variances of a diagonal covariance.
type Measurement[T Value] struct {
	Value    T
	Variance T
}

// Position is a position fix. A fix without a variance is kept for
// reporting but is never used to update a filter.
type Position struct {
	Value    r2.Vec
	Variance *r2.Vec
}

// Usable reports whether the fix carries a variance.
func (p *Position) Usable() bool {
	return p != nil && p.Variance != nil
}

// Measurement returns the fix as a Measurement. It must only be called on a
// usable fix.
func (p *Position) Measurement() Measurement[r2.Vec] {
	return Measurement[r2.Vec]{Value: p.Value, Variance: *p.Variance}
}

// TrueData is the ground truth attached to simulated measurements.
type TrueData struct {
	Position r2.Vec
	Speed    float64
	// Angle is the true offset between the direction sensor frame and the
	// direction of motion.
	Angle float64
}

// Measurements is everything observed at one instant. Absent fields are
// nil.
type Measurements struct {
	Time      float64
	Position  *Position
	Direction *Measurement[float64]
	Speed     *Measurement[float64]
	TrueData  *TrueData
}

// HasUsableData reports whether at least one field could update a filter.
func (m Measurements) HasUsableData() bool {
	return m.Position.Usable() || m.Direction != nil || m.Speed != nil
}

// UsablePosition returns the position measurement when usable.
func (m Measurements) UsablePosition() (Measurement[r2.Vec], bool) {
	if !m.Position.Usable() {
		return Measurement[r2.Vec]{}, false
	}
	return m.Position.Measurement(), true
}

func (m Measurements) String() string {
	s := fmt.Sprintf("t = %.3f", m.Time)
	if m.Position != nil {
		s += fmt.Sprintf("; position = (%.3f, %.3f)", m.Position.Value.X, m.Position.Value.Y)
		if m.Position.Variance == nil {
			s += " (no variance)"
		}
	}
	if m.Direction != nil {
		s += fmt.Sprintf("; direction = %.3f", m.Direction.Value)
	}
	if m.Speed != nil {
		s += fmt.Sprintf("; speed = %.3f", m.Speed.Value)
	}
	return s
}

// Estimation is an auxiliary estimator of position and velocity that runs
// alongside the heading filter. The four-element state is ordered
// px, vx, py, vy.
type Estimation interface {
	// Empty reports whether no estimate is available yet.
	Empty() bool
	Position() r2.Vec
	PositionP() *mat.SymDense
	Velocity() r2.Vec
	Speed() float64
	SpeedP() float64
	// AngleP is the variance of the direction of the velocity. It is
	// +Inf when the velocity is zero.
	AngleP() float64
	PositionVelocity() [4]float64
	PositionVelocityP() *mat.SymDense
}

// SpeedVariance returns the variance of |v| given the 2×2 velocity
// covariance, linearised along the direction of v. With zero velocity the
// mean of the axis variances is used.
func SpeedVariance(v r2.Vec, velocityP mat.Symmetric) float64 {
	n := r2.Norm(v)
	if n == 0 || math.IsNaN(n) {
		return (velocityP.At(0, 0) + velocityP.At(1, 1)) / 2
	}
	jx, jy := v.X/n, v.Y/n
	return jx*jx*velocityP.At(0, 0) + 2*jx*jy*velocityP.At(0, 1) + jy*jy*velocityP.At(1, 1)
}

// DirectionVariance returns the variance of atan2(vy, vx) given the 2×2
// velocity covariance. It is +Inf for zero velocity.
func DirectionVariance(v r2.Vec, velocityP mat.Symmetric) float64 {
	n2 := v.X*v.X + v.Y*v.Y
	if n2 == 0 {
		return math.Inf(1)
	}
	jx, jy := -v.Y/n2, v.X/n2
	return jx*jx*velocityP.At(0, 0) + 2*jx*jy*velocityP.At(0, 1) + jy*jy*velocityP.At(1, 1)
}
