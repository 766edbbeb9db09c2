// Package core is a generic unscented Kalman filter engine. It knows
// nothing about the states it estimates: state arithmetic, transition and
// measurement functions are supplied by the caller.
package core

import (
	"math"

	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// TransitionFunc maps one state vector to the next.
type TransitionFunc func(x mat.Vector) *mat.VecDense

// MeasurementFunc maps a state vector to measurement space.
type MeasurementFunc func(x mat.Vector) *mat.VecDense

// AddFunc combines a vector with a correction.
type AddFunc func(a, b mat.Vector) *mat.VecDense

// ResidualFunc returns a − b for two vectors of the same space.
type ResidualFunc func(a, b mat.Vector) *mat.VecDense

// UKF holds the state x and covariance P of an unscented Kalman filter.
// The filter is unusable until Reset is called.
type UKF struct {
	points    *SigmaPoints
	add       AddFunc
	residual  ResidualFunc
	x         *mat.VecDense
	p         *mat.SymDense
	sigmasF   []*mat.VecDense
	resetDone bool
}

// NewUKF returns a filter that uses add and residual for state arithmetic.
// Nil functions default to plain vector addition and subtraction.
func NewUKF(points *SigmaPoints, add AddFunc, residual ResidualFunc) *UKF {
	if add == nil {
		add = func(a, b mat.Vector) *mat.VecDense { return Add(a, b) }
	}
	if residual == nil {
		residual = func(a, b mat.Vector) *mat.VecDense { return Subtract(a, b) }
	}
	return &UKF{
		points:   points,
		add:      add,
		residual: residual,
	}
}

// Dim returns the state dimension.
func (u *UKF) Dim() int { return u.points.Dim() }

// Initialized reports whether Reset has been called.
func (u *UKF) Initialized() bool { return u.resetDone }

// X returns the state vector. The returned vector must not be modified.
func (u *UKF) X() *mat.VecDense {
	u.mustBeInitialized("x")
	return u.x
}

// P returns the state covariance. The returned matrix must not be modified.
func (u *UKF) P() *mat.SymDense {
	u.mustBeInitialized("p")
	return u.p
}

// Reset replaces the state and covariance and discards any cached
// predicted sigma points.
func (u *UKF) Reset(x mat.Vector, p mat.Symmetric) {
	n := u.Dim()
	if x.Len() != n || p.SymmetricDim() != n {
		monitoring.Fatalf("UKF reset: state size %d, covariance size %d, expected %d",
			x.Len(), p.SymmetricDim(), n)
	}
	CheckVector("UKF reset x", x)
	CheckCovariance("UKF reset p", p)

	u.x = mat.VecDenseCopyOf(x)
	u.p = mat.NewSymDense(n, nil)
	u.p.CopySym(p)
	u.sigmasF = nil
	u.resetDone = true
}

// Predict propagates the sigma points through f and recombines them.
// The resulting covariance is α²·Σ wc·d·dᵀ + Q where α is the fading
// memory factor.
func (u *UKF) Predict(f TransitionFunc, q mat.Symmetric, fadingMemoryAlpha float64) {
	u.mustBeInitialized("predict")
	CheckFadingMemoryAlpha("UKF predict", fadingMemoryAlpha)
	if q.SymmetricDim() != u.Dim() {
		monitoring.Fatalf("UKF predict: process noise size %d, expected %d", q.SymmetricDim(), u.Dim())
	}

	sigmas := u.points.Points(u.x, u.p)
	for i, s := range sigmas {
		sigmas[i] = f(s)
	}

	x, p := u.transform(sigmas, q, u.add, u.residual, fadingMemoryAlpha)
	CheckVector("UKF predict x", x)
	CheckCovariance("UKF predict p", p)

	u.x = x
	u.p = p
	u.sigmasF = sigmas
}

// Update corrects the state with measurement z, which is modelled by h with
// noise covariance r. add combines the state with the gain correction and
// may be nil to use the filter's own state addition. residualZ computes
// measurement differences and may be nil for plain subtraction.
//
// If gate is not nil and the Mahalanobis distance of the innovation exceeds
// it, the state is left untouched and the returned UpdateInfo has Gate set.
func (u *UKF) Update(h MeasurementFunc, r mat.Symmetric, z mat.Vector, add AddFunc,
	residualZ ResidualFunc, gate *float64, options ...UpdateOption) UpdateInfo {
	u.mustBeInitialized("update")
	if add == nil {
		add = u.add
	}
	if residualZ == nil {
		residualZ = func(a, b mat.Vector) *mat.VecDense { return Subtract(a, b) }
	}
	if r.SymmetricDim() != z.Len() {
		monitoring.Fatalf("UKF update: measurement size %d, noise size %d", z.Len(), r.SymmetricDim())
	}
	CheckVector("UKF update z", z)
	CheckCovariance("UKF update r", r)

	var opts updateOptions
	for _, o := range options {
		o(&opts)
	}

	if u.sigmasF == nil {
		u.sigmasF = u.points.Points(u.x, u.p)
	}

	sigmasH := make([]*mat.VecDense, len(u.sigmasF))
	for i, s := range u.sigmasF {
		sigmasH[i] = h(s)
		if sigmasH[i].Len() != z.Len() {
			monitoring.Fatalf("UKF update: measurement function returned size %d, expected %d",
				sigmasH[i].Len(), z.Len())
		}
	}

	xz, pz := u.transform(sigmasH, r, nil, residualZ, 1)
	CheckVector("UKF update x_z", xz)
	CheckCovariance("UKF update p_z", pz)

	n, m := u.Dim(), z.Len()
	pxz := mat.NewDense(n, m, nil)
	wc := u.points.CovarianceWeights()
	for i := range u.sigmasF {
		dx := u.residual(u.sigmasF[i], u.x)
		dz := residualZ(sigmasH[i], xz)
		pxz.RankOne(pxz, wc[i], dx, dz)
	}

	pzInv := inverse(pz)
	residual := residualZ(z, xz)
	info := newUpdateInfo(residual, pz, pzInv, gate, opts)
	if info.Gate {
		return info
	}

	var k mat.Dense
	k.Mul(pxz, pzInv)

	var correction mat.VecDense
	correction.MulVec(&k, residual)
	x := add(u.x, &correction)

	var reduction, p mat.Dense
	reduction.Mul(pxz, k.T())
	p.Sub(u.p, &reduction)
	ps := Symmetrize(&p)

	CheckVector("UKF update x", x)
	CheckCovariance("UKF update p", ps)

	u.x = x
	u.p = ps
	u.sigmasF = nil
	return info
}

// transform computes the weighted mean of points and their weighted
// covariance plus noise. With add nil the mean lives in a plain vector
// space; otherwise it is accumulated relative to the first point so that
// residual can handle wrapping components.
func (u *UKF) transform(points []*mat.VecDense, noise mat.Symmetric, add AddFunc,
	residual ResidualFunc, fadingMemoryAlpha float64) (*mat.VecDense, *mat.SymDense) {
	wm := u.points.MeanWeights()
	wc := u.points.CovarianceWeights()
	reference := points[0]
	dim := reference.Len()

	offset := mat.NewVecDense(dim, nil)
	for i, point := range points {
		offset.AddScaledVec(offset, wm[i], residual(point, reference))
	}
	var mean *mat.VecDense
	if add != nil {
		mean = add(reference, offset)
	} else {
		mean = Add(reference, offset)
	}

	cov := mat.NewSymDense(dim, nil)
	for i, point := range points {
		cov.SymRankOne(cov, wc[i], residual(point, mean))
	}
	cov.ScaleSym(fadingMemoryAlpha*fadingMemoryAlpha, cov)
	cov.AddSym(cov, noise)

	return mean, cov
}

// inverse inverts a symmetric innovation covariance.
func inverse(s *mat.SymDense) *mat.Dense {
	var chol mat.Cholesky
	var inv mat.SymDense
	if chol.Factorize(s) {
		if err := chol.InverseTo(&inv); err == nil {
			return mat.DenseCopyOf(&inv)
		}
	}
	var d mat.Dense
	if err := d.Inverse(s); err != nil {
		monitoring.Fatalf("UKF update: innovation covariance is singular: %v\n%v", err,
			mat.Formatted(s, mat.Prefix(""), mat.Excerpt(0)))
	}
	return &d
}

func (u *UKF) mustBeInitialized(operation string) {
	if !u.resetDone {
		monitoring.Fatalf("UKF %s: filter has not been reset", operation)
	}
}

// clampZero returns 0 for tiny negative values produced by rounding.
func clampZero(v float64) float64 {
	return math.Max(v, 0)
}
