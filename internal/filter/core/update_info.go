package core

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// UpdateInfo describes the innovation of one measurement update.
type UpdateInfo struct {
	// Residual is the innovation z − h(x̂).
	Residual []float64
	// S is the innovation covariance.
	S *mat.SymDense
	// MahalanobisDistance is sqrt(rᵀ·S⁻¹·r).
	MahalanobisDistance float64
	// Gate is set when the measurement was rejected and the state kept.
	Gate bool
	// NIS is the normalized innovation squared when requested.
	NIS *float64
	// Likelihood is the Gaussian density of the innovation when requested.
	Likelihood *float64
}

// Dim returns the measurement dimension.
func (i UpdateInfo) Dim() int {
	return len(i.Residual)
}

// UpdateOption requests optional UpdateInfo fields.
type UpdateOption func(*updateOptions)

type updateOptions struct {
	nis        bool
	likelihood bool
}

// WithNIS fills UpdateInfo.NIS.
func WithNIS() UpdateOption {
	return func(o *updateOptions) { o.nis = true }
}

// WithLikelihood fills UpdateInfo.Likelihood.
func WithLikelihood() UpdateOption {
	return func(o *updateOptions) { o.likelihood = true }
}

func newUpdateInfo(residual *mat.VecDense, s *mat.SymDense, sInv *mat.Dense, gate *float64,
	opts updateOptions) UpdateInfo {
	var w mat.VecDense
	w.MulVec(sInv, residual)
	d2 := clampZero(mat.Dot(residual, &w))

	info := UpdateInfo{
		Residual:            make([]float64, residual.Len()),
		S:                   s,
		MahalanobisDistance: math.Sqrt(d2),
	}
	for i := range info.Residual {
		info.Residual[i] = residual.AtVec(i)
	}
	if gate != nil && info.MahalanobisDistance > *gate {
		info.Gate = true
	}
	if opts.nis {
		nis := d2
		info.NIS = &nis
	}
	if opts.likelihood {
		m := float64(residual.Len())
		l := math.Exp(-d2/2) / math.Sqrt(math.Pow(2*math.Pi, m)*mat.Det(s))
		info.Likelihood = &l
	}
	return info
}
