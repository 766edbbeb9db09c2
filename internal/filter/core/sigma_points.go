package core

import (
	"math"

	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// SigmaPoints generates the 2n+1 scaled sigma points of Van der Merwe with
// β = 2 and κ = 3 − n.
type SigmaPoints struct {
	n      int
	alpha  float64
	beta   float64
	kappa  float64
	lambda float64
	wm     []float64
	wc     []float64
}

// NewSigmaPoints returns the sigma point generator for an n-dimensional
// state. alpha controls the spread of the points and must be in (0, 1].
func NewSigmaPoints(n int, alpha float64) *SigmaPoints {
	if n <= 0 {
		monitoring.Fatalf("sigma points: dimension %d must be positive", n)
	}
	if !(alpha > 0 && alpha <= 1) {
		monitoring.Fatalf("sigma points: alpha %v must be in (0, 1]", alpha)
	}

	s := &SigmaPoints{
		n:     n,
		alpha: alpha,
		beta:  2,
		kappa: 3 - float64(n),
	}
	nf := float64(n)
	s.lambda = alpha*alpha*(nf+s.kappa) - nf

	count := 2*n + 1
	s.wm = make([]float64, count)
	s.wc = make([]float64, count)
	w := 1 / (2 * (nf + s.lambda))
	for i := 1; i < count; i++ {
		s.wm[i] = w
		s.wc[i] = w
	}
	s.wm[0] = s.lambda / (nf + s.lambda)
	s.wc[0] = s.wm[0] + 1 - alpha*alpha + s.beta

	return s
}

// Dim returns the state dimension.
func (s *SigmaPoints) Dim() int { return s.n }

// Count returns the number of points, 2n+1.
func (s *SigmaPoints) Count() int { return 2*s.n + 1 }

// Lambda returns the composite scaling parameter α²(n+κ) − n.
func (s *SigmaPoints) Lambda() float64 { return s.lambda }

// MeanWeights returns the weights used for the mean. The slice must not be
// modified.
func (s *SigmaPoints) MeanWeights() []float64 { return s.wm }

// CovarianceWeights returns the weights used for covariances. The slice must
// not be modified.
func (s *SigmaPoints) CovarianceWeights() []float64 { return s.wc }

// Points returns x followed by x ± the columns of the square root of
// (n+λ)·P.
func (s *SigmaPoints) Points(x mat.Vector, p mat.Symmetric) []*mat.VecDense {
	if x.Len() != s.n || p.SymmetricDim() != s.n {
		monitoring.Fatalf("sigma points: state size %d, covariance size %d, expected %d",
			x.Len(), p.SymmetricDim(), s.n)
	}

	var scaled mat.SymDense
	scaled.ScaleSym(float64(s.n)+s.lambda, p)
	root := squareRoot(&scaled)

	points := make([]*mat.VecDense, 0, s.Count())
	points = append(points, mat.VecDenseCopyOf(x))
	for sign := 1.0; sign >= -1; sign -= 2 {
		for i := 0; i < s.n; i++ {
			var v mat.VecDense
			v.AddScaledVec(x, sign, root.ColView(i))
			points = append(points, &v)
		}
	}
	return points
}

// squareRoot returns a matrix L with L·Lᵀ = a. The Cholesky factor is used
// when a is positive definite; otherwise the eigen decomposition with
// negative eigenvalues clamped to zero.
func squareRoot(a *mat.SymDense) *mat.Dense {
	n := a.SymmetricDim()
	var chol mat.Cholesky
	if chol.Factorize(a) {
		var l mat.TriDense
		chol.LTo(&l)
		return mat.DenseCopyOf(&l)
	}

	var eig mat.EigenSym
	if !eig.Factorize(a, true) {
		monitoring.Fatalf("sigma points: covariance square root failed\n%v",
			mat.Formatted(a, mat.Prefix(""), mat.Excerpt(0)))
	}
	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	values := eig.Values(nil)

	root := mat.NewDense(n, n, nil)
	for j, value := range values {
		if value < 0 {
			if value < -1e-9*math.Max(1, mat.Max(a)) {
				monitoring.Fatalf("sigma points: covariance has negative eigenvalue %v", value)
			}
			value = 0
		}
		scale := math.Sqrt(value)
		for i := 0; i < n; i++ {
			root.Set(i, j, vectors.At(i, j)*scale)
		}
	}
	return root
}
