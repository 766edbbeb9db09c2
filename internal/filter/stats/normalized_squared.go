// Package stats accumulates normalized squared error statistics used to
// judge whether a filter's reported covariance matches its actual errors.
package stats

import (
	"fmt"
	"math"

	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Confidence is the two-sided probability used for the chi-square band
// reported by String.
const Confidence = 0.95

// NormalizedSquared is a running sum of normalized squared errors together
// with the chi-square degrees of freedom they carry. The zero value is an
// empty accumulator ready for use.
type NormalizedSquared struct {
	count int
	dof   int
	sum   float64
}

// Add accumulates the quadratic form dᵀ·P⁻¹·d with len(d) degrees of freedom.
// P must be symmetric positive definite and match the length of d.
func (n *NormalizedSquared) Add(difference []float64, covariance mat.Symmetric) {
	if covariance.SymmetricDim() != len(difference) {
		monitoring.Fatalf("normalized squared: difference size %d, covariance size %d",
			len(difference), covariance.SymmetricDim())
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(covariance); !ok {
		monitoring.Fatalf("normalized squared: covariance is not positive definite\n%v",
			mat.Formatted(covariance, mat.Prefix(""), mat.Excerpt(0)))
	}

	d := mat.NewVecDense(len(difference), append([]float64(nil), difference...))
	var s mat.VecDense
	if err := chol.SolveVecTo(&s, d); err != nil {
		monitoring.Fatalf("normalized squared: %v", err)
	}

	n.AddDOF(mat.Dot(d, &s), len(difference))
}

// Add1 accumulates residual²/variance as one degree of freedom.
func (n *NormalizedSquared) Add1(residual, variance float64) {
	if !(variance > 0) {
		monitoring.Fatalf("normalized squared: variance %v is not positive", variance)
	}
	n.AddDOF(residual*residual/variance, 1)
}

// AddDOF accumulates an already computed chi-square statistic that has the
// given number of degrees of freedom.
func (n *NormalizedSquared) AddDOF(value float64, dof int) {
	if dof <= 0 {
		monitoring.Fatalf("normalized squared: degrees of freedom %d must be positive", dof)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		monitoring.Fatalf("normalized squared: value %v is not a finite non-negative number", value)
	}
	n.count++
	n.dof += dof
	n.sum += value
}

// Empty reports whether nothing has been accumulated.
func (n *NormalizedSquared) Empty() bool {
	return n.count == 0
}

// Count returns the number of accumulated samples.
func (n *NormalizedSquared) Count() int {
	return n.count
}

// DOF returns the total degrees of freedom accumulated.
func (n *NormalizedSquared) DOF() int {
	return n.dof
}

// Mean returns the average statistic per sample, or NaN when empty.
func (n *NormalizedSquared) Mean() float64 {
	if n.count == 0 {
		return math.NaN()
	}
	return n.sum / float64(n.count)
}

// MeanPerDOF returns the sum divided by the total degrees of freedom. A
// consistent filter keeps this close to 1.
func (n *NormalizedSquared) MeanPerDOF() float64 {
	if n.dof == 0 {
		return math.NaN()
	}
	return n.sum / float64(n.dof)
}

// Bounds returns the Confidence band for MeanPerDOF under the hypothesis
// that the filter is consistent.
func (n *NormalizedSquared) Bounds() (low, high float64) {
	if n.dof == 0 {
		return math.NaN(), math.NaN()
	}
	k := float64(n.dof)
	chi := distuv.ChiSquared{K: k}
	tail := (1 - Confidence) / 2
	return chi.Quantile(tail) / k, chi.Quantile(1-tail) / k
}

// Consistent reports whether MeanPerDOF falls inside Bounds.
func (n *NormalizedSquared) Consistent() bool {
	if n.Empty() {
		return false
	}
	low, high := n.Bounds()
	m := n.MeanPerDOF()
	return m >= low && m <= high
}

// String returns a one-line summary.
func (n *NormalizedSquared) String() string {
	if n.Empty() {
		return "empty"
	}
	low, high := n.Bounds()
	verdict := "consistent"
	switch m := n.MeanPerDOF(); {
	case m < low:
		verdict = "overestimated covariance"
	case m > high:
		verdict = "underestimated covariance"
	}
	return fmt.Sprintf("count = %d; mean = %.4g; mean/dof = %.4g; %g%% [%.4g, %.4g]; %s",
		n.count, n.Mean(), n.MeanPerDOF(), Confidence*100, low, high, verdict)
}
