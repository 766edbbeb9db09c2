package core

import (
	"math"

	"github.com/banshee-data/heading/internal/monitoring"
	"gonum.org/v1/gonum/mat"
)

// symmetryTolerance is the relative tolerance for off-diagonal asymmetry.
const symmetryTolerance = 1e-9

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckDT panics through monitoring.Fatalf unless dt is a positive finite
// time step.
func CheckDT(name string, dt float64) {
	if !(dt > 0) || !IsFinite(dt) {
		monitoring.Fatalf("%s: time step %v is not a positive finite number", name, dt)
	}
}

// CheckVariance panics through monitoring.Fatalf unless every value is a
// positive finite variance.
func CheckVariance(name string, variances ...float64) {
	for _, v := range variances {
		if !(v > 0) || !IsFinite(v) {
			monitoring.Fatalf("%s: variance %v is not a positive finite number", name, v)
		}
	}
}

// CheckFadingMemoryAlpha rejects fading memory factors below 1.
func CheckFadingMemoryAlpha(name string, alpha float64) {
	if !(alpha >= 1) || !IsFinite(alpha) {
		monitoring.Fatalf("%s: fading memory alpha %v must be a finite number >= 1", name, alpha)
	}
}

// CheckVector panics through monitoring.Fatalf if v has a non-finite element.
func CheckVector(name string, v mat.Vector) {
	for i := 0; i < v.Len(); i++ {
		if !IsFinite(v.AtVec(i)) {
			monitoring.Fatalf("%s: vector element %d is %v\n%v", name, i, v.AtVec(i),
				mat.Formatted(v.T(), mat.Prefix(""), mat.Excerpt(0)))
		}
	}
}

// CheckCovariance panics through monitoring.Fatalf if p is not finite, is
// not symmetric, or has a negative diagonal element.
func CheckCovariance(name string, p mat.Symmetric) {
	n := p.SymmetricDim()
	for i := 0; i < n; i++ {
		d := p.At(i, i)
		if !IsFinite(d) || d < 0 {
			monitoring.Fatalf("%s: covariance diagonal element %d is %v\n%v", name, i, d,
				mat.Formatted(p, mat.Prefix(""), mat.Excerpt(0)))
		}
		for j := i + 1; j < n; j++ {
			a, b := p.At(i, j), p.At(j, i)
			if !IsFinite(a) || !IsFinite(b) {
				monitoring.Fatalf("%s: covariance element (%d, %d) is not finite", name, i, j)
			}
			scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
			if math.Abs(a-b) > symmetryTolerance*scale {
				monitoring.Fatalf("%s: covariance is not symmetric at (%d, %d): %v != %v", name, i, j, a, b)
			}
		}
	}
}

// Symmetrize returns (a + aᵀ)/2 as a SymDense.
func Symmetrize(a mat.Matrix) *mat.SymDense {
	r, c := a.Dims()
	if r != c {
		monitoring.Fatalf("symmetrize: matrix is %d×%d", r, c)
	}
	s := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		for j := i; j < r; j++ {
			s.SetSym(i, j, (a.At(i, j)+a.At(j, i))/2)
		}
	}
	return s
}

// Add is the plain vector sum a + b.
func Add(a, b mat.Vector) *mat.VecDense {
	var v mat.VecDense
	v.AddVec(a, b)
	return &v
}

// Subtract is the plain vector difference a - b.
func Subtract(a, b mat.Vector) *mat.VecDense {
	var v mat.VecDense
	v.SubVec(a, b)
	return &v
}
