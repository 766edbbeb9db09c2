// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the matrix assertions used by the filter tests
// so each package checks covariances the same way.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// DefaultTolerance is used by AssertSymmetric when tol is zero.
const DefaultTolerance = 1e-12

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertSymmetric fails the test if m is not square or m(i,j) and m(j,i)
// differ by more than tol.
func AssertSymmetric(t *testing.T, m mat.Matrix, tol float64) {
	t.Helper()
	if tol == 0 {
		tol = DefaultTolerance
	}
	r, c := m.Dims()
	if r != c {
		t.Errorf("matrix is %d×%d, want square", r, c)
		return
	}
	for i := 0; i < r; i++ {
		for j := i + 1; j < c; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > tol {
				t.Errorf("m(%d,%d) = %v, m(%d,%d) = %v", i, j, m.At(i, j), j, i, m.At(j, i))
			}
		}
	}
}

// AssertPositiveSemiDefinite fails the test if m has an eigenvalue below
// a small negative rounding allowance.
func AssertPositiveSemiDefinite(t *testing.T, m mat.Symmetric) {
	t.Helper()
	var eig mat.EigenSym
	if !eig.Factorize(m, false) {
		t.Errorf("eigen decomposition failed\n%v", mat.Formatted(m))
		return
	}
	allowance := 1e-9 * math.Max(1, mat.Max(m))
	for i, v := range eig.Values(nil) {
		if v < -allowance {
			t.Errorf("eigenvalue %d = %v is negative\n%v", i, v, mat.Formatted(m))
		}
	}
}

// AssertVecInDelta fails the test if got and want differ in length or in
// any element by more than delta.
func AssertVecInDelta(t *testing.T, want []float64, got mat.Vector, delta float64) {
	t.Helper()
	if got.Len() != len(want) {
		t.Errorf("length = %d, want %d", got.Len(), len(want))
		return
	}
	for i, w := range want {
		if math.Abs(got.AtVec(i)-w) > delta {
			t.Errorf("element %d = %v, want %v ± %v", i, got.AtVec(i), w, delta)
		}
	}
}
