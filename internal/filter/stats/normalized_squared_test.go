package stats

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestNormalizedSquaredEmpty(t *testing.T) {
	var n NormalizedSquared
	assert.True(t, n.Empty())
	assert.Equal(t, "empty", n.String())
	assert.True(t, math.IsNaN(n.Mean()))
	assert.False(t, n.Consistent())
}

func TestNormalizedSquaredAdd(t *testing.T) {
	var n NormalizedSquared
	cov := mat.NewSymDense(2, []float64{
		4, 0,
		0, 1,
	})
	n.Add([]float64{2, 1}, cov)

	require.False(t, n.Empty())
	assert.Equal(t, 1, n.Count())
	assert.Equal(t, 2, n.DOF())
	// 2²/4 + 1²/1
	assert.InDelta(t, 2.0, n.Mean(), 1e-12)
	assert.InDelta(t, 1.0, n.MeanPerDOF(), 1e-12)
}

func TestNormalizedSquaredAddCorrelated(t *testing.T) {
	var n NormalizedSquared
	cov := mat.NewSymDense(2, []float64{
		2, 1,
		1, 2,
	})
	n.Add([]float64{1, 1}, cov)
	// P⁻¹ = 1/3·[[2,-1],[-1,2]] so dᵀP⁻¹d = 2/3
	assert.InDelta(t, 2.0/3, n.Mean(), 1e-12)
}

func TestNormalizedSquaredAdd1AndDOF(t *testing.T) {
	var n NormalizedSquared
	n.Add1(3, 9)
	n.AddDOF(5, 4)
	assert.Equal(t, 2, n.Count())
	assert.Equal(t, 5, n.DOF())
	assert.InDelta(t, 3.0, n.Mean(), 1e-12)
	assert.InDelta(t, 6.0/5, n.MeanPerDOF(), 1e-12)
}

func TestNormalizedSquaredContractViolations(t *testing.T) {
	var n NormalizedSquared
	assert.Panics(t, func() { n.Add1(1, 0) })
	assert.Panics(t, func() { n.AddDOF(1, 0) })
	assert.Panics(t, func() { n.AddDOF(math.NaN(), 1) })
	assert.Panics(t, func() { n.Add([]float64{1}, mat.NewSymDense(2, nil)) })
	assert.True(t, n.Empty())
}

func TestNormalizedSquaredConsistencyVerdict(t *testing.T) {
	src := rand.NewPCG(1, 2)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	var consistent, over, under NormalizedSquared
	for i := 0; i < 2000; i++ {
		e := normal.Rand()
		consistent.Add1(e, 1)
		over.Add1(e, 4)
		under.Add1(e, 0.25)
	}

	assert.True(t, consistent.Consistent(), consistent.String())
	assert.False(t, over.Consistent())
	assert.False(t, under.Consistent())
	assert.True(t, strings.HasSuffix(consistent.String(), "consistent"))
	assert.True(t, strings.HasSuffix(over.String(), "overestimated covariance"))
	assert.True(t, strings.HasSuffix(under.String(), "underestimated covariance"))
}

func TestNormalizedSquaredBounds(t *testing.T) {
	var n NormalizedSquared
	for i := 0; i < 100; i++ {
		n.AddDOF(2, 2)
	}
	low, high := n.Bounds()
	assert.Less(t, low, 1.0)
	assert.Greater(t, high, 1.0)
	assert.Less(t, high-low, 0.6)
}
