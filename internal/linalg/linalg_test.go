package linalg

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

func randomComplex(rng *rand.Rand, r, c int) *mat.CDense {
	m := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, complex(rng.NormFloat64(), rng.NormFloat64()))
		}
	}
	return m
}

func randomHermitian(rng *rand.Rand, n int) *mat.CDense {
	a := randomComplex(rng, n, n)
	Hermitize(a)
	return a
}

// randomSPD returns B^H B + n I.
func randomSPD(rng *rand.Rand, n int) *mat.CDense {
	b := randomComplex(rng, n, n)
	s := Mul(blas.ConjTrans, b, blas.NoTrans, b)
	for i := 0; i < n; i++ {
		s.Set(i, i, s.At(i, i)+complex(float64(n), 0))
	}
	Hermitize(s)
	return s
}

func TestMulMatchesLoop(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomComplex(rng, 4, 3)
	b := randomComplex(rng, 4, 5)
	c := Mul(blas.ConjTrans, a, blas.NoTrans, b)
	r, k := c.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 5, k)
	for i := 0; i < 3; i++ {
		for j := 0; j < 5; j++ {
			var s complex128
			for l := 0; l < 4; l++ {
				s += conj(a.At(l, i)) * b.At(l, j)
			}
			assert.InDelta(t, 0, cmplxAbs(s-c.At(i, j)), 1e-12)
		}
	}
}

func cmplxAbs(z complex128) float64 {
	return MaxAbsDiff(mat.NewCDense(1, 1, []complex128{z}), mat.NewCDense(1, 1, nil))
}

func TestHermitianEigen(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	n := 7
	a := randomHermitian(rng, n)
	vals, vecs, err := HermitianEigen(a)
	require.NoError(t, err)
	require.Len(t, vals, n)
	for i := 1; i < n; i++ {
		assert.LessOrEqual(t, vals[i-1], vals[i])
	}
	av := Mul(blas.NoTrans, a, blas.NoTrans, vecs)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			assert.InDelta(t, 0, cmplxAbs(av.At(i, j)-vecs.At(i, j)*complex(vals[j], 0)), 1e-9)
		}
	}
	vhv := Mul(blas.ConjTrans, vecs, blas.NoTrans, vecs)
	assert.Less(t, MaxAbsDiff(vhv, Identity(n)), 1e-9)
}

func TestHermitianEigenDegenerate(t *testing.T) {
	a := Identity(4)
	a.Set(3, 3, 2)
	vals, vecs, err := HermitianEigen(a)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1, 2}, vals, 1e-12)
	vhv := Mul(blas.ConjTrans, vecs, blas.NoTrans, vecs)
	assert.Less(t, MaxAbsDiff(vhv, Identity(4)), 1e-9)
}

func TestInverseSqrtWhitens(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s := randomSPD(rng, 6)
	x, kept, err := InverseSqrt(s, 1e-12)
	require.NoError(t, err)
	require.Equal(t, 6, kept)
	xsx := Mul(blas.ConjTrans, x, blas.NoTrans, Mul(blas.NoTrans, s, blas.NoTrans, x))
	assert.Less(t, MaxAbsDiff(xsx, Identity(6)), 1e-9)
}

func TestInverseSqrtDropsNullDirections(t *testing.T) {
	s := mat.NewCDense(3, 3, []complex128{
		1, 1, 0,
		1, 1, 0,
		0, 0, 1,
	})
	_, kept, err := InverseSqrt(s, 1e-10)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)
}

func TestGeneralizedEigenResiduals(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	n, nb := 8, 3
	h := randomHermitian(rng, n)
	s := randomSPD(rng, n)
	vals, c, err := GeneralizedEigen(h, s, nb, 1e-12)
	require.NoError(t, err)
	require.Len(t, vals, nb)
	hc := Mul(blas.NoTrans, h, blas.NoTrans, c)
	sc := Mul(blas.NoTrans, s, blas.NoTrans, c)
	for j := 0; j < nb; j++ {
		if j > 0 {
			assert.LessOrEqual(t, vals[j-1], vals[j])
		}
		for i := 0; i < n; i++ {
			assert.InDelta(t, 0, cmplxAbs(hc.At(i, j)-sc.At(i, j)*complex(vals[j], 0)), 1e-8)
		}
	}
	chsc := Mul(blas.ConjTrans, c, blas.NoTrans, sc)
	assert.Less(t, MaxAbsDiff(chsc, Identity(nb)), 1e-9)
}

func TestGeneralizedEigenSingularOverlap(t *testing.T) {
	h := Identity(2)
	s := mat.NewCDense(2, 2, []complex128{1, 1, 1, 1})
	_, _, err := GeneralizedEigen(h, s, 2, 1e-10)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSingularSubspace)
	var se *core.SingularSubspaceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Kept)
}
