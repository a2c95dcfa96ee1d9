package eigen

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/linalg"
)

type matOp struct {
	h, s *mat.CDense
	diag []float64
}

func (m *matOp) ApplyH(psi *mat.CDense) *mat.CDense {
	return linalg.Mul(blas.NoTrans, m.h, blas.NoTrans, psi)
}

func (m *matOp) ApplyS(psi *mat.CDense) *mat.CDense {
	if m.s == nil {
		return linalg.Clone(psi)
	}
	return linalg.Mul(blas.NoTrans, m.s, blas.NoTrans, psi)
}

func (m *matOp) Dense() (*mat.CDense, *mat.CDense) { return m.h, m.s }

type precondOp struct{ *matOp }

func (p precondOp) Preconditioner() []float64 { return p.diag }

func random(rng *rand.Rand, r, c int, scale float64) *mat.CDense {
	m := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, complex(scale*rng.NormFloat64(), scale*rng.NormFloat64()))
		}
	}
	return m
}

// problem returns a Hermitian H with a growing diagonal and a positive
// definite S = I + small B^H B.
func problem(rng *rand.Rand, n int) *matOp {
	h := random(rng, n, n, 0.1)
	diag := make([]float64, n)
	for i := 0; i < n; i++ {
		diag[i] = float64(i) * 0.5
		h.Set(i, i, h.At(i, i)+complex(diag[i], 0))
	}
	linalg.Hermitize(h)
	b := random(rng, n, n, 0.05)
	s := linalg.Mul(blas.ConjTrans, b, blas.NoTrans, b)
	linalg.AddScaled(s, 1, linalg.Identity(n))
	linalg.Hermitize(s)
	return &matOp{h: h, s: s, diag: diag}
}

func checkResult(t *testing.T, op *matOp, res *Result, tol float64) {
	t.Helper()
	hc := linalg.Mul(blas.NoTrans, op.h, blas.NoTrans, res.Vectors)
	sc := linalg.Mul(blas.NoTrans, op.s, blas.NoTrans, res.Vectors)
	norms := linalg.ColumnNorms(residuals(hc, sc, res.Values))
	for j, n := range norms {
		assert.Less(t, n, tol, "band %d", j)
		if j > 0 {
			assert.LessOrEqual(t, res.Values[j-1], res.Values[j])
		}
	}
}

func TestSolveMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	op := problem(rng, 30)
	opts := Options{NBands: 4, ResidualTol: 1e-8}
	res, err := Solve(op, random(rng, 30, 6, 1), opts)
	require.NoError(t, err)
	require.True(t, res.Converged)
	checkResult(t, op, res, 1e-8)

	dense, err := SolveDense(op.h, op.s, opts)
	require.NoError(t, err)
	assert.True(t, dense.Converged)
	assert.InDeltaSlice(t, dense.Values, res.Values, 1e-9)
}

func TestSolveWithRestartAndPreconditioner(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	base := problem(rng, 60)
	op := precondOp{base}
	res, err := Solve(op, random(rng, 60, 3, 1), Options{NBands: 3, MaxSubspace: 9, MaxIter: 500, ResidualTol: 1e-7})
	require.NoError(t, err)
	require.True(t, res.Converged)
	checkResult(t, base, res, 1e-7)
}

func TestSolveReportsNonConvergence(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	op := problem(rng, 40)
	res, err := Solve(op, random(rng, 40, 2, 1), Options{NBands: 2, MaxIter: 1, ResidualTol: 1e-12})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Len(t, res.Values, 2)
}

func TestSolveStructuralErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	op := problem(rng, 10)

	_, err := Solve(op, random(rng, 10, 2, 1), Options{NBands: 3})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = Solve(op, mat.NewCDense(10, 3, nil), Options{NBands: 3})
	assert.ErrorIs(t, err, core.ErrSingularSubspace)

	_, err = Diagonalize(op, random(rng, 10, 1, 1), Options{NBands: 2}, 100)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDiagonalizeUsesDenseForSmallSystems(t *testing.T) {
	rng := rand.New(rand.NewSource(10))
	op := problem(rng, 12)
	res, err := Diagonalize(op, random(rng, 12, 3, 1), Options{NBands: 3}, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Iterations)
	checkResult(t, op, res, 1e-8)
}
