package lattice

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/MirzaevaIV/goPW/internal/core"
)

func randomCell(rng *rand.Rand) core.Mat3 {
	var c core.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			c[i][j] = rng.Float64() - 0.5
		}
		c[i][i] += 4 + 2*rng.Float64()
	}
	return c
}

func TestReciprocalCellOrthogonality(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cell := randomCell(rng)
	b, err := ReciprocalCell(cell)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dot := cell[i][0]*b[j][0] + cell[i][1]*b[j][1] + cell[i][2]*b[j][2]
			want := 0.0
			if i == j {
				want = 2 * math.Pi
			}
			assert.InDelta(t, want, dot, 1e-12)
		}
	}
}

func TestGVectorsWithinCutoff(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 5; trial++ {
		cell := randomCell(rng)
		ecut := 1 + 4*rng.Float64()
		gv, err := GenerateGVectors(cell, ecut, core.Vec3{})
		require.NoError(t, err)
		require.NotEmpty(t, gv)
		recip, _ := ReciprocalCell(cell)
		for _, n := range gv {
			g := GCart(recip, n, core.Vec3{})
			assert.LessOrEqual(t, 0.5*norm2(g), ecut)
		}
		assert.Contains(t, gv, [3]int{0, 0, 0})
	}
}

func TestGVectorsDeterministic(t *testing.T) {
	cell := core.Mat3{{5, 0.1, 0}, {0, 6, 0}, {0.2, 0, 7}}
	a, err := GenerateGVectors(cell, 3, core.Vec3{0.25, 0, 0})
	require.NoError(t, err)
	b, err := GenerateGVectors(cell, 3, core.Vec3{0.25, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ba, err := NewBasisSet(cell, 2, 0)
	require.NoError(t, err)
	bb, err := NewBasisSet(cell, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
	assert.Equal(t, 16.0, ba.EcutRho)
}

func TestNewBasisSetRejectsLowDensityCutoff(t *testing.T) {
	cell := core.Mat3{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}}
	_, err := NewBasisSet(cell, 2, 7)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFFTShapeHoldsDensitySphere(t *testing.T) {
	cell := core.Mat3{{6, 0, 0}, {0, 7, 0}, {0, 0, 9}}
	b, err := NewBasisSet(cell, 3, 12)
	require.NoError(t, err)
	gr, err := GenerateGVectors(cell, 12, core.Vec3{})
	require.NoError(t, err)
	m := MaxIndices(gr)
	for i := 0; i < 3; i++ {
		assert.GreaterOrEqual(t, b.FFTShape[i], 2*m[i]+1)
		assert.Equal(t, b.FFTShape[i], GoodFFTSize(b.FFTShape[i]))
	}
}

func TestGoodFFTSize(t *testing.T) {
	for n, want := range map[int]int{1: 1, 7: 8, 11: 12, 13: 15, 17: 18, 31: 32, 49: 50} {
		assert.Equal(t, want, GoodFFTSize(n), "n=%d", n)
	}
}

func TestMonkhorstPack(t *testing.T) {
	for _, grid := range [][3]int{{1, 1, 1}, {2, 2, 2}, {3, 1, 4}, {5, 3, 2}} {
		k, err := MonkhorstPack(grid, core.Vec3{})
		require.NoError(t, err)
		assert.Len(t, k.Points, grid[0]*grid[1]*grid[2])
		assert.InDelta(t, 1.0, floats.Sum(k.Weights), 1e-12)
	}
	k, _ := MonkhorstPack([3]int{2, 1, 1}, core.Vec3{})
	assert.InDelta(t, -0.25, k.Points[0][0], 1e-15)
	assert.InDelta(t, 0.25, k.Points[1][0], 1e-15)

	_, err := MonkhorstPack([3]int{0, 1, 1}, core.Vec3{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestExplicitNormalizesWeights(t *testing.T) {
	k, err := Explicit([]core.Vec3{{0, 0, 0}, {0.5, 0, 0}}, []float64{1, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, k.Weights, 1e-15)
	_, err = Explicit(nil, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestStrainCellScalesVolume(t *testing.T) {
	cell := core.Mat3{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}}
	eta := core.Mat3{{0.01, 0, 0}, {0, 0, 0}, {0, 0, 0}}
	s := StrainCell(cell, eta)
	assert.InDelta(t, 125*1.01, core.CellVolume(s), 1e-12)
}
