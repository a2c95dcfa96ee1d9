package density

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

func TestFermiDiracBoundedAndMonotone(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	eps := make([]float64, 200)
	for i := range eps {
		eps[i] = -5 + 10*float64(i)/199
	}
	for trial := 0; trial < 20; trial++ {
		kT := math.Pow(10, -3+4*rng.Float64())
		mu := rng.NormFloat64()
		f := FermiDirac(eps, mu, kT)
		for i, v := range f {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
			if i > 0 {
				assert.LessOrEqual(t, v, f[i-1])
			}
		}
	}
	step := FermiDirac([]float64{-1, 0, 1}, 0, 0)
	assert.Equal(t, []float64{1, 1, 0}, step)
	// clipped exponent keeps extreme arguments finite
	assert.Equal(t, []float64{1 / (math.Exp(50) + 1)}, FermiDirac([]float64{1e6}, 0, 1e-3))
}

func TestGaussianOccupationsLimit(t *testing.T) {
	assert.Equal(t, []float64{1, 0}, GaussianOccupations([]float64{-1, 1}, 0, 0))
	assert.InDelta(t, 0.5, GaussianOccupations([]float64{0}, 0, 0.1)[0], 1e-15)
}

func TestOccupyFixed(t *testing.T) {
	occ := Occupier{Smearing: SmearingFixed}
	o, err := occ.Occupy([][]float64{{-1, 0, 1}}, []float64{1}, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0}, o.Fractions[0])
	assert.Equal(t, 0.0, o.FermiLevel)
	assert.Equal(t, 0.0, o.TS)

	o, err = occ.Occupy([][]float64{{-1, 0, 1}}, []float64{1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5, 0}, o.Fractions[0])

	_, err = occ.Occupy([][]float64{{-1, 0}}, []float64{1}, 5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestOccupySmearedConservesCharge(t *testing.T) {
	eps := [][]float64{{-0.5, -0.1, 0.05, 0.3}, {-0.45, -0.05, 0.1, 0.4}}
	w := []float64{0.25, 0.75}
	for _, sm := range []Smearing{SmearingFermiDirac, SmearingGaussian} {
		occ := Occupier{Smearing: sm, Width: 0.02, Degeneracy: 2}
		o, err := occ.Occupy(eps, w, 3)
		require.NoError(t, err)
		var n float64
		for k, f := range o.Fractions {
			n += 2 * w[k] * floats.Sum(f)
		}
		assert.InDelta(t, 3, n, 1e-10, string(sm))
		assert.GreaterOrEqual(t, o.TS, 0.0)
		assert.Greater(t, o.FermiLevel, -0.1)
		assert.Less(t, o.FermiLevel, 0.1)
	}
}

func TestParseSmearing(t *testing.T) {
	s, err := ParseSmearing("gaussian")
	require.NoError(t, err)
	assert.Equal(t, SmearingGaussian, s)
	_, err = ParseSmearing("cold")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFromOrbitalsNormalization(t *testing.T) {
	grid, err := fft.NewGrid([3]int{8, 8, 8})
	require.NoError(t, err)
	omega := 125.0
	rng := rand.New(rand.NewSource(4))

	// two random normalized bands over 10 plane waves at two k-points
	var orbs []Orbitals
	for k := 0; k < 2; k++ {
		idx := rng.Perm(grid.N)[:10]
		c := mat.NewCDense(10, 2, nil)
		for n := 0; n < 2; n++ {
			var s float64
			for i := 0; i < 10; i++ {
				z := complex(rng.NormFloat64(), rng.NormFloat64())
				c.Set(i, n, z)
				s += real(z)*real(z) + imag(z)*imag(z)
			}
			for i := 0; i < 10; i++ {
				c.Set(i, n, c.At(i, n)/complex(math.Sqrt(s), 0))
			}
		}
		orbs = append(orbs, Orbitals{Index: idx, C: c})
	}
	occ := [][]float64{{1, 0.5}, {1, 0}}
	w := []float64{0.5, 0.5}
	rho, err := FromOrbitals(grid, omega, orbs, occ, w, 2)
	require.NoError(t, err)
	assert.InDelta(t, 2*(0.5*1.5+0.5*1), Integrate(rho, omega), 1e-10)
	assert.GreaterOrEqual(t, floats.Min(rho), 0.0)

	_, err = FromOrbitals(grid, omega, orbs, occ[:1], w, 2)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSuperpositionHoldsCharge(t *testing.T) {
	cell := core.Mat3{{6, 0, 0}, {0, 6, 0}, {0, 0, 6}}
	grid, err := fft.NewGrid([3]int{16, 16, 16})
	require.NoError(t, err)
	recip, err := lattice.ReciprocalCell(cell)
	require.NoError(t, err)
	rho := Superposition(grid, grid.GVectors(recip), 216, []core.Vec3{{0, 0, 0}, {3, 3, 3}}, []float64{4, 2}, 0.8)
	assert.InDelta(t, 6, Integrate(rho, 216), 1e-10)
	assert.GreaterOrEqual(t, floats.Min(rho), 0.0)
	// peak sits on the larger charge
	assert.Greater(t, rho[grid.Index(0, 0, 0)], rho[grid.Index(8, 8, 8)])

	u := Uniform(10, 4, 2)
	assert.Equal(t, 2.0, u[3])
}
