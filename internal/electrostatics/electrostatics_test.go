package electrostatics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

func cube(a float64) core.Mat3 {
	return core.Mat3{{a, 0, 0}, {0, a, 0}, {0, 0, a}}
}

func TestCoulombKernelZeroValue(t *testing.T) {
	k := CoulombKernel([]float64{0, 1, 4}, 0)
	assert.Equal(t, 0.0, k[0])
	assert.InDelta(t, 4*math.Pi, k[1], 1e-15)
	assert.InDelta(t, math.Pi, k[2], 1e-15)

	k = CoulombKernel([]float64{0}, 3.5)
	assert.Equal(t, 3.5, k[0])
}

func TestHartreeUniformDensityIsZero(t *testing.T) {
	grid, err := fft.NewGrid([3]int{6, 6, 6})
	require.NoError(t, err)
	e, err := NewEngine(grid, cube(6), 0)
	require.NoError(t, err)
	rho := make([]float64, grid.N)
	for i := range rho {
		rho[i] = 0.3
	}
	v, eh := e.Hartree(rho)
	assert.InDelta(t, 0, eh, 1e-12)
	for _, x := range v {
		assert.InDelta(t, 0, x, 1e-12)
	}
}

func TestHartreeEnergyMatchesRealSpaceIntegral(t *testing.T) {
	grid, err := fft.NewGrid([3]int{10, 10, 10})
	require.NoError(t, err)
	a := 8.0
	e, err := NewEngine(grid, cube(a), 0)
	require.NoError(t, err)
	rho := make([]float64, grid.N)
	for i0 := 0; i0 < 10; i0++ {
		x := a * float64(i0) / 10
		for i1 := 0; i1 < 10; i1++ {
			for i2 := 0; i2 < 10; i2++ {
				rho[grid.Index(i0, i1, i2)] = math.Cos(2 * math.Pi * x / a)
			}
		}
	}
	v, eh := e.Hartree(rho)
	assert.Greater(t, eh, 0.0)
	// E_H = 0.5 int rho V_H
	var s float64
	for i := range rho {
		s += rho[i] * v[i]
	}
	s *= 0.5 * a * a * a / float64(grid.N)
	assert.InDelta(t, s, eh, 1e-10)
	// V_H = 4 pi/G^2 rho for a single Fourier component
	g2 := math.Pow(2*math.Pi/a, 2)
	assert.InDelta(t, 4*math.Pi/g2, v[0], 1e-10)
}

func TestIonIonMinimumImage(t *testing.T) {
	ii, err := NewIonIon(cube(10), [3]bool{true, true, true}, []float64{1, 2}, 0)
	require.NoError(t, err)
	e, err := ii.Energy([]core.Vec3{{0.5, 0, 0}, {9.5, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, e, 1e-12)

	open, err := NewIonIon(cube(10), [3]bool{}, []float64{1, 2}, 0)
	require.NoError(t, err)
	e, err = open.Energy([]core.Vec3{{0.5, 0, 0}, {9.5, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 2.0/9, e, 1e-12)

	_, err = open.Energy([]core.Vec3{{0, 0, 0}})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestIonIonBackground(t *testing.T) {
	ii, err := NewIonIon(cube(2), [3]bool{true, true, true}, []float64{4}, DefaultBackgroundPrefactor)
	require.NoError(t, err)
	e, err := ii.Energy([]core.Vec3{{0, 0, 0}})
	require.NoError(t, err)
	assert.InDelta(t, 0.02*4/8, e, 1e-15)
}

func TestIonIonGradientsMatchFiniteDifferences(t *testing.T) {
	cell := core.Mat3{{7, 0.3, 0}, {0, 8, 0.2}, {0.1, 0, 9}}
	pbc := [3]bool{true, true, true}
	charges := []float64{3, 1, 2}
	pos := []core.Vec3{{0.1, 0.2, 0.3}, {2.5, 1.0, 0.7}, {1.2, 3.3, 2.0}}
	ii, err := NewIonIon(cell, pbc, charges, DefaultBackgroundPrefactor)
	require.NoError(t, err)

	grad := ii.PositionGradient(pos)
	h := 1e-5
	for a := range pos {
		for k := 0; k < 3; k++ {
			p := append([]core.Vec3(nil), pos...)
			p[a][k] += h
			ep, _ := ii.Energy(p)
			p[a][k] -= 2 * h
			em, _ := ii.Energy(p)
			assert.InDelta(t, (ep-em)/(2*h), grad[a][k], 1e-7)
		}
	}

	sg := ii.StrainGradient(pos)
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			eval := func(s float64) float64 {
				var eta core.Mat3
				eta[a][b] = s
				c := lattice.StrainCell(cell, eta)
				x, err := NewIonIon(c, pbc, charges, DefaultBackgroundPrefactor)
				require.NoError(t, err)
				e, _ := x.Energy(lattice.StrainPositions(pos, eta))
				return e
			}
			assert.InDelta(t, (eval(h)-eval(-h))/(2*h), sg[a][b], 1e-6, "component %d%d", a, b)
		}
	}
}
