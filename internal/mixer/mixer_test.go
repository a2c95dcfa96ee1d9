package mixer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

func randomDensity(rng *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.1 + rng.Float64()
	}
	return out
}

func TestFixedPointIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	rho := randomDensity(rng, 64)
	for _, kind := range []string{"linear", "pulay"} {
		m, err := New(kind, Options{Beta: 0.4, NDim: 4})
		require.NoError(t, err)
		for step := 0; step < 3; step++ {
			got := m.Mix(rho, rho)
			assert.True(t, floats.EqualApprox(rho, got, 1e-14), kind)
		}
	}
}

func TestFixedPointIsIdempotentAfterHistory(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	rho := randomDensity(rng, 64)
	for _, kind := range []string{"linear", "pulay"} {
		m, err := New(kind, Options{Beta: 0.4, NDim: 4})
		require.NoError(t, err)
		in := randomDensity(rng, 64)
		for step := 0; step < 3; step++ {
			in = m.Mix(in, randomDensity(rng, 64))
		}
		got := m.Mix(rho, rho)
		assert.True(t, floats.EqualApprox(rho, got, 1e-10), kind)
	}
}

func TestLinearFormula(t *testing.T) {
	m, err := NewLinear(0.3)
	require.NoError(t, err)
	got := m.Mix([]float64{1, 2}, []float64{3, 0})
	assert.InDeltaSlice(t, []float64{1.6, 1.4}, got, 1e-15)
	assert.Equal(t, 1, m.Stats().Steps)
	assert.Nil(t, m.History())

	_, err = NewLinear(0)
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = NewLinear(1.5)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestPulayFirstStepFallsBackToLinear(t *testing.T) {
	p, err := NewPulay(Options{Beta: 0.5, NDim: 3})
	require.NoError(t, err)
	got := p.Mix([]float64{1, 1}, []float64{3, 5})
	assert.Equal(t, []float64{2, 3}, got)
	assert.Equal(t, Stats{Steps: 1, Fallbacks: 1}, p.Stats())
}

func TestPulayHistoryIsBoundedFIFO(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	p, err := NewPulay(Options{Beta: 0.4, NDim: 3})
	require.NoError(t, err)
	var inputs [][]float64
	for i := 0; i < 6; i++ {
		in := randomDensity(rng, 16)
		inputs = append(inputs, in)
		p.Mix(in, randomDensity(rng, 16))
	}
	h := p.History()
	require.Len(t, h, 3)
	for i, e := range h {
		assert.Equal(t, inputs[3+i], e.RhoIn)
	}
	// snapshot is a copy
	h[0].RhoIn[0] = -1
	assert.NotEqual(t, -1.0, p.History()[0].RhoIn[0])

	p.Reset()
	assert.Empty(t, p.History())
	assert.Equal(t, Stats{}, p.Stats())
}

// A linear map rho -> A rho + b with contraction converges much faster
// under Pulay than under plain linear mixing.
func TestPulayAcceleratesLinearFixedPoint(t *testing.T) {
	const n = 12
	rng := rand.New(rand.NewSource(3))
	diag := make([]float64, n)
	b := make([]float64, n)
	for i := range diag {
		diag[i] = 0.9 * rng.Float64()
		b[i] = rng.Float64()
	}
	f := func(x []float64) []float64 {
		out := make([]float64, n)
		for i := range x {
			out[i] = diag[i]*x[i] + b[i]
		}
		return out
	}
	fixed := make([]float64, n)
	for i := range fixed {
		fixed[i] = b[i] / (1 - diag[i])
	}
	run := func(m Mixer, steps int) float64 {
		x := make([]float64, n)
		for i := 0; i < steps; i++ {
			x = m.Mix(x, f(x))
		}
		return floats.Distance(x, fixed, 2)
	}
	pulay, err := NewPulay(Options{Beta: 0.5, NDim: 8})
	require.NoError(t, err)
	lin, err := NewLinear(0.5)
	require.NoError(t, err)
	errPulay := run(pulay, 15)
	errLin := run(lin, 15)
	assert.Less(t, errPulay, 0.1*errLin)
	assert.Greater(t, pulay.Stats().Extrapolated, 0)
}

func TestPulayDegenerateHistoryFallsBack(t *testing.T) {
	p, err := NewPulay(Options{Beta: 0.5, NDim: 4})
	require.NoError(t, err)
	in := []float64{1, 1, 1}
	out := []float64{2, 2, 2}
	p.Mix(in, out)
	got := p.Mix(in, out)
	// identical residuals make B singular
	assert.InDeltaSlice(t, []float64{1.5, 1.5, 1.5}, got, 1e-12)
	assert.Equal(t, 2, p.Stats().Fallbacks)
}

func TestKerkerRemovesUniformComponent(t *testing.T) {
	cell := core.Mat3{{5, 0, 0}, {0, 5, 0}, {0, 0, 5}}
	grid, err := fft.NewGrid([3]int{8, 8, 8})
	require.NoError(t, err)
	recip, err := lattice.ReciprocalCell(cell)
	require.NoError(t, err)
	k := &Kerker{Grid: grid, G2: grid.G2(recip), Q0: 1}

	r := make([]float64, grid.N)
	for i := range r {
		r[i] = 0.3
	}
	out := k.Apply(r)
	assert.Less(t, floats.Norm(out, math.Inf(1)), 1e-12)

	// a single plane wave is damped by q^2/(q^2+q0^2)
	g := 2 * math.Pi / 5
	for i0 := 0; i0 < 8; i0++ {
		for i1 := 0; i1 < 8; i1++ {
			for i2 := 0; i2 < 8; i2++ {
				r[grid.Index(i0, i1, i2)] = math.Cos(2 * math.Pi * float64(i0) / 8)
			}
		}
	}
	out = k.Apply(r)
	want := g * g / (g*g + 1)
	for i := range r {
		assert.InDelta(t, want*r[i], out[i], 1e-12)
	}
}

func TestNewRejectsUnknownMixer(t *testing.T) {
	_, err := New("broyden", Options{Beta: 0.4, NDim: 4})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = NewPulay(Options{Beta: 0.4})
	assert.ErrorIs(t, err, core.ErrValidation)
}
