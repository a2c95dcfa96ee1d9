package scf

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/density"
	"github.com/MirzaevaIV/goPW/internal/lattice"
	"github.com/MirzaevaIV/goPW/internal/mixer"
	"github.com/MirzaevaIV/goPW/internal/pseudo"
	"github.com/MirzaevaIV/goPW/internal/xc"
)

func linearMixer(t *testing.T, beta float64) mixer.Mixer {
	t.Helper()
	m, err := mixer.NewLinear(beta)
	require.NoError(t, err)
	return m
}

func TestTrivialFixedPointConvergesInOneIteration(t *testing.T) {
	rho0 := []float64{0.1, 0.2, 0.3, 0.4}
	identity := FixedPointFunc(func(_ context.Context, rho []float64) (*Output, error) {
		return &Output{Rho: append([]float64(nil), rho...)}, nil
	})
	var seen *core.SCFState
	res, err := Run(context.Background(), rho0, identity, linearMixer(t, 0.4), Options{
		Energy: func(s *core.SCFState) (core.EnergyBreakdown, error) {
			seen = s
			return core.EnergyBreakdown{Kinetic: 1, Entropy: 0.25}, nil
		},
	})
	require.NoError(t, err)
	assert.True(t, res.State.Converged)
	assert.Equal(t, 1, res.State.Iteration)
	assert.Equal(t, 0.0, res.State.ResidualNorm)
	assert.Equal(t, rho0, res.State.Rho)
	assert.Len(t, res.State.RunID, 36)
	require.NotNil(t, seen)
	assert.Equal(t, rho0, seen.Rho)
	assert.Equal(t, 0.75, res.Energies.FreeEnergy())

	// the returned state is not shared with the caller's slices
	rho0[0] = 9
	assert.Equal(t, 0.1, res.State.Rho[0])
}

func TestMaxIterExceededReturnsBestState(t *testing.T) {
	shift := FixedPointFunc(func(_ context.Context, rho []float64) (*Output, error) {
		out := make([]float64, len(rho))
		for i, v := range rho {
			out[i] = v + 1
		}
		return &Output{Rho: out}, nil
	})
	res, err := Run(context.Background(), []float64{0, 0}, shift, linearMixer(t, 1), Options{MaxIter: 3})
	require.NoError(t, err)
	assert.False(t, res.State.Converged)
	assert.Equal(t, 3, res.State.Iteration)
	assert.Equal(t, []float64{3, 3}, res.State.Rho)
	assert.InDelta(t, 1, res.State.ResidualNorm, 1e-15)
}

func TestEnergyChangeGatesConvergence(t *testing.T) {
	target := []float64{1, 2, 3}
	calls := 0
	fp := FixedPointFunc(func(_ context.Context, _ []float64) (*Output, error) {
		calls++
		e := 0.0
		if calls >= 2 {
			e = 1
		}
		return &Output{Rho: append([]float64(nil), target...), Energies: &core.EnergyBreakdown{Kinetic: e}}, nil
	})
	res, err := Run(context.Background(), []float64{0, 0, 0}, fp, linearMixer(t, 1), Options{})
	require.NoError(t, err)
	assert.True(t, res.State.Converged)
	// iteration 2 has zero residual but dE = 1
	assert.Equal(t, 3, res.State.Iteration)
	assert.Equal(t, 1.0, res.Energies.Kinetic)
	assert.Equal(t, 1.0, res.State.Energy)
}

func TestPulayConvergesContraction(t *testing.T) {
	fp := FixedPointFunc(func(_ context.Context, rho []float64) (*Output, error) {
		out := make([]float64, len(rho))
		for i, v := range rho {
			out[i] = 0.5*v + 0.1*float64(i) + 0.2*math.Sin(v)
		}
		return &Output{Rho: out}, nil
	})
	m, err := mixer.NewPulay(mixer.Options{Beta: 0.4, NDim: 6})
	require.NoError(t, err)
	res, err := Run(context.Background(), make([]float64, 16), fp, m, Options{RhoTol: 1e-10, MaxIter: 200})
	require.NoError(t, err)
	assert.True(t, res.State.Converged)
	assert.Less(t, res.State.ResidualNorm, 1e-10)
	assert.LessOrEqual(t, len(res.State.MixerHistory), 6)
	assert.NotEmpty(t, res.State.MixerHistory)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fp := FixedPointFunc(func(_ context.Context, rho []float64) (*Output, error) {
		return &Output{Rho: rho}, nil
	})
	_, err := Run(ctx, []float64{1}, fp, linearMixer(t, 0.5), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsBadInput(t *testing.T) {
	fp := FixedPointFunc(func(_ context.Context, rho []float64) (*Output, error) {
		return &Output{Rho: rho[:1]}, nil
	})
	_, err := Run(context.Background(), []float64{1, 2}, fp, linearMixer(t, 0.5), Options{})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = Run(context.Background(), nil, fp, linearMixer(t, 0.5), Options{})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = Run(context.Background(), []float64{1}, fp, linearMixer(t, 0.5), Options{MaxIter: -1})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestResidualNorm(t *testing.T) {
	assert.Equal(t, 0.0, ResidualNorm(nil, nil))
	assert.InDelta(t, math.Sqrt(12.5), ResidualNorm([]float64{0, 0}, []float64{3, 4}), 1e-15)
}

func atomConfig(t *testing.T, sp *pseudo.Species, fn xc.Functional) Config {
	t.Helper()
	cell := core.Mat3{{8, 0, 0}, {0, 8, 0}, {0, 0, 8}}
	basis, err := lattice.NewBasisSet(cell, 2, 8)
	require.NoError(t, err)
	return Config{
		Cell:                cell,
		PBC:                 [3]bool{true, true, true},
		Positions:           []core.Vec3{{4, 4, 4}},
		Species:             []*pseudo.Species{sp},
		AtomSpecies:         []int{0},
		Basis:               basis,
		KPoints:             lattice.GammaOnly(),
		Functional:          fn,
		Occupier:            density.Occupier{Smearing: density.SmearingFixed},
		BackgroundPrefactor: 0.02,
	}
}

func gaussianSpecies(t *testing.T, z float64) *pseudo.Species {
	t.Helper()
	pp, err := pseudo.Gaussian("X", z, 1)
	require.NoError(t, err)
	sp, err := pseudo.NewSpecies(pp, 10)
	require.NoError(t, err)
	return sp
}

func TestKohnShamAtomConverges(t *testing.T) {
	cfg := atomConfig(t, gaussianSpecies(t, 2), xc.LDA{})
	ks, err := NewKohnSham(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2.0, ks.NumElectrons())

	rho0 := ks.InitialDensity()
	assert.InDelta(t, 2, density.Integrate(rho0, ks.Volume()), 1e-10)

	m, err := mixer.NewPulay(mixer.Options{
		Beta:   0.4,
		NDim:   8,
		Kerker: &mixer.Kerker{Grid: ks.Grid(), G2: ks.G2(), Q0: 1},
	})
	require.NoError(t, err)
	res, err := Run(context.Background(), rho0, ks, m, Options{MaxIter: 80})
	require.NoError(t, err)
	assert.True(t, res.State.Converged)
	assert.InDelta(t, 2, density.Integrate(res.State.Rho, ks.Volume()), 1e-8)
	assert.Equal(t, []float64{1, 0, 0, 0, 0}, res.State.Occupations[0])
	assert.Less(t, res.State.Eigenvalues[0][0], res.State.Eigenvalues[0][1])

	e := res.Energies
	assert.Greater(t, e.Kinetic, 0.0)
	assert.Greater(t, e.Hartree, 0.0)
	assert.Less(t, e.XC, 0.0)
	assert.Zero(t, e.Nonlocal)
	assert.InDelta(t, 0.02*2/512.0, e.IonIon, 1e-15)
	assert.False(t, math.IsNaN(e.Total()))
}

func TestKohnShamAugmentationConservesCharge(t *testing.T) {
	pp, err := pseudo.Gaussian("X", 2, 1)
	require.NoError(t, err)
	b0 := make([]float64, len(pp.Mesh.R))
	b1 := make([]float64, len(pp.Mesh.R))
	for i, r := range pp.Mesh.R {
		b0[i] = r * math.Exp(-r*r)
		b1[i] = r * r * math.Exp(-r*r)
	}
	pp.Type = core.Ultrasoft
	pp.Nonlocal = core.Nonlocal{
		Beta:            [][]float64{b0, b1},
		AngularMomentum: []int{0, 1},
		D:               mat.NewDense(2, 2, []float64{1, 0, 0, -0.5}),
		Q:               mat.NewDense(2, 2, []float64{0.2, 0, 0, 0.1}),
	}
	sp, err := pseudo.NewSpecies(pp, 10)
	require.NoError(t, err)

	for _, fn := range []xc.Functional{xc.LDA{}, xc.PBE{}} {
		ks, err := NewKohnSham(atomConfig(t, sp, fn))
		require.NoError(t, err)
		out, err := ks.Step(context.Background(), ks.InitialDensity())
		require.NoError(t, err)
		// <psi|S|psi> = 1 puts the missing charge into the augmentation term
		assert.InDelta(t, 2, density.Integrate(out.Rho, ks.Volume()), 1e-8, fn.Name())
		assert.NotZero(t, out.Energies.Nonlocal)
		assert.NotZero(t, out.Energies.Augmentation)
		assert.Len(t, out.Eigenvalues[0], DefaultBands(2))
	}
}

func TestNewKohnShamValidation(t *testing.T) {
	cfg := atomConfig(t, gaussianSpecies(t, 2), xc.LDA{})
	bad := cfg
	bad.AtomSpecies = []int{1}
	_, err := NewKohnSham(bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	bad = cfg
	bad.Charge = 2
	_, err = NewKohnSham(bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	bad = cfg
	bad.NBands = 10000
	_, err = NewKohnSham(bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	bad = cfg
	bad.Functional = nil
	_, err = NewKohnSham(bad)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "converged", Converged.String())
	assert.Equal(t, "max-iter-exceeded", MaxIterExceeded.String())
}
