package autodiff

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/electrostatics"
)

func harmonic(pos []core.Vec3, _ core.Mat3) (float64, error) {
	var e float64
	for _, p := range pos {
		e += 0.5 * (p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
	}
	return e, nil
}

func TestHarmonicForcesEqualMinusPosition(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	pos := make([]core.Vec3, 5)
	for i := range pos {
		pos[i] = core.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}
	f, err := Forces(harmonic, pos, core.Mat3{}, Options{})
	require.NoError(t, err)
	for i := range pos {
		for k := 0; k < 3; k++ {
			assert.InDelta(t, -pos[i][k], f[i][k], 1e-10)
		}
	}
}

func TestForcesPropagateErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Forces(func([]core.Vec3, core.Mat3) (float64, error) { return 0, boom }, []core.Vec3{{}}, core.Mat3{}, Options{})
	assert.ErrorIs(t, err, boom)
	f, err := Forces(harmonic, nil, core.Mat3{}, Options{})
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestIonIonForcesAndStressMatchAnalytic(t *testing.T) {
	cell := core.Mat3{{6, 0.3, 0}, {0, 7, 0}, {0.2, 0, 8}}
	pos := []core.Vec3{{0.5, 0.5, 0.5}, {2.5, 3, 1}, {4, 1, 6}}
	ii, err := electrostatics.NewIonIon(cell, [3]bool{true, true, true}, []float64{1, 2, 3}, 0.02)
	require.NoError(t, err)
	energy := func(p []core.Vec3, c core.Mat3) (float64, error) {
		ev, err := electrostatics.NewIonIon(c, ii.PBC, ii.Charges, ii.Prefactor)
		if err != nil {
			return 0, err
		}
		return ev.Energy(p)
	}

	f, err := Forces(energy, pos, cell, Options{})
	require.NoError(t, err)
	want := ii.PositionGradient(pos)
	for i := range pos {
		for k := 0; k < 3; k++ {
			assert.InDelta(t, -want[i][k], f[i][k], 1e-7)
		}
	}

	d, err := StrainDerivative(energy, pos, cell, Options{Step: 1e-5})
	require.NoError(t, err)
	sg := ii.StrainGradient(pos)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			assert.InDelta(t, sg[i][j], d[i][j], 1e-6)
		}
	}
	s, err := Stress(energy, pos, cell, Options{Step: 1e-5})
	require.NoError(t, err)
	assert.InDelta(t, s[0][1], s[1][0], 1e-15)
}

func TestVoigtOrdering(t *testing.T) {
	s := core.Mat3{{1, 6, 5}, {6, 2, 4}, {5, 4, 3}}
	v := Voigt(s)
	assert.Equal(t, [6]float64{1, 2, 3, 4, 5, 6}, v)
	assert.Equal(t, s, FromVoigt(v))
}

func TestStressFromStrainDerivativeSymmetrizes(t *testing.T) {
	d := core.Mat3{{2, 1, 0}, {3, 2, 0}, {0, 0, 2}}
	s := StressFromStrainDerivative(d, 2)
	assert.Equal(t, 1.0, s[0][0])
	assert.Equal(t, 1.0, s[0][1])
	assert.Equal(t, 1.0, s[1][0])
}

func TestImplicitGradientLinearMap(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		0.2, 0.1, 0,
		0, 0.3, 0.1,
		0.1, 0, 0.4,
	})
	b := mat.NewDense(3, 2, []float64{1, 0, 0, 2, 1, 1})
	g := func(rho, theta []float64) []float64 {
		var out mat.VecDense
		out.MulVec(a, mat.NewVecDense(3, rho))
		var bt mat.VecDense
		bt.MulVec(b, mat.NewVecDense(2, theta))
		out.AddVec(&out, &bt)
		return out.RawVector().Data
	}
	theta := []float64{0.3, -0.2}
	// rho* = (I - A)^-1 B theta
	ima := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	ima.Sub(ima, a)
	var want mat.Dense
	require.NoError(t, want.Solve(ima, b))
	var rho mat.VecDense
	rho.MulVec(&want, mat.NewVecDense(2, theta))

	got, err := ImplicitGradient(g, rho.RawVector().Data, theta, Options{})
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(&want, got, 1e-8))
}

func TestTotalDerivativeScalarFixedPoint(t *testing.T) {
	// rho = 0.5 cos(rho) + theta
	g := func(rho, theta []float64) []float64 {
		return []float64{0.5*math.Cos(rho[0]) + theta[0]}
	}
	theta := []float64{0.7}
	rho := 0.0
	for i := 0; i < 200; i++ {
		rho = g([]float64{rho}, theta)[0]
	}
	drho := 1 / (1 + 0.5*math.Sin(rho))

	jac, err := ImplicitGradient(g, []float64{rho}, theta, Options{})
	require.NoError(t, err)
	assert.InDelta(t, drho, jac.At(0, 0), 1e-8)

	// E = rho^2 + theta^2 has dE/dtheta = 2 rho drho + 2 theta
	e := func(r, th []float64) float64 { return r[0]*r[0] + th[0]*th[0] }
	d, err := TotalDerivative(e, g, []float64{rho}, theta, Options{})
	require.NoError(t, err)
	assert.InDelta(t, 2*rho*drho+2*theta[0], d[0], 1e-7)
}

func TestImplicitGradientRejectsSingularMap(t *testing.T) {
	identity := func(rho, theta []float64) []float64 {
		return []float64{rho[0] + 0*theta[0]}
	}
	_, err := ImplicitGradient(identity, []float64{1}, []float64{0}, Options{})
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = ImplicitGradient(identity, nil, []float64{0}, Options{})
	assert.ErrorIs(t, err, core.ErrValidation)
}
