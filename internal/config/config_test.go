package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/density"
)

func TestDecodeAppliesDefaults(t *testing.T) {
	in, err := Decode(strings.NewReader("basis:\n  ecutwfc: 20\n"))
	require.NoError(t, err)
	assert.Equal(t, 160.0, in.Basis.EcutRho)
	assert.Equal(t, 10.0, in.EcutWfc())
	assert.Equal(t, 80.0, in.EcutRho())
	assert.Equal(t, 60, in.SCF.MaxIter)
	assert.Equal(t, 1e-8, in.SCF.ETol)
	assert.Equal(t, 1e-6, in.SCF.RhoTol)
	assert.Equal(t, 0.4, in.SCF.MixingBeta)
	assert.Equal(t, 8, in.SCF.MixingNDim)
	assert.Equal(t, 1.0, in.SCF.KerkerQ0)
	assert.Equal(t, 40, in.Diagonalization.MaxSubspace)
	assert.Equal(t, 0.02, in.Electrostatics.BackgroundPrefactor)
	assert.Equal(t, "pbe", in.XC.Functional)
	assert.Equal(t, core.Float64, in.Precision())

	k, err := in.KPointGrid()
	require.NoError(t, err)
	assert.True(t, k.GammaOnly)
}

func TestDecodeFullInput(t *testing.T) {
	src := `
system:
  charge: 1
basis:
  ecutwfc: 30
  ecutrho: 240
kpoints:
  mode: monkhorst-pack
  grid: [2, 2, 1]
  shift: [1, 1, 0]
xc:
  functional: lda
occupations:
  smearing: fermi-dirac
  degauss: 0.02
scf:
  mixer: linear
  mixing_beta: 0.2
runtime:
  precision: float32
`
	in, err := Decode(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1.0, in.System.Charge)
	assert.Equal(t, "linear", in.SCF.Mixer)
	assert.Equal(t, core.Float32, in.Precision())

	occ, err := in.Smearing()
	require.NoError(t, err)
	assert.Equal(t, density.SmearingFermiDirac, occ.Smearing)
	assert.InDelta(t, 0.01, occ.Width, 1e-15)

	k, err := in.KPointGrid()
	require.NoError(t, err)
	assert.Len(t, k.Points, 4)
	assert.InDelta(t, 1, k.Weights[0]*4, 1e-15)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{"missing cutoff", "scf:\n  max_iter: 3\n", "basis.ecutwfc"},
		{"low density cutoff", "basis: {ecutwfc: 20, ecutrho: 60}", "basis.ecutrho"},
		{"mp without grid", "basis: {ecutwfc: 20}\nkpoints: {mode: monkhorst-pack}", "kpoints.grid"},
		{"explicit without points", "basis: {ecutwfc: 20}\nkpoints: {mode: explicit}", "kpoints.points"},
		{"unknown mode", "basis: {ecutwfc: 20}\nkpoints: {mode: spiral}", "kpoints.mode"},
		{"bad beta", "basis: {ecutwfc: 20}\nscf: {mixing_beta: 1.5}", "scf.mixing_beta"},
		{"bad ndim", "basis: {ecutwfc: 20}\nscf: {mixing_ndim: 0}", "scf.mixing_ndim"},
		{"unknown mixer", "basis: {ecutwfc: 20}\nscf: {mixer: broyden}", "scf.mixer"},
		{"unknown functional", "basis: {ecutwfc: 20}\nxc: {functional: scan}", "xc.functional"},
		{"smearing without width", "basis: {ecutwfc: 20}\noccupations: {smearing: gaussian}", "occupations.degauss"},
		{"unknown precision", "basis: {ecutwfc: 20}\nruntime: {precision: float16}", "runtime.precision"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			require.ErrorIs(t, err, core.ErrValidation)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("basis: {ecutwfc: 20, ecut: 3}"))
	assert.Error(t, err)
}

func TestHartreeFockIsAcceptedByConfig(t *testing.T) {
	in, err := Decode(strings.NewReader("basis: {ecutwfc: 20}\nxc: {functional: hf}"))
	require.NoError(t, err)
	assert.Equal(t, "hf", in.XC.Functional)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "si.yaml")
	src := "structure: {path: si.txt}\npseudopotentials:\n  Si: pp/Si.upf\nbasis: {ecutwfc: 20}\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	in, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "si.txt"), in.Structure.Path)
	assert.Equal(t, filepath.Join(dir, "pp", "Si.upf"), in.Pseudopotentials["Si"])

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
