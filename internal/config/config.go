// config.go --  This file is part of goPW project.
// Mirzaeva Irina, 2024
//
//	goPW is distributed in the hope that it will be useful,
//	but WITHOUT ANY WARRANTY; without even the implied warranty
//	of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//	See the GNU General Public License for more details.
//
//	You should have received a copy of the GNU General Public License
//	along with this program.  If not, see http://www.gnu.org/licenses/
//
// ------------------------------------------------

// Package config reads the YAML calculation input.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/density"
	"github.com/MirzaevaIV/goPW/internal/lattice"
	"github.com/MirzaevaIV/goPW/internal/mixer"
)

// Structure points at the structure file, relative to the input file.
type Structure struct {
	Path string `yaml:"path,omitempty"`
}

// System holds the net charge of the cell.
type System struct {
	Charge float64 `yaml:"charge"`
}

// Basis cutoffs are in Rydberg. A zero ecutrho means 8 x ecutwfc.
type Basis struct {
	EcutWfc float64 `yaml:"ecutwfc"`
	EcutRho float64 `yaml:"ecutrho,omitempty"`
}

// KPoints selects gamma, monkhorst-pack or explicit sampling.
type KPoints struct {
	Mode    string      `yaml:"mode"`
	Grid    []int       `yaml:"grid,omitempty"`
	Shift   []float64   `yaml:"shift,omitempty"`
	Points  [][]float64 `yaml:"points,omitempty"`
	Weights []float64   `yaml:"weights,omitempty"`
}

// XC names the exchange-correlation functional.
type XC struct {
	Functional string `yaml:"functional"`
}

// Occupations selects the smearing; degauss is in Rydberg.
type Occupations struct {
	Smearing string  `yaml:"smearing"`
	Degauss  float64 `yaml:"degauss,omitempty"`
}

// SCF controls the self-consistency loop and the density mixer.
type SCF struct {
	MaxIter    int     `yaml:"max_iter"`
	ETol       float64 `yaml:"etol"`
	RhoTol     float64 `yaml:"rhotol"`
	Mixer      string  `yaml:"mixer"`
	MixingBeta float64 `yaml:"mixing_beta"`
	MixingNDim int     `yaml:"mixing_ndim"`
	KerkerQ0   float64 `yaml:"kerker_q0"`
}

// Diagonalization controls the block Davidson solver. nbands 0 selects a
// count from the number of electrons.
type Diagonalization struct {
	Method      string  `yaml:"method"`
	NBands      int     `yaml:"nbands"`
	BlockSize   int     `yaml:"block_size"`
	MaxSubspace int     `yaml:"max_subspace"`
	MaxIter     int     `yaml:"max_iter"`
	ResidualTol float64 `yaml:"residual_tol"`
}

// Electrostatics holds the neutralizing background prefactor.
type Electrostatics struct {
	BackgroundPrefactor float64 `yaml:"background_prefactor"`
}

// Autodiff controls forces and stress.
type Autodiff struct {
	Forces bool    `yaml:"forces"`
	Stress bool    `yaml:"stress"`
	Step   float64 `yaml:"step"`
}

// Runtime holds execution settings.
type Runtime struct {
	Precision string `yaml:"precision"`
	NProcs    int    `yaml:"nprocs,omitempty"`
	Cache     string `yaml:"cache,omitempty"`
}

// Input is the whole calculation input.
type Input struct {
	Structure        Structure         `yaml:"structure"`
	System           System            `yaml:"system"`
	Pseudopotentials map[string]string `yaml:"pseudopotentials,omitempty"`
	Basis            Basis             `yaml:"basis"`
	KPoints          KPoints           `yaml:"kpoints"`
	XC               XC                `yaml:"xc"`
	Occupations      Occupations       `yaml:"occupations"`
	SCF              SCF               `yaml:"scf"`
	Diagonalization  Diagonalization   `yaml:"diagonalization"`
	Electrostatics   Electrostatics    `yaml:"electrostatics"`
	Autodiff         Autodiff          `yaml:"autodiff"`
	Runtime          Runtime           `yaml:"runtime"`
}

// Default returns an input with every default filled in except the
// wavefunction cutoff, which has none.
func Default() Input {
	return Input{
		KPoints:     KPoints{Mode: "gamma"},
		XC:          XC{Functional: "pbe"},
		Occupations: Occupations{Smearing: string(density.SmearingFixed)},
		SCF: SCF{
			MaxIter:    60,
			ETol:       1e-8,
			RhoTol:     1e-6,
			Mixer:      "pulay",
			MixingBeta: 0.4,
			MixingNDim: 8,
			KerkerQ0:   1.0,
		},
		Diagonalization: Diagonalization{
			Method:      "blocked_davidson",
			BlockSize:   4,
			MaxSubspace: 40,
			MaxIter:     100,
			ResidualTol: 1e-8,
		},
		Electrostatics: Electrostatics{BackgroundPrefactor: 0.02},
		Autodiff:       Autodiff{Forces: true, Stress: true, Step: 1e-4},
		Runtime:        Runtime{Precision: "float64"},
	}
}

// Decode reads YAML from r over the defaults and validates the result.
func Decode(r io.Reader) (*Input, error) {
	in := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&in); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if in.Basis.EcutRho == 0 {
		in.Basis.EcutRho = 8 * in.Basis.EcutWfc
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Load reads and validates the YAML input file at path.
func Load(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	in, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	in.resolve(filepath.Dir(path))
	return in, nil
}

// resolve makes relative file references relative to dir.
func (in *Input) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	in.Structure.Path = abs(in.Structure.Path)
	for sym, p := range in.Pseudopotentials {
		in.Pseudopotentials[sym] = abs(p)
	}
}

// Validate checks the value ranges and cross-field constraints.
func (in *Input) Validate() error {
	if in.Basis.EcutWfc <= 0 {
		return core.Invalid("basis.ecutwfc", "must be positive, got %g", in.Basis.EcutWfc)
	}
	if in.Basis.EcutRho < 4*in.Basis.EcutWfc {
		return core.Invalid("basis.ecutrho", "%g is below 4 x ecutwfc (%g)", in.Basis.EcutRho, 4*in.Basis.EcutWfc)
	}
	switch in.KPoints.Mode {
	case "gamma":
	case "monkhorst-pack":
		if len(in.KPoints.Grid) != 3 {
			return core.Invalid("kpoints.grid", "monkhorst-pack mode needs three divisions")
		}
		if len(in.KPoints.Shift) != 0 && len(in.KPoints.Shift) != 3 {
			return core.Invalid("kpoints.shift", "needs three components, got %d", len(in.KPoints.Shift))
		}
	case "explicit":
		if len(in.KPoints.Points) == 0 {
			return core.Invalid("kpoints.points", "explicit mode requires at least one point")
		}
		for i, p := range in.KPoints.Points {
			if len(p) != 3 {
				return core.Invalid("kpoints.points", "point %d has %d components", i, len(p))
			}
		}
	default:
		return core.Invalid("kpoints.mode", "unknown mode %q", in.KPoints.Mode)
	}
	switch strings.ToLower(in.XC.Functional) {
	case "lda", "pbe", "hf":
	default:
		return core.Invalid("xc.functional", "unknown functional %q", in.XC.Functional)
	}
	if _, err := density.ParseSmearing(in.Occupations.Smearing); err != nil {
		return err
	}
	if in.Occupations.Smearing != string(density.SmearingFixed) && in.Occupations.Degauss <= 0 {
		return core.Invalid("occupations.degauss", "%s smearing needs a positive width", in.Occupations.Smearing)
	}
	if in.SCF.MaxIter < 1 {
		return core.Invalid("scf.max_iter", "must be at least 1, got %d", in.SCF.MaxIter)
	}
	if in.SCF.ETol <= 0 || in.SCF.RhoTol <= 0 {
		return core.Invalid("scf", "tolerances must be positive")
	}
	if in.SCF.MixingBeta <= 0 || in.SCF.MixingBeta > 1 {
		return core.Invalid("scf.mixing_beta", "must be in (0, 1], got %g", in.SCF.MixingBeta)
	}
	if in.SCF.MixingNDim < 1 {
		return core.Invalid("scf.mixing_ndim", "must be at least 1, got %d", in.SCF.MixingNDim)
	}
	if in.SCF.KerkerQ0 < 0 {
		return core.Invalid("scf.kerker_q0", "must not be negative, got %g", in.SCF.KerkerQ0)
	}
	if _, err := mixer.New(in.SCF.Mixer, mixer.Options{Beta: in.SCF.MixingBeta, NDim: in.SCF.MixingNDim}); err != nil {
		return err
	}
	if in.Diagonalization.Method != "blocked_davidson" {
		return core.Invalid("diagonalization.method", "unknown method %q", in.Diagonalization.Method)
	}
	if in.Diagonalization.NBands < 0 || in.Diagonalization.BlockSize < 0 {
		return core.Invalid("diagonalization", "band and block counts must not be negative")
	}
	if in.Diagonalization.ResidualTol <= 0 {
		return core.Invalid("diagonalization.residual_tol", "must be positive, got %g", in.Diagonalization.ResidualTol)
	}
	if in.Electrostatics.BackgroundPrefactor < 0 {
		return core.Invalid("electrostatics.background_prefactor", "must not be negative")
	}
	if _, err := core.ParsePrecision(in.Runtime.Precision); err != nil {
		return err
	}
	return nil
}

// EcutWfc returns the wavefunction cutoff in Hartree.
func (in *Input) EcutWfc() float64 { return core.RyToHa(in.Basis.EcutWfc) }

// EcutRho returns the density cutoff in Hartree.
func (in *Input) EcutRho() float64 { return core.RyToHa(in.Basis.EcutRho) }

// Smearing returns the occupation scheme and its width in Hartree.
func (in *Input) Smearing() (density.Occupier, error) {
	s, err := density.ParseSmearing(in.Occupations.Smearing)
	if err != nil {
		return density.Occupier{}, err
	}
	return density.Occupier{Smearing: s, Width: core.RyToHa(in.Occupations.Degauss)}, nil
}

// Precision returns the working precision.
func (in *Input) Precision() core.Precision {
	p, _ := core.ParsePrecision(in.Runtime.Precision)
	return p
}

// KPointGrid builds the k-point sampling.
func (in *Input) KPointGrid() (core.KPointGrid, error) {
	switch in.KPoints.Mode {
	case "monkhorst-pack":
		if len(in.KPoints.Grid) != 3 {
			return core.KPointGrid{}, core.Invalid("kpoints.grid", "monkhorst-pack mode needs three divisions")
		}
		var shift core.Vec3
		copy(shift[:], in.KPoints.Shift)
		return lattice.MonkhorstPack([3]int{in.KPoints.Grid[0], in.KPoints.Grid[1], in.KPoints.Grid[2]}, shift)
	case "explicit":
		pts := make([]core.Vec3, len(in.KPoints.Points))
		for i, p := range in.KPoints.Points {
			if len(p) != 3 {
				return core.KPointGrid{}, core.Invalid("kpoints.points", "point %d has %d components", i, len(p))
			}
			pts[i] = core.Vec3{p[0], p[1], p[2]}
		}
		return lattice.Explicit(pts, in.KPoints.Weights)
	}
	return lattice.GammaOnly(), nil
}
