// autodiff.go --  This file is part of goPW project.
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

// Package autodiff turns pure energy functions into forces and stress and
// differentiates converged fixed points with the implicit function theorem.
package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

// DefaultStep is the central-difference step in bohr (positions) or
// dimensionless strain.
const DefaultStep = 1e-4

// EnergyFunc is a pure function of Cartesian positions and cell returning
// Hartree.
type EnergyFunc func(pos []core.Vec3, cell core.Mat3) (float64, error)

// Options controls the numerical differentiation. Zero values select
// defaults.
type Options struct {
	Step       float64
	Concurrent bool
}

func (o Options) settings() *fd.Settings {
	step := o.Step
	if step <= 0 {
		step = DefaultStep
	}
	return &fd.Settings{Formula: fd.Central, Step: step, Concurrent: o.Concurrent}
}

// gradient runs fd.Gradient over f, returning the first error f reported.
func gradient(f func(x []float64) (float64, error), x []float64, opts Options) ([]float64, error) {
	errc := make(chan error, 1)
	g := fd.Gradient(nil, func(x []float64) float64 {
		v, err := f(x)
		if err != nil {
			select {
			case errc <- err:
			default:
			}
			return math.NaN()
		}
		return v
	}, x, opts.settings())
	select {
	case err := <-errc:
		return nil, err
	default:
	}
	return g, nil
}

func flatten(pos []core.Vec3) []float64 {
	out := make([]float64, 0, 3*len(pos))
	for _, p := range pos {
		out = append(out, p[0], p[1], p[2])
	}
	return out
}

func unflatten(x []float64) []core.Vec3 {
	out := make([]core.Vec3, len(x)/3)
	for i := range out {
		out[i] = core.Vec3{x[3*i], x[3*i+1], x[3*i+2]}
	}
	return out
}

// Forces returns -dE/dr for every atom.
func Forces(e EnergyFunc, pos []core.Vec3, cell core.Mat3, opts Options) ([]core.Vec3, error) {
	if len(pos) == 0 {
		return nil, nil
	}
	g, err := gradient(func(x []float64) (float64, error) {
		return e(unflatten(x), cell)
	}, flatten(pos), opts)
	if err != nil {
		return nil, fmt.Errorf("forces: %w", err)
	}
	f := unflatten(g)
	for i := range f {
		for k := 0; k < 3; k++ {
			f[i][k] = -f[i][k]
		}
	}
	return f, nil
}

// StrainDerivative returns dE/d(eta) at eta = 0, where the strain maps the
// cell to (I+eta) h and moves positions affinely.
func StrainDerivative(e EnergyFunc, pos []core.Vec3, cell core.Mat3, opts Options) (core.Mat3, error) {
	g, err := gradient(func(x []float64) (float64, error) {
		eta := core.Mat3{{x[0], x[1], x[2]}, {x[3], x[4], x[5]}, {x[6], x[7], x[8]}}
		return e(lattice.StrainPositions(pos, eta), lattice.StrainCell(cell, eta))
	}, make([]float64, 9), opts)
	if err != nil {
		return core.Mat3{}, fmt.Errorf("stress: %w", err)
	}
	return core.Mat3{{g[0], g[1], g[2]}, {g[3], g[4], g[5]}, {g[6], g[7], g[8]}}, nil
}

// Stress returns the symmetrized strain derivative divided by the cell
// volume, in Hartree/bohr^3.
func Stress(e EnergyFunc, pos []core.Vec3, cell core.Mat3, opts Options) (core.Mat3, error) {
	d, err := StrainDerivative(e, pos, cell, opts)
	if err != nil {
		return core.Mat3{}, err
	}
	return StressFromStrainDerivative(d, core.CellVolume(cell)), nil
}

// StressFromStrainDerivative symmetrizes d and divides by volume.
func StressFromStrainDerivative(d core.Mat3, volume float64) core.Mat3 {
	var s core.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s[i][j] = 0.5 * (d[i][j] + d[j][i]) / volume
		}
	}
	return s
}

// Voigt returns [xx, yy, zz, yz, xz, xy].
func Voigt(s core.Mat3) [6]float64 {
	return [6]float64{s[0][0], s[1][1], s[2][2], s[1][2], s[0][2], s[0][1]}
}

// FromVoigt rebuilds the symmetric tensor.
func FromVoigt(v [6]float64) core.Mat3 {
	return core.Mat3{
		{v[0], v[5], v[4]},
		{v[5], v[1], v[3]},
		{v[4], v[3], v[2]},
	}
}
