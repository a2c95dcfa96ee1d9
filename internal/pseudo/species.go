// species.go --  This file is part of goPW project.
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
package pseudo

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// TableStep is the |q| spacing of the interpolation tables (1/bohr).
const TableStep = 0.01

// MaxAngularMomentum is the largest projector l supported.
const MaxAngularMomentum = 2

// Species is one element's pseudopotential prepared for reciprocal space.
// D is in Hartree; Local and Beta hold Bessel transforms without the 1/omega
// factor.
type Species struct {
	Data  core.PseudopotentialData
	Local Table
	Beta  []Table
	D     *mat.Dense
	Q     *mat.Dense
}

// NewSpecies validates pp and tabulates its form factors up to qmax.
// Potentials and D are converted from Rydberg to Hartree.
func NewSpecies(pp core.PseudopotentialData, qmax float64) (*Species, error) {
	if err := pp.Validate(); err != nil {
		return nil, err
	}
	if len(pp.Mesh.R) < 2 || len(pp.LocalPotential) != len(pp.Mesh.R) {
		return nil, core.Invalid("pseudopotential."+pp.Symbol, "local potential has %d points on a %d point mesh", len(pp.LocalPotential), len(pp.Mesh.R))
	}
	for i, l := range pp.Nonlocal.AngularMomentum {
		if l < 0 || l > MaxAngularMomentum {
			return nil, core.Unsupported("projector %d of %s has l=%d", i, pp.Symbol, l)
		}
	}
	r := pp.Mesh.R
	z := pp.ZValence
	rf := make([]float64, len(r))
	for i, v := range pp.LocalPotential {
		// short-range part r*V(r) + Z erf(r), V in Hartree
		rf[i] = r[i]*core.RyToHa(v) + z*math.Erf(r[i])
	}
	sp := &Species{
		Data:  pp,
		Local: NewTable(qmax, TableStep, func(q float64) float64 { return BesselTransform(r, rf, 0, q) }),
	}
	for i, beta := range pp.Nonlocal.Beta {
		l := pp.Nonlocal.AngularMomentum[i]
		sp.Beta = append(sp.Beta, NewTable(qmax, TableStep, func(q float64) float64 {
			return BesselTransform(r, beta, l, q)
		}))
	}
	if pp.Nonlocal.D != nil {
		sp.D = mat.DenseCopyOf(pp.Nonlocal.D)
		sp.D.Scale(core.RyToHartree, sp.D)
	}
	if pp.Nonlocal.Q != nil {
		sp.Q = mat.DenseCopyOf(pp.Nonlocal.Q)
	}
	return sp, nil
}

// Symbol returns the element symbol.
func (s *Species) Symbol() string { return s.Data.Symbol }

// Augmented reports whether the species carries an overlap (USPP/PAW).
func (s *Species) Augmented() bool {
	return s.Data.Type != core.NormConserving && s.Q != nil
}

// LocalForm returns v(G) = 4 pi int r^2 V_loc(r) j0(Gr) dr for |G|^2 = g2.
// The divergent -4 pi Z/G^2 is kept for G != 0 and dropped at G = 0, where
// the finite remainder pi Z is added.
func (s *Species) LocalForm(g2 float64) float64 {
	z := s.Data.ZValence
	if g2 < 1e-12 {
		return s.Local.At(0) + math.Pi*z
	}
	return s.Local.At(math.Sqrt(g2)) - 4*math.Pi*z*math.Exp(-g2/4)/g2
}

// StructureFactor returns sum_a exp(-i G . tau_a) for every G.
func StructureFactor(g []core.Vec3, pos []core.Vec3) []complex128 {
	out := make([]complex128, len(g))
	for i, gv := range g {
		var s complex128
		for _, p := range pos {
			s += cmplx.Exp(complex(0, -(gv[0]*p[0] + gv[1]*p[1] + gv[2]*p[2])))
		}
		out[i] = s
	}
	return out
}

// Gaussian returns a local-only norm-conserving pseudopotential
// V(r) = -Z erf(r/rc)/r on a uniform mesh, in UPF units (Rydberg).
func Gaussian(symbol string, z, rc float64) (core.PseudopotentialData, error) {
	if z <= 0 || rc <= 0 {
		return core.PseudopotentialData{}, core.Invalid("pseudopotential."+symbol, "z=%g rc=%g must be positive", z, rc)
	}
	const (
		dr     = 0.01
		points = 1201
	)
	pp := core.PseudopotentialData{
		Symbol:         symbol,
		Type:           core.NormConserving,
		ZValence:       z,
		Mesh:           core.RadialMesh{R: make([]float64, points), RAB: make([]float64, points)},
		LocalPotential: make([]float64, points),
	}
	for i := 0; i < points; i++ {
		r := float64(i) * dr
		pp.Mesh.R[i] = r
		pp.Mesh.RAB[i] = dr
		if i == 0 {
			pp.LocalPotential[i] = -2 * z * 2 / (math.Sqrt(math.Pi) * rc)
			continue
		}
		pp.LocalPotential[i] = -2 * z * math.Erf(r/rc) / r
	}
	return pp, nil
}
