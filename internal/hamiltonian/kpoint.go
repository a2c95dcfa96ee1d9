// kpoint.go --  This file is part of goPW project.
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
package hamiltonian

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/lattice"
	"github.com/MirzaevaIV/goPW/internal/pseudo"
)

// KPoint is the plane-wave set of one k-point: 0.5|G+k|^2 <= ecutwfc.
type KPoint struct {
	K         core.Vec3
	Weight    float64
	Miller    [][3]int
	GridIndex []int
	Q         []core.Vec3
	Kinetic   []float64
}

// NewKPoint builds the basis at fractional k on grid.
func NewKPoint(cell core.Mat3, grid *fft.Grid, ecutwfc float64, k core.Vec3, weight float64) (*KPoint, error) {
	recip, err := lattice.ReciprocalCell(cell)
	if err != nil {
		return nil, err
	}
	miller, err := lattice.GenerateGVectors(cell, ecutwfc, k)
	if err != nil {
		return nil, err
	}
	kp := &KPoint{
		K:         k,
		Weight:    weight,
		Miller:    miller,
		GridIndex: make([]int, len(miller)),
		Q:         make([]core.Vec3, len(miller)),
		Kinetic:   make([]float64, len(miller)),
	}
	for i, n := range miller {
		for a := 0; a < 3; a++ {
			if 2*abs(n[a]) >= grid.Shape[a] {
				return nil, core.Invalid("basis.fft_shape", "index %v does not fit grid %v", n, grid.Shape)
			}
		}
		q := lattice.GCart(recip, n, k)
		kp.GridIndex[i] = grid.MillerIndex(n)
		kp.Q[i] = q
		kp.Kinetic[i] = 0.5 * (q[0]*q[0] + q[1]*q[1] + q[2]*q[2])
	}
	return kp, nil
}

// Size returns the number of plane waves.
func (kp *KPoint) Size() int { return len(kp.Miller) }

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Atoms places species on Cartesian positions. Species indexes the species
// list passed alongside.
type Atoms struct {
	Positions []core.Vec3
	Species   []int
}

// Channel labels one projector column: radial function Radial of atom Atom
// with angular momentum (L, M).
type Channel struct {
	Atom    int
	Species int
	Radial  int
	L, M    int
}

// Projectors holds the beta functions of every atom at one k-point.
type Projectors struct {
	Beta     *mat.CDense
	Channels []Channel
}

// NewProjectors evaluates
// beta(q) = omega^-1/2 (-i)^l beta_l(|q|) Y_lm(q) exp(-i q . tau)
// for every atom, radial projector and m. It returns nil when no species
// carries projectors.
func NewProjectors(kp *KPoint, omega float64, species []*pseudo.Species, atoms Atoms) *Projectors {
	var chans []Channel
	for a, s := range atoms.Species {
		sp := species[s]
		for i, l := range sp.Data.Nonlocal.AngularMomentum {
			for m := 0; m < 2*l+1; m++ {
				chans = append(chans, Channel{Atom: a, Species: s, Radial: i, L: l, M: m})
			}
		}
	}
	if len(chans) == 0 {
		return nil
	}
	npw := kp.Size()
	beta := mat.NewCDense(npw, len(chans), nil)
	norm := 1 / math.Sqrt(omega)
	for g, q := range kp.Q {
		qn := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2])
		for j, ch := range chans {
			tau := atoms.Positions[ch.Atom]
			phase := cmplx.Exp(complex(0, -(q[0]*tau[0] + q[1]*tau[1] + q[2]*tau[2])))
			radial := species[ch.Species].Beta[ch.Radial].At(qn)
			v := complex(norm*radial*RealYlm(ch.L, ch.M, q), 0) * minusIPow(ch.L) * phase
			beta.Set(g, j, v)
		}
	}
	return &Projectors{Beta: beta, Channels: chans}
}

func minusIPow(l int) complex128 {
	switch l % 4 {
	case 1:
		return -1i
	case 2:
		return -1
	case 3:
		return 1i
	}
	return 1
}

// Coupling builds the block matrix C[a,b] = f(a, b) for channels on the same
// atom with equal (L, M), zero elsewhere.
func (p *Projectors) Coupling(f func(a, b Channel) float64) *mat.CDense {
	n := len(p.Channels)
	c := mat.NewCDense(n, n, nil)
	for i, a := range p.Channels {
		for j, b := range p.Channels {
			if a.Atom != b.Atom || a.L != b.L || a.M != b.M {
				continue
			}
			if v := f(a, b); v != 0 {
				c.Set(i, j, complex(v, 0))
			}
		}
	}
	return c
}

// SpeciesMatrix returns the coupling function reading element (i, j) of a
// per-species matrix, m[s] == nil meaning zero.
func SpeciesMatrix(m []*mat.Dense) func(a, b Channel) float64 {
	return func(a, b Channel) float64 {
		if m[a.Species] == nil {
			return 0
		}
		return m[a.Species].At(a.Radial, b.Radial)
	}
}
