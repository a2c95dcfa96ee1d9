// operator.go --  This file is part of goPW project.
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

// Package hamiltonian applies the Kohn-Sham Hamiltonian and the overlap
// operator to plane-wave coefficient blocks without forming dense matrices.
// A block is a *mat.CDense whose columns are states.
package hamiltonian

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/linalg"
)

// LocalTerm is a real-space potential applied through the FFT grid.
// Index maps every plane wave onto its grid point.
type LocalTerm struct {
	Grid  *fft.Grid
	Index []int
	V     []float64
}

// Apply returns (V psi) in the plane-wave basis. Columns are transformed in
// parallel.
func (l *LocalTerm) Apply(psi *mat.CDense) *mat.CDense {
	npw, nb := psi.Dims()
	out := linalg.NewCDense(npw, nb)
	if out.IsEmpty() {
		return out
	}
	workers := min(runtime.GOMAXPROCS(-1), nb)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			buf := make([]complex128, l.Grid.N)
			scale := complex(1/float64(l.Grid.N), 0)
			for j := w; j < nb; j += workers {
				clear(buf)
				for i, idx := range l.Index {
					buf[idx] = psi.At(i, j)
				}
				l.Grid.Backward(buf)
				for r, v := range l.V {
					buf[r] *= complex(v, 0)
				}
				l.Grid.Forward(buf)
				for i, idx := range l.Index {
					out.Set(i, j, buf[idx]*scale)
				}
			}
		}(w)
	}
	wg.Wait()
	return out
}

// Projector is the separable operator Beta Coupling Beta^H.
type Projector struct {
	Beta     *mat.CDense
	Coupling *mat.CDense
}

// Project returns Beta^H psi.
func (p *Projector) Project(psi *mat.CDense) *mat.CDense {
	return linalg.Mul(blas.ConjTrans, p.Beta, blas.NoTrans, psi)
}

// Apply returns Beta Coupling Beta^H psi.
func (p *Projector) Apply(psi *mat.CDense) *mat.CDense {
	bp := p.Project(psi)
	return linalg.Mul(blas.NoTrans, p.Beta, blas.NoTrans, linalg.Mul(blas.NoTrans, p.Coupling, blas.NoTrans, bp))
}

// Operator is H = T + V_loc + Beta D Beta^H and S = 1 + Beta Q Beta^H.
// A nil term contributes nothing; with a nil Overlap S is the identity.
type Operator struct {
	Kinetic  []float64
	Local    *LocalTerm
	Nonlocal *Projector
	Overlap  *Projector
}

// Size returns the number of plane waves, or 0 when no term fixes it.
func (o *Operator) Size() int {
	switch {
	case o.Kinetic != nil:
		return len(o.Kinetic)
	case o.Local != nil:
		return len(o.Local.Index)
	case o.Nonlocal != nil:
		r, _ := o.Nonlocal.Beta.Dims()
		return r
	case o.Overlap != nil:
		r, _ := o.Overlap.Beta.Dims()
		return r
	}
	return 0
}

// ApplyH returns H psi. psi is not modified.
func (o *Operator) ApplyH(psi *mat.CDense) *mat.CDense {
	npw, nb := psi.Dims()
	out := linalg.NewCDense(npw, nb)
	if out.IsEmpty() {
		return out
	}
	if o.Kinetic != nil {
		for i, t := range o.Kinetic {
			for j := 0; j < nb; j++ {
				out.Set(i, j, complex(t, 0)*psi.At(i, j))
			}
		}
	}
	if o.Local != nil {
		linalg.AddScaled(out, 1, o.Local.Apply(psi))
	}
	if o.Nonlocal != nil {
		linalg.AddScaled(out, 1, o.Nonlocal.Apply(psi))
	}
	return out
}

// ApplyS returns S psi. psi is not modified.
func (o *Operator) ApplyS(psi *mat.CDense) *mat.CDense {
	out := linalg.Clone(psi)
	if o.Overlap != nil {
		linalg.AddScaled(out, 1, o.Overlap.Apply(psi))
	}
	return out
}

// Preconditioner returns the kinetic diagonal used to precondition
// residuals, or nil when the operator has no kinetic term.
func (o *Operator) Preconditioner() []float64 {
	return o.Kinetic
}

// Dense materializes H and S by applying the operator to the identity. It is
// meant for diagnostics and small test systems.
func (o *Operator) Dense() (h, s *mat.CDense) {
	id := linalg.Identity(o.Size())
	return o.ApplyH(id), o.ApplyS(id)
}
