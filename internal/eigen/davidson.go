// davidson.go --  This file is part of goPW project.
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

// Package eigen finds the lowest eigenpairs of H c = S c eps with a block
// Davidson iteration that only calls the operator's apply functions.
package eigen

import (
	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/linalg"
)

// Operator applies H and S to a block of column vectors.
type Operator interface {
	ApplyH(psi *mat.CDense) *mat.CDense
	ApplyS(psi *mat.CDense) *mat.CDense
}

// Preconditioned is implemented by operators that expose a kinetic
// diagonal for residual preconditioning.
type Preconditioned interface {
	Preconditioner() []float64
}

// Options controls Solve. Zero values select defaults.
type Options struct {
	NBands       int
	BlockSize    int
	MaxIter      int
	MaxSubspace  int
	ResidualTol  float64
	OverlapFloor float64
	Logger       *log.Logger
}

// Defaults for Options.
const (
	DefaultMaxIter     = 100
	DefaultMaxSubspace = 40
	DefaultResidualTol = 1e-8
)

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = o.NBands
	}
	if o.MaxIter <= 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.MaxSubspace <= 0 {
		o.MaxSubspace = DefaultMaxSubspace
	}
	o.MaxSubspace = max(o.MaxSubspace, o.NBands+o.BlockSize)
	if o.ResidualTol <= 0 {
		o.ResidualTol = DefaultResidualTol
	}
	if o.OverlapFloor <= 0 {
		o.OverlapFloor = core.Float64.OverlapFloor()
	}
	return o
}

// Result holds the lowest NBands eigenpairs in ascending order. Converged is
// false when the iteration budget ran out first.
type Result struct {
	Values     []float64
	Vectors    *mat.CDense
	Residuals  []float64
	Iterations int
	Converged  bool
}

// Solve runs block Davidson from the trial columns of guess. A guess with
// fewer than NBands columns is a validation error; an overlap without
// enough directions above the floor is a *core.SingularSubspaceError.
func Solve(op Operator, guess *mat.CDense, opts Options) (*Result, error) {
	if opts.NBands <= 0 {
		return nil, core.Invalid("diagonalization.nbands", "must be positive, got %d", opts.NBands)
	}
	npw, ncol := guess.Dims()
	if ncol < opts.NBands {
		return nil, core.Invalid("diagonalization.guess", "%d trial vectors for %d bands", ncol, opts.NBands)
	}
	if npw < opts.NBands {
		return nil, core.Invalid("diagonalization.nbands", "%d bands exceed %d plane waves", opts.NBands, npw)
	}
	opts = opts.withDefaults()
	logger := core.OrDiscard(opts.Logger)

	var precond []float64
	if p, ok := op.(Preconditioned); ok {
		precond = p.Preconditioner()
	}

	v := orthonormalize(nil, guess)
	if _, k := v.Dims(); k < opts.NBands {
		return nil, &core.SingularSubspaceError{Kept: k, Needed: opts.NBands, Floor: opts.OverlapFloor}
	}
	hv, sv := op.ApplyH(v), op.ApplyS(v)

	res := &Result{}
	for iter := 1; ; iter++ {
		hs := linalg.Mul(blas.ConjTrans, v, blas.NoTrans, hv)
		ss := linalg.Mul(blas.ConjTrans, v, blas.NoTrans, sv)
		vals, y, err := linalg.GeneralizedEigen(hs, ss, opts.NBands, opts.OverlapFloor)
		if err != nil {
			return nil, err
		}
		x := linalg.Mul(blas.NoTrans, v, blas.NoTrans, y)
		hx := linalg.Mul(blas.NoTrans, hv, blas.NoTrans, y)
		sx := linalg.Mul(blas.NoTrans, sv, blas.NoTrans, y)
		r := residuals(hx, sx, vals)
		norms := linalg.ColumnNorms(r)

		res.Values, res.Vectors, res.Residuals, res.Iterations = vals, x, norms, iter
		var todo []int
		for j, n := range norms {
			if n >= opts.ResidualTol {
				todo = append(todo, j)
			}
		}
		logger.Debug("davidson", "iter", iter, "subspace", cols(v), "unconverged", len(todo), "maxres", maxOf(norms))
		if len(todo) == 0 {
			res.Converged = true
			return res, nil
		}
		if iter >= opts.MaxIter {
			return res, nil
		}
		if len(todo) > opts.BlockSize {
			todo = todo[:opts.BlockSize]
		}

		t := mat.NewCDense(npw, len(todo), nil)
		for k, j := range todo {
			col := linalg.Column(r, j)
			if precond != nil {
				tpa(col, precond, kineticEnergy(linalg.Column(x, j), precond))
			}
			linalg.SetColumn(t, k, col)
		}

		if cols(v)+len(todo) > opts.MaxSubspace {
			// restart from the current Ritz vectors
			v = orthonormalize(nil, x)
			hv, sv = op.ApplyH(v), op.ApplyS(v)
		}
		t = orthonormalize(v, t)
		if cols(t) == 0 {
			logger.Debug("davidson stalled", "iter", iter)
			return res, nil
		}
		v = linalg.HStack(v, t)
		hv = linalg.HStack(hv, op.ApplyH(t))
		sv = linalg.HStack(sv, op.ApplyS(t))
	}
}

func residuals(hx, sx *mat.CDense, vals []float64) *mat.CDense {
	r := linalg.Clone(hx)
	n, _ := r.Dims()
	for j, e := range vals {
		for i := 0; i < n; i++ {
			r.Set(i, j, r.At(i, j)-complex(e, 0)*sx.At(i, j))
		}
	}
	return r
}

// tpa applies the Teter-Payne-Allan preconditioner in place.
func tpa(r []complex128, kin []float64, ekin float64) {
	if ekin <= 0 {
		ekin = 1
	}
	for i := range r {
		x := kin[i] / ekin
		p := 27 + x*(18+x*(12+8*x))
		r[i] *= complex(p/(p+16*x*x*x*x), 0)
	}
}

// kineticEnergy returns sum_G T_G |c_G|^2 / sum_G |c_G|^2.
func kineticEnergy(c []complex128, kin []float64) float64 {
	var num, den float64
	for i, z := range c {
		a := real(z)*real(z) + imag(z)*imag(z)
		num += kin[i] * a
		den += a
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// orthonormalize returns the columns of t made orthonormal to the columns
// of base (assumed orthonormal) and to each other, dropping columns that
// are numerically dependent.
func orthonormalize(base, t *mat.CDense) *mat.CDense {
	n, _ := t.Dims()
	var basis [][]complex128
	if base != nil {
		for j := 0; j < cols(base); j++ {
			basis = append(basis, linalg.Column(base, j))
		}
	}
	nbase := len(basis)
	for j := 0; j < cols(t); j++ {
		z := linalg.Column(t, j)
		start := cmplxs.Norm(z, 2)
		if start == 0 {
			continue
		}
		// Gram-Schmidt, applied twice
		for pass := 0; pass < 2; pass++ {
			for _, q := range basis {
				cmplxs.AddScaled(z, -cmplxs.Dot(q, z), q)
			}
		}
		nrm := cmplxs.Norm(z, 2)
		if nrm < 1e-10*start {
			continue
		}
		cmplxs.Scale(complex(1/nrm, 0), z)
		basis = append(basis, z)
	}
	out := linalg.NewCDense(n, len(basis)-nbase)
	for j, z := range basis[nbase:] {
		linalg.SetColumn(out, j, z)
	}
	return out
}

func cols(m *mat.CDense) int {
	_, c := m.Dims()
	return c
}

func maxOf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = max(m, x)
	}
	return m
}
