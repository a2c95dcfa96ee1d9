// dense.go --  This file is part of goPW project.
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
package eigen

import (
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/linalg"
)

// DenseOperator can materialize its matrices.
type DenseOperator interface {
	Operator
	Dense() (h, s *mat.CDense)
}

// SolveDense diagonalizes the full matrices h and s (s == nil means
// identity). It is the fallback for systems small enough to store H.
func SolveDense(h, s *mat.CDense, opts Options) (*Result, error) {
	n, _ := h.Dims()
	if opts.NBands <= 0 || opts.NBands > n {
		return nil, core.Invalid("diagonalization.nbands", "%d bands for a %d x %d matrix", opts.NBands, n, n)
	}
	opts = opts.withDefaults()
	vals, c, err := linalg.GeneralizedEigen(h, s, opts.NBands, opts.OverlapFloor)
	if err != nil {
		return nil, err
	}
	hc := linalg.Mul(blas.NoTrans, h, blas.NoTrans, c)
	sc := c
	if s != nil {
		sc = linalg.Mul(blas.NoTrans, s, blas.NoTrans, c)
	}
	norms := linalg.ColumnNorms(residuals(hc, sc, vals))
	return &Result{
		Values:     vals,
		Vectors:    c,
		Residuals:  norms,
		Iterations: 1,
		Converged:  maxOf(norms) < opts.ResidualTol,
	}, nil
}

// Diagonalize uses SolveDense when the operator is dense-capable and has at
// most denseLimit plane waves, and Davidson otherwise.
func Diagonalize(op Operator, guess *mat.CDense, opts Options, denseLimit int) (*Result, error) {
	if c := cols(guess); c < opts.NBands {
		return nil, core.Invalid("diagonalization.guess", "%d trial vectors for %d bands", c, opts.NBands)
	}
	if d, ok := op.(DenseOperator); ok {
		if n, _ := guess.Dims(); n <= denseLimit {
			h, s := d.Dense()
			return SolveDense(h, s, opts)
		}
	}
	return Solve(op, guess, opts)
}
