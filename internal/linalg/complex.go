// complex.go --  This file is part of goPW project.
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

// Package linalg holds the dense complex linear algebra used by the
// eigensolver: products, Hermitian eigendecomposition and overlap
// whitening.
package linalg

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"
)

// NewCDense returns a zeroed r x c matrix, or an empty matrix when either
// dimension is zero.
func NewCDense(r, c int) *mat.CDense {
	if r == 0 || c == 0 {
		return &mat.CDense{}
	}
	return mat.NewCDense(r, c, nil)
}

// Mul returns op(a) op(b) where op is selected by ta and tb
// (blas.NoTrans or blas.ConjTrans).
func Mul(ta blas.Transpose, a *mat.CDense, tb blas.Transpose, b *mat.CDense) *mat.CDense {
	if a.IsEmpty() || b.IsEmpty() {
		return &mat.CDense{}
	}
	m, k := a.Dims()
	if ta != blas.NoTrans {
		m, k = k, m
	}
	kb, n := b.Dims()
	if tb != blas.NoTrans {
		kb, n = n, kb
	}
	if k != kb {
		panic(fmt.Sprintf("linalg: dimension mismatch %d != %d", k, kb))
	}
	c := NewCDense(m, n)
	if c.IsEmpty() || k == 0 {
		return c
	}
	cblas128.Gemm(ta, tb, 1, a.RawCMatrix(), b.RawCMatrix(), 0, c.RawCMatrix())
	return c
}

// AddScaled sets dst = dst + alpha*a element-wise.
func AddScaled(dst *mat.CDense, alpha complex128, a *mat.CDense) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)+alpha*a.At(i, j))
		}
	}
}

// Clone returns a copy of a.
func Clone(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	out := NewCDense(r, c)
	out.Copy(a)
	return out
}

// Hermitize replaces a with (a + a^H)/2 in place.
func Hermitize(a *mat.CDense) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		a.Set(i, i, complex(real(a.At(i, i)), 0))
		for j := i + 1; j < n; j++ {
			v := 0.5 * (a.At(i, j) + cmplx.Conj(a.At(j, i)))
			a.Set(i, j, v)
			a.Set(j, i, cmplx.Conj(v))
		}
	}
}

// Column returns a copy of column j of a.
func Column(a *mat.CDense, j int) []complex128 {
	r, _ := a.Dims()
	out := make([]complex128, r)
	for i := range out {
		out[i] = a.At(i, j)
	}
	return out
}

// SetColumn writes v into column j of a.
func SetColumn(a *mat.CDense, j int, v []complex128) {
	for i, x := range v {
		a.Set(i, j, x)
	}
}

// Columns returns the sub-matrix made of columns idx of a, in order.
func Columns(a *mat.CDense, idx []int) *mat.CDense {
	r, _ := a.Dims()
	out := NewCDense(r, len(idx))
	for j, c := range idx {
		for i := 0; i < r; i++ {
			out.Set(i, j, a.At(i, c))
		}
	}
	return out
}

// HStack concatenates a and b column-wise.
func HStack(a, b *mat.CDense) *mat.CDense {
	switch {
	case b.IsEmpty():
		return Clone(a)
	case a.IsEmpty():
		return Clone(b)
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb {
		panic("linalg: row mismatch in HStack")
	}
	out := NewCDense(ra, ca+cb)
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			out.Set(i, j, a.At(i, j))
		}
		for j := 0; j < cb; j++ {
			out.Set(i, ca+j, b.At(i, j))
		}
	}
	return out
}

// ColumnNorms returns the 2-norm of every column of a.
func ColumnNorms(a *mat.CDense) []float64 {
	_, c := a.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = cmplxs.Norm(Column(a, j), 2)
	}
	return out
}

// Identity returns the n x n identity.
func Identity(n int) *mat.CDense {
	out := NewCDense(n, n)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

// MaxAbsDiff returns max |a_ij - b_ij|.
func MaxAbsDiff(a, b *mat.CDense) float64 {
	r, c := a.Dims()
	var m float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m = math.Max(m, cmplx.Abs(a.At(i, j)-b.At(i, j)))
		}
	}
	return m
}
