// eigen.go --  This file is part of goPW project.
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
package linalg

import (
	"cmp"
	"errors"
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// ErrEigen is returned when the symmetric eigendecomposition fails.
var ErrEigen = errors.New("hermitian eigendecomposition failed")

// clusterTol is the relative spacing below which eigenvalues of the real
// embedding are treated as one degenerate cluster.
const clusterTol = 1e-8

// HermitianEigen diagonalizes the Hermitian matrix a. Eigenvalues are
// returned ascending with ties kept in index order; column i of the
// returned matrix is the eigenvector of value i.
//
// The complex problem is solved through its real symmetric embedding
// [[X,-Y],[Y,X]], whose spectrum is that of a with every value doubled.
func HermitianEigen(a *mat.CDense) ([]float64, *mat.CDense, error) {
	n, c := a.Dims()
	if n != c {
		return nil, nil, core.Invalid("matrix", "not square: %dx%d", n, c)
	}
	if n == 0 {
		return nil, &mat.CDense{}, nil
	}
	emb := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var v complex128
			if i == j {
				v = complex(real(a.At(i, i)), 0)
			} else {
				v = 0.5 * (a.At(i, j) + conj(a.At(j, i)))
			}
			emb.SetSym(i, j, real(v))
			emb.SetSym(n+i, n+j, real(v))
			emb.SetSym(i, n+j, -imag(v))
			emb.SetSym(j, n+i, imag(v))
		}
	}
	var eigsym mat.EigenSym
	if ok := eigsym.Factorize(emb, true); !ok {
		return nil, nil, ErrEigen
	}
	vals := eigsym.Values(nil)
	var ev mat.Dense
	eigsym.VectorsTo(&ev)

	candidate := func(k int) []complex128 {
		z := make([]complex128, n)
		for i := 0; i < n; i++ {
			z[i] = complex(ev.At(i, k), ev.At(n+i, k))
		}
		return z
	}

	scale := 1.0
	for _, v := range vals {
		scale = math.Max(scale, math.Abs(v))
	}
	vecs := make([][]complex128, 0, n)
	for start := 0; start < 2*n && len(vecs) < n; {
		end := start + 1
		for end < 2*n && vals[end]-vals[end-1] < clusterTol*scale {
			end++
		}
		want := min((end-start+1)/2, n-len(vecs))
		vecs = append(vecs, pivotedSpan(candidate, start, end, want)...)
		start = end
	}
	if len(vecs) < n {
		return nil, nil, ErrEigen
	}

	values := make([]float64, n)
	for i, z := range vecs {
		values[i] = rayleigh(a, z)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(x, y int) int {
		return cmp.Compare(values[x], values[y])
	})
	outVals := make([]float64, n)
	out := NewCDense(n, n)
	for j, k := range order {
		outVals[j] = values[k]
		SetColumn(out, j, vecs[k])
	}
	return outVals, out, nil
}

// pivotedSpan selects want orthonormal complex directions from the real
// eigenvectors start..end-1 of the embedding, always taking the candidate
// with the largest component outside the span chosen so far.
func pivotedSpan(candidate func(int) []complex128, start, end, want int) [][]complex128 {
	var out [][]complex128
	used := make([]bool, end-start)
	for len(out) < want {
		best, bestNorm := -1, 1e-6
		var bestVec []complex128
		for k := start; k < end; k++ {
			if used[k-start] {
				continue
			}
			z := candidate(k)
			for _, q := range out {
				cmplxs.AddScaled(z, -cmplxs.Dot(q, z), q)
			}
			if nrm := cmplxs.Norm(z, 2); nrm > bestNorm {
				best, bestNorm, bestVec = k, nrm, z
			}
		}
		if best < 0 {
			break
		}
		used[best-start] = true
		cmplxs.Scale(complex(1/bestNorm, 0), bestVec)
		out = append(out, bestVec)
	}
	return out
}

func rayleigh(a *mat.CDense, z []complex128) float64 {
	n := len(z)
	var s complex128
	for i := 0; i < n; i++ {
		var row complex128
		for j := 0; j < n; j++ {
			row += a.At(i, j) * z[j]
		}
		s += conj(z[i]) * row
	}
	return real(s)
}

func conj(z complex128) complex128 { return complex(real(z), -imag(z)) }

// InverseSqrt returns X = U diag(lambda^-1/2) over the eigenpairs of the
// Hermitian overlap s whose eigenvalue exceeds floor*lambda_max, so that
// X^H s X = I. Directions below the floor are discarded. The number of kept
// directions is returned with X.
func InverseSqrt(s *mat.CDense, floor float64) (*mat.CDense, int, error) {
	vals, u, err := HermitianEigen(s)
	if err != nil {
		return nil, 0, err
	}
	n := len(vals)
	if n == 0 || vals[n-1] <= 0 {
		return &mat.CDense{}, 0, nil
	}
	cut := floor * vals[n-1]
	var keep []int
	for i, v := range vals {
		if v > cut {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return &mat.CDense{}, 0, nil
	}
	x := Columns(u, keep)
	for j, k := range keep {
		f := complex(1/math.Sqrt(vals[k]), 0)
		for i := 0; i < n; i++ {
			x.Set(i, j, x.At(i, j)*f)
		}
	}
	return x, len(keep), nil
}

// GeneralizedEigen solves H C = S C diag(eps) for the lowest nbands pairs
// of the projected matrices h and s (s == nil means identity). Both are
// symmetrized first; s is whitened with InverseSqrt.
//
// Overlap eigenvalues at or below floor*lambda_max are dropped rather than
// clipped to an absolute floor, and a *core.SingularSubspaceError is
// returned as soon as fewer than nbands directions survive, not only when
// none do.
func GeneralizedEigen(h, s *mat.CDense, nbands int, floor float64) ([]float64, *mat.CDense, error) {
	hs := Clone(h)
	Hermitize(hs)
	n, _ := hs.Dims()
	var x *mat.CDense
	if s == nil {
		x = Identity(n)
	} else {
		ss := Clone(s)
		Hermitize(ss)
		var kept int
		var err error
		x, kept, err = InverseSqrt(ss, floor)
		if err != nil {
			return nil, nil, err
		}
		if kept < nbands {
			return nil, nil, &core.SingularSubspaceError{Kept: kept, Needed: nbands, Floor: floor}
		}
	}
	hp := Mul(blas.ConjTrans, x, blas.NoTrans, Mul(blas.NoTrans, hs, blas.NoTrans, x))
	Hermitize(hp)
	vals, w, err := HermitianEigen(hp)
	if err != nil {
		return nil, nil, err
	}
	if len(vals) < nbands {
		return nil, nil, &core.SingularSubspaceError{Kept: len(vals), Needed: nbands, Floor: floor}
	}
	idx := make([]int, nbands)
	for i := range idx {
		idx[i] = i
	}
	return vals[:nbands], Mul(blas.NoTrans, x, blas.NoTrans, Columns(w, idx)), nil
}
