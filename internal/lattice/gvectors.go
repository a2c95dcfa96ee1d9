// gvectors.go --  This file is part of goPW project.
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
package lattice

import (
	"math"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// GenerateGVectors returns the Miller indices n with 0.5|n+k|^2 <= ecut,
// |n+k| measured with the reciprocal cell of cell. Indices are enumerated
// lexicographically from (-N1,-N2,-N3), so the result is a pure function of
// the inputs.
func GenerateGVectors(cell core.Mat3, ecut float64, k core.Vec3) ([][3]int, error) {
	if ecut <= 0 || math.IsNaN(ecut) {
		return nil, core.Invalid("ecut", "must be positive, got %g", ecut)
	}
	recip, err := ReciprocalCell(cell)
	if err != nil {
		return nil, err
	}
	gmax := math.Sqrt(2 * ecut)
	var bound [3]int
	for i := 0; i < 3; i++ {
		bound[i] = int(math.Ceil(gmax*norm(cell[i])/(2*math.Pi)+math.Abs(k[i]))) + 1
	}
	var out [][3]int
	for n1 := -bound[0]; n1 <= bound[0]; n1++ {
		for n2 := -bound[1]; n2 <= bound[1]; n2++ {
			for n3 := -bound[2]; n3 <= bound[2]; n3++ {
				n := [3]int{n1, n2, n3}
				if 0.5*norm2(GCart(recip, n, k)) <= ecut {
					out = append(out, n)
				}
			}
		}
	}
	return out, nil
}

// MaxIndices returns the largest |n_i| per axis.
func MaxIndices(gv [][3]int) [3]int {
	var m [3]int
	for _, g := range gv {
		for i := 0; i < 3; i++ {
			a := g[i]
			if a < 0 {
				a = -a
			}
			if a > m[i] {
				m[i] = a
			}
		}
	}
	return m
}

// GoodFFTSize returns the smallest 2,3,5-smooth integer >= n.
func GoodFFTSize(n int) int {
	if n < 1 {
		return 1
	}
	for m := n; ; m++ {
		r := m
		for _, p := range []int{2, 3, 5} {
			for r%p == 0 {
				r /= p
			}
		}
		if r == 1 {
			return m
		}
	}
}

// NewBasisSet builds the basis for cell. Cutoffs are Hartree; ecutrho <= 0
// selects the default 8 x ecutwfc. The FFT grid is sized from the density
// sphere: 2 x max index + 1 per axis, rounded up to a smooth size.
func NewBasisSet(cell core.Mat3, ecutwfc, ecutrho float64) (core.BasisSet, error) {
	if ecutrho <= 0 {
		ecutrho = 8 * ecutwfc
	}
	b := core.BasisSet{EcutWfc: ecutwfc, EcutRho: ecutrho}
	if ecutwfc <= 0 {
		return b, core.Invalid("basis.ecutwfc", "must be positive, got %g", ecutwfc)
	}
	if ecutrho < 4*ecutwfc {
		return b, core.Invalid("basis.ecutrho", "%g is below 4 x ecutwfc (%g)", ecutrho, 4*ecutwfc)
	}
	gw, err := GenerateGVectors(cell, ecutwfc, core.Vec3{})
	if err != nil {
		return b, err
	}
	gr, err := GenerateGVectors(cell, ecutrho, core.Vec3{})
	if err != nil {
		return b, err
	}
	mr := MaxIndices(gr)
	for i := 0; i < 3; i++ {
		b.FFTShape[i] = GoodFFTSize(2*mr[i] + 1)
	}
	b.GVectors = gw
	return b, b.Validate()
}
