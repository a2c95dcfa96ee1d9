// cell.go --  This file is part of goPW project.
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

// Package lattice builds the plane-wave basis: reciprocal cells, G-vector
// sets, FFT grid shapes and k-point meshes.
package lattice

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

func toDense(c core.Mat3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	})
}

func fromDense(d mat.Matrix) core.Mat3 {
	var out core.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = d.At(i, j)
		}
	}
	return out
}

// Inverse returns the inverse of a 3x3 matrix.
func Inverse(c core.Mat3) (core.Mat3, error) {
	var inv mat.Dense
	if err := inv.Inverse(toDense(c)); err != nil {
		return core.Mat3{}, core.Invalid("cell", "singular lattice: %v", err)
	}
	return fromDense(&inv), nil
}

// ReciprocalCell returns B = 2 pi inv(A)^T, rows b_i with a_i . b_j = 2 pi delta_ij.
func ReciprocalCell(cell core.Mat3) (core.Mat3, error) {
	inv, err := Inverse(cell)
	if err != nil {
		return core.Mat3{}, err
	}
	var b core.Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			b[i][j] = 2 * math.Pi * inv[j][i]
		}
	}
	return b, nil
}

// StrainCell applies a Cartesian strain to every lattice vector: a' = (I+eta) a.
func StrainCell(cell, eta core.Mat3) core.Mat3 {
	var out core.Mat3
	for v := 0; v < 3; v++ {
		for i := 0; i < 3; i++ {
			s := cell[v][i]
			for j := 0; j < 3; j++ {
				s += eta[i][j] * cell[v][j]
			}
			out[v][i] = s
		}
	}
	return out
}

// StrainPositions applies the same affine map to Cartesian positions.
func StrainPositions(pos []core.Vec3, eta core.Mat3) []core.Vec3 {
	out := make([]core.Vec3, len(pos))
	for a, p := range pos {
		for i := 0; i < 3; i++ {
			s := p[i]
			for j := 0; j < 3; j++ {
				s += eta[i][j] * p[j]
			}
			out[a][i] = s
		}
	}
	return out
}

// FracToCart maps fractional coordinates to Cartesian: r = f . A.
func FracToCart(cell core.Mat3, f core.Vec3) core.Vec3 {
	var r core.Vec3
	for j := 0; j < 3; j++ {
		r[j] = f[0]*cell[0][j] + f[1]*cell[1][j] + f[2]*cell[2][j]
	}
	return r
}

// CartToFrac maps Cartesian coordinates to fractional: f = r . inv(A).
func CartToFrac(inv core.Mat3, r core.Vec3) core.Vec3 {
	var f core.Vec3
	for j := 0; j < 3; j++ {
		f[j] = r[0]*inv[0][j] + r[1]*inv[1][j] + r[2]*inv[2][j]
	}
	return f
}

// GCart returns the Cartesian vector (n + k) . B for integer indices n and
// fractional k.
func GCart(recip core.Mat3, n [3]int, k core.Vec3) core.Vec3 {
	return FracToCart(recip, core.Vec3{float64(n[0]) + k[0], float64(n[1]) + k[1], float64(n[2]) + k[2]})
}

func norm2(v core.Vec3) float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

func norm(v core.Vec3) float64 {
	return math.Sqrt(norm2(v))
}
