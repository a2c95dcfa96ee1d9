// ylm.go --  This file is part of goPW project.
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

	"github.com/MirzaevaIV/goPW/internal/core"
)

// RealYlm returns the real spherical harmonic (l, m), m = 0..2l, in the
// direction of v. The order is
//
//	l=1: x, y, z
//	l=2: xy, yz, 3z^2-r^2, xz, x^2-y^2
//
// A zero vector is treated as the z direction.
func RealYlm(l, m int, v core.Vec3) float64 {
	r := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	x, y, z := 0.0, 0.0, 1.0
	if r > 1e-12 {
		x, y, z = v[0]/r, v[1]/r, v[2]/r
	}
	switch l {
	case 0:
		return 0.5 / math.Sqrt(math.Pi)
	case 1:
		c := math.Sqrt(3 / (4 * math.Pi))
		return c * [3]float64{x, y, z}[m]
	case 2:
		c := math.Sqrt(15 / (4 * math.Pi))
		switch m {
		case 0:
			return c * x * y
		case 1:
			return c * y * z
		case 2:
			return math.Sqrt(5/(16*math.Pi)) * (3*z*z - 1)
		case 3:
			return c * x * z
		default:
			return 0.5 * c * (x*x - y*y)
		}
	}
	panic("hamiltonian: angular momentum out of range")
}
