// radial.go --  This file is part of goPW project.
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

// Package pseudo turns radial pseudopotential tables into reciprocal-space
// form factors, projector tables and structure factors.
package pseudo

import (
	"math"

	"gonum.org/v1/gonum/integrate"
)

// SphericalBessel returns j_l(x) for 0 <= l <= 3.
func SphericalBessel(l int, x float64) float64 {
	if l < 0 || l > 3 {
		panic("pseudo: spherical Bessel order out of range")
	}
	if math.Abs(x) < 0.1 {
		// x^l/(2l+1)!! (1 - x^2/(2(2l+3)) + x^4/(8(2l+3)(2l+5)))
		x2 := x * x
		lead := 1.0
		for k := 1; k <= l; k++ {
			lead *= x / float64(2*k+1)
		}
		a, b := float64(2*l+3), float64(2*l+5)
		return lead * (1 - x2/(2*a) + x2*x2/(8*a*b))
	}
	s, c := math.Sincos(x)
	switch l {
	case 0:
		return s / x
	case 1:
		return s/(x*x) - c/x
	case 2:
		return (3/(x*x)-1)*s/x - 3*c/(x*x)
	default:
		return (15/(x*x*x)-6/x)*s/x - (15/(x*x)-1)*c/x
	}
}

// BesselTransform returns 4 pi int r^2 f(r) j_l(q r) dr where rf holds
// r*f(r) on the mesh r.
func BesselTransform(r, rf []float64, l int, q float64) float64 {
	n := len(r)
	if len(rf) < n {
		n = len(rf)
	}
	if n < 2 {
		return 0
	}
	g := make([]float64, n)
	for i := 0; i < n; i++ {
		g[i] = r[i] * rf[i] * SphericalBessel(l, q*r[i])
	}
	if n < 3 {
		return 4 * math.Pi * integrate.Trapezoidal(r[:n], g)
	}
	return 4 * math.Pi * integrate.Simpsons(r[:n], g)
}

// Table is a function of |q| sampled on a uniform grid.
type Table struct {
	DQ float64
	V  []float64
}

// NewTable samples f on [0, qmax] with spacing dq.
func NewTable(qmax, dq float64, f func(q float64) float64) Table {
	n := int(math.Ceil(qmax/dq)) + 2
	t := Table{DQ: dq, V: make([]float64, n)}
	for i := range t.V {
		t.V[i] = f(float64(i) * dq)
	}
	return t
}

// At interpolates the table linearly. Beyond the last sample the table is
// treated as zero.
func (t Table) At(q float64) float64 {
	x := q / t.DQ
	i := int(x)
	if i >= len(t.V)-1 {
		return 0
	}
	w := x - float64(i)
	return (1-w)*t.V[i] + w*t.V[i+1]
}
