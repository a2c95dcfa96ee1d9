// lda.go --  This file is part of goPW project.
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
package xc

import "math"

// DensityFloor is the density below which the XC energy and potential
// vanish.
const DensityFloor = 1e-12

// Perdew-Zunger 1981 parametrization of the Ceperley-Alder correlation
// energy, unpolarized.
const (
	pzGamma = -0.1423
	pzBeta1 = 1.0529
	pzBeta2 = 0.3334
	pzA     = 0.0311
	pzB     = -0.048
	pzC     = 0.002
	pzD     = -0.0116
)

var slaterCoef = -0.75 * math.Cbrt(3/math.Pi)

// Slater returns the exchange energy per electron and its potential
// d(rho eps)/d rho for a uniform gas.
func Slater(rho float64) (eps, v float64) {
	if rho < DensityFloor {
		return 0, 0
	}
	eps = slaterCoef * math.Cbrt(rho)
	return eps, 4 * eps / 3
}

// PZ81 returns the correlation energy per electron and its potential.
func PZ81(rho float64) (eps, v float64) {
	if rho < DensityFloor {
		return 0, 0
	}
	rs := math.Cbrt(3 / (4 * math.Pi * rho))
	if rs >= 1 {
		sq := math.Sqrt(rs)
		den := 1 + pzBeta1*sq + pzBeta2*rs
		eps = pzGamma / den
		v = eps * (1 + 7*pzBeta1*sq/6 + 4*pzBeta2*rs/3) / den
		return eps, v
	}
	lnrs := math.Log(rs)
	eps = pzA*lnrs + pzB + pzC*rs*lnrs + pzD*rs
	v = pzA*lnrs + (pzB - pzA/3) + 2*pzC*rs*lnrs/3 + (2*pzD-pzC)*rs/3
	return eps, v
}

// LDA is Slater exchange plus Perdew-Zunger correlation.
type LDA struct{}

func (LDA) Name() string { return "lda" }

func (LDA) NeedsGradient() bool { return false }

func (LDA) Evaluate(rho []float64, _ *Gradient, omega float64) (*Result, error) {
	res := &Result{Potential: make([]float64, len(rho))}
	var e float64
	for i, n := range rho {
		ex, vx := Slater(n)
		ec, vc := PZ81(n)
		if n > 0 {
			e += n * (ex + ec)
		}
		res.Potential[i] = vx + vc
	}
	res.Energy = e * omega / float64(len(rho))
	return res, nil
}
