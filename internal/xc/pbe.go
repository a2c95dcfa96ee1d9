// pbe.go --  This file is part of goPW project.
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

import (
	"math"

	"github.com/MirzaevaIV/goPW/internal/core"
)

const (
	pbeKappa = 0.804
	pbeMu    = 0.2195149727645171
)

// s^2 = |grad rho|^2 / (sCoef rho^(8/3))
var sCoef = 4 * math.Pow(3*math.Pi*math.Pi, 2.0/3.0)

// PBEEnhancement returns F_x(s^2) and dF_x/d(s^2).
func PBEEnhancement(s2 float64) (f, df float64) {
	den := 1 + pbeMu*s2/pbeKappa
	return 1 + pbeKappa - pbeKappa/den, pbeMu / (den * den)
}

// PBE applies the PBE exchange enhancement factor to Slater exchange and
// keeps Perdew-Zunger correlation.
type PBE struct{}

func (PBE) Name() string { return "pbe" }

func (PBE) NeedsGradient() bool { return true }

// Evaluate returns E_xc and v_xc = de/drho - div(2 de/dsigma grad rho),
// sigma = |grad rho|^2.
func (PBE) Evaluate(rho []float64, grad *Gradient, omega float64) (*Result, error) {
	if grad == nil {
		return nil, core.Invalid("xc.functional", "pbe needs a gradient operator")
	}
	n := len(rho)
	g := grad.Grad(rho)
	res := &Result{Potential: make([]float64, n)}
	var flux [3][]float64
	for k := range flux {
		flux[k] = make([]float64, n)
	}
	var e float64
	for i, r := range rho {
		ec, vc := PZ81(r)
		if r < DensityFloor {
			res.Potential[i] = vc
			continue
		}
		sigma := g[0][i]*g[0][i] + g[1][i]*g[1][i] + g[2][i]*g[2][i]
		r43 := slaterCoef * math.Pow(r, 4.0/3.0)
		s2 := sigma / (sCoef * math.Pow(r, 8.0/3.0))
		f, df := PBEEnhancement(s2)
		e += r43*f + r*ec
		dedrho := 4*r43*f/(3*r) - 8*r43*df*s2/(3*r)
		dedsigma := r43 * df / (sCoef * math.Pow(r, 8.0/3.0))
		res.Potential[i] = dedrho + vc
		for k := 0; k < 3; k++ {
			flux[k][i] = 2 * dedsigma * g[k][i]
		}
	}
	div := grad.Div(flux)
	for i := range res.Potential {
		res.Potential[i] -= div[i]
	}
	res.Energy = e * omega / float64(n)
	return res, nil
}
