// implicit.go --  This file is part of goPW project.
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
package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// ParamMap is a fixed-point map rho -> G(rho, theta) with parameters theta.
type ParamMap func(rho, theta []float64) []float64

// maxCond bounds the condition number of I - dG/drho.
const maxCond = 1e14

func (o Options) jacobian() *fd.JacobianSettings {
	step := o.Step
	if step <= 0 {
		step = DefaultStep
	}
	return &fd.JacobianSettings{Formula: fd.Central, Step: step, Concurrent: o.Concurrent}
}

// Jacobians returns dG/drho and dG/dtheta at (rho, theta).
func Jacobians(g ParamMap, rho, theta []float64, opts Options) (jr, jt *mat.Dense) {
	n, p := len(rho), len(theta)
	jr = mat.NewDense(n, n, nil)
	fd.Jacobian(jr, func(y, x []float64) {
		copy(y, g(x, theta))
	}, rho, opts.jacobian())
	jt = mat.NewDense(n, p, nil)
	fd.Jacobian(jt, func(y, x []float64) {
		copy(y, g(rho, x))
	}, theta, opts.jacobian())
	return jr, jt
}

func residualOperator(jr *mat.Dense) (*mat.LU, error) {
	n, _ := jr.Dims()
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	a.Sub(a, jr)
	var lu mat.LU
	lu.Factorize(a)
	if c := lu.Cond(); c > maxCond {
		return nil, core.Invalid("fixed_point", "I - dG/drho is singular (condition %.3g)", c)
	}
	return &lu, nil
}

// ImplicitGradient returns d rho*/d theta = (I - dG/drho)^-1 dG/dtheta at
// the converged fixed point rho* = G(rho*, theta), an n x p matrix.
func ImplicitGradient(g ParamMap, rhoStar, theta []float64, opts Options) (*mat.Dense, error) {
	if len(rhoStar) == 0 || len(theta) == 0 {
		return nil, core.Invalid("fixed_point", "empty density or parameter vector")
	}
	jr, jt := Jacobians(g, rhoStar, theta, opts)
	lu, err := residualOperator(jr)
	if err != nil {
		return nil, err
	}
	var x mat.Dense
	if err := lu.SolveTo(&x, false, jt); err != nil {
		return nil, fmt.Errorf("implicit gradient: %w", err)
	}
	return &x, nil
}

// TotalDerivative returns dE/dtheta for E(rho*(theta), theta) by one adjoint
// solve (I - dG/drho)^T lambda = dE/drho.
func TotalDerivative(e func(rho, theta []float64) float64, g ParamMap, rhoStar, theta []float64, opts Options) ([]float64, error) {
	if len(rhoStar) == 0 || len(theta) == 0 {
		return nil, core.Invalid("fixed_point", "empty density or parameter vector")
	}
	jr, jt := Jacobians(g, rhoStar, theta, opts)
	lu, err := residualOperator(jr)
	if err != nil {
		return nil, err
	}
	s := opts.settings()
	dRho := fd.Gradient(nil, func(x []float64) float64 { return e(x, theta) }, rhoStar, s)
	dTheta := fd.Gradient(nil, func(x []float64) float64 { return e(rhoStar, x) }, theta, s)

	var lambda mat.VecDense
	if err := lu.SolveVecTo(&lambda, true, mat.NewVecDense(len(dRho), dRho)); err != nil {
		return nil, fmt.Errorf("adjoint solve: %w", err)
	}
	var corr mat.VecDense
	corr.MulVec(jt.T(), &lambda)
	for i := range dTheta {
		dTheta[i] += corr.AtVec(i)
	}
	return dTheta, nil
}
