// builder.go --  This file is part of goPW project.
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

// Package density builds real-space electron densities from orbitals and
// assigns band occupations.
package density

import (
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
)

// Orbitals are the occupied states of one k-point: C holds plane-wave
// coefficients (one column per band) and Index maps rows onto the grid.
type Orbitals struct {
	Index []int
	C     *mat.CDense
}

// FromOrbitals returns rho(r) = sum_k w_k sum_n deg f_nk |psi_nk(r)|^2
// with psi(r) = omega^-1/2 sum_G c_G exp(i(G+k).r). k-points are summed in
// parallel and reduced in index order.
func FromOrbitals(grid *fft.Grid, omega float64, orbs []Orbitals, occ [][]float64, w []float64, deg float64) ([]float64, error) {
	if len(orbs) != len(occ) || len(orbs) != len(w) {
		return nil, core.Invalid("density", "%d orbital sets, %d occupation sets, %d weights", len(orbs), len(occ), len(w))
	}
	for k, o := range orbs {
		npw, nb := o.C.Dims()
		if npw != len(o.Index) || nb < len(occ[k]) {
			return nil, core.Invalid("density", "k-point %d: %dx%d orbitals, %d indices, %d occupations", k, npw, nb, len(o.Index), len(occ[k]))
		}
	}
	parts := make([][]float64, len(orbs))
	guard := make(chan struct{}, runtime.GOMAXPROCS(-1))
	var wg sync.WaitGroup
	for k := range orbs {
		wg.Add(1)
		guard <- struct{}{}
		go func(k int) {
			defer wg.Done()
			parts[k] = kDensity(grid, omega, orbs[k], occ[k], w[k]*deg)
			<-guard
		}(k)
	}
	wg.Wait()
	rho := make([]float64, grid.N)
	for _, p := range parts {
		floats.Add(rho, p)
	}
	return rho, nil
}

func kDensity(grid *fft.Grid, omega float64, o Orbitals, occ []float64, scale float64) []float64 {
	rho := make([]float64, grid.N)
	buf := make([]complex128, grid.N)
	for n, f := range occ {
		if f == 0 {
			continue
		}
		clear(buf)
		for i, idx := range o.Index {
			buf[idx] = o.C.At(i, n)
		}
		grid.Backward(buf)
		wf := scale * f / omega
		for r, z := range buf {
			rho[r] += wf * (real(z)*real(z) + imag(z)*imag(z))
		}
	}
	return rho
}

// Integrate returns int rho dr = omega/N sum rho.
func Integrate(rho []float64, omega float64) float64 {
	return omega * floats.Sum(rho) / float64(len(rho))
}

// Uniform returns the constant density holding nelec electrons.
func Uniform(n int, nelec, omega float64) []float64 {
	rho := make([]float64, n)
	for i := range rho {
		rho[i] = nelec / omega
	}
	return rho
}

// Superposition places a normalized Gaussian of charge charges[a] and
// width sigma on every position, clips negative values left by the finite
// grid and rescales to the total charge. G holds the Cartesian grid vectors.
func Superposition(grid *fft.Grid, g []core.Vec3, omega float64, pos []core.Vec3, charges []float64, sigma float64) []float64 {
	c := make([]complex128, grid.N)
	for i, gv := range g {
		g2 := gv[0]*gv[0] + gv[1]*gv[1] + gv[2]*gv[2]
		damp := math.Exp(-0.5 * g2 * sigma * sigma)
		if damp < 1e-14 {
			continue
		}
		var s complex128
		for a, p := range pos {
			s += complex(charges[a], 0) * cmplx.Exp(complex(0, -(gv[0]*p[0]+gv[1]*p[1]+gv[2]*p[2])))
		}
		c[i] = s * complex(damp, 0)
	}
	rho := grid.ToReal(c, omega)
	for i, v := range rho {
		rho[i] = math.Max(v, 0)
	}
	total := floats.Sum(charges)
	if q := Integrate(rho, omega); q > 0 {
		floats.Scale(total/q, rho)
	} else {
		return Uniform(grid.N, total, omega)
	}
	return rho
}
