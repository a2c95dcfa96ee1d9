// hartree.go --  This file is part of goPW project.
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

// Package electrostatics computes the Hartree and ion-ion terms.
package electrostatics

import (
	"math"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
)

// g2Zero is the |G|^2 below which a grid point is treated as G=0.
const g2Zero = 1e-12

// CoulombKernel returns 4 pi/|G|^2 for every G, with zeroValue at G=0.
func CoulombKernel(g2 []float64, zeroValue float64) []float64 {
	out := make([]float64, len(g2))
	for i, v := range g2 {
		if v < g2Zero {
			out[i] = zeroValue
			continue
		}
		out[i] = 4 * math.Pi / v
	}
	return out
}

// HartreePotentialG returns V_H(G) = K(G) rho(G).
func HartreePotentialG(rhoG []complex128, kernel []float64) []complex128 {
	out := make([]complex128, len(rhoG))
	for i, r := range rhoG {
		out[i] = r * complex(kernel[i], 0)
	}
	return out
}

// HartreeEnergy returns 0.5/omega sum_G Re(conj(rho(G)) V_H(G)).
func HartreeEnergy(rhoG, vG []complex128, omega float64) float64 {
	var s float64
	for i := range rhoG {
		s += real(rhoG[i])*real(vG[i]) + imag(rhoG[i])*imag(vG[i])
	}
	return 0.5 * s / omega
}

// Engine evaluates the Hartree term on a fixed grid.
type Engine struct {
	Grid   *fft.Grid
	Omega  float64
	G2     []float64
	Kernel []float64
}

// NewEngine precomputes |G|^2 and the Coulomb kernel for grid.
func NewEngine(grid *fft.Grid, cell core.Mat3, g0 float64) (*Engine, error) {
	recip, err := latticeRecip(cell)
	if err != nil {
		return nil, err
	}
	g2 := grid.G2(recip)
	return &Engine{
		Grid:   grid,
		Omega:  core.CellVolume(cell),
		G2:     g2,
		Kernel: CoulombKernel(g2, g0),
	}, nil
}

// Hartree returns V_H(r) and E_H for the real-space density rho.
func (e *Engine) Hartree(rho []float64) ([]float64, float64) {
	rhoG := e.Grid.ToReciprocal(rho, e.Omega)
	vG := HartreePotentialG(rhoG, e.Kernel)
	return e.Grid.ToReal(vG, e.Omega), HartreeEnergy(rhoG, vG, e.Omega)
}
