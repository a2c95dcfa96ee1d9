// functional.go --  This file is part of goPW project.
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

// Package xc evaluates exchange-correlation energies and potentials on a
// real-space density grid.
package xc

import (
	"strings"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
)

// Result holds E_xc in Hartree and v_xc(r) on the grid.
type Result struct {
	Energy    float64
	Potential []float64
}

// Functional is a semilocal exchange-correlation functional.
type Functional interface {
	Name() string
	NeedsGradient() bool
	Evaluate(rho []float64, grad *Gradient, omega float64) (*Result, error)
}

// New returns the functional called name.
func New(name string) (Functional, error) {
	switch strings.ToLower(name) {
	case "", "lda", "pz", "pz81":
		return LDA{}, nil
	case "pbe":
		return PBE{}, nil
	case "hf", "pbe0", "hse", "hse06", "b3lyp":
		return nil, core.Unsupported("exact exchange functional %q", name)
	}
	return nil, core.Invalid("xc.functional", "unknown functional %q", name)
}

// Gradient differentiates periodic fields spectrally.
type Gradient struct {
	Grid *fft.Grid
	// G holds i*G per grid point with Nyquist components removed so that
	// Div is the negative adjoint of Grad.
	G []core.Vec3
}

// NewGradient precomputes the derivative multipliers for grid.
func NewGradient(grid *fft.Grid, recip core.Mat3) *Gradient {
	g := grid.GVectors(recip)
	for idx := range g {
		m := grid.Miller(idx)
		for k := 0; k < 3; k++ {
			if grid.Shape[k]%2 == 0 && 2*abs(m[k]) == grid.Shape[k] {
				// drop the reciprocal-vector component along this axis
				for c := 0; c < 3; c++ {
					g[idx][c] -= float64(m[k]) * recip[k][c]
				}
			}
		}
	}
	return &Gradient{Grid: grid, G: g}
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Grad returns the Cartesian components of grad f.
func (d *Gradient) Grad(f []float64) [3][]float64 {
	c := d.Grid.ToReciprocal(f, 1)
	var out [3][]float64
	buf := make([]complex128, len(c))
	for k := 0; k < 3; k++ {
		for i, z := range c {
			buf[i] = complex(0, d.G[i][k]) * z
		}
		out[k] = d.Grid.ToReal(buf, 1)
	}
	return out
}

// Div returns div v.
func (d *Gradient) Div(v [3][]float64) []float64 {
	acc := make([]complex128, d.Grid.N)
	for k := 0; k < 3; k++ {
		c := d.Grid.ToReciprocal(v[k], 1)
		for i, z := range c {
			acc[i] += complex(0, d.G[i][k]) * z
		}
	}
	return d.Grid.ToReal(acc, 1)
}
