// kpoints.go --  This file is part of goPW project.
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

	"gonum.org/v1/gonum/floats"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// GammaOnly returns the single-point Gamma grid.
func GammaOnly() core.KPointGrid {
	return core.KPointGrid{Points: []core.Vec3{{0, 0, 0}}, Weights: []float64{1}, GammaOnly: true}
}

// MonkhorstPack returns the n1 x n2 x n3 mesh
// k_i = (2 j - n_i + 1) / (2 n_i) + shift_i / n_i with equal weights.
func MonkhorstPack(grid [3]int, shift core.Vec3) (core.KPointGrid, error) {
	for i, n := range grid {
		if n < 1 {
			return core.KPointGrid{}, core.Invalid("kpoints.grid", "axis %d has %d divisions", i, n)
		}
	}
	total := grid[0] * grid[1] * grid[2]
	out := core.KPointGrid{
		Points:  make([]core.Vec3, 0, total),
		Weights: make([]float64, total),
	}
	coord := func(j, n int, s float64) float64 {
		return float64(2*j-n+1)/float64(2*n) + s/float64(n)
	}
	for i := 0; i < grid[0]; i++ {
		for j := 0; j < grid[1]; j++ {
			for k := 0; k < grid[2]; k++ {
				out.Points = append(out.Points, core.Vec3{
					coord(i, grid[0], shift[0]),
					coord(j, grid[1], shift[1]),
					coord(k, grid[2], shift[2]),
				})
			}
		}
	}
	for i := range out.Weights {
		out.Weights[i] = 1 / float64(total)
	}
	if total == 1 && out.Points[0] == (core.Vec3{}) {
		out.GammaOnly = true
	}
	return out, nil
}

// Explicit builds a grid from user points. Nil weights mean uniform; weights
// are normalized to sum to one.
func Explicit(points []core.Vec3, weights []float64) (core.KPointGrid, error) {
	if len(points) == 0 {
		return core.KPointGrid{}, core.Invalid("kpoints.points", "explicit mode requires at least one point")
	}
	w := make([]float64, len(points))
	if weights == nil {
		for i := range w {
			w[i] = 1
		}
	} else {
		if len(weights) != len(points) {
			return core.KPointGrid{}, core.Invalid("kpoints.weights", "%d weights for %d points", len(weights), len(points))
		}
		copy(w, weights)
	}
	sum := floats.Sum(w)
	if sum <= 0 || math.IsNaN(sum) || floats.Min(w) < 0 {
		return core.KPointGrid{}, core.Invalid("kpoints.weights", "weights must be non-negative with positive sum")
	}
	floats.Scale(1/sum, w)
	out := core.KPointGrid{Points: append([]core.Vec3(nil), points...), Weights: w}
	out.GammaOnly = len(points) == 1 && points[0] == (core.Vec3{})
	return out, nil
}
