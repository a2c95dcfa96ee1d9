// ionion.go --  This file is part of goPW project.
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
package electrostatics

import (
	"math"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

// DefaultBackgroundPrefactor scales the neutralizing background c sum(Z)/V.
const DefaultBackgroundPrefactor = 0.02

// minDistance guards coincident atoms.
const minDistance = 1e-12

func latticeRecip(cell core.Mat3) (core.Mat3, error) {
	return lattice.ReciprocalCell(cell)
}

// IonIon evaluates the minimum-image ion-ion energy of point charges.
type IonIon struct {
	Cell      core.Mat3
	PBC       [3]bool
	Charges   []float64
	Prefactor float64

	inv core.Mat3
}

// NewIonIon validates the cell and returns an evaluator. charges are the
// ionic (valence) charges co-indexed with the positions passed later.
func NewIonIon(cell core.Mat3, pbc [3]bool, charges []float64, prefactor float64) (*IonIon, error) {
	inv, err := lattice.Inverse(cell)
	if err != nil {
		return nil, err
	}
	return &IonIon{Cell: cell, PBC: pbc, Charges: charges, Prefactor: prefactor, inv: inv}, nil
}

// MinimumImage wraps the displacement d into the nearest lattice image
// along periodic axes.
func (ii *IonIon) MinimumImage(d core.Vec3) core.Vec3 {
	f := lattice.CartToFrac(ii.inv, d)
	for k := 0; k < 3; k++ {
		if ii.PBC[k] {
			f[k] -= math.Round(f[k])
		}
	}
	return lattice.FracToCart(ii.Cell, f)
}

func (ii *IonIon) pairs(pos []core.Vec3, visit func(i, j int, d core.Vec3, r float64)) {
	for i := 0; i < len(pos); i++ {
		for j := i + 1; j < len(pos); j++ {
			d := ii.MinimumImage(core.Vec3{pos[j][0] - pos[i][0], pos[j][1] - pos[i][1], pos[j][2] - pos[i][2]})
			r := math.Max(math.Sqrt(d[0]*d[0]+d[1]*d[1]+d[2]*d[2]), minDistance)
			visit(i, j, d, r)
		}
	}
}

// Background returns the neutralizing background term c sum(Z)/V.
func (ii *IonIon) Background() float64 {
	var zsum float64
	for _, z := range ii.Charges {
		zsum += z
	}
	return ii.Prefactor * zsum / core.CellVolume(ii.Cell)
}

// Energy returns sum_{i<j} Z_i Z_j/|d_ij| plus the background term.
func (ii *IonIon) Energy(pos []core.Vec3) (float64, error) {
	if len(pos) != len(ii.Charges) {
		return 0, core.Invalid("positions", "%d positions for %d charges", len(pos), len(ii.Charges))
	}
	var e float64
	ii.pairs(pos, func(i, j int, _ core.Vec3, r float64) {
		e += ii.Charges[i] * ii.Charges[j] / r
	})
	return e + ii.Background(), nil
}

// PositionGradient returns dE/dr_i.
func (ii *IonIon) PositionGradient(pos []core.Vec3) []core.Vec3 {
	grad := make([]core.Vec3, len(pos))
	ii.pairs(pos, func(i, j int, d core.Vec3, r float64) {
		s := ii.Charges[i] * ii.Charges[j] / (r * r * r)
		for k := 0; k < 3; k++ {
			grad[i][k] += s * d[k]
			grad[j][k] -= s * d[k]
		}
	})
	return grad
}

// StrainGradient returns dE/d(eta) at eta=0 for a homogeneous strain
// applied to the cell and, affinely, to the positions.
func (ii *IonIon) StrainGradient(pos []core.Vec3) core.Mat3 {
	var g core.Mat3
	ii.pairs(pos, func(i, j int, d core.Vec3, r float64) {
		s := ii.Charges[i] * ii.Charges[j] / (r * r * r)
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				g[a][b] -= s * d[a] * d[b]
			}
		}
	})
	bg := ii.Background()
	for a := 0; a < 3; a++ {
		g[a][a] -= bg
	}
	return g
}
