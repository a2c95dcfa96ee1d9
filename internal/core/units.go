// units.go --  This file is part of goPW project.
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
package core

// CODATA 2018 conversion factors. Internal quantities are atomic units
// (Hartree, bohr).
const (
	HartreeToEV    = 27.211386245988
	BohrToAngstrom = 0.529177210903
	RyToHartree    = 0.5
)

func EVToHartree(ev float64) float64 { return ev / HartreeToEV }

func HartreeToElectronVolt(ha float64) float64 { return ha * HartreeToEV }

func AngstromToBohr(a float64) float64 { return a / BohrToAngstrom }

func BohrToAng(b float64) float64 { return b * BohrToAngstrom }

func RyToHa(ry float64) float64 { return ry * RyToHartree }

// Precision selects the working floating-point precision. It is passed
// explicitly through options; only the numerical floors depend on it.
type Precision int

const (
	Float64 Precision = iota
	Float32
)

func (p Precision) String() string {
	if p == Float32 {
		return "float32"
	}
	return "float64"
}

// Eps returns the machine epsilon for p.
func (p Precision) Eps() float64 {
	if p == Float32 {
		return 1.1920929e-07
	}
	return 2.220446049250313e-16
}

// OverlapFloor is the relative eigenvalue floor used when whitening a
// subspace overlap matrix.
func (p Precision) OverlapFloor() float64 {
	if p == Float32 {
		return 1e-6
	}
	return 1e-12
}

// ParsePrecision maps "float64"/"float32" to a Precision.
func ParsePrecision(s string) (Precision, error) {
	switch s {
	case "", "float64":
		return Float64, nil
	case "float32":
		return Float32, nil
	}
	return Float64, Invalid("runtime.precision", "unknown precision %q", s)
}
