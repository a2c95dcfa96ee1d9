// types.go --  This file is part of goPW project.
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

// Package core holds the value objects shared by every stage of a
// plane-wave calculation, the error taxonomy and unit conversions.
// All lengths are bohr and all energies Hartree unless a name says otherwise.
package core

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a Cartesian or fractional 3-vector.
type Vec3 = [3]float64

// Mat3 is a 3x3 matrix stored by rows. For a cell the rows are the lattice
// vectors a1, a2, a3.
type Mat3 = [3][3]float64

// System is an atomic structure in atomic units.
type System struct {
	Cell          Mat3
	Positions     []Vec3
	Numbers       []int
	PBC           [3]bool
	Charge        float64
	SpinPolarized bool
}

// Volume returns the signed-free cell volume |a1 . (a2 x a3)|.
func (s System) Volume() float64 {
	return CellVolume(s.Cell)
}

// CellVolume returns |det(cell)|.
func CellVolume(c Mat3) float64 {
	a, b, d := c[0], c[1], c[2]
	det := a[0]*(b[1]*d[2]-b[2]*d[1]) - a[1]*(b[0]*d[2]-b[2]*d[0]) + a[2]*(b[0]*d[1]-b[1]*d[0])
	return math.Abs(det)
}

// Validate checks the structural invariants of s.
func (s System) Validate() error {
	if len(s.Positions) != len(s.Numbers) {
		return Invalid("system", "%d positions for %d atomic numbers", len(s.Positions), len(s.Numbers))
	}
	if v := s.Volume(); v < 1e-10 || math.IsNaN(v) {
		return Invalid("system.cell", "lattice vectors are linearly dependent (volume %g)", v)
	}
	for i, z := range s.Numbers {
		if z <= 0 {
			return Invalid("system.numbers", "atom %d has atomic number %d", i, z)
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s System) Clone() System {
	out := s
	out.Positions = append([]Vec3(nil), s.Positions...)
	out.Numbers = append([]int(nil), s.Numbers...)
	return out
}

// BasisSet is the plane-wave basis of a calculation. Cutoffs are Hartree.
// GVectors are integer Miller indices of the wavefunction sphere at Gamma.
type BasisSet struct {
	EcutWfc  float64
	EcutRho  float64
	FFTShape [3]int
	GVectors [][3]int
}

// Validate checks ecutrho >= 4 ecutwfc and that the grid holds every
// density-sphere index without aliasing.
func (b BasisSet) Validate() error {
	if b.EcutWfc <= 0 {
		return Invalid("basis.ecutwfc", "must be positive, got %g", b.EcutWfc)
	}
	if b.EcutRho < 4*b.EcutWfc {
		return Invalid("basis.ecutrho", "%g is below 4 x ecutwfc (%g)", b.EcutRho, 4*b.EcutWfc)
	}
	var maxIdx [3]int
	for _, g := range b.GVectors {
		for k := 0; k < 3; k++ {
			if a := abs(g[k]); a > maxIdx[k] {
				maxIdx[k] = a
			}
		}
	}
	// products of two wavefunction components reach twice the index
	for k := 0; k < 3; k++ {
		if b.FFTShape[k] < 4*maxIdx[k]+1 {
			return Invalid("basis.fft_shape", "axis %d size %d aliases index %d", k, b.FFTShape[k], 2*maxIdx[k])
		}
	}
	return nil
}

// NGrid returns the number of real-space grid points.
func (b BasisSet) NGrid() int {
	return b.FFTShape[0] * b.FFTShape[1] * b.FFTShape[2]
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// KPointGrid holds fractional k-points and their weights.
type KPointGrid struct {
	Points    []Vec3
	Weights   []float64
	GammaOnly bool
}

// PPType tags a pseudopotential formalism.
type PPType string

const (
	NormConserving PPType = "NC"
	Ultrasoft      PPType = "USPP"
	PAW            PPType = "PAW"
)

// RadialMesh is a logarithmic or linear radial grid with integration weights.
type RadialMesh struct {
	R   []float64
	RAB []float64
}

// Nonlocal is the separable projector payload of a pseudopotential.
// Beta[i] is r*beta_i(r) on the radial mesh (UPF convention). D and Q are
// stored as read from file (Rydberg for D).
type Nonlocal struct {
	Beta            [][]float64
	AngularMomentum []int
	D               *mat.Dense
	Q               *mat.Dense
}

// NumProjectors returns the number of radial projectors.
func (n Nonlocal) NumProjectors() int { return len(n.Beta) }

// PseudopotentialData is one element's pseudopotential.
type PseudopotentialData struct {
	Symbol         string
	Type           PPType
	ZValence       float64
	Mesh           RadialMesh
	LocalPotential []float64
	Nonlocal       Nonlocal
}

// Validate checks the projector payload shapes.
func (p PseudopotentialData) Validate() error {
	np := p.Nonlocal.NumProjectors()
	if (p.Type == Ultrasoft || p.Type == PAW) && np == 0 {
		return Invalid("pseudopotential."+p.Symbol, "%s requires at least one beta projector", p.Type)
	}
	if len(p.Nonlocal.AngularMomentum) != np {
		return Invalid("pseudopotential."+p.Symbol, "%d angular momenta for %d projectors", len(p.Nonlocal.AngularMomentum), np)
	}
	check := func(name string, m *mat.Dense, required bool) error {
		if m == nil {
			if required && np > 0 {
				return Invalid("pseudopotential."+p.Symbol, "%s matrix missing for %d projectors", name, np)
			}
			return nil
		}
		r, c := m.Dims()
		if r != np || c != np {
			return Invalid("pseudopotential."+p.Symbol, "%s is %dx%d, want %dx%d", name, r, c, np, np)
		}
		return nil
	}
	if err := check("D", p.Nonlocal.D, true); err != nil {
		return err
	}
	if err := check("Q", p.Nonlocal.Q, p.Type != NormConserving); err != nil {
		return err
	}
	for i, b := range p.Nonlocal.Beta {
		if len(p.Mesh.R) > 0 && len(b) > len(p.Mesh.R) {
			return Invalid("pseudopotential."+p.Symbol, "projector %d longer than radial mesh", i)
		}
	}
	return nil
}

// EnergyBreakdown collects named energy terms in Hartree.
type EnergyBreakdown struct {
	Kinetic      float64
	Local        float64
	Nonlocal     float64
	Hartree      float64
	XC           float64
	IonIon       float64
	Augmentation float64
	Entropy      float64
}

// Total is the sum of all non-entropy terms.
func (e EnergyBreakdown) Total() float64 {
	return e.Kinetic + e.Local + e.Nonlocal + e.Hartree + e.XC + e.IonIon + e.Augmentation
}

// FreeEnergy is Total minus the entropy term.
func (e EnergyBreakdown) FreeEnergy() float64 {
	return e.Total() - e.Entropy
}

// MixerEntry is one (input density, preconditioned residual) pair.
type MixerEntry struct {
	RhoIn    []float64
	Residual []float64
}

// SCFState is the orchestrator-owned state of one SCF run. Slices are
// k-major: Eigenvalues[k][n].
type SCFState struct {
	RunID        string
	Rho          []float64
	VEff         []float64
	Eigenvalues  [][]float64
	Occupations  [][]float64
	FermiLevel   float64
	Converged    bool
	Iteration    int
	ResidualNorm float64
	Energy       float64
	MixerHistory []MixerEntry
}

// Clone returns a deep copy, used to freeze the state when it leaves the
// orchestrator.
func (s *SCFState) Clone() *SCFState {
	if s == nil {
		return nil
	}
	out := *s
	out.Rho = append([]float64(nil), s.Rho...)
	out.VEff = append([]float64(nil), s.VEff...)
	out.Eigenvalues = clone2(s.Eigenvalues)
	out.Occupations = clone2(s.Occupations)
	out.MixerHistory = make([]MixerEntry, len(s.MixerHistory))
	for i, e := range s.MixerHistory {
		out.MixerHistory[i] = MixerEntry{
			RhoIn:    append([]float64(nil), e.RhoIn...),
			Residual: append([]float64(nil), e.Residual...),
		}
	}
	return &out
}

func clone2(a [][]float64) [][]float64 {
	if a == nil {
		return nil
	}
	out := make([][]float64, len(a))
	for i := range a {
		out[i] = append([]float64(nil), a[i]...)
	}
	return out
}

// SCFResult is the outcome of an SCF run.
type SCFResult struct {
	State    *SCFState
	Energies EnergyBreakdown
}
