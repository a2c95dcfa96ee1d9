// kohnsham.go --  This file is part of goPW project.
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
package scf

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand"
	"runtime"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/density"
	"github.com/MirzaevaIV/goPW/internal/eigen"
	"github.com/MirzaevaIV/goPW/internal/electrostatics"
	"github.com/MirzaevaIV/goPW/internal/fft"
	"github.com/MirzaevaIV/goPW/internal/hamiltonian"
	"github.com/MirzaevaIV/goPW/internal/lattice"
	"github.com/MirzaevaIV/goPW/internal/pseudo"
	"github.com/MirzaevaIV/goPW/internal/xc"
)

// Defaults for Config.
const (
	DefaultDenseLimit        = 300
	DefaultAugmentationWidth = 0.5
	DefaultInitialWidth      = 1.0
)

// Config describes one Kohn-Sham problem in atomic units.
type Config struct {
	Cell        core.Mat3
	PBC         [3]bool
	Positions   []core.Vec3
	Species     []*pseudo.Species
	AtomSpecies []int
	Charge      float64

	Basis      core.BasisSet
	KPoints    core.KPointGrid
	Functional xc.Functional
	NBands     int
	Occupier   density.Occupier
	Eigen      eigen.Options
	DenseLimit int

	CoulombG0           float64
	BackgroundPrefactor float64
	// AugmentationWidth is the Gaussian width (bohr) of the augmentation
	// charge placed on ultrasoft and PAW atoms.
	AugmentationWidth float64

	Logger *log.Logger
}

// KohnSham is the fixed-point map rho_in -> rho_out of a Kohn-Sham system:
// potential assembly, per-k diagonalization, occupations and density.
type KohnSham struct {
	cfg     Config
	grid    *fft.Grid
	omega   float64
	gvec    []core.Vec3
	g2      []float64
	hartree *electrostatics.Engine
	grad    *xc.Gradient
	vloc    []float64
	ionion  float64
	nelec   float64
	deg     float64

	kpts     []*hamiltonian.KPoint
	proj     []*hamiltonian.Projectors
	dBare    []*mat.CDense
	overlap  []*mat.CDense
	shapes   [][]float64
	qSpecies []*mat.Dense
	logger   *log.Logger

	mu      sync.Mutex
	guesses []*mat.CDense
}

// DefaultBands returns a band count with empty states above nelec/2.
func DefaultBands(nelec float64) int {
	occ := int(math.Ceil(nelec / 2))
	return max(occ+4, int(math.Ceil(1.2*float64(occ))))
}

// NewKohnSham precomputes the grids, ionic potential, k-point bases and
// projectors of cfg.
func NewKohnSham(cfg Config) (*KohnSham, error) {
	if len(cfg.Positions) != len(cfg.AtomSpecies) {
		return nil, core.Invalid("system", "%d positions for %d species labels", len(cfg.Positions), len(cfg.AtomSpecies))
	}
	for a, s := range cfg.AtomSpecies {
		if s < 0 || s >= len(cfg.Species) || cfg.Species[s] == nil {
			return nil, core.Invalid("system", "atom %d has no pseudopotential", a)
		}
	}
	if cfg.Functional == nil {
		return nil, core.Invalid("xc.functional", "no functional")
	}
	if err := cfg.Basis.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.KPoints.Points) == 0 || len(cfg.KPoints.Points) != len(cfg.KPoints.Weights) {
		return nil, core.Invalid("kpoints", "%d points with %d weights", len(cfg.KPoints.Points), len(cfg.KPoints.Weights))
	}
	if cfg.DenseLimit == 0 {
		cfg.DenseLimit = DefaultDenseLimit
	}
	if cfg.AugmentationWidth <= 0 {
		cfg.AugmentationWidth = DefaultAugmentationWidth
	}
	if cfg.Occupier.Degeneracy <= 0 {
		cfg.Occupier.Degeneracy = 2
	}

	grid, err := fft.FromBasis(cfg.Basis)
	if err != nil {
		return nil, err
	}
	recip, err := lattice.ReciprocalCell(cfg.Cell)
	if err != nil {
		return nil, err
	}
	hartree, err := electrostatics.NewEngine(grid, cfg.Cell, cfg.CoulombG0)
	if err != nil {
		return nil, err
	}
	ks := &KohnSham{
		cfg:     cfg,
		grid:    grid,
		omega:   core.CellVolume(cfg.Cell),
		gvec:    grid.GVectors(recip),
		g2:      hartree.G2,
		hartree: hartree,
		deg:     cfg.Occupier.Degeneracy,
		logger:  core.OrDiscard(cfg.Logger),
	}
	if cfg.Functional.NeedsGradient() {
		ks.grad = xc.NewGradient(grid, recip)
	}

	charges := make([]float64, len(cfg.Positions))
	for a, s := range cfg.AtomSpecies {
		charges[a] = cfg.Species[s].Data.ZValence
	}
	ks.nelec = floats.Sum(charges) - cfg.Charge
	if ks.nelec <= 0 {
		return nil, core.Invalid("system.charge", "%g leaves %g electrons", cfg.Charge, ks.nelec)
	}
	if cfg.NBands == 0 {
		ks.cfg.NBands = DefaultBands(ks.nelec)
	}
	ii, err := electrostatics.NewIonIon(cfg.Cell, cfg.PBC, charges, cfg.BackgroundPrefactor)
	if err != nil {
		return nil, err
	}
	if ks.ionion, err = ii.Energy(cfg.Positions); err != nil {
		return nil, err
	}
	ks.vloc = ks.ionicPotential()

	if err := ks.buildKPoints(); err != nil {
		return nil, err
	}
	ks.buildAugmentation()
	ks.logger.Debug("kohn-sham setup", "grid", grid.Shape, "kpoints", len(ks.kpts), "nbands", ks.cfg.NBands, "nelec", ks.nelec)
	return ks, nil
}

// ionicPotential returns sum_s v_s(G) S_s(G) on the real-space grid, with
// components beyond the density cutoff removed.
func (ks *KohnSham) ionicPotential() []float64 {
	c := make([]complex128, ks.grid.N)
	for s, sp := range ks.cfg.Species {
		var pos []core.Vec3
		for a, as := range ks.cfg.AtomSpecies {
			if as == s {
				pos = append(pos, ks.cfg.Positions[a])
			}
		}
		if len(pos) == 0 {
			continue
		}
		sf := pseudo.StructureFactor(ks.gvec, pos)
		for i, g2 := range ks.g2 {
			if 0.5*g2 > ks.cfg.Basis.EcutRho {
				continue
			}
			c[i] += complex(sp.LocalForm(g2), 0) * sf[i]
		}
	}
	return ks.grid.ToReal(c, ks.omega)
}

func (ks *KohnSham) buildKPoints() error {
	atoms := hamiltonian.Atoms{Positions: ks.cfg.Positions, Species: ks.cfg.AtomSpecies}
	dm := make([]*mat.Dense, len(ks.cfg.Species))
	ks.qSpecies = make([]*mat.Dense, len(ks.cfg.Species))
	augmented := false
	for s, sp := range ks.cfg.Species {
		dm[s] = sp.D
		if sp.Augmented() {
			ks.qSpecies[s] = sp.Q
			augmented = true
		}
	}
	for i, k := range ks.cfg.KPoints.Points {
		kp, err := hamiltonian.NewKPoint(ks.cfg.Cell, ks.grid, ks.cfg.Basis.EcutWfc, k, ks.cfg.KPoints.Weights[i])
		if err != nil {
			return err
		}
		if kp.Size() < ks.cfg.NBands {
			return core.Invalid("diagonalization.nbands", "%d bands exceed %d plane waves at k-point %d", ks.cfg.NBands, kp.Size(), i)
		}
		ks.kpts = append(ks.kpts, kp)
		proj := hamiltonian.NewProjectors(kp, ks.omega, ks.cfg.Species, atoms)
		ks.proj = append(ks.proj, proj)
		var d, q *mat.CDense
		if proj != nil {
			d = proj.Coupling(hamiltonian.SpeciesMatrix(dm))
			if augmented {
				q = proj.Coupling(hamiltonian.SpeciesMatrix(ks.qSpecies))
			}
		}
		ks.dBare = append(ks.dBare, d)
		ks.overlap = append(ks.overlap, q)
		ks.guesses = append(ks.guesses, initialGuess(kp, ks.cfg.NBands, int64(i)))
	}
	return nil
}

// buildAugmentation places a unit Gaussian on every augmented atom.
func (ks *KohnSham) buildAugmentation() {
	ks.shapes = make([][]float64, len(ks.cfg.Positions))
	sigma := ks.cfg.AugmentationWidth
	for a, s := range ks.cfg.AtomSpecies {
		if ks.qSpecies[s] == nil {
			continue
		}
		tau := ks.cfg.Positions[a]
		c := make([]complex128, ks.grid.N)
		for i, g := range ks.gvec {
			damp := math.Exp(-0.5 * ks.g2[i] * sigma * sigma)
			if damp < 1e-14 {
				continue
			}
			c[i] = complex(damp, 0) * cmplx.Exp(complex(0, -(g[0]*tau[0]+g[1]*tau[1]+g[2]*tau[2])))
		}
		ks.shapes[a] = ks.grid.ToReal(c, ks.omega)
	}
}

// initialGuess takes the nb lowest-kinetic plane waves with a small
// deterministic admixture of the others.
func initialGuess(kp *hamiltonian.KPoint, nb int, seed int64) *mat.CDense {
	npw := kp.Size()
	order := make([]int, npw)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case kp.Kinetic[a] < kp.Kinetic[b]:
			return -1
		case kp.Kinetic[a] > kp.Kinetic[b]:
			return 1
		}
		return 0
	})
	rng := rand.New(rand.NewSource(seed + 1))
	c := mat.NewCDense(npw, nb, nil)
	for j := 0; j < nb; j++ {
		for i := 0; i < npw; i++ {
			c.Set(i, j, complex(1e-2*rng.NormFloat64()/(1+kp.Kinetic[i]), 0))
		}
		c.Set(order[j], j, 1)
	}
	return c
}

// NumElectrons returns the number of valence electrons.
func (ks *KohnSham) NumElectrons() float64 { return ks.nelec }

// Grid returns the density grid.
func (ks *KohnSham) Grid() *fft.Grid { return ks.grid }

// G2 returns |G|^2 on the density grid.
func (ks *KohnSham) G2() []float64 { return ks.g2 }

// Volume returns the cell volume.
func (ks *KohnSham) Volume() float64 { return ks.omega }

// InitialDensity superposes normalized Gaussians holding the valence charge
// of every atom, scaled to the electron count.
func (ks *KohnSham) InitialDensity() []float64 {
	charges := make([]float64, len(ks.cfg.Positions))
	var z float64
	for a, s := range ks.cfg.AtomSpecies {
		charges[a] = ks.cfg.Species[s].Data.ZValence
		z += charges[a]
	}
	floats.Scale(ks.nelec/z, charges)
	return density.Superposition(ks.grid, ks.gvec, ks.omega, ks.cfg.Positions, charges, DefaultInitialWidth)
}

// potential returns V_eff = V_ion + V_H + V_xc for rho.
func (ks *KohnSham) potential(rho []float64) ([]float64, error) {
	vh, _ := ks.hartree.Hartree(rho)
	res, err := ks.cfg.Functional.Evaluate(rho, ks.grad, ks.omega)
	if err != nil {
		return nil, err
	}
	v := make([]float64, ks.grid.N)
	for i := range v {
		v[i] = ks.vloc[i] + vh[i] + res.Potential[i]
	}
	return v, nil
}

// integrate returns int f g dr on the grid.
func (ks *KohnSham) integrate(f, g []float64) float64 {
	return floats.Dot(f, g) * ks.omega / float64(ks.grid.N)
}

// screenedCoupling returns D_ij + Q_ij int V_eff g_a for every k-point.
func (ks *KohnSham) screenedCoupling(veff []float64) []*mat.CDense {
	screen := make([]float64, len(ks.shapes))
	screened := false
	for a, sh := range ks.shapes {
		if sh != nil {
			screen[a] = ks.integrate(veff, sh)
			screened = true
		}
	}
	if !screened {
		return ks.dBare
	}
	out := make([]*mat.CDense, len(ks.kpts))
	for k, p := range ks.proj {
		out[k] = p.Coupling(func(a, b hamiltonian.Channel) float64 {
			var d float64
			if m := ks.cfg.Species[a.Species].D; m != nil {
				d = m.At(a.Radial, b.Radial)
			}
			if q := ks.qSpecies[a.Species]; q != nil {
				d += q.At(a.Radial, b.Radial) * screen[a.Atom]
			}
			return d
		})
	}
	return out
}

// Operator returns the Hamiltonian of k-point k in the potential veff with
// unscreened projector coupling.
func (ks *KohnSham) Operator(k int, veff []float64) *hamiltonian.Operator {
	return ks.operator(k, veff, ks.dBare[k])
}

func (ks *KohnSham) operator(k int, veff []float64, d *mat.CDense) *hamiltonian.Operator {
	kp := ks.kpts[k]
	op := &hamiltonian.Operator{
		Kinetic: kp.Kinetic,
		Local:   &hamiltonian.LocalTerm{Grid: ks.grid, Index: kp.GridIndex, V: veff},
	}
	if p := ks.proj[k]; p != nil {
		if d != nil {
			op.Nonlocal = &hamiltonian.Projector{Beta: p.Beta, Coupling: d}
		}
		if q := ks.overlap[k]; q != nil {
			op.Overlap = &hamiltonian.Projector{Beta: p.Beta, Coupling: q}
		}
	}
	return op
}

// Step implements FixedPoint.
func (ks *KohnSham) Step(ctx context.Context, rhoIn []float64) (*Output, error) {
	if len(rhoIn) != ks.grid.N {
		return nil, core.Invalid("scf.rho", "%d density points for a %d point grid", len(rhoIn), ks.grid.N)
	}
	veff, err := ks.potential(rhoIn)
	if err != nil {
		return nil, err
	}
	coupling := ks.screenedCoupling(veff)

	nk := len(ks.kpts)
	results := make([]*eigen.Result, nk)
	errs := make([]error, nk)
	opts := ks.cfg.Eigen
	opts.NBands = ks.cfg.NBands
	opts.Logger = ks.logger

	ks.mu.Lock()
	guesses := append([]*mat.CDense(nil), ks.guesses...)
	ks.mu.Unlock()

	guard := make(chan struct{}, runtime.GOMAXPROCS(-1))
	var wg sync.WaitGroup
	for k := 0; k < nk; k++ {
		wg.Add(1)
		guard <- struct{}{}
		go func(k int) {
			defer wg.Done()
			results[k], errs[k] = eigen.Diagonalize(ks.operator(k, veff, coupling[k]), guesses[k], opts, ks.cfg.DenseLimit)
			<-guard
		}(k)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eps := make([][]float64, nk)
	weights := make([]float64, nk)
	orbs := make([]density.Orbitals, nk)
	for k, res := range results {
		if errs[k] != nil {
			return nil, errs[k]
		}
		if !res.Converged {
			ks.logger.Warn("eigensolver not converged", "k", k, "iterations", res.Iterations, "residual", maxResidual(res.Residuals))
		}
		eps[k] = res.Values
		weights[k] = ks.kpts[k].Weight
		orbs[k] = density.Orbitals{Index: ks.kpts[k].GridIndex, C: res.Vectors}
	}
	ks.mu.Lock()
	for k, res := range results {
		ks.guesses[k] = res.Vectors
	}
	ks.mu.Unlock()

	occ, err := ks.cfg.Occupier.Occupy(eps, weights, ks.nelec)
	if err != nil {
		return nil, err
	}
	rhoPS, err := density.FromOrbitals(ks.grid, ks.omega, orbs, occ.Fractions, weights, ks.deg)
	if err != nil {
		return nil, err
	}
	rhoAug, enl := ks.projectorTerms(orbs, occ.Fractions, weights)
	rhoOut := make([]float64, ks.grid.N)
	floats.AddTo(rhoOut, rhoPS, rhoAug)

	e, err := ks.energies(orbs, occ, weights, rhoPS, rhoAug, rhoOut, enl)
	if err != nil {
		return nil, err
	}
	return &Output{
		Rho:         rhoOut,
		VEff:        veff,
		Eigenvalues: eps,
		Occupations: occ.Fractions,
		FermiLevel:  occ.FermiLevel,
		Energies:    e,
	}, nil
}

// projectorTerms returns the augmentation density and the nonlocal energy
// sum_nk w deg f <psi|beta D beta^H|psi> with unscreened D.
func (ks *KohnSham) projectorTerms(orbs []density.Orbitals, f [][]float64, w []float64) ([]float64, float64) {
	rhoAug := make([]float64, ks.grid.N)
	charge := make([]float64, len(ks.cfg.Positions))
	var enl float64
	for k, p := range ks.proj {
		if p == nil {
			continue
		}
		proj := (&hamiltonian.Projector{Beta: p.Beta}).Project(orbs[k].C)
		for i, ci := range p.Channels {
			for j, cj := range p.Channels {
				var dij, qij complex128
				if d := ks.dBare[k]; d != nil {
					dij = d.At(i, j)
				}
				if q := ks.overlap[k]; q != nil && ks.shapes[ci.Atom] != nil {
					qij = q.At(i, j)
				}
				if ci.Atom != cj.Atom || (dij == 0 && qij == 0) {
					continue
				}
				var rij complex128
				for n, fn := range f[k] {
					if fn == 0 {
						continue
					}
					rij += complex(w[k]*ks.deg*fn, 0) * cmplx.Conj(proj.At(i, n)) * proj.At(j, n)
				}
				enl += real(dij * rij)
				charge[ci.Atom] += real(qij * rij)
			}
		}
	}
	for a, q := range charge {
		if q != 0 && ks.shapes[a] != nil {
			floats.AddScaled(rhoAug, q, ks.shapes[a])
		}
	}
	return rhoAug, enl
}

// energies evaluates the Kohn-Sham energy terms at the output orbitals.
func (ks *KohnSham) energies(orbs []density.Orbitals, occ density.Occupation, w []float64, rhoPS, rhoAug, rho []float64, enl float64) (*core.EnergyBreakdown, error) {
	var kin float64
	for k, o := range orbs {
		tk := ks.kpts[k].Kinetic
		for n, fn := range occ.Fractions[k] {
			if fn == 0 {
				continue
			}
			var s float64
			for g, t := range tk {
				z := o.C.At(g, n)
				s += t * (real(z)*real(z) + imag(z)*imag(z))
			}
			kin += w[k] * ks.deg * fn * s
		}
	}
	_, eh := ks.hartree.Hartree(rho)
	xcRes, err := ks.cfg.Functional.Evaluate(rho, ks.grad, ks.omega)
	if err != nil {
		return nil, err
	}
	return &core.EnergyBreakdown{
		Kinetic:      kin,
		Local:        ks.integrate(ks.vloc, rhoPS),
		Nonlocal:     enl,
		Hartree:      eh,
		XC:           xcRes.Energy,
		IonIon:       ks.ionion,
		Augmentation: ks.integrate(ks.vloc, rhoAug),
		Entropy:      occ.TS,
	}, nil
}

func maxResidual(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	return floats.Max(r)
}
