// calculator.go --  This file is part of goPW project.
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

// Package calculator runs single-point calculations: energy, forces and
// stress of a structure, in eV and Angstrom.
package calculator

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/MirzaevaIV/goPW/internal/autodiff"
	"github.com/MirzaevaIV/goPW/internal/config"
	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/density"
	"github.com/MirzaevaIV/goPW/internal/eigen"
	"github.com/MirzaevaIV/goPW/internal/lattice"
	"github.com/MirzaevaIV/goPW/internal/mixer"
	"github.com/MirzaevaIV/goPW/internal/pseudo"
	"github.com/MirzaevaIV/goPW/internal/scf"
	"github.com/MirzaevaIV/goPW/internal/structure"
	"github.com/MirzaevaIV/goPW/internal/xc"
)

// Options controls a Calculator.
type Options struct {
	// StrictConvergence turns an unconverged SCF into a *core.ConvergenceError.
	StrictConvergence bool
	// Pseudopotentials overrides the input's pseudopotential files by symbol.
	Pseudopotentials map[string]core.PseudopotentialData
	Cache            Cache
	Store            *Store
	Logger           *log.Logger
}

// Metadata describes the discretization of a calculation.
type Metadata struct {
	KPoints          int               `json:"kpoints"`
	FFTShape         [3]int            `json:"fft_shape"`
	NGVec            int               `json:"ngvec"`
	NBands           int               `json:"nbands"`
	Volume           float64           `json:"volume"`
	Pseudopotentials map[string]string `json:"pseudopotentials"`
}

// Result is a single-point outcome. Energies are in Hartree; the *EV
// fields, forces (eV/Angstrom) and Voigt stress (eV/Angstrom^3) are
// converted.
type Result struct {
	EnergyEV     float64              `json:"energy_ev"`
	FreeEnergyEV float64              `json:"free_energy_ev"`
	FermiLevelEV float64              `json:"fermi_level_ev"`
	Energies     core.EnergyBreakdown `json:"energies"`
	Forces       []core.Vec3          `json:"forces,omitempty"`
	Stress       *[6]float64          `json:"stress,omitempty"`
	Converged    bool                 `json:"converged"`
	Iterations   int                  `json:"iterations"`
	Residual     float64              `json:"residual"`
	RunID        string               `json:"run_id"`
	Metadata     Metadata             `json:"metadata"`
	Eigenvalues  [][]float64          `json:"eigenvalues,omitempty"`
	Occupations  [][]float64          `json:"occupations,omitempty"`
	State        *core.SCFState       `json:"-"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Forces = append([]core.Vec3(nil), r.Forces...)
	if r.Stress != nil {
		s := *r.Stress
		out.Stress = &s
	}
	out.State = r.State.Clone()
	return &out
}

// Calculator holds an input and the per-element tabulations reused across
// calculations.
type Calculator struct {
	input  *config.Input
	opts   Options
	logger *log.Logger

	mu           sync.Mutex
	speciesCache map[string]tabulated
}

// New checks in and returns a calculator. Exact exchange is rejected here.
func New(in *config.Input, opts Options) (*Calculator, error) {
	if in == nil {
		return nil, core.Invalid("input", "no input")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := xc.New(in.XC.Functional); err != nil {
		return nil, err
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	return &Calculator{
		input:        in,
		opts:         opts,
		logger:       core.OrDiscard(opts.Logger),
		speciesCache: map[string]tabulated{},
	}, nil
}

// Input returns the calculator's input.
func (c *Calculator) Input() *config.Input { return c.input }

// problem is one Kohn-Sham setup of a structure.
type problem struct {
	ks    *scf.KohnSham
	cfg   scf.Config
	basis core.BasisSet
}

func (c *Calculator) setup(sys core.System, logger *log.Logger) (*problem, error) {
	if err := sys.Validate(); err != nil {
		return nil, err
	}
	if sys.SpinPolarized {
		return nil, core.Unsupported("spin-polarized calculation")
	}
	fn, err := xc.New(c.input.XC.Functional)
	if err != nil {
		return nil, err
	}
	species, labels, err := c.species(sys)
	if err != nil {
		return nil, err
	}
	basis, err := lattice.NewBasisSet(sys.Cell, c.input.EcutWfc(), c.input.EcutRho())
	if err != nil {
		return nil, err
	}
	kpts, err := c.input.KPointGrid()
	if err != nil {
		return nil, err
	}
	occ, err := c.input.Smearing()
	if err != nil {
		return nil, err
	}
	d := c.input.Diagonalization
	cfg := scf.Config{
		Cell:        sys.Cell,
		PBC:         sys.PBC,
		Positions:   sys.Positions,
		Species:     species,
		AtomSpecies: labels,
		Charge:      sys.Charge + c.input.System.Charge,
		Basis:       basis,
		KPoints:     kpts,
		Functional:  fn,
		NBands:      d.NBands,
		Occupier:    occ,
		Eigen: eigen.Options{
			BlockSize:    d.BlockSize,
			MaxIter:      d.MaxIter,
			MaxSubspace:  d.MaxSubspace,
			ResidualTol:  d.ResidualTol,
			OverlapFloor: c.input.Precision().OverlapFloor(),
			Logger:       logger,
		},
		BackgroundPrefactor: c.input.Electrostatics.BackgroundPrefactor,
		Logger:              logger,
	}
	ks, err := scf.NewKohnSham(cfg)
	if err != nil {
		return nil, err
	}
	return &problem{ks: ks, cfg: cfg, basis: basis}, nil
}

func (c *Calculator) newMixer(ks *scf.KohnSham, logger *log.Logger) (mixer.Mixer, error) {
	opts := mixer.Options{Beta: c.input.SCF.MixingBeta, NDim: c.input.SCF.MixingNDim, Logger: logger}
	if q0 := c.input.SCF.KerkerQ0; q0 > 0 {
		opts.Kerker = &mixer.Kerker{Grid: ks.Grid(), G2: ks.G2(), Q0: q0}
	}
	return mixer.New(c.input.SCF.Mixer, opts)
}

// startDensity reuses a previous density on the same grid, renormalized to
// the electron count, or falls back to the atomic superposition.
func startDensity(ks *scf.KohnSham, prev []float64) []float64 {
	if len(prev) != ks.Grid().N {
		return ks.InitialDensity()
	}
	rho := append([]float64(nil), prev...)
	q := density.Integrate(rho, ks.Volume())
	if q <= 0 || math.IsNaN(q) {
		return ks.InitialDensity()
	}
	scale := ks.NumElectrons() / q
	for i := range rho {
		rho[i] *= scale
	}
	return rho
}

// solve runs the SCF loop for sys starting from prev when possible.
func (c *Calculator) solve(ctx context.Context, sys core.System, prev []float64, logger *log.Logger) (*problem, *core.SCFResult, error) {
	p, err := c.setup(sys, logger)
	if err != nil {
		return nil, nil, err
	}
	mix, err := c.newMixer(p.ks, logger)
	if err != nil {
		return nil, nil, err
	}
	res, err := scf.Run(ctx, startDensity(p.ks, prev), p.ks, mix, scf.Options{
		MaxIter: c.input.SCF.MaxIter,
		RhoTol:  c.input.SCF.RhoTol,
		ETol:    c.input.SCF.ETol,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, res, nil
}

// EnergyFunc returns the free energy of sys with positions and cell
// replaced, in Hartree. Each call is an independent SCF run started from
// rho. It is the function differentiated for forces and stress.
func (c *Calculator) EnergyFunc(ctx context.Context, sys core.System, rho []float64) autodiff.EnergyFunc {
	quiet := c.logger.With("phase", "gradient")
	if c.logger.GetLevel() > log.DebugLevel {
		quiet.SetLevel(log.WarnLevel)
	}
	return func(pos []core.Vec3, cell core.Mat3) (float64, error) {
		s := sys.Clone()
		s.Positions = pos
		s.Cell = cell
		_, res, err := c.solve(ctx, s, rho, quiet)
		if err != nil {
			return 0, err
		}
		if !res.State.Converged && c.opts.StrictConvergence {
			return 0, &core.ConvergenceError{Iterations: res.State.Iteration, Residual: res.State.ResidualNorm}
		}
		return res.Energies.FreeEnergy(), nil
	}
}

// SinglePoint computes the energy of sys and, when the input asks for
// them, forces and stress. sys is in atomic units.
func (c *Calculator) SinglePoint(ctx context.Context, sys core.System) (*Result, error) {
	ad := c.input.Autodiff
	key := CacheKey(sys, c.input, c.opts.Pseudopotentials)
	if r, ok := c.lookup(ctx, key); ok && (!ad.Forces || r.Forces != nil) && (!ad.Stress || r.Stress != nil) {
		c.logger.Info("cache hit", "key", key[:12])
		return r, nil
	}
	prog := core.StartProgress(c.logger)
	p, res, err := c.solve(ctx, sys, nil, c.logger)
	if err != nil {
		return nil, err
	}
	st := res.State
	if !st.Converged && c.opts.StrictConvergence {
		return nil, &core.ConvergenceError{Iterations: st.Iteration, Residual: st.ResidualNorm}
	}
	out := &Result{
		EnergyEV:     core.HartreeToElectronVolt(res.Energies.Total()),
		FreeEnergyEV: core.HartreeToElectronVolt(res.Energies.FreeEnergy()),
		FermiLevelEV: core.HartreeToElectronVolt(st.FermiLevel),
		Energies:     res.Energies,
		Converged:    st.Converged,
		Iterations:   st.Iteration,
		Residual:     st.ResidualNorm,
		RunID:        st.RunID,
		Eigenvalues:  st.Eigenvalues,
		Occupations:  st.Occupations,
		State:        st,
		Metadata:     c.metadata(sys, p),
	}

	opts := autodiff.Options{Step: ad.Step}
	efn := c.EnergyFunc(ctx, sys, st.Rho)
	if ad.Forces && len(sys.Positions) > 0 {
		f, err := autodiff.Forces(efn, sys.Positions, sys.Cell, opts)
		if err != nil {
			return nil, err
		}
		scale := core.HartreeToEV / core.BohrToAngstrom
		for i := range f {
			for k := 0; k < 3; k++ {
				f[i][k] *= scale
			}
		}
		out.Forces = f
	}
	if ad.Stress {
		s, err := autodiff.Stress(efn, sys.Positions, sys.Cell, opts)
		if err != nil {
			return nil, err
		}
		v := autodiff.Voigt(s)
		scale := core.HartreeToEV / math.Pow(core.BohrToAngstrom, 3)
		for i := range v {
			v[i] *= scale
		}
		out.Stress = &v
	}
	c.remember(ctx, key, out)
	prog.Done("single point", "energy_ev", out.EnergyEV, "converged", out.Converged)
	return out, nil
}

func (c *Calculator) metadata(sys core.System, p *problem) Metadata {
	pps := map[string]string{}
	for _, sym := range structure.Symbols(sys) {
		if _, ok := c.opts.Pseudopotentials[sym]; ok {
			pps[sym] = "preloaded"
			continue
		}
		pps[sym] = c.input.Pseudopotentials[sym]
	}
	return Metadata{
		KPoints:          len(p.cfg.KPoints.Points),
		FFTShape:         p.basis.FFTShape,
		NGVec:            len(p.basis.GVectors),
		NBands:           bands(p),
		Volume:           sys.Volume() * math.Pow(core.BohrToAngstrom, 3),
		Pseudopotentials: pps,
	}
}

func bands(p *problem) int {
	if p.cfg.NBands > 0 {
		return p.cfg.NBands
	}
	return scf.DefaultBands(p.ks.NumElectrons())
}

func (c *Calculator) lookup(ctx context.Context, key string) (*Result, bool) {
	if r, ok := c.opts.Cache.Get(key); ok {
		return r, true
	}
	if c.opts.Store == nil {
		return nil, false
	}
	r, ok, err := c.opts.Store.Load(ctx, key)
	if err != nil {
		c.logger.Warn("results store", "err", err)
		return nil, false
	}
	if ok {
		c.opts.Cache.Set(key, r)
	}
	return r, ok
}

func (c *Calculator) remember(ctx context.Context, key string, r *Result) {
	c.opts.Cache.Set(key, r)
	if c.opts.Store == nil {
		return
	}
	if err := c.opts.Store.Save(ctx, key, r); err != nil {
		c.logger.Warn("results store", "err", err)
	}
}

// Species returns the tabulated pseudopotential of symbol, loading it if
// needed. It is exposed for inspection tools.
func (c *Calculator) Species(symbol string) (*pseudo.Species, error) {
	z := structure.Elements().Number(symbol)
	if z == 0 {
		return nil, core.Invalid("pseudopotentials", "unknown element %q", symbol)
	}
	return c.cachedSpecies(structure.Elements().Symbol(z), z, math.Sqrt(2*c.input.EcutRho())+qMargin)
}

// String summarizes the calculator's discretization.
func (c *Calculator) String() string {
	return fmt.Sprintf("%s ecutwfc=%g Ry ecutrho=%g Ry kpoints=%s", c.input.XC.Functional, c.input.Basis.EcutWfc, c.input.Basis.EcutRho, c.input.KPoints.Mode)
}
