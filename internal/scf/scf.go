// scf.go --  This file is part of goPW project.
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

// Package scf drives the self-consistent density fixed point.
package scf

import (
	"context"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/mixer"
)

// Phase is the state of an SCF run.
type Phase int

const (
	Init Phase = iota
	Iterating
	Converged
	MaxIterExceeded
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "init"
	case Iterating:
		return "iterating"
	case Converged:
		return "converged"
	case MaxIterExceeded:
		return "max-iter-exceeded"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Output is the result of one application of the fixed-point map. Energies
// is nil when the map does not evaluate energies.
type Output struct {
	Rho         []float64
	VEff        []float64
	Eigenvalues [][]float64
	Occupations [][]float64
	FermiLevel  float64
	Energies    *core.EnergyBreakdown
}

// FixedPoint maps a trial density onto an output density.
type FixedPoint interface {
	Step(ctx context.Context, rhoIn []float64) (*Output, error)
}

// FixedPointFunc adapts a function to FixedPoint.
type FixedPointFunc func(ctx context.Context, rhoIn []float64) (*Output, error)

func (f FixedPointFunc) Step(ctx context.Context, rhoIn []float64) (*Output, error) {
	return f(ctx, rhoIn)
}

// EnergyEvaluator computes the final energies of a frozen state.
type EnergyEvaluator func(state *core.SCFState) (core.EnergyBreakdown, error)

// Options controls Run. Zero values select defaults.
type Options struct {
	MaxIter int
	RhoTol  float64
	ETol    float64
	Energy  EnergyEvaluator
	Logger  *log.Logger
}

// Defaults for Options.
const (
	DefaultMaxIter = 60
	DefaultRhoTol  = 1e-6
	DefaultETol    = 1e-8
)

func (o Options) withDefaults() (Options, error) {
	if o.MaxIter < 0 {
		return o, core.Invalid("scf.max_iter", "must be positive, got %d", o.MaxIter)
	}
	if o.MaxIter == 0 {
		o.MaxIter = DefaultMaxIter
	}
	if o.RhoTol <= 0 {
		o.RhoTol = DefaultRhoTol
	}
	if o.ETol <= 0 {
		o.ETol = DefaultETol
	}
	o.Logger = core.OrDiscard(o.Logger)
	return o, nil
}

// ResidualNorm returns ||out - in|| / max(sqrt(N), 1), the root mean square
// of the density change.
func ResidualNorm(in, out []float64) float64 {
	if len(in) == 0 {
		return 0
	}
	sq := make([]float64, len(in))
	for i := range in {
		d := out[i] - in[i]
		sq[i] = d * d
	}
	return math.Sqrt(stat.Mean(sq, nil))
}

// Run iterates rho -> fp(rho) with mix until the residual norm drops below
// RhoTol (and, when fp reports energies, the energy change below ETol) or
// MaxIter is reached. Non-convergence is not an error: the returned state
// has Converged == false. The context is checked between iterations.
func Run(ctx context.Context, rho0 []float64, fp FixedPoint, mix mixer.Mixer, opts Options) (*core.SCFResult, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if len(rho0) == 0 {
		return nil, core.Invalid("scf.rho0", "empty initial density")
	}
	logger := opts.Logger
	state := &core.SCFState{RunID: uuid.NewString(), Rho: append([]float64(nil), rho0...)}
	logger = logger.With("run", state.RunID[:8])
	prog := core.StartProgress(logger)

	phase := Iterating
	rhoIn := state.Rho
	var last *core.EnergyBreakdown
	prevE := math.NaN()
	for it := 1; phase == Iterating; it++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scf iteration %d: %w", it, err)
		}
		out, err := fp.Step(ctx, rhoIn)
		if err != nil {
			return nil, fmt.Errorf("scf iteration %d: %w", it, err)
		}
		if len(out.Rho) != len(rhoIn) {
			return nil, core.Invalid("scf.rho_out", "fixed point returned %d points for %d", len(out.Rho), len(rhoIn))
		}
		res := ResidualNorm(rhoIn, out.Rho)

		energyOK := true
		dE := math.NaN()
		if out.Energies != nil {
			last = out.Energies
			e := out.Energies.FreeEnergy()
			dE = e - prevE
			// the first iteration has no reference energy
			energyOK = math.IsNaN(prevE) || math.Abs(dE) < opts.ETol
			prevE = e
			state.Energy = e
		}

		before := mix.Stats()
		next := mix.Mix(rhoIn, out.Rho)
		mode := mixMode(before, mix.Stats())

		state.Iteration = it
		state.ResidualNorm = res
		state.Rho = append([]float64(nil), out.Rho...)
		state.VEff = out.VEff
		state.Eigenvalues = out.Eigenvalues
		state.Occupations = out.Occupations
		state.FermiLevel = out.FermiLevel
		state.MixerHistory = mix.History()

		logger.Info("scf", "iter", it, "residual", fmt.Sprintf("%.3e", res), "energy", state.Energy, "dE", dE, "mix", mode)

		switch {
		case res < opts.RhoTol && energyOK:
			phase = Converged
		case it >= opts.MaxIter:
			phase = MaxIterExceeded
		default:
			rhoIn = next
		}
	}

	state.Converged = phase == Converged
	frozen := state.Clone()
	result := &core.SCFResult{State: frozen}
	if last != nil {
		result.Energies = *last
	}
	if opts.Energy != nil {
		e, err := opts.Energy(frozen.Clone())
		if err != nil {
			return nil, fmt.Errorf("final energies: %w", err)
		}
		result.Energies = e
	}
	if phase == MaxIterExceeded {
		logger.Warn("scf did not converge", "iterations", frozen.Iteration, "residual", frozen.ResidualNorm)
	}
	prog.Done("scf finished", "state", phase, "iterations", frozen.Iteration, "free_energy", result.Energies.FreeEnergy())
	return result, nil
}

func mixMode(before, after mixer.Stats) string {
	switch {
	case after.Fallbacks > before.Fallbacks:
		return "linear-fallback"
	case after.Extrapolated > before.Extrapolated:
		return "pulay"
	}
	return "linear"
}
