// pulay.go --  This file is part of goPW project.
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
package mixer

import (
	"math"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// maxCond is the largest condition number of the DIIS system accepted
// before falling back to linear mixing.
const maxCond = 1e12

// Pulay is DIIS mixing over a FIFO history of (rho_in, P*R) pairs.
type Pulay struct {
	Beta   float64
	NDim   int
	Kerker *Kerker

	logger  *log.Logger
	history []core.MixerEntry
	stats   Stats
}

// NewPulay returns a Pulay mixer.
func NewPulay(opts Options) (*Pulay, error) {
	if opts.Beta <= 0 || opts.Beta > 1 {
		return nil, core.Invalid("scf.mixing_beta", "must be in (0, 1], got %g", opts.Beta)
	}
	if opts.NDim < 1 {
		return nil, core.Invalid("scf.mixing_ndim", "must be at least 1, got %d", opts.NDim)
	}
	return &Pulay{Beta: opts.Beta, NDim: opts.NDim, Kerker: opts.Kerker, logger: core.OrDiscard(opts.Logger)}, nil
}

// Mix records the new pair and returns the next trial density. Singular or
// ill-conditioned histories degrade to linear mixing on the raw residual.
func (p *Pulay) Mix(rhoIn, rhoOut []float64) []float64 {
	p.stats.Steps++
	res := make([]float64, len(rhoIn))
	floats.SubTo(res, rhoOut, rhoIn)
	pr := res
	if p.Kerker != nil {
		pr = p.Kerker.Apply(res)
	}
	p.history = append(p.history, core.MixerEntry{
		RhoIn:    append([]float64(nil), rhoIn...),
		Residual: pr,
	})
	if len(p.history) > p.NDim {
		p.history = p.history[len(p.history)-p.NDim:]
	}
	if len(p.history) < 2 {
		p.stats.Fallbacks++
		p.logger.Debug("pulay history too short, mixing linearly", "entries", len(p.history))
		return linear(p.Beta, rhoIn, rhoOut)
	}

	coefs, err := p.solve()
	if err != nil {
		p.stats.Fallbacks++
		p.logger.Warn("degraded mixing step", "err", err, "entries", len(p.history))
		return linear(p.Beta, rhoIn, rhoOut)
	}
	p.stats.Extrapolated++

	opt := make([]float64, len(rhoIn))
	for i, e := range p.history {
		c := coefs.AtVec(i)
		floats.AddScaled(opt, c, e.RhoIn)
		floats.AddScaled(opt, c, e.Residual)
	}
	out := make([]float64, len(rhoIn))
	floats.SubTo(out, opt, rhoIn)
	floats.Scale(p.Beta, out)
	floats.Add(out, rhoIn)
	return out
}

// buildB returns the Gram matrix of the residuals bordered by -1, scaled so
// its largest Gram element is one.
func (p *Pulay) buildB() *mat.Dense {
	n := len(p.history)
	b := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		b.Set(i, n, -1)
		b.Set(n, i, -1)
	}
	var scale float64
	for i := range p.history {
		for j := 0; j <= i; j++ {
			v := floats.Dot(p.history[i].Residual, p.history[j].Residual)
			b.Set(i, j, v)
			b.Set(j, i, v)
			scale = math.Max(scale, math.Abs(v))
		}
	}
	if scale > 0 {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				b.Set(i, j, b.At(i, j)/scale)
			}
		}
	}
	return b
}

func (p *Pulay) solve() (*mat.VecDense, error) {
	n := len(p.history)
	bmat := p.buildB()
	rhs := mat.NewVecDense(n+1, nil)
	rhs.SetVec(n, -1)

	var lu mat.LU
	lu.Factorize(bmat)
	if c := lu.Cond(); c > maxCond || math.IsNaN(c) {
		return nil, core.ErrMixingSingular
	}
	var coefs mat.VecDense
	if err := lu.SolveVecTo(&coefs, false, rhs); err != nil {
		return nil, core.ErrMixingSingular
	}
	for i := 0; i < n; i++ {
		if v := coefs.AtVec(i); math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, core.ErrMixingSingular
		}
	}
	return &coefs, nil
}

// History returns a deep copy of the stored pairs, oldest first.
func (p *Pulay) History() []core.MixerEntry {
	out := make([]core.MixerEntry, len(p.history))
	for i, e := range p.history {
		out[i] = core.MixerEntry{
			RhoIn:    append([]float64(nil), e.RhoIn...),
			Residual: append([]float64(nil), e.Residual...),
		}
	}
	return out
}

func (p *Pulay) Stats() Stats { return p.stats }

// Reset drops the history and counters.
func (p *Pulay) Reset() {
	p.history = nil
	p.stats = Stats{}
}
