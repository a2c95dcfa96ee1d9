// mixer.go --  This file is part of goPW project.
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

// Package mixer advances the SCF density fixed point by linear or
// Pulay (DIIS) mixing with optional Kerker preconditioning.
package mixer

import (
	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/floats"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/fft"
)

// Mixer produces the next trial density from (rho_in, rho_out).
type Mixer interface {
	Mix(rhoIn, rhoOut []float64) []float64
	History() []core.MixerEntry
	Stats() Stats
	Reset()
}

// Stats counts mixing steps. Fallbacks are degraded-mode steps where Pulay
// extrapolation was skipped or its linear system was singular.
type Stats struct {
	Steps        int
	Extrapolated int
	Fallbacks    int
}

// Linear is rho_new = (1-beta) rho_in + beta rho_out.
type Linear struct {
	Beta  float64
	stats Stats
}

// NewLinear returns a linear mixer.
func NewLinear(beta float64) (*Linear, error) {
	if beta <= 0 || beta > 1 {
		return nil, core.Invalid("scf.mixing_beta", "must be in (0, 1], got %g", beta)
	}
	return &Linear{Beta: beta}, nil
}

func (m *Linear) Mix(rhoIn, rhoOut []float64) []float64 {
	m.stats.Steps++
	return linear(m.Beta, rhoIn, rhoOut)
}

func (m *Linear) History() []core.MixerEntry { return nil }

func (m *Linear) Stats() Stats { return m.stats }

func (m *Linear) Reset() { m.stats = Stats{} }

func linear(beta float64, rhoIn, rhoOut []float64) []float64 {
	out := make([]float64, len(rhoIn))
	floats.SubTo(out, rhoOut, rhoIn)
	floats.Scale(beta, out)
	floats.Add(out, rhoIn)
	return out
}

// Kerker damps long-wavelength residual components by q^2/(q^2+q0^2).
type Kerker struct {
	Grid *fft.Grid
	G2   []float64
	Q0   float64
}

// Apply returns the preconditioned residual. The G=0 component is removed.
func (k *Kerker) Apply(r []float64) []float64 {
	c := k.Grid.ToReciprocal(r, 1)
	q02 := k.Q0 * k.Q0
	for i, g2 := range k.G2 {
		if g2 == 0 {
			c[i] = 0
			continue
		}
		c[i] *= complex(g2/(g2+q02), 0)
	}
	return k.Grid.ToReal(c, 1)
}

// Options configures a Pulay mixer.
type Options struct {
	Beta   float64
	NDim   int
	Kerker *Kerker
	Logger *log.Logger
}

// New returns the mixer named by kind ("pulay" or "linear").
func New(kind string, opts Options) (Mixer, error) {
	switch kind {
	case "", "pulay", "diis":
		return NewPulay(opts)
	case "linear":
		return NewLinear(opts.Beta)
	}
	return nil, core.Invalid("scf.mixer", "unknown mixer %q", kind)
}
