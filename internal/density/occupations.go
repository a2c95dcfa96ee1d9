// occupations.go --  This file is part of goPW project.
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
package density

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// fdClip bounds the Fermi-Dirac exponent.
const fdClip = 50.0

// FermiDirac returns 1/(exp((e-mu)/kT)+1) for every e. For kT <= 0 it is
// the step function e <= mu.
func FermiDirac(eps []float64, mu, kT float64) []float64 {
	out := make([]float64, len(eps))
	for i, e := range eps {
		if kT <= 0 {
			if e <= mu {
				out[i] = 1
			}
			continue
		}
		x := math.Max(-fdClip, math.Min(fdClip, (e-mu)/kT))
		out[i] = 1 / (math.Exp(x) + 1)
	}
	return out
}

// GaussianOccupations returns erfc((e-mu)/sigma)/2, the step function for
// sigma <= 0.
func GaussianOccupations(eps []float64, mu, sigma float64) []float64 {
	out := make([]float64, len(eps))
	for i, e := range eps {
		if sigma <= 0 {
			if e <= mu {
				out[i] = 1
			}
			continue
		}
		out[i] = 0.5 * math.Erfc((e-mu)/sigma)
	}
	return out
}

// Smearing selects how occupations are assigned.
type Smearing string

const (
	SmearingFixed      Smearing = "fixed"
	SmearingFermiDirac Smearing = "fermi-dirac"
	SmearingGaussian   Smearing = "gaussian"
)

// ParseSmearing validates a smearing name.
func ParseSmearing(s string) (Smearing, error) {
	switch Smearing(s) {
	case "", SmearingFixed:
		return SmearingFixed, nil
	case SmearingFermiDirac, SmearingGaussian:
		return Smearing(s), nil
	}
	return SmearingFixed, core.Invalid("occupations.smearing", "unknown smearing %q", s)
}

// Occupier fills bands with a fixed number of electrons. Width is kT or
// sigma in Hartree. Degeneracy is 2 for spin-unpolarized calculations.
type Occupier struct {
	Smearing   Smearing
	Width      float64
	Degeneracy float64
}

// Occupation is the outcome of Occupy. Fractions are in [0, 1];
// TS is the smearing entropy term in Hartree.
type Occupation struct {
	Fractions  [][]float64
	FermiLevel float64
	TS         float64
}

// Occupy distributes nelec electrons over the bands eps[k][n] with k-point
// weights w.
func (o Occupier) Occupy(eps [][]float64, w []float64, nelec float64) (Occupation, error) {
	deg := o.Degeneracy
	if deg <= 0 {
		deg = 2
	}
	if len(eps) != len(w) {
		return Occupation{}, core.Invalid("occupations", "%d eigenvalue sets for %d k-points", len(eps), len(w))
	}
	nb := -1
	for _, e := range eps {
		if nb < 0 || len(e) < nb {
			nb = len(e)
		}
	}
	if nb <= 0 || nelec > deg*float64(nb)*floats.Sum(w)+1e-9 {
		return Occupation{}, core.Invalid("diagonalization.nbands", "%d bands cannot hold %g electrons", max(nb, 0), nelec)
	}
	if o.Smearing == SmearingFixed || o.Width <= 0 {
		return fixed(eps, nelec/deg), nil
	}
	fill := func(mu float64) [][]float64 {
		out := make([][]float64, len(eps))
		for k, e := range eps {
			if o.Smearing == SmearingGaussian {
				out[k] = GaussianOccupations(e, mu, o.Width)
			} else {
				out[k] = FermiDirac(e, mu, o.Width)
			}
		}
		return out
	}
	count := func(f [][]float64) float64 {
		var s float64
		for k := range f {
			s += w[k] * deg * floats.Sum(f[k])
		}
		return s
	}
	mu := FermiLevel(eps, o.Width, func(mu float64) float64 { return count(fill(mu)) - nelec })
	f := fill(mu)
	return Occupation{Fractions: f, FermiLevel: mu, TS: o.entropy(eps, f, w, mu, deg)}, nil
}

// FermiLevel finds mu with excess(mu) = 0 by bisection. excess must be
// non-decreasing in mu.
func FermiLevel(eps [][]float64, width float64, excess func(float64) float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, e := range eps {
		for _, v := range e {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	pad := 1 + 20*math.Abs(width)
	lo, hi = lo-pad, hi+pad
	for i := 0; i < 200; i++ {
		mid := 0.5 * (lo + hi)
		d := excess(mid)
		if math.Abs(d) < 1e-13 {
			return mid
		}
		if d > 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return 0.5 * (lo + hi)
}

// fixed fills the lowest nocc bands of every k-point; a fractional
// remainder goes into the next band.
func fixed(eps [][]float64, nocc float64) Occupation {
	out := Occupation{Fractions: make([][]float64, len(eps)), FermiLevel: math.Inf(-1)}
	full := int(math.Floor(nocc + 1e-12))
	rest := nocc - float64(full)
	for k, e := range eps {
		f := make([]float64, len(e))
		for n := range f {
			switch {
			case n < full:
				f[n] = 1
			case n == full && rest > 1e-12:
				f[n] = rest
			}
			if f[n] > 0 {
				out.FermiLevel = math.Max(out.FermiLevel, e[n])
			}
		}
		out.Fractions[k] = f
	}
	if math.IsInf(out.FermiLevel, -1) {
		out.FermiLevel = 0
	}
	return out
}

// entropy returns the smearing term T*S, positive.
func (o Occupier) entropy(eps, f [][]float64, w []float64, mu, deg float64) float64 {
	var ts float64
	for k := range f {
		for n, fn := range f[k] {
			switch o.Smearing {
			case SmearingGaussian:
				x := (eps[k][n] - mu) / o.Width
				ts += w[k] * deg * o.Width * math.Exp(-x*x) / (2 * math.Sqrt(math.Pi))
			default:
				if fn > 1e-15 && fn < 1-1e-15 {
					ts -= w[k] * deg * o.Width * (fn*math.Log(fn) + (1-fn)*math.Log(1-fn))
				}
			}
		}
	}
	return ts
}
