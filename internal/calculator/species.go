// species.go --  This file is part of goPW project.
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
package calculator

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/pseudo"
	"github.com/MirzaevaIV/goPW/internal/structure"
	"github.com/MirzaevaIV/goPW/internal/upf"
)

// modelPrefix selects the built-in erf-screened Coulomb pseudopotential
// in place of a UPF path: "gaussian" or "gaussian:<rc in bohr>".
const modelPrefix = "gaussian"

const defaultModelRadius = 1.0

// qMargin pads the tabulated form factors past the density sphere.
const qMargin = 1.0

// loadPseudopotential returns the data for symbol, preferring preloaded
// entries over the configured paths.
func (c *Calculator) loadPseudopotential(symbol string, z int) (core.PseudopotentialData, error) {
	if pp, ok := c.opts.Pseudopotentials[symbol]; ok {
		return pp, nil
	}
	ref, ok := c.input.Pseudopotentials[symbol]
	if !ok {
		return core.PseudopotentialData{}, core.Invalid("pseudopotentials."+symbol, "no pseudopotential given")
	}
	if arg, found := strings.CutPrefix(strings.TrimSpace(ref), modelPrefix); found {
		rc := defaultModelRadius
		if rest, ok := strings.CutPrefix(arg, ":"); ok {
			v, err := strconv.ParseFloat(rest, 64)
			if err != nil {
				return core.PseudopotentialData{}, core.Invalid("pseudopotentials."+symbol, "bad model radius %q", rest)
			}
			rc = v
		} else if arg != "" {
			return core.PseudopotentialData{}, core.Invalid("pseudopotentials."+symbol, "unknown model %q", ref)
		}
		return pseudo.Gaussian(symbol, float64(z), rc)
	}
	pp, err := upf.ParseFile(ref)
	if err != nil {
		return core.PseudopotentialData{}, fmt.Errorf("pseudopotential %s: %w", symbol, err)
	}
	return pp, nil
}

// species builds one Species per distinct element of sys, in order of
// first appearance, and the per-atom species index.
func (c *Calculator) species(sys core.System) ([]*pseudo.Species, []int, error) {
	var symbols []string
	var list []*pseudo.Species
	labels := make([]int, len(sys.Numbers))
	qmax := math.Sqrt(2*c.input.EcutRho()) + qMargin
	elems := structure.Elements()
	for a, z := range sys.Numbers {
		sym := elems.Symbol(z)
		if sym == "" {
			return nil, nil, core.Invalid("system.numbers", "atom %d has unknown atomic number %d", a, z)
		}
		if i := slices.Index(symbols, sym); i >= 0 {
			labels[a] = i
			continue
		}
		sp, err := c.cachedSpecies(sym, z, qmax)
		if err != nil {
			return nil, nil, err
		}
		labels[a] = len(list)
		symbols = append(symbols, sym)
		list = append(list, sp)
	}
	return list, labels, nil
}

// cachedSpecies tabulates each element once per calculator.
func (c *Calculator) cachedSpecies(symbol string, z int, qmax float64) (*pseudo.Species, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sp, ok := c.speciesCache[symbol]; ok && sp.qmax >= qmax {
		return sp.species, nil
	}
	pp, err := c.loadPseudopotential(symbol, z)
	if err != nil {
		return nil, err
	}
	sp, err := pseudo.NewSpecies(pp, qmax)
	if err != nil {
		return nil, err
	}
	if _, seen := c.speciesCache[symbol]; !seen && pp.Type == core.PAW {
		c.logger.Warn("PAW one-centre terms are not included, augmentation is treated as ultrasoft", "element", symbol)
	}
	c.speciesCache[symbol] = tabulated{species: sp, qmax: qmax}
	return sp, nil
}

type tabulated struct {
	species *pseudo.Species
	qmax    float64
}
