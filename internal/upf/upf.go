// upf.go --  This file is part of goPW project.
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

// Package upf reads pseudopotentials in the UPF v2 XML format.
// Values are returned in file units (Rydberg, bohr).
package upf

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// node is a generic XML element; UPF tags carry numbered names such as
// PP_BETA.1 that do not map onto fixed struct fields.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n *node) attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if strings.EqualFold(a.Name.Local, name) {
			return strings.TrimSpace(a.Value), true
		}
	}
	return "", false
}

func (n *node) child(name string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
	}
	return nil
}

// find searches the subtree depth-first for the first element called name.
func (n *node) find(name string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == name {
			return &n.Nodes[i]
		}
		if f := n.Nodes[i].find(name); f != nil {
			return f
		}
	}
	return nil
}

// ParseFile reads a UPF file. The file stem is used as the element symbol
// when the header has none.
func ParseFile(path string) (core.PseudopotentialData, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.PseudopotentialData{}, err
	}
	defer f.Close()
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pp, err := Parse(f, stem)
	if err != nil {
		return core.PseudopotentialData{}, fmt.Errorf("%s: %w", path, err)
	}
	return pp, nil
}

// Parse decodes a UPF document. fallbackSymbol names the element when the
// header omits it.
func Parse(r io.Reader, fallbackSymbol string) (core.PseudopotentialData, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return core.PseudopotentialData{}, core.Invalid("upf", "malformed xml: %v", err)
	}
	header := root.child("PP_HEADER")
	if header == nil {
		return core.PseudopotentialData{}, core.Invalid("upf", "no PP_HEADER")
	}

	pp := core.PseudopotentialData{Symbol: fallbackSymbol, Type: core.NormConserving}
	if el, ok := header.attr("element"); ok && el != "" {
		pp.Symbol = el
	}
	if zv, ok := header.attr("z_valence"); ok {
		v, err := parseFloat(zv)
		if err != nil {
			return pp, core.Invalid("upf.z_valence", "%v", err)
		}
		pp.ZValence = v
	}
	switch {
	case flag(header, "is_paw"):
		pp.Type = core.PAW
	case flag(header, "is_ultrasoft"):
		pp.Type = core.Ultrasoft
	}

	var err error
	if mesh := root.child("PP_MESH"); mesh != nil {
		if pp.Mesh.R, err = values(mesh.child("PP_R")); err != nil {
			return pp, core.Invalid("upf.PP_R", "%v", err)
		}
		if pp.Mesh.RAB, err = values(mesh.child("PP_RAB")); err != nil {
			return pp, core.Invalid("upf.PP_RAB", "%v", err)
		}
	}
	if pp.LocalPotential, err = values(root.child("PP_LOCAL")); err != nil {
		return pp, core.Invalid("upf.PP_LOCAL", "%v", err)
	}

	if nl := root.child("PP_NONLOCAL"); nl != nil {
		if pp.Nonlocal, err = nonlocal(nl); err != nil {
			return pp, err
		}
	}
	if n, ok := header.attr("number_of_proj"); ok {
		if np, err := strconv.Atoi(n); err == nil && np != pp.Nonlocal.NumProjectors() {
			return pp, core.Invalid("upf.number_of_proj", "header declares %d projectors, found %d", np, pp.Nonlocal.NumProjectors())
		}
	}
	if err := pp.Validate(); err != nil {
		return pp, err
	}
	return pp, nil
}

func nonlocal(nl *node) (core.Nonlocal, error) {
	type beta struct {
		index int
		l     int
		v     []float64
	}
	var betas []beta
	for i := range nl.Nodes {
		name := nl.Nodes[i].XMLName.Local
		if !strings.HasPrefix(name, "PP_BETA") {
			continue
		}
		idx := len(betas) + 1
		if _, suffix, ok := strings.Cut(name, "."); ok {
			if k, err := strconv.Atoi(suffix); err == nil {
				idx = k
			}
		}
		v, err := values(&nl.Nodes[i])
		if err != nil {
			return core.Nonlocal{}, core.Invalid("upf."+name, "%v", err)
		}
		l := 0
		if s, ok := nl.Nodes[i].attr("angular_momentum"); ok {
			if l, err = strconv.Atoi(s); err != nil {
				return core.Nonlocal{}, core.Invalid("upf."+name, "bad angular_momentum %q", s)
			}
		}
		betas = append(betas, beta{index: idx, l: l, v: v})
	}
	slices.SortStableFunc(betas, func(a, b beta) int { return a.index - b.index })

	out := core.Nonlocal{}
	for _, b := range betas {
		out.Beta = append(out.Beta, b.v)
		out.AngularMomentum = append(out.AngularMomentum, b.l)
	}
	np := len(betas)
	if np == 0 {
		return out, nil
	}
	var err error
	if out.D, err = square(nl.child("PP_DIJ"), np, "PP_DIJ"); err != nil {
		return out, err
	}
	q := nl.child("PP_QIJ")
	if q == nil {
		if aug := nl.find("PP_AUGMENTATION"); aug != nil {
			q = aug.child("PP_Q")
		}
	}
	if out.Q, err = square(q, np, "PP_Q"); err != nil {
		return out, err
	}
	return out, nil
}

// square reads an np x np matrix; a missing element yields nil.
func square(n *node, np int, name string) (*mat.Dense, error) {
	if n == nil {
		return nil, nil
	}
	v, err := values(n)
	if err != nil {
		return nil, core.Invalid("upf."+name, "%v", err)
	}
	if len(v) != np*np {
		return nil, core.Invalid("upf."+name, "%d values for %d projectors", len(v), np)
	}
	return mat.NewDense(np, np, v), nil
}

func flag(n *node, name string) bool {
	v, ok := n.attr(name)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.Trim(v, ".")) {
	case "t", "true":
		return true
	}
	return false
}

func values(n *node) ([]float64, error) {
	if n == nil {
		return nil, nil
	}
	fields := strings.Fields(n.Content)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseFloat also accepts Fortran exponents (1.0D+00).
func parseFloat(s string) (float64, error) {
	s = strings.Map(func(r rune) rune {
		if r == 'd' || r == 'D' {
			return 'e'
		}
		return r
	}, s)
	return strconv.ParseFloat(s, 64)
}
