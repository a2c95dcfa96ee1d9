// elements.go --  This file is part of goPW project.
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
package structure

import (
	_ "embed"
	"encoding/csv"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/exp/slices"
)

//go:embed elements.csv
var elementsCSV string

// Mendeleev is the periodic table, indexed so that Symb[Z-1] is the symbol
// of element Z.
type Mendeleev struct {
	Z          []int
	Symb, Name []string
	Mass       []float64
}

var (
	elemOnce sync.Once
	elemData Mendeleev
)

// Elements returns the embedded periodic table.
func Elements() *Mendeleev {
	elemOnce.Do(elemData.build)
	return &elemData
}

func (m *Mendeleev) build() {
	rows, err := csv.NewReader(strings.NewReader(elementsCSV)).ReadAll()
	if err != nil {
		panic("structure: corrupt element table: " + err.Error())
	}
	for _, row := range rows[1:] {
		z, _ := strconv.Atoi(row[0])
		mass, _ := strconv.ParseFloat(row[3], 64)
		m.Z = append(m.Z, z)
		m.Symb = append(m.Symb, row[1])
		m.Name = append(m.Name, row[2])
		m.Mass = append(m.Mass, mass)
	}
}

// Number returns the atomic number of symbol, or 0 if it is unknown.
// Matching ignores case.
func (m *Mendeleev) Number(symbol string) int {
	i := slices.IndexFunc(m.Symb, func(s string) bool { return strings.EqualFold(s, symbol) })
	if i < 0 {
		return 0
	}
	return m.Z[i]
}

// Symbol returns the symbol of element z, or "" when z is out of range.
func (m *Mendeleev) Symbol(z int) string {
	if z < 1 || z > len(m.Symb) {
		return ""
	}
	return m.Symb[z-1]
}
