// structure.go --  This file is part of goPW project.
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

// Package structure reads plain-text structure files:
//
//	Cell
//	  5.43 0.00 0.00
//	  0.00 5.43 0.00
//	  0.00 0.00 5.43
//	end
//	Atoms
//	  Si 0.0000 0.0000 0.0000
//	  Si 1.3575 1.3575 1.3575
//	end
//	pbc T T T
//
// Lengths are in Angstrom and converted to bohr. Keywords are
// case-insensitive; lines starting with # are comments.
package structure

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/MirzaevaIV/goPW/internal/core"
)

// ReadFileLines returns the lines of fname.
func ReadFileLines(fname string) ([]string, error) {
	file, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return readLines(file)
}

func readLines(r io.Reader) ([]string, error) {
	var result []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		result = append(result, scanner.Text())
	}
	return result, scanner.Err()
}

// Read parses the structure file at path.
func Read(path string) (core.System, error) {
	lines, err := ReadFileLines(path)
	if err != nil {
		return core.System{}, fmt.Errorf("read structure: %w", err)
	}
	return Parse(lines)
}

// Decode parses a structure from r.
func Decode(r io.Reader) (core.System, error) {
	lines, err := readLines(r)
	if err != nil {
		return core.System{}, fmt.Errorf("read structure: %w", err)
	}
	return Parse(lines)
}

func fields(line string) []string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.Fields(line)
}

func findBlockEnd(n int, data []string, bname string) (int, error) {
	for i := n + 1; i < len(data); i++ {
		if words := fields(data[i]); len(words) > 0 && strings.EqualFold(words[0], "end") {
			return i, nil
		}
	}
	return 0, core.Invalid("structure", "no end of block %s", bname)
}

func parseVec(words []string, line int) (core.Vec3, error) {
	var v core.Vec3
	if len(words) < 3 {
		return v, core.Invalid("structure", "line %d: want three coordinates, got %d", line+1, len(words))
	}
	for k := 0; k < 3; k++ {
		x, err := strconv.ParseFloat(words[k], 64)
		if err != nil {
			return v, core.Invalid("structure", "line %d: %v", line+1, err)
		}
		v[k] = core.AngstromToBohr(x)
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "t", "true", "1", "yes":
		return true, nil
	case "f", "false", "0", "no":
		return false, nil
	}
	return false, core.Invalid("structure.pbc", "cannot read %q as a flag", s)
}

// Parse reads the Cell and Atoms blocks from data. Periodicity defaults to
// all three axes; a missing Cell block is an error.
func Parse(data []string) (core.System, error) {
	sys := core.System{PBC: [3]bool{true, true, true}}
	elems := Elements()
	var haveCell, haveAtoms bool
	for i := 0; i < len(data); i++ {
		words := fields(data[i])
		if len(words) == 0 {
			continue
		}
		switch strings.ToLower(words[0]) {
		case "cell":
			end, err := findBlockEnd(i, data, "Cell")
			if err != nil {
				return sys, err
			}
			var rows []core.Vec3
			for j := i + 1; j < end; j++ {
				w := fields(data[j])
				if len(w) == 0 {
					continue
				}
				v, err := parseVec(w, j)
				if err != nil {
					return sys, err
				}
				rows = append(rows, v)
			}
			if len(rows) != 3 {
				return sys, core.Invalid("structure.cell", "want 3 lattice vectors, got %d", len(rows))
			}
			sys.Cell = core.Mat3{rows[0], rows[1], rows[2]}
			haveCell = true
			i = end
		case "atoms":
			end, err := findBlockEnd(i, data, "Atoms")
			if err != nil {
				return sys, err
			}
			for j := i + 1; j < end; j++ {
				w := fields(data[j])
				if len(w) == 0 {
					continue
				}
				z := elems.Number(w[0])
				if z == 0 {
					return sys, core.Invalid("structure.atoms", "line %d: unknown element %q", j+1, w[0])
				}
				v, err := parseVec(w[1:], j)
				if err != nil {
					return sys, err
				}
				sys.Numbers = append(sys.Numbers, z)
				sys.Positions = append(sys.Positions, v)
			}
			haveAtoms = true
			i = end
		case "pbc":
			if len(words) != 4 {
				return sys, core.Invalid("structure.pbc", "want three flags, got %d", len(words)-1)
			}
			for k := 0; k < 3; k++ {
				b, err := parseBool(words[k+1])
				if err != nil {
					return sys, err
				}
				sys.PBC[k] = b
			}
		case "charge":
			if len(words) < 2 {
				return sys, core.Invalid("structure.charge", "missing value")
			}
			q, err := strconv.ParseFloat(words[1], 64)
			if err != nil {
				return sys, core.Invalid("structure.charge", "%v", err)
			}
			sys.Charge = q
		}
	}
	if !haveCell {
		return sys, core.Invalid("structure.cell", "no Cell block found")
	}
	if !haveAtoms || len(sys.Numbers) == 0 {
		return sys, core.Invalid("structure.atoms", "no atoms found")
	}
	return sys, sys.Validate()
}

// Symbols returns the element symbol of every atom in s.
func Symbols(s core.System) []string {
	elems := Elements()
	out := make([]string, len(s.Numbers))
	for i, z := range s.Numbers {
		out[i] = elems.Symbol(z)
	}
	return out
}

// Format writes s back in the block format, in Angstrom.
func Format(w io.Writer, s core.System) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "Cell")
	for _, a := range s.Cell {
		fmt.Fprintf(bw, "  %14.8f %14.8f %14.8f\n", core.BohrToAng(a[0]), core.BohrToAng(a[1]), core.BohrToAng(a[2]))
	}
	fmt.Fprintln(bw, "end")
	fmt.Fprintln(bw, "Atoms")
	for i, sym := range Symbols(s) {
		p := s.Positions[i]
		fmt.Fprintf(bw, "  %-3s %14.8f %14.8f %14.8f\n", sym, core.BohrToAng(p[0]), core.BohrToAng(p[1]), core.BohrToAng(p[2]))
	}
	fmt.Fprintln(bw, "end")
	flag := func(b bool) string {
		if b {
			return "T"
		}
		return "F"
	}
	fmt.Fprintf(bw, "pbc %s %s %s\n", flag(s.PBC[0]), flag(s.PBC[1]), flag(s.PBC[2]))
	if s.Charge != 0 {
		fmt.Fprintf(bw, "charge %g\n", s.Charge)
	}
	return bw.Flush()
}
