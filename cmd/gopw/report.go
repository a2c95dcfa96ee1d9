// report.go --  This file is part of goPW project.
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
package main

import (
	"fmt"
	"io"
	"math"

	"github.com/fatih/color"

	"github.com/MirzaevaIV/goPW/internal/calculator"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// report writes the energy terms, eigenvalues, forces and stress to the
// output file.
func report(o *output, r *calculator.Result, symbols []string) {
	e := r.Energies
	o.println("Energy terms (a.u.):")
	o.delimiter()
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"Kinetic", e.Kinetic},
		{"Local pseudopotential", e.Local},
		{"Nonlocal pseudopotential", e.Nonlocal},
		{"Hartree", e.Hartree},
		{"Exchange-correlation", e.XC},
		{"Ion-ion", e.IonIon},
		{"Augmentation", e.Augmentation},
		{"-TS", -e.Entropy},
	} {
		o.printf("  %-26s %20.10f\n", t.name, t.value)
	}
	o.delimiter()
	o.printf("  %-26s %20.10f a.u. %16.8f eV\n", "Total energy", e.Total(), r.EnergyEV)
	o.printf("  %-26s %20.10f a.u. %16.8f eV\n", "Free energy", e.FreeEnergy(), r.FreeEnergyEV)
	o.printf("  %-26s %37.8f eV\n", "Fermi level", r.FermiLevelEV)
	o.delimiter()

	o.printf("SCF: converged=%t iterations=%d residual=%.3e run=%s\n", r.Converged, r.Iterations, r.Residual, r.RunID)
	m := r.Metadata
	o.printf("Basis: %d plane waves at Gamma, FFT grid %dx%dx%d, %d k-points, %d bands, volume %.4f A^3\n",
		m.NGVec, m.FFTShape[0], m.FFTShape[1], m.FFTShape[2], m.KPoints, m.NBands, m.Volume)
	o.delimiter()

	for k, eps := range r.Eigenvalues {
		o.printf("Eigenvalues (a.u.) and occupations, k-point %d:\n", k+1)
		for n, v := range eps {
			o.printf("  %4d %16.8f %10.6f\n", n+1, v, r.Occupations[k][n])
		}
	}
	o.delimiter()

	if r.Forces != nil {
		o.println("Forces (eV/A):")
		for i, f := range r.Forces {
			o.printf("  %4d %-3s %14.8f %14.8f %14.8f\n", i+1, symbols[i], f[0], f[1], f[2])
		}
		o.delimiter()
	}
	if r.Stress != nil {
		s := r.Stress
		o.println("Stress (eV/A^3), Voigt order xx yy zz yz xz xy:")
		o.printf("  %14.8f %14.8f %14.8f %14.8f %14.8f %14.8f\n", s[0], s[1], s[2], s[3], s[4], s[5])
		o.delimiter()
	}
	o.printf("Final total energy = %.10f a.u.\n", e.Total())
}

// summary prints the headline numbers to the terminal.
func summary(w io.Writer, r *calculator.Result) {
	if r.Converged {
		green.Fprintf(w, "✓ SCF converged in %d iterations\n", r.Iterations)
	} else {
		yellow.Fprintf(w, "⚠️  SCF not converged after %d iterations (residual %.2e)\n", r.Iterations, r.Residual)
	}
	bold.Fprintf(w, "Total energy: ")
	fmt.Fprintf(w, "%.8f eV\n", r.EnergyEV)
	bold.Fprintf(w, "Free energy:  ")
	fmt.Fprintf(w, "%.8f eV\n", r.FreeEnergyEV)
	if r.Forces != nil {
		var fmax float64
		for _, f := range r.Forces {
			fmax = max(fmax, f[0]*f[0]+f[1]*f[1]+f[2]*f[2])
		}
		cyan.Fprintf(w, "Max force:    %.6f eV/A\n", math.Sqrt(fmax))
	}
	if r.Stress != nil {
		p := -(r.Stress[0] + r.Stress[1] + r.Stress[2]) / 3
		cyan.Fprintf(w, "Pressure:     %.6f eV/A^3\n", p)
	}
}
