// run.go --  This file is part of goPW project.
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
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MirzaevaIV/goPW/internal/calculator"
	"github.com/MirzaevaIV/goPW/internal/config"
	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/structure"
)

type runOptions struct {
	structure string
	cache     string
	strict    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <input.yaml>",
		Short: "Run a single-point calculation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSinglePoint(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.structure, "structure", "s", "", "structure file (overrides structure.path)")
	cmd.Flags().StringVar(&opts.cache, "cache", "", "SQLite results database (overrides runtime.cache)")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "fail when the SCF loop does not converge")
	return cmd
}

// outputName replaces the extension of the input file with "out".
func outputName(inpFname string) string {
	ext := filepath.Ext(inpFname)
	return strings.TrimSuffix(inpFname, ext) + ".out"
}

func runSinglePoint(cmd *cobra.Command, inpFname string, opts runOptions) error {
	ctx := cmd.Context()
	outFname := outputName(inpFname)
	file, err := os.OpenFile(outFname, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	out := &output{w: file}

	base := loggerFromContext(ctx)
	logger := core.NewLogger(io.MultiWriter(cmd.ErrOrStderr(), file), base.GetLevel())
	logger.Info("starting goPW", "version", version, "output", outFname)
	appInfo(out)

	raw, err := os.ReadFile(inpFname)
	if err != nil {
		logger.Error("cannot read input file", "err", err)
		return err
	}
	out.println("Input file content:")
	out.delimiter()
	out.println(strings.TrimRight(string(raw), "\n"))
	out.delimiter()

	in, err := config.Load(inpFname)
	if err != nil {
		logger.Error("parsing input", "err", err)
		return err
	}
	if in.Runtime.NProcs > 0 {
		runtime.GOMAXPROCS(in.Runtime.NProcs)
		logger.Info("parsing input", "nprocs", in.Runtime.NProcs)
	}
	structPath := in.Structure.Path
	if opts.structure != "" {
		structPath = opts.structure
	}
	if structPath == "" {
		err := core.Invalid("structure.path", "no structure file given")
		logger.Error("parsing input", "err", err)
		return err
	}
	sys, err := structure.Read(structPath)
	if err != nil {
		logger.Error("parsing structure", "path", structPath, "err", err)
		return err
	}
	out.println("Structure:")
	out.delimiter()
	if err := structure.Format(file, sys); err != nil {
		return err
	}
	out.delimiter()

	copts := calculator.Options{StrictConvergence: opts.strict, Logger: logger}
	dbPath := in.Runtime.Cache
	if opts.cache != "" {
		dbPath = opts.cache
	}
	if dbPath != "" {
		store, err := calculator.OpenStore(dbPath)
		if err != nil {
			logger.Error("results store", "err", err)
			return err
		}
		defer store.Close()
		copts.Store = store
	}
	calc, err := calculator.New(in, copts)
	if err != nil {
		logger.Error("setting up calculation", "err", err)
		return err
	}
	logger.Info("calculation", "setup", calc.String(), "atoms", len(sys.Numbers))

	res, err := calc.SinglePoint(ctx, sys)
	if err != nil {
		logger.Error("single point", "err", err)
		return err
	}
	if !res.Converged {
		logger.Warn("scf did not converge", "iterations", res.Iterations, "residual", res.Residual)
	}
	report(out, res, structure.Symbols(sys))
	summary(cmd.OutOrStdout(), res)
	logger.Info("exiting goPW")
	return nil
}

// output is the plain calculation log written next to the input file.
type output struct {
	w io.Writer
}

func (o *output) println(a ...any) {
	fmt.Fprintln(o.w, a...)
}

func (o *output) printf(format string, a ...any) {
	fmt.Fprintf(o.w, format, a...)
}

func (o *output) delimiter() {
	o.println(strings.Repeat("-", 70))
}

func appInfo(o *output) {
	o.println("\n" +
		"   __ _  ___  _ ____      __  | Author: Mirzaeva Irina Valerievna\n" +
		"  / _` |/ _ \\| '_ \\ \\ /\\ / /  | email: dairdre@gmail.com\n" +
		" | (_| | (_) | |_) \\ V  V /   | Nikolaev Institute of Inorganic Chemistry SB RAS (http://niic.nsc.ru/)\n" +
		"  \\__, |\\___/| .__/ \\_/\\_/    | Novosibirsk, Russia\n" +
		"  |___/      |_|              | Plane waves, Have Fun!!!")
	o.println()
}
