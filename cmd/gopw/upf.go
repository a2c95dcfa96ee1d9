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
package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/upf"
)

func newUPFCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upf <file.upf>...",
		Short: "Check and summarize UPF pseudopotential files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			var failed int
			for _, path := range args {
				pp, err := upf.ParseFile(path)
				if err != nil {
					logger.Error("parse", "path", path, "err", err)
					failed++
					continue
				}
				describePP(cmd.OutOrStdout(), path, pp)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func describePP(w io.Writer, path string, pp core.PseudopotentialData) {
	bold.Fprintf(w, "%s", path)
	fmt.Fprintf(w, ": %s %s, z_valence %g, %d mesh points\n", pp.Symbol, pp.Type, pp.ZValence, len(pp.Mesh.R))
	for i, l := range pp.Nonlocal.AngularMomentum {
		d := 0.0
		if pp.Nonlocal.D != nil {
			d = pp.Nonlocal.D.At(i, i)
		}
		fmt.Fprintf(w, "  beta %d  l=%d  D_ii=%.6f Ry\n", i+1, l, d)
	}
	if pp.Nonlocal.Q != nil {
		cyan.Fprintf(w, "  augmentation charges present\n")
	}
}
