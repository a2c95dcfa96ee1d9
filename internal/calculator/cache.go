// cache.go --  This file is part of goPW project.
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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/MirzaevaIV/goPW/internal/config"
	"github.com/MirzaevaIV/goPW/internal/core"
)

// keyParts are the inputs that determine a result.
type keyParts struct {
	Numbers   []int
	Cell      core.Mat3
	Positions []core.Vec3
	PBC       [3]bool
	Charge    float64
	Spin      bool
	Input     config.Input
	Preloaded map[string]string
}

// CacheKey returns the SHA-256 hex digest identifying sys under in, with
// preloaded pseudopotentials taking the place of their configured paths.
// Settings that cannot change a result (structure path, thread count,
// cache location, which derivatives are requested) are left out.
func CacheKey(sys core.System, in *config.Input, preloaded map[string]core.PseudopotentialData) string {
	settings := *in
	settings.Structure = config.Structure{}
	settings.XC.Functional = strings.ToLower(in.XC.Functional)
	settings.Autodiff.Forces, settings.Autodiff.Stress = false, false
	settings.Runtime.NProcs, settings.Runtime.Cache = 0, ""
	parts := keyParts{
		Numbers:   sys.Numbers,
		Cell:      sys.Cell,
		Positions: sys.Positions,
		PBC:       sys.PBC,
		Charge:    sys.Charge,
		Spin:      sys.SpinPolarized,
		Input:     settings,
	}
	if len(preloaded) > 0 {
		parts.Preloaded = make(map[string]string, len(preloaded))
		for sym, pp := range preloaded {
			parts.Preloaded[sym] = ppDigest(pp)
		}
	}
	data, _ := json.Marshal(parts)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ppDigest hashes the numerical content of a pseudopotential.
func ppDigest(pp core.PseudopotentialData) string {
	data, _ := json.Marshal(struct {
		Symbol   string
		Type     core.PPType
		ZValence float64
		Mesh     core.RadialMesh
		Local    []float64
		Beta     [][]float64
		L        []int
		D, Q     []float64
	}{
		Symbol:   pp.Symbol,
		Type:     pp.Type,
		ZValence: pp.ZValence,
		Mesh:     pp.Mesh,
		Local:    pp.LocalPotential,
		Beta:     pp.Nonlocal.Beta,
		L:        pp.Nonlocal.AngularMomentum,
		D:        denseData(pp.Nonlocal.D),
		Q:        denseData(pp.Nonlocal.Q),
	})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func denseData(m *mat.Dense) []float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, m.At(i, j))
		}
	}
	return out
}

// Cache stores results by key.
type Cache interface {
	Get(key string) (*Result, bool)
	Set(key string, r *Result)
}

// memoryCache keeps the most recent result only.
type memoryCache struct {
	mu    sync.Mutex
	key   string
	entry *Result
}

// NewMemoryCache returns a single-entry in-memory cache.
func NewMemoryCache() Cache { return &memoryCache{} }

func (m *memoryCache) Get(key string) (*Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry == nil || m.key != key {
		return nil, false
	}
	return m.entry.clone(), true
}

func (m *memoryCache) Set(key string, r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key, m.entry = key, r.clone()
}
