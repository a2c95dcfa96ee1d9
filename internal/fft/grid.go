// grid.go --  This file is part of goPW project.
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

// Package fft implements a 3D complex FFT grid on top of gonum's 1D
// transforms. Data is stored row-major: index (i0*n1+i1)*n2+i2.
//
// Forward computes sum_r x(r) exp(-iG.r) and Backward computes
// sum_G c(G) exp(+iG.r); neither is normalized.
package fft

import (
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/MirzaevaIV/goPW/internal/core"
	"github.com/MirzaevaIV/goPW/internal/lattice"
)

// Grid is a 3D FFT grid. It is safe for concurrent use.
type Grid struct {
	Shape [3]int
	N     int
	plans sync.Pool
}

type plan struct {
	ffts     [3]*fourier.CmplxFFT
	src, dst []complex128
}

// NewGrid returns a grid of the given shape.
func NewGrid(shape [3]int) (*Grid, error) {
	for i, n := range shape {
		if n < 1 {
			return nil, core.Invalid("fft_shape", "axis %d has size %d", i, n)
		}
	}
	g := &Grid{Shape: shape, N: shape[0] * shape[1] * shape[2]}
	g.plans.New = func() any {
		p := &plan{}
		maxN := 0
		for i := 0; i < 3; i++ {
			p.ffts[i] = fourier.NewCmplxFFT(shape[i])
			if shape[i] > maxN {
				maxN = shape[i]
			}
		}
		p.src = make([]complex128, maxN)
		p.dst = make([]complex128, maxN)
		return p
	}
	return g, nil
}

// FromBasis returns the grid of b.
func FromBasis(b core.BasisSet) (*Grid, error) {
	return NewGrid(b.FFTShape)
}

// Index returns the flat index of grid point (i0,i1,i2).
func (g *Grid) Index(i0, i1, i2 int) int {
	return (i0*g.Shape[1]+i1)*g.Shape[2] + i2
}

// MillerIndex maps a signed Miller index onto the grid, wrapping negative
// components.
func (g *Grid) MillerIndex(n [3]int) int {
	var w [3]int
	for i := 0; i < 3; i++ {
		w[i] = ((n[i] % g.Shape[i]) + g.Shape[i]) % g.Shape[i]
	}
	return g.Index(w[0], w[1], w[2])
}

// Frequency returns the signed frequency of index i along an axis of size n.
func Frequency(i, n int) int {
	if i > n/2 {
		return i - n
	}
	return i
}

// Miller returns the signed Miller index of flat grid index idx.
func (g *Grid) Miller(idx int) [3]int {
	i2 := idx % g.Shape[2]
	i1 := (idx / g.Shape[2]) % g.Shape[1]
	i0 := idx / (g.Shape[1] * g.Shape[2])
	return [3]int{Frequency(i0, g.Shape[0]), Frequency(i1, g.Shape[1]), Frequency(i2, g.Shape[2])}
}

// GVectors returns the Cartesian G vector of every grid point.
func (g *Grid) GVectors(recip core.Mat3) []core.Vec3 {
	out := make([]core.Vec3, g.N)
	for idx := range out {
		out[idx] = lattice.GCart(recip, g.Miller(idx), core.Vec3{})
	}
	return out
}

// G2 returns |G|^2 for every grid point.
func (g *Grid) G2(recip core.Mat3) []float64 {
	gv := g.GVectors(recip)
	out := make([]float64, g.N)
	for i, v := range gv {
		out[i] = v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
	}
	return out
}

// Forward transforms data in place with the exp(-iG.r) sign.
func (g *Grid) Forward(data []complex128) {
	g.transform(data, true)
}

// Backward transforms data in place with the exp(+iG.r) sign.
func (g *Grid) Backward(data []complex128) {
	g.transform(data, false)
}

func (g *Grid) transform(data []complex128, forward bool) {
	if len(data) != g.N {
		panic("fft: data length does not match grid")
	}
	p := g.plans.Get().(*plan)
	defer g.plans.Put(p)
	n1, n2 := g.Shape[1], g.Shape[2]
	strides := [3]int{n1 * n2, n2, 1}
	for axis := 0; axis < 3; axis++ {
		n := g.Shape[axis]
		if n == 1 {
			continue
		}
		src, dst := p.src[:n], p.dst[:n]
		stride := strides[axis]
		for base := 0; base < g.N; base++ {
			// visit each line once: skip bases whose axis coordinate is nonzero
			if (base/stride)%n != 0 {
				continue
			}
			for j := 0; j < n; j++ {
				src[j] = data[base+j*stride]
			}
			if forward {
				p.ffts[axis].Coefficients(dst, src)
			} else {
				p.ffts[axis].Sequence(dst, src)
			}
			for j := 0; j < n; j++ {
				data[base+j*stride] = dst[j]
			}
		}
	}
}

// ToReciprocal returns (omega/N) Forward(f), the Fourier transform
// integral of a real field over the cell.
func (g *Grid) ToReciprocal(f []float64, omega float64) []complex128 {
	out := make([]complex128, g.N)
	for i, v := range f {
		out[i] = complex(v, 0)
	}
	g.Forward(out)
	s := complex(omega/float64(g.N), 0)
	for i := range out {
		out[i] *= s
	}
	return out
}

// ToReal returns Re[(1/omega) Backward(c)], the inverse of ToReciprocal.
func (g *Grid) ToReal(c []complex128, omega float64) []float64 {
	tmp := append([]complex128(nil), c...)
	g.Backward(tmp)
	out := make([]float64, g.N)
	for i, v := range tmp {
		out[i] = real(v) / omega
	}
	return out
}
