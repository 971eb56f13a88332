package psf

import (
	"fmt"

	"gonum.org/v1/gonum/dsp/fourier"

	"volpatch/pkg/volume"
)

// Convolve returns v convolved with kernel over the dimensions listed in
// spatial. The kernel has one dimension per entry of spatial, in the same
// order. Every other dimension (time, channel) is treated as a batch index
// and convolved independently.
//
// The result has the shape of v ("same" mode): it is the centred part of the
// full linear convolution, with zero padding outside v. Negative values
// produced by ringing are clamped to zero.
func Convolve(v *volume.Volume, spatial []int, kernel *volume.Volume) (*volume.Volume, error) {
	if len(spatial) != kernel.Rank() {
		return nil, fmt.Errorf("kernel rank %d does not match %d spatial axes", kernel.Rank(), len(spatial))
	}
	isSpatial := make([]bool, v.Rank())
	for _, a := range spatial {
		if a < 0 || a >= v.Rank() || isSpatial[a] {
			return nil, fmt.Errorf("invalid spatial axes %v for rank %d", spatial, v.Rank())
		}
		isSpatial[a] = true
	}

	// Full linear convolution size along each spatial axis.
	n := make([]int, len(spatial))
	padded := make([]int, len(spatial))
	offset := make([]int, len(spatial))
	for j, a := range spatial {
		n[j] = v.Shape[a]
		padded[j] = v.Shape[a] + kernel.Shape[j] - 1
		offset[j] = (kernel.Shape[j] - 1) / 2
	}
	paddedStrides := volume.Strides(padded)
	size := volume.Size(padded)

	plan := newPlan(padded)

	kbuf := make([]complex128, size)
	scatter(kbuf, paddedStrides, kernel.Data, kernel.Shape)
	plan.forward(kbuf)

	var batch []int
	for a := range v.Shape {
		if !isSpatial[a] {
			batch = append(batch, a)
		}
	}

	strides := volume.Strides(v.Shape)
	out := volume.New(v.Shape...)
	buf := make([]complex128, size)
	scale := 1 / float64(size)

	forEachIndex(v.Shape, batch, func(base int) {
		for i := range buf {
			buf[i] = 0
		}

		// gather the spatial sub-volume at base into the padded buffer
		forEachCoord(n, func(c []int) {
			src, dst := base, 0
			for j, a := range spatial {
				src += c[j] * strides[a]
				dst += c[j] * paddedStrides[j]
			}
			buf[dst] = complex(v.Data[src], 0)
		})

		plan.forward(buf)
		for i := range buf {
			buf[i] *= kbuf[i]
		}
		plan.inverse(buf)

		forEachCoord(n, func(c []int) {
			src, dst := 0, base
			for j, a := range spatial {
				src += (c[j] + offset[j]) * paddedStrides[j]
				dst += c[j] * strides[a]
			}
			val := real(buf[src]) * scale
			if val < 0 {
				val = 0
			}
			out.Data[dst] = val
		})
	})

	return out, nil
}

// plan holds one complex FFT per dimension of a padded buffer.
type plan struct {
	shape []int
	ffts  []*fourier.CmplxFFT
	line  [][]complex128
}

func newPlan(shape []int) *plan {
	p := &plan{shape: shape}
	for _, n := range shape {
		p.ffts = append(p.ffts, fourier.NewCmplxFFT(n))
		p.line = append(p.line, make([]complex128, n))
	}
	return p
}

// forward transforms buf in place along every dimension.
func (p *plan) forward(buf []complex128) { p.apply(buf, false) }

// inverse applies the unnormalized inverse transform in place; the caller
// divides by the buffer size.
func (p *plan) inverse(buf []complex128) { p.apply(buf, true) }

func (p *plan) apply(buf []complex128, inverse bool) {
	for axis := range p.shape {
		fft := p.ffts[axis]
		line := p.line[axis]
		volume.ForEachLine(p.shape, axis, func(base, stride, n int) {
			for i := 0; i < n; i++ {
				line[i] = buf[base+i*stride]
			}
			if inverse {
				fft.Sequence(line, line)
			} else {
				fft.Coefficients(line, line)
			}
			for i := 0; i < n; i++ {
				buf[base+i*stride] = line[i]
			}
		})
	}
}

// scatter copies a dense array with the given shape into the top-left corner
// of a larger buffer described by strides.
func scatter(dst []complex128, strides []int, src []float64, shape []int) {
	i := 0
	forEachCoord(shape, func(c []int) {
		off := 0
		for j, x := range c {
			off += x * strides[j]
		}
		dst[off] = complex(src[i], 0)
		i++
	})
}

// forEachCoord visits every coordinate of shape in row-major order. The
// slice passed to fn is reused between calls.
func forEachCoord(shape []int, fn func(c []int)) {
	if volume.Size(shape) == 0 {
		return
	}
	c := make([]int, len(shape))
	for {
		fn(c)
		i := len(shape) - 1
		for ; i >= 0; i-- {
			c[i]++
			if c[i] < shape[i] {
				break
			}
			c[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// forEachIndex visits every combination of the listed dimensions of shape,
// passing the flat offset of that combination with all other coordinates at
// zero.
func forEachIndex(shape []int, dims []int, fn func(base int)) {
	strides := volume.Strides(shape)
	sub := make([]int, len(dims))
	for i, d := range dims {
		sub[i] = shape[d]
	}
	forEachCoord(sub, func(c []int) {
		base := 0
		for i, d := range dims {
			base += c[i] * strides[d]
		}
		fn(base)
	})
}
