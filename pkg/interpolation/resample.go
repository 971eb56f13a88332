// Package interpolation resamples volumes along a single axis. It is used to
// simulate anisotropic acquisition: a stack is shrunk along one axis and
// stretched back to its original length.
//
// Resampling follows the corner-aligned convention: for an input of length n
// and an output of length m, output sample i is taken at input coordinate
// i*(n-1)/(m-1), so the first and last samples always coincide. Nearest and
// linear kernels clamp neighbours to the edge samples; the cubic kernel uses
// the quadratic boundary extrapolation proposed by Keys.
package interpolation

import (
	"fmt"
	"math"

	"volpatch/pkg/volume"
)

// Order selects the interpolation kernel.
type Order int

const (
	// Nearest picks the closest input sample
	Nearest Order = 0

	// Linear interpolates between the two neighbouring samples
	Linear Order = 1

	// Cubic uses the Keys cubic convolution kernel (a = -0.5) over four
	// neighbouring samples. It interpolates the input exactly and reproduces
	// polynomials up to degree two.
	Cubic Order = 3
)

// keysA is the free parameter of the cubic convolution kernel.
const keysA = -0.5

// ParseOrder converts a spline order (0, 1 or 3) into an Order.
func ParseOrder(order int) (Order, error) {
	switch Order(order) {
	case Nearest, Linear, Cubic:
		return Order(order), nil
	}
	return 0, fmt.Errorf("unsupported interpolation order %d (want 0, 1 or 3)", order)
}

func (o Order) String() string {
	switch o {
	case Nearest:
		return "nearest"
	case Linear:
		return "linear"
	case Cubic:
		return "cubic"
	}
	return fmt.Sprintf("order(%d)", int(o))
}

// ResampleAxis returns a copy of v whose length along axis is newLen. All
// other dimensions are unchanged.
func ResampleAxis(v *volume.Volume, axis, newLen int, order Order) (*volume.Volume, error) {
	if axis < 0 || axis >= v.Rank() {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, v.Rank())
	}
	if newLen <= 0 {
		return nil, fmt.Errorf("resampled length must be positive, got %d", newLen)
	}
	if _, err := ParseOrder(int(order)); err != nil {
		return nil, err
	}

	shape := append([]int(nil), v.Shape...)
	shape[axis] = newLen
	out := volume.New(shape...)

	if v.Shape[axis] == newLen {
		copy(out.Data, v.Data)
		return out, nil
	}

	// Input and output lines are enumerated in the same order, so the k-th
	// input line maps onto the k-th output line.
	var bases []int
	volume.ForEachLine(shape, axis, func(base, _, _ int) {
		bases = append(bases, base)
	})
	outStride := volume.Strides(shape)[axis]

	line := make([]float64, v.Shape[axis])
	res := make([]float64, newLen)
	k := 0
	volume.ForEachLine(v.Shape, axis, func(base, stride, n int) {
		for i := 0; i < n; i++ {
			line[i] = v.Data[base+i*stride]
		}
		Resample1D(res, line, order)

		ob := bases[k]
		for i, val := range res {
			out.Data[ob+i*outStride] = val
		}
		k++
	})

	return out, nil
}

// Resample1D fills dst by sampling src at len(dst) evenly spaced,
// corner-aligned coordinates.
func Resample1D(dst, src []float64, order Order) {
	n, m := len(src), len(dst)
	if n == 0 || m == 0 {
		return
	}
	if n == 1 || m == 1 {
		for i := range dst {
			dst[i] = src[0]
		}
		return
	}

	scale := float64(n-1) / float64(m-1)
	for i := range dst {
		x := float64(i) * scale
		if i == m-1 {
			x = float64(n - 1)
		}
		dst[i] = sample(src, x, order)
	}
}

// sample evaluates src at fractional coordinate x.
func sample(src []float64, x float64, order Order) float64 {
	switch order {
	case Nearest:
		return src[clamp(int(math.Floor(x+0.5)), len(src))]

	case Linear:
		i := int(math.Floor(x))
		t := x - float64(i)
		if t == 0 {
			return src[clamp(i, len(src))]
		}
		return src[clamp(i, len(src))]*(1-t) + src[clamp(i+1, len(src))]*t

	default:
		i := int(math.Floor(x))
		t := x - float64(i)
		if t == 0 {
			return src[clamp(i, len(src))]
		}
		var sum float64
		for k := -1; k <= 2; k++ {
			sum += extrapolated(src, i+k) * keys(float64(k)-t)
		}
		return sum
	}
}

// keys is the cubic convolution kernel.
func keys(d float64) float64 {
	d = math.Abs(d)
	switch {
	case d <= 1:
		return ((keysA+2)*d-(keysA+3))*d*d + 1
	case d < 2:
		return ((keysA*d-5*keysA)*d+8*keysA)*d - 4*keysA
	}
	return 0
}

// extrapolated returns src[j], extending the line by one sample at either
// end so that quadratics are reproduced up to the edges.
func extrapolated(src []float64, j int) float64 {
	n := len(src)
	switch {
	case j >= 0 && j < n:
		return src[j]
	case n < 3:
		if j < 0 {
			return 2*src[0] - src[n-1]
		}
		return 2*src[n-1] - src[0]
	case j < 0:
		return 3*src[0] - 3*src[1] + src[2]
	default:
		return 3*src[n-1] - 3*src[n-2] + src[n-3]
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
