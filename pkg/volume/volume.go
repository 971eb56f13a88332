// Package volume holds the array types passed between pipeline stages:
// dense N-dimensional volumes, the stack pairs produced by a source, and the
// training set accumulated from sampled patches.
package volume

import (
	"fmt"

	"volpatch/pkg/errs"
)

// Volume is a dense N-dimensional array stored in row-major order, so the
// last dimension varies fastest. A ZYX volume is indexed z*h*w + y*w + x.
type Volume struct {
	// Shape holds the length of each dimension
	Shape []int

	// Data holds prod(Shape) values
	Data []float64
}

// New allocates a zero-filled volume with the given shape.
func New(shape ...int) *Volume {
	return &Volume{
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, Size(shape)),
	}
}

// FromData wraps data as a volume, checking that its length fits shape.
func FromData(data []float64, shape ...int) (*Volume, error) {
	if len(data) != Size(shape) {
		return nil, &errs.ShapeMismatchError{
			Context:  "volume data",
			Expected: fmt.Sprintf("%d values for shape %s", Size(shape), errs.FormatShape(shape)),
			Got:      fmt.Sprintf("%d values", len(data)),
		}
	}
	return &Volume{Shape: append([]int(nil), shape...), Data: data}, nil
}

// Size returns the number of elements of an array with the given shape.
func Size(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Strides returns the element stride of each dimension of shape.
func Strides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= shape[i]
	}
	return strides
}

// Rank returns the number of dimensions.
func (v *Volume) Rank() int { return len(v.Shape) }

// Len returns the number of elements.
func (v *Volume) Len() int { return len(v.Data) }

// Clone returns a deep copy of v.
func (v *Volume) Clone() *Volume {
	return &Volume{
		Shape: append([]int(nil), v.Shape...),
		Data:  append([]float64(nil), v.Data...),
	}
}

// SameShape reports whether v and o have identical shapes.
func (v *Volume) SameShape(o *Volume) bool {
	return SameShape(v.Shape, o.Shape)
}

// SameShape reports whether two shapes are identical.
func SameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Offset returns the flat index of the element at coords.
func (v *Volume) Offset(coords ...int) int {
	off := 0
	stride := 1
	for i := len(v.Shape) - 1; i >= 0; i-- {
		off += coords[i] * stride
		stride *= v.Shape[i]
	}
	return off
}

// At returns the element at coords.
func (v *Volume) At(coords ...int) float64 {
	return v.Data[v.Offset(coords...)]
}

// Set stores value at coords.
func (v *Volume) Set(value float64, coords ...int) {
	v.Data[v.Offset(coords...)] = value
}

// ForEachLine calls fn once for every 1D line of an array with the given
// shape that runs along axis. base is the flat index of the first element of
// the line; consecutive elements are stride apart and there are n of them.
func ForEachLine(shape []int, axis int, fn func(base, stride, n int)) {
	strides := Strides(shape)
	n := shape[axis]
	stride := strides[axis]

	// Lines are enumerated by walking every index with coordinate 0 along
	// axis: outer covers the dimensions before axis, inner those after it.
	outer := 1
	for i := 0; i < axis; i++ {
		outer *= shape[i]
	}
	inner := stride
	for o := 0; o < outer; o++ {
		start := o * n * stride
		for i := 0; i < inner; i++ {
			fn(start+i, stride, n)
		}
	}
}

// CopyWindow copies the hyper-rectangle of src starting at start with the
// given shape into dst, which must have Size(shape) elements.
func CopyWindow(dst []float64, src *Volume, start, shape []int) error {
	if len(start) != src.Rank() || len(shape) != src.Rank() {
		return &errs.ShapeMismatchError{
			Context:  "window",
			Expected: fmt.Sprintf("rank %d", src.Rank()),
			Got:      fmt.Sprintf("start rank %d, shape rank %d", len(start), len(shape)),
		}
	}
	for i := range shape {
		if start[i] < 0 || shape[i] <= 0 || start[i]+shape[i] > src.Shape[i] {
			return fmt.Errorf("window at %v of shape %s extends beyond volume %s",
				start, errs.FormatShape(shape), errs.FormatShape(src.Shape))
		}
	}
	if len(dst) != Size(shape) {
		return fmt.Errorf("window buffer holds %d values, need %d", len(dst), Size(shape))
	}

	rank := src.Rank()
	srcStrides := Strides(src.Shape)
	rowLen := shape[rank-1]

	// Copy contiguous rows along the last dimension, advancing an odometer
	// over the leading dimensions.
	coords := make([]int, rank)
	for d := 0; d < len(dst); d += rowLen {
		off := 0
		for i := 0; i < rank; i++ {
			off += (start[i] + coords[i]) * srcStrides[i]
		}
		copy(dst[d:d+rowLen], src.Data[off:off+rowLen])

		for i := rank - 2; i >= 0; i-- {
			coords[i]++
			if coords[i] < shape[i] {
				break
			}
			coords[i] = 0
		}
	}
	return nil
}

// Window returns a copy of the hyper-rectangle of v starting at start.
func (v *Volume) Window(start, shape []int) (*Volume, error) {
	w := New(shape...)
	if err := CopyWindow(w.Data, v, start, shape); err != nil {
		return nil, err
	}
	return w, nil
}

// Transpose returns a new volume whose dimension i is dimension perm[i] of v.
func (v *Volume) Transpose(perm []int) (*Volume, error) {
	if len(perm) != v.Rank() {
		return nil, fmt.Errorf("permutation %v does not match rank %d", perm, v.Rank())
	}
	shape := make([]int, len(perm))
	seen := make([]bool, len(perm))
	for i, p := range perm {
		if p < 0 || p >= len(perm) || seen[p] {
			return nil, fmt.Errorf("invalid permutation %v", perm)
		}
		seen[p] = true
		shape[i] = v.Shape[p]
	}

	out := New(shape...)
	srcStrides := Strides(v.Shape)
	// stride in the source for each output dimension
	permStrides := make([]int, len(perm))
	for i, p := range perm {
		permStrides[i] = srcStrides[p]
	}

	coords := make([]int, len(shape))
	for d := range out.Data {
		off := 0
		for i, c := range coords {
			off += c * permStrides[i]
		}
		out.Data[d] = v.Data[off]

		for i := len(shape) - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] < shape[i] {
				break
			}
			coords[i] = 0
		}
	}
	return out, nil
}
