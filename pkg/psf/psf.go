// Package psf builds point-spread-function kernels and convolves volumes with
// them to emulate optical blur.
package psf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"volpatch/pkg/volume"
)

// truncate is the number of standard deviations covered by a Gaussian kernel
// when no explicit radius is requested.
const truncate = 3.0

// Gaussian returns a normalized separable Gaussian kernel with one standard
// deviation per axis. radius gives the half-width of each axis; nil or a
// negative entry selects ceil(3*sigma). A zero sigma yields a unit impulse
// along that axis.
func Gaussian(sigmas []float64, radius []int) (*volume.Volume, error) {
	if len(sigmas) == 0 {
		return nil, fmt.Errorf("gaussian kernel needs at least one sigma")
	}
	if radius != nil && len(radius) != len(sigmas) {
		return nil, fmt.Errorf("got %d radii for %d sigmas", len(radius), len(sigmas))
	}

	profiles := make([][]float64, len(sigmas))
	shape := make([]int, len(sigmas))
	for i, s := range sigmas {
		if s < 0 || math.IsNaN(s) {
			return nil, fmt.Errorf("sigma must be non-negative, got %g", s)
		}
		r := int(math.Ceil(truncate * s))
		if radius != nil && radius[i] >= 0 {
			r = radius[i]
		}
		profiles[i] = gaussian1D(s, r)
		shape[i] = 2*r + 1
	}

	k := volume.New(shape...)
	coords := make([]int, len(shape))
	for d := range k.Data {
		w := 1.0
		for i, c := range coords {
			w *= profiles[i][c]
		}
		k.Data[d] = w

		for i := len(shape) - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] < shape[i] {
				break
			}
			coords[i] = 0
		}
	}

	if err := Normalize(k); err != nil {
		return nil, err
	}
	return k, nil
}

func gaussian1D(sigma float64, r int) []float64 {
	p := make([]float64, 2*r+1)
	if sigma == 0 {
		p[r] = 1
		return p
	}
	for i := range p {
		x := float64(i - r)
		p[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	return p
}

// Normalize scales k in place so its elements sum to one.
func Normalize(k *volume.Volume) error {
	sum := floats.Sum(k.Data)
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return fmt.Errorf("kernel sum %g cannot be normalized", sum)
	}
	floats.Scale(1/sum, k.Data)
	return nil
}
