// Package sampler draws fixed-size paired patches from a stack pair,
// favouring positions that overlap the bright foreground of the target.
package sampler

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"golang.org/x/exp/rand"

	"volpatch/pkg/axes"
	"volpatch/pkg/errs"
	"volpatch/pkg/volume"
)

// Foreground configures the foreground filter.
type Foreground struct {
	// Percentile of the non-zero target intensities used as reference, in
	// [0, 100]. Zero disables the filter and makes every voxel foreground.
	Percentile float64

	// Ratio scales the reference: voxels brighter than
	// Ratio * percentile(target) are foreground
	Ratio float64

	// Strict fails with EmptyForegroundError instead of falling back to
	// uniform sampling when no position touches the foreground
	Strict bool
}

// DefaultForeground keeps patches that contain at least one voxel brighter
// than 40% of the 99.9th percentile.
func DefaultForeground() Foreground {
	return Foreground{Percentile: 99.9, Ratio: 0.4}
}

// Spec describes the patches to draw from each pair.
type Spec struct {
	// Shape has one entry per stack axis; zero selects the full extent of
	// that axis
	Shape []int

	// Count is the number of patches per pair
	Count int

	Foreground Foreground
}

// Result holds the patches drawn from one pair.
type Result struct {
	// Shape is the resolved shape of a single patch
	Shape []int

	// Starts holds the window origin of every patch
	Starts [][]int

	// X and Y hold Count patches back to back
	X []float64
	Y []float64

	// Threshold is the intensity above which voxels counted as foreground
	Threshold float64

	// Candidates is the number of admissible patch origins
	Candidates int
}

// Check validates spec independently of any stack.
func (s Spec) Check(a axes.Axes) error {
	if s.Count <= 0 {
		return &errs.InvalidParameterError{Param: "patches per image", Reason: fmt.Sprintf("must be positive, got %d", s.Count)}
	}
	if len(s.Shape) != len(a) {
		return &errs.InvalidParameterError{
			Param:  "patch shape",
			Reason: fmt.Sprintf("%s has %d entries, axes %s need %d", errs.FormatShape(s.Shape), len(s.Shape), a, len(a)),
		}
	}
	for i, p := range s.Shape {
		if p < 0 {
			return &errs.InvalidParameterError{Param: "patch shape", Reason: fmt.Sprintf("negative size %d along %s", p, a[i])}
		}
	}
	f := s.Foreground
	if f.Percentile < 0 || f.Percentile > 100 || math.IsNaN(f.Percentile) {
		return &errs.InvalidParameterError{Param: "foreground percentile", Reason: fmt.Sprintf("must be in [0,100], got %g", f.Percentile)}
	}
	if f.Ratio < 0 || math.IsNaN(f.Ratio) {
		return &errs.InvalidParameterError{Param: "foreground ratio", Reason: fmt.Sprintf("must be non-negative, got %g", f.Ratio)}
	}
	return nil
}

// Resolve returns the concrete patch shape for a stack of the given shape,
// failing with PatchTooLargeError if the patch does not fit.
func (s Spec) Resolve(a axes.Axes, stack []int) ([]int, error) {
	if err := s.Check(a); err != nil {
		return nil, err
	}
	if err := axes.Validate(a, stack); err != nil {
		return nil, err
	}
	shape := make([]int, len(stack))
	for i, p := range s.Shape {
		if p == 0 {
			p = stack[i]
		}
		if p > stack[i] {
			return nil, &errs.PatchTooLargeError{Axis: a[i].String(), Patch: s.Shape, Stack: stack}
		}
		shape[i] = p
	}
	return shape, nil
}

// Sample draws spec.Count patches from pair using randomness from src.
// Identical inputs and seeds produce identical patches.
func Sample(pair volume.StackPair, spec Spec, src rand.Source) (*Result, error) {
	if !pair.Source.SameShape(pair.Target) {
		return nil, &errs.ShapeMismatchError{
			Context:  "source and target of " + pair.Name,
			Expected: errs.FormatShape(pair.Target.Shape),
			Got:      errs.FormatShape(pair.Source.Shape),
		}
	}
	shape, err := spec.Resolve(pair.Axes, pair.Target.Shape)
	if err != nil {
		return nil, err
	}

	// origins range over [0, S-P] along every axis
	grid := make([]int, len(shape))
	for i := range shape {
		grid[i] = pair.Target.Shape[i] - shape[i] + 1
	}

	threshold, mask, err := foregroundMask(pair.Target, spec.Foreground)
	if err != nil {
		return nil, err
	}

	var candidates []int
	if mask != nil {
		valid := mask
		validShape := append([]int(nil), pair.Target.Shape...)
		for axis := range shape {
			valid, validShape = windowAny(valid, validShape, axis, shape[axis])
		}
		for i, ok := range valid {
			if ok {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 && spec.Foreground.Strict {
			return nil, &errs.EmptyForegroundError{Threshold: threshold}
		}
	}

	total := volume.Size(grid)
	admissible := len(candidates)
	if admissible == 0 {
		admissible = total
	}

	rng := rand.New(src)
	patchSize := volume.Size(shape)
	res := &Result{
		Shape:      shape,
		Starts:     make([][]int, spec.Count),
		X:          make([]float64, spec.Count*patchSize),
		Y:          make([]float64, spec.Count*patchSize),
		Threshold:  threshold,
		Candidates: admissible,
	}
	for n := 0; n < spec.Count; n++ {
		k := rng.Intn(admissible)
		if len(candidates) > 0 {
			k = candidates[k]
		}
		start := unravel(k, grid)
		res.Starts[n] = start

		dst := n * patchSize
		if err := volume.CopyWindow(res.X[dst:dst+patchSize], pair.Source, start, shape); err != nil {
			return nil, err
		}
		if err := volume.CopyWindow(res.Y[dst:dst+patchSize], pair.Target, start, shape); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// foregroundMask thresholds the target. A nil mask means every voxel is
// foreground.
func foregroundMask(target *volume.Volume, f Foreground) (float64, []bool, error) {
	if f.Percentile == 0 {
		return 0, nil, nil
	}

	nonZero := make(stats.Float64Data, 0, len(target.Data))
	for _, v := range target.Data {
		if v != 0 {
			nonZero = append(nonZero, v)
		}
	}
	mask := make([]bool, len(target.Data))
	if len(nonZero) == 0 {
		return 0, mask, nil
	}

	ref, err := stats.Percentile(nonZero, f.Percentile)
	if err != nil {
		// too few samples for the requested rank: fall back to the extreme
		if ref, err = stats.Max(nonZero); err != nil {
			return 0, nil, err
		}
	}
	threshold := f.Ratio * ref
	for i, v := range target.Data {
		mask[i] = v > threshold
	}
	return threshold, mask, nil
}

// windowAny reduces mask along axis: element s of the result is true if any
// of elements [s, s+p) along that axis were true. The returned shape is the
// input shape with that axis shortened to n-p+1.
func windowAny(mask []bool, shape []int, axis, p int) ([]bool, []int) {
	outShape := append([]int(nil), shape...)
	outShape[axis] = shape[axis] - p + 1
	out := make([]bool, volume.Size(outShape))

	var bases []int
	volume.ForEachLine(outShape, axis, func(base, _, _ int) {
		bases = append(bases, base)
	})
	outStride := volume.Strides(outShape)[axis]

	prefix := make([]int, shape[axis]+1)
	k := 0
	volume.ForEachLine(shape, axis, func(base, stride, n int) {
		for i := 0; i < n; i++ {
			prefix[i+1] = prefix[i]
			if mask[base+i*stride] {
				prefix[i+1]++
			}
		}
		ob := bases[k]
		for s := 0; s < outShape[axis]; s++ {
			out[ob+s*outStride] = prefix[s+p]-prefix[s] > 0
		}
		k++
	})
	return out, outShape
}

// unravel converts a flat row-major index into coordinates.
func unravel(k int, shape []int) []int {
	c := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		c[i] = k % shape[i]
		k /= shape[i]
	}
	return c
}
