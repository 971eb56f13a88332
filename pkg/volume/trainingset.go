package volume

import (
	"fmt"
)

// TrainingSet is the output of a pipeline run: parallel arrays of input (X)
// and target (Y) patches. Patches of stack k occupy sample indices
// [k*PerImage, (k+1)*PerImage).
type TrainingSet struct {
	// X and Y hold Count() patches each, laid out as Shape
	X []float64
	Y []float64

	// Shape is (count, patch...)
	Shape []int

	// Axes labels Shape, e.g. "SZYX"
	Axes string

	// Stacks names the contributing stack pairs in sample order
	Stacks []string

	// PerImage is the number of patches drawn from each stack
	PerImage int
}

// NewTrainingSet allocates a training set for stacks*perImage patches of the
// given shape.
func NewTrainingSet(stacks []string, perImage int, patchShape []int, patchAxes string) *TrainingSet {
	count := len(stacks) * perImage
	shape := append([]int{count}, patchShape...)
	return &TrainingSet{
		X:        make([]float64, Size(shape)),
		Y:        make([]float64, Size(shape)),
		Shape:    shape,
		Axes:     "S" + patchAxes,
		Stacks:   append([]string(nil), stacks...),
		PerImage: perImage,
	}
}

// Count returns the number of patch pairs.
func (t *TrainingSet) Count() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// PatchShape returns the shape of a single patch.
func (t *TrainingSet) PatchShape() []int {
	return append([]int(nil), t.Shape[1:]...)
}

// PatchSize returns the number of elements in a single patch.
func (t *TrainingSet) PatchSize() int {
	return Size(t.Shape[1:])
}

// Patch returns views of the i-th input and target patch.
func (t *TrainingSet) Patch(i int) (x, y []float64) {
	n := t.PatchSize()
	return t.X[i*n : (i+1)*n], t.Y[i*n : (i+1)*n]
}

// StackRange returns the half-open range of sample indices drawn from stack k.
func (t *TrainingSet) StackRange(k int) (from, to int, err error) {
	if k < 0 || k >= len(t.Stacks) {
		return 0, 0, fmt.Errorf("stack index %d out of range [0,%d)", k, len(t.Stacks))
	}
	return k * t.PerImage, (k + 1) * t.PerImage, nil
}

// Region returns views of the X and Y storage reserved for stack k.
func (t *TrainingSet) Region(k int) (x, y []float64) {
	n := t.PatchSize() * t.PerImage
	return t.X[k*n : (k+1)*n], t.Y[k*n : (k+1)*n]
}
