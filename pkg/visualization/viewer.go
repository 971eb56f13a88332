package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"path"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"gonum.org/v1/gonum/floats"

	"volpatch/pkg/axes"
	"volpatch/pkg/errs"
	"volpatch/pkg/volume"
)

// Which selects the input or the target side of a patch pair.
type Which string

const (
	Input  Which = "X"
	Target Which = "Y"
)

// previewGap is the width in pixels of the separator between X and Y.
const previewGap = 2

// Viewer renders planes of training-set patches as images.
type Viewer struct {
	ts    *volume.TrainingSet
	axes  axes.Axes
	shape []int
}

// NewViewer creates a viewer over ts. The axes of ts must start with the
// sample axis and patches must have at least two dimensions.
func NewViewer(ts *volume.TrainingSet) (*Viewer, error) {
	a, err := axes.Parse(ts.Axes)
	if err != nil {
		return nil, err
	}
	if err := axes.Validate(a, ts.Shape); err != nil {
		return nil, err
	}
	if a[0] != axes.Sample || len(a) < 3 {
		return nil, &errs.InvalidAxesError{Label: ts.Axes, Reason: "expected a sample axis followed by at least two patch axes"}
	}
	return &Viewer{ts: ts, axes: a[1:], shape: ts.PatchShape()}, nil
}

// SliceAxis returns the axis previews are cut along: Z if present, otherwise
// the first axis that is not one of the two image axes.
func (v *Viewer) SliceAxis() string {
	d := v.sliceIndex()
	if d < 0 {
		return ""
	}
	return v.axes[d].String()
}

// sliceIndex is the patch dimension of SliceAxis, or -1 for 2D patches.
func (v *Viewer) sliceIndex() int {
	if len(v.axes) == 2 {
		return -1
	}
	if z := v.axes.Index(axes.Z); z >= 0 && z < len(v.axes)-2 {
		return z
	}
	return 0
}

// ExtractSlice returns one plane of patch i as a 16-bit grayscale image,
// contrast-stretched to the range of that plane. The plane is cut at
// position along axis; the image rows and columns are the last two
// remaining axes, and any other axis is held at its first index. For 2D
// patches axis must be empty.
func (v *Viewer) ExtractSlice(i int, which Which, axis string, position int) (*image.Gray16, error) {
	if i < 0 || i >= v.ts.Count() {
		return nil, fmt.Errorf("patch %d out of range [0,%d)", i, v.ts.Count())
	}
	x, y := v.ts.Patch(i)
	var data []float64
	switch which {
	case Input:
		data = x
	case Target:
		data = y
	default:
		return nil, fmt.Errorf("invalid array %q (must be X or Y)", which)
	}

	fixed := -1
	if axis != "" {
		sym, err := axes.ParseSymbol(axis)
		if err != nil {
			return nil, err
		}
		if fixed = v.axes.Index(sym); fixed < 0 {
			return nil, fmt.Errorf("axis %s not in patch axes %s", sym, v.axes)
		}
		if position < 0 || position >= v.shape[fixed] {
			return nil, fmt.Errorf("position %d outside [0,%d) along %s", position, v.shape[fixed], sym)
		}
	}

	var free []int
	for d := range v.shape {
		if d != fixed {
			free = append(free, d)
		}
	}
	if len(free) < 2 {
		return nil, fmt.Errorf("patch axes %s leave no plane when cutting along %s", v.axes, axis)
	}
	rowAxis, colAxis := free[len(free)-2], free[len(free)-1]
	rows, cols := v.shape[rowAxis], v.shape[colAxis]

	strides := volume.Strides(v.shape)
	base := 0
	if fixed >= 0 {
		base = position * strides[fixed]
	}
	plane := make([]float64, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			plane[r*cols+c] = data[base+r*strides[rowAxis]+c*strides[colAxis]]
		}
	}
	return toGray16(plane, cols, rows), nil
}

// SavePreviews writes side-by-side X|Y PNG images of the middle plane of
// count patches, spread evenly over the training set, into dir on fs. Each
// image is upscaled by scale with nearest-neighbour sampling. It returns
// the paths written.
func (v *Viewer) SavePreviews(fs afero.Fs, dir string, count, scale int) ([]string, error) {
	if count <= 0 || scale <= 0 {
		return nil, &errs.InvalidParameterError{Param: "preview", Reason: fmt.Sprintf("count and scale must be positive, got %d and %d", count, scale)}
	}
	if count > v.ts.Count() {
		count = v.ts.Count()
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, &errs.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	axis := v.SliceAxis()
	position := 0
	if d := v.sliceIndex(); d >= 0 {
		position = v.shape[d] / 2
	}

	var written []string
	for n := 0; n < count; n++ {
		i := n * v.ts.Count() / count
		xImg, err := v.ExtractSlice(i, Input, axis, position)
		if err != nil {
			return written, err
		}
		yImg, err := v.ExtractSlice(i, Target, axis, position)
		if err != nil {
			return written, err
		}

		w, h := xImg.Bounds().Dx(), xImg.Bounds().Dy()
		canvas := imaging.New(2*w+previewGap, h, color.White)
		canvas = imaging.Paste(canvas, xImg, image.Pt(0, 0))
		canvas = imaging.Paste(canvas, yImg, image.Pt(w+previewGap, 0))
		preview := imaging.Resize(canvas, canvas.Bounds().Dx()*scale, h*scale, imaging.NearestNeighbor)

		name := path.Join(dir, fmt.Sprintf("patch_%05d.png", i))
		if err := savePNG(fs, name, preview); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}

func savePNG(fs afero.Fs, name string, img image.Image) error {
	f, err := fs.Create(name)
	if err != nil {
		return &errs.IOError{Op: "create", Path: name, Err: err}
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return &errs.IOError{Op: "encode", Path: name, Err: err}
	}
	if err := f.Close(); err != nil {
		return &errs.IOError{Op: "close", Path: name, Err: err}
	}
	return nil
}

// toGray16 maps plane linearly from its [min, max] onto [0, 65535].
func toGray16(plane []float64, width, height int) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	lo, hi := floats.Min(plane), floats.Max(plane)
	scale := 0.0
	if hi > lo {
		scale = 65535 / (hi - lo)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			value := math.Max(0, math.Min(65535, (plane[y*width+x]-lo)*scale))
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Round(value))})
		}
	}
	return img
}
