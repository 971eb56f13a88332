package source

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"volpatch/pkg/bundle"
	"volpatch/pkg/errs"
	"volpatch/pkg/volume"
)

// VolumeExt is the extension of native volume files written by
// bundle.SaveVolume.
const VolumeExt = ".vol"

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// ReadStack decodes the stack at p. Supported layouts are native volume
// files, multi-frame GIFs and single 2D images, as well as directories of
// 2D slices ordered by the number in their file names. Image pixels become
// 16-bit luminance values. Only the first page of a TIFF is read, so
// multi-page TIFF stacks must be stored as slice directories or volume
// files instead.
func ReadStack(fs afero.Fs, p string) (*volume.Volume, error) {
	info, err := fs.Stat(p)
	if err != nil {
		return nil, &errs.IOError{Op: "stat", Path: p, Err: err}
	}
	if info.IsDir() {
		return readSliceDir(fs, p)
	}

	switch ext := strings.ToLower(path.Ext(p)); {
	case ext == VolumeExt:
		v, _, err := bundle.LoadVolume(fs, p)
		return v, err
	case ext == ".gif":
		return readGIF(fs, p)
	case imageExts[ext]:
		img, err := readImage(fs, p)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		v := volume.New(b.Dy(), b.Dx())
		imageToFloat(img, v.Data)
		return v, nil
	default:
		return nil, &errs.IOError{Op: "decode", Path: p, Err: fmt.Errorf("unsupported stack format %q", ext)}
	}
}

// isPlaneFile reports whether p decodes to a single 2D plane.
func isPlaneFile(p string) bool {
	return imageExts[strings.ToLower(path.Ext(p))]
}

// readSliceDir stacks the images in dir along a new leading axis.
func readSliceDir(fs afero.Fs, dir string) (*volume.Volume, error) {
	infos, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, &errs.IOError{Op: "list", Path: dir, Err: err}
	}
	var files []string
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || strings.HasPrefix(name, ".") || !imageExts[strings.ToLower(path.Ext(name))] {
			continue
		}
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, &errs.IOError{Op: "list", Path: dir, Err: errors.New("no slice images found")}
	}

	// slices are ordered by the number in their name, not lexically
	sort.SliceStable(files, func(i, j int) bool {
		return extractNumber(files[i]) < extractNumber(files[j])
	})

	var v *volume.Volume
	var plane int
	for z, name := range files {
		p := path.Join(dir, name)
		img, err := readImage(fs, p)
		if err != nil {
			return nil, err
		}
		b := img.Bounds()
		if v == nil {
			v = volume.New(len(files), b.Dy(), b.Dx())
			plane = b.Dx() * b.Dy()
		} else if b.Dy() != v.Shape[1] || b.Dx() != v.Shape[2] {
			return nil, &errs.ShapeMismatchError{
				Context:  "slice " + p,
				Expected: errs.FormatShape(v.Shape[1:]),
				Got:      errs.FormatShape([]int{b.Dy(), b.Dx()}),
			}
		}
		imageToFloat(img, v.Data[z*plane:(z+1)*plane])
	}
	return v, nil
}

// readGIF stacks the frames of an animated GIF.
func readGIF(fs afero.Fs, p string) (*volume.Volume, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, &errs.IOError{Op: "open", Path: p, Err: err}
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, &errs.IOError{Op: "decode", Path: p, Err: err}
	}
	if len(g.Image) == 0 {
		return nil, &errs.IOError{Op: "decode", Path: p, Err: errors.New("no frames")}
	}
	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}
	v := volume.New(len(g.Image), h, w)
	plane := w * h
	for z, frame := range g.Image {
		// frames may cover only part of the canvas
		canvas := imaging.Paste(imaging.New(w, h, color.Black), frame, frame.Bounds().Min)
		imageToFloat(canvas, v.Data[z*plane:(z+1)*plane])
	}
	return v, nil
}

func readImage(fs afero.Fs, p string) (image.Image, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, &errs.IOError{Op: "open", Path: p, Err: err}
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, &errs.IOError{Op: "decode", Path: p, Err: err}
	}
	return img, nil
}

// imageToFloat writes the 16-bit luminance of img into dst in row-major
// order.
func imageToFloat(img image.Image, dst []float64) {
	b := img.Bounds()
	width := b.Dx()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
			dst[y*width+x] = float64(g.Y)
		}
	}
}

// extractNumber returns the number formed by the digits of a file name, or
// 0 if it has none.
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range path.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}
