// Package bundle stores training sets and single volumes in a compact binary
// container.
//
// A bundle starts with the magic "VPB1" and a big-endian uint32 giving the
// length of a gob-encoded Header. A single snappy stream follows, holding the
// arrays named in the header back to back as little-endian float32 values.
package bundle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"volpatch/pkg/errs"
	"volpatch/pkg/volume"
)

const (
	magic = "VPB1"

	// Version of the header layout
	Version = 1

	maxHeader = 16 << 20

	// largest number of values a single array may hold
	maxElements = math.MaxInt32

	// values converted per chunk when streaming arrays
	chunk = 64 << 10
)

// Array names used in bundles.
const (
	ArrayX    = "X"
	ArrayY    = "Y"
	ArrayData = "data"
)

// Header describes the arrays in a bundle. Every array has Shape.
type Header struct {
	Version int
	Axes    string
	Shape   []int
	Arrays  []string

	// Stacks and PerImage are only set for training sets
	Stacks   []string
	PerImage int
}

// SaveTrainingSet writes ts to path on fs.
func SaveTrainingSet(fs afero.Fs, path string, ts *volume.TrainingSet) error {
	h := Header{
		Version:  Version,
		Axes:     ts.Axes,
		Shape:    ts.Shape,
		Arrays:   []string{ArrayX, ArrayY},
		Stacks:   ts.Stacks,
		PerImage: ts.PerImage,
	}
	return save(fs, path, h, ts.X, ts.Y)
}

// LoadTrainingSet reads a bundle written by SaveTrainingSet.
func LoadTrainingSet(fs afero.Fs, path string) (*volume.TrainingSet, error) {
	h, arrays, err := load(fs, path)
	if err != nil {
		return nil, err
	}
	if len(h.Arrays) != 2 || h.Arrays[0] != ArrayX || h.Arrays[1] != ArrayY {
		return nil, &errs.IOError{Op: "load", Path: path, Err: fmt.Errorf("expected arrays [X Y], found %v", h.Arrays)}
	}
	return &volume.TrainingSet{
		X:        arrays[0],
		Y:        arrays[1],
		Shape:    h.Shape,
		Axes:     h.Axes,
		Stacks:   h.Stacks,
		PerImage: h.PerImage,
	}, nil
}

// SaveVolume writes a single volume with its axes label.
func SaveVolume(fs afero.Fs, path string, v *volume.Volume, axes string) error {
	h := Header{Version: Version, Axes: axes, Shape: v.Shape, Arrays: []string{ArrayData}}
	return save(fs, path, h, v.Data)
}

// LoadVolume reads a bundle written by SaveVolume and returns the volume and
// its axes label.
func LoadVolume(fs afero.Fs, path string) (*volume.Volume, string, error) {
	h, arrays, err := load(fs, path)
	if err != nil {
		return nil, "", err
	}
	if len(h.Arrays) != 1 || h.Arrays[0] != ArrayData {
		return nil, "", &errs.IOError{Op: "load", Path: path, Err: fmt.Errorf("expected a single %q array, found %v", ArrayData, h.Arrays)}
	}
	return &volume.Volume{Shape: h.Shape, Data: arrays[0]}, h.Axes, nil
}

// ReadHeader returns the header of the bundle at path without reading the
// arrays.
func ReadHeader(fs afero.Fs, path string) (*Header, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, &errs.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return nil, &errs.IOError{Op: "load", Path: path, Err: err}
	}
	return h, nil
}

// save writes the bundle to a temporary file next to path and renames it
// into place. On failure the temporary file is removed.
func save(fs afero.Fs, path string, h Header, arrays ...[]float64) error {
	n := volume.Size(h.Shape)
	for i, a := range arrays {
		if len(a) != n {
			return &errs.ShapeMismatchError{
				Context:  "array " + h.Arrays[i],
				Expected: fmt.Sprintf("%d elements for shape %s", n, errs.FormatShape(h.Shape)),
				Got:      fmt.Sprint(len(a)),
			}
		}
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return &errs.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp, err := afero.TempFile(fs, dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &errs.IOError{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()

	err = write(tmp, h, arrays)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = fs.Rename(tmpName, path)
	}
	if err != nil {
		fs.Remove(tmpName)
		return &errs.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func write(w io.Writer, h Header, arrays [][]float64) error {
	var hdr bytes.Buffer
	if err := gob.NewEncoder(&hdr).Encode(h); err != nil {
		return errors.Wrap(err, "encoding header")
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.BigEndian, uint32(hdr.Len())); err != nil {
		return err
	}
	if _, err := bw.Write(hdr.Bytes()); err != nil {
		return err
	}

	sw := snappy.NewBufferedWriter(bw)
	buf := make([]byte, 4*chunk)
	for _, a := range arrays {
		for off := 0; off < len(a); off += chunk {
			end := off + chunk
			if end > len(a) {
				end = len(a)
			}
			b := buf[:4*(end-off)]
			for i, v := range a[off:end] {
				binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(float32(v)))
			}
			if _, err := sw.Write(b); err != nil {
				return errors.Wrap(err, "writing payload")
			}
		}
	}
	if err := sw.Close(); err != nil {
		return errors.Wrap(err, "flushing payload")
	}
	return bw.Flush()
}

func load(fs afero.Fs, path string) (*Header, [][]float64, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, nil, &errs.IOError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	r := bufio.NewReader(f)
	h, err := readHeader(r)
	if err != nil {
		return nil, nil, &errs.IOError{Op: "load", Path: path, Err: err}
	}
	arrays, err := readArrays(snappy.NewReader(r), h)
	if err != nil {
		return nil, nil, &errs.IOError{Op: "load", Path: path, Err: err}
	}
	return h, arrays, nil
}

func readHeader(r io.Reader) (*Header, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, errors.Wrap(err, "reading magic")
	}
	if string(m[:]) != magic {
		return nil, errors.Errorf("not a bundle: bad magic %q", m[:])
	}
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, errors.Wrap(err, "reading header length")
	}
	if size > maxHeader {
		return nil, errors.Errorf("header length %d exceeds limit", size)
	}
	raw := make([]byte, size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "reading header")
	}
	var h Header
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&h); err != nil {
		return nil, errors.Wrap(err, "decoding header")
	}
	if h.Version != Version {
		return nil, errors.Errorf("unsupported bundle version %d", h.Version)
	}
	if _, err := elements(h.Shape); err != nil {
		return nil, err
	}
	return &h, nil
}

// elements returns the number of values in an array of the given shape,
// rejecting negative sizes and counts above maxElements.
func elements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, errors.Errorf("invalid shape %s", errs.FormatShape(shape))
		}
		if d > 0 && n > maxElements/d {
			return 0, errors.Errorf("shape %s exceeds %d values", errs.FormatShape(shape), maxElements)
		}
		n *= d
	}
	return n, nil
}

func readArrays(r io.Reader, h *Header) ([][]float64, error) {
	n, err := elements(h.Shape)
	if err != nil {
		return nil, err
	}
	arrays := make([][]float64, len(h.Arrays))
	buf := make([]byte, 4*chunk)
	for k, name := range h.Arrays {
		a := make([]float64, n)
		for off := 0; off < n; off += chunk {
			end := off + chunk
			if end > n {
				end = n
			}
			b := buf[:4*(end-off)]
			if _, err := io.ReadFull(r, b); err != nil {
				return nil, errors.Wrapf(err, "reading array %s", name)
			}
			for i := range a[off:end] {
				a[off+i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
			}
		}
		arrays[k] = a
	}

	// the payload must end exactly after the last array
	var extra [1]byte
	if m, err := r.Read(extra[:]); m > 0 || (err != nil && err != io.EOF) {
		if err == nil {
			err = errors.New("trailing data after arrays")
		}
		return nil, errors.Wrap(err, "checking payload length")
	}
	return arrays, nil
}
