package source

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/afero/zipfs"

	"volpatch/pkg/errs"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// OpenArchive exposes the archive at p on fs as a read-only filesystem so a
// downloaded dataset can be used without unpacking it. Zip archives are read
// in place; tar and tar.gz archives are extracted into memory. The returned
// closer releases the archive.
func OpenArchive(fs afero.Fs, p string) (afero.Fs, io.Closer, error) {
	f, err := fs.Open(p)
	if err != nil {
		return nil, nil, &errs.IOError{Op: "open", Path: p, Err: err}
	}

	name := strings.ToLower(p)
	switch {
	case strings.HasSuffix(name, ".zip"):
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, &errs.IOError{Op: "stat", Path: p, Err: err}
		}
		r, err := zip.NewReader(f, info.Size())
		if err != nil {
			f.Close()
			return nil, nil, &errs.IOError{Op: "open", Path: p, Err: err}
		}
		return afero.NewReadOnlyFs(zipfs.New(r)), f, nil

	case strings.HasSuffix(name, ".tar"), strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		defer f.Close()
		var r io.Reader = f
		if !strings.HasSuffix(name, ".tar") {
			gz, err := gzip.NewReader(f)
			if err != nil {
				return nil, nil, &errs.IOError{Op: "open", Path: p, Err: errors.Wrap(err, "could not gunzip archive")}
			}
			defer gz.Close()
			r = gz
		}
		mem := afero.NewMemMapFs()
		if err := extractTar(r, mem); err != nil {
			return nil, nil, &errs.IOError{Op: "extract", Path: p, Err: err}
		}
		return afero.NewReadOnlyFs(mem), closerFunc(func() error { return nil }), nil

	default:
		f.Close()
		return nil, nil, &errs.IOError{Op: "open", Path: p, Err: errors.New("unsupported archive format")}
	}
}

func extractTar(r io.Reader, target afero.Fs) error {
	fs := afero.Afero{Fs: target}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}

		name := path.Clean(strings.TrimPrefix(hdr.Name, "/"))
		if name == "." || name == ".." || strings.HasPrefix(name, "../") {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := fs.MkdirAll(name, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := fs.MkdirAll(path.Dir(name), 0755); err != nil {
				return err
			}
			if err := fs.WriteReader(name, tr); err != nil {
				return errors.Wrapf(err, "extracting %s", hdr.Name)
			}
		}
	}
}
