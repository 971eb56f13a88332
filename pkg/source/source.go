// Package source enumerates and loads matched (source, target) stack pairs
// from a directory tree.
//
// A dataset is laid out as one target directory and one or more source
// directories below a common base path. Every entry of the target directory
// that matches the pattern must have an entry of the same name in each source
// directory; each such (source dir, name) combination is one pair.
package source

import (
	"fmt"
	"iter"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"volpatch/pkg/axes"
	"volpatch/pkg/errs"
	"volpatch/pkg/volume"
)

// Options configures a Source.
type Options struct {
	// BasePath is the directory containing SourceDirs and TargetDir
	BasePath string

	// SourceDirs are the directories holding the network inputs
	SourceDirs []string

	// TargetDir holds the supervised targets
	TargetDir string

	// Axes labels the dimensions of every stack, e.g. "ZYX"
	Axes string

	// Pattern is a glob matched against entry names; empty means "*"
	Pattern string

	// Canonicalize transposes stacks into STCZYX order after loading
	Canonicalize bool

	// Logger may be nil
	Logger *zap.Logger
}

// PairRef names one pair without loading it.
type PairRef struct {
	// File is the entry name shared by source and target
	File string

	// SourceDir is the source directory the input is read from
	SourceDir string
}

// Name returns "sourceDir/file".
func (r PairRef) Name() string {
	return path.Join(r.SourceDir, r.File)
}

// Source reads stack pairs from a filesystem.
type Source struct {
	fs     afero.Fs
	opts   Options
	axes   axes.Axes
	logger *zap.Logger
}

// New validates opts and returns a Source. No file is read.
func New(fs afero.Fs, opts Options) (*Source, error) {
	a, err := axes.Parse(opts.Axes)
	if err != nil {
		return nil, err
	}
	if a.Has(axes.Sample) {
		return nil, &errs.InvalidAxesError{Label: opts.Axes, Reason: "stacks cannot have a sample axis"}
	}
	if len(opts.SourceDirs) == 0 {
		return nil, &errs.InvalidParameterError{Param: "source dirs", Reason: "at least one source directory is required"}
	}
	if opts.TargetDir == "" {
		return nil, &errs.InvalidParameterError{Param: "target dir", Reason: "must not be empty"}
	}
	if opts.Pattern == "" {
		opts.Pattern = "*"
	}
	if _, err := path.Match(opts.Pattern, ""); err != nil {
		return nil, &errs.InvalidParameterError{Param: "pattern", Reason: err.Error()}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{fs: fs, opts: opts, axes: a, logger: logger}, nil
}

// Axes returns the axes of the stacks produced by Load. With Canonicalize
// these are in STCZYX order.
func (s *Source) Axes() axes.Axes {
	if s.opts.Canonicalize {
		return s.axes.Canonical()
	}
	return s.axes
}

// Names lists every pair, grouped by source directory in the configured
// order and sorted by name within each group. It fails with
// MissingPairError if a target has no counterpart in a source directory.
func (s *Source) Names() ([]PairRef, error) {
	targets, err := s.list(s.opts.TargetDir)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, &errs.IOError{
			Op:   "list",
			Path: s.dir(s.opts.TargetDir),
			Err:  fmt.Errorf("no entries match %q", s.opts.Pattern),
		}
	}

	refs := make([]PairRef, 0, len(targets)*len(s.opts.SourceDirs))
	for _, dir := range s.opts.SourceDirs {
		for _, name := range targets {
			ok, err := afero.Exists(s.fs, path.Join(s.dir(dir), name))
			if err != nil {
				return nil, &errs.IOError{Op: "stat", Path: path.Join(s.dir(dir), name), Err: err}
			}
			if !ok {
				return nil, &errs.MissingPairError{Name: name, SourceDir: dir}
			}
			refs = append(refs, PairRef{File: name, SourceDir: dir})
		}
	}
	s.logger.Debug("enumerated pairs",
		zap.Int("targets", len(targets)),
		zap.Int("sourceDirs", len(s.opts.SourceDirs)),
		zap.Int("pairs", len(refs)))
	return refs, nil
}

// Load reads both stacks of ref and checks them against the axes.
func (s *Source) Load(ref PairRef) (volume.StackPair, error) {
	src, err := ReadStack(s.fs, path.Join(s.dir(ref.SourceDir), ref.File))
	if err != nil {
		return volume.StackPair{}, err
	}
	tgt, err := ReadStack(s.fs, path.Join(s.dir(s.opts.TargetDir), ref.File))
	if err != nil {
		return volume.StackPair{}, err
	}
	for _, v := range []*volume.Volume{src, tgt} {
		if err := axes.Validate(s.axes, v.Shape); err != nil {
			var mismatch *errs.ShapeMismatchError
			if errors.As(err, &mismatch) {
				mismatch.Context = ref.Name()
				if v.Rank() == 2 && len(s.axes) > 2 && isPlaneFile(ref.File) {
					mismatch.Context += " (image files load as a single 2D plane and only the first TIFF page is read; " +
						"store stacks as slice directories or " + VolumeExt + " files)"
				}
			}
			return volume.StackPair{}, err
		}
	}

	pair := volume.StackPair{Name: ref.Name(), Source: src, Target: tgt, Axes: s.axes}
	if s.opts.Canonicalize {
		if pair, err = canonicalize(pair); err != nil {
			return volume.StackPair{}, err
		}
	}
	s.logger.Debug("loaded pair",
		zap.String("pair", pair.Name),
		zap.String("shape", errs.FormatShape(pair.Target.Shape)))
	return pair, nil
}

// Pairs returns a lazy sequence over every pair. Enumeration errors are
// yielded once and end the sequence; each iteration re-reads the files.
func (s *Source) Pairs() iter.Seq2[volume.StackPair, error] {
	return func(yield func(volume.StackPair, error) bool) {
		refs, err := s.Names()
		if err != nil {
			yield(volume.StackPair{}, err)
			return
		}
		for _, ref := range refs {
			pair, err := s.Load(ref)
			if !yield(pair, err) || err != nil {
				return
			}
		}
	}
}

func (s *Source) dir(name string) string {
	return path.Join(s.opts.BasePath, name)
}

// list returns the sorted, non-hidden entries of dir matching the pattern.
func (s *Source) list(dir string) ([]string, error) {
	full := s.dir(dir)
	infos, err := afero.ReadDir(s.fs, full)
	if err != nil {
		return nil, &errs.IOError{Op: "list", Path: full, Err: err}
	}
	var names []string
	for _, info := range infos {
		name := info.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if ok, _ := path.Match(s.opts.Pattern, name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func canonicalize(pair volume.StackPair) (volume.StackPair, error) {
	to := pair.Axes.Canonical()
	perm, err := pair.Axes.Permutation(to)
	if err != nil {
		return volume.StackPair{}, err
	}
	src, err := pair.Source.Transpose(perm)
	if err != nil {
		return volume.StackPair{}, err
	}
	tgt, err := pair.Target.Transpose(perm)
	if err != nil {
		return volume.StackPair{}, err
	}
	return volume.StackPair{Name: pair.Name, Source: src, Target: tgt, Axes: to}, nil
}
