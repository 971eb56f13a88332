// Package patchset builds a training set from a collection of stack pairs.
//
// Building runs in stages. Parameters are validated against the stack axes
// first, then every pair is enumerated so that missing files surface before
// any array is read. Each stack is then loaded, transformed and sampled, and
// its patches are written to the region of the output reserved for it.
// Stacks may be processed concurrently: because every stack has its own
// random source and output region, the result does not depend on the number
// of workers.
package patchset

import (
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"volpatch/pkg/axes"
	"volpatch/pkg/degrade"
	"volpatch/pkg/errs"
	"volpatch/pkg/sampler"
	"volpatch/pkg/source"
	"volpatch/pkg/volume"
)

// StackSource supplies the pairs to build from. *source.Source implements it.
type StackSource interface {
	// Axes labels every pair returned by Load
	Axes() axes.Axes

	// Names enumerates the pairs without reading them
	Names() ([]source.PairRef, error)

	// Load reads one pair
	Load(ref source.PairRef) (volume.StackPair, error)
}

// Options configures a Builder.
type Options struct {
	// Transforms run in order on every pair before sampling
	Transforms []degrade.Transform

	// Spec selects patch shape, count and foreground filter
	Spec sampler.Spec

	// Normalize rescales every patch when non-nil
	Normalize *sampler.Normalization

	// Seed makes the run reproducible
	Seed uint64

	// Workers is the number of stacks processed concurrently; zero means
	// one per CPU
	Workers int

	// Logger may be nil
	Logger *zap.Logger
}

// Builder produces training sets.
type Builder struct {
	opts   Options
	logger *zap.Logger
}

// NewBuilder returns a Builder for opts.
func NewBuilder(opts Options) *Builder {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{opts: opts, logger: logger}
}

// stackResult carries the patches of one stack back to the collector.
type stackResult struct {
	index int
	res   *sampler.Result
	err   error
}

// Build runs the pipeline over every pair of src. Any failure aborts the
// run and is returned as a *errs.StageError; no partial set is returned.
func (b *Builder) Build(src StackSource) (*volume.TrainingSet, error) {
	start := time.Now()
	a := src.Axes()
	if err := b.validate(a); err != nil {
		return nil, &errs.StageError{Stage: errs.StageValidate, Err: err}
	}

	refs, err := src.Names()
	if err != nil {
		return nil, &errs.StageError{Stage: errs.StageEnumerate, Err: err}
	}
	if len(refs) == 0 {
		return nil, &errs.StageError{Stage: errs.StageEnumerate, Err: errors.New("no stack pairs found")}
	}
	names := make([]string, len(refs))
	for k, ref := range refs {
		names[k] = ref.Name()
	}

	workers := b.opts.Workers
	if workers > len(refs) {
		workers = len(refs)
	}
	b.logger.Info("building training set",
		zap.Int("stacks", len(refs)),
		zap.Int("perImage", b.opts.Spec.Count),
		zap.String("axes", a.String()),
		zap.Int("workers", workers))

	jobs := make(chan int)
	results := make(chan stackResult)
	done := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				res, err := b.processStack(src, refs[k], k)
				results <- stackResult{index: k, res: res, err: err}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for k := range refs {
			select {
			case jobs <- k:
			case <-done:
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	// Stacks are dispatched in index order, so every stack before a failing
	// one still reports and the lowest failing index is returned.
	var ts *volume.TrainingSet
	var firstErr error
	failed := len(refs)
	completed := 0
	for r := range results {
		completed++
		if r.err == nil && firstErr == nil {
			ts, r.err = b.store(ts, names, a, r)
		}
		if r.err != nil {
			if firstErr == nil {
				close(done)
			}
			if r.index < failed {
				firstErr, failed = r.err, r.index
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		b.logger.Debug("processed stack",
			zap.String("stack", names[r.index]),
			zap.Int("candidates", r.res.Candidates),
			zap.Float64("threshold", r.res.Threshold),
			zap.Float64("progress", float64(completed)/float64(len(refs))))
	}
	if firstErr != nil {
		return nil, firstErr
	}

	b.logger.Info("built training set",
		zap.String("shape", errs.FormatShape(ts.Shape)),
		zap.String("axes", ts.Axes),
		zap.String("size", humanize.Bytes(uint64(2*4*len(ts.X)))),
		zap.Duration("elapsed", time.Since(start)))
	return ts, nil
}

func (b *Builder) validate(a axes.Axes) error {
	if err := b.opts.Spec.Check(a); err != nil {
		return err
	}
	for _, t := range b.opts.Transforms {
		if err := t.Validate(a); err != nil {
			return errors.Wrapf(err, "transform %s", t.Name())
		}
	}
	if b.opts.Normalize != nil {
		if err := b.opts.Normalize.Check(); err != nil {
			return &errs.InvalidParameterError{Param: "normalization", Reason: err.Error()}
		}
	}
	return nil
}

// processStack loads, transforms and samples stack k.
func (b *Builder) processStack(src StackSource, ref source.PairRef, k int) (*sampler.Result, error) {
	name := ref.Name()
	pair, err := src.Load(ref)
	if err != nil {
		return nil, &errs.StageError{Stage: errs.StageLoad, Stack: name, Err: err}
	}

	rng := rand.NewSource(StackSeed(b.opts.Seed, k))
	for _, t := range b.opts.Transforms {
		pair, err = t.Apply(pair, rng)
		if err != nil {
			return nil, &errs.StageError{Stage: errs.StageTransform, Stack: name, Err: errors.Wrapf(err, "transform %s", t.Name())}
		}
	}

	res, err := sampler.Sample(pair, b.opts.Spec, rng)
	if err != nil {
		return nil, &errs.StageError{Stage: errs.StageSample, Stack: name, Err: err}
	}
	if b.opts.Normalize != nil {
		size := volume.Size(res.Shape)
		if err := b.opts.Normalize.Apply(res.X, size); err != nil {
			return nil, &errs.StageError{Stage: errs.StageSample, Stack: name, Err: err}
		}
		if err := b.opts.Normalize.Apply(res.Y, size); err != nil {
			return nil, &errs.StageError{Stage: errs.StageSample, Stack: name, Err: err}
		}
	}
	return res, nil
}

// store copies the patches of r into the region reserved for its stack,
// allocating ts from the first result. All stacks must yield the same
// patch shape.
func (b *Builder) store(ts *volume.TrainingSet, names []string, a axes.Axes, r stackResult) (*volume.TrainingSet, error) {
	if ts == nil {
		ts = volume.NewTrainingSet(names, b.opts.Spec.Count, r.res.Shape, a.String())
	} else if !volume.SameShape(ts.PatchShape(), r.res.Shape) {
		return nil, &errs.StageError{
			Stage: errs.StageSample,
			Stack: names[r.index],
			Err: &errs.ShapeMismatchError{
				Context:  "patch shape",
				Expected: errs.FormatShape(ts.PatchShape()),
				Got:      errs.FormatShape(r.res.Shape),
			},
		}
	}
	x, y := ts.Region(r.index)
	copy(x, r.res.X)
	copy(y, r.res.Y)
	return ts, nil
}

// StackSeed derives the seed of stack k from the run seed.
func StackSeed(seed uint64, k int) uint64 {
	// splitmix64 finalizer
	z := seed + uint64(k+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
