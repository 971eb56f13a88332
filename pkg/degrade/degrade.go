// Package degrade synthesizes low-quality inputs from high-quality stacks by
// simulating an anisotropic acquisition: optical blur with a point-spread
// function, reduced sampling along one axis, and resampling back onto the
// original grid. Optional noise turns the result into a denoising task.
package degrade

import (
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"volpatch/pkg/axes"
	"volpatch/pkg/errs"
	"volpatch/pkg/interpolation"
	"volpatch/pkg/psf"
	"volpatch/pkg/volume"
)

// YieldTarget selects which volume becomes the supervised target.
type YieldTarget string

const (
	// YieldOriginal keeps the untouched input as target: the model learns to
	// undo blur, subsampling and noise together.
	YieldOriginal YieldTarget = "original"

	// YieldDegraded uses the blurred, subsampled and re-upsampled volume as
	// target: the model only learns to remove the added noise.
	YieldDegraded YieldTarget = "degraded"
)

// Transform is one stage applied to every stack pair before sampling.
type Transform interface {
	// Name describes the transform in logs
	Name() string

	// Validate checks the transform against the axes of the stacks it will
	// receive. It runs before any file is read.
	Validate(a axes.Axes) error

	// Apply maps one pair to the next. src supplies randomness for
	// stochastic transforms; deterministic transforms ignore it.
	Apply(pair volume.StackPair, src rand.Source) (volume.StackPair, error)
}

// Params configures an anisotropic distortion.
type Params struct {
	// Subsample is the factor by which resolution along Axis is reduced; it
	// need not be an integer
	Subsample float64

	// Axis is the symbol of the degraded axis, usually "Z"
	Axis string

	// PSF is an optional blur kernel with one dimension per spatial axis of
	// the stacks, in their array order
	PSF *volume.Volume

	// YieldTarget selects the supervised target; empty means YieldOriginal
	YieldTarget YieldTarget

	// DownOrder and UpOrder are the interpolation orders used to shrink and
	// re-expand the axis
	DownOrder interpolation.Order
	UpOrder   interpolation.Order

	// PoissonNoise replaces every source voxel by a Poisson sample with that
	// mean
	PoissonNoise bool

	// GaussSigma adds zero-mean Gaussian noise to the source when positive
	GaussSigma float64
}

// DefaultParams returns nearest-neighbour downsampling and linear
// re-upsampling along Z, with the original stack as target.
func DefaultParams(subsample float64) Params {
	return Params{
		Subsample:   subsample,
		Axis:        "Z",
		YieldTarget: YieldOriginal,
		DownOrder:   interpolation.Nearest,
		UpOrder:     interpolation.Linear,
	}
}

// Anisotropic implements Transform for simulated anisotropic acquisition.
type Anisotropic struct {
	params Params
	axis   axes.Symbol
	logger *zap.Logger
}

// NewAnisotropic validates params and returns the transform. logger may be
// nil.
func NewAnisotropic(params Params, logger *zap.Logger) (*Anisotropic, error) {
	if params.Subsample <= 0 || math.IsNaN(params.Subsample) || math.IsInf(params.Subsample, 0) {
		return nil, &errs.InvalidParameterError{Param: "subsample", Reason: fmt.Sprintf("must be positive, got %g", params.Subsample)}
	}
	sym, err := axes.ParseSymbol(params.Axis)
	if err != nil {
		return nil, &errs.InvalidParameterError{Param: "subsample axis", Reason: err.Error()}
	}
	if sym == axes.Sample {
		return nil, &errs.InvalidParameterError{Param: "subsample axis", Reason: "cannot degrade the sample axis"}
	}
	switch params.YieldTarget {
	case "":
		params.YieldTarget = YieldOriginal
	case YieldOriginal, YieldDegraded:
	default:
		return nil, &errs.InvalidParameterError{Param: "yield target", Reason: fmt.Sprintf("unknown value %q", params.YieldTarget)}
	}
	for name, o := range map[string]interpolation.Order{"down order": params.DownOrder, "up order": params.UpOrder} {
		if _, err := interpolation.ParseOrder(int(o)); err != nil {
			return nil, &errs.InvalidParameterError{Param: name, Reason: err.Error()}
		}
	}
	if params.GaussSigma < 0 || math.IsNaN(params.GaussSigma) {
		return nil, &errs.InvalidParameterError{Param: "gauss sigma", Reason: fmt.Sprintf("must be non-negative, got %g", params.GaussSigma)}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Anisotropic{params: params, axis: sym, logger: logger}, nil
}

// Name implements Transform.
func (t *Anisotropic) Name() string {
	return fmt.Sprintf("anisotropic(subsample=%g, axis=%s, psf=%t, target=%s)",
		t.params.Subsample, t.axis, t.params.PSF != nil, t.params.YieldTarget)
}

// Params returns the validated parameters.
func (t *Anisotropic) Params() Params { return t.params }

// Validate implements Transform.
func (t *Anisotropic) Validate(a axes.Axes) error {
	if !a.Has(t.axis) {
		return &errs.InvalidParameterError{
			Param:  "subsample axis",
			Reason: fmt.Sprintf("axis %s not present in stack axes %s", t.axis, a),
		}
	}
	if t.params.PSF != nil && t.params.PSF.Rank() != len(a.Spatial()) {
		return &errs.InvalidParameterError{
			Param: "psf",
			Reason: fmt.Sprintf("kernel rank %d does not match %d spatial axes of %s",
				t.params.PSF.Rank(), len(a.Spatial()), a),
		}
	}
	return nil
}

// Apply implements Transform. The source of the incoming pair is the
// high-quality input; the incoming target is replaced according to
// YieldTarget.
func (t *Anisotropic) Apply(pair volume.StackPair, src rand.Source) (volume.StackPair, error) {
	if err := t.Validate(pair.Axes); err != nil {
		return volume.StackPair{}, err
	}
	in := pair.Source
	axis := pair.Axes.Index(t.axis)

	degraded := in
	if t.params.PSF != nil {
		blurred, err := psf.Convolve(in, pair.Axes.Spatial(), t.params.PSF)
		if err != nil {
			return volume.StackPair{}, &errs.InvalidParameterError{Param: "psf", Reason: err.Error()}
		}
		degraded = blurred
	}

	if t.params.Subsample != 1 {
		n := in.Shape[axis]
		m := int(math.Round(float64(n) / t.params.Subsample))
		if m < 1 {
			m = 1
		}
		down, err := interpolation.ResampleAxis(degraded, axis, m, t.params.DownOrder)
		if err != nil {
			return volume.StackPair{}, err
		}
		up, err := interpolation.ResampleAxis(down, axis, n, t.params.UpOrder)
		if err != nil {
			return volume.StackPair{}, err
		}
		t.logger.Debug("resampled axis",
			zap.String("stack", pair.Name),
			zap.String("axis", t.axis.String()),
			zap.Int("from", n),
			zap.Int("reduced", m))
		degraded = up
	}

	var target *volume.Volume
	switch t.params.YieldTarget {
	case YieldDegraded:
		target = degraded
		if degraded == in {
			target = in.Clone()
		}
	default:
		target = in
	}

	source := degraded
	if t.params.PoissonNoise || t.params.GaussSigma > 0 {
		if src == nil {
			return volume.StackPair{}, &errs.InvalidParameterError{Param: "noise", Reason: "no random source supplied"}
		}
		source = t.addNoise(degraded, src)
	}

	return volume.StackPair{
		Name:   pair.Name,
		Source: source,
		Target: target,
		Axes:   pair.Axes,
	}, nil
}

// addNoise returns a noisy copy of v.
func (t *Anisotropic) addNoise(v *volume.Volume, src rand.Source) *volume.Volume {
	out := v.Clone()
	if t.params.PoissonNoise {
		for i, lambda := range out.Data {
			if lambda <= 0 {
				out.Data[i] = 0
				continue
			}
			out.Data[i] = distuv.Poisson{Lambda: lambda, Src: src}.Rand()
		}
	}
	if t.params.GaussSigma > 0 {
		normal := distuv.Normal{Mu: 0, Sigma: t.params.GaussSigma, Src: src}
		for i := range out.Data {
			out.Data[i] += normal.Rand()
		}
	}
	return out
}
