package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"volpatch/pkg/bundle"
	"volpatch/pkg/config"
	"volpatch/pkg/degrade"
	"volpatch/pkg/interpolation"
	"volpatch/pkg/patchset"
	"volpatch/pkg/psf"
	"volpatch/pkg/sampler"
	"volpatch/pkg/source"
	"volpatch/pkg/volume"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newSource opens the configured dataset, reading from inside an archive
// when one is configured.
func newSource(fs afero.Fs, cfg *config.Config, logger *zap.Logger) (*source.Source, io.Closer, error) {
	dataFs := fs
	var closer io.Closer = nopCloser{}
	if cfg.Data.Archive != "" {
		archive, c, err := source.OpenArchive(fs, cfg.Data.Archive)
		if err != nil {
			return nil, nil, err
		}
		dataFs, closer = archive, c
	}
	src, err := source.New(dataFs, source.Options{
		BasePath:     cfg.Data.BasePath,
		SourceDirs:   cfg.Data.SourceDirs,
		TargetDir:    cfg.Data.TargetDir,
		Axes:         cfg.Data.Axes,
		Pattern:      cfg.Data.Pattern,
		Canonicalize: cfg.Data.CanonicalAxes,
		Logger:       logger,
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return src, closer, nil
}

// builderOptions converts the configuration into builder options.
func builderOptions(fs afero.Fs, cfg *config.Config, logger *zap.Logger) (patchset.Options, error) {
	var transforms []degrade.Transform
	for i, tc := range cfg.Transforms {
		t, err := newTransform(fs, tc, logger)
		if err != nil {
			return patchset.Options{}, errors.Wrapf(err, "transforms[%d]", i)
		}
		transforms = append(transforms, t)
	}

	opts := patchset.Options{
		Transforms: transforms,
		Spec: sampler.Spec{
			Shape: cfg.Patches.Shape,
			Count: cfg.Patches.PerImage,
			Foreground: sampler.Foreground{
				Percentile: cfg.Patches.Foreground.Percentile,
				Ratio:      cfg.Patches.Foreground.Ratio,
				Strict:     cfg.Patches.Foreground.Strict,
			},
		},
		Seed:    cfg.Patches.Seed,
		Workers: cfg.Processing.NumCores,
		Logger:  logger,
	}
	if cfg.Patches.Normalize.Enabled {
		opts.Normalize = &sampler.Normalization{Low: cfg.Patches.Normalize.Low, High: cfg.Patches.Normalize.High}
	}
	return opts, nil
}

func newTransform(fs afero.Fs, tc config.Transform, logger *zap.Logger) (degrade.Transform, error) {
	params := degrade.DefaultParams(tc.Subsample)
	if tc.Axis != "" {
		params.Axis = tc.Axis
	}
	if tc.YieldTarget != "" {
		params.YieldTarget = degrade.YieldTarget(tc.YieldTarget)
	}
	if tc.DownOrder != nil {
		params.DownOrder = interpolation.Order(*tc.DownOrder)
	}
	if tc.UpOrder != nil {
		params.UpOrder = interpolation.Order(*tc.UpOrder)
	}
	params.PoissonNoise = tc.PoissonNoise
	params.GaussSigma = tc.GaussSigma

	kernel, err := loadPSF(fs, tc.PSF)
	if err != nil {
		return nil, err
	}
	params.PSF = kernel
	return degrade.NewAnisotropic(params, logger)
}

// loadPSF returns the configured kernel, or nil when none is configured.
func loadPSF(fs afero.Fs, c config.PSF) (*volume.Volume, error) {
	switch {
	case c.KernelFile != "" && len(c.Sigma) > 0:
		return nil, fmt.Errorf("psf: kernelFile and sigma are mutually exclusive")
	case c.KernelFile != "":
		k, _, err := bundle.LoadVolume(fs, c.KernelFile)
		if err != nil {
			return nil, err
		}
		if err := psf.Normalize(k); err != nil {
			return nil, errors.Wrapf(err, "psf %s", c.KernelFile)
		}
		return k, nil
	case len(c.Sigma) > 0:
		return psf.Gaussian(c.Sigma, c.Radius)
	default:
		return nil, nil
	}
}
