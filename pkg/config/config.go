// Package config provides configuration loading and management for volpatch.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Data locates the stack pairs
	Data struct {
		// BasePath is the directory containing the source and target directories
		BasePath string `yaml:"basePath"`

		// Archive optionally names a zip or tar(.gz) file; BasePath is then
		// resolved inside it
		Archive string `yaml:"archive,omitempty"`

		// SourceDirs hold the network inputs, relative to BasePath
		SourceDirs []string `yaml:"sourceDirs"`

		// TargetDir holds the supervised targets, relative to BasePath
		TargetDir string `yaml:"targetDir"`

		// Axes labels the stack dimensions, e.g. "ZYX"
		Axes string `yaml:"axes"`

		// Pattern selects the stack files by glob
		Pattern string `yaml:"pattern"`

		// CanonicalAxes transposes stacks into STCZYX order after loading
		CanonicalAxes bool `yaml:"canonicalAxes"`
	} `yaml:"data"`

	// Transforms are applied in order to every pair
	Transforms []Transform `yaml:"transforms"`

	// Patch sampling parameters
	Patches struct {
		// Shape has one entry per stack axis; 0 selects the full extent
		Shape []int `yaml:"shape"`

		// PerImage is the number of patches drawn from each pair
		PerImage int `yaml:"perImage"`

		// Seed makes runs reproducible
		Seed uint64 `yaml:"seed"`

		Foreground struct {
			Percentile float64 `yaml:"percentile"`
			Ratio      float64 `yaml:"ratio"`
			Strict     bool    `yaml:"strict"`
		} `yaml:"foreground"`

		Normalize struct {
			Enabled bool    `yaml:"enabled"`
			Low     float64 `yaml:"low"`
			High    float64 `yaml:"high"`
		} `yaml:"normalize"`
	} `yaml:"patches"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many stacks are processed in parallel
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// File is the bundle written by build
		File string `yaml:"file"`

		// PreviewDir receives PNG previews after a build when set
		PreviewDir string `yaml:"previewDir"`

		// PreviewCount and PreviewScale control the previews
		PreviewCount int `yaml:"previewCount"`
		PreviewScale int `yaml:"previewScale"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// Transform configures one anisotropic degradation.
type Transform struct {
	Subsample   float64 `yaml:"subsample"`
	Axis        string  `yaml:"axis"`
	YieldTarget string  `yaml:"yieldTarget"`

	// DownOrder and UpOrder default to 0 (nearest) and 1 (linear) when unset
	DownOrder *int `yaml:"downOrder,omitempty"`
	UpOrder   *int `yaml:"upOrder,omitempty"`

	PSF PSF `yaml:"psf"`

	PoissonNoise bool    `yaml:"poissonNoise"`
	GaussSigma   float64 `yaml:"gaussSigma"`
}

// PSF selects a blur kernel: either a volume file or a Gaussian with one
// sigma per spatial axis. Both empty means no blur.
type PSF struct {
	KernelFile string    `yaml:"kernelFile,omitempty"`
	Sigma      []float64 `yaml:"sigma,omitempty"`

	// Radius per axis; unset or negative entries use ceil(3 sigma)
	Radius []int `yaml:"radius,omitempty"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Data.BasePath = "data"
	cfg.Data.SourceDirs = []string{"GT"}
	cfg.Data.TargetDir = "GT"
	cfg.Data.Axes = "ZYX"
	cfg.Data.Pattern = "*"

	cfg.Transforms = []Transform{{
		Subsample:   4,
		Axis:        "Z",
		YieldTarget: "original",
	}}

	cfg.Patches.Shape = []int{16, 64, 64}
	cfg.Patches.PerImage = 100
	cfg.Patches.Seed = 42
	cfg.Patches.Foreground.Percentile = 99.9
	cfg.Patches.Foreground.Ratio = 0.4
	cfg.Patches.Normalize.Enabled = true
	cfg.Patches.Normalize.Low = 2
	cfg.Patches.Normalize.High = 99.8

	// Use all available cores by default
	cfg.Processing.NumCores = runtime.NumCPU()

	cfg.Output.File = "training.vpb"
	cfg.Output.PreviewCount = 8
	cfg.Output.PreviewScale = 4

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(fs afero.Fs, configPath string) (*Config, error) {
	cfg := DefaultConfig()

	exists, err := afero.Exists(fs, configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error checking config file")
	}
	if !exists {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, configPath)
	if err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config file")
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(fs afero.Fs, cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "error creating config directory")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "error marshaling config")
	}

	if err := afero.WriteFile(fs, configPath, data, 0644); err != nil {
		return errors.Wrap(err, "error writing config file")
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(fs afero.Fs, configPath string) error {
	return SaveConfig(fs, DefaultConfig(), configPath)
}
