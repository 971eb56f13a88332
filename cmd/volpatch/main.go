package main

import (
	"fmt"
	"math"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"volpatch/internal/logging"
	"volpatch/pkg/bundle"
	"volpatch/pkg/config"
	"volpatch/pkg/errs"
	"volpatch/pkg/patchset"
	"volpatch/pkg/visualization"
)

type buildCmd struct {
	Config  string  `arg:"-c,--config" default:"volpatch.yaml" help:"configuration file"`
	Workers int     `arg:"-w,--workers" help:"stacks processed in parallel (default: processing.numCores)"`
	Seed    *uint64 `arg:"--seed" help:"override patches.seed"`
	Output  string  `arg:"-o,--output" help:"override output.file"`
}

type initCmd struct {
	Path  string `arg:"positional" default:"volpatch.yaml" help:"where to write the configuration"`
	Force bool   `arg:"-f,--force" help:"overwrite an existing file"`
}

type inspectCmd struct {
	Bundle string `arg:"positional,required" help:"training set bundle"`
}

type previewCmd struct {
	Bundle string `arg:"positional,required" help:"training set bundle"`
	Dir    string `arg:"-d,--dir,required" help:"output directory for PNG previews"`
	Count  int    `arg:"-n,--count" default:"8" help:"number of patches to render"`
	Scale  int    `arg:"-s,--scale" default:"4" help:"nearest-neighbour upscaling factor"`
}

type args struct {
	Build   *buildCmd   `arg:"subcommand:build" help:"generate a training set"`
	Init    *initCmd    `arg:"subcommand:init" help:"write the default configuration"`
	Inspect *inspectCmd `arg:"subcommand:inspect" help:"summarize a training set"`
	Preview *previewCmd `arg:"subcommand:preview" help:"export PNG previews of patches"`

	Verbose  bool `arg:"-v,--verbose" help:"debug logging"`
	JSONLogs bool `arg:"--json-logs" help:"log JSON lines"`
}

func (args) Description() string {
	return "volpatch generates paired training patches from volumetric image stacks"
}

func main() {
	var a args
	p := arg.MustParse(&a)
	if p.Subcommand() == nil {
		p.Fail("missing subcommand")
	}

	fs := afero.NewOsFs()
	var err error
	switch {
	case a.Build != nil:
		err = runBuild(fs, a, a.Build)
	case a.Init != nil:
		err = runInit(fs, a.Init)
	case a.Inspect != nil:
		err = runInspect(fs, a.Inspect)
	case a.Preview != nil:
		err = runPreview(fs, a, a.Preview)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runBuild(fs afero.Fs, a args, cmd *buildCmd) error {
	cfg, err := config.LoadConfig(fs, cmd.Config)
	if err != nil {
		return err
	}
	if cmd.Workers > 0 {
		cfg.Processing.NumCores = cmd.Workers
	}
	if cmd.Seed != nil {
		cfg.Patches.Seed = *cmd.Seed
	}
	if cmd.Output != "" {
		cfg.Output.File = cmd.Output
	}

	logger := logging.New(logging.Options{Verbose: a.Verbose || cfg.Output.Verbose, JSON: a.JSONLogs})
	defer logger.Sync()

	src, closer, err := newSource(fs, cfg, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	opts, err := builderOptions(fs, cfg, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	ts, err := patchset.NewBuilder(opts).Build(src)
	if err != nil {
		return err
	}
	logSummary(logger, patchset.Summarize(ts))

	if err := bundle.SaveTrainingSet(fs, cfg.Output.File, ts); err != nil {
		return &errs.StageError{Stage: errs.StagePersist, Err: err}
	}
	fields := []zap.Field{
		zap.String("file", cfg.Output.File),
		zap.Duration("elapsed", time.Since(start)),
	}
	if info, err := fs.Stat(cfg.Output.File); err == nil {
		fields = append(fields, zap.String("size", humanize.Bytes(uint64(info.Size()))))
	}
	logger.Info("saved training set", fields...)

	if cfg.Output.PreviewDir != "" {
		viewer, err := visualization.NewViewer(ts)
		if err != nil {
			return err
		}
		paths, err := viewer.SavePreviews(fs, cfg.Output.PreviewDir, cfg.Output.PreviewCount, cfg.Output.PreviewScale)
		if err != nil {
			return err
		}
		logger.Info("saved previews", zap.String("dir", cfg.Output.PreviewDir), zap.Int("count", len(paths)))
	}
	return nil
}

func runInit(fs afero.Fs, cmd *initCmd) error {
	exists, err := afero.Exists(fs, cmd.Path)
	if err != nil {
		return err
	}
	if exists && !cmd.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cmd.Path)
	}
	if err := config.CreateDefaultConfigFile(fs, cmd.Path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", cmd.Path)
	return nil
}

func runInspect(fs afero.Fs, cmd *inspectCmd) error {
	ts, err := bundle.LoadTrainingSet(fs, cmd.Bundle)
	if err != nil {
		return err
	}
	info, err := fs.Stat(cmd.Bundle)
	if err != nil {
		return err
	}
	s := patchset.Summarize(ts)

	fmt.Printf("Bundle:      %s (%s)\n", cmd.Bundle, humanize.Bytes(uint64(info.Size())))
	fmt.Printf("Shape:       %s\n", errs.FormatShape(ts.Shape))
	fmt.Printf("Axes:        %s\n", ts.Axes)
	fmt.Printf("Stacks:      %d (%d patches each)\n", len(ts.Stacks), ts.PerImage)
	for k, name := range ts.Stacks {
		from, to, _ := ts.StackRange(k)
		fmt.Printf("  [%d,%d) %s\n", from, to, name)
	}
	fmt.Printf("\nQuality of the synthetic input (X) against the target (Y):\n")
	fmt.Printf("Mean X / Y:  %.4f / %.4f\n", s.MeanX, s.MeanY)
	fmt.Printf("Std X / Y:   %.4f / %.4f\n", s.StdX, s.StdY)
	fmt.Printf("RMSE:        %.6f\n", s.RMSE)
	if math.IsNaN(s.PSNR) {
		fmt.Printf("PSNR:        n/a (constant target)\n")
	} else {
		fmt.Printf("PSNR:        %.2f dB\n", s.PSNR)
	}
	fmt.Printf("SSIM:        %.4f\n", s.SSIM)
	return nil
}

func runPreview(fs afero.Fs, a args, cmd *previewCmd) error {
	logger := logging.New(logging.Options{Verbose: a.Verbose, JSON: a.JSONLogs})
	defer logger.Sync()

	ts, err := bundle.LoadTrainingSet(fs, cmd.Bundle)
	if err != nil {
		return err
	}
	viewer, err := visualization.NewViewer(ts)
	if err != nil {
		return err
	}
	paths, err := viewer.SavePreviews(fs, cmd.Dir, cmd.Count, cmd.Scale)
	if err != nil {
		return err
	}
	logger.Info("saved previews", zap.String("dir", cmd.Dir), zap.Int("count", len(paths)))
	return nil
}

func logSummary(logger *zap.Logger, s patchset.Summary) {
	logger.Info("training set quality",
		zap.Int("patches", s.Patches),
		zap.Float64("rmse", s.RMSE),
		zap.Float64("psnr", s.PSNR),
		zap.Float64("ssim", s.SSIM),
		zap.Float64("meanX", s.MeanX),
		zap.Float64("meanY", s.MeanY))
}
