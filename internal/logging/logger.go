// Package logging builds the zap logger used by the volpatch command.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Verbose enables debug output
	Verbose bool

	// JSON selects structured JSON lines instead of console output
	JSON bool
}

// New returns a logger that writes errors to stderr and everything else to
// stdout.
func New(opts Options) *zap.Logger {
	return NewWithWriters(opts, os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit destinations.
func NewWithWriters(opts Options, stdout, stderr io.Writer) *zap.Logger {
	minLevel := zapcore.InfoLevel
	if opts.Verbose {
		minLevel = zapcore.DebugLevel
	}
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= minLevel && lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stderr)), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stdout)), isInfoLevel),
	)
	logger := zap.New(core)
	if opts.Verbose {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger
}
