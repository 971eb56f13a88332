// Package errs defines the error taxonomy shared by the patch-generation
// pipeline. Every failure surfaced by volpatch is one of these types, possibly
// wrapped in a StageError that names the stage and stack involved. Callers
// match them with errors.As.
package errs

import (
	"fmt"
	"strings"
)

// InvalidAxesError reports an axes label that cannot be parsed.
type InvalidAxesError struct {
	Label  string
	Reason string
}

func (e *InvalidAxesError) Error() string {
	return fmt.Sprintf("invalid axes %q: %s", e.Label, e.Reason)
}

// ShapeMismatchError reports an array whose shape disagrees with its axes or
// with the array it is paired with.
type ShapeMismatchError struct {
	Context  string
	Expected string
	Got      string
}

func (e *ShapeMismatchError) Error() string {
	msg := fmt.Sprintf("shape mismatch: expected %s, got %s", e.Expected, e.Got)
	if e.Context != "" {
		msg = e.Context + ": " + msg
	}
	return msg
}

// MissingPairError reports a target file with no same-named file in one of
// the source directories.
type MissingPairError struct {
	Name      string
	SourceDir string
}

func (e *MissingPairError) Error() string {
	return fmt.Sprintf("missing pair: %q has no matching file in source directory %q", e.Name, e.SourceDir)
}

// InvalidParameterError reports a configuration value outside its domain.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

// PatchTooLargeError reports a patch dimension larger than the stack.
type PatchTooLargeError struct {
	Axis  string
	Patch []int
	Stack []int
}

func (e *PatchTooLargeError) Error() string {
	return fmt.Sprintf("patch shape %s exceeds stack shape %s along axis %s",
		FormatShape(e.Patch), FormatShape(e.Stack), e.Axis)
}

// EmptyForegroundError is returned in strict sampling mode when no patch
// position touches the foreground mask.
type EmptyForegroundError struct {
	Threshold float64
}

func (e *EmptyForegroundError) Error() string {
	return fmt.Sprintf("no foreground voxels above threshold %g", e.Threshold)
}

// IOError wraps a failed read or write of a pipeline file.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Pipeline stages recorded by StageError.
const (
	StageValidate  = "validate"
	StageEnumerate = "enumerate"
	StageLoad      = "load"
	StageTransform = "transform"
	StageSample    = "sample"
	StagePersist   = "persist"
)

// StageError attributes a failure to a pipeline stage and, where known, the
// stack pair being processed.
type StageError struct {
	Stage string
	Stack string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stack == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Stack, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FormatShape renders a shape as "(16,128,128)".
func FormatShape(shape []int) string {
	parts := make([]string, len(shape))
	for i, n := range shape {
		parts[i] = fmt.Sprint(n)
	}
	return "(" + strings.Join(parts, ",") + ")"
}
