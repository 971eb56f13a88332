package volume

import (
	"volpatch/pkg/axes"
)

// StackPair is one matched (source, target) pair as it moves through the
// pipeline. After all transforms have run, Source and Target must share a
// shape; before that the source may be shorter along a degraded axis.
type StackPair struct {
	// Name identifies the pair, normally "sourceDir/file"
	Name string

	// Source is the network input, typically the low-quality stack
	Source *Volume

	// Target is the supervised target
	Target *Volume

	// Axes labels the dimensions of both volumes
	Axes axes.Axes
}
