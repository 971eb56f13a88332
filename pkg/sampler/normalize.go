package sampler

import (
	"fmt"

	"github.com/montanaflynn/stats"
)

// Normalization rescales patches by robust intensity percentiles so that
// patches from differently exposed stacks share a common range.
type Normalization struct {
	// Low and High are percentiles in [0, 100] mapped to 0 and 1
	Low  float64
	High float64
}

// DefaultNormalization maps the 2nd and 99.8th percentiles to 0 and 1.
func DefaultNormalization() Normalization {
	return Normalization{Low: 2, High: 99.8}
}

const normalizeEps = 1e-20

// Check validates the percentile bounds.
func (n Normalization) Check() error {
	if n.Low < 0 || n.High > 100 || n.Low >= n.High {
		return fmt.Errorf("normalization percentiles must satisfy 0 <= low < high <= 100, got %g and %g", n.Low, n.High)
	}
	return nil
}

// Apply normalizes every patch of size patchSize in data in place.
func (n Normalization) Apply(data []float64, patchSize int) error {
	if err := n.Check(); err != nil {
		return err
	}
	for off := 0; off+patchSize <= len(data); off += patchSize {
		if err := n.normalize(data[off : off+patchSize]); err != nil {
			return err
		}
	}
	return nil
}

func (n Normalization) normalize(patch []float64) error {
	lo, err := percentile(patch, n.Low)
	if err != nil {
		return err
	}
	hi, err := percentile(patch, n.High)
	if err != nil {
		return err
	}
	scale := 1 / (hi - lo + normalizeEps)
	for i, v := range patch {
		patch[i] = (v - lo) * scale
	}
	return nil
}

// percentile extends stats.Percentile to the closed range [0, 100] and to
// ranks that fall below the first sample.
func percentile(data []float64, p float64) (float64, error) {
	if p <= 0 {
		return stats.Min(data)
	}
	v, err := stats.Percentile(data, p)
	if err == stats.ErrBounds {
		return stats.Min(data)
	}
	return v, err
}
