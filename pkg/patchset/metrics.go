package patchset

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"volpatch/pkg/volume"
)

// Summary compares the inputs of a training set with its targets. It
// measures how strongly the synthetic degradation changed the data.
type Summary struct {
	// Patches is the number of patch pairs
	Patches int

	// MeanX and MeanY are the mean intensities of inputs and targets
	MeanX float64
	MeanY float64

	// StdX and StdY are their standard deviations
	StdX float64
	StdY float64

	// RMSE is the root mean square difference between X and Y
	RMSE float64

	// PSNR in dB, relative to the intensity range of Y. +Inf when X == Y,
	// NaN when Y is constant and X differs from it.
	PSNR float64

	// SSIM is the structural similarity of X and Y, averaged over patches
	SSIM float64
}

// Summarize computes quality statistics for ts.
func Summarize(ts *volume.TrainingSet) Summary {
	s := Summary{Patches: ts.Count()}
	if len(ts.X) == 0 || len(ts.X) != len(ts.Y) {
		return s
	}

	s.MeanX, s.StdX = stat.MeanStdDev(ts.X, nil)
	s.MeanY, s.StdY = stat.MeanStdDev(ts.Y, nil)
	s.RMSE = rmse(ts.X, ts.Y)

	dataRange := floats.Max(ts.Y) - floats.Min(ts.Y)
	switch {
	case s.RMSE == 0:
		s.PSNR = math.Inf(1)
	case dataRange > 0:
		s.PSNR = 20 * math.Log10(dataRange/s.RMSE)
	default:
		s.PSNR = math.NaN()
	}

	if dataRange == 0 {
		dataRange = 1
	}
	ssim := make([]float64, s.Patches)
	for i := range ssim {
		x, y := ts.Patch(i)
		ssim[i] = structuralSimilarity(x, y, dataRange)
	}
	s.SSIM = stat.Mean(ssim, nil)
	return s
}

// rmse computes the root mean square error
func rmse(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n == 0 {
		return 0
	}
	return floats.Distance(a, b, 2) / math.Sqrt(float64(n))
}

// structuralSimilarity computes a single-window SSIM over the whole patch
// with dynamic range L.
func structuralSimilarity(x, y []float64, L float64) float64 {
	const k1 = 0.01
	const k2 = 0.03

	c1 := (k1 * L) * (k1 * L)
	c2 := (k2 * L) * (k2 * L)

	if len(x) != len(y) || len(x) < 2 {
		return 0
	}

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	sigmaX := stat.Variance(x, nil)
	sigmaY := stat.Variance(y, nil)
	sigmaXY := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*sigmaXY + c2)
	den := (muX*muX + muY*muY + c1) * (sigmaX + sigmaY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}
