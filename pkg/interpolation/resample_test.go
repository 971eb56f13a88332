package interpolation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpatch/pkg/volume"
)

// TestResample1DEndpoints checks that every order keeps the first and last
// samples of the line.
func TestResample1DEndpoints(t *testing.T) {
	src := []float64{3, 1, 4, 1, 5, 9, 2, 6}
	for _, order := range []Order{Nearest, Linear, Cubic} {
		dst := make([]float64, 3)
		Resample1D(dst, src, order)
		assert.Equal(t, src[0], dst[0], order.String())
		assert.Equal(t, src[len(src)-1], dst[2], order.String())
	}
}

// TestLinearSignalsAreReproduced verifies that linear and cubic resampling
// reproduce a ramp exactly, in both directions.
func TestLinearSignalsAreReproduced(t *testing.T) {
	src := make([]float64, 9)
	for i := range src {
		src[i] = 2*float64(i) + 1
	}

	for _, order := range []Order{Linear, Cubic} {
		up := make([]float64, 17)
		Resample1D(up, src, order)
		for i, v := range up {
			assert.InDelta(t, 1+float64(i), v, 1e-9, "%s up[%d]", order, i)
		}

		down := make([]float64, 5)
		Resample1D(down, src, order)
		for i, v := range down {
			assert.InDelta(t, 1+4*float64(i), v, 1e-9, "%s down[%d]", order, i)
		}
	}
}

func TestNearestPicksClosestSample(t *testing.T) {
	src := []float64{0, 10, 20, 30, 40}
	dst := make([]float64, 3)
	Resample1D(dst, src, Nearest)
	assert.Equal(t, []float64{0, 20, 40}, dst)
}

func TestConstantSignal(t *testing.T) {
	src := []float64{7, 7, 7, 7}
	for _, order := range []Order{Nearest, Linear, Cubic} {
		dst := make([]float64, 11)
		Resample1D(dst, src, order)
		for _, v := range dst {
			assert.InDelta(t, 7, v, 1e-12)
		}
	}
}

func TestResampleAxisShapes(t *testing.T) {
	v := volume.New(8, 3, 4)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}

	down, err := ResampleAxis(v, 0, 2, Nearest)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, down.Shape)
	// first plane survives untouched, last plane comes from z=7
	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			assert.Equal(t, v.At(0, y, x), down.At(0, y, x))
			assert.Equal(t, v.At(7, y, x), down.At(1, y, x))
		}
	}

	up, err := ResampleAxis(down, 0, 8, Linear)
	require.NoError(t, err)
	assert.Equal(t, v.Shape, up.Shape)

	same, err := ResampleAxis(v, 2, 4, Cubic)
	require.NoError(t, err)
	assert.Equal(t, v.Data, same.Data)
}

func TestResampleAxisErrors(t *testing.T) {
	v := volume.New(2, 2)
	_, err := ResampleAxis(v, 2, 4, Linear)
	assert.Error(t, err)
	_, err = ResampleAxis(v, 0, 0, Linear)
	assert.Error(t, err)
	_, err = ResampleAxis(v, 0, 3, Order(2))
	assert.Error(t, err)
}

func TestParseOrder(t *testing.T) {
	for _, o := range []int{0, 1, 3} {
		_, err := ParseOrder(o)
		assert.NoError(t, err)
	}
	_, err := ParseOrder(2)
	assert.Error(t, err)
}
