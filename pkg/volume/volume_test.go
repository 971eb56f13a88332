package volume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ramp fills a volume with its own flat indices.
func ramp(shape ...int) *Volume {
	v := New(shape...)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

func TestStridesAndOffset(t *testing.T) {
	v := ramp(4, 3, 2)
	assert.Equal(t, []int{6, 2, 1}, Strides(v.Shape))
	assert.Equal(t, 2*6+1*2+1, v.Offset(2, 1, 1))
	assert.Equal(t, float64(15), v.At(2, 1, 1))

	v.Set(-1, 0, 0, 1)
	assert.Equal(t, float64(-1), v.Data[1])
}

func TestFromDataChecksLength(t *testing.T) {
	_, err := FromData(make([]float64, 5), 2, 3)
	assert.Error(t, err)

	v, err := FromData(make([]float64, 6), 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, v.Shape)
}

func TestForEachLineCoversEveryElementOnce(t *testing.T) {
	shape := []int{3, 4, 5}
	for axis := range shape {
		seen := make([]int, Size(shape))
		lines := 0
		ForEachLine(shape, axis, func(base, stride, n int) {
			lines++
			assert.Equal(t, shape[axis], n)
			for i := 0; i < n; i++ {
				seen[base+i*stride]++
			}
		})
		assert.Equal(t, Size(shape)/shape[axis], lines, "axis %d", axis)
		for i, c := range seen {
			assert.Equal(t, 1, c, "axis %d element %d", axis, i)
		}
	}
}

func TestWindow(t *testing.T) {
	v := ramp(4, 5, 6)
	w, err := v.Window([]int{1, 2, 3}, []int{2, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, w.Shape)

	for z := 0; z < 2; z++ {
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				assert.Equal(t, v.At(1+z, 2+y, 3+x), w.At(z, y, x))
			}
		}
	}

	_, err = v.Window([]int{3, 0, 0}, []int{2, 1, 1})
	assert.Error(t, err)
}

func TestTranspose(t *testing.T) {
	v := ramp(2, 3, 4)
	tr, err := v.Transpose([]int{2, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 2, 3}, tr.Shape)
	for a := 0; a < 4; a++ {
		for b := 0; b < 2; b++ {
			for c := 0; c < 3; c++ {
				assert.Equal(t, v.At(b, c, a), tr.At(a, b, c))
			}
		}
	}

	_, err = v.Transpose([]int{0, 0, 1})
	assert.Error(t, err)
}

func TestTrainingSetRegions(t *testing.T) {
	ts := NewTrainingSet([]string{"a", "b"}, 3, []int{2, 2}, "YX")
	assert.Equal(t, []int{6, 2, 2}, ts.Shape)
	assert.Equal(t, "SYX", ts.Axes)
	assert.Equal(t, 6, ts.Count())

	from, to, err := ts.StackRange(1)
	require.NoError(t, err)
	assert.Equal(t, 3, from)
	assert.Equal(t, 6, to)

	x, _ := ts.Region(1)
	x[0] = 42
	px, _ := ts.Patch(3)
	assert.Equal(t, float64(42), px[0])

	_, _, err = ts.StackRange(2)
	assert.Error(t, err)
}
