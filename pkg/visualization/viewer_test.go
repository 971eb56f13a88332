package visualization

import (
	"image/png"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpatch/pkg/volume"
)

// createTrainingSet returns 4 patches of shape (3, 4, 5) where every Z plane
// of X holds its own constant and Y holds a ramp along X.
func createTrainingSet() *volume.TrainingSet {
	ts := volume.NewTrainingSet([]string{"a", "b"}, 2, []int{3, 4, 5}, "ZYX")
	for i := 0; i < ts.Count(); i++ {
		x, y := ts.Patch(i)
		for z := 0; z < 3; z++ {
			for r := 0; r < 4; r++ {
				for c := 0; c < 5; c++ {
					idx := z*20 + r*5 + c
					x[idx] = float64(z)
					y[idx] = float64(c)
				}
			}
		}
	}
	return ts
}

func TestNewViewerRequiresSampleAxis(t *testing.T) {
	_, err := NewViewer(createTrainingSet())
	require.NoError(t, err)

	ts := createTrainingSet()
	ts.Axes = "TZYX"
	_, err = NewViewer(ts)
	assert.Error(t, err)

	ts.Axes = "SZY"
	_, err = NewViewer(ts)
	assert.Error(t, err)
}

func TestExtractSlice(t *testing.T) {
	v, err := NewViewer(createTrainingSet())
	require.NoError(t, err)
	assert.Equal(t, "Z", v.SliceAxis())

	img, err := v.ExtractSlice(1, Target, "Z", 1)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	// ramp along X stretched over the full range
	assert.Equal(t, uint16(0), img.Gray16At(0, 2).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(4, 2).Y)

	// cutting along X leaves a Z by Y plane
	img, err = v.ExtractSlice(0, Input, "x", 2)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, 3, img.Bounds().Dy())
	assert.Equal(t, uint16(0), img.Gray16At(0, 0).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(0, 2).Y)

	_, err = v.ExtractSlice(4, Input, "Z", 0)
	assert.Error(t, err)
	_, err = v.ExtractSlice(0, Which("W"), "Z", 0)
	assert.Error(t, err)
	_, err = v.ExtractSlice(0, Input, "Z", 3)
	assert.Error(t, err)
	_, err = v.ExtractSlice(0, Input, "C", 0)
	assert.Error(t, err)
}

func TestSliceAxis(t *testing.T) {
	for _, tc := range []struct {
		axes  string
		shape []int
		want  string
		index int
	}{
		{"SZYX", []int{1, 3, 4, 5}, "Z", 0},
		{"SCZYX", []int{1, 2, 3, 4, 5}, "Z", 1},
		{"STCYX", []int{1, 2, 3, 4, 5}, "T", 0},
		{"SYZX", []int{1, 3, 4, 5}, "Y", 0},
		{"SYX", []int{1, 4, 5}, "", -1},
	} {
		ts := volume.NewTrainingSet([]string{"a"}, 1, tc.shape[1:], tc.axes[1:])
		v, err := NewViewer(ts)
		require.NoError(t, err, tc.axes)
		assert.Equal(t, tc.want, v.SliceAxis(), tc.axes)
		assert.Equal(t, tc.index, v.sliceIndex(), tc.axes)

		paths, err := v.SavePreviews(afero.NewMemMapFs(), "previews", 1, 1)
		require.NoError(t, err, tc.axes)
		assert.Len(t, paths, 1)
	}
}

func TestSavePreviews(t *testing.T) {
	fs := afero.NewMemMapFs()
	v, err := NewViewer(createTrainingSet())
	require.NoError(t, err)

	paths, err := v.SavePreviews(fs, "previews", 10, 3)
	require.NoError(t, err)
	require.Len(t, paths, 4)
	assert.Equal(t, "previews/patch_00000.png", paths[0])

	f, err := fs.Open(paths[2])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, (2*5+previewGap)*3, img.Bounds().Dx())
	assert.Equal(t, 4*3, img.Bounds().Dy())

	_, err = v.SavePreviews(fs, "previews", 0, 1)
	assert.Error(t, err)
}
