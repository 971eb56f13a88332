package degrade

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"volpatch/pkg/axes"
	"volpatch/pkg/errs"
	"volpatch/pkg/interpolation"
	"volpatch/pkg/psf"
	"volpatch/pkg/volume"
)

// createStack returns a ZYX stack with a smooth pattern that varies along
// every axis.
func createStack(depth, height, width int) volume.StackPair {
	v := volume.New(depth, height, width)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v.Set(float64(10+z*z+(x*y)%7), z, y, x)
			}
		}
	}
	return volume.StackPair{Name: "gt/stack.vol", Source: v, Target: v, Axes: axes.MustParse("ZYX")}
}

func TestSubsampleOneIsIdentity(t *testing.T) {
	pair := createStack(6, 5, 4)
	tr, err := NewAnisotropic(DefaultParams(1), nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, nil)
	require.NoError(t, err)
	assert.Equal(t, pair.Source.Data, out.Source.Data)
	assert.Equal(t, pair.Source.Data, out.Target.Data)
	assert.Equal(t, "ZYX", out.Axes.String())
}

func TestAnisotropicKeepsShapeAndDegradesAxis(t *testing.T) {
	pair := createStack(16, 8, 8)
	tr, err := NewAnisotropic(DefaultParams(4), nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, nil)
	require.NoError(t, err)
	assert.Equal(t, pair.Source.Shape, out.Source.Shape)
	assert.Equal(t, pair.Source.Shape, out.Target.Shape)

	// the target is the untouched original
	assert.Equal(t, pair.Source.Data, out.Target.Data)
	// corner-aligned resampling keeps the first and last planes
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			assert.Equal(t, pair.Source.At(0, y, x), out.Source.At(0, y, x))
			assert.Equal(t, pair.Source.At(15, y, x), out.Source.At(15, y, x))
		}
	}
	assert.NotEqual(t, pair.Source.Data, out.Source.Data)

	// deterministic: a second run is bit-identical
	again, err := tr.Apply(pair, nil)
	require.NoError(t, err)
	assert.Equal(t, out.Source.Data, again.Source.Data)
}

func TestNonIntegerSubsample(t *testing.T) {
	pair := createStack(10, 4, 4)
	params := DefaultParams(2.5)
	params.UpOrder = interpolation.Cubic
	tr, err := NewAnisotropic(params, nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 4, 4}, out.Source.Shape)
}

func TestYieldDegradedWithNoise(t *testing.T) {
	pair := createStack(8, 6, 6)
	params := DefaultParams(2)
	params.YieldTarget = YieldDegraded
	params.GaussSigma = 0.5
	tr, err := NewAnisotropic(params, nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, rand.NewSource(7))
	require.NoError(t, err)

	noiseFree, err := NewAnisotropic(DefaultParams(2), nil)
	require.NoError(t, err)
	ref, err := noiseFree.Apply(pair, nil)
	require.NoError(t, err)

	// target is the degraded volume, source is that volume plus noise
	assert.Equal(t, ref.Source.Data, out.Target.Data)
	assert.NotEqual(t, out.Target.Data, out.Source.Data)

	same, err := tr.Apply(pair, rand.NewSource(7))
	require.NoError(t, err)
	assert.Equal(t, out.Source.Data, same.Source.Data)

	_, err = tr.Apply(pair, nil)
	assert.Error(t, err)
}

func TestPoissonNoiseIsNonNegativeInteger(t *testing.T) {
	pair := createStack(4, 4, 4)
	params := DefaultParams(1)
	params.PoissonNoise = true
	tr, err := NewAnisotropic(params, nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, rand.NewSource(1))
	require.NoError(t, err)
	for _, v := range out.Source.Data {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Equal(t, float64(int(v)), v)
	}
}

func TestPSFBlursBeforeSubsampling(t *testing.T) {
	pair := createStack(8, 8, 8)
	kernel, err := psf.Gaussian([]float64{1, 0.5, 0.5}, nil)
	require.NoError(t, err)

	params := DefaultParams(1)
	params.PSF = kernel
	tr, err := NewAnisotropic(params, nil)
	require.NoError(t, err)

	out, err := tr.Apply(pair, nil)
	require.NoError(t, err)
	assert.Equal(t, pair.Source.Data, out.Target.Data)
	assert.NotEqual(t, pair.Source.Data, out.Source.Data)
}

func TestInvalidParameters(t *testing.T) {
	cases := map[string]Params{
		"zero subsample":     DefaultParams(0),
		"negative subsample": DefaultParams(-2),
		"unknown axis":       {Subsample: 2, Axis: "Q"},
		"sample axis":        {Subsample: 2, Axis: "S"},
		"bad yield":          {Subsample: 2, Axis: "Z", YieldTarget: "both"},
		"bad order":          {Subsample: 2, Axis: "Z", UpOrder: interpolation.Order(2)},
		"negative sigma":     {Subsample: 2, Axis: "Z", GaussSigma: -1},
	}
	for name, params := range cases {
		_, err := NewAnisotropic(params, nil)
		var paramErr *errs.InvalidParameterError
		assert.True(t, errors.As(err, &paramErr), "%s: got %v", name, err)
	}
}

func TestValidateAgainstAxes(t *testing.T) {
	tr, err := NewAnisotropic(DefaultParams(2), nil)
	require.NoError(t, err)
	assert.NoError(t, tr.Validate(axes.MustParse("ZYX")))

	var paramErr *errs.InvalidParameterError
	assert.True(t, errors.As(tr.Validate(axes.MustParse("YX")), &paramErr))

	params := DefaultParams(2)
	params.PSF = volume.New(3, 3)
	withPSF, err := NewAnisotropic(params, nil)
	require.NoError(t, err)
	assert.True(t, errors.As(withPSF.Validate(axes.MustParse("ZYX")), &paramErr))
	assert.NoError(t, withPSF.Validate(axes.MustParse("CZX")))
}
