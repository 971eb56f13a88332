package axes

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpatch/pkg/errs"
)

func TestParseRoundTrip(t *testing.T) {
	for _, label := range []string{"ZYX", "YX", "CZYX", "TZYX", "SCZYX", "X", "XYZ", "STCZYX"} {
		a, err := Parse(label)
		require.NoError(t, err, label)
		assert.Equal(t, label, a.String())

		again, err := Parse(a.String())
		require.NoError(t, err)
		assert.Equal(t, a, again)
	}
}

func TestParseNormalizesCase(t *testing.T) {
	a, err := Parse("zyx")
	require.NoError(t, err)
	assert.Equal(t, Axes{Z, Y, X}, a)
}

func TestParseRejectsInvalidLabels(t *testing.T) {
	for _, label := range []string{"", "ZYQ", "ZZY", "Z Y", "ZYXä"} {
		_, err := Parse(label)
		var axErr *errs.InvalidAxesError
		assert.True(t, errors.As(err, &axErr), "label %q should fail, got %v", label, err)
	}
}

func TestValidate(t *testing.T) {
	a := MustParse("ZYX")
	assert.NoError(t, Validate(a, []int{4, 8, 8}))

	err := Validate(a, []int{8, 8})
	var shapeErr *errs.ShapeMismatchError
	require.True(t, errors.As(err, &shapeErr))
	assert.Contains(t, err.Error(), "rank 3")
}

func TestSpatialAndIndex(t *testing.T) {
	a := MustParse("TCZYX")
	assert.Equal(t, []int{2, 3, 4}, a.Spatial())
	assert.Equal(t, 1, a.Index(Channel))
	assert.Equal(t, -1, a.Index(Sample))
	assert.False(t, a.Has(Sample))
}

func TestCanonicalAndPermutation(t *testing.T) {
	a := MustParse("YXZC")
	c := a.Canonical()
	assert.Equal(t, "CZYX", c.String())

	perm, err := a.Permutation(c)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 0, 1}, perm)

	_, err = a.Permutation(MustParse("ZYX"))
	assert.Error(t, err)
}

func TestParseSymbol(t *testing.T) {
	s, err := ParseSymbol("z")
	require.NoError(t, err)
	assert.Equal(t, Z, s)

	_, err = ParseSymbol("ZY")
	assert.Error(t, err)
}
