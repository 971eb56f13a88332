package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizationPerPatch(t *testing.T) {
	data := make([]float64, 200)
	for i := 0; i < 100; i++ {
		data[i] = float64(i)
		data[100+i] = 1000 + 10*float64(i)
	}
	n := Normalization{Low: 0, High: 100}
	require.NoError(t, n.Apply(data, 100))

	// both patches map onto [0, 1] independently
	assert.InDelta(t, 0, data[0], 1e-9)
	assert.InDelta(t, 1, data[99], 1e-9)
	assert.InDelta(t, 0, data[100], 1e-9)
	assert.InDelta(t, 1, data[199], 1e-9)
	assert.InDelta(t, data[50], data[150], 1e-9)
}

func TestNormalizationConstantPatch(t *testing.T) {
	data := []float64{5, 5, 5, 5}
	require.NoError(t, DefaultNormalization().Apply(data, 4))
	for _, v := range data {
		assert.InDelta(t, 0, v, 1e-9)
	}
}

func TestNormalizationCheck(t *testing.T) {
	assert.NoError(t, DefaultNormalization().Check())
	assert.Error(t, Normalization{Low: 50, High: 50}.Check())
	assert.Error(t, Normalization{Low: -1, High: 50}.Check())
	assert.Error(t, Normalization{Low: 1, High: 101}.Check())
	assert.Error(t, Normalization{Low: 60, High: 40}.Apply([]float64{1, 2}, 2))
}
