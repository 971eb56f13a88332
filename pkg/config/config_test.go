package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(afero.NewMemMapFs(), "volpatch.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestDefaultConfigRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, CreateDefaultConfigFile(fs, "conf/volpatch.yaml"))

	cfg, err := LoadConfig(fs, "conf/volpatch.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	yml := `
data:
  axes: CZYX
  sourceDirs: [low, low2]
transforms:
  - subsample: 2.5
    axis: z
    upOrder: 3
    psf:
      sigma: [1, 0.5, 0.5]
patches:
  shape: [0, 8, 32, 32]
  foreground:
    strict: true
`
	require.NoError(t, afero.WriteFile(fs, "volpatch.yaml", []byte(yml), 0644))

	cfg, err := LoadConfig(fs, "volpatch.yaml")
	require.NoError(t, err)
	assert.Equal(t, "CZYX", cfg.Data.Axes)
	assert.Equal(t, []string{"low", "low2"}, cfg.Data.SourceDirs)
	assert.Equal(t, "GT", cfg.Data.TargetDir)

	require.Len(t, cfg.Transforms, 1)
	tr := cfg.Transforms[0]
	assert.Equal(t, 2.5, tr.Subsample)
	assert.Nil(t, tr.DownOrder)
	require.NotNil(t, tr.UpOrder)
	assert.Equal(t, 3, *tr.UpOrder)
	assert.Equal(t, []float64{1, 0.5, 0.5}, tr.PSF.Sigma)

	assert.Equal(t, []int{0, 8, 32, 32}, cfg.Patches.Shape)
	assert.True(t, cfg.Patches.Foreground.Strict)
	assert.Equal(t, 99.9, cfg.Patches.Foreground.Percentile)
	assert.Equal(t, 100, cfg.Patches.PerImage)
}

func TestInvalidYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "volpatch.yaml", []byte("patches: [unclosed"), 0644))
	_, err := LoadConfig(fs, "volpatch.yaml")
	assert.Error(t, err)
}
