package main

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volpatch/pkg/bundle"
	"volpatch/pkg/config"
	"volpatch/pkg/volume"
)

func createStack(depth, size int) *volume.Volume {
	v := volume.New(depth, size, size)
	for z := 0; z < depth; z++ {
		for y := size / 4; y < 3*size/4; y++ {
			for x := size / 4; x < 3*size/4; x++ {
				v.Set(float64(100+10*z+x), z, y, x)
			}
		}
	}
	return v
}

func TestBuildFromConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("data/GT", 0755))
	for _, name := range []string{"a.vol", "b.vol"} {
		require.NoError(t, bundle.SaveVolume(fs, "data/GT/"+name, createStack(8, 32), "ZYX"))
	}

	cfg := config.DefaultConfig()
	cfg.Patches.Shape = []int{4, 16, 16}
	cfg.Patches.PerImage = 3
	cfg.Transforms[0].Subsample = 2
	cfg.Transforms[0].PSF.Sigma = []float64{0.5, 1, 1}
	cfg.Output.File = "out/train.vpb"
	cfg.Output.PreviewDir = "out/previews"
	cfg.Output.PreviewCount = 2
	require.NoError(t, config.SaveConfig(fs, cfg, "volpatch.yaml"))

	require.NoError(t, runBuild(fs, args{}, &buildCmd{Config: "volpatch.yaml", Workers: 2}))

	ts, err := bundle.LoadTrainingSet(fs, "out/train.vpb")
	require.NoError(t, err)
	assert.Equal(t, []int{6, 4, 16, 16}, ts.Shape)
	assert.Equal(t, "SZYX", ts.Axes)
	assert.Equal(t, []string{"GT/a.vol", "GT/b.vol"}, ts.Stacks)

	previews, err := afero.ReadDir(fs, "out/previews")
	require.NoError(t, err)
	assert.Len(t, previews, 2)

	require.NoError(t, runInspect(fs, &inspectCmd{Bundle: "out/train.vpb"}))
	require.NoError(t, runPreview(fs, args{}, &previewCmd{Bundle: "out/train.vpb", Dir: "more", Count: 1, Scale: 1}))
}

func TestLoadPSF(t *testing.T) {
	fs := afero.NewMemMapFs()
	k, err := loadPSF(fs, config.PSF{})
	require.NoError(t, err)
	assert.Nil(t, k)

	raw := volume.New(1, 3)
	copy(raw.Data, []float64{1, 2, 1})
	require.NoError(t, bundle.SaveVolume(fs, "k.vol", raw, "YX"))
	k, err = loadPSF(fs, config.PSF{KernelFile: "k.vol"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.5, 0.25}, k.Data, 1e-12)

	_, err = loadPSF(fs, config.PSF{KernelFile: "k.vol", Sigma: []float64{1}})
	assert.Error(t, err)

	k, err = loadPSF(fs, config.PSF{Sigma: []float64{1, 1}, Radius: []int{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5}, k.Shape)
}

func TestBuilderOptionsRejectsBadTransform(t *testing.T) {
	cfg := config.DefaultConfig()
	order := 2
	cfg.Transforms[0].UpOrder = &order
	_, err := builderOptions(afero.NewMemMapFs(), cfg, nil)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	opts, err := builderOptions(afero.NewMemMapFs(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, opts.Transforms, 1)
	require.NotNil(t, opts.Normalize)
	assert.Equal(t, 2.0, opts.Normalize.Low)
	assert.Equal(t, 100, opts.Spec.Count)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, runInit(fs, &initCmd{Path: "volpatch.yaml"}))
	assert.Error(t, runInit(fs, &initCmd{Path: "volpatch.yaml"}))
	assert.NoError(t, runInit(fs, &initCmd{Path: "volpatch.yaml", Force: true}))
}
