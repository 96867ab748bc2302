package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[application]
name = "sample"
start_width = 800
start_height = 600

[renderer]
target_frame_rate = 30.0
clear_color = [0.0, 0.2, 0.4, 1.0]
classify_draw_lists = true

[log]
level = "debug"
`

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.EqualValues(t, 2, cfg.Renderer.PresentBufferCount)
	assert.EqualValues(t, 128, cfg.Renderer.ShaderViewCapacity)
	assert.EqualValues(t, 61, cfg.Renderer.TargetFrameRate)
	assert.False(t, cfg.Renderer.ClassifyDrawLists)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", cfg.Application.Name)
	assert.EqualValues(t, 800, cfg.Application.StartWidth)
	assert.Equal(t, 30.0, cfg.Renderer.TargetFrameRate)
	assert.Equal(t, [4]float32{0, 0.2, 0.4, 1}, cfg.Renderer.ClearColor)
	assert.True(t, cfg.Renderer.ClassifyDrawLists)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched keys keep their defaults
	assert.EqualValues(t, 128, cfg.Renderer.ShaderViewCapacity)
	assert.Equal(t, "assets/shaders/basic.vert.spv", cfg.Shaders.Vertex)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"syntax":        "[renderer\n",
		"buffers":       "[renderer]\npresent_buffer_count = 3\n",
		"shader views":  "[renderer]\nshader_view_capacity = 0\n",
		"negative rate": "[renderer]\ntarget_frame_rate = -1.0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Application.Name = "saved"
	cfg.Assets.Textures = []string{"textures/crate.png"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestWatcherPublishesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prism.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	defer w.Close()

	updated := "[renderer]\ntarget_frame_rate = 120.0\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	// the truncate may surface as its own revision first
	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-w.Updates():
			if cfg.Renderer.TargetFrameRate == 120.0 {
				assert.NoError(t, w.Close())
				return
			}
		case <-timeout:
			t.Fatal("no config update received")
		}
	}
}
