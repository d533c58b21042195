package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/live_blur/client"
	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/statusserver"
	"example.com/live_blur/pkg/targets"
	"example.com/live_blur/pkg/upload"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load("")
	require.NoError(t, err)

	assert.Equal(t, client.DefaultServerURL, cfg.ServerURL)
	assert.Equal(t, upload.DefaultURL, cfg.UploadURL)
	assert.Equal(t, targets.Defaults(), cfg.Targets)
	assert.Empty(t, cfg.Selected)
	assert.Equal(t, statusserver.DefaultAddr, cfg.StatusAddr)
	assert.Equal(t, SourceFFmpeg, cfg.Capture.Source)
	assert.Equal(t, capture.DefaultDevice, cfg.Capture.Device)
	assert.Equal(t, capture.DefaultFPS, cfg.Capture.FPS)
	assert.True(t, cfg.Output.LatestOnly)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "liveblur.yaml", `
server_url: wss://blur.example.com/ws/blur_bottles_live
targets:
  - id: brand1
    name: cristalline
  - id: brand3
    name: evian
selected: [brand3]
capture:
  source: file
  file: /tmp/still.jpg
output:
  dir: /tmp/frames
  latest_only: false
`)

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://blur.example.com/ws/blur_bottles_live", cfg.ServerURL)
	assert.Equal(t, []targets.Target{
		{ID: "brand1", Name: "cristalline"},
		{ID: "brand3", Name: "evian"},
	}, cfg.Targets)
	assert.Equal(t, []string{"brand3"}, cfg.Selected)
	assert.Equal(t, SourceFile, cfg.Capture.Source)
	assert.Equal(t, "/tmp/still.jpg", cfg.Capture.File)
	assert.Equal(t, "/tmp/frames", cfg.Output.Dir)
	assert.False(t, cfg.Output.LatestOnly)

	catalog, err := cfg.Catalog()
	require.NoError(t, err)
	assert.Len(t, catalog.All(), 2)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "liveblur.yaml", "status_addr: 127.0.0.1:1000\n")
	t.Setenv("LIVE_BLUR_STATUS_ADDR", "127.0.0.1:2000")
	t.Setenv("LIVE_BLUR_CAPTURE_DEVICE", "/dev/video2")

	cfg, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2000", cfg.StatusAddr)
	assert.Equal(t, "/dev/video2", cfg.Capture.Device)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeFile(t, "liveblur.yaml", "server_url: http://localhost:8000/ws\n")

	_, err := NewLoader().Load(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			ServerURL: client.DefaultServerURL,
			UploadURL: upload.DefaultURL,
			Targets:   targets.Defaults(),
			Capture:   Capture{Source: SourceFFmpeg, Width: 640, Height: 480, FPS: 15},
		}
	}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"http stream url", func(c *Config) { c.ServerURL = "http://localhost:8000/ws" }},
		{"stream url without host", func(c *Config) { c.ServerURL = "ws:///ws" }},
		{"ws upload url", func(c *Config) { c.UploadURL = "ws://localhost:8000/blur_bottles/" }},
		{"duplicate target", func(c *Config) {
			c.Targets = append(c.Targets, targets.Target{ID: "brand1", Name: "other"})
		}},
		{"unknown selection", func(c *Config) { c.Selected = []string{"brand9"} }},
		{"unknown source", func(c *Config) { c.Capture.Source = "rtsp" }},
		{"file source without file", func(c *Config) { c.Capture.Source = SourceFile }},
		{"zero fps", func(c *Config) { c.Capture.FPS = 0 }},
	}

	c := valid()
	require.NoError(t, c.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	const key = "LIVE_BLUR_TEST_DOTENV_LEVEL"
	path := writeFile(t, ".env", key+"=debug\n")
	t.Cleanup(func() { _ = os.Unsetenv(key) })

	used, ok := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	require.True(t, ok)
	assert.Equal(t, path, used)
	assert.Equal(t, "debug", os.Getenv(key))

	_, ok = LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.False(t, ok)
}
