package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/tilewms/internal/render"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	require.NoError(t, err)

	assert.True(t, cfg.Raster.UseOverviews)
	assert.Equal(t, 4, cfg.Raster.DecodeWorkers)
	assert.Equal(t, 90, cfg.Render.JPEGQuality)
	assert.Equal(t, "localhost:8080", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	assert.Equal(t, int64(8), cfg.Server.MaxRenders)
	assert.Error(t, cfg.RequireRaster())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilewms.yaml")
	content := `
raster:
  path: /data/ortho.tif
  use_overviews: false
render:
  jpeg_quality: 75
server:
  port: 9000
  timeout: 5s
log:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := newViper()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/data/ortho.tif", cfg.Raster.Path)
	assert.False(t, cfg.Raster.UseOverviews)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.Timeout)
	assert.NoError(t, cfg.RequireRaster())

	opts := cfg.RenderOptions()
	assert.Equal(t, 75, opts.JPEGQuality)
	assert.False(t, opts.Raster.UseOverviews)
	assert.Equal(t, render.DefaultMaxSize, opts.MaxWidth)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TILEWMS_RASTER_PATH", "/env/raster.tif")
	t.Setenv("TILEWMS_SERVER_MAX_RENDERS", "2")

	cfg, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, "/env/raster.tif", cfg.Raster.Path)
	assert.Equal(t, int64(2), cfg.Server.MaxRenders)
}

func TestValidate(t *testing.T) {
	v := newViper()
	v.Set("render.jpeg_quality", 0)
	v.Set("log.level", "loud")
	v.Set("log.format", "xml")

	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.jpeg_quality")
	assert.Contains(t, err.Error(), "log.level")
	assert.Contains(t, err.Error(), "log.format")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("bbox", "0,0,1,1").Debug("hello")
	assert.Contains(t, buf.String(), `"bbox":"0,0,1,1"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	_, err = LogConfig{Level: "nope"}.NewLogger(nil)
	assert.Error(t, err)
}
