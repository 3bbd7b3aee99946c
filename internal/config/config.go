package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kiesman99/tilewms/internal/raster"
	"github.com/kiesman99/tilewms/internal/render"
)

// EnvPrefix is prepended to every environment variable override,
// e.g. TILEWMS_RASTER_PATH for raster.path.
const EnvPrefix = "TILEWMS"

// Config is the full application configuration.
type Config struct {
	Raster RasterConfig `mapstructure:"raster"`
	Render RenderConfig `mapstructure:"render"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

type RasterConfig struct {
	Path          string `mapstructure:"path"`
	UseOverviews  bool   `mapstructure:"use_overviews"`
	DecodeWorkers int    `mapstructure:"decode_workers"`
}

type RenderConfig struct {
	JPEGQuality int `mapstructure:"jpeg_quality"`
	MaxWidth    int `mapstructure:"max_width"`
	MaxHeight   int `mapstructure:"max_height"`
}

type ServerConfig struct {
	Bind       string        `mapstructure:"bind"`
	Port       int           `mapstructure:"port"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRenders int64         `mapstructure:"max_renders"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("raster.path", "")
	v.SetDefault("raster.use_overviews", true)
	v.SetDefault("raster.decode_workers", 4)
	v.SetDefault("render.jpeg_quality", render.DefaultJPEGQuality)
	v.SetDefault("render.max_width", render.DefaultMaxSize)
	v.SetDefault("render.max_height", render.DefaultMaxSize)
	v.SetDefault("server.bind", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.max_renders", 8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// BindEnv enables TILEWMS_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges. A missing raster path is not an error here;
// commands that need one check RequireRaster.
func (c *Config) Validate() error {
	var errs []error
	if c.Raster.DecodeWorkers < 1 {
		errs = append(errs, fmt.Errorf("raster.decode_workers must be at least 1, got %d", c.Raster.DecodeWorkers))
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("render.jpeg_quality must be between 1 and 100, got %d", c.Render.JPEGQuality))
	}
	if c.Render.MaxWidth < 0 || c.Render.MaxHeight < 0 {
		errs = append(errs, errors.New("render.max_width and render.max_height must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MaxRenders < 1 {
		errs = append(errs, fmt.Errorf("server.max_renders must be at least 1, got %d", c.Server.MaxRenders))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireRaster fails when no raster source is configured.
func (c *Config) RequireRaster() error {
	if c.Raster.Path == "" {
		return errors.New("no raster configured (use --raster or raster.path)")
	}
	return nil
}

// RenderOptions converts the raster and render sections for the renderer.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		Raster: raster.Options{
			UseOverviews:  c.Raster.UseOverviews,
			DecodeWorkers: c.Raster.DecodeWorkers,
		},
		JPEGQuality: c.Render.JPEGQuality,
		MaxWidth:    c.Render.MaxWidth,
		MaxHeight:   c.Render.MaxHeight,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
