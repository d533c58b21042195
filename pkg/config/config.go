// Package config loads the liveblur settings from a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"example.com/live_blur/client"
	"example.com/live_blur/pkg/capture"
	"example.com/live_blur/pkg/statusserver"
	"example.com/live_blur/pkg/targets"
	"example.com/live_blur/pkg/upload"
)

// EnvPrefix prefixes every environment override, e.g. LIVE_BLUR_SERVER_URL.
const EnvPrefix = "LIVE_BLUR"

// Capture source kinds.
const (
	SourceFFmpeg = "ffmpeg"
	SourceFile   = "file"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full set of runtime settings.
type Config struct {
	ServerURL  string           `mapstructure:"server_url"`
	UploadURL  string           `mapstructure:"upload_url"`
	Targets    []targets.Target `mapstructure:"targets"`
	Selected   []string         `mapstructure:"selected"`
	StatusAddr string           `mapstructure:"status_addr"`
	LogLevel   string           `mapstructure:"log_level"`
	Capture    Capture          `mapstructure:"capture"`
	Output     Output           `mapstructure:"output"`
}

// Capture selects where camera frames come from.
type Capture struct {
	Source string `mapstructure:"source"` // SourceFFmpeg or SourceFile
	Device string `mapstructure:"device"`
	File   string `mapstructure:"file"`
	Width  int    `mapstructure:"width"`
	Height int    `mapstructure:"height"`
	FPS    int    `mapstructure:"fps"`
	Binary string `mapstructure:"binary"`
}

// Output controls saving of processed frames. An empty Dir disables it.
type Output struct {
	Dir        string `mapstructure:"dir"`
	LatestOnly bool   `mapstructure:"latest_only"`
}

// Loader wraps a viper instance with the liveblur defaults and environment
// binding applied.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults registered.
func NewLoader() *Loader {
	v := viper.New()
	v.SetDefault("server_url", client.DefaultServerURL)
	v.SetDefault("upload_url", upload.DefaultURL)
	v.SetDefault("targets", targets.Defaults())
	v.SetDefault("selected", []string{})
	v.SetDefault("status_addr", statusserver.DefaultAddr)
	v.SetDefault("log_level", "info")
	v.SetDefault("capture.source", SourceFFmpeg)
	v.SetDefault("capture.device", capture.DefaultDevice)
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.width", capture.DefaultWidth)
	v.SetDefault("capture.height", capture.DefaultHeight)
	v.SetDefault("capture.fps", capture.DefaultFPS)
	v.SetDefault("capture.binary", capture.DefaultBinary)
	v.SetDefault("output.dir", "")
	v.SetDefault("output.latest_only", true)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// Viper exposes the underlying instance so commands can bind their flags.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads path (when not empty), applies overrides and validates the
// result.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads the first readable file among paths into the process
// environment. Variables already set are kept. It reports the file used.
func LoadDotEnv(paths ...string) (string, bool) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Validate checks URLs, the catalog and the capture settings.
func (c *Config) Validate() error {
	if err := checkURL("server_url", c.ServerURL, "ws", "wss"); err != nil {
		return err
	}
	if err := checkURL("upload_url", c.UploadURL, "http", "https"); err != nil {
		return err
	}

	catalog, err := c.Catalog()
	if err != nil {
		return fmt.Errorf("%w: targets: %v", ErrInvalid, err)
	}
	for _, id := range c.Selected {
		if _, ok := catalog.Lookup(id); !ok {
			return fmt.Errorf("%w: selected target %q is not in the catalog", ErrInvalid, id)
		}
	}

	switch c.Capture.Source {
	case SourceFFmpeg:
		if c.Capture.Width <= 0 || c.Capture.Height <= 0 || c.Capture.FPS <= 0 {
			return fmt.Errorf("%w: capture width, height and fps must be positive", ErrInvalid)
		}
	case SourceFile:
		if c.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required for the file source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown capture source %q", ErrInvalid, c.Capture.Source)
	}
	return nil
}

// Catalog builds the target catalog.
func (c *Config) Catalog() (*targets.Catalog, error) {
	return targets.NewCatalog(c.Targets)
}

func checkURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %s: missing host in %q", ErrInvalid, key, raw)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: scheme must be one of %s, got %q",
		ErrInvalid, key, strings.Join(schemes, ", "), u.Scheme)
}
