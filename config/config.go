package config

import (
	"errors"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
)

// Configuration validation errors.
var (
	ErrInvalidPageTimeout  = errors.New("fetch.page_timeout must be positive")
	ErrInvalidImageTimeout = errors.New("fetch.image_timeout must be positive")
	ErrInvalidMaxBody      = errors.New("fetch.max_body_bytes must be positive")
	ErrInvalidImageBurst   = errors.New("fetch.image_burst must be at least 1")
)

// Config holds all application configuration.
type Config struct {
	Fetch  FetchConfig
	Output OutputConfig
	Log    LogConfig
}

// FetchConfig controls page and image retrieval.
type FetchConfig struct {
	// PageTimeout bounds the single page fetch.
	PageTimeout time.Duration // default: 10s

	// ImageTimeout bounds each image fetch.
	ImageTimeout time.Duration // default: 20s

	// MaxBodyBytes caps how much of any response body is read.
	MaxBodyBytes int64 // default: 10 MiB

	// UserAgent is sent with every request.
	UserAgent string

	// ImageRate paces image requests (requests per second). rate.Inf disables pacing.
	ImageRate rate.Limit // default: 4

	// ImageBurst is the token bucket size for ImageRate.
	ImageBurst int // default: 2
}

// OutputConfig controls where results land relative to the base directory.
type OutputConfig struct {
	BaseDir       string // default: "output"
	CSVName       string // default: "products.csv"
	ImagesDirName string // default: "images"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Default returns the configuration used by the CLI.
func Default() *Config {
	return &Config{
		Fetch: FetchConfig{
			PageTimeout:  10 * time.Second,
			ImageTimeout: 20 * time.Second,
			MaxBodyBytes: 10 << 20,
			UserAgent:    chromeUA,
			ImageRate:    4,
			ImageBurst:   2,
		},
		Output: OutputConfig{
			BaseDir:       "output",
			CSVName:       "products.csv",
			ImagesDirName: "images",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Fetch.PageTimeout <= 0 {
		return ErrInvalidPageTimeout
	}
	if c.Fetch.ImageTimeout <= 0 {
		return ErrInvalidImageTimeout
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		return ErrInvalidMaxBody
	}
	if c.Fetch.ImageRate != rate.Inf && c.Fetch.ImageBurst < 1 {
		return ErrInvalidImageBurst
	}
	return nil
}

// CSVPath returns <base>/<CSVName>.
func (o OutputConfig) CSVPath(base string) string {
	return filepath.Join(base, o.CSVName)
}

// ImagesPath returns <base>/<ImagesDirName>.
func (o OutputConfig) ImagesPath(base string) string {
	return filepath.Join(base, o.ImagesDirName)
}
