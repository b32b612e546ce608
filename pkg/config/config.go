// Package config loads the operator configuration, with defaults that
// work when no config file exists.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

const fileName = "winshield.toml"

// Config holds all tunables of a winshield run.
type Config struct {
	CacheDir         string   `toml:"cache_dir"`
	DownloadDir      string   `toml:"download_dir"`
	MSRCEndpoint     string   `toml:"msrc_endpoint"`
	CatalogEndpoint  string   `toml:"catalog_endpoint"`
	HTTPTimeout      duration `toml:"http_timeout"`
	FetchConcurrency int      `toml:"fetch_concurrency"`
	ProductOverrides string   `toml:"product_overrides"`
}

// duration lets TOML carry values like "45s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func Default() Config {
	return Config{
		CacheDir:         CacheDir(),
		DownloadDir:      filepath.Join(CacheDir(), "downloads"),
		MSRCEndpoint:     "https://api.msrc.microsoft.com/cvrf/v3.0",
		CatalogEndpoint:  "https://www.catalog.update.microsoft.com",
		HTTPTimeout:      duration{30 * time.Second},
		FetchConcurrency: 3,
	}
}

// Load reads the config file at path, or the default locations when path
// is empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = defaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, xerrors.Errorf("failed to decode %s: %w", path, err)
	}

	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.HTTPTimeout.Duration <= 0 {
		cfg.HTTPTimeout = Default().HTTPTimeout
	}

	return cfg, nil
}

// Timeout returns the configured HTTP timeout.
func (c Config) Timeout() time.Duration {
	return c.HTTPTimeout.Duration
}

func defaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return fileName
	}
	return filepath.Join(dir, "winshield", fileName)
}

// CacheDir returns the per-user cache directory for winshield state.
func CacheDir() string {
	tmpDir, err := os.UserCacheDir()
	if err != nil {
		tmpDir = os.TempDir()
	}
	return filepath.Join(tmpDir, "winshield")
}
