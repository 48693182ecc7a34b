// Package config loads salonctl settings from defaults, an optional YAML
// file, an optional .env file and SALONCTL_* environment variables, in that
// order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habedi/salonctl/client"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix       = "SALONCTL_"
	DefaultBaseURL  = "https://api.salonapp.example/v1"
	DefaultPlatform = "cli"
	DefaultTimeout  = 15 * time.Second
	DefaultFileName = "config.yaml"
)

// Config holds every tunable of the CLI.
type Config struct {
	BaseURL        string        `yaml:"base-url"`
	DataDir        string        `yaml:"data-dir"`
	Timeout        time.Duration `yaml:"timeout"`
	RefreshTimeout time.Duration `yaml:"refresh-timeout"`
	AppVersion     string        `yaml:"app-version"`
	Platform       string        `yaml:"platform"`
	RefreshPath    string        `yaml:"refresh-path"`
	LogFile        string        `yaml:"log-file"`
	Workers        int           `yaml:"workers"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return Config{
		BaseURL:        DefaultBaseURL,
		DataDir:        filepath.Join(home, ".salonctl"),
		Timeout:        DefaultTimeout,
		RefreshTimeout: DefaultTimeout,
		Platform:       DefaultPlatform,
		RefreshPath:    client.DefaultRefreshPath,
		Workers:        4,
	}
}

// Load builds the configuration. An empty path falls back to config.yaml in
// the default data directory when that file exists.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.DataDir, DefaultFileName)
	}
	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}
	if err := cfg.mergeEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Loaded config file")
	return nil
}

func (c *Config) mergeEnv() error {
	c.BaseURL = getEnv("BASE_URL", c.BaseURL)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.AppVersion = getEnv("APP_VERSION", c.AppVersion)
	c.Platform = getEnv("PLATFORM", c.Platform)
	c.RefreshPath = getEnv("REFRESH_PATH", c.RefreshPath)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	var err error
	if c.Timeout, err = getEnvDuration("TIMEOUT", c.Timeout); err != nil {
		return err
	}
	if c.RefreshTimeout, err = getEnvDuration("REFRESH_TIMEOUT", c.RefreshTimeout); err != nil {
		return err
	}
	if v, ok := lookupEnv("WORKERS"); ok {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return fmt.Errorf("invalid %sWORKERS %q: %w", EnvPrefix, v, err)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base URL must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.RefreshTimeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive, got %s", c.RefreshTimeout)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if !strings.HasPrefix(c.RefreshPath, "/") {
		return fmt.Errorf("refresh path must start with '/', got %q", c.RefreshPath)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}

// DBPath is the secret database location.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "salonctl.db") }

// KeyPath is the secret store key file location.
func (c Config) KeyPath() string { return filepath.Join(c.DataDir, "store.key") }

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func getEnv(key, fallback string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := lookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s %q: %w", EnvPrefix, key, v, err)
	}
	return d, nil
}
