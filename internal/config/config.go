// Package config loads the YAML configuration and applies environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the configuration is looked up when --config is not given
const DefaultPath = "config/config.yaml"

// ErrInvalid is returned by Validate for out-of-range settings
var ErrInvalid = errors.New("invalid config")

// Config represents the application configuration
type Config struct {
	Twitch struct {
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		GQLClientID  string `yaml:"gql_client_id"`
	} `yaml:"twitch"`

	Afreeca struct {
		WindowSeconds int    `yaml:"window_seconds"`
		UseBrowser    bool   `yaml:"use_browser"`
		Cookie        string `yaml:"cookie"`
	} `yaml:"afreeca"`

	YouTube struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"youtube"`

	Pipeline struct {
		MaxConcurrent      int     `yaml:"max_concurrent"`
		ItemTimeoutSeconds int     `yaml:"item_timeout_seconds"`
		AbortOnError       bool    `yaml:"abort_on_error"`
		RequestsPerSecond  float64 `yaml:"requests_per_second"`
	} `yaml:"pipeline"`

	Output struct {
		Color bool `yaml:"color"`
	} `yaml:"output"`

	Archive struct {
		Database               string `yaml:"database"`
		ExportDir              string `yaml:"export_dir"`
		MaxAgeHours            int    `yaml:"max_age_hours"`
		CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	} `yaml:"archive"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	var c Config
	c.Twitch.GQLClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
	c.Afreeca.WindowSeconds = 300
	c.Pipeline.RequestsPerSecond = 10
	c.Output.Color = true
	c.Archive.MaxAgeHours = 24 * 7
	c.Archive.CleanupIntervalMinutes = 60
	c.GoogleDrive.CredentialsFile = "config/credentials.json"
	c.GoogleDrive.TokenFile = "config/token.json"
	c.GoogleDrive.FolderName = "vodchat"
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8080
	c.Log.Level = "info"
	return &c
}

// Load reads path over the defaults. A missing file is only an error when
// the caller asked for it explicitly.
func Load(path string, explicit bool) (*Config, error) {
	c := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, c); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	c.applyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TWITCH_CLIENT_ID"); ok {
		c.Twitch.ClientID = v
	}
	if v, ok := lookup("TWITCH_CLIENT_SECRET"); ok {
		c.Twitch.ClientSecret = v
	}
	if v, ok := lookup("YOUTUBE_API_KEY"); ok {
		c.YouTube.APIKey = v
	}
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Afreeca.WindowSeconds <= 0 {
		errs = append(errs, fmt.Errorf("afreeca.window_seconds must be positive, got %d", c.Afreeca.WindowSeconds))
	}
	if c.Pipeline.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_concurrent must not be negative, got %d", c.Pipeline.MaxConcurrent))
	}
	if c.Pipeline.ItemTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.item_timeout_seconds must not be negative, got %d", c.Pipeline.ItemTimeoutSeconds))
	}
	if c.Pipeline.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("pipeline.requests_per_second must not be negative, got %g", c.Pipeline.RequestsPerSecond))
	}
	if c.Archive.MaxAgeHours < 0 || c.Archive.CleanupIntervalMinutes < 0 {
		errs = append(errs, errors.New("archive ages must not be negative"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ItemTimeout returns the per-item fetch timeout, zero meaning none
func (c *Config) ItemTimeout() time.Duration {
	return time.Duration(c.Pipeline.ItemTimeoutSeconds) * time.Second
}

// MaxAge returns how long exported transcripts are kept
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Archive.MaxAgeHours) * time.Hour
}

// CleanupInterval returns how often the export dir is pruned
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Archive.CleanupIntervalMinutes) * time.Minute
}

// ParseLevel maps a config level name onto a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
