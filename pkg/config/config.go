package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
	_ "time/tzdata" // Zone database for hosts without one

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Analytics AnalyticsConfig `yaml:"analytics"`
	Cache     CacheConfig     `yaml:"cache"`
	Site      SiteConfig      `yaml:"site"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Server    ServerConfig    `yaml:"server"`
}

// AnalyticsConfig holds the Google Analytics connection and tagging settings.
type AnalyticsConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	UseDefaultCredentials bool   `yaml:"use_default_credentials"`
	ProfileID             string `yaml:"profile_id"`  // GA4 property id
	TrackingID            string `yaml:"tracking_id"` // Measurement id, e.g. "G-XXXXXXX"
	WriteCustomDimensions bool   `yaml:"write_custom_dimensions"`
	ReadCustomDimensions  bool   `yaml:"read_custom_dimensions"`
	// CustomMap maps event parameters to wiki values.
	CustomMap map[string]string `yaml:"custom_map"`
	UserAgent string            `yaml:"user_agent"`
	// FailureBackoff pauses reporting calls after a failed one. Zero disables it.
	FailureBackoff    Duration `yaml:"failure_backoff"`
	MaxFailureBackoff Duration `yaml:"max_failure_backoff"`
}

// CacheConfig holds result cache settings.
type CacheConfig struct {
	CachedDays    int      `yaml:"cached_days"`
	MaxDays       int      `yaml:"max_days"`
	Timezone      string   `yaml:"timezone"`
	PruneInterval Duration `yaml:"prune_interval"`
}

// SiteConfig holds the settings of the site customization helpers.
type SiteConfig struct {
	CanonicalServer string `yaml:"canonical_server"`
	TermsURL        string `yaml:"terms_url"`
	TermsText       string `yaml:"terms_text"`
	SupportURL      string `yaml:"support_url"`
	SupportText     string `yaml:"support_text"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Analytics: AnalyticsConfig{
			CustomMap: map[string]string{
				"page_id":    "mw:page_id",
				"page_title": "mw:page_title",
			},
			UserAgent:         "pageviewinfo",
			MaxFailureBackoff: Duration(time.Minute),
		},
		Cache: CacheConfig{
			CachedDays:    30,
			MaxDays:       60,
			Timezone:      "UTC",
			PruneInterval: Duration(6 * time.Hour),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/pageviewinfo.db",
		},
		Server: ServerConfig{
			Address:         "localhost:8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT save back to disk.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// yaml merges into existing maps, so a configured custom map
		// replaces the default one instead of extending it
		defaultMap := cfg.Analytics.CustomMap
		cfg.Analytics.CustomMap = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if len(cfg.Analytics.CustomMap) == 0 {
			cfg.Analytics.CustomMap = defaultMap
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	// Environment values are applied after saving so they never end up on disk
	applyEnv(cfg)
	expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if cfg.Analytics.CredentialsFile == "" {
		if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" {
			cfg.Analytics.CredentialsFile = v
		}
	}
	if cfg.Analytics.ProfileID == "" {
		if v := os.Getenv("PAGEVIEW_PROFILE_ID"); v != "" {
			cfg.Analytics.ProfileID = v
		}
	}
	if cfg.Analytics.TrackingID == "" {
		if v := os.Getenv("PAGEVIEW_TRACKING_ID"); v != "" {
			cfg.Analytics.TrackingID = v
		}
	}
}

// expandPaths resolves $VAR references in file paths.
func expandPaths(cfg *Config) {
	cfg.Analytics.CredentialsFile = os.ExpandEnv(cfg.Analytics.CredentialsFile)
	cfg.DB.Path = os.ExpandEnv(cfg.DB.Path)
	cfg.Log.Server.Path = os.ExpandEnv(cfg.Log.Server.Path)
	cfg.Log.Requests.Path = os.ExpandEnv(cfg.Log.Requests.Path)
}

var trackingIDPattern = regexp.MustCompile(`^(G|UA)-[A-Z0-9-]+$`)

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Cache.Timezone); err != nil {
		return fmt.Errorf("invalid cache.timezone '%s': %w", c.Cache.Timezone, err)
	}
	if c.Cache.MaxDays <= 0 {
		return fmt.Errorf("invalid cache.max_days %d: must be positive", c.Cache.MaxDays)
	}
	if c.Analytics.FailureBackoff < 0 || c.Analytics.MaxFailureBackoff < 0 {
		return fmt.Errorf("invalid analytics failure backoff: must not be negative")
	}
	if c.Analytics.TrackingID != "" && !trackingIDPattern.MatchString(c.Analytics.TrackingID) {
		return fmt.Errorf("invalid analytics.tracking_id format '%s': must look like 'G-XXXXXXX'", c.Analytics.TrackingID)
	}
	return nil
}

// Location returns the time zone that days are counted in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Cache.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pageviewinfo configuration
# ---------------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
# Environment fallbacks for empty values:
#   GOOGLE_APPLICATION_CREDENTIALS, PAGEVIEW_PROFILE_ID, PAGEVIEW_TRACKING_ID

`)
	data = append(header, data...)

	reCustom := regexp.MustCompile(`(?m)^(\s+)read_custom_dimensions:`)
	data = reCustom.ReplaceAll(data, []byte("${1}# Match titles on the custom_map dimension instead of the HTML title\n${1}read_custom_dimensions:"))

	reBackoff := regexp.MustCompile(`(?m)^(\s+)failure_backoff:`)
	data = reBackoff.ReplaceAll(data, []byte("${1}# Pause after a failed reporting call, doubling per failure (0 = off)\n${1}failure_backoff:"))

	reTZ := regexp.MustCompile(`(?m)^(\s+)timezone:`)
	data = reTZ.ReplaceAll(data, []byte("${1}# IANA zone in which a day ends, e.g. Asia/Seoul\n${1}timezone:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
