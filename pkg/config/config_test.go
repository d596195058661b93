package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "pageviewinfo.yaml")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Cache.CachedDays != 30 {
					t.Errorf("expected default cached_days 30, got %d", cfg.Cache.CachedDays)
				}
				if cfg.Analytics.CustomMap["page_title"] != "mw:page_title" {
					t.Errorf("expected default custom map entry for page_title, got %v", cfg.Analytics.CustomMap)
				}
				if cfg.Cache.PruneInterval.Std() != 6*time.Hour {
					t.Errorf("expected prune interval 6h, got %v", cfg.Cache.PruneInterval.Std())
				}
				if cfg.Analytics.FailureBackoff != 0 {
					t.Errorf("expected failure backoff off by default, got %v", cfg.Analytics.FailureBackoff.Std())
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "cached_days: 30") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# IANA zone") {
					t.Error("config file missing timezone comment")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				err := os.WriteFile(configPath, []byte("analytics:\n  profile_id: \"123456\"\n  read_custom_dimensions: true\ncache:\n  cached_days: 90\n  timezone: Asia/Seoul\n  prune_interval: 1d\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Analytics.ProfileID != "123456" {
					t.Errorf("expected profile id '123456', got '%s'", cfg.Analytics.ProfileID)
				}
				if !cfg.Analytics.ReadCustomDimensions {
					t.Error("expected read_custom_dimensions true")
				}
				if cfg.Cache.CachedDays != 90 {
					t.Errorf("expected cached_days 90, got %d", cfg.Cache.CachedDays)
				}
				if cfg.Cache.PruneInterval.Std() != 24*time.Hour {
					t.Errorf("expected prune interval 24h, got %v", cfg.Cache.PruneInterval.Std())
				}
				if cfg.Location().String() != "Asia/Seoul" {
					t.Errorf("expected location Asia/Seoul, got %s", cfg.Location())
				}
				// Untouched sections keep their defaults
				if cfg.Server.Address != "localhost:8080" {
					t.Errorf("expected default address, got '%s'", cfg.Server.Address)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "server:") {
					t.Error("existing config file must not be rewritten")
				}
			},
		},
		{
			name: "Analytics_Env_Fallback",
			setup: func() {
				t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/secrets/sa.json")
				t.Setenv("PAGEVIEW_PROFILE_ID", "987")
				t.Setenv("PAGEVIEW_TRACKING_ID", "G-ENVTEST")
				err := os.WriteFile(configPath, []byte("analytics:\n  profile_id: \"\"\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Analytics.CredentialsFile != "/secrets/sa.json" {
					t.Errorf("expected credentials from env, got '%s'", cfg.Analytics.CredentialsFile)
				}
				if cfg.Analytics.ProfileID != "987" {
					t.Errorf("expected profile id from env, got '%s'", cfg.Analytics.ProfileID)
				}
				if cfg.Analytics.TrackingID != "G-ENVTEST" {
					t.Errorf("expected tracking id from env, got '%s'", cfg.Analytics.TrackingID)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "987") {
					t.Error("environment values should NOT be persisted to config file")
				}
			},
		},
		{
			name: "Path_Env_Expansion",
			setup: func() {
				t.Setenv("PAGEVIEW_HOME", "/srv/pageview")
				err := os.WriteFile(configPath, []byte("db:\n  path: \"$PAGEVIEW_HOME/cache.db\"\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.DB.Path != "/srv/pageview/cache.db" {
					t.Errorf("expected expanded DB path, got '%s'", cfg.DB.Path)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "$PAGEVIEW_HOME") {
					t.Error("config file should persist raw $VAR path")
				}
			},
		},
		{
			name: "CustomMap_Replaces_Defaults",
			setup: func() {
				err := os.WriteFile(configPath, []byte("analytics:\n  custom_map:\n    dimension2: mw:page_title\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				want := map[string]string{"dimension2": "mw:page_title"}
				if !reflect.DeepEqual(cfg.Analytics.CustomMap, want) {
					t.Errorf("expected custom map %v, got %v", want, cfg.Analytics.CustomMap)
				}
				if DefaultConfig().Analytics.CustomMap["page_title"] != "mw:page_title" {
					t.Error("default custom map must not be modified by Load")
				}
			},
			checkFile: func(t *testing.T) {},
		},
		{
			name: "CustomMap_Empty_Keeps_Defaults",
			setup: func() {
				err := os.WriteFile(configPath, []byte("analytics:\n  profile_id: \"1\"\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				want := DefaultConfig().Analytics.CustomMap
				if !reflect.DeepEqual(cfg.Analytics.CustomMap, want) {
					t.Errorf("expected default custom map %v, got %v", want, cfg.Analytics.CustomMap)
				}
			},
			checkFile: func(t *testing.T) {},
		},
		{
			name: "FailureBackoff_OptIn",
			setup: func() {
				err := os.WriteFile(configPath, []byte("analytics:\n  failure_backoff: 2s\n  max_failure_backoff: 1m\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Analytics.FailureBackoff.Std() != 2*time.Second {
					t.Errorf("expected failure backoff 2s, got %v", cfg.Analytics.FailureBackoff.Std())
				}
				if cfg.Analytics.MaxFailureBackoff.Std() != time.Minute {
					t.Errorf("expected max failure backoff 1m, got %v", cfg.Analytics.MaxFailureBackoff.Std())
				}
			},
			checkFile: func(t *testing.T) {},
		},
		{
			name: "Invalid_YAML",
			setup: func() {
				err := os.WriteFile(configPath, []byte("cache: [not a map]"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Invalid_Timezone",
			setup: func() {
				err := os.WriteFile(configPath, []byte("cache:\n  timezone: Mars/Olympus\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Invalid_TrackingID",
			setup: func() {
				err := os.WriteFile(configPath, []byte("analytics:\n  tracking_id: not-an-id\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if (err != nil) != tt.expectedError {
				t.Fatalf("Load() error = %v, expectedError %v", err, tt.expectedError)
			}
			if err == nil {
				tt.validate(t, cfg)
				tt.checkFile(t)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nested", "default_config.yaml")

	if err := GenerateDefault(configPath); err != nil {
		t.Fatalf("GenerateDefault() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("GenerateDefault() did not create file")
	}

	// Running again should not fail
	if err := GenerateDefault(configPath); err != nil {
		t.Errorf("GenerateDefault() error on second run = %v", err)
	}
}
