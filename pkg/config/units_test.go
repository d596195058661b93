package config

import (
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"", 0, false},
		{"10s", 10 * time.Second, false},
		{"1m", 1 * time.Minute, false},
		{"1.5h", 90 * time.Minute, false},
		{"1d", 24 * time.Hour, false},
		{"1w", 168 * time.Hour, false},
		{"2d2h", 50 * time.Hour, false},
		{"100ms", 100 * time.Millisecond, false},
		{"invalid", 0, true},
		{"3dx", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestDurationYAML(t *testing.T) {
	type testConfig struct {
		Prune Duration `yaml:"prune"`
	}

	var cfg testConfig
	if err := yaml.Unmarshal([]byte("prune: 2d\n"), &cfg); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if cfg.Prune.Std() != 48*time.Hour {
		t.Errorf("Expected 48h, got %v", cfg.Prune.Std())
	}

	out, err := yaml.Marshal(testConfig{Prune: Duration(90 * time.Minute)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != "prune: 1h30m0s\n" {
		t.Errorf("Unexpected YAML %q", out)
	}
}
