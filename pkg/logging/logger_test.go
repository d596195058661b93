package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pageviewinfo/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	// A previous run's log gets rotated
	if err := os.WriteFile(serverLog, []byte("previous run\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	prev := slog.Default()
	defer slog.SetDefault(prev)

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}
	old, err := os.ReadFile(serverLog + ".old")
	if err != nil || string(old) != "previous run\n" {
		t.Errorf("Expected rotated log, got %q (%v)", old, err)
	}

	slog.Info("capture me", "k", "v")
	if !strings.Contains(GlobalLogCapture.GetLastLine(), "capture me") {
		t.Errorf("Expected captured line, got %q", GlobalLogCapture.GetLastLine())
	}

	RequestLogger.Info("request line")
	data, err := os.ReadFile(requestLog)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "request line") {
		t.Errorf("Request log missing entry: %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	defer func() { EnableTrace = false }()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if EnableTrace {
		t.Error("Trace must stay off for non-TRACE levels")
	}
	if got := ParseLevel("trace"); got != slog.LevelDebug || !EnableTrace {
		t.Errorf("ParseLevel(trace) = %v, trace %v", got, EnableTrace)
	}
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}}
	logger := slog.New(h).With("scope", "site")

	logger.Debug("only a")
	logger.Warn("both")

	if !strings.Contains(a.String(), "only a") || !strings.Contains(a.String(), "both") {
		t.Errorf("handler a missing lines: %q", a.String())
	}
	if strings.Contains(b.String(), "only a") || !strings.Contains(b.String(), "scope=site") {
		t.Errorf("handler b unexpected output: %q", b.String())
	}
	if h.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Error("multiHandler should not enable levels below every handler")
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	EnableTrace = false
	Trace(logger, "hidden")
	EnableTrace = true
	Trace(logger, "shown")
	EnableTrace = false

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected trace output: %q", buf.String())
	}
}
