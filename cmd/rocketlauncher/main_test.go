package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rocketlauncher/internal/config"
	"github.com/2389/rocketlauncher/internal/store"
)

func writeConfig(t *testing.T, dir, httpAddr string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`server:
  http_addr: %q
database:
  path: %q
session:
  secret: "0123456789abcdef0123456789abcdef"
workflows:
  base_url: "http://127.0.0.1:3000"
assistants:
  api_key: "sk-test"
`, httpAddr, filepath.Join(dir, "rocketlauncher.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("ROCKETLAUNCHER_CONFIG", "/etc/rl.yaml")
	assert.Equal(t, "/etc/rl.yaml", getConfigPath())

	t.Setenv("ROCKETLAUNCHER_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "rocketlauncher", "config.yaml"), getConfigPath())

	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, filepath.Join("/home/tester", ".config", "rocketlauncher", "config.yaml"), getConfigPath())
}

func TestSetupLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := setupLogger(config.LoggingConfig{Level: tt.level})
			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tt.want))
			assert.False(t, logger.Enabled(ctx, tt.want-1))
		})
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	logger := setupLogger(config.LoggingConfig{Format: "json"})
	_, ok := logger.Handler().(*slog.JSONHandler)
	assert.True(t, ok)
}

func TestColorHandler_Format(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := slog.New(newColorHandler(&buf, slog.LevelInfo)).With("component", "chat")

	logger.Debug("hidden")
	logger.WithGroup("req").Warn("send failed", "kind", "rate_limited")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WRN send failed component=chat req.kind=rate_limited")
}

func TestRunSeed(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "127.0.0.1:0")

	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`workflows:
  - id: math
    title: Math Tutor
    chatflow_id: flow123
assistants:
  - id: ada
    name: Ada
    assistant_id: asst_ada
`), 0600))

	require.NoError(t, runSeed(context.Background(), configPath, []string{seedPath}))

	s, err := store.NewSQLiteStore(filepath.Join(dir, "rocketlauncher.db"))
	require.NoError(t, err)
	defer s.Close()

	wf, err := store.GetWorkflow(context.Background(), s, "math")
	require.NoError(t, err)
	assert.Equal(t, "flow123", wf.ChatflowID)

	a, err := store.GetAssistant(context.Background(), s, "ada")
	require.NoError(t, err)
	assert.Equal(t, "asst_ada", a.AssistantID)
}

func TestRunSeed_Usage(t *testing.T) {
	err := runSeed(context.Background(), "unused.yaml", nil)
	assert.ErrorContains(t, err, "usage")
}

func TestRunHealth(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		w.WriteHeader(int(status.Load()))
	})}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })

	configPath := writeConfig(t, t.TempDir(), ln.Addr().String())
	require.NoError(t, runHealth(context.Background(), configPath))

	status.Store(http.StatusServiceUnavailable)
	assert.ErrorContains(t, runHealth(context.Background(), configPath), "unhealthy")
}
