package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dm/twemcheck/internal/check"
	"github.com/dm/twemcheck/internal/config"
)

func parseFlags(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	fs := newFlagSet()
	require.NoError(t, fs.Parse(args))
	return buildConfig(fs)
}

func TestBuildConfigDefaults(t *testing.T) {
	cfg, err := parseFlags(t, "-H", "proxy01")
	require.NoError(t, err)

	assert.Equal(t, "proxy01", cfg.Host)
	assert.Equal(t, 22222, cfg.Port)
	assert.Equal(t, 0, cfg.Warning)
	assert.Equal(t, 10, cfg.Critical)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.False(t, cfg.Verbose)
}

func TestBuildConfigFlags(t *testing.T) {
	cfg, err := parseFlags(t,
		"--host", "proxy01",
		"--port", "23333",
		"--warning", "2",
		"--critical", "20",
		"--timeout", "2s",
		"--verbose")
	require.NoError(t, err)

	assert.Equal(t, 23333, cfg.Port)
	assert.Equal(t, 2, cfg.Warning)
	assert.Equal(t, 20, cfg.Critical)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.True(t, cfg.Verbose)
}

func TestBuildConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"missing host", nil},
		{"bad port", []string{"-H", "proxy01", "-p", "0"}},
		{"negative warning", []string{"-H", "proxy01", "-w", "-1"}},
		{"positional argument", []string{"-H", "proxy01", "extra"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseFlags(t, tc.args...)
			assert.Error(t, err)
		})
	}
}

func TestBuildConfigFilePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "check.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 23333\nwarning: 5\n"), 0o644))

	// File overrides defaults; explicit flags override the file.
	cfg, err := parseFlags(t, "-H", "proxy01", "--config", path, "-w", "7")
	require.NoError(t, err)

	assert.Equal(t, 23333, cfg.Port)
	assert.Equal(t, 7, cfg.Warning)
}

// serveStats answers every connection with payload and closes it.
func serveStats(t *testing.T, payload string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte(payload))
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunEstablishesBaselineThenDetects(t *testing.T) {
	payload := `{
		"service": "nutcracker",
		"alpha": {
			"10.0.0.2:6379": {"server_connections": 0, "requests": 100, "server_timedout": 5}
		}
	}`
	port := serveStats(t, payload)

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.CacheDir = t.TempDir()
	cfg.Timeout = 2 * time.Second

	// First run has no baseline: OK, and a snapshot file appears.
	status, line, snap := run(context.Background(), cfg, zap.NewNop())
	assert.Equal(t, check.StatusOK, status)
	assert.Equal(t, "TWEMPROXY OK : 127.0.0.1", line)
	require.NotNil(t, snap)

	entries, err := os.ReadDir(cfg.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "twemproxy-"))

	// Second run sees zero connections with no request progress: one
	// disconnect, above the default warning threshold.
	status, line, _ = run(context.Background(), cfg, zap.NewNop())
	assert.Equal(t, check.StatusWarning, status)
	assert.Contains(t, line, "TWEMPROXY WARNING : ")
	assert.Contains(t, line, "disconnects=1")
	assert.Contains(t, line, "disconnected_shards=10.0.0.2:6379")
}

func TestRunProgressingShardStaysOK(t *testing.T) {
	baseline := `{"alpha": {"s1": {"server_connections": 0, "requests": 100, "server_timedout": 0}}}`
	progressed := `{"alpha": {"s1": {"server_connections": 0, "requests": 150, "server_timedout": 0}}}`

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.CacheDir = t.TempDir()
	cfg.Timeout = 2 * time.Second

	cfg.Port = serveStats(t, baseline)
	status, _, _ := run(context.Background(), cfg, zap.NewNop())
	require.Equal(t, check.StatusOK, status)

	cfg.Port = serveStats(t, progressed)
	status, line, _ := run(context.Background(), cfg, zap.NewNop())
	assert.Equal(t, check.StatusOK, status)
	assert.Equal(t, "TWEMPROXY OK : 127.0.0.1", line)
}

func TestRunFetchFailureIsUnknown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.CacheDir = t.TempDir()
	cfg.Timeout = time.Second

	status, line, _ := run(context.Background(), cfg, zap.NewNop())
	assert.Equal(t, check.StatusUnknown, status)
	assert.True(t, strings.HasPrefix(line, "TWEMPROXY UNKNOWN : "))
}
