package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, SizeBytes(64<<10), cfg.Server.MaxBodySize)
	assert.True(t, cfg.Server.KeepAlive)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "conduit.yaml", `
server:
  addr: "127.0.0.1:9000"
  max_body_size: 1MiB
  handler_timeout: 2s
  max_connections: 128
  http2: true
logging:
  level: debug
  format: json
cors:
  allowed_origins: ["https://a.example", "https://b.example"]
rate_limit:
  rps: 50
  burst: 10
`)
	cfg, err := Load(path, writeFile(t, "empty.env", ""))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, SizeBytes(1<<20), cfg.Server.MaxBodySize)
	assert.Equal(t, 2*time.Second, cfg.Server.HandlerTimeout)
	assert.Equal(t, 128, cfg.Server.MaxConnections)
	assert.True(t, cfg.Server.HTTP2)
	assert.True(t, cfg.Server.KeepAlive, "unset keys keep their defaults")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.InDelta(t, 50.0, cfg.RateLimit.RPS, 0)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server:\n  port: 80\n")
	_, err := Load(path, writeFile(t, "empty.env", ""))
	require.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""), writeFile(t, "empty.env", ""))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "conduit.yaml", "server:\n  addr: \":9000\"\n")
	t.Setenv("CONDUIT_SERVER_ADDR", ":9100")
	t.Setenv("CONDUIT_SERVER_MAX_BODY_SIZE", "2MB")
	t.Setenv("CONDUIT_SERVER_IDLE_TIMEOUT", "5s")
	t.Setenv("CONDUIT_CORS_ALLOWED_ORIGINS", "https://x.example,https://y.example")

	cfg, err := Load(path, writeFile(t, "empty.env", ""))
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, SizeBytes(2_000_000), cfg.Server.MaxBodySize)
	assert.Equal(t, 5*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.CORS.AllowedOrigins)
}

func TestEnvFile(t *testing.T) {
	envFile := writeFile(t, "test.env", "CONDUIT_LOG_LEVEL=warn\nCONDUIT_METRICS_ENABLED=true\n")
	t.Cleanup(func() {
		os.Unsetenv("CONDUIT_LOG_LEVEL")
		os.Unsetenv("CONDUIT_METRICS_ENABLED")
	})

	cfg, err := Load("", envFile)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = " "
	assert.ErrorIs(t, cfg.Validate(), ErrMissingAddress)

	cfg = Default()
	cfg.Server.HandlerTimeout = -time.Second
	cfg.Logging.Format = "xml"
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "server.handler_timeout")
	assert.Contains(t, err.Error(), "logging.format")

	cfg = Default()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "metrics"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidValue)
}

func TestSizeBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    SizeBytes
		wantErr bool
	}{
		{"64KiB", 64 << 10, false},
		{"1MB", 1_000_000, false},
		{"4096", 4096, false},
		{"", 0, false},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var s SizeBytes
			err := s.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
		})
	}

	var out struct {
		Size SizeBytes `yaml:"size"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("size: 8KiB"), &out))
	assert.Equal(t, SizeBytes(8<<10), out.Size)
	assert.Equal(t, "8.0 KiB", out.Size.String())
}

func TestServerCore(t *testing.T) {
	s := Default().Server
	s.MaxConnections = 10
	s.HTTP2 = true
	c := s.Core()
	assert.Equal(t, int64(64<<10), c.MaxBodySize)
	assert.Equal(t, 10, c.MaxConnections)
	assert.True(t, c.HTTP2)
	assert.Equal(t, s.IdleTimeout, c.IdleTimeout)
}

func TestFromFlags(t *testing.T) {
	path := writeFile(t, "conduit.yaml", "server:\n  addr: \":9000\"\n")
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := FromFlags(fs, []string{"-config", path, "-addr", ":7000"})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
}
