package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/drivegate/internal/server"
	"github.com/openmined/drivegate/internal/utils"
)

func testCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cmd := testCmd(t)
	home := os.Getenv("HOME")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, server.DefaultAddr, cfg.HTTP.Addr)
	assert.Equal(t, server.DefaultShutdownTimeout, cfg.HTTP.ShutdownTimeout)
	assert.Empty(t, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "drivegate_session", cfg.Session.CookieName)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 10*time.Minute, cfg.Auth.StateExpiry)
	assert.Equal(t, "/", cfg.Auth.PostLoginPath)
	assert.Equal(t, server.DefaultMaxBodySize, cfg.Upload.MaxBodySize)
	assert.Equal(t, utils.ByteSize(0), cfg.Drive.ChunkSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, filepath.Join(home, ".drivegate", "logs"), cfg.LogDir)
}

func TestLoadConfigEnv(t *testing.T) {
	cmd := testCmd(t)

	t.Setenv("DRIVEGATE_HTTP_ADDR", ":9090")
	t.Setenv("DRIVEGATE_HTTP_DEV_MODE", "true")
	t.Setenv("DRIVEGATE_HTTP_CORS_ORIGINS", "https://a.example.com,https://b.example.com")
	t.Setenv("DRIVEGATE_HTTP_SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("DRIVEGATE_AUTH_CLIENT_ID", "env-client")
	t.Setenv("DRIVEGATE_AUTH_CLIENT_SECRET", "env-secret")
	t.Setenv("DRIVEGATE_AUTH_STATE_EXPIRY", "5m")
	t.Setenv("DRIVEGATE_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("DRIVEGATE_SESSION_MAX_SESSIONS", "50")
	t.Setenv("DRIVEGATE_DRIVE_PLAIN_TEXT_MEDIA", "true")
	t.Setenv("DRIVEGATE_DRIVE_CHUNK_SIZE", "1MiB")
	t.Setenv("DRIVEGATE_UPLOAD_MAX_BODY_SIZE", "10MB")
	t.Setenv("DRIVEGATE_LOG_LEVEL", "debug")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.HTTP.DevMode)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "env-client", cfg.Auth.ClientID)
	assert.Equal(t, "env-secret", cfg.Auth.ClientSecret)
	assert.Equal(t, 5*time.Minute, cfg.Auth.StateExpiry)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Session.Secret)
	assert.Equal(t, 50, cfg.Session.MaxSessions)
	assert.True(t, cfg.Drive.PlainTextMedia)
	assert.Equal(t, utils.ByteSize(1<<20), cfg.Drive.ChunkSize)
	assert.Equal(t, utils.ByteSize(10_000_000), cfg.Upload.MaxBodySize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
http:
  addr: localhost:8443
  cert_file: test-cert.pem
  key_file: test-key.pem
  hsts: true

auth:
  client_secret_file: client_secret.json
  redirect_url: https://drive.example.com/signin-google

session:
  secret: yaml-secret-yaml-secret-yaml-secret
  ttl: 2h
  secure: true

upload:
  max_body_size: 512MiB

download:
  spool_dir: spool

log_dir: /var/log/drivegate
`)
	cmd := testCmd(t, "--config", path)

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8443", cfg.HTTP.Addr)
	assert.Equal(t, filepath.Join(cwd, "test-cert.pem"), cfg.HTTP.CertFile)
	assert.Equal(t, filepath.Join(cwd, "test-key.pem"), cfg.HTTP.KeyFile)
	assert.True(t, cfg.HTTP.HSTS)
	assert.Equal(t, filepath.Join(cwd, "client_secret.json"), cfg.Auth.ClientSecretFile)
	assert.Equal(t, "https://drive.example.com/signin-google", cfg.Auth.RedirectURL)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, utils.ByteSize(512<<20), cfg.Upload.MaxBodySize)
	assert.Equal(t, filepath.Join(cwd, "spool"), cfg.Download.SpoolDir)
	assert.Equal(t, "/var/log/drivegate", cfg.LogDir)
}

func TestLoadConfigJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `
{
	"http": {
		"addr": "localhost:38080",
		"cors_origins": ["https://app.example.com"]
	},
	"auth": {
		"client_id": "json-client",
		"client_secret": "json-secret",
		"state_expiry": "90s"
	},
	"drive": {
		"endpoint": "http://localhost:9999/drive/v3/"
	}
}
`)
	cmd := testCmd(t, "--config", path)

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "localhost:38080", cfg.HTTP.Addr)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "json-client", cfg.Auth.ClientID)
	assert.Equal(t, 90*time.Second, cfg.Auth.StateExpiry)
	assert.Equal(t, "http://localhost:9999/drive/v3/", cfg.Drive.Endpoint)
	assert.Equal(t, "drivegate_session", cfg.Session.CookieName) // default kept
}

func TestLoadConfigFlags(t *testing.T) {
	path := writeConfig(t, "config.yaml", "http:\n  addr: localhost:1111\n")
	cmd := testCmd(t, "--config", path, "--bind", "localhost:2222", "-c", "/tls/cert.pem", "-k", "/tls/key.pem")

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "localhost:2222", cfg.HTTP.Addr)
	assert.Equal(t, "/tls/cert.pem", cfg.HTTP.CertFile)
	assert.Equal(t, "/tls/key.pem", cfg.HTTP.KeyFile)
}

func TestLoadConfigHomeDir(t *testing.T) {
	cmd := testCmd(t)
	dir := filepath.Join(os.Getenv("HOME"), ".drivegate")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log:\n  level: warn\n"), 0o600))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "http: [unclosed\n")
	cmd := testCmd(t, "--config", path)

	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "config read")
}

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	require.NoError(t, setLogLevel("warn"))
	assert.Equal(t, slog.LevelWarn, logLevel.Level())

	require.NoError(t, setLogLevel(""))
	assert.Equal(t, slog.LevelWarn, logLevel.Level())

	assert.Error(t, setLogLevel("loud"))
}
