package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3000, cfg.Server.Port)
	require.Equal(t, DriverSQLite, cfg.Storage.Driver)
	require.Equal(t, "auto", cfg.Auth.CookieSecure)
	require.Equal(t, 12*time.Hour, cfg.Auth.SessionMaxAge)
	require.False(t, cfg.Seed.OnStart)
	require.InDelta(t, 0.2, cfg.Auth.SignInRPS, 1e-9)
	require.Equal(t, 5, cfg.Auth.SignInBurst)
	require.Equal(t, "engine-proxy", cfg.Tracing.ServiceName)
	require.InDelta(t, 1.0, cfg.Tracing.SampleRatio, 1e-9)
	require.Equal(t, ":3000", cfg.Addr())
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout: 3s
auth:
  username: admin
  password: s3cret
  cookie_secure: "TRUE"
  session_max_age: 1h
  sign_in_rps: 0
  trusted_proxies: ["10.0.0.0/8", "192.0.2.1"]
storage:
  driver: Postgres
  dsn: postgres://localhost/engines
  max_conns: 8
  min_conns: 2
logging:
  development: true
seed:
  on_start: true
tracing:
  sample_ratio: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 3*time.Second, cfg.Server.RequestTimeout)
	require.Equal(t, "admin", cfg.Auth.Username)
	require.Equal(t, "s3cret", cfg.Auth.Password)
	require.Equal(t, "true", cfg.Auth.CookieSecure)
	require.Equal(t, time.Hour, cfg.Auth.SessionMaxAge)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, int32(8), cfg.Storage.MaxConns)
	require.True(t, cfg.Logging.Development)
	require.True(t, cfg.Seed.OnStart)
	require.Zero(t, cfg.Auth.SignInRPS)
	require.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Auth.TrustedProxies)
	require.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("ENGINE_PROXY_STORAGE_DRIVER", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4000, cfg.Server.Port)
	require.Equal(t, "root", cfg.Auth.Username)
	require.Equal(t, "hunter2", cfg.Auth.Password)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)

	t.Setenv("ENGINE_PROXY_AUTH_USERNAME", "preferred")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "preferred", cfg.Auth.Username)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Auth:    AuthConfig{CookieSecure: "auto", SessionMaxAge: time.Hour},
		Storage: StorageConfig{Driver: DriverMemory},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad cookie mode", func(c *Config) { c.Auth.CookieSecure = "sometimes" }, "auth.cookie_secure"},
		{"zero session age", func(c *Config) { c.Auth.SessionMaxAge = 0 }, "auth.session_max_age"},
		{"negative sign-in rate", func(c *Config) { c.Auth.SignInRPS = -1 }, "auth.sign_in_rps"},
		{"sign-in burst missing", func(c *Config) { c.Auth.SignInRPS = 1 }, "auth.sign_in_burst"},
		{"bad trusted proxy", func(c *Config) { c.Auth.TrustedProxies = []string{"lb.internal"} }, "auth.trusted_proxies"},
		{"sample ratio above one", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "tracing.sample_ratio"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, "storage.driver"},
		{"sqlite without path", func(c *Config) { c.Storage.Driver = DriverSQLite }, "storage.path"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "storage.dsn"},
		{"postgres pool bounds", func(c *Config) {
			c.Storage = StorageConfig{Driver: DriverPostgres, DSN: "postgres://x", MaxConns: 2, MinConns: 3}
		}, "storage.min_conns"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadDiscoversWorkingDirectoryFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine-proxy.yaml"), []byte("server:\n  port: 7070\n"), 0o600))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
}
