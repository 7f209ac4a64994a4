// Package config loads and validates engine proxy configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Seed    SeedConfig    `mapstructure:"seed"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig holds the admin credentials and session cookie settings.
type AuthConfig struct {
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	CookieSecure  string        `mapstructure:"cookie_secure"`
	SessionMaxAge time.Duration `mapstructure:"session_max_age"`
	// SignInRPS throttles sign-in attempts per client. Zero disables it.
	SignInRPS   float64 `mapstructure:"sign_in_rps"`
	SignInBurst int     `mapstructure:"sign_in_burst"`
	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For is honored when
	// keying the sign-in throttle.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// StorageConfig selects and tunes the catalog store.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SeedConfig controls loading the built-in engines at startup.
type SeedConfig struct {
	OnStart bool `mapstructure:"on_start"`
}

// TracingConfig controls OpenTelemetry span sampling.
type TracingConfig struct {
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENGINE_PROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		// Without an explicit path an engine-proxy.{yaml,toml,json} in the
		// working directory or /etc/engine-proxy is optional.
		v.SetConfigName("engine-proxy")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/engine-proxy/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Auth.CookieSecure = strings.ToLower(strings.TrimSpace(cfg.Auth.CookieSecure))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.cookie_secure", "auto")
	v.SetDefault("auth.session_max_age", 12*time.Hour)
	v.SetDefault("auth.sign_in_rps", 0.2)
	v.SetDefault("auth.sign_in_burst", 5)
	v.SetDefault("auth.trusted_proxies", []string{})
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.path", "data/engine-proxy.db")
	v.SetDefault("storage.table", "search_engines")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.min_conns", 0)
	v.SetDefault("storage.max_conn_lifetime", 30*time.Minute)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("seed.on_start", false)
	v.SetDefault("tracing.service_name", "engine-proxy")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// bindEnv adds the unprefixed variable names common on hosting platforms.
// Earlier names win.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.port":   {"ENGINE_PROXY_SERVER_PORT", "PORT"},
		"auth.username": {"ENGINE_PROXY_AUTH_USERNAME", "ADMIN_USERNAME"},
		"auth.password": {"ENGINE_PROXY_AUTH_PASSWORD", "ADMIN_PASSWORD"},
		"storage.dsn":   {"ENGINE_PROXY_STORAGE_DSN", "DATABASE_URL"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must be >= 0")
	}
	switch c.Auth.CookieSecure {
	case "auto", "true", "false":
	default:
		return fmt.Errorf("auth.cookie_secure must be one of auto, true, false")
	}
	if c.Auth.SessionMaxAge <= 0 {
		return fmt.Errorf("auth.session_max_age must be > 0")
	}
	if c.Auth.SignInRPS < 0 {
		return fmt.Errorf("auth.sign_in_rps must be >= 0")
	}
	if c.Auth.SignInRPS > 0 && c.Auth.SignInBurst <= 0 {
		return fmt.Errorf("auth.sign_in_burst must be > 0 when sign-in throttling is enabled")
	}
	for _, proxy := range c.Auth.TrustedProxies {
		if !validProxy(strings.TrimSpace(proxy)) {
			return fmt.Errorf("auth.trusted_proxies: %q is not an IP or CIDR", proxy)
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
		if c.Storage.MaxConns <= 0 {
			return fmt.Errorf("storage.max_conns must be > 0")
		}
		if c.Storage.MinConns < 0 || c.Storage.MinConns > c.Storage.MaxConns {
			return fmt.Errorf("storage.min_conns must be between 0 and storage.max_conns")
		}
	default:
		return fmt.Errorf("storage.driver must be one of memory, sqlite, postgres")
	}
	return nil
}

func validProxy(v string) bool {
	if _, err := netip.ParsePrefix(v); err == nil {
		return true
	}
	_, err := netip.ParseAddr(v)
	return err == nil
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
