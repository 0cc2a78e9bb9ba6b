// Package config loads the tipgate service configuration: defaults, then a
// YAML file, then TIPGATE_* environment variables, then validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/netpolicy"
	"github.com/MrEthical07/tipgate/store"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"   envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log"      envPrefix:"LOG_"`
	Store    StoreConfig    `yaml:"store"    envPrefix:"STORE_"`
	Redis    RedisConfig    `yaml:"redis"    envPrefix:"REDIS_"`
	Session  SessionConfig  `yaml:"session"  envPrefix:"SESSION_"`
	Throttle ThrottleConfig `yaml:"throttle" envPrefix:"THROTTLE_"`
	Password PasswordConfig `yaml:"password" envPrefix:"PASSWORD_"`
	Audit    AuditConfig    `yaml:"audit"    envPrefix:"AUDIT_"`
	Metrics  MetricsConfig  `yaml:"metrics"  envPrefix:"METRICS_"`
	// Tenants are upserted into the store at startup.
	Tenants []TenantConfig `yaml:"tenants"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"                env:"ADDR"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"    env:"SHUTDOWN_TIMEOUT"`
	DefaultTenantID   int           `yaml:"default_tenant_id"   env:"DEFAULT_TENANT_ID"`
	TrustProxyHeaders bool          `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`
	TorHeader         string        `yaml:"tor_header"          env:"TOR_HEADER"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// StoreConfig selects the credential store. Driver is "memory", "sqlite" or
// "postgres".
type StoreConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn"    env:"DSN"`
}

// RedisConfig enables the shared session registry and throttle counter
// when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db"       env:"DB"`
}

type SessionConfig struct {
	TTL              time.Duration `yaml:"ttl"               env:"TTL"`
	AbsoluteLifetime time.Duration `yaml:"absolute_lifetime" env:"ABSOLUTE_LIFETIME"`
	JanitorInterval  time.Duration `yaml:"janitor_interval"  env:"JANITOR_INTERVAL"`
	RedisPrefix      string        `yaml:"redis_prefix"      env:"REDIS_PREFIX"`
}

type ThrottleConfig struct {
	UniformResponseTime time.Duration `yaml:"uniform_response_time" env:"UNIFORM_RESPONSE_TIME"`
	RedisKey            string        `yaml:"redis_key"             env:"REDIS_KEY"`
}

type PasswordConfig struct {
	Scheme string `yaml:"scheme" env:"SCHEME"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"     env:"ENABLED"`
	BufferSize int  `yaml:"buffer_size" env:"BUFFER_SIZE"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path"    env:"PATH"`
}

// TenantConfig declares one tenant. Active defaults to true.
type TenantConfig struct {
	ID          int              `yaml:"id"`
	Active      *bool            `yaml:"active"`
	ReceiptSalt string           `yaml:"receipt_salt"`
	Network     netpolicy.Policy `yaml:"network"`
}

func (t TenantConfig) Tenant() store.Tenant {
	active := true
	if t.Active != nil {
		active = *t.Active
	}
	return store.Tenant{
		ID:          t.ID,
		Active:      active,
		ReceiptSalt: t.ReceiptSalt,
		Network:     t.Network,
	}
}

func Defaults() Config {
	engine := tipgate.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			DefaultTenantID:   store.RootTenantID,
			TorHeader:         "X-Tor-Request",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Driver: "memory",
		},
		Session: SessionConfig{
			TTL:              engine.Session.TTL,
			AbsoluteLifetime: engine.Session.AbsoluteLifetime,
			JanitorInterval:  engine.Session.JanitorInterval,
			RedisPrefix:      engine.Session.RedisPrefix,
		},
		Throttle: ThrottleConfig{
			UniformResponseTime: engine.Throttle.UniformResponseTime,
			RedisKey:            engine.Throttle.RedisKey,
		},
		Password: PasswordConfig{
			Scheme: engine.Password.Scheme,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: engine.Audit.BufferSize,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Engine returns the library configuration derived from c.
func (c Config) Engine() tipgate.Config {
	cfg := tipgate.DefaultConfig()
	cfg.Session.TTL = c.Session.TTL
	cfg.Session.AbsoluteLifetime = c.Session.AbsoluteLifetime
	cfg.Session.JanitorInterval = c.Session.JanitorInterval
	cfg.Session.RedisPrefix = c.Session.RedisPrefix
	cfg.Throttle.UniformResponseTime = c.Throttle.UniformResponseTime
	cfg.Throttle.RedisKey = c.Throttle.RedisKey
	cfg.Password.Scheme = c.Password.Scheme
	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Audit.BufferSize = c.Audit.BufferSize
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Enabled
	return cfg
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.DefaultTenantID <= 0 {
		errs = append(errs, errors.New("server.default_tenant_id must be > 0"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be memory, sqlite or postgres", c.Store.Driver))
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}

	engine := c.Engine()
	if err := engine.Validate(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[int]bool, len(c.Tenants))
	for i, t := range c.Tenants {
		if seen[t.ID] {
			errs = append(errs, fmt.Errorf("tenants[%d]: duplicate id %d", i, t.ID))
			continue
		}
		seen[t.ID] = true
		if err := store.ValidateTenant(t.Tenant()); err != nil {
			errs = append(errs, fmt.Errorf("tenants[%d]: %w", i, err))
		}
	}

	return errors.Join(errs...)
}
