package tipgate

import (
	"errors"
	"time"

	"github.com/MrEthical07/tipgate/password"
)

// Config holds every Engine setting. Start from DefaultConfig and override.
type Config struct {
	Session  SessionConfig
	Throttle ThrottleConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls the session registry the Builder creates when none
// is supplied.
type SessionConfig struct {
	// TTL is the sliding idle timeout renewed on each refresh.
	TTL time.Duration
	// AbsoluteLifetime caps renewals. Zero means unlimited.
	AbsoluteLifetime time.Duration
	RedisPrefix      string
	// JanitorInterval is how often the in-memory registry sweeps expired
	// sessions. Zero disables the sweep; expiry is still enforced on access.
	JanitorInterval time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

type ThrottleConfig struct {
	// UniformResponseTime pads every login answer to at least this long,
	// on top of the throttle delay.
	UniformResponseTime time.Duration
	// RedisKey holds the shared failure counter when Redis is configured.
	RedisKey string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the scheme for new hashes and the dummy comparison.
// Stored hashes of either scheme are always accepted.
type PasswordConfig struct {
	Scheme string // "scrypt" (default) or "argon2id"

	ScryptN         int
	ScryptR         int
	ScryptP         int
	ScryptKeyLength int

	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// NewVerifier builds the verifier an Engine with this configuration uses.
// Tools that provision users hash their secrets with it.
func (c PasswordConfig) NewVerifier() (*password.Verifier, error) {
	return password.NewVerifier(c.verifierConfig())
}

func (c PasswordConfig) verifierConfig() password.Config {
	return password.Config{
		Scheme: password.Scheme(c.Scheme),
		Scrypt: password.ScryptConfig{
			N:         c.ScryptN,
			R:         c.ScryptR,
			P:         c.ScryptP,
			KeyLength: c.ScryptKeyLength,
		},
		Argon2: password.Argon2Config{
			Memory:      c.Memory,
			Time:        c.Time,
			Parallelism: c.Parallelism,
			SaltLength:  c.SaltLength,
			KeyLength:   c.KeyLength,
		},
	}
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the settings used when WithConfig is not called.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	sc := password.DefaultScryptConfig()
	return Config{
		Session: SessionConfig{
			TTL:              time.Hour,
			AbsoluteLifetime: 24 * time.Hour,
			RedisPrefix:      "tg:sess",
			JanitorInterval:  time.Minute,
		},
		Throttle: ThrottleConfig{
			UniformResponseTime: 150 * time.Millisecond,
			RedisKey:            "tg:throttle:failed",
		},
		Password: PasswordConfig{
			Scheme:          string(password.SchemeScrypt),
			ScryptN:         sc.N,
			ScryptR:         sc.R,
			ScryptP:         sc.P,
			ScryptKeyLength: sc.KeyLength,
			Memory:          65536,
			Time:            3,
			Parallelism:     2,
			SaltLength:      16,
			KeyLength:       32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.AbsoluteLifetime < 0 {
		return errors.New("Session AbsoluteLifetime must be >= 0")
	}
	if c.Session.AbsoluteLifetime > 0 && c.Session.AbsoluteLifetime < c.Session.TTL {
		return errors.New("Session AbsoluteLifetime must be >= TTL when set")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.JanitorInterval < 0 {
		return errors.New("Session JanitorInterval must be >= 0")
	}

	// Throttle
	if c.Throttle.UniformResponseTime < 0 {
		return errors.New("Throttle UniformResponseTime must be >= 0")
	}
	if c.Throttle.UniformResponseTime > 10*time.Second {
		return errors.New("Throttle UniformResponseTime must be <= 10s")
	}
	if c.Throttle.RedisKey == "" {
		return errors.New("Throttle RedisKey must not be empty")
	}

	// Password
	switch password.Scheme(c.Password.Scheme) {
	case password.SchemeScrypt, password.SchemeArgon2id:
	default:
		return errors.New("Password Scheme must be 'scrypt' or 'argon2id'")
	}
	if c.Password.ScryptN < 2 || c.Password.ScryptN&(c.Password.ScryptN-1) != 0 {
		return errors.New("Password ScryptN must be a power of two > 1")
	}
	if c.Password.ScryptR < 1 || c.Password.ScryptP < 1 {
		return errors.New("Password ScryptR and ScryptP must be >= 1")
	}
	if c.Password.ScryptKeyLength < 16 {
		return errors.New("Password ScryptKeyLength must be >= 16")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
