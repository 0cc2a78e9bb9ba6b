package tipgate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/tipgate/internal/flows"
	"github.com/MrEthical07/tipgate/session"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/throttle"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Configure it during initialization and call
// Build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials store.Credentials
	tenants     store.Tenants
	sessions    session.Registry
	counter     throttle.Counter
	sleeper     throttle.Sleeper
	revalidator SessionRevalidator

	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis selects the Redis session registry and throttle counter, unless
// WithSessionRegistry or WithThrottleCounter supply their own.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the principal lookup backend. When cs also
// implements store.Tenants and WithTenants is not called, it serves tenant
// configuration too.
func (b *Builder) WithCredentialStore(cs store.Credentials) *Builder {
	b.credentials = cs
	return b
}

func (b *Builder) WithTenants(t store.Tenants) *Builder {
	b.tenants = t
	return b
}

func (b *Builder) WithSessionRegistry(r session.Registry) *Builder {
	b.sessions = r
	return b
}

// WithThrottleCounter shares a failure counter between engines. The default
// is a process-local counter that resets on restart.
func (b *Builder) WithThrottleCounter(c throttle.Counter) *Builder {
	b.counter = c
	return b
}

// WithSleeper replaces the wait used for throttle delays. Tests use it to
// record delays instead of sleeping.
func (b *Builder) WithSleeper(s throttle.Sleeper) *Builder {
	b.sleeper = s
	return b
}

func (b *Builder) WithSessionRevalidator(r SessionRevalidator) *Builder {
	b.revalidator = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the Engine. A Builder can be
// used only once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	tenants := b.tenants
	if tenants == nil {
		t, ok := b.credentials.(store.Tenants)
		if !ok {
			return nil, errors.New("tenant configuration provider required")
		}
		tenants = t
	}

	verifier, err := cfg.Password.NewVerifier()
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := &Engine{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		now:     time.Now,
	}

	// -------- SESSION REGISTRY --------
	sessionOpts := session.Options{
		TTL:              cfg.Session.TTL,
		AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
	}
	registry := b.sessions
	switch {
	case registry != nil:
	case b.redis != nil:
		registry = session.NewRedisRegistry(b.redis, cfg.Session.RedisPrefix, sessionOpts)
	default:
		mem := session.NewMemoryRegistry(sessionOpts)
		if cfg.Session.JanitorInterval > 0 {
			ctx, cancel := context.WithCancel(context.Background())
			mem.StartJanitor(ctx, cfg.Session.JanitorInterval)
			engine.stopJanitor = cancel
		}
		registry = mem
	}
	engine.sessions = registry

	// -------- THROTTLE COUNTER --------
	counter := b.counter
	switch {
	case counter != nil:
	case b.redis != nil:
		counter = throttle.NewRedisCounter(b.redis, cfg.Throttle.RedisKey)
	default:
		counter = throttle.NewLocalCounter()
	}
	engine.counter = counter

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	var revalidate func(context.Context, *session.Session) error
	if b.revalidator != nil {
		rv := b.revalidator
		revalidate = func(ctx context.Context, s *session.Session) error {
			return rv.Revalidate(ctx, s.TenantID, s.UserID, s.Role)
		}
	}

	engine.flows = flows.New(flows.Deps{
		Login: flows.LoginDeps{
			Tenants:     tenants,
			Credentials: b.credentials,
			Verifier:    verifier,
			Sessions:    registry,
			Pacer: flows.Pacer{
				Counter:             counter,
				Sleep:               b.sleeper,
				UniformResponseTime: cfg.Throttle.UniformResponseTime,
				Now:                 engine.now,
				CounterError:        engine.counterError,
			},
			Now:         engine.now,
			ConfigError: engine.configError,
		},
		Session: flows.SessionDeps{
			Sessions:   registry,
			Revalidate: revalidate,
		},
	})

	b.built = true

	return engine, nil
}
