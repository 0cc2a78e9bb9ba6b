// Command tipgate-server runs the authentication endpoints.
//
// Configuration is read from a YAML file (-config, TIPGATE_CONFIG or
// ./tipgate.yaml) and TIPGATE_* environment variables, e.g.
//
//	TIPGATE_STORE_DRIVER  - memory, sqlite or postgres (default: memory)
//	TIPGATE_STORE_DSN     - database DSN or SQLite file path
//	TIPGATE_REDIS_ADDR    - shared session registry and throttle counter
//	TIPGATE_SERVER_ADDR   - listen address (default: :8080)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tipgate"
	"github.com/MrEthical07/tipgate/httpapi"
	"github.com/MrEthical07/tipgate/internal/config"
	tgprom "github.com/MrEthical07/tipgate/metrics/export/prometheus"
	"github.com/MrEthical07/tipgate/store"
	"github.com/MrEthical07/tipgate/store/memory"
	"github.com/MrEthical07/tipgate/store/sqlstore"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// credentialStore is what the server needs from either store backend.
type credentialStore interface {
	store.Credentials
	store.Tenants
	saveTenant(ctx context.Context, t store.Tenant) error
	io.Closer
}

type memoryBackend struct{ *memory.Store }

func (m memoryBackend) saveTenant(ctx context.Context, t store.Tenant) error {
	return m.PutTenant(ctx, t)
}

func (memoryBackend) Close() error { return nil }

type sqlBackend struct{ *sqlstore.Store }

func (s sqlBackend) saveTenant(ctx context.Context, t store.Tenant) error {
	return s.SaveTenant(ctx, t)
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer creds.Close()
	logger.Info("credential store ready", "driver", cfg.Store.Driver)

	for _, t := range cfg.Tenants {
		if err := creds.saveTenant(ctx, t.Tenant()); err != nil {
			return fmt.Errorf("upsert tenant %d: %w", t.ID, err)
		}
	}
	if len(cfg.Tenants) > 0 {
		logger.Info("tenants upserted", "count", len(cfg.Tenants))
	}

	builder := tipgate.New().
		WithConfig(cfg.Engine()).
		WithCredentialStore(creds).
		WithLogger(logger)

	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(tipgate.NewSlogSink(logger))
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		builder = builder.WithRedis(client)
		logger.Info("redis enabled", "addr", cfg.Redis.Addr)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	defer engine.Close()

	api := httpapi.New(engine, httpapi.Config{
		MaxBodySize:       httpapi.DefaultConfig().MaxBodySize,
		DefaultTenantID:   cfg.Server.DefaultTenantID,
		TenantHeader:      httpapi.DefaultConfig().TenantHeader,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		TorHeader:         cfg.Server.TorHeader,
	}, logger)

	mux := http.NewServeMux()
	mux.Handle("/", api.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, tgprom.Handler(tgprom.NewCollector(engine)))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr, "metrics", cfg.Metrics.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (credentialStore, error) {
	switch cfg.Driver {
	case "sqlite", "postgres":
		openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := sqlstore.Open(openCtx, sqlstore.Dialect(cfg.Driver), cfg.DSN)
		if err != nil {
			return nil, err
		}
		return sqlBackend{s}, nil
	default:
		return memoryBackend{memory.New()}, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
