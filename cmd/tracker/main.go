package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tracker/pkg/api"
	"github.com/platinummonkey/tracker/pkg/audit"
	"github.com/platinummonkey/tracker/pkg/authz"
	"github.com/platinummonkey/tracker/pkg/config"
	"github.com/platinummonkey/tracker/pkg/middleware"
	"github.com/platinummonkey/tracker/pkg/observability"
	"github.com/platinummonkey/tracker/pkg/store"
	"github.com/platinummonkey/tracker/pkg/store/cache"
	"github.com/platinummonkey/tracker/pkg/store/postgres"
	"github.com/platinummonkey/tracker/pkg/transition"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const dbStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Tracker exited")
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush telemetry")
		}
	}()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	st, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled() {
		backend, err := openCache(cfg.Cache)
		if err != nil {
			return err
		}
		if rb, ok := backend.(*cache.RedisBackend); ok {
			redisClient = rb.Client()
		}

		cached := cache.New(st, backend, logger)
		if metrics != nil {
			cached.WithMetrics(metrics, cfg.Cache.Backend)
		}
		defer cached.Close()
		st = cached

		logger.WithFields(logrus.Fields{
			"backend": cfg.Cache.Backend,
			"ttl":     cfg.Cache.TTL,
		}).Info("Membership cache enabled")
	}

	limiter, redisClient, err := openRateLimiter(ctx, cfg, redisClient, logger)
	if err != nil {
		return err
	}

	var auditLogger audit.Logger = audit.NoopLogger{}
	if cfg.Audit.Enabled {
		auditLogger = audit.NewLogrusLogger(logger.WithField("component", "audit"))
	}
	defer auditLogger.Close()

	evaluator := authz.NewEvaluator(st, logger, metrics)
	server := api.NewServer(api.Dependencies{
		Transitions: transition.NewManager(st, evaluator, auditLogger, logger, metrics),
		Projects:    evaluator,
		WorkLogs:    authz.NewWorkLogEvaluator(evaluator, st),
		Logger:      logger,
		Metrics:     metrics,
		Registry:    registry,
		Health:      observability.NewHealthChecker(db, redisClient, version),
		RateLimiter: limiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"store":   cfg.Database.Backend,
			"version": version,
		}).Info("Starting tracker")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if db != nil && metrics != nil {
		g.Go(func() error {
			defer observability.RecoverPanic(logger, "db stats collector")
			ticker := time.NewTicker(dbStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					metrics.RecordDBStats(db.Stats())
				}
			}
		})
	}

	return g.Wait()
}

// openStore returns the configured membership store. db is nil for the
// memory backend.
func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (store.Store, *sql.DB, error) {
	switch cfg.Database.Backend {
	case config.BackendMemory:
		mem := store.NewMemoryStore()
		if cfg.Database.SeedFile != "" {
			f, err := os.Open(cfg.Database.SeedFile)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to open seed file: %w", err)
			}
			defer f.Close()
			if err := store.LoadSeed(ctx, mem, f); err != nil {
				return nil, nil, err
			}
			logger.WithField("file", cfg.Database.SeedFile).Info("Loaded seed data")
		}
		logger.Warn("Using in-memory store, state is lost on restart")
		return mem, nil, nil

	default:
		conn := postgres.DefaultConnectionConfig(cfg.Database.URL)
		conn.MaxConns = cfg.Database.MaxConns
		conn.MinConns = cfg.Database.MinConns
		conn.Timeout = cfg.Database.Timeout
		conn.MaxLifetime = cfg.Database.MaxLifetime
		conn.MaxIdleTime = cfg.Database.MaxIdleTime

		db, err := postgres.Open(conn)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(ctx, db, logger); err != nil {
				db.Close()
				return nil, nil, err
			}
		}
		return postgres.NewStore(db), db, nil
	}
}

func openCache(cfg config.CacheConfig) (cache.Backend, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		return cache.NewRedisBackend(cache.RedisConfig{
			URL:        cfg.RedisURL,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			PoolSize:   cfg.RedisPoolSize,
			MaxRetries: cfg.RedisMaxRetries,
			TTL:        cfg.TTL,
		})
	default:
		return cache.NewMemoryBackend(cfg.Size, cfg.TTL), nil
	}
}

// openRateLimiter returns a nil limiter when rate limiting is disabled. The
// redis backend shares the cache client when there is one; the returned
// client is the one in use, if any.
func openRateLimiter(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *logrus.Logger) (middleware.Limiter, *redis.Client, error) {
	if !cfg.RateLimit.Enabled {
		return nil, redisClient, nil
	}

	limits := &middleware.RateLimitConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		WindowDuration:    cfg.RateLimit.Window,
		BurstSize:         cfg.RateLimit.Burst,
	}
	logger.WithFields(logrus.Fields{
		"backend":  cfg.RateLimit.Backend,
		"requests": limits.RequestsPerWindow,
		"window":   limits.WindowDuration,
	}).Info("Rate limiting enabled")

	if cfg.RateLimit.Backend == config.CacheRedis {
		if redisClient == nil {
			backend, err := cache.NewRedisBackend(cache.RedisConfig{
				URL:        cfg.Cache.RedisURL,
				Password:   cfg.Cache.RedisPassword,
				DB:         cfg.Cache.RedisDB,
				PoolSize:   cfg.Cache.RedisPoolSize,
				MaxRetries: cfg.Cache.RedisMaxRetries,
			})
			if err != nil {
				return nil, nil, err
			}
			redisClient = backend.Client()
		}
		return middleware.NewRedisRateLimiter(redisClient, limits, "tracker:ratelimit"), redisClient, nil
	}

	limiter := middleware.NewMemoryRateLimiter(limits)
	go limiter.StartCleanup(ctx)
	return limiter, redisClient, nil
}
