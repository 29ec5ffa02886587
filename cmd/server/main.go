package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"picforge/ratelimit/cmd/configs"
	"picforge/ratelimit/forge/middleware/ratelimiter"
	"picforge/ratelimit/internal/logger"
)

func main() {
	config := loadConfigs()

	zl, err := logger.New(logger.Config{Level: config.LogLevel, File: config.LogFile})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}

	os.Exit(exitCode(zl, run(config, zl)))
}

// exitCode logs err and flushes zl before the process exits, since os.Exit
// skips deferred calls.
func exitCode(zl *zap.Logger, err error) int {
	code := 0
	if err != nil {
		zl.Error("server stopped", zap.Error(err))
		code = 1
	}
	_ = zl.Sync()
	return code
}

func run(config *configs.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, fallback, err := initBackends(ctx, config, zl)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zl.Warn("failed to close rate limit backend", zap.Error(err))
		}
		if fallback != nil && fallback != backend {
			_ = fallback.Close()
		}
	}()

	registry := prometheus.NewRegistry()
	metrics, err := ratelimiter.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	opts := []ratelimiter.Option{
		ratelimiter.WithLogger(zl),
		ratelimiter.WithMetrics(metrics),
	}
	if fallback != nil && fallback != backend {
		opts = append(opts, ratelimiter.WithFallback(fallback))
	}
	limiter, err := ratelimiter.NewLimiter(backend, opts...)
	if err != nil {
		return err
	}

	policies, err := config.Policies()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + config.ServerPort,
		Handler:           newHandler(limiter, policies, registry, config.RateLimiterTrustForwarded, zl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting web server", zap.String("addr", srv.Addr), zap.String("backend", config.RateLimiterBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// initBackends returns the primary counter store and the in-process fallback
// used by fail-open policies. With the memory backend both are the same store.
func initBackends(ctx context.Context, config *configs.Config, zl *zap.Logger) (ratelimiter.Backend, ratelimiter.Backend, error) {
	memory := ratelimiter.NewMemoryBackend(ctx, config.RateLimiterCleanupInterval,
		ratelimiter.WithMemoryLogger(zl.Named("memory")))

	switch config.RateLimiterBackend {
	case configs.BackendRedis:
		redisBackend := ratelimiter.NewRedisBackend(ratelimiter.RedisConfig{
			Addr:      config.RateLimiterRedisAddr,
			Password:  config.RateLimiterRedisPassword,
			DB:        config.RateLimiterRedisDB,
			Timeout:   config.RateLimiterRedisTimeout,
			KeyPrefix: config.RateLimiterKeyPrefix,
		})
		if err := redisBackend.Ping(ctx); err != nil {
			zl.Warn("redis not reachable at startup, fail-open policies will use the memory fallback",
				zap.String("addr", config.RateLimiterRedisAddr), zap.Error(err))
		}
		return redisBackend, memory, nil
	case configs.BackendMemory:
		return memory, memory, nil
	default:
		_ = memory.Close()
		return nil, nil, fmt.Errorf("unsupported rate limiter backend: %s", config.RateLimiterBackend)
	}
}

func loadConfigs() *configs.Config {
	config, err := configs.LoadConfig(".")
	if err != nil {
		panic(err)
	}
	return config
}
