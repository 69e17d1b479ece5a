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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpHandlers "github.com/quatrix/rate-limit/internal/adapters/http/handlers"
	httpMiddleware "github.com/quatrix/rate-limit/internal/adapters/http/middleware"
	"github.com/quatrix/rate-limit/internal/adapters/metrics"
	memorystorage "github.com/quatrix/rate-limit/internal/adapters/storage/memory"
	redisstorage "github.com/quatrix/rate-limit/internal/adapters/storage/redis"
	"github.com/quatrix/rate-limit/internal/config"
	"github.com/quatrix/rate-limit/internal/core/ports"
	"github.com/quatrix/rate-limit/internal/core/services"
	"github.com/quatrix/rate-limit/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storage, closeFn, err := initStorage(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to init storage", zap.Error(err))
	}
	defer closeFn()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []services.Option{
		services.WithLogger(logger.Named("limiter")),
		services.WithRecorder(metrics.NewRecorder(reg)),
	}
	if clock, err := initClock(cfg.RateLimiter.Clock, storage); err != nil {
		logger.Fatal("failed to init clock", zap.Error(err))
	} else {
		opts = append(opts, services.WithClock(clock))
	}

	limiter, err := services.NewRateLimiterService(storage, services.Config{
		Namespace: cfg.RateLimiter.Namespace,
		Lock: services.LockConfig{
			Disabled:     cfg.RateLimiter.DisableLocks,
			TTL:          cfg.RateLimiter.LockTTL,
			PollInterval: cfg.RateLimiter.LockPollInterval,
			Timeout:      cfg.RateLimiter.LockTimeout,
		},
	}, opts...)
	if err != nil {
		logger.Fatal("failed to create limiter", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Get("/healthz", httpHandlers.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(httpMiddleware.NewRateLimiterMiddleware(limiter,
			httpMiddleware.WithKey(cfg.RateLimiter.Key),
			httpMiddleware.WithRule(cfg.RateLimiter.Rule),
			httpMiddleware.WithFailOpen(cfg.RateLimiter.FailOpen),
			httpMiddleware.WithLogger(logger.Named("http"))))
		r.Get("/test", httpHandlers.TestHandler)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil {
			errCh <- err
		}
	}()
	logger.Info("server started",
		zap.String("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Type),
		zap.String("rule", cfg.RateLimiter.Rule.String()))

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func initStorage(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ports.Storage, func(), error) {
	switch cfg.Type {
	case "redis":
		redisCfg := redisstorage.Config{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		storage, err := redisstorage.New(redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return storage, func() {
			if err := storage.Close(); err != nil {
				logger.Warn("failed to close redis storage", zap.Error(err))
			}
		}, nil
	case "memory":
		storage := memorystorage.New(memorystorage.WithLogger(logger.Named("memory")))
		storage.StartCleanup(ctx)
		return storage, storage.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// initClock usa o relógio do storage quando pedido, para que instâncias com relógios
// diferentes enxerguem as mesmas janelas.
func initClock(kind string, storage ports.Storage) (ports.Clock, error) {
	switch kind {
	case "", "system":
		return ports.SystemClock{}, nil
	case "store":
		clock, ok := storage.(ports.Clock)
		if !ok {
			return nil, fmt.Errorf("storage %T has no clock", storage)
		}
		return clock, nil
	default:
		return nil, fmt.Errorf("unsupported clock: %s", kind)
	}
}
