package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/doctor-booking/internal/config"
	"github.com/hackgods/doctor-booking/internal/db"
	"github.com/hackgods/doctor-booking/internal/logging"
	"github.com/hackgods/doctor-booking/internal/metrics"
	"github.com/hackgods/doctor-booking/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info", "notification-worker")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel, "notification-worker")
	logger.Info().
		Str("env", cfg.Env).
		Str("provider", cfg.Notify.Provider).
		Dur("interval", cfg.Notify.WorkerInterval).
		Msg("notification-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	sender, err := notify.NewEmailSender(rootCtx, notify.ProviderConfig{
		Provider:           cfg.Notify.Provider,
		SendGridAPIKey:     cfg.Notify.SendGridAPIKey,
		FromEmail:          cfg.Notify.FromEmail,
		FromName:           cfg.Notify.FromName,
		AWSRegion:          cfg.Notify.AWSRegion,
		AWSAccessKeyID:     cfg.Notify.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.Notify.AWSSecretAccessKey,
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("email sender setup error")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metricsSrv := newMetricsServer(":"+cfg.Notify.MetricsPort, registry)
	go func() {
		logger.Info().Str("addr", metricsSrv.Addr).Msg("metrics listener starting")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener error")
		}
	}()

	dispatcher := notify.NewDispatcher(
		notify.NewOutboxStore(pgPool),
		sender,
		metrics.NewBookingMetrics(registry),
		logger,
		notify.DispatcherOptions{
			BatchSize:   cfg.Notify.BatchSize,
			MaxAttempts: cfg.Notify.MaxAttempts,
		},
	)

	dispatcher.Run(rootCtx, cfg.Notify.WorkerInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics listener shutdown failed")
	}

	logger.Info().Msg("notification-worker stopped")
}

// newMetricsServer serves the worker's delivery counters on /metrics.
func newMetricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
