package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/api/handlers"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/config"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/observability/metrics"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/privacy"
	"github.com/mhr-212/Healthcare-Data-Warehouse/internal/storage"
)

func main() {
	flags := ParseFlags()

	bootLogger := setupLogger(flags.LogLevel, flags.LogFormat)

	if err := godotenv.Load(flags.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		bootLogger.WithError(err).WithField("file", flags.EnvFile).Fatal("Failed to load env file")
	}

	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		bootLogger.WithError(err).Fatal("Failed to load configuration")
	}
	flags.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		bootLogger.WithError(err).Fatal("Invalid configuration")
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	logger.WithFields(logrus.Fields{
		"version":     Version,
		"commit":      GitCommit,
		"buildDate":   BuildDate,
		"environment": cfg.Environment,
	}).Info("Starting privacy audit server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sinks := privacy.MultiSink{privacy.NewLogrusSink(logger)}
	var (
		promMetrics *metrics.PrometheusMetrics
		recorder    storage.OperationRecorder
	)
	if cfg.Metrics.Enabled {
		promMetrics, err = metrics.NewPrometheusMetrics(cfg.Metrics, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialise metrics")
		}
		if err := promMetrics.Start(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to start metrics server")
		}
		sinks = append(sinks, promMetrics)
		recorder = promMetrics
	}

	backends, err := storage.Open(ctx, cfg.FactoryConfig(), recorder, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open storage backends")
	}
	defer backends.Close()

	ledger, err := privacy.NewLedger(cfg.Audit.RecommendedMaxEpsilon, privacy.WithLedgerSink(sinks))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create privacy budget ledger")
	}

	auditHandler := handlers.NewAuditHandler(handlers.AuditDefaults{
		Audit:               cfg.Audit,
		QuasiIdentifiers:    cfg.QuasiIdentifiers,
		SensitiveAttributes: cfg.SensitiveAttributes,
		EnforcementMethod:   cfg.EnforcementMethod,
		DatasetQuery:        cfg.DatasetQuery,
		MaxBodyBytes:        cfg.Server.MaxBodyBytes,
	}, handlers.Backends{
		Source:  backends.Source,
		Store:   backends.Store,
		Cache:   backends.Cache,
		Archive: backends.Archive,
		Scores:  backends.Scores,
	}, sinks, logger)

	sessionLedger := handlers.NewSyncLedger(ledger)
	budgetHandler := handlers.NewBudgetHandler(sessionLedger, backends.Store, logger)

	healthHandler := handlers.NewHealthHandler(Version, cfg.Environment)
	for name, p := range backends.Pingers() {
		healthHandler.AddDependency(name, p, name == storage.BackendPostgres)
	}

	// the dedicated metrics listener owns /metrics when it has its own port
	routeMetrics := promMetrics
	if promMetrics != nil && cfg.Metrics.Port != 0 {
		routeMetrics = nil
	}
	router := api.NewRouter(auditHandler, budgetHandler, healthHandler, routeMetrics, logger)

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"address":    srv.Addr,
			"session_id": budgetHandler.SessionID(),
			"storage":    backends.Names(),
			"k":          cfg.Audit.K,
			"l":          cfg.Audit.L,
			"t":          cfg.Audit.T,
		}).Info("Starting HTTP server")

		var err error
		if flags.TLSCert != "" && flags.TLSKey != "" {
			err = srv.ListenAndServeTLS(flags.TLSCert, flags.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}

	if promMetrics != nil {
		if err := promMetrics.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("Metrics server shutdown failed")
		}
	}

	logger.WithField("total_epsilon", sessionLedger.TotalEpsilon()).Info("Server stopped")
}

func setupLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
