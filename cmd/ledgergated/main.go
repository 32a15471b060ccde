package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"ledgergate/config"
	"ledgergate/crypto"
	"ledgergate/gateway"
	"ledgergate/ledger"
	"ledgergate/observability/logging"
	"ledgergate/observability/otel"
	"ledgergate/task"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load configuration", "err", err)
		os.Exit(1)
	}

	logger := logging.Setup("ledgergated", cfg.Environment, logging.Options{
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics || cfg.Telemetry.Traces {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "ledgergated",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     otel.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			logger.Error("initialise telemetry", "err", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown", "err", err)
			}
		}()
	}

	db, err := openDatabase(cfg.Database.DSN)
	if err != nil {
		logger.Error("open database", "err", err)
		os.Exit(1)
	}
	if err := gateway.AutoMigrate(db); err != nil {
		logger.Error("migrate gateway schema", "err", err)
		os.Exit(1)
	}
	if err := task.AutoMigrate(db); err != nil {
		logger.Error("migrate task schema", "err", err)
		os.Exit(1)
	}

	passphrase, err := cfg.OperatorPassphrase()
	if err != nil {
		logger.Error("resolve operator passphrase", "err", err)
		os.Exit(1)
	}
	operatorKey, err := crypto.LoadFromKeystore(cfg.Operator.KeystorePath, passphrase)
	if err != nil {
		logger.Error("load operator keystore", "err", err)
		os.Exit(1)
	}

	transport := ledger.NewHTTPTransport(ledger.WithAttemptTimeout(cfg.AttemptTimeout.Duration))
	client := ledger.NewClient(transport, ledger.WithLogger(logger))
	store := task.NewStore(db)

	// Every persisted account signs with the single operator key for now;
	// per-account keystores plug in through the same hook.
	signerFor := func(*gateway.Account) (*ledger.Signer, error) {
		return ledger.NewSigner(ledger.StaticKeySource(operatorKey)), nil
	}
	service := gateway.NewService(db, client, cfg.Nodes, signerFor,
		gateway.WithServiceLogger(logger),
	)
	worker := gateway.NewWorker(store, service,
		gateway.WithPollInterval(cfg.PollInterval.Duration),
		gateway.WithWorkerCount(cfg.WorkerCount),
		gateway.WithWorkerLogger(logger),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops endpoint listening", "addr", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops endpoint", "err", err)
		}
	}()

	logger.Info("worker starting",
		"poll_interval", cfg.PollInterval.Duration.String(),
		"workers", cfg.WorkerCount,
		"nodes", len(cfg.Nodes),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops endpoint shutdown", "err", err)
	}
	logger.Info("gateway stopped")
}

// openDatabase accepts a postgres DSN in production and a sqlite file/memory
// DSN for development.
func openDatabase(dsn string) (*gorm.DB, error) {
	if strings.HasPrefix(dsn, "file:") || strings.HasSuffix(dsn, ".db") {
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}
