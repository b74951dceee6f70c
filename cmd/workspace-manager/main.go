package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"partner-workspace/internal/common/aws"
	"partner-workspace/internal/common/camunda"
	"partner-workspace/internal/common/config"
	"partner-workspace/internal/common/database"
	"partner-workspace/internal/common/logger"
	"partner-workspace/internal/common/observability"
	"partner-workspace/internal/domain"
	"partner-workspace/internal/facade"
	"partner-workspace/internal/notify"
	"partner-workspace/internal/objectstore"
	"partner-workspace/internal/persistence"
	"partner-workspace/internal/workflow"
	"partner-workspace/pkg/registry"

	ca "partner-workspace/internal/workers/workspace/create-application"
	rd "partner-workspace/internal/workers/workspace/record-decision"
	uas "partner-workspace/internal/workers/workspace/update-application-status"
	uur "partner-workspace/internal/workers/workspace/update-user-role"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting workspace manager...",
		zap.String("environment", cfg.App.Environment),
		zap.String("store", cfg.Store.Backend),
		zap.String("writeMode", cfg.Sync.WriteMode),
	)

	obs := observability.New("workspace-manager", log)
	ctx := context.Background()

	// --- Store backend ---
	var (
		client  persistence.Client
		redisDB *database.RedisClient
	)
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		store := persistence.NewPostgres(pg.DB)
		if err := store.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("postgres schema setup failed", zap.Error(err))
		}
		client = store
		zapLog.Info("PostgreSQL connected successfully")

	case config.BackendRedis:
		redisDB = connectRedis(ctx, cfg.Database.Redis, zapLog)
		defer redisDB.Close()
		client = persistence.NewRedis(redisDB.Client, cfg.Store.KeyPrefix)

	default:
		zapLog.Warn("Using the in-memory store; data is lost on restart")
		client = persistence.NewMemory()
	}

	// --- Domain Store ---
	store := domain.New(client,
		domain.WithLogger(log),
		domain.WithObservability(obs),
		domain.WithRefreshTimeout(config.GetDuration(cfg.Sync.RefreshTimeout)),
	)
	if report := store.RefreshAll(ctx); !report.OK() {
		zapLog.Warn("Initial refresh degraded", zap.Error(report.Err()))
	}

	// --- External collaborators ---
	opts := []facade.Option{facade.WithLogger(log), facade.WithTracer(obs.Tracer())}

	if cfg.Storage.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Storage.Region)
		if err != nil {
			zapLog.Fatal("aws config for storage failed", zap.Error(err))
		}
		uploads := objectstore.New(aws.NewS3Client(awsCfg), objectstore.Config{
			Region:         cfg.Storage.Region,
			DocumentBucket: cfg.Storage.DocumentBucket,
			PublicBaseURL:  cfg.Storage.PublicBaseURL,
		}, log)
		opts = append(opts, facade.WithUploader(uploads))
	}

	if n := cfg.Notifications; n.Email.Enabled || n.SMS.Enabled {
		awsCfg, err := aws.LoadConfig(ctx, n.AWS.Region)
		if err != nil {
			zapLog.Fatal("aws config for notifications failed", zap.Error(err))
		}
		dispatcher := notify.NewDispatcher(notify.Config{
			EmailEnabled: n.Email.Enabled,
			FromEmail:    n.Email.FromEmail,
			SMSEnabled:   n.SMS.Enabled,
			SenderID:     n.SMS.SenderID,
			BaseURL:      n.BaseURL,
		}, aws.NewSESClient(awsCfg), aws.NewSNSClient(awsCfg), log)
		opts = append(opts, facade.WithNotifier(dispatcher))
	}

	f := facade.New(client, store, facade.Config{
		WriteMode:   facade.WriteMode(cfg.Sync.WriteMode),
		MaxAdmins:   cfg.Workflow.MaxAdmins,
		ImageBucket: cfg.Storage.ImageBucket,
	}, opts...)

	// --- Workflow ---
	catalog := registry.DefaultCatalog()
	if cfg.Workflow.CatalogPath != "" {
		catalog, err = registry.LoadCatalog(cfg.Workflow.CatalogPath)
		if err != nil {
			zapLog.Fatal("framework catalog load failed", zap.String("path", cfg.Workflow.CatalogPath), zap.Error(err))
		}
	}
	policy, err := workflow.NewPolicy(cfg.Workflow.FrameworkPolicy, cfg.Workflow.FrameworkID, catalog)
	if err != nil {
		zapLog.Fatal("framework policy invalid", zap.Error(err))
	}

	machineOpts := []workflow.Option{workflow.WithLogger(log)}
	if cfg.Workflow.DistributedLock {
		if redisDB == nil {
			redisDB = connectRedis(ctx, cfg.Database.Redis, zapLog)
			defer redisDB.Close()
		}
		machineOpts = append(machineOpts, workflow.WithLocker(
			workflow.NewRedisLocker(redisDB.Client, cfg.Store.KeyPrefix, config.GetDuration(cfg.Workflow.LockTTL)),
		))
	}
	machine := workflow.New(f, policy, machineOpts...)

	zapLog.Info("Workflow ready",
		zap.String("catalogVersion", catalog.Version),
		zap.Int("frameworks", len(catalog.Entries)),
		zap.String("policy", cfg.Workflow.FrameworkPolicy),
	)

	// --- Workers ---
	var workers []*camunda.Worker
	var zeebe *camunda.Client
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(camunda.ClientConfigFrom(cfg.Camunda))
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		workerTimeout := func(taskType string) time.Duration {
			return config.GetDuration(config.GetWorkerConfig(cfg, taskType).Timeout)
		}

		workers = append(workers,
			camunda.StartWorker(zeebe.Zeebe(), ca.TaskType, config.GetWorkerConfig(cfg, ca.TaskType),
				ca.NewHandler(&ca.Config{Timeout: workerTimeout(ca.TaskType)}, machine, log), obs, log),
			camunda.StartWorker(zeebe.Zeebe(), uas.TaskType, config.GetWorkerConfig(cfg, uas.TaskType),
				uas.NewHandler(&uas.Config{Timeout: workerTimeout(uas.TaskType)}, machine, log), obs, log),
			camunda.StartWorker(zeebe.Zeebe(), uur.TaskType, config.GetWorkerConfig(cfg, uur.TaskType),
				uur.NewHandler(&uur.Config{Timeout: workerTimeout(uur.TaskType)}, f, log), obs, log),
			camunda.StartWorker(zeebe.Zeebe(), rd.TaskType, config.GetWorkerConfig(cfg, rd.TaskType),
				rd.NewHandler(&rd.Config{Timeout: workerTimeout(rd.TaskType)}, f, log), obs, log),
		)
		zapLog.Info("Workers registered")
	}

	// --- Periodic refresh ---
	refreshCtx, stopRefresh := context.WithCancel(ctx)
	refreshDone := make(chan struct{})
	go func() {
		defer close(refreshDone)
		ticker := time.NewTicker(config.GetDuration(cfg.Sync.PollInterval))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.Refresh(refreshCtx)
			case <-refreshCtx.Done():
				return
			}
		}
	}()

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !store.Loaded() {
			writeStatus(w, http.StatusServiceUnavailable, "loading")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.Server.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	stopRefresh()
	<-refreshDone
	f.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Health/Metrics server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Meter provider shutdown failed", zap.Error(err))
	}

	zapLog.Info("Workspace manager stopped gracefully")
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, zapLog *zap.Logger) *database.RedisClient {
	var rc *database.RedisClient
	err := retryWithBackoff(func() error {
		rc = database.NewRedis(cfg)
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return err
		}
		return nil
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	zapLog.Info("Redis connected successfully")
	return rc
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
