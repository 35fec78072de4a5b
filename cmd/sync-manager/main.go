// cmd/sync-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crm-sync/internal/audit"
	"crm-sync/internal/common/auth"
	"crm-sync/internal/common/aws"
	"crm-sync/internal/common/camunda"
	"crm-sync/internal/common/config"
	"crm-sync/internal/common/database"
	"crm-sync/internal/common/logger"
	"crm-sync/internal/common/observability"
	"crm-sync/internal/notify"
	"crm-sync/internal/store"

	accountsync "crm-sync/internal/workers/crm/account-sync"
	contactlink "crm-sync/internal/workers/crm/contact-link"
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
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sync manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("sync-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Camunda client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClient(cfg.Camunda.BrokerAddress)
		return err
	}, 10, 2*time.Second, zapLog, "Camunda client initialization")

	if err != nil {
		zapLog.Fatal("camunda client failed after retries", zap.Error(err))
	}
	zapLog.Info("Camunda client connected successfully")

	// --- Init record store per configured backend ---
	recordStore := buildStore(ctx, cfg, zapLog)

	// --- Optional query cache on Redis ---
	if cfg.Store.Cache.Enabled {
		var redisClient *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redisClient, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redisClient.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redisClient.Close()

		cached, err := store.NewCachedStore(ctx, recordStore, redisClient.GetClient(), time.Duration(cfg.Store.Cache.TTL)*time.Second)
		if err != nil {
			zapLog.Fatal("cache layer failed", zap.Error(err))
		}
		recordStore = cached
		zapLog.Info("Query cache enabled", zap.Int("ttl_seconds", cfg.Store.Cache.TTL))
	}

	// --- Optional audit indexer on Elasticsearch ---
	var auditIndexer *audit.Indexer
	if cfg.Audit.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		auditIndexer = audit.NewIndexer(esClient, cfg.Audit.Index, log)
		zapLog.Info("Audit indexing enabled", zap.String("index", cfg.Audit.Index))
	}

	// --- Optional operator notifications over AWS ---
	var notifier *notify.Notifier
	if cfg.Notifications.Email.Enabled || cfg.Notifications.SMS.Enabled {
		var sesClient notify.SESService
		var snsClient notify.SNSService

		if cfg.Notifications.Email.Enabled {
			client, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("ses client failed", zap.Error(err))
			}
			sesClient = client
		}
		if cfg.Notifications.SMS.Enabled {
			client, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
			if err != nil {
				zapLog.Fatal("sns client failed", zap.Error(err))
			}
			snsClient = client
		}
		notifier = notify.NewNotifier(sesClient, snsClient, cfg.Notifications, log)
		zapLog.Info("Operator notifications enabled")
	}

	deps := accountsync.ServiceDependencies{
		Store:    recordStore,
		Logger:   log,
		Audit:    auditIndexer,
		Notifier: notifier,
	}

	// --- Register workers ---
	accountSyncHandler, err := accountsync.NewHandler(accountsync.HandlerOptions{
		AppConfig:    cfg,
		Camunda:      camundaClient,
		Logger:       log,
		Dependencies: deps,
	})
	if err != nil {
		zapLog.Fatal("failed to create account-sync handler", zap.Error(err))
	}
	if err := accountSyncHandler.Register(); err != nil {
		zapLog.Fatal("failed to register account-sync worker", zap.Error(err))
	}
	defer accountSyncHandler.Close()

	contactLinkHandler, err := contactlink.NewHandler(contactlink.HandlerOptions{
		AppConfig: cfg,
		Camunda:   camundaClient,
		Logger:    log,
		Dependencies: contactlink.ServiceDependencies{
			Store:    recordStore,
			Logger:   log,
			Audit:    auditIndexer,
			Notifier: notifier,
		},
	})
	if err != nil {
		zapLog.Fatal("failed to create contact-link handler", zap.Error(err))
	}
	if err := contactLinkHandler.Register(); err != nil {
		zapLog.Fatal("failed to register contact-link worker", zap.Error(err))
	}
	defer contactLinkHandler.Close()

	zapLog.Info("All workers registered successfully")

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			status := http.StatusOK
			state := "ready"
			if err := accountSyncHandler.HealthCheck(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				state = "not ready"
			}
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{
				"status": state,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := http.ListenAndServe(":8080", nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")

	accountSyncHandler.Close()
	contactLinkHandler.Close()

	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Camunda client", zap.Error(err))
	}

	zapLog.Info("Sync manager stopped gracefully")
}

// buildStore wires the record store named by store.backend. Postgres gets
// its schema migrated on startup; the REST backend authenticates through
// the OAuth client-credentials flow.
func buildStore(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) store.RecordStore {
	switch cfg.Store.Backend {
	case "rest":
		tokens := auth.NewOAuthClient(
			cfg.Store.REST.TokenURL,
			cfg.Store.REST.ClientID,
			cfg.Store.REST.ClientSecret,
		)
		zapLog.Info("Using REST record store", zap.String("baseURL", cfg.Store.REST.BaseURL))
		return store.NewRESTStore(cfg.Store.REST.BaseURL, tokens)

	case "postgres":
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
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

		sqlStore := store.NewSQLStore(pg.GetDB(), nil)
		if err := sqlStore.Migrate(ctx); err != nil {
			zapLog.Fatal("postgres migration failed", zap.Error(err))
		}
		zapLog.Info("Using PostgreSQL record store")
		return sqlStore

	case "memory":
		zapLog.Info("Using in-memory record store")
		return store.NewMemoryStore(nil)

	default:
		zapLog.Fatal("unknown store backend", zap.String("backend", cfg.Store.Backend))
		return nil
	}
}
