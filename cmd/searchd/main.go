// cmd/searchd/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carsearch/internal/api"
	"carsearch/internal/common/config"
	"carsearch/internal/common/database"
	"carsearch/internal/common/logger"
	"carsearch/internal/common/observability"
	"carsearch/internal/search/merchantai"
	"carsearch/internal/search/normalize"
	"carsearch/internal/search/orchestrator"
	"carsearch/internal/search/quota"
	"carsearch/internal/search/ratelimit"
	"carsearch/internal/search/scoring"
	"carsearch/internal/search/source"
	"carsearch/pkg/registry"
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
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting search daemon...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("searchd")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
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
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry ---
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
	zapLog.Info("Elasticsearch connected successfully")

	// --- Source catalogue ---
	catalogue, err := registry.Load(cfg.Search.RegistryPath)
	if err != nil {
		zapLog.Fatal("source registry load failed", zap.Error(err))
	}

	adapters := buildAdapters(catalogue, cfg, esClient, log, zapLog)
	if len(adapters) == 0 {
		zapLog.Fatal("no enabled source adapters; nothing to search")
	}

	// --- Core collaborators ---
	limiter := ratelimit.NewLimiter(ratelimit.NewRedisStore(rdb.Client), cfg.Limits.Actions, log)
	ledger := quota.NewLedger(quota.NewRedisStore(rdb.Client), cfg.Quotas, log)
	normalizer := normalize.NewNormalizer(log)

	baseline := scoring.NewPostgresBaseline(pg.DB, rdb.Client, cfg.Scoring.BaselineTTL(), log)
	engine := scoring.NewEngine(cfg.Scoring, baseline, log)

	var analyzer orchestrator.Analyzer
	if cfg.AI.BaseURL != "" {
		analyzer = merchantai.NewAnalyzer(cfg.AI, log)
		zapLog.Info("merchant analyzer enabled", zap.String("model", cfg.AI.Model))
	} else {
		zapLog.Info("merchant analyzer disabled, enrichment requests will be skipped")
	}

	o := orchestrator.New(cfg.Search, limiter, ledger, adapters, normalizer, engine, analyzer, obs, log)

	searchHandler, err := api.NewSearchHandler(o, log)
	if err != nil {
		zapLog.Fatal("search handler init failed", zap.Error(err))
	}

	// --- API Server ---
	mux := http.NewServeMux()
	mux.Handle("/api/v1/search", searchHandler)

	server := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Metrics Server ---
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, nil); err != nil {
			zapLog.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Search daemon stopped gracefully")
}

// buildAdapters instantiates one adapter per enabled catalogue entry that
// also has per-source configuration enabled. Catalogue order (priority) is
// preserved.
func buildAdapters(catalogue *registry.Registry, cfg *config.Config, esClient *database.ElasticsearchClient, log logger.Logger, zapLog *zap.Logger) []source.Adapter {
	adapters := make([]source.Adapter, 0)

	for _, entry := range catalogue.Enabled() {
		srcCfg, ok := cfg.Sources[entry.ID]
		if !ok || !srcCfg.Enabled {
			zapLog.Info("source disabled by configuration", zap.String("source", entry.ID))
			continue
		}

		var adapter source.Adapter
		switch {
		case entry.Kind == registry.KindElasticsearch:
			adapter = source.NewInventory(srcCfg, esClient.Client, log)
		case entry.ID == "lacentrale":
			adapter = source.NewLaCentrale(srcCfg, log)
		case entry.ID == "leboncoin":
			adapter = source.NewLeboncoin(srcCfg, log)
		default:
			zapLog.Warn("no adapter implementation for source", zap.String("source", entry.ID))
			continue
		}

		adapters = append(adapters, adapter)
		zapLog.Info("source adapter registered",
			zap.String("source", entry.ID),
			zap.Int("priority", entry.Priority),
		)
	}
	return adapters
}
