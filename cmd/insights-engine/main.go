// cmd/insights-engine/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"insights-engine/internal/common/config"
	"insights-engine/internal/common/database"
	"insights-engine/internal/common/llm"
	"insights-engine/internal/common/logger"
	"insights-engine/internal/common/observability"
	"insights-engine/internal/conversation"
	"insights-engine/internal/pipeline"
	"insights-engine/internal/pipeline/executor"
	"insights-engine/internal/pipeline/planner"
	"insights-engine/internal/pipeline/presenter"
	"insights-engine/internal/schema"
	"insights-engine/internal/server"
	"insights-engine/internal/telemetry"
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

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting insights engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("insights-engine")
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
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init LLM client ---
	// Provider "none" runs the engine on heuristics and the deterministic
	// query builder only.
	var generator llm.Generator
	if cfg.LLM.Provider != "none" {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			zapLog.Fatal("llm client failed", zap.Error(err))
		}
		generator = client
		zapLog.Info("LLM client initialized",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.Model),
		)
	} else {
		zapLog.Warn("LLM provider disabled, running heuristics only")
	}

	// --- Schema index + cache ---
	indexer := schema.NewIndexer(pg.GetDB(), log)
	cache := schema.NewCache(redis, time.Duration(cfg.Schema.CacheTTL)*time.Second, log)
	schemas := schema.NewProvider(indexer, cache)

	if cfg.Schema.RefreshInterval > 0 {
		go refreshSchemaLoop(ctx, indexer, cache, time.Duration(cfg.Schema.RefreshInterval)*time.Second, log)
	}

	// --- Telemetry ---
	sink := telemetry.MultiSink{
		telemetry.NewLogSink(log),
		telemetry.NewObservabilitySink(obs),
	}
	var emitter *telemetry.Emitter
	if cfg.Telemetry.Enabled {
		emitter = telemetry.NewEmitter(sink, cfg.Telemetry.BufferSize, cfg.LLM.CostPer1K, log)
		defer emitter.Close()
	}

	// --- Pipeline ---
	pl := planner.New(generator, log)
	ex := executor.New(pg.GetDB(), generator, executor.Config{
		QueryTimeout:    time.Duration(cfg.Pipeline.QueryTimeout) * time.Millisecond,
		MaxRows:         cfg.Pipeline.MaxRows,
		DefaultRowLimit: cfg.Pipeline.DefaultRowLimit,
	}, log)
	pr := presenter.New(log)

	engine := pipeline.NewEngine(pl, ex, pr, schemas, conversation.NewStore(), emitter, cfg.LLM.Model, log)

	// --- HTTP Server ---
	srv := server.New(cfg.Server.Port, engine, pg, log)
	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down http server", zap.Error(err))
	}

	zapLog.Info("Insights engine stopped gracefully")
}

// refreshSchemaLoop reindexes periodically so new tables become queryable
// without a restart. The refreshed map replaces the shared cache entry.
func refreshSchemaLoop(ctx context.Context, indexer *schema.Indexer, cache *schema.Cache, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m, err := indexer.Index(ctx)
			if err != nil {
				log.Warn("schema refresh failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if err := cache.Store(ctx, "default", m); err != nil {
				log.Warn("schema cache store failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}
}
