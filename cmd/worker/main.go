// The worker runs the aggregation pipeline: two consumer groups over
// the change stream, one folding trades into running totals and one
// recomputing the average cost basis.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jeovahfialho/stock-tracker/internal/config"
	"github.com/jeovahfialho/stock-tracker/internal/pipeline"
	"github.com/jeovahfialho/stock-tracker/internal/storage/cache"
	"github.com/jeovahfialho/stock-tracker/internal/storage/postgres"
	"github.com/jeovahfialho/stock-tracker/internal/stream/redisstream"
	pkglogger "github.com/jeovahfialho/stock-tracker/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if err := pkglogger.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal("failed to init logger:", err)
	}
	defer pkglogger.Close()

	db, err := postgres.NewDB(cfg)
	if err != nil {
		pkglogger.Log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		pkglogger.Log.Fatal("failed to ensure schema", zap.Error(err))
	}

	cacheService, err := cache.NewRedisCache(cfg)
	if err != nil {
		pkglogger.Log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer cacheService.Close()

	store := postgres.NewStore(db)
	publisher := redisstream.NewPublisher(cacheService.Client(), cfg.StreamName)

	meanPrice := pipeline.NewMeanPriceHandler(store, publisher, pkglogger.Log)
	relay := pipeline.NewRelay(meanPrice, cfg.RelayMaxRetries, cfg.RelayBackoff, cfg.HandlerTimeout, pkglogger.Log)
	tradeHandler := pipeline.NewTradeHandler(store, publisher, relay, cfg.DedupEnabled, pkglogger.Log)
	averageHandler := pipeline.NewAverageHandler(store, publisher, pkglogger.Log)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	tradeConsumer := redisstream.NewConsumer(cacheService.Client(), redisstream.ConsumerConfig{
		Stream:   cfg.StreamName,
		Group:    "trade-ingestion",
		Consumer: hostname,
		Batch:    cfg.StreamBatch,
		Block:    cfg.StreamBlock,
		MinIdle:  cfg.StreamMinIdle,
	}, pipeline.TradeFilter,
		pipeline.Wrap("trade_ingestion", cfg.HandlerTimeout, tradeHandler.Handle, pkglogger.Log),
		pkglogger.Log)

	averageConsumer := redisstream.NewConsumer(cacheService.Client(), redisstream.ConsumerConfig{
		Stream:   cfg.StreamName,
		Group:    "average-price",
		Consumer: hostname,
		Batch:    cfg.StreamBatch,
		Block:    cfg.StreamBlock,
		MinIdle:  cfg.StreamMinIdle,
	}, pipeline.TotalFilter,
		pipeline.Wrap("average_price", cfg.HandlerTimeout, averageHandler.Handle, pkglogger.Log),
		pkglogger.Log)

	if cfg.MetricsEnabled {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.MetricsPort, nil); err != nil {
				pkglogger.Log.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
	}

	pkglogger.Info("worker started",
		zap.String("stream", cfg.StreamName),
		zap.Bool("dedup", cfg.DedupEnabled))

	var wg sync.WaitGroup
	for _, consumer := range []*redisstream.Consumer{tradeConsumer, averageConsumer} {
		wg.Add(1)
		go func(c *redisstream.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				pkglogger.Error("consumer stopped", zap.Error(err))
				cancel()
			}
		}(consumer)
	}

	wg.Wait()

	// Let in-flight mean price invocations finish before exiting.
	relay.Wait()

	pkglogger.Info("worker stopped")
}
