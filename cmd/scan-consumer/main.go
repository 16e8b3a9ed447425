package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-scanner/internal/config"
	"github.com/maltedev/product-scanner/internal/events"
	"github.com/maltedev/product-scanner/internal/logger"
)

func main() {
	var (
		group     = flag.String("group", "scan-consumers", "Redis consumer group")
		name      = flag.String("name", "consumer-1", "Consumer name within the group")
		rescanURL = flag.String("rescan-url", "", "Scan endpoint to retry fallback results, e.g. http://localhost:8080/api/v1/scan")
	)
	flag.Parse()

	if err := run(*group, *name, *rescanURL); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scan-consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(group, name, rescanURL string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	watch := newPriceWatch(rescanURL, log)
	consumer := events.NewConsumer(rdb, watch.Handle, log, events.ConsumerConfig{
		Stream: cfg.Redis.Stream,
		Group:  group,
		Name:   name,
	})

	err = consumer.Run(ctx)
	log.Info("consumer stopped", "tracked_products", watch.Tracked())
	return err
}
