package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-scanner/internal/api"
	"github.com/maltedev/product-scanner/internal/browser"
	"github.com/maltedev/product-scanner/internal/config"
	"github.com/maltedev/product-scanner/internal/database"
	"github.com/maltedev/product-scanner/internal/events"
	"github.com/maltedev/product-scanner/internal/fetcher"
	"github.com/maltedev/product-scanner/internal/logger"
	"github.com/maltedev/product-scanner/internal/origin"
	"github.com/maltedev/product-scanner/internal/ratelimit"
	"github.com/maltedev/product-scanner/internal/scanner"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scan-server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := origin.LoadTable(cfg.Scanner.OriginTable)
	if err != nil {
		return err
	}
	resolver := origin.NewResolver(table, nil)

	proxyFetcher := fetcher.NewProxyFetcher(fetcher.Options{
		AllowDirect:    cfg.Fetcher.AllowDirect,
		Proxies:        cfg.Fetcher.Proxies,
		Timeout:        cfg.Fetcher.Timeout,
		MinBodyLength:  cfg.Fetcher.MinBodyLength,
		UserAgent:      cfg.Fetcher.UserAgent,
		AcceptLanguage: cfg.Fetcher.AcceptLanguage,
		Limiter:        ratelimit.NewTokenBucket(cfg.Scanner.Concurrency*2, 250*time.Millisecond),
	}, log)

	scanFetcher := fetcher.Fetcher(proxyFetcher)
	strictFetcher := fetcher.Fetcher(proxyFetcher)

	if cfg.Browser.Enabled {
		b, err := browser.New(&browser.Options{
			Headless:       cfg.Browser.Headless,
			Timeout:        cfg.Browser.Timeout,
			SettleDelay:    browser.DefaultOptions().SettleDelay,
			MaxRetries:     cfg.Browser.MaxRetries,
			UserAgent:      cfg.Fetcher.UserAgent,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			Locale:         cfg.Browser.Locale,
			TimezoneID:     cfg.Browser.TimezoneID,
			ExtraHeaders:   browser.DefaultOptions().ExtraHeaders,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize browser: %w", err)
		}
		defer b.Close()

		limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Browser.RateLimitMin, cfg.Browser.RateLimitMax)
		browserFetcher := fetcher.NewBrowserFetcher(b, limiter, cfg.Fetcher.MinBodyLength, log)

		strictFetcher = browserFetcher
		scanFetcher = fetcher.Chain{proxyFetcher, browserFetcher}
		log.Info("browser rendering enabled", "headless", cfg.Browser.Headless)
	}

	scan := scanner.New(scanFetcher, scanner.WithLogger(log), scanner.WithResolver(resolver))
	strict := scanner.New(strictFetcher, scanner.WithLogger(log), scanner.WithResolver(resolver))

	var (
		recorder events.Recorder = events.NopRecorder{}
		outbox   api.OutboxStatter
	)
	if cfg.Database.Enabled {
		db, err := database.New(ctx, database.Config{DSN: cfg.Database.DSN(), MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		relay := database.NewRelay(database.NewOutboxRepository(db), redisClient, log, database.RelayConfig{
			PollInterval: cfg.Redis.PollInterval,
			MaxLen:       cfg.Redis.StreamMaxLen,
			Source:       "scan-server",
		})
		go func() {
			if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "error", err)
			}
		}()

		publisher := events.NewPublisher(db, cfg.Redis.Stream, log)
		publisher.Notify = relay.Notify
		recorder = publisher
		outbox = relay
	}

	handlers := api.NewHandlers(scan, strict, recorder, outbox, log)
	router := api.NewRouter(handlers, api.RouterConfig{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("server stopped")
	return nil
}
