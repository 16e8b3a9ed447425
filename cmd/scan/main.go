package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/product-scanner/internal/browser"
	"github.com/maltedev/product-scanner/internal/config"
	"github.com/maltedev/product-scanner/internal/fetcher"
	"github.com/maltedev/product-scanner/internal/logger"
	"github.com/maltedev/product-scanner/internal/origin"
	"github.com/maltedev/product-scanner/internal/queue"
	"github.com/maltedev/product-scanner/internal/ratelimit"
	"github.com/maltedev/product-scanner/internal/scanner"
	"github.com/maltedev/product-scanner/internal/storage"
)

func main() {
	var (
		urls       = flag.String("urls", "", "Comma-separated list of product URLs")
		inputFile  = flag.String("file", "", "File with one product URL per line")
		format     = flag.String("format", "text", "Output format: text, json, csv")
		storePath  = flag.String("store", "", "JSON file to keep results in; completed URLs are skipped on rerun")
		workers    = flag.Int("workers", 0, "Concurrent scans (default SCANNER_CONCURRENCY)")
		retries    = flag.Int("retries", 1, "Rescans for URLs that only produced fallback data")
		useBrowser = flag.Bool("browser", false, "Render pages in a headless browser after the proxies fail")
	)
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg := config.FromEnv()
	if *useBrowser {
		cfg.Browser.Enabled = true
	}
	if *workers > 0 {
		cfg.Scanner.Concurrency = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	log := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, "text")
	slog.SetDefault(log)

	out, err := newWriter(os.Stdout, *format)
	if err != nil {
		log.Error("invalid output format", "error", err)
		os.Exit(2)
	}

	targets, err := loadURLs(*urls, *inputFile)
	if err != nil {
		log.Error("failed to load urls", "error", err)
		os.Exit(1)
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "No URLs to scan. Use -urls or -file.")
		flag.Usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, out, targets, *storePath, *retries); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("scan failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, out resultWriter, targets []string, storePath string, retries int) error {
	var store *storage.ResultStore
	if storePath != "" {
		var err error
		if store, err = storage.NewResultStore(storePath); err != nil {
			return err
		}
	}

	table, err := origin.LoadTable(cfg.Scanner.OriginTable)
	if err != nil {
		return err
	}

	var f fetcher.Fetcher = fetcher.NewProxyFetcher(fetcher.Options{
		AllowDirect:    cfg.Fetcher.AllowDirect,
		Proxies:        cfg.Fetcher.Proxies,
		Timeout:        cfg.Fetcher.Timeout,
		MinBodyLength:  cfg.Fetcher.MinBodyLength,
		UserAgent:      cfg.Fetcher.UserAgent,
		AcceptLanguage: cfg.Fetcher.AcceptLanguage,
	}, log)

	if cfg.Browser.Enabled {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.MaxRetries = cfg.Browser.MaxRetries
		opts.Locale = cfg.Browser.Locale
		opts.TimezoneID = cfg.Browser.TimezoneID

		b, err := browser.New(opts, log)
		if err != nil {
			return fmt.Errorf("failed to initialize browser: %w", err)
		}
		defer b.Close()

		f = fetcher.Chain{f, fetcher.NewBrowserFetcher(b, nil, cfg.Fetcher.MinBodyLength, log)}
	}

	s := scanner.New(f, scanner.WithLogger(log), scanner.WithResolver(origin.NewResolver(table, nil)))
	limiter := ratelimit.NewAdaptiveRateLimiter(cfg.Browser.RateLimitMin, cfg.Browser.RateLimitMax)

	q := queue.NewInMemoryQueue()
	var inflight sync.WaitGroup
	for i, target := range targets {
		if store != nil && store.Done(target) {
			log.Info("skipping completed url", "url", target)
			continue
		}
		inflight.Add(1)
		if err := q.Push(queue.NewTask(target, len(targets)-i)); err != nil {
			return err
		}
	}
	go func() {
		inflight.Wait()
		q.Close()
	}()

	log.Info("starting scan", "urls", q.Size(), "workers", cfg.Scanner.Concurrency)
	started := time.Now()

	w := &worker{
		scanner: s,
		limiter: limiter,
		queue:   q,
		store:   store,
		out:     out,
		retries: retries,
		done:    inflight.Done,
		log:     log,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Scanner.Concurrency; i++ {
		g.Go(func() error { return w.loop(gctx) })
	}
	err = g.Wait()

	if ferr := out.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	log.Info("scan finished", "elapsed", time.Since(started).Round(time.Millisecond))
	if store != nil {
		log.Info("result store", "stats", store.GetStats())
	}
	return err
}

type worker struct {
	scanner *scanner.Scanner
	limiter *ratelimit.AdaptiveRateLimiter
	queue   *queue.InMemoryQueue
	store   *storage.ResultStore
	out     resultWriter
	retries int
	done    func()
	log     *slog.Logger
}

func (w *worker) loop(ctx context.Context) error {
	for {
		task, err := w.queue.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrQueueClosed) {
				return nil
			}
			return err
		}

		if err := w.limiter.Wait(ctx); err != nil {
			return err
		}

		if err := w.handle(ctx, task); err != nil {
			return err
		}
	}
}

// handle scans one task. Fallback results are requeued at a lower priority
// until the retry budget is spent.
func (w *worker) handle(ctx context.Context, task *queue.Task) error {
	product, err := w.scanner.Scan(ctx, task.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("skipping url", "url", task.URL, "error", err)
		w.save(&storage.ScanResult{URL: task.URL, Status: storage.StatusFailed, Error: err.Error()})
		w.done()
		return nil
	}

	if product.IsFallback {
		w.limiter.RecordError()
		if task.Retries < w.retries {
			task.Retries++
			task.Priority--
			w.log.Info("retrying url", "url", task.URL, "retry", task.Retries)
			if err := w.queue.Push(task); err == nil {
				return nil
			}
		}
	} else {
		w.limiter.RecordSuccess()
	}

	w.save(storage.ResultFromProduct(product))
	if err := w.out.Write(product); err != nil {
		w.log.Error("failed to write result", "url", task.URL, "error", err)
	}
	w.done()
	return nil
}

func (w *worker) save(result *storage.ScanResult) {
	if w.store == nil {
		return
	}
	if err := w.store.Put(result); err != nil {
		w.log.Error("failed to store result", "url", result.URL, "error", err)
	}
}

func loadURLs(urls, inputFile string) ([]string, error) {
	var list []string
	for _, u := range strings.Split(urls, ",") {
		if u = strings.TrimSpace(u); u != "" {
			list = append(list, u)
		}
	}

	if inputFile != "" {
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "#") {
				list = append(list, line)
			}
		}
	}

	seen := make(map[string]bool, len(list))
	unique := list[:0]
	for _, u := range list {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique, nil
}
