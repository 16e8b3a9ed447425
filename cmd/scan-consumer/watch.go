package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maltedev/product-scanner/internal/events"
)

// priceWatch follows scan events. It logs total price changes per URL and
// asks the scan server once per URL to rescan results that came from
// fallback data.
type priceWatch struct {
	mu        sync.Mutex
	last      map[string]decimal.Decimal
	rescanned map[string]bool

	client    *http.Client
	rescanURL string
	attempts  int
	backoff   time.Duration
	logger    *slog.Logger
}

func newPriceWatch(rescanURL string, logger *slog.Logger) *priceWatch {
	return &priceWatch{
		last:      make(map[string]decimal.Decimal),
		rescanned: make(map[string]bool),
		client:    &http.Client{Timeout: 30 * time.Second},
		rescanURL: rescanURL,
		attempts:  3,
		backoff:   time.Second,
		logger:    logger,
	}
}

func (w *priceWatch) Handle(ctx context.Context, p *events.ProductScannedPayload) error {
	if p.IsFallback {
		return w.maybeRescan(ctx, p.URL)
	}

	w.mu.Lock()
	prev, seen := w.last[p.URL]
	w.last[p.URL] = p.Price.Total
	w.mu.Unlock()

	switch {
	case !seen:
		w.logger.Info("tracking product", "url", p.URL, "title", p.Title, "total", p.Price.Total.StringFixed(2), "currency", p.Price.Currency)
	case !prev.Equal(p.Price.Total):
		w.logger.Info("price changed",
			"url", p.URL,
			"old", prev.StringFixed(2),
			"new", p.Price.Total.StringFixed(2),
			"delta", p.Price.Total.Sub(prev).StringFixed(2),
			"currency", p.Price.Currency)
	}
	return nil
}

func (w *priceWatch) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.last)
}

func (w *priceWatch) maybeRescan(ctx context.Context, rawURL string) error {
	if w.rescanURL == "" {
		return nil
	}

	w.mu.Lock()
	done := w.rescanned[rawURL]
	w.rescanned[rawURL] = true
	w.mu.Unlock()
	if done {
		w.logger.Debug("fallback result already rescanned", "url", rawURL)
		return nil
	}

	body, err := json.Marshal(map[string]string{"url": rawURL})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.backoff):
			}
		}

		if lastErr = w.post(ctx, body); lastErr == nil {
			w.logger.Info("requested rescan", "url", rawURL)
			return nil
		}
	}

	w.mu.Lock()
	delete(w.rescanned, rawURL)
	w.mu.Unlock()
	return fmt.Errorf("rescan %s: %w", rawURL, lastErr)
}

func (w *priceWatch) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.rescanURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scan server returned status %d", resp.StatusCode)
	}
	return nil
}
