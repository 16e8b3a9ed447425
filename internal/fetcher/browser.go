package fetcher

import (
	"context"
	"log/slog"

	"github.com/maltedev/product-scanner/internal/ratelimit"
)

// Renderer is satisfied by *browser.Browser.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// BrowserFetcher renders pages in a headless browser. Renders are paced by
// the limiter, which learns from blocked or failed loads when it can.
type BrowserFetcher struct {
	renderer      Renderer
	limiter       ratelimit.RateLimiter
	minBodyLength int
	logger        *slog.Logger
}

func NewBrowserFetcher(renderer Renderer, limiter ratelimit.RateLimiter, minBodyLength int, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		renderer:      renderer,
		limiter:       limiter,
		minBodyLength: minBodyLength,
		logger:        logger.With("component", "browser_fetcher"),
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	html, err := f.renderer.Render(ctx, rawURL)
	if err == nil {
		err = acceptBody(html, f.minBodyLength)
	}
	if f.limiter != nil {
		ratelimit.Observe(f.limiter, err)
	}

	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		f.logger.Debug("render failed", "url", rawURL, "error", err)
		return "", &FetchError{URL: rawURL, Attempts: []AttemptError{{Target: "browser", Err: err}}}
	}
	return html, nil
}
