package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/product-scanner/internal/ratelimit"
)

const maxBodyBytes = 8 << 20

type Options struct {
	// AllowDirect tries the target itself before any proxy.
	AllowDirect bool
	// Proxies are relay base URLs; the escaped target is appended.
	Proxies        []string
	Timeout        time.Duration
	MinBodyLength  int
	UserAgent      string
	AcceptLanguage string
	// Limiter, if set, is waited on before every attempt.
	Limiter ratelimit.RateLimiter
}

func DefaultOptions() Options {
	return Options{
		AllowDirect: false,
		Proxies: []string{
			"https://api.allorigins.win/raw?url=",
			"https://corsproxy.io/?",
			"https://api.codetabs.com/v1/proxy?quest=",
		},
		Timeout:        10 * time.Second,
		MinBodyLength:  500,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9,de;q=0.8",
	}
}

// ProxyFetcher tries the direct URL (if allowed) and then each relay in
// order, one at a time. Every attempt gets its own timeout.
type ProxyFetcher struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

func NewProxyFetcher(opts Options, logger *slog.Logger) *ProxyFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &ProxyFetcher{
		opts:   opts,
		client: &http.Client{},
		logger: logger.With("component", "fetcher"),
	}
}

// ProxyURL joins a relay base and the target the way a browser's
// encodeURIComponent would.
func ProxyURL(base, target string) string {
	return base + strings.ReplaceAll(url.QueryEscape(target), "+", "%20")
}

// Targets lists the URLs that will be requested, in order.
func (f *ProxyFetcher) Targets(rawURL string) []string {
	targets := make([]string, 0, len(f.opts.Proxies)+1)
	if f.opts.AllowDirect {
		targets = append(targets, rawURL)
	}
	for _, base := range f.opts.Proxies {
		targets = append(targets, ProxyURL(base, rawURL))
	}
	return targets
}

func (f *ProxyFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	fetchErr := &FetchError{URL: rawURL}

	for i, target := range f.Targets(rawURL) {
		if f.opts.Limiter != nil {
			if err := f.opts.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		html, err := f.attempt(ctx, target)
		if err == nil {
			f.logger.Debug("fetched page", "url", rawURL, "attempt", i+1, "bytes", len(html))
			return html, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		f.logger.Debug("fetch attempt failed", "url", rawURL, "attempt", i+1, "error", err)
		fetchErr.Attempts = append(fetchErr.Attempts, AttemptError{Target: redact(target), Err: err})
	}

	return "", fetchErr
}

func (f *ProxyFetcher) attempt(ctx context.Context, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if f.opts.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", f.opts.AcceptLanguage)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	html := string(body)
	if err := acceptBody(html, f.opts.MinBodyLength); err != nil {
		return "", err
	}
	return html, nil
}

// redact keeps errors readable: the relay host is enough to tell attempts
// apart.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return target
	}
	return u.Scheme + "://" + u.Host + u.Path
}
