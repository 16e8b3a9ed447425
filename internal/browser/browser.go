// Package browser renders product pages in headless Chromium for sites that
// only ship their price and seller blocks through JavaScript.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var ErrBlocked = errors.New("page blocked by bot protection")

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	SettleDelay    time.Duration
	MaxRetries     int
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        30 * time.Second,
		SettleDelay:    1500 * time.Millisecond,
		MaxRetries:     2,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1366,
		ViewportHeight: 900,
		Locale:         "en-US",
		TimezoneID:     "Europe/Kyiv",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9,de;q=0.8,uk;q=0.7",
		},
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
			"--disable-setuid-sandbox",
		},
	}
	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: opts.ProxyServer}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &opts.Locale,
		TimezoneId:        &opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  opts.ViewportWidth,
			Height: opts.ViewportHeight,
		},
		ExtraHttpHeaders: opts.ExtraHeaders,
	})
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	return &Browser{
		pw:      pw,
		browser: browser,
		context: browserCtx,
		opts:    opts,
		logger:  logger.With("component", "browser"),
	}, nil
}

// Render loads rawURL in a fresh tab and returns the DOM after scripts ran.
// The tab is closed when ctx is cancelled.
func (b *Browser) Render(ctx context.Context, rawURL string) (string, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return "", fmt.Errorf("failed to create new page: %w", err)
	}
	defer page.Close()

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	stop := context.AfterFunc(ctx, func() { page.Close() })
	defer stop()

	if err := b.navigateWithRetry(ctx, page, rawURL); err != nil {
		return "", err
	}

	b.dismissConsent(page)

	if blocked, reason := b.checkIfBlocked(page); blocked {
		b.logger.Warn("page blocked", "url", rawURL, "reason", reason)
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}

	if err := sleep(ctx, b.opts.SettleDelay); err != nil {
		return "", err
	}

	html, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (b *Browser) Close() error {
	var errs []error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close context: %w", err))
		}
	}
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

func (b *Browser) navigateWithRetry(ctx context.Context, page playwright.Page, rawURL string) error {
	attempts := b.opts.MaxRetries + 1
	var lastErr error

	for i := 0; i < attempts; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", rawURL)
			if err := sleep(ctx, time.Duration(i)*time.Second); err != nil {
				return err
			}
		}

		_, err := page.Goto(rawURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		b.logger.Debug("navigation failed", "error", err, "attempt", i+1, "url", rawURL)
	}

	return fmt.Errorf("navigation failed after %d attempts: %w", attempts, lastErr)
}

var consentSelectors = []string{
	"#gdpr-banner-accept",
	"#sp-cc-accept",
	`button:has-text("Accept all")`,
	`button:has-text("Alle akzeptieren")`,
	`input[type="submit"][value*="Weiter"]`,
	`button:has-text("Continue shopping")`,
	`button:has-text("Weiter shoppen")`,
}

// dismissConsent clicks away cookie banners and the "continue shopping"
// interstitial. Failures are ignored; the page is read as is.
func (b *Browser) dismissConsent(page playwright.Page) {
	for _, selector := range consentSelectors {
		button := page.Locator(selector).First()
		if count, err := button.Count(); err != nil || count == 0 {
			continue
		}
		if err := button.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err != nil {
			b.logger.Debug("consent click failed", "selector", selector, "error", err)
			continue
		}
		b.logger.Debug("dismissed interstitial", "selector", selector)
	}
}

var captchaSelectors = []string{
	"#captchacharacters",
	"form[action*='Captcha']",
	"form[action*='validateCaptcha']",
	"#px-captcha",
	"iframe[src*='captcha']",
}

func (b *Browser) checkIfBlocked(page playwright.Page) (bool, string) {
	for _, selector := range captchaSelectors {
		if count, _ := page.Locator(selector).Count(); count > 0 {
			return true, "captcha " + selector
		}
	}

	title, _ := page.Title()
	lower := strings.ToLower(title)
	for _, marker := range []string{"robot check", "pardon our interruption", "access denied", "tut uns leid"} {
		if strings.Contains(lower, marker) {
			return true, "title " + title
		}
	}
	return false, ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
