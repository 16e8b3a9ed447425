// Package scanner turns a product URL into a complete ScrapedProduct:
// fetch, extract, resolve origin, and fall back to synthetic data whenever
// any of that fails.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/product-scanner/internal/fallback"
	"github.com/maltedev/product-scanner/internal/fetcher"
	"github.com/maltedev/product-scanner/internal/market"
	"github.com/maltedev/product-scanner/internal/models"
	"github.com/maltedev/product-scanner/internal/origin"
	"github.com/maltedev/product-scanner/internal/page"
	"github.com/maltedev/product-scanner/internal/parser"
)

var (
	ErrInvalidURL = errors.New("invalid product url")
	// ErrNoProductData means the page was fetched but neither a title nor a
	// price could be found on it.
	ErrNoProductData = errors.New("no product data on page")
	ErrExtraction    = errors.New("extraction failed")
)

const (
	quickPriceSentinel       = 99.99
	quickPriceSentinelAmazon = 999.99
)

type Scanner struct {
	fetcher   fetcher.Fetcher
	extractor *parser.Extractor
	resolver  *origin.Resolver
	fallback  *fallback.Generator
	profiles  map[models.Platform]*parser.Profile
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Scanner)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) { s.logger = logger.With("component", "scanner") }
}

// WithMarkets replaces the domain table used for currency, origin and
// fallback inference.
func WithMarkets(markets *market.Table) Option {
	return func(s *Scanner) {
		s.extractor = parser.NewExtractor(markets)
		s.resolver = origin.NewResolver(nil, markets)
		s.fallback = fallback.NewGenerator(markets)
	}
}

func WithResolver(r *origin.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

func WithFallback(g *fallback.Generator) Option {
	return func(s *Scanner) { s.fallback = g }
}

func WithProfile(platform models.Platform, profile *parser.Profile) Option {
	return func(s *Scanner) { s.profiles[platform] = profile }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New builds a Scanner. A nil fetcher behaves like one that never returns
// content, so every Scan falls back.
func New(f fetcher.Fetcher, opts ...Option) *Scanner {
	markets := market.DefaultTable()
	s := &Scanner{
		fetcher:   f,
		extractor: parser.NewExtractor(markets),
		resolver:  origin.NewResolver(nil, markets),
		fallback:  fallback.NewGenerator(markets),
		profiles: map[models.Platform]*parser.Profile{
			models.PlatformEbay:    parser.EbayProfile(),
			models.PlatformAmazon:  parser.AmazonProfile(),
			models.PlatformGeneric: parser.GenericProfile(),
		},
		logger: slog.Default().With("component", "scanner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateURL accepts absolute http(s) URLs with a host.
func ValidateURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}

// Scan never fails on fetch or extraction problems; those degrade to
// fallback data with the reason in Diagnostics. Only an invalid URL or a
// cancelled context is returned as an error.
func (s *Scanner) Scan(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)
	platform := models.DetectPlatform(rawURL)

	html, err := s.fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return s.fallbackFor(rawURL, platform, err), nil
	}

	product, err := s.compose(rawURL, platform, html)
	if err != nil {
		return s.fallbackFor(rawURL, platform, err), nil
	}
	return product, nil
}

// Extract is the strict pipeline: no synthetic data, every failure is
// returned.
func (s *Scanner) Extract(ctx context.Context, rawURL string) (*models.ScrapedProduct, error) {
	if _, err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	rawURL = strings.TrimSpace(rawURL)

	html, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	product, err := s.compose(rawURL, models.DetectPlatform(rawURL), html)
	if err != nil {
		return nil, err
	}
	if product.IsFallback {
		return nil, fmt.Errorf("%w: %s", ErrNoProductData, rawURL)
	}
	return product, nil
}

// QuickPrice returns the total price, or a fixed sentinel when even Scan
// fails.
func (s *Scanner) QuickPrice(ctx context.Context, rawURL string) (price float64) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("quick price panicked", "url", rawURL, "panic", r)
			price = sentinelFor(rawURL)
		}
	}()

	product, err := s.Scan(ctx, rawURL)
	if err != nil {
		s.logger.Warn("quick price fell back to sentinel", "url", rawURL, "error", err)
		return sentinelFor(rawURL)
	}
	return product.Total()
}

func sentinelFor(rawURL string) float64 {
	if models.DetectPlatform(rawURL) == models.PlatformAmazon {
		return quickPriceSentinelAmazon
	}
	return quickPriceSentinel
}

func (s *Scanner) fetch(ctx context.Context, rawURL string) (string, error) {
	if s.fetcher == nil {
		return "", &fetcher.FetchError{URL: rawURL}
	}
	return s.fetcher.Fetch(ctx, rawURL)
}

func (s *Scanner) fallbackFor(rawURL string, platform models.Platform, reason error) *models.ScrapedProduct {
	s.logger.Warn("using fallback data", "url", rawURL, "platform", platform, "error", reason)

	product := s.fallback.Generate(rawURL, platform, reason.Error())
	product.ScannedAt = s.now()
	return product
}

func (s *Scanner) profile(platform models.Platform) *parser.Profile {
	if p, ok := s.profiles[platform]; ok && p != nil {
		return p
	}
	return parser.ProfileFor(platform)
}

// compose runs extraction and origin resolution. A panic anywhere in there
// becomes ErrExtraction.
func (s *Scanner) compose(rawURL string, platform models.Platform, html string) (product *models.ScrapedProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			product = nil
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	p := page.New(html, rawURL)
	fields := s.extractor.Extract(p, s.profile(platform))
	res := s.resolver.Resolve(p)

	product = models.NewScrapedProduct(rawURL, platform)
	product.ScannedAt = s.now()
	product.Title = fields.Title
	product.Price = fields.Price
	product.Currency = fields.Currency
	product.Shipping = fields.Shipping
	product.Condition = fields.Condition
	product.Brand = fields.Brand
	product.Category = fields.Category
	product.Weight = fields.Weight
	product.Dimensions = fields.Dimensions
	product.Description = fields.Description
	product.Available = fields.Available
	if len(fields.Images) > 0 {
		product.Images = fields.Images
	}
	if fields.Seller != "" {
		product.Seller = fields.Seller
	}

	product.OriginCountry = res.Country
	product.Location = res.Location
	product.OriginConfidence = res.Confidence
	switch {
	case fields.SellerLocation != "":
		product.SellerLocation = fields.SellerLocation
	case res.Source != origin.SourceUnknown:
		product.SellerLocation = res.Location
	}

	if id, ok := models.EbayItemID(rawURL); ok {
		product.EbayItemID = id
	}
	if asin, ok := models.ASIN(rawURL); ok {
		product.ASIN = asin
	}

	for _, t := range fields.Trace {
		product.AddDiagnostic(t)
	}
	for _, problem := range fields.Problems {
		product.AddDiagnostic("problem: " + problem)
	}
	product.AddDiagnostic(fmt.Sprintf("origin=%s (%d)", res.Source, res.Confidence))

	if !fields.PriceFound {
		s.fillMissingPrice(product, platform)
	}
	return product, nil
}

// fillMissingPrice keeps the real fields of a page that had no price and
// borrows price and shipping from the fallback catalog.
func (s *Scanner) fillMissingPrice(product *models.ScrapedProduct, platform models.Platform) {
	synthetic := s.fallback.Generate(product.URL, platform, "")
	product.Price = synthetic.Price
	product.Shipping = synthetic.Shipping
	product.IsFallback = true
	product.AddDiagnostic("fallback: price not found on page")
}
