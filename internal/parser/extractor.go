package parser

import (
	"regexp"
	"strings"

	"github.com/maltedev/product-scanner/internal/market"
	"github.com/maltedev/product-scanner/internal/page"
)

const maxImages = 12

// Fields is everything the extractors found on one page. Trace records the
// winning strategy per field, Problems the strategies that failed loudly.
type Fields struct {
	Title          string
	Price          float64
	Currency       string
	Shipping       float64
	Condition      string
	Seller         string
	SellerLocation string
	Brand          string
	Category       string
	Weight         string
	Dimensions     string
	Images         []string
	Description    string
	Available      bool

	// PriceFound is false when no strategy located a price and Price is zero.
	PriceFound bool

	Trace    []string
	Problems []string
}

// Extractor runs a Profile against a page. It holds no per-page state and
// is safe for concurrent use.
type Extractor struct {
	markets *market.Table
}

func NewExtractor(markets *market.Table) *Extractor {
	if markets == nil {
		markets = market.DefaultTable()
	}
	return &Extractor{markets: markets}
}

// Extract runs every field independently; a miss on one field never
// affects the others.
func (e *Extractor) Extract(p *page.Page, profile *Profile) Fields {
	var f Fields
	f.Problems = append(f.Problems, p.Problems...)

	f.Title = e.title(&f, p, profile)

	money, ok := run(&f, "price", p, profile.Price)
	f.Price, f.PriceFound = money.Amount, ok
	f.Currency = e.currency(&f, p, profile, money.Currency)

	if v, ok := run(&f, "shipping", p, profile.Shipping); ok {
		f.Shipping = v
	} else {
		f.Shipping = profile.DefaultShipping
		f.Trace = append(f.Trace, "shipping=platform default")
	}

	if v, ok := run(&f, "condition", p, profile.Condition); ok {
		f.Condition = v
	} else {
		f.Condition = profile.DefaultCondition
	}

	f.Seller, _ = run(&f, "seller", p, profile.Seller)
	f.SellerLocation, _ = run(&f, "sellerLocation", p, profile.SellerLocation)
	f.Brand, _ = run(&f, "brand", p, profile.Brand)
	f.Category, _ = run(&f, "category", p, profile.Category)
	f.Weight, _ = run(&f, "weight", p, profile.Weight)
	f.Dimensions, _ = run(&f, "dimensions", p, profile.Dimensions)
	f.Description, _ = run(&f, "description", p, profile.Description)

	images, _ := run(&f, "images", p, profile.Images)
	f.Images = dedupe(images, maxImages)

	if v, ok := run(&f, "available", p, profile.Available); ok {
		f.Available = v
	} else {
		f.Available = true
	}

	return f
}

func run[T any](f *Fields, field string, p *page.Page, strategies []Strategy[T]) (T, bool) {
	v, winner, problems := First(p, strategies)
	f.Problems = append(f.Problems, problems...)
	if winner == "" {
		return v, false
	}
	f.Trace = append(f.Trace, field+"="+winner)
	return v, true
}

func (e *Extractor) title(f *Fields, p *page.Page, profile *Profile) string {
	strategies := append(append([]Strategy[string]{}, profile.Title...), pageTitle())
	if v, ok := run(f, "title", p, strategies); ok {
		if cleaned := CleanTitle(v); cleaned != "" {
			return cleaned
		}
	}
	f.Trace = append(f.Trace, "title=platform default")
	return profile.FallbackTitle
}

// currency prefers a currency the price strategy saw next to the amount,
// then the profile, then any symbol in the text, then the marketplace.
func (e *Extractor) currency(f *Fields, p *page.Page, profile *Profile, fromPrice string) string {
	if fromPrice != "" {
		f.Trace = append(f.Trace, "currency=price")
		return fromPrice
	}

	strategies := append(append([]Strategy[string]{}, profile.Currency...),
		symbolAnywhere(),
		e.domainCurrency(),
	)
	if v, ok := run(f, "currency", p, strategies); ok {
		return v
	}
	f.Trace = append(f.Trace, "currency=default")
	return "USD"
}

func (e *Extractor) domainCurrency() Strategy[string] {
	return Strategy[string]{
		Name: "marketplace domain",
		Attempt: func(p *page.Page) (string, bool) {
			rule, ok := e.markets.LookupHost(p.Host)
			if !ok || rule.Currency == "" {
				return "", false
			}
			return rule.Currency, true
		},
	}
}

func pageTitle() Strategy[string] {
	return Strategy[string]{
		Name: "title tag",
		Attempt: func(p *page.Page) (string, bool) {
			v := p.Title()
			return v, v != ""
		},
	}
}

var titleNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^amazon(?:\.[a-z.]+)?\s*:\s*`),
	regexp.MustCompile(`(?i)\s*[:|\-]\s*amazon\.[a-z.]+.*$`),
	regexp.MustCompile(`(?i)\s*\|\s*ebay.*$`),
	regexp.MustCompile(`(?i)\s+bei ebay$`),
}

// CleanTitle strips marketplace decorations from a page or og title.
func CleanTitle(title string) string {
	title = page.CollapseSpace(title)
	for _, pattern := range titleNoise {
		title = pattern.ReplaceAllString(title, "")
	}
	return strings.TrimSpace(title)
}

func dedupe(values []string, limit int) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Per-field entry points, for callers and tests that need one value.

func (e *Extractor) Title(p *page.Page, profile *Profile) string {
	return e.title(&Fields{}, p, profile)
}

func (e *Extractor) Price(p *page.Page, profile *Profile) (Money, bool) {
	return run(&Fields{}, "price", p, profile.Price)
}

func (e *Extractor) Currency(p *page.Page, profile *Profile) string {
	var f Fields
	money, _ := run(&f, "price", p, profile.Price)
	return e.currency(&f, p, profile, money.Currency)
}

func (e *Extractor) Shipping(p *page.Page, profile *Profile) float64 {
	if v, ok := run(&Fields{}, "shipping", p, profile.Shipping); ok {
		return v
	}
	return profile.DefaultShipping
}

func (e *Extractor) Seller(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "seller", p, profile.Seller)
}

func (e *Extractor) Condition(p *page.Page, profile *Profile) string {
	if v, ok := run(&Fields{}, "condition", p, profile.Condition); ok {
		return v
	}
	return profile.DefaultCondition
}

func (e *Extractor) Brand(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "brand", p, profile.Brand)
}

func (e *Extractor) Category(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "category", p, profile.Category)
}

func (e *Extractor) Weight(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "weight", p, profile.Weight)
}

func (e *Extractor) Dimensions(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "dimensions", p, profile.Dimensions)
}

func (e *Extractor) Images(p *page.Page, profile *Profile) []string {
	images, _ := run(&Fields{}, "images", p, profile.Images)
	return dedupe(images, maxImages)
}

func (e *Extractor) Description(p *page.Page, profile *Profile) (string, bool) {
	return run(&Fields{}, "description", p, profile.Description)
}

func (e *Extractor) Available(p *page.Page, profile *Profile) bool {
	if v, ok := run(&Fields{}, "available", p, profile.Available); ok {
		return v
	}
	return true
}
