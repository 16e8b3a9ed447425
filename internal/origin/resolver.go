// Package origin resolves the country a listing ships from. Textual evidence
// wins over structured data, which wins over the marketplace domain.
package origin

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/maltedev/product-scanner/internal/market"
	"github.com/maltedev/product-scanner/internal/models"
	"github.com/maltedev/product-scanner/internal/page"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	labelConfidence      = 30
	keywordConfidence    = 50
	structuredConfidence = 40
	domainConfidence     = 20
)

// Source names the strategy that decided the country.
type Source string

const (
	SourceKeyword    Source = "keyword"
	SourceStructured Source = "structured"
	SourceDomain     Source = "domain"
	SourceUnknown    Source = "unknown"
)

type Result struct {
	Country    string
	Location   string
	Confidence int
	Source     Source
	// Label is the label that introduced Location, if one was found.
	Label string
}

type Resolver struct {
	table   *Table
	markets *market.Table
}

func NewResolver(table *Table, markets *market.Table) *Resolver {
	if table == nil {
		table = DefaultTable()
	}
	if markets == nil {
		markets = market.DefaultTable()
	}
	return &Resolver{table: table, markets: markets}
}

// ResolveHTML is Resolve for callers holding raw HTML.
func (r *Resolver) ResolveHTML(html, rawURL string) Result {
	return r.Resolve(page.New(html, rawURL))
}

// Resolve tries, in order: a label segment and the keyword dictionary,
// structured data, the marketplace domain. The first strategy to name a
// country wins; conflicting later signals are not consulted.
func (r *Resolver) Resolve(p *page.Page) Result {
	var res Result

	label, segment, captured := r.captureLabel(p.Text)
	if captured {
		res.Label = label
		res.Location = titleCase(segment)
		res.Confidence += labelConfidence
	}

	haystack := p.Text
	if captured {
		haystack = segment
	}
	if country, ok := r.matchKeyword(haystack, captured); ok {
		return r.finish(res, country, keywordConfidence, SourceKeyword)
	}

	if country, ok := r.structured(p); ok {
		return r.finish(res, country, structuredConfidence, SourceStructured)
	}

	if rule, ok := r.markets.LookupHost(p.Host); ok && rule.Country != "" {
		return r.finish(res, rule.Country, domainConfidence, SourceDomain)
	}

	return r.finish(res, models.Unknown, 0, SourceUnknown)
}

func (r *Resolver) finish(res Result, country string, confidence int, source Source) Result {
	res.Country = country
	res.Source = source
	res.Confidence += confidence
	if res.Confidence > 100 {
		res.Confidence = 100
	}
	if res.Location == "" {
		res.Location = country
	}
	return res
}

var segmentStops = []string{
	"|", "•", ";", " shipping", " postage", " delivery", " ships to", " returns",
	" versand", " lieferung", " rücknahme", " livraison", " spedizione", " envío",
	" доставка", " seller", " verkäufer",
}

// captureLabel returns the first label, in table order, followed by a
// plausible location segment.
func (r *Resolver) captureLabel(text string) (string, string, bool) {
	maxSegment := r.table.MaxSegment
	if maxSegment <= 0 {
		maxSegment = defaultMaxSegment
	}

	for _, label := range r.table.Labels {
		offset := 0
		for {
			idx := strings.Index(text[offset:], label)
			if idx < 0 {
				break
			}
			start := offset + idx + len(label)
			offset = start

			if segment, ok := cutSegment(text[start:], maxSegment); ok {
				return label, segment, true
			}
		}
	}
	return "", "", false
}

func cutSegment(rest string, maxRunes int) (string, bool) {
	if utf8.RuneCountInString(rest) > maxRunes {
		rest = string([]rune(rest)[:maxRunes])
	}
	for _, stop := range segmentStops {
		if i := strings.Index(rest, stop); i >= 0 {
			rest = rest[:i]
		}
	}
	rest = strings.Trim(rest, " :,-")

	letters := 0
	for _, c := range rest {
		if unicode.IsLetter(c) {
			letters++
		}
	}
	return rest, letters >= 2
}

// matchKeyword returns the keyword that occurs earliest in text. Label-only
// keywords are considered only when text is a captured segment.
func (r *Resolver) matchKeyword(text string, inLabel bool) (string, bool) {
	best, bestAt, bestLen := "", -1, 0
	for _, k := range r.table.Keywords {
		if k.LabelOnly && !inLabel {
			continue
		}
		idx := indexWord(text, k.Term)
		if idx < 0 {
			continue
		}
		if bestAt < 0 || idx < bestAt || (idx == bestAt && len(k.Term) > bestLen) {
			best, bestAt, bestLen = k.Country, idx, len(k.Term)
		}
	}
	return best, bestAt >= 0
}

func (r *Resolver) structured(p *page.Page) (string, bool) {
	nodes := p.Nodes
	if product, ok := p.Product(); ok {
		nodes = append([]page.Node{product}, nodes...)
	}

	for _, path := range r.table.StructuredPaths {
		for _, node := range nodes {
			raw := page.CollapseSpace(node.String(path...))
			if raw == "" {
				continue
			}
			if country, ok := r.countryFromValue(raw); ok {
				return country, true
			}
		}
	}
	return "", false
}

func (r *Resolver) countryFromValue(raw string) (string, bool) {
	normalized := page.Normalize(raw)
	if country, ok := r.table.Codes[normalized]; ok {
		return country, true
	}
	if country, ok := r.matchKeyword(normalized, true); ok {
		return country, true
	}
	if utf8.RuneCountInString(normalized) <= 3 {
		return "", false
	}
	return titleCase(normalized), true
}

// indexWord finds term in s where it is not glued to other letters.
func indexWord(s, term string) int {
	if term == "" {
		return -1
	}
	offset := 0
	for offset < len(s) {
		idx := strings.Index(s[offset:], term)
		if idx < 0 {
			return -1
		}
		idx += offset
		end := idx + len(term)

		before, _ := utf8.DecodeLastRuneInString(s[:idx])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (idx == 0 || !isWordRune(before)) && (end == len(s) || !isWordRune(after)) {
			return idx
		}
		_, size := utf8.DecodeRuneInString(s[idx:])
		offset = idx + size
	}
	return -1
}

func isWordRune(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c)
}

// A Caser is stateful, so one is built per call.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
