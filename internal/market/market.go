// Package market maps marketplace domains to the country and currency they
// imply. Domain evidence is the weakest origin signal and only used last.
package market

import (
	"net/url"
	"sort"
	"strings"
)

type Rule struct {
	Suffix   string `yaml:"suffix"`
	Country  string `yaml:"country"`
	Currency string `yaml:"currency"`
}

type Table struct {
	rules []Rule
}

// NewTable sorts rules so the longest suffix is tried first.
func NewTable(rules []Rule) *Table {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Suffix) > len(sorted[j].Suffix)
	})
	return &Table{rules: sorted}
}

func DefaultTable() *Table {
	return NewTable(DefaultRules())
}

func DefaultRules() []Rule {
	return []Rule{
		{Suffix: "ebay.de", Country: "Німеччина", Currency: "EUR"},
		{Suffix: "ebay.at", Country: "Австрія", Currency: "EUR"},
		{Suffix: "ebay.ch", Country: "Швейцарія", Currency: "CHF"},
		{Suffix: "ebay.co.uk", Country: "Велика Британія", Currency: "GBP"},
		{Suffix: "ebay.ie", Country: "Ірландія", Currency: "EUR"},
		{Suffix: "ebay.fr", Country: "Франція", Currency: "EUR"},
		{Suffix: "ebay.it", Country: "Італія", Currency: "EUR"},
		{Suffix: "ebay.es", Country: "Іспанія", Currency: "EUR"},
		{Suffix: "ebay.nl", Country: "Нідерланди", Currency: "EUR"},
		{Suffix: "ebay.be", Country: "Бельгія", Currency: "EUR"},
		{Suffix: "ebay.pl", Country: "Польща", Currency: "PLN"},
		{Suffix: "ebay.com.au", Country: "Австралія", Currency: "AUD"},
		{Suffix: "ebay.ca", Country: "Канада", Currency: "CAD"},
		{Suffix: "ebay.com", Country: "США", Currency: "USD"},
		{Suffix: "amazon.de", Country: "Німеччина", Currency: "EUR"},
		{Suffix: "amazon.co.uk", Country: "Велика Британія", Currency: "GBP"},
		{Suffix: "amazon.fr", Country: "Франція", Currency: "EUR"},
		{Suffix: "amazon.it", Country: "Італія", Currency: "EUR"},
		{Suffix: "amazon.es", Country: "Іспанія", Currency: "EUR"},
		{Suffix: "amazon.nl", Country: "Нідерланди", Currency: "EUR"},
		{Suffix: "amazon.com.be", Country: "Бельгія", Currency: "EUR"},
		{Suffix: "amazon.pl", Country: "Польща", Currency: "PLN"},
		{Suffix: "amazon.se", Country: "Швеція", Currency: "SEK"},
		{Suffix: "amazon.com.tr", Country: "Туреччина", Currency: "TRY"},
		{Suffix: "amazon.co.jp", Country: "Японія", Currency: "JPY"},
		{Suffix: "amazon.cn", Country: "Китай", Currency: "CNY"},
		{Suffix: "amazon.in", Country: "Індія", Currency: "INR"},
		{Suffix: "amazon.ca", Country: "Канада", Currency: "CAD"},
		{Suffix: "amazon.com.mx", Country: "Мексика", Currency: "MXN"},
		{Suffix: "amazon.com.br", Country: "Бразилія", Currency: "BRL"},
		{Suffix: "amazon.com.au", Country: "Австралія", Currency: "AUD"},
		{Suffix: "amazon.com", Country: "США", Currency: "USD"},
		{Suffix: ".de", Country: "Німеччина", Currency: "EUR"},
		{Suffix: ".co.uk", Country: "Велика Британія", Currency: "GBP"},
		{Suffix: ".uk", Country: "Велика Британія", Currency: "GBP"},
		{Suffix: ".fr", Country: "Франція", Currency: "EUR"},
		{Suffix: ".it", Country: "Італія", Currency: "EUR"},
		{Suffix: ".es", Country: "Іспанія", Currency: "EUR"},
		{Suffix: ".nl", Country: "Нідерланди", Currency: "EUR"},
		{Suffix: ".be", Country: "Бельгія", Currency: "EUR"},
		{Suffix: ".pl", Country: "Польща", Currency: "PLN"},
		{Suffix: ".ua", Country: "Україна", Currency: "UAH"},
		{Suffix: ".cn", Country: "Китай", Currency: "CNY"},
		{Suffix: ".jp", Country: "Японія", Currency: "JPY"},
	}
}

// Rules returns the rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Merge returns a new table with extra rules taking precedence over rules
// with the same suffix.
func (t *Table) Merge(extra []Rule) *Table {
	seen := make(map[string]bool, len(extra))
	rules := make([]Rule, 0, len(t.rules)+len(extra))
	for _, r := range extra {
		seen[strings.ToLower(r.Suffix)] = true
		rules = append(rules, r)
	}
	for _, r := range t.rules {
		if !seen[strings.ToLower(r.Suffix)] {
			rules = append(rules, r)
		}
	}
	return NewTable(rules)
}

// LookupHost matches a bare host name.
func (t *Table) LookupHost(host string) (Rule, bool) {
	host = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), "www.")
	if host == "" {
		return Rule{}, false
	}

	for _, r := range t.rules {
		suffix := strings.ToLower(r.Suffix)
		if strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(host, suffix) {
				return r, true
			}
			continue
		}
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return r, true
		}
	}
	return Rule{}, false
}

// Lookup matches the host of rawURL.
func (t *Table) Lookup(rawURL string) (Rule, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Rule{}, false
	}
	return t.LookupHost(u.Hostname())
}
