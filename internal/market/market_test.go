package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name     string
		url      string
		country  string
		currency string
		found    bool
	}{
		{"eBay Germany", "https://www.ebay.de/itm/123456789", "Німеччина", "EUR", true},
		{"eBay UK before generic uk", "https://www.ebay.co.uk/itm/1", "Велика Британія", "GBP", true},
		{"eBay US", "https://ebay.com/itm/1", "США", "USD", true},
		{"eBay Australia before com", "https://www.ebay.com.au/itm/1", "Австралія", "AUD", true},
		{"Amazon Japan", "https://www.amazon.co.jp/dp/B000000000", "Японія", "JPY", true},
		{"Subdomain", "https://m.ebay.de/itm/1", "Німеччина", "EUR", true},
		{"eBay Belgium", "https://www.befr.ebay.be/itm/123456789", "Бельгія", "EUR", true},
		{"Amazon Belgium", "https://www.amazon.com.be/dp/B000000000", "Бельгія", "EUR", true},
		{"Belgian TLD", "https://winkel.example.be/p/1", "Бельгія", "EUR", true},
		{"Generic TLD", "https://shop.example.pl/p/1", "Польща", "PLN", true},
		{"No signal", "https://shop.example.org/p/1", "", "", false},
		{"Lookalike host", "https://notebay.com/itm/1", "", "", false},
		{"Garbage", "::::", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := table.Lookup(tt.url)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.country, rule.Country)
			assert.Equal(t, tt.currency, rule.Currency)
		})
	}
}

func TestMerge(t *testing.T) {
	table := DefaultTable().Merge([]Rule{
		{Suffix: "ebay.de", Country: "Germany", Currency: "EUR"},
		{Suffix: "allegro.pl", Country: "Польща", Currency: "PLN"},
	})

	rule, ok := table.Lookup("https://www.ebay.de/itm/1")
	assert.True(t, ok)
	assert.Equal(t, "Germany", rule.Country)

	rule, ok = table.Lookup("https://allegro.pl/oferta/1")
	assert.True(t, ok)
	assert.Equal(t, "PLN", rule.Currency)
}
