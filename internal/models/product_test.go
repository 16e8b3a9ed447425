package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotal(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		shipping float64
		expected float64
	}{
		{"Simple sum", 42.50, 7.50, 50.00},
		{"Float artifacts", 0.1, 0.2, 0.3},
		{"Free shipping", 19.99, 0, 19.99},
		{"Zero price", 0, 12.5, 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ScrapedProduct{Price: tt.price, Shipping: tt.shipping}
			assert.InDelta(t, tt.expected, p.Total(), 0.01)
			assert.InDelta(t, tt.price+tt.shipping, p.Total(), 0.01)
		})
	}
}

func TestMarshalJSONIncludesDerivedTotal(t *testing.T) {
	p := NewScrapedProduct("https://www.ebay.de/itm/1", PlatformEbay)
	p.Title = "Widget"
	p.Price = 10.25
	p.Shipping = 4.75
	p.Currency = "EUR"

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, 15.0, decoded["totalPrice"])
	assert.Equal(t, "Widget", decoded["title"])
	assert.Equal(t, "ebay", decoded["platform"])
	assert.NotContains(t, decoded, "weight")
}

func TestValidate(t *testing.T) {
	p := NewScrapedProduct("https://example.com", PlatformGeneric)
	errs := p.Validate()
	assert.Contains(t, errs, "title is required")
	assert.Contains(t, errs, "currency is required")
	assert.NotContains(t, errs, "origin country is required")

	p.Title = "Item"
	p.Currency = "USD"
	assert.Empty(t, p.Validate())

	p.Price = -1
	assert.Contains(t, p.Validate(), "price must not be negative")
}
