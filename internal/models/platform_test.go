package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url      string
		expected Platform
	}{
		{"https://www.ebay.de/itm/123456789", PlatformEbay},
		{"https://www.ebay.co.uk/itm/Vintage-Camera/123456789012", PlatformEbay},
		{"https://www.amazon.de/dp/B08N5WRWNW", PlatformAmazon},
		{"https://www.amazon.com/Some-Kettle/dp/B08N5WRWNW/ref=sr_1_1", PlatformAmazon},
		{"https://www.amazon.com/gp/product/B08N5WRWNW", PlatformAmazon},
		{"https://www.ebay.com/sch/i.html?_nkw=lamp", PlatformEbay},
		{"https://amzn.to/3xYz", PlatformAmazon},
		{"https://shop.example.com/itm/1", PlatformEbay},
		{"https://notebay.com/p/1", PlatformGeneric},
		{"https://shop.example.com/widget", PlatformGeneric},
		{"::::", PlatformGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectPlatform(tt.url))
		})
	}
}

func TestEbayItemID(t *testing.T) {
	id, ok := EbayItemID("https://www.ebay.de/itm/123456789")
	assert.True(t, ok)
	assert.Equal(t, "123456789", id)

	id, ok = EbayItemID("https://www.ebay.com/itm/Vintage-Camera/123456789012?hash=item1")
	assert.True(t, ok)
	assert.Equal(t, "123456789012", id)

	id, ok = EbayItemID("https://cgi.ebay.com/ws/eBayISAPI.dll?ViewItem&item=223344556677")
	assert.True(t, ok)
	assert.Equal(t, "223344556677", id)

	_, ok = EbayItemID("https://www.ebay.de/sch/lamp")
	assert.False(t, ok)
}

func TestASIN(t *testing.T) {
	asin, ok := ASIN("https://www.amazon.de/Acme-Kettle/dp/b08n5wrwnw?th=1")
	assert.True(t, ok)
	assert.Equal(t, "B08N5WRWNW", asin)

	asin, ok = ASIN("https://www.amazon.com/gp/product/B000000001")
	assert.True(t, ok)
	assert.Equal(t, "B000000001", asin)

	_, ok = ASIN("https://www.amazon.com/s?k=kettle")
	assert.False(t, ok)
}
