package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/fetcher"
	"github.com/maltedev/product-scanner/internal/models"
)

const widgetHTML = `<html><head>
<meta property="og:title" content="Test Widget">
<script type="application/ld+json">{"offers":{"price":"42.50","priceCurrency":"EUR"}}</script>
</head><body><p>A widget.</p></body></html>`

const ebayHTML = `<html><head><title>Vintage Camera | eBay</title></head><body>
<h1 class="x-item-title__mainTitle"><span>Vintage Camera Leica M3</span></h1>
<div class="x-price-primary"><span>EUR 129,99</span></div>
<div class="ux-labels-values"><div class="ux-labels-values__labels">Artikelstandort:</div>
<div class="ux-labels-values__values">Berlin, Deutschland</div></div>
</body></html>`

func serve(html string) fetcher.Fetcher {
	return fetcher.FetchFunc(func(ctx context.Context, rawURL string) (string, error) {
		return html, nil
	})
}

func failing() fetcher.Fetcher {
	return fetcher.FetchFunc(func(ctx context.Context, rawURL string) (string, error) {
		return "", &fetcher.FetchError{URL: rawURL, Attempts: []fetcher.AttemptError{{Target: "relay", Err: fetcher.ErrShortBody}}}
	})
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}

func TestScanWidget(t *testing.T) {
	s := New(serve(widgetHTML), WithClock(fixedClock))

	p, err := s.Scan(context.Background(), "https://shop.example.com/widget")

	require.NoError(t, err)
	assert.Equal(t, "Test Widget", p.Title)
	assert.InDelta(t, 42.50, p.Price, 0.001)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, models.PlatformGeneric, p.Platform)
	assert.False(t, p.IsFallback)
	assert.Equal(t, models.Unknown, p.Seller)
	assert.Equal(t, models.Unknown, p.OriginCountry)
	assert.Equal(t, fixedClock(), p.ScannedAt)
	assert.Contains(t, p.Diagnostics, "price=ld+json offers.price")
	assert.Empty(t, p.Validate())
}

func TestScanFallsBackWhenFetchFails(t *testing.T) {
	s := New(failing())

	p, err := s.Scan(context.Background(), "https://www.ebay.de/itm/123456789")

	require.NoError(t, err)
	assert.True(t, p.IsFallback)
	assert.Equal(t, models.PlatformEbay, p.Platform)
	assert.Equal(t, "123456789", p.EbayItemID)
	assert.Equal(t, "Німеччина", p.OriginCountry)
	assert.Equal(t, "EUR", p.Currency)
	assert.NotEmpty(t, p.Title)
	assert.Greater(t, p.Price, 0.0)
	require.NotEmpty(t, p.Diagnostics)
	assert.True(t, strings.HasPrefix(p.Diagnostics[0], "fallback: "))
	assert.Empty(t, p.Validate())
}

func TestScanBelgianListingFallsBackToDomain(t *testing.T) {
	p, err := New(nil).Scan(context.Background(), "https://www.befr.ebay.be/itm/123456789")

	require.NoError(t, err)
	assert.Equal(t, models.PlatformEbay, p.Platform)
	assert.Equal(t, "Бельгія", p.OriginCountry)
	assert.Equal(t, "EUR", p.Currency)
}

func TestScanReadsStructuredPriceAsNumber(t *testing.T) {
	tests := []struct {
		offers string
		want   float64
	}{
		{`{"price":"29.990","priceCurrency":"KWD"}`, 29.99},
		{`{"price":2.499,"priceCurrency":"KWD"}`, 2.499},
		{`{"price":1.5,"priceCurrency":"KWD"}`, 1.5},
	}

	for _, tt := range tests {
		html := `<html><head><script type="application/ld+json">{"@type":"Product","name":"Lamp","offers":` +
			tt.offers + `}</script></head><body></body></html>`
		p, err := New(serve(html)).Scan(context.Background(), "https://shop.example.com/lamp")

		require.NoError(t, err)
		assert.False(t, p.IsFallback, tt.offers)
		assert.InDelta(t, tt.want, p.Price, 0.0001, tt.offers)
		assert.Equal(t, "KWD", p.Currency, tt.offers)
	}
}

func TestScanNilFetcher(t *testing.T) {
	p, err := New(nil).Scan(context.Background(), "https://www.amazon.de/dp/B08N5WRWNW")

	require.NoError(t, err)
	assert.True(t, p.IsFallback)
	assert.Equal(t, "B08N5WRWNW", p.ASIN)
}

func TestScanGarbagePage(t *testing.T) {
	s := New(serve("%%%% not html at all <<<>>>"))

	p, err := s.Scan(context.Background(), "https://shop.example.com/p/1")

	require.NoError(t, err)
	assert.Equal(t, "Product", p.Title)
	assert.True(t, p.IsFallback, "no price on the page means a borrowed price")
	assert.Greater(t, p.Price, 0.0)
	assert.NotNil(t, p.Images)
	assert.Contains(t, p.Diagnostics, "fallback: price not found on page")
}

func TestScanEbayPage(t *testing.T) {
	s := New(serve(ebayHTML))

	p, err := s.Scan(context.Background(), "https://www.ebay.de/itm/vintage-camera/123456789")

	require.NoError(t, err)
	assert.False(t, p.IsFallback)
	assert.InDelta(t, 129.99, p.Price, 0.001)
	assert.Equal(t, "EUR", p.Currency)
	assert.Equal(t, "Німеччина", p.OriginCountry)
	assert.GreaterOrEqual(t, p.OriginConfidence, 50)
	assert.Equal(t, "123456789", p.EbayItemID)
	assert.Equal(t, "Used", p.Condition)
	assert.InDelta(t, 129.99+15, p.Total(), 0.001)
}

func TestScanInvalidURL(t *testing.T) {
	var calls atomic.Int32
	f := fetcher.FetchFunc(func(ctx context.Context, rawURL string) (string, error) {
		calls.Add(1)
		return widgetHTML, nil
	})
	s := New(f)

	for _, raw := range []string{"", "   ", "not a url", "ftp://example.com/x", "https://"} {
		_, err := s.Scan(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestScanCancelled(t *testing.T) {
	f := fetcher.FetchFunc(func(ctx context.Context, rawURL string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(f).Scan(ctx, "https://www.ebay.de/itm/123456789")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractIsStrict(t *testing.T) {
	t.Run("Fetch error", func(t *testing.T) {
		_, err := New(failing()).Extract(context.Background(), "https://www.ebay.de/itm/123456789")
		assert.ErrorIs(t, err, fetcher.ErrNoContent)
	})

	t.Run("No price", func(t *testing.T) {
		_, err := New(serve("<html><body>nothing</body></html>")).Extract(context.Background(), "https://shop.example.com/p")
		assert.ErrorIs(t, err, ErrNoProductData)
	})

	t.Run("Success", func(t *testing.T) {
		p, err := New(serve(widgetHTML)).Extract(context.Background(), "https://shop.example.com/widget")
		require.NoError(t, err)
		assert.Equal(t, "Test Widget", p.Title)
	})
}

func TestQuickPrice(t *testing.T) {
	assert.InDelta(t, 62.50, New(serve(widgetHTML)).QuickPrice(context.Background(), "https://shop.example.com/widget"), 0.001)

	s := New(failing())
	assert.Equal(t, 99.99, s.QuickPrice(context.Background(), "not a url"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 999.99, s.QuickPrice(ctx, "https://www.amazon.de/dp/B08N5WRWNW"))
}

func TestScanRecoversFromPanic(t *testing.T) {
	// A nil resolver panics inside compose; Scan still returns a result.
	s := New(serve(widgetHTML), WithResolver(nil))

	p, err := s.Scan(context.Background(), "https://shop.example.com/widget")

	require.NoError(t, err)
	assert.True(t, p.IsFallback)
	assert.True(t, strings.HasPrefix(p.Diagnostics[0], "fallback: "+ErrExtraction.Error()))
}

func TestScanJSON(t *testing.T) {
	p, err := New(serve(widgetHTML)).Scan(context.Background(), "https://shop.example.com/widget")
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.InDelta(t, 62.50, decoded["totalPrice"], 0.001)
	assert.Equal(t, false, decoded["isFallback"])
	assert.Contains(t, decoded, "originConfidence")
}

func TestScanConcurrent(t *testing.T) {
	s := New(serve(widgetHTML))
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			p, err := s.Scan(context.Background(), "https://shop.example.com/widget")
			if err == nil && p.Title != "Test Widget" {
				err = errors.New("unexpected title " + p.Title)
			}
			errs <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-errs)
	}
}
