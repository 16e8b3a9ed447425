package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/events"
)

func payload(rawURL string, total string, fallback bool) *events.ProductScannedPayload {
	return &events.ProductScannedPayload{
		URL:        rawURL,
		Title:      "Vintage Camera",
		IsFallback: fallback,
		Price: events.Price{
			Total:    decimal.RequireFromString(total),
			Currency: "EUR",
		},
	}
}

func TestPriceWatchTracksTotals(t *testing.T) {
	w := newPriceWatch("", slog.Default())
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, payload("https://a.test/1", "144.99", false)))
	require.NoError(t, w.Handle(ctx, payload("https://a.test/1", "139.99", false)))
	require.NoError(t, w.Handle(ctx, payload("https://b.test/2", "20.00", false)))

	assert.Equal(t, 2, w.Tracked())
	assert.Equal(t, "139.99", w.last["https://a.test/1"].StringFixed(2))
}

func TestPriceWatchIgnoresFallbackWithoutRescanURL(t *testing.T) {
	w := newPriceWatch("", slog.Default())
	require.NoError(t, w.Handle(context.Background(), payload("https://a.test/1", "99.99", true)))
	assert.Equal(t, 0, w.Tracked())
}

func TestPriceWatchRescansOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://a.test/1", body["url"])
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := newPriceWatch(srv.URL, slog.Default())
	ctx := context.Background()

	require.NoError(t, w.Handle(ctx, payload("https://a.test/1", "99.99", true)))
	require.NoError(t, w.Handle(ctx, payload("https://a.test/1", "99.99", true)))

	assert.Equal(t, int32(1), calls.Load())
}

func TestPriceWatchRescanRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		rw.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := newPriceWatch(srv.URL, slog.Default())
	w.backoff = 0

	err := w.Handle(context.Background(), payload("https://a.test/1", "99.99", true))
	assert.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())

	// A failed rescan may be requested again.
	assert.False(t, w.rescanned["https://a.test/1"])
}
