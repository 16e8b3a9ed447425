package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/models"
)

func product(rawURL string, fallback bool) *models.ScrapedProduct {
	p := models.NewScrapedProduct(rawURL, models.DetectPlatform(rawURL))
	p.Title = "Vintage Camera"
	p.Price = 129.99
	p.Shipping = 15
	p.Currency = "EUR"
	p.IsFallback = fallback
	return p
}

func TestResultStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	s, err := NewResultStore(path)
	require.NoError(t, err)

	require.NoError(t, s.Put(ResultFromProduct(product("https://www.ebay.de/itm/1", true))))
	require.NoError(t, s.Put(ResultFromProduct(product("https://www.ebay.de/itm/1", false))))
	require.NoError(t, s.Put(&ScanResult{URL: "https://x.test/broken", Status: StatusFailed, Error: "invalid product url"}))

	reopened, err := NewResultStore(path)
	require.NoError(t, err)

	r, ok := reopened.Get("https://www.ebay.de/itm/1")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, 2, r.Attempts)
	assert.InDelta(t, 144.99, r.TotalPrice, 0.001)
	assert.True(t, reopened.Done("https://www.ebay.de/itm/1"))
	assert.False(t, reopened.Done("https://x.test/broken"))

	assert.Equal(t, map[string]int{StatusCompleted: 1, StatusFailed: 1, "total": 2}, reopened.GetStats())

	all := reopened.All()
	require.Len(t, all, 2)
	assert.Equal(t, "https://www.ebay.de/itm/1", all[0].URL)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestResultStoreRejectsEmptyURL(t *testing.T) {
	s, err := NewResultStore(filepath.Join(t.TempDir(), "results.json"))
	require.NoError(t, err)
	assert.Error(t, s.Put(&ScanResult{}))
}

func TestResultStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewResultStore(path)
	assert.Error(t, err)
}
