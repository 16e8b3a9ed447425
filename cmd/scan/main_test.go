package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-scanner/internal/models"
)

func sampleProduct() *models.ScrapedProduct {
	p := models.NewScrapedProduct("https://www.ebay.de/itm/123", models.PlatformEbay)
	p.Title = "Vintage Camera, Boxed"
	p.Price = 129.99
	p.Shipping = 15
	p.Currency = "EUR"
	p.Condition = "Used"
	p.OriginCountry = "Німеччина"
	p.OriginConfidence = 80
	return p
}

func TestLoadURLs(t *testing.T) {
	file := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(file, []byte("# watchlist\nhttps://b.test/2\n\n  https://a.test/1  \n"), 0o644))

	got, err := loadURLs(" https://a.test/1, ,https://c.test/3", file)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.test/1", "https://c.test/3", "https://b.test/2"}, got)
}

func TestLoadURLsMissingFile(t *testing.T) {
	_, err := loadURLs("", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestNewWriterUnknownFormat(t *testing.T) {
	_, err := newWriter(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(&buf, "csv")
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleProduct()))
	require.NoError(t, w.Write(sampleProduct()))
	require.NoError(t, w.Flush())

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Vintage Camera, Boxed", records[1][2])
	assert.Equal(t, "144.99", records[1][5])
	assert.Equal(t, "false", records[1][12])
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(&buf, "json")
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleProduct()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 144.99, decoded["totalPrice"])
	assert.Equal(t, "ebay", decoded["platform"])
}

func TestTextWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := newWriter(&buf, "text")
	require.NoError(t, err)

	p := sampleProduct()
	p.IsFallback = true
	require.NoError(t, w.Write(p))

	out := buf.String()
	assert.True(t, strings.Contains(out, "ebay (fallback)"))
	assert.True(t, strings.Contains(out, "= 144.99"))
	assert.True(t, strings.Contains(out, "Німеччина (80%)"))
}
