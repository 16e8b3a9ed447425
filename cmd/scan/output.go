package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/maltedev/product-scanner/internal/models"
)

type resultWriter interface {
	Write(p *models.ScrapedProduct) error
	Flush() error
}

func newWriter(w io.Writer, format string) (resultWriter, error) {
	switch format {
	case "text", "":
		return &textWriter{w: w}, nil
	case "json":
		return &jsonWriter{enc: json.NewEncoder(w)}, nil
	case "csv":
		return &csvWriter{w: csv.NewWriter(w)}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

type textWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (t *textWriter) Write(p *models.ScrapedProduct) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	source := "page"
	if p.IsFallback {
		source = "fallback"
	}

	_, err := fmt.Fprintf(t.w, "\n=== %s ===\nURL:       %s\nPlatform:  %s (%s)\nPrice:     %.2f %s + %.2f shipping = %.2f\nCondition: %s\nSeller:    %s, %s\nOrigin:    %s (%d%%)\n",
		p.Title, p.URL, p.Platform, source,
		p.Price, p.Currency, p.Shipping, p.Total(),
		p.Condition,
		p.Seller, p.SellerLocation,
		p.OriginCountry, p.OriginConfidence)
	return err
}

func (t *textWriter) Flush() error { return nil }

// jsonWriter emits one product per line.
type jsonWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (j *jsonWriter) Write(p *models.ScrapedProduct) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(p)
}

func (j *jsonWriter) Flush() error { return nil }

var csvHeader = []string{
	"url", "platform", "title", "price", "shipping", "total", "currency",
	"condition", "seller", "seller_location", "origin_country", "origin_confidence", "fallback",
}

type csvWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	header bool
}

func (c *csvWriter) Write(p *models.ScrapedProduct) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.header {
		if err := c.w.Write(csvHeader); err != nil {
			return err
		}
		c.header = true
	}

	return c.w.Write([]string{
		p.URL,
		string(p.Platform),
		p.Title,
		money(p.Price),
		money(p.Shipping),
		money(p.Total()),
		p.Currency,
		p.Condition,
		p.Seller,
		p.SellerLocation,
		p.OriginCountry,
		strconv.Itoa(p.OriginConfidence),
		strconv.FormatBool(p.IsFallback),
	})
}

func (c *csvWriter) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.w.Flush()
	return c.w.Error()
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
