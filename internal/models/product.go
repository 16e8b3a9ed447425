package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Platform string

const (
	PlatformEbay    Platform = "ebay"
	PlatformAmazon  Platform = "amazon"
	PlatformGeneric Platform = "generic"
)

// Unknown is the sentinel for seller and location fields nothing could be found for.
const Unknown = "Невідомо"

// ScrapedProduct is the result of one scan. It is built once per request and
// not mutated afterwards.
type ScrapedProduct struct {
	URL              string    `json:"url"`
	Platform         Platform  `json:"platform"`
	Title            string    `json:"title"`
	Price            float64   `json:"price"`
	Currency         string    `json:"currency"`
	Shipping         float64   `json:"shipping"`
	Condition        string    `json:"condition"`
	Seller           string    `json:"seller"`
	SellerLocation   string    `json:"sellerLocation"`
	OriginCountry    string    `json:"originCountry"`
	Location         string    `json:"location"`
	OriginConfidence int       `json:"originConfidence"`
	Weight           string    `json:"weight,omitempty"`
	Dimensions       string    `json:"dimensions,omitempty"`
	Images           []string  `json:"images"`
	Description      string    `json:"description"`
	Brand            string    `json:"brand,omitempty"`
	Category         string    `json:"category,omitempty"`
	ASIN             string    `json:"asin,omitempty"`
	EbayItemID       string    `json:"ebayItemId,omitempty"`
	Available        bool      `json:"available"`
	IsFallback       bool      `json:"isFallback"`
	Diagnostics      []string  `json:"diagnostics,omitempty"`
	ScannedAt        time.Time `json:"scannedAt"`
}

func NewScrapedProduct(url string, platform Platform) *ScrapedProduct {
	return &ScrapedProduct{
		URL:            url,
		Platform:       platform,
		Seller:         Unknown,
		SellerLocation: Unknown,
		OriginCountry:  Unknown,
		Location:       Unknown,
		Images:         make([]string, 0),
		Available:      true,
		ScannedAt:      time.Now(),
	}
}

// Total is price plus shipping rounded to cents. It is derived on every call.
func (p *ScrapedProduct) Total() float64 {
	total := decimal.NewFromFloat(p.Price).Add(decimal.NewFromFloat(p.Shipping))
	return total.Round(2).InexactFloat64()
}

// MarshalJSON adds the derived totalPrice.
func (p ScrapedProduct) MarshalJSON() ([]byte, error) {
	type alias ScrapedProduct
	return json.Marshal(struct {
		alias
		TotalPrice float64 `json:"totalPrice"`
	}{
		alias:      alias(p),
		TotalPrice: p.Total(),
	})
}

func (p *ScrapedProduct) AddDiagnostic(msg string) {
	p.Diagnostics = append(p.Diagnostics, msg)
}

func (p *ScrapedProduct) Validate() []string {
	var errors []string

	if p.Title == "" {
		errors = append(errors, "title is required")
	}

	if p.Price < 0 {
		errors = append(errors, "price must not be negative")
	}

	if p.Shipping < 0 {
		errors = append(errors, "shipping must not be negative")
	}

	if p.Currency == "" {
		errors = append(errors, "currency is required")
	}

	if p.OriginCountry == "" {
		errors = append(errors, "origin country is required")
	}

	return errors
}
