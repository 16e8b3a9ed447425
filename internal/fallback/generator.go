// Package fallback produces plausible product records when a page could not
// be fetched or parsed, so callers always get a complete result.
package fallback

import (
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/maltedev/product-scanner/internal/market"
	"github.com/maltedev/product-scanner/internal/models"
)

// fallbackConfidence marks a domain guess; without one the origin is unknown.
const fallbackConfidence = 20

type Sample struct {
	Title     string  `yaml:"title"`
	Price     float64 `yaml:"price"`
	Shipping  float64 `yaml:"shipping"`
	Condition string  `yaml:"condition"`
	Seller    string  `yaml:"seller"`
	Weight    string  `yaml:"weight"`
	Brand     string  `yaml:"brand"`
	Category  string  `yaml:"category"`
}

type Generator struct {
	Catalog map[models.Platform][]Sample
	Markets *market.Table
	Now     func() time.Time
}

func NewGenerator(markets *market.Table) *Generator {
	if markets == nil {
		markets = market.DefaultTable()
	}
	return &Generator{
		Catalog: DefaultCatalog(),
		Markets: markets,
		Now:     time.Now,
	}
}

var digitRun = regexp.MustCompile(`\d{3,}`)

// Generate picks a catalog sample seeded by the URL. The same URL always
// yields the same sample; the seed is not meant to be unpredictable.
func (g *Generator) Generate(rawURL string, platform models.Platform, reason string) *models.ScrapedProduct {
	product := models.NewScrapedProduct(rawURL, platform)
	product.IsFallback = true
	product.ScannedAt = g.Now()
	if reason != "" {
		product.AddDiagnostic("fallback: " + reason)
	}

	if id, ok := models.EbayItemID(rawURL); ok {
		product.EbayItemID = id
	}
	if asin, ok := models.ASIN(rawURL); ok {
		product.ASIN = asin
	}

	seed := Seed(rawURL)
	sample := g.pick(platform, seed)

	product.Title = sample.Title
	product.Price = vary(sample.Price, seed)
	product.Shipping = sample.Shipping
	product.Condition = sample.Condition
	product.Weight = sample.Weight
	product.Brand = sample.Brand
	product.Category = sample.Category
	if sample.Seller != "" {
		product.Seller = sample.Seller
	}

	product.Currency = "USD"
	if rule, ok := g.Markets.Lookup(rawURL); ok {
		if rule.Currency != "" {
			product.Currency = rule.Currency
		}
		if rule.Country != "" {
			product.OriginCountry = rule.Country
			product.Location = rule.Country
			product.SellerLocation = rule.Country
			product.OriginConfidence = fallbackConfidence
		}
	}

	return product
}

func (g *Generator) pick(platform models.Platform, seed uint64) Sample {
	samples := g.Catalog[platform]
	if len(samples) == 0 {
		samples = g.Catalog[models.PlatformGeneric]
	}
	if len(samples) == 0 {
		return Sample{Title: "Product", Price: 49.99, Shipping: 20, Condition: "New"}
	}
	return samples[seed%uint64(len(samples))]
}

// Seed is the numeric tail of the listing id or of the longest digit run
// in the URL, else an FNV-1a hash of the URL.
func Seed(rawURL string) uint64 {
	digits, _ := models.EbayItemID(rawURL)
	if digits == "" {
		for _, run := range digitRun.FindAllString(rawURL, -1) {
			if len(run) > len(digits) {
				digits = run
			}
		}
	}
	if len(digits) > 9 {
		digits = digits[len(digits)-9:]
	}
	if digits != "" {
		if v, err := strconv.ParseUint(digits, 10, 64); err == nil {
			return v
		}
	}

	h := fnv.New64a()
	h.Write([]byte(rawURL))
	return h.Sum64()
}

// vary moves price by up to ±15% so different URLs sharing a sample do not
// report identical prices.
func vary(price float64, seed uint64) float64 {
	factor := 0.85 + float64((seed/7)%31)/100
	return math.Round(price*factor*100) / 100
}

func DefaultCatalog() map[models.Platform][]Sample {
	return map[models.Platform][]Sample{
		models.PlatformEbay: {
			{Title: "Vintage Film Camera with 50mm Lens", Price: 129.99, Shipping: 15, Condition: "Used", Seller: "camera_corner", Weight: "0.8 kg", Category: "Cameras & Photo"},
			{Title: "Mechanical Keyboard, RGB, Brown Switches", Price: 59.90, Shipping: 12, Condition: "New", Seller: "keys_and_more", Weight: "1.1 kg", Brand: "Keychron", Category: "Computer Accessories"},
			{Title: "Leather Messenger Bag", Price: 74.50, Shipping: 15, Condition: "Used", Seller: "leather_goods_outlet", Weight: "1.3 kg", Category: "Bags"},
			{Title: "Smartphone 128GB, Unlocked", Price: 219.00, Shipping: 10, Condition: "Refurbished", Seller: "phone_refurb_hub", Weight: "0.4 kg", Category: "Cell Phones"},
			{Title: "LEGO Technic Set, Complete", Price: 89.99, Shipping: 18, Condition: "Used", Seller: "brick_collector", Weight: "2.0 kg", Brand: "LEGO", Category: "Toys"},
			{Title: "Cast Iron Skillet 28cm", Price: 34.95, Shipping: 20, Condition: "New", Seller: "kitchen_depot", Weight: "2.6 kg", Category: "Kitchen"},
		},
		models.PlatformAmazon: {
			{Title: "Wireless Noise Cancelling Headphones", Price: 199.99, Shipping: 10, Condition: "New", Seller: "Amazon", Weight: "0.3 kg", Brand: "Sony", Category: "Electronics"},
			{Title: "Electric Kettle 1.7L, Stainless Steel", Price: 39.99, Shipping: 10, Condition: "New", Seller: "Amazon", Weight: "1.2 kg", Category: "Kitchen"},
			{Title: "Smart Watch with Heart Rate Monitor", Price: 149.00, Shipping: 10, Condition: "New", Seller: "Amazon", Weight: "0.1 kg", Category: "Wearables"},
			{Title: "Robot Vacuum Cleaner", Price: 279.99, Shipping: 15, Condition: "New", Seller: "Amazon", Weight: "3.4 kg", Category: "Home"},
			{Title: "Paperback Novel Bundle (3 books)", Price: 24.99, Shipping: 5, Condition: "New", Seller: "Amazon", Weight: "0.9 kg", Category: "Books"},
		},
		models.PlatformGeneric: {
			{Title: "Online Store Product", Price: 49.99, Shipping: 20, Condition: "New", Weight: "1 kg"},
			{Title: "Home Decor Item", Price: 29.99, Shipping: 20, Condition: "New", Weight: "0.5 kg"},
			{Title: "Sports Equipment", Price: 79.99, Shipping: 20, Condition: "New", Weight: "2 kg"},
		},
	}
}
