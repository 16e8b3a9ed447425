package parser

import (
	"regexp"
	"strings"

	"github.com/maltedev/product-scanner/internal/models"
	"github.com/maltedev/product-scanner/internal/page"
)

// Profile is the per-platform set of strategy lists, one list per field.
// Lists are tried in order; the Extractor supplies the coarse fallbacks
// shared by every platform.
type Profile struct {
	Platform models.Platform

	Title          []Strategy[string]
	Price          []Strategy[Money]
	Currency       []Strategy[string]
	Shipping       []Strategy[float64]
	Seller         []Strategy[string]
	SellerLocation []Strategy[string]
	Condition      []Strategy[string]
	Brand          []Strategy[string]
	Category       []Strategy[string]
	Weight         []Strategy[string]
	Dimensions     []Strategy[string]
	Images         []Strategy[[]string]
	Description    []Strategy[string]
	Available      []Strategy[bool]

	DefaultShipping  float64
	DefaultCondition string
	FallbackTitle    string
}

// ProfileFor returns the built-in profile for a platform.
func ProfileFor(platform models.Platform) *Profile {
	switch platform {
	case models.PlatformEbay:
		return EbayProfile()
	case models.PlatformAmazon:
		return AmazonProfile()
	default:
		return GenericProfile()
	}
}

var (
	weightLabels = []string{
		"item weight", "weight", "artikelgewicht", "produktgewicht", "gewicht",
		"poids de l'article", "poids", "peso articolo", "peso", "waga", "вага",
	}
	dimensionLabels = []string{
		"product dimensions", "package dimensions", "item dimensions", "dimensions",
		"produktabmessungen", "verpackungsabmessungen", "abmessungen", "maße",
		"dimensions du produit", "dimensioni", "dimensiones", "wymiary", "розміри",
	}
	brandLabels = []string{
		"brand", "marke", "hersteller", "marque", "marca", "producent", "бренд",
	}
	conditionLabels = []string{
		"condition", "item condition", "artikelzustand", "zustand", "état", "condizione", "estado", "stan",
	}
	sellerLocationLabels = []string{
		"seller location", "item location", "artikelstandort", "standort", "localisation",
	}
)

func commonTitle() []Strategy[string] {
	return []Strategy[string]{
		ldString("ld+json name", "name"),
		metaString("og:title", "og:title", "twitter:title"),
	}
}

func commonPrice() []Strategy[Money] {
	return []Strategy[Money]{ldPrice(), metaPrice()}
}

func commonCurrency() []Strategy[string] {
	return []Strategy[string]{ldCurrency(), metaCurrency()}
}

func commonWeight(detailSelectors ...string) []Strategy[string] {
	strategies := []Strategy[string]{
		parsed(ldString("ld+json weight", "weight"), ParseWeight),
		parsed(detailValue("details table weight", weightLabels...), ParseWeight),
	}
	if len(detailSelectors) > 0 {
		strategies = append(strategies, parsed(selectorText("product details weight", detailSelectors...), labelledWeight))
	}
	return append(strategies, labelledText("weight label", weightLabels, 40, ParseWeight))
}

func commonDimensions(detailSelectors ...string) []Strategy[string] {
	strategies := []Strategy[string]{
		parsed(detailValue("details table dimensions", dimensionLabels...), ParseDimensions),
	}
	if len(detailSelectors) > 0 {
		strategies = append(strategies, parsed(selectorText("product details dimensions", detailSelectors...), ParseDimensions))
	}
	return append(strategies,
		labelledText("dimensions label", dimensionLabels, 60, ParseDimensions),
		anywhere("dimensions pattern", ParseDimensions),
	)
}

// labelledWeight only trusts a weight that follows a weight label, so a
// "500 g" in a product description does not count.
func labelledWeight(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, label := range weightLabels {
		idx := strings.Index(lower, label)
		if idx < 0 {
			continue
		}
		window := lower[idx+len(label):]
		if len(window) > 40 {
			window = window[:40]
		}
		if v, ok := ParseWeight(window); ok {
			return v, true
		}
	}
	return "", false
}

func commonDescription() []Strategy[string] {
	return []Strategy[string]{
		ldString("ld+json description", "description"),
		metaString("meta description", "og:description", "description"),
	}
}

func commonAvailability() []Strategy[bool] {
	return []Strategy[bool]{ldAvailability(), textAvailability()}
}

var (
	ebayPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"price"\s*:\s*\{\s*"value"\s*:\s*"?(\d+(?:\.\d+)?)"?\s*,\s*"currency"\s*:\s*"([A-Z]{3})"`),
		regexp.MustCompile(`"binPrice"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`itemprop="price"[^>]*content="([\d.,]+)"`),
	}
	ebaySellerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"sellerUserName"\s*:\s*"([^"]{2,64})"`),
		regexp.MustCompile(`"username"\s*:\s*"([^"]{2,64})"`),
		regexp.MustCompile(`ebay\.[a-z.]+/usr/([A-Za-z0-9._-]{2,64})`),
	}
)

// EbayProfile extracts from the eBay item page ("/itm/") layout.
func EbayProfile() *Profile {
	return &Profile{
		Platform: models.PlatformEbay,
		Title: append(commonTitle(),
			selectorText("item title", "h1.x-item-title__mainTitle", "#itemTitle", "h1[itemprop=name]", ".x-item-title"),
		),
		Price: append(commonPrice(),
			attrPrice("item price content", "[itemprop=price]", "content"),
			selectorPrice("item price", ".x-price-primary .ux-textspans", ".x-price-primary", "#prcIsum", "#mm-saleDscPrc", ".display-price"),
			regexPrice("item price script", ebayPricePatterns...),
		),
		Currency: append(commonCurrency(),
			parsed(selectorText("price currency", ".x-price-primary", "#prcIsum"), DetectCurrency),
		),
		Shipping: []Strategy[float64]{
			ldShipping(),
			selectorShipping("shipping summary",
				".ux-labels-values--shipping .ux-textspans--BOLD",
				"[data-testid=ux-labels-values--shipping] .ux-textspans--BOLD",
				"#fshippingCost", "#shSummary",
			),
			labelledShipping(),
			freeShipping(),
		},
		Seller: []Strategy[string]{
			ldString("ld+json offers.seller", "offers", "seller", "name"),
			selectorText("seller card",
				".x-sellercard-atf__info__about-seller a span",
				".x-sellercard-atf__info__about-seller",
				".ux-seller-section__item--seller a",
				".mbg-nw",
			),
			htmlRegexp("seller script", ebaySellerPatterns...),
		},
		SellerLocation: []Strategy[string]{
			ldString("ld+json seller address", "offers", "seller", "address", "addressLocality"),
			detailValue("seller location row", sellerLocationLabels...),
		},
		Condition: []Strategy[string]{
			ldCondition(),
			selectorText("condition block", ".x-item-condition-text .ux-textspans", "#vi-itm-cond", ".x-item-condition-value .ux-textspans"),
			detailValue("condition row", conditionLabels...),
		},
		Brand: []Strategy[string]{
			ldString("ld+json brand", "brand"),
			metaString("meta brand", "product:brand", "brand"),
			detailValue("item specifics brand", brandLabels...),
		},
		Category: []Strategy[string]{
			ldCategory(),
			lastSelectorText("breadcrumbs", "nav.breadcrumbs li a span", ".seo-breadcrumb-text span", "#vi-VR-brumb-lnkLst li a"),
		},
		Weight:     commonWeight(),
		Dimensions: commonDimensions(),
		Images: []Strategy[[]string]{
			ldImages(),
			imageAttrs("image carousel", ".ux-image-carousel-item img", "data-zoom-src", "src", "data-src"),
			imageAttrs("main image", "#icImg", "src"),
			metaImages(),
		},
		Description: append(commonDescription(),
			selectorText("item description", "#viTabs_0_is", ".x-item-description"),
		),
		Available: commonAvailability(),

		DefaultShipping:  15,
		DefaultCondition: "Used",
		FallbackTitle:    "eBay item",
	}
}

var (
	amazonPricePatterns = []*regexp.Regexp{
		regexp.MustCompile(`"priceAmount"\s*:\s*(\d+(?:\.\d+)?)(?:[^}]*?"currencySymbol"\s*:\s*"([^"]+)")?`),
		regexp.MustCompile(`"displayPrice"\s*:\s*"([^"]+)"`),
	}
	amazonSellerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:sold by|verkauf durch|verkäufer|vendu par|venduto da|vendido por)\s*:?\s*([^.|]{2,60}?)(?:\s+(?:and|und|et|e|y)\s|\.|$)`),
	}
	amazonDetailSelectors = []string{
		"#feature-bullets",
		"#productDetails_techSpec_section_1",
		"#productDetails_detailBullets_sections1",
		"#detailBullets_feature_div",
		".detail-bullet-list",
	}
)

// AmazonProfile extracts from the Amazon product page ("/dp/") layout.
func AmazonProfile() *Profile {
	return &Profile{
		Platform: models.PlatformAmazon,
		Title: append(commonTitle(),
			selectorText("product title", "#productTitle", "#title", "h1#title span"),
		),
		Price: append(commonPrice(),
			selectorPrice("price block",
				"#corePrice_feature_div .a-price .a-offscreen",
				"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
				".a-price .a-offscreen",
				"span.a-price.a-text-price.a-size-medium.apexPriceToPay",
				"#priceblock_dealprice",
				"#priceblock_ourprice",
				"#price_inside_buybox",
				".a-price-range",
			),
			regexPrice("price script", amazonPricePatterns...),
		),
		Currency: append(commonCurrency(),
			parsed(selectorText("price symbol", ".a-price-symbol", ".a-price .a-offscreen"), DetectCurrency),
		),
		Shipping: []Strategy[float64]{
			ldShipping(),
			selectorShipping("delivery block",
				"#mir-layout-DELIVERY_BLOCK-slot-PRIMARY_DELIVERY_MESSAGE_LARGE span[data-csa-c-delivery-price]",
				"#deliveryBlockMessage .a-text-bold",
				"#price-shipping-message",
			),
			freeShipping(),
			labelledShipping(),
		},
		Seller: []Strategy[string]{
			ldString("ld+json offers.seller", "offers", "seller", "name"),
			selectorText("merchant info",
				"#sellerProfileTriggerId",
				"#merchantInfoFeature_feature_div .offer-display-feature-text-message",
				"#merchant-info a span",
				"#tabular-buybox .tabular-buybox-text[tabular-attribute-name='Sold by'] span",
			),
			textRegexp("sold by", amazonSellerPatterns...),
		},
		SellerLocation: []Strategy[string]{
			ldString("ld+json seller address", "offers", "seller", "address", "addressLocality"),
			detailValue("seller location row", sellerLocationLabels...),
		},
		Condition: []Strategy[string]{
			ldCondition(),
			selectorText("offer condition", "#renewedProgramDescriptionAtf .a-text-bold", "#usedBuySection .a-text-bold"),
		},
		Brand: []Strategy[string]{
			ldString("ld+json brand", "brand"),
			metaString("meta brand", "product:brand", "brand"),
			parsed(selectorText("byline", "#bylineInfo"), cleanBrand),
			detailValue("details brand", brandLabels...),
		},
		Category: []Strategy[string]{
			ldCategory(),
			lastSelectorText("breadcrumbs", "#wayfinding-breadcrumbs_feature_div ul li:not(.a-breadcrumb-divider) a", "#wayfinding-breadcrumbs_feature_div .a-list-item"),
		},
		Weight:     commonWeight(amazonDetailSelectors...),
		Dimensions: commonDimensions(amazonDetailSelectors...),
		Images: []Strategy[[]string]{
			ldImages(),
			parsed(Strategy[string]{
				Name: "landing image",
				Attempt: func(p *page.Page) (string, bool) {
					v := p.SelectAttr("#landingImage", "data-old-hires", "src")
					return v, strings.HasPrefix(v, "http")
				},
			}, func(v string) ([]string, bool) { return []string{v}, true }),
			hiresThumbnails(),
			metaImages(),
		},
		Description: append(commonDescription(),
			selectorText("product description", "#productDescription", "#feature-bullets"),
		),
		Available: append(commonAvailability(),
			parsed(selectorText("availability block", "#availability"), func(v string) (bool, bool) {
				lower := strings.ToLower(v)
				return !strings.Contains(lower, "nicht verfügbar") && !strings.Contains(lower, "unavailable"), true
			}),
		),

		DefaultShipping:  10,
		DefaultCondition: "New",
		FallbackTitle:    "Amazon product",
	}
}

// hiresThumbnails rewrites the thumbnail strip to the large rendition.
func hiresThumbnails() Strategy[[]string] {
	thumbs := imageAttrs("thumbnails", "#altImages ul li img", "src")
	return Strategy[[]string]{
		Name: thumbs.Name,
		Attempt: func(p *page.Page) ([]string, bool) {
			images, ok := thumbs.Attempt(p)
			if !ok {
				return nil, false
			}
			for i, src := range images {
				images[i] = strings.Replace(src, "_AC_US40_", "_AC_SL1500_", 1)
			}
			return images, true
		},
	}
}

func cleanBrand(brand string) (string, bool) {
	for _, prefix := range []string{"Marke: ", "Brand: ", "Besuchen Sie den ", "Visit the ", "Marque : "} {
		brand = strings.TrimPrefix(brand, prefix)
	}
	brand = strings.TrimSuffix(brand, "-Store")
	brand = strings.TrimSuffix(brand, " Store")
	brand = strings.TrimSpace(brand)
	return brand, brand != ""
}

var genericPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`itemprop=["']price["'][^>]*content=["']([\d.,]+)["']`),
	regexp.MustCompile(`"price"\s*:\s*"?(\d+(?:[.,]\d{1,2})?)"?\s*,\s*"(?:priceCurrency|currency)"\s*:\s*"([A-Z]{3})"`),
	regexp.MustCompile(`(?:€|&euro;|£|&pound;|\$)\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?)`),
	regexp.MustCompile(`(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?)\s*(?:€|&euro;|EUR|zł|грн|₴)`),
}

// GenericProfile covers unknown shops: page title, price meta tags and the
// usual price markup, everything else defaulted.
func GenericProfile() *Profile {
	return &Profile{
		Platform: models.PlatformGeneric,
		Title: append(commonTitle(),
			selectorText("h1", "h1[itemprop=name]", "h1"),
		),
		Price: append(commonPrice(),
			attrPrice("price content", "[itemprop=price]", "content"),
			selectorPrice("price markup", "[itemprop=price]", ".product-price", ".price", "#price"),
			regexPrice("price pattern", genericPricePatterns...),
		),
		Currency: commonCurrency(),
		Shipping: []Strategy[float64]{
			ldShipping(),
			labelledShipping(),
			freeShipping(),
		},
		Seller: []Strategy[string]{
			ldString("ld+json offers.seller", "offers", "seller", "name"),
			metaString("og:site_name", "og:site_name"),
		},
		SellerLocation: []Strategy[string]{
			ldString("ld+json seller address", "offers", "seller", "address", "addressLocality"),
		},
		Condition: []Strategy[string]{ldCondition()},
		Brand: []Strategy[string]{
			ldString("ld+json brand", "brand"),
			metaString("meta brand", "product:brand", "brand"),
			detailValue("details table brand", brandLabels...),
		},
		Category: []Strategy[string]{
			ldCategory(),
			metaString("meta category", "product:category", "category"),
		},
		Weight:     commonWeight(),
		Dimensions: commonDimensions(),
		Images: []Strategy[[]string]{
			ldImages(),
			metaImages(),
		},
		Description: commonDescription(),
		Available:   commonAvailability(),

		DefaultShipping:  20,
		DefaultCondition: "New",
		FallbackTitle:    "Product",
	}
}
