package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-scanner/internal/page"
)

// Money is a price with the currency that was seen next to it, if any.
type Money struct {
	Amount   float64
	Currency string
}

func ldString(name string, path ...string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			product, ok := p.Product()
			if !ok {
				return "", false
			}
			v := product.String(path...)
			return v, v != ""
		},
	}
}

func metaString(name string, metas ...string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			v := page.CollapseSpace(p.Meta(metas...))
			return v, v != ""
		},
	}
}

func selectorText(name string, selectors ...string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			v := p.SelectText(selectors...)
			return v, v != ""
		},
	}
}

// lastSelectorText takes the last match, for breadcrumb trails.
func lastSelectorText(name string, selectors ...string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			for _, selector := range selectors {
				v := page.CollapseSpace(p.Doc.Find(selector).Last().Text())
				if v != "" {
					return v, true
				}
			}
			return "", false
		},
	}
}

// htmlRegexp applies patterns to the raw HTML; the first capture group of the
// first matching pattern wins.
func htmlRegexp(name string, patterns ...*regexp.Regexp) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			return firstCapture(p.HTML, patterns)
		},
	}
}

// textRegexp applies patterns to the normalized visible text.
func textRegexp(name string, patterns ...*regexp.Regexp) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			return firstCapture(p.Text, patterns)
		},
	}
}

func firstCapture(source string, patterns []*regexp.Regexp) (string, bool) {
	for _, pattern := range patterns {
		m := pattern.FindStringSubmatch(source)
		if len(m) < 2 {
			continue
		}
		if v := page.CollapseSpace(m[1]); v != "" {
			return v, true
		}
	}
	return "", false
}

func detailValue(name string, labels ...string) Strategy[string] {
	return Strategy[string]{
		Name: name,
		Attempt: func(p *page.Page) (string, bool) {
			return lookupDetail(detailRows(p), labels)
		},
	}
}

type detailRow struct {
	label string
	value string
}

// detailRows collects label/value pairs from the detail tables, definition
// lists and item-specifics blocks the marketplaces render.
func detailRows(p *page.Page) []detailRow {
	var rows []detailRow
	add := func(label, value string) {
		label = strings.Trim(page.Normalize(label), " :‎‏")
		value = strings.Trim(page.CollapseSpace(value), " :‎‏")
		if label != "" && value != "" {
			rows = append(rows, detailRow{label: label, value: value})
		}
	}

	p.Doc.Find("tr").Each(func(i int, s *goquery.Selection) {
		cells := s.Find("th, td")
		if cells.Length() == 2 {
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})

	p.Doc.Find("dl").Each(func(i int, s *goquery.Selection) {
		s.Find("dt").Each(func(j int, dt *goquery.Selection) {
			add(dt.Text(), dt.NextFiltered("dd").Text())
		})
	})

	p.Doc.Find(".ux-labels-values").Each(func(i int, s *goquery.Selection) {
		add(s.Find(".ux-labels-values__labels").Text(), s.Find(".ux-labels-values__values").Text())
	})

	p.Doc.Find("#detailBullets_feature_div li, .detail-bullet-list li").Each(func(i int, s *goquery.Selection) {
		label := s.Find(".a-text-bold").First().Text()
		if label == "" {
			return
		}
		add(label, strings.TrimPrefix(page.CollapseSpace(s.Text()), page.CollapseSpace(label)))
	})

	return rows
}

func lookupDetail(rows []detailRow, labels []string) (string, bool) {
	for _, label := range labels {
		for _, row := range rows {
			if row.label == label || strings.HasPrefix(row.label, label+" ") {
				return row.value, true
			}
		}
	}
	return "", false
}

// parsed chains a string strategy with a parser so a located but
// unparsable value falls through to the next strategy.
func parsed[T any](s Strategy[string], parse func(string) (T, bool)) Strategy[T] {
	return Strategy[T]{
		Name: s.Name,
		Attempt: func(p *page.Page) (T, bool) {
			var zero T
			raw, ok := s.Attempt(p)
			if !ok {
				return zero, false
			}
			return parse(raw)
		},
	}
}

func moneyFromText(text string) (Money, bool) {
	amount, ok := ParseAmount(text)
	if !ok {
		return Money{}, false
	}
	currency, _ := DetectCurrency(text)
	return Money{Amount: amount, Currency: currency}, true
}

func ldPrice() Strategy[Money] {
	return Strategy[Money]{
		Name: "ld+json offers.price",
		Attempt: func(p *page.Page) (Money, bool) {
			product, ok := p.Product()
			if !ok {
				return Money{}, false
			}

			paths := [][]string{
				{"offers", "price"},
				{"offers", "lowPrice"},
				{"offers", "priceSpecification", "price"},
			}
			for _, path := range paths {
				amount, ok := product.Number(path...)
				if !ok {
					if amount, ok = ParseAmount(product.String(path...)); !ok {
						continue
					}
				}
				currency := strings.ToUpper(product.String("offers", "priceCurrency"))
				if currency == "" {
					currency = strings.ToUpper(product.String("offers", "priceSpecification", "priceCurrency"))
				}
				return Money{Amount: amount, Currency: currency}, true
			}
			return Money{}, false
		},
	}
}

func metaPrice() Strategy[Money] {
	return Strategy[Money]{
		Name: "meta price",
		Attempt: func(p *page.Page) (Money, bool) {
			raw := p.Meta("product:price:amount", "og:price:amount", "price")
			if raw == "" {
				return Money{}, false
			}
			amount, ok := machineAmount(raw)
			if !ok {
				return Money{}, false
			}
			currency := strings.ToUpper(p.Meta("product:price:currency", "og:price:currency", "priceCurrency"))
			return Money{Amount: amount, Currency: currency}, true
		},
	}
}

func selectorPrice(name string, selectors ...string) Strategy[Money] {
	return parsed(selectorText(name, selectors...), moneyFromText)
}

func attrPrice(name, selector string, attrs ...string) Strategy[Money] {
	return Strategy[Money]{
		Name: name,
		Attempt: func(p *page.Page) (Money, bool) {
			raw := p.SelectAttr(selector, attrs...)
			if raw == "" {
				return Money{}, false
			}
			amount, ok := machineAmount(raw)
			if !ok {
				return Money{}, false
			}
			currency, _ := DetectCurrency(raw)
			return Money{Amount: amount, Currency: currency}, true
		},
	}
}

// regexPrice matches against raw HTML. Patterns capture the amount in
// group 1 and, optionally, a currency hint in group 2; without one the rest
// of the match is searched for a currency mark.
func regexPrice(name string, patterns ...*regexp.Regexp) Strategy[Money] {
	return Strategy[Money]{
		Name: name,
		Attempt: func(p *page.Page) (Money, bool) {
			for _, pattern := range patterns {
				m := pattern.FindStringSubmatch(p.HTML)
				if len(m) < 2 {
					continue
				}
				amount, ok := ParseAmount(m[1])
				if !ok {
					continue
				}
				money := Money{Amount: amount}
				if len(m) > 2 && m[2] != "" {
					money.Currency, _ = DetectCurrency(m[2])
				} else {
					money.Currency, _ = DetectCurrency(strings.Replace(m[0], m[1], " ", 1))
				}
				return money, true
			}
			return Money{}, false
		},
	}
}

func ldCurrency() Strategy[string] {
	return Strategy[string]{
		Name: "ld+json offers.priceCurrency",
		Attempt: func(p *page.Page) (string, bool) {
			product, ok := p.Product()
			if !ok {
				return "", false
			}
			v := strings.ToUpper(product.String("offers", "priceCurrency"))
			return v, v != ""
		},
	}
}

func metaCurrency() Strategy[string] {
	return Strategy[string]{
		Name: "meta currency",
		Attempt: func(p *page.Page) (string, bool) {
			v := strings.ToUpper(p.Meta("product:price:currency", "og:price:currency", "priceCurrency"))
			return v, v != ""
		},
	}
}

func symbolAnywhere() Strategy[string] {
	return Strategy[string]{
		Name: "currency symbol in text",
		Attempt: func(p *page.Page) (string, bool) {
			return DetectCurrency(p.Text)
		},
	}
}

var freeShippingMarkers = []string{
	"free shipping", "free delivery", "free postage", "free standard shipping",
	"kostenloser versand", "versand kostenlos", "kostenlose lieferung",
	"livraison gratuite", "spedizione gratuita", "envío gratis", "gratis verzending",
	"darmowa wysyłka", "безкоштовна доставка",
}

func freeShipping() Strategy[float64] {
	return Strategy[float64]{
		Name: "free shipping marker",
		Attempt: func(p *page.Page) (float64, bool) {
			for _, marker := range freeShippingMarkers {
				if strings.Contains(p.Text, marker) {
					return 0, true
				}
			}
			return 0, false
		},
	}
}

var shippingLabelPattern = regexp.MustCompile(`(?:shipping|postage|delivery|versand|versandkosten|livraison|spedizione|envío|verzending|wysyłka|доставка)(?:\s*(?:cost|costs|kosten|fee))?\s*:\s*((?:[a-z]{1,3}\s?)?[$€£₴]?\s*\d+(?:[.,]\d{1,2})?)`)

func labelledShipping() Strategy[float64] {
	return Strategy[float64]{
		Name: "shipping label",
		Attempt: func(p *page.Page) (float64, bool) {
			m := shippingLabelPattern.FindStringSubmatch(p.Text)
			if len(m) < 2 {
				return 0, false
			}
			return ParseAmount(m[1])
		},
	}
}

func ldShipping() Strategy[float64] {
	return Strategy[float64]{
		Name: "ld+json shippingRate",
		Attempt: func(p *page.Page) (float64, bool) {
			product, ok := p.Product()
			if !ok {
				return 0, false
			}
			path := []string{"offers", "shippingDetails", "shippingRate", "value"}
			if v, ok := product.Number(path...); ok {
				return v, true
			}
			return ParseAmount(product.String(path...))
		},
	}
}

func selectorShipping(name string, selectors ...string) Strategy[float64] {
	return parsed(selectorText(name, selectors...), func(text string) (float64, bool) {
		lower := strings.ToLower(text)
		for _, marker := range []string{"free", "kostenlos", "gratuit", "gratis", "безкоштовн"} {
			if strings.Contains(lower, marker) {
				return 0, true
			}
		}
		return ParseAmount(text)
	})
}

func ldCondition() Strategy[string] {
	return parsed(ldString("ld+json offers.itemCondition", "offers", "itemCondition"), func(raw string) (string, bool) {
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "newcondition"):
			return "New", true
		case strings.Contains(lower, "refurbished"):
			return "Refurbished", true
		case strings.Contains(lower, "usedcondition"):
			return "Used", true
		case strings.Contains(lower, "damaged"):
			return "For parts", true
		}
		return raw, !strings.Contains(raw, "/")
	})
}

func ldImages() Strategy[[]string] {
	return Strategy[[]string]{
		Name: "ld+json image",
		Attempt: func(p *page.Page) ([]string, bool) {
			product, ok := p.Product()
			if !ok {
				return nil, false
			}
			images := product.Strings("image")
			return images, len(images) > 0
		},
	}
}

func metaImages() Strategy[[]string] {
	return Strategy[[]string]{
		Name: "og:image",
		Attempt: func(p *page.Page) ([]string, bool) {
			var images []string
			p.Doc.Find(`meta[property="og:image"]`).Each(func(i int, s *goquery.Selection) {
				if v, ok := s.Attr("content"); ok && strings.TrimSpace(v) != "" {
					images = append(images, strings.TrimSpace(v))
				}
			})
			return images, len(images) > 0
		},
	}
}

// imageAttrs collects the first present attribute of every matched element.
func imageAttrs(name, selector string, attrs ...string) Strategy[[]string] {
	return Strategy[[]string]{
		Name: name,
		Attempt: func(p *page.Page) ([]string, bool) {
			var images []string
			p.Doc.Find(selector).Each(func(i int, s *goquery.Selection) {
				for _, attr := range attrs {
					if v, ok := s.Attr(attr); ok && strings.HasPrefix(strings.TrimSpace(v), "http") {
						images = append(images, strings.TrimSpace(v))
						return
					}
				}
			})
			return images, len(images) > 0
		},
	}
}

func ldCategory() Strategy[string] {
	return Strategy[string]{
		Name: "ld+json BreadcrumbList",
		Attempt: func(p *page.Page) (string, bool) {
			if product, ok := p.Product(); ok {
				if v := product.String("category"); v != "" {
					return v, true
				}
			}

			crumbs, ok := p.NodeOfType("BreadcrumbList")
			if !ok {
				return "", false
			}
			items, ok := crumbs["itemListElement"].([]interface{})
			if !ok || len(items) == 0 {
				return "", false
			}
			last, ok := items[len(items)-1].(map[string]interface{})
			if !ok {
				return "", false
			}
			node := page.Node(last)
			v := node.String("name")
			if v == "" {
				v = node.String("item", "name")
			}
			return v, v != ""
		},
	}
}

var (
	unavailableMarkers = []string{
		"out of stock", "currently unavailable", "this listing has ended", "listing was ended",
		"derzeit nicht verfügbar", "nicht verfügbar", "angebot wurde beendet", "ausverkauft",
		"non disponible", "non disponibile", "no disponible", "niedostępny", "немає в наявності",
	}
	availableMarkers = []string{
		"in stock", "add to cart", "buy it now", "auf lager", "in den einkaufswagen", "sofort-kaufen",
		"en stock", "disponibilità immediata", "в наявності",
	}
)

func ldAvailability() Strategy[bool] {
	return parsed(ldString("ld+json offers.availability", "offers", "availability"), func(raw string) (bool, bool) {
		lower := strings.ToLower(raw)
		switch {
		case strings.Contains(lower, "instock"), strings.Contains(lower, "limitedavailability"),
			strings.Contains(lower, "preorder"), strings.Contains(lower, "onlineonly"):
			return true, true
		case strings.Contains(lower, "outofstock"), strings.Contains(lower, "soldout"),
			strings.Contains(lower, "discontinued"):
			return false, true
		}
		return false, false
	})
}

func textAvailability() Strategy[bool] {
	return Strategy[bool]{
		Name: "availability markers",
		Attempt: func(p *page.Page) (bool, bool) {
			for _, marker := range unavailableMarkers {
				if strings.Contains(p.Text, marker) {
					return false, true
				}
			}
			for _, marker := range availableMarkers {
				if strings.Contains(p.Text, marker) {
					return true, true
				}
			}
			return false, false
		},
	}
}

// labelledText finds one of labels in the normalized text and parses the
// window of text that follows it.
func labelledText[T any](name string, labels []string, window int, parse func(string) (T, bool)) Strategy[T] {
	return Strategy[T]{
		Name: name,
		Attempt: func(p *page.Page) (T, bool) {
			var zero T
			for _, label := range labels {
				offset := 0
				for {
					idx := strings.Index(p.Text[offset:], label)
					if idx < 0 {
						break
					}
					start := offset + idx + len(label)
					end := start + window
					if end > len(p.Text) {
						end = len(p.Text)
					}
					if v, ok := parse(p.Text[start:end]); ok {
						return v, true
					}
					offset = start
				}
			}
			return zero, false
		},
	}
}

// anywhere parses the whole normalized text.
func anywhere[T any](name string, parse func(string) (T, bool)) Strategy[T] {
	return Strategy[T]{
		Name: name,
		Attempt: func(p *page.Page) (T, bool) {
			return parse(p.Text)
		},
	}
}
