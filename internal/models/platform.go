package models

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	ebayItemPattern = regexp.MustCompile(`/itm/(?:[^/?#]+/)?(\d{9,15})`)
	ebayQueryItem   = regexp.MustCompile(`[?&]item=(\d{9,15})`)
	asinPattern     = regexp.MustCompile(`(?i)/(?:dp|gp/product|gp/aw/d|product)/([A-Z0-9]{10})(?:[/?#]|$)`)
)

// DetectPlatform classifies a product URL by path shape first and host
// second. Anything else is generic.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return PlatformGeneric
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(path, "/itm/"):
		return PlatformEbay
	case strings.Contains(path, "/dp/"), strings.Contains(path, "/gp/product/"):
		return PlatformAmazon
	case isHost(host, "ebay"):
		return PlatformEbay
	case isHost(host, "amazon"), host == "amzn.to", host == "a.co":
		return PlatformAmazon
	}
	return PlatformGeneric
}

// isHost reports whether host is a registrable domain named brand, e.g.
// www.ebay.co.uk for "ebay".
func isHost(host, brand string) bool {
	for _, label := range strings.Split(host, ".") {
		if label == brand {
			return true
		}
	}
	return false
}

// EbayItemID returns the numeric listing id of an eBay URL.
func EbayItemID(rawURL string) (string, bool) {
	if m := ebayItemPattern.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1], true
	}
	if m := ebayQueryItem.FindStringSubmatch(rawURL); len(m) == 2 {
		return m[1], true
	}
	return "", false
}

// ASIN returns the ten-character Amazon product id, uppercased.
func ASIN(rawURL string) (string, bool) {
	m := asinPattern.FindStringSubmatch(rawURL)
	if len(m) != 2 {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}
