package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	weightValuePattern = regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*(kilogramm|kilograms?|kg|gramm|grams?|g|milligramm|mg|pounds?|lbs?|ounces?|oz)\b`)
	dimensionsPattern  = regexp.MustCompile(`(?i)(\d+(?:[,.]\d+)?)\s*(?:cm|mm|in)?\s*[x×]\s*(\d+(?:[,.]\d+)?)\s*(?:cm|mm|in)?\s*[x×]\s*(\d+(?:[,.]\d+)?)\s*(cm|mm|m|zoll|inches|inch|in|")`)
)

// ParseWeight finds a weight in text and returns it as "<value> <unit>".
func ParseWeight(text string) (string, bool) {
	m := weightValuePattern.FindStringSubmatch(text)
	if len(m) < 3 {
		return "", false
	}

	value := parseFloat(m[1])
	if value <= 0 {
		return "", false
	}
	return fmt.Sprintf("%s %s", formatFloat(value), normalizeWeightUnit(m[2])), true
}

// ParseDimensions finds an L x W x H triple in text and returns it as
// "<l> x <w> x <h> <unit>".
func ParseDimensions(text string) (string, bool) {
	m := dimensionsPattern.FindStringSubmatch(text)
	if len(m) < 5 {
		return "", false
	}

	l, w, h := parseFloat(m[1]), parseFloat(m[2]), parseFloat(m[3])
	if l <= 0 || w <= 0 || h <= 0 {
		return "", false
	}
	return fmt.Sprintf("%s x %s x %s %s", formatFloat(l), formatFloat(w), formatFloat(h), normalizeUnit(m[4])), true
}

func parseFloat(s string) float64 {
	s = strings.Replace(s, ",", ".", -1)
	s = strings.TrimSpace(s)
	val, _ := strconv.ParseFloat(s, 64)
	return val
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func normalizeUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	switch unit {
	case "cm", "centimeter", "zentimeter":
		return "cm"
	case "mm", "millimeter":
		return "mm"
	case "m", "meter":
		return "m"
	case "in", "inch", "inches", "zoll", "\"":
		return "in"
	default:
		return unit
	}
}

func normalizeWeightUnit(unit string) string {
	unit = strings.ToLower(strings.TrimSpace(unit))
	switch unit {
	case "kg", "kilogramm", "kilogram", "kilograms", "kilo":
		return "kg"
	case "g", "gramm", "gram", "grams":
		return "g"
	case "mg", "milligramm":
		return "mg"
	case "lb", "lbs", "pound", "pounds":
		return "lb"
	case "oz", "ounce", "ounces":
		return "oz"
	default:
		return unit
	}
}
