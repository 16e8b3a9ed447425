package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var amountPattern = regexp.MustCompile(`\d+(?:[ \x{00a0}'.,]\d{3})*(?:[.,]\d{1,2})?`)

// ParseAmount reads the first number in s. Both "1.234,56" and "1,234.56"
// are understood; a lone separator followed by exactly three digits is a
// thousands separator.
func ParseAmount(s string) (float64, bool) {
	raw := amountPattern.FindString(s)
	if raw == "" {
		return 0, false
	}

	raw = strings.NewReplacer(" ", "", "\u00a0", "", "'", "").Replace(raw)

	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")

	var normalized string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			normalized = strings.ReplaceAll(raw, ",", "")
		} else {
			normalized = strings.ReplaceAll(raw, ".", "")
			normalized = strings.Replace(normalized, ",", ".", 1)
		}
	case lastComma >= 0:
		normalized = singleSeparator(raw, ",")
	case lastDot >= 0:
		normalized = singleSeparator(raw, ".")
	default:
		normalized = raw
	}

	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}

var machineNumber = regexp.MustCompile(`^\d+(\.\d+)?$`)

// machineAmount reads values meant for machines (meta content, itemprop
// attributes) where a dot is always the decimal point. Anything else goes
// through ParseAmount.
func machineAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if machineNumber.MatchString(s) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v, true
		}
	}
	return ParseAmount(s)
}

func singleSeparator(raw, sep string) string {
	parts := strings.Split(raw, sep)
	tail := parts[len(parts)-1]

	if len(parts) > 2 || len(tail) == 3 {
		return strings.Join(parts, "")
	}
	return strings.Join(parts, ".")
}

type currencyMark struct {
	mark string
	code string
}

// Ordered so that prefixed dollar marks win over the bare "$".
var currencyMarks = []currencyMark{
	{"us $", "USD"},
	{"us$", "USD"},
	{"usd", "USD"},
	{"c $", "CAD"},
	{"c$", "CAD"},
	{"cad", "CAD"},
	{"au $", "AUD"},
	{"au$", "AUD"},
	{"a$", "AUD"},
	{"aud", "AUD"},
	{"eur", "EUR"},
	{"€", "EUR"},
	{"gbp", "GBP"},
	{"£", "GBP"},
	{"chf", "CHF"},
	{"pln", "PLN"},
	{"zł", "PLN"},
	{"uah", "UAH"},
	{"₴", "UAH"},
	{"грн", "UAH"},
	{"jpy", "JPY"},
	{"¥", "JPY"},
	{"cny", "CNY"},
	{"sek", "SEK"},
	{"₺", "TRY"},
	{"inr", "INR"},
	{"₹", "INR"},
	{"$", "USD"},
}

// DetectCurrency maps the first currency code or symbol found in text to an
// ISO code.
func DetectCurrency(text string) (string, bool) {
	lower := strings.ToLower(text)

	best, bestAt := "", -1
	for _, m := range currencyMarks {
		idx := indexMark(lower, m.mark)
		if idx < 0 {
			continue
		}
		if bestAt < 0 || idx < bestAt {
			best, bestAt = m.code, idx
		}
	}
	return best, bestAt >= 0
}

// indexMark finds mark in s. A mark starting or ending with an ASCII letter
// must not touch another letter on that side.
func indexMark(s, mark string) int {
	checkBefore := isASCIILetter(mark[0])
	checkAfter := isASCIILetter(mark[len(mark)-1])

	offset := 0
	for offset <= len(s) {
		idx := strings.Index(s[offset:], mark)
		if idx < 0 {
			return -1
		}
		idx += offset
		end := idx + len(mark)

		before := !checkBefore || idx == 0 || !isLetter(s[idx-1])
		after := !checkAfter || end >= len(s) || !isLetter(s[end])
		if before && after {
			return idx
		}
		offset = idx + 1
	}
	return -1
}

func isASCIILetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}

func isLetter(b byte) bool {
	return isASCIILetter(b) || b >= 0x80
}
