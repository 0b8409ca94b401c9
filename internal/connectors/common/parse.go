package common

import (
	"html"
	"regexp"
	"strconv"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

var pricePattern = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]{1,2})?`)

// ParsePrice extracts a dollar amount from strings like "$1,234.56",
// "USD 49.99" or "49.99 + shipping". Free or unparseable values are 0.
func ParsePrice(raw string) float64 {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	if strings.Contains(strings.ToLower(value), "free") {
		return 0
	}
	match := pricePattern.FindString(value)
	if match == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// ParseYear pulls a model year out of a vehicle description string.
func ParseYear(raw string) int {
	for _, field := range strings.Fields(raw) {
		if len(field) != 4 {
			continue
		}
		year, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if year >= 1960 && year <= 2039 {
			return year
		}
	}
	return 0
}
