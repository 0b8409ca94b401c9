package search

import (
	"regexp"
	"sort"
	"strings"
)

// NormalizeQuery uppercases and collapses whitespace so the same query
// always produces the same cache key and extraction results.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToUpper(query)), " ")
}

var (
	// Alphanumeric with dashes: "12345-ABC", "ABC-123-X".
	dashedPattern = regexp.MustCompile(`\b[A-Z0-9]{2,}-[A-Z0-9-]+\b`)
	// Alphanumeric with dots: "123.456", "ABC.123".
	dottedPattern = regexp.MustCompile(`\b[A-Z0-9]{2,}\.[A-Z0-9]+\b`)
	// Continuous alphanumeric, 5-15 chars; letter/digit mix checked separately
	// because RE2 has no lookaheads.
	continuousPattern = regexp.MustCompile(`\b[A-Z0-9]{5,15}\b`)
	// All-digit OEM numbers (BMW 11-digit, Toyota 10-digit). 7+ digits so
	// years and short quantities never match.
	numericPattern = regexp.MustCompile(`\b\d{7,15}\b`)

	oemPrefixPattern = regexp.MustCompile(`(?:OEM|PART\s*#?|PN|P/N)\s*([A-Z0-9-]{3,15})`)
	hashPattern      = regexp.MustCompile(`#\s*([A-Z0-9-]{3,15})`)
)

// ExtractPartNumbers finds candidate part numbers in free text.
// Candidates are uppercased with spaces removed; dashes and dots are
// preserved. The stripped value must be 3-20 characters long.
func ExtractPartNumbers(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	upper := strings.ToUpper(text)
	found := make(map[string]struct{})

	add := func(raw string) {
		candidate := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
		stripped := strings.NewReplacer("-", "", ".", "").Replace(candidate)
		if len(stripped) < 3 || len(stripped) > 20 {
			return
		}
		found[candidate] = struct{}{}
	}

	for _, match := range dashedPattern.FindAllString(upper, -1) {
		add(match)
	}
	for _, match := range dottedPattern.FindAllString(upper, -1) {
		add(match)
	}
	for _, match := range continuousPattern.FindAllString(upper, -1) {
		if hasLetterAndDigit(match) {
			add(match)
		}
	}
	for _, match := range numericPattern.FindAllString(upper, -1) {
		add(match)
	}
	for _, groups := range oemPrefixPattern.FindAllStringSubmatch(upper, -1) {
		add(groups[1])
	}
	for _, groups := range hashPattern.FindAllStringSubmatch(upper, -1) {
		add(groups[1])
	}

	if len(found) == 0 {
		return nil
	}
	out := make([]string, 0, len(found))
	for candidate := range found {
		out = append(out, candidate)
	}
	sort.Strings(out)
	return out
}

// NormalizePartNumber strips every non-alphanumeric character and
// uppercases, so "11-42-7-566-327" and "11427566327" compare equal.
func NormalizePartNumber(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasLetterAndDigit(value string) bool {
	hasLetter, hasDigit := false, false
	for _, r := range value {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}
