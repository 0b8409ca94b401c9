package search

import (
	"net/url"
	"sort"
	"strings"

	"partlogic/searchservice/internal/domain"
)

// NormalizeCondition folds the many condition spellings sources use into
// a small canonical vocabulary.
func NormalizeCondition(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "Unknown"
	}
	lower := strings.ToLower(value)
	switch {
	case containsAny(lower, "new", "unused"):
		return "New"
	case containsAny(lower, "used", "pre-owned", "second hand"):
		return "Used"
	case containsAny(lower, "refurbished", "reconditioned"):
		return "Refurbished"
	case containsAny(lower, "salvage", "wrecked", "parts only"):
		return "Salvage"
	default:
		return titleWord(value)
	}
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

// Tracking params dropped from listing URLs so the same offer seen twice
// dedupes to the same key.
var trackingParams = map[string]struct{}{
	"fbclid": {}, "gclid": {}, "msclkid": {}, "ref": {},
	"campid": {}, "mkcid": {}, "mkrid": {}, "mkevt": {}, "toolid": {},
}

func CleanURL(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return ""
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
		if strings.HasPrefix(value, "/") {
			return value
		}
		value = "https://" + value
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return value
	}
	query := parsed.Query()
	changed := false
	for key := range query {
		lower := strings.ToLower(key)
		if _, drop := trackingParams[lower]; drop || strings.HasPrefix(lower, "utm_") {
			query.Del(key)
			changed = true
		}
	}
	if changed {
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

// normalizeListing cleans one raw connector listing.
func normalizeListing(listing domain.MarketListing) domain.MarketListing {
	listing.Title = strings.TrimSpace(listing.Title)
	listing.URL = CleanURL(listing.URL)
	listing.Condition = NormalizeCondition(listing.Condition)
	// Marketplace listings often carry part number and brand only in
	// the title.
	if len(listing.PartNumbers) == 0 {
		listing.PartNumbers = ExtractPartNumbers(listing.Title)
	}
	if strings.TrimSpace(listing.Brand) == "" {
		listing.Brand = detectBrandInTitle(listing.Title)
	}
	if listing.Currency == "" {
		listing.Currency = "USD"
	}
	if listing.Price < 0 {
		listing.Price = 0
	}
	if listing.ShippingCost < 0 {
		listing.ShippingCost = 0
	}
	if len(listing.PartNumbers) > 0 {
		normalized := make([]string, 0, len(listing.PartNumbers))
		seen := make(map[string]struct{}, len(listing.PartNumbers))
		for _, pn := range listing.PartNumbers {
			value := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(pn), " ", ""))
			if value == "" {
				continue
			}
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			normalized = append(normalized, value)
		}
		listing.PartNumbers = normalized
	}
	return listing
}

func listingDedupeKey(listing domain.MarketListing) string {
	return strings.ToLower(strings.TrimSpace(listing.Source)) + "|" + strings.ToLower(listing.URL)
}

// dedupeListings removes exact (source, url) duplicates, then folds
// cross-source duplicates: same (brand, normalized part number), prices
// within tolerance and near-identical titles. The listing from the
// higher-priority source wins; the loser's source is kept as a secondary
// reference instead of being dropped silently.
func dedupeListings(listings []domain.MarketListing, priority func(source string) int) []domain.MarketListing {
	seen := make(map[string]struct{}, len(listings))
	unique := make([]domain.MarketListing, 0, len(listings))
	for _, listing := range listings {
		key := listingDedupeKey(listing)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, listing)
	}

	type groupKey struct {
		brand string
		pn    string
	}
	byPart := make(map[groupKey][]int)
	for i, listing := range unique {
		brand := strings.ToLower(strings.TrimSpace(listing.Brand))
		if brand == "" || len(listing.PartNumbers) == 0 {
			continue
		}
		pn := NormalizePartNumber(listing.PartNumbers[0])
		if pn == "" {
			continue
		}
		key := groupKey{brand: brand, pn: pn}
		byPart[key] = append(byPart[key], i)
	}

	dropped := make(map[int]struct{})
	for _, indices := range byPart {
		if len(indices) < 2 {
			continue
		}
		for a := 0; a < len(indices); a++ {
			for b := a + 1; b < len(indices); b++ {
				i, j := indices[a], indices[b]
				if _, gone := dropped[i]; gone {
					continue
				}
				if _, gone := dropped[j]; gone {
					continue
				}
				left, right := unique[i], unique[j]
				if strings.EqualFold(left.Source, right.Source) {
					continue
				}
				if !pricesClose(left.Price, right.Price) {
					continue
				}
				if titleSimilarity(left.Title, right.Title) < 0.6 {
					continue
				}
				keep, lose := i, j
				if priority != nil && priority(right.Source) > priority(left.Source) {
					keep, lose = j, i
				}
				unique[keep].SecondarySources = appendUniqueString(unique[keep].SecondarySources, unique[lose].Source)
				dropped[lose] = struct{}{}
			}
		}
	}

	if len(dropped) == 0 {
		return unique
	}
	out := make([]domain.MarketListing, 0, len(unique)-len(dropped))
	for i, listing := range unique {
		if _, gone := dropped[i]; gone {
			continue
		}
		out = append(out, listing)
	}
	return out
}

// pricesClose treats prices within $0.50 or 2% of each other as the same offer.
func pricesClose(left, right float64) bool {
	diff := left - right
	if diff < 0 {
		diff = -diff
	}
	if diff <= 0.5 {
		return true
	}
	max := left
	if right > max {
		max = right
	}
	return max > 0 && diff/max <= 0.02
}

// titleSimilarity is token Jaccard overlap on lowercased titles.
func titleSimilarity(left, right string) float64 {
	leftTokens := tokenSet(left)
	rightTokens := tokenSet(right)
	if len(leftTokens) == 0 || len(rightTokens) == 0 {
		return 0
	}
	intersection := 0
	for token := range leftTokens {
		if _, ok := rightTokens[token]; ok {
			intersection++
		}
	}
	union := len(leftTokens) + len(rightTokens) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(value string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(value)) {
		token = strings.Trim(token, ".,()[]#")
		if token != "" {
			tokens[token] = struct{}{}
		}
	}
	return tokens
}

func dedupeLinks(links []domain.ExternalLink) []domain.ExternalLink {
	seen := make(map[string]struct{}, len(links))
	unique := make([]domain.ExternalLink, 0, len(links))
	for _, link := range links {
		key := strings.ToLower(strings.TrimSpace(link.Source)) + "|" + strings.ToLower(strings.TrimSpace(link.URL))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, link)
	}
	return unique
}

func appendUniqueString(values []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return values
	}
	for _, existing := range values {
		if strings.EqualFold(existing, value) {
			return values
		}
	}
	return append(values, value)
}

func sortedUniqueLower(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}
