package search

import (
	"sort"
	"strconv"
	"strings"

	"partlogic/searchservice/internal/domain"
)

// relevanceScore rates a listing against the query and its analysis.
// Higher is better. The score is a pure function of its inputs so the
// final ordering is reproducible.
func relevanceScore(listing domain.MarketListing, query string, analysis domain.QueryAnalysis) float64 {
	score := 0.0
	queryUpper := strings.ToUpper(query)
	titleUpper := strings.ToUpper(listing.Title)

	if strings.Contains(titleUpper, queryUpper) {
		score += 10.0
	}

	words := strings.Fields(queryUpper)
	if len(words) > 0 {
		matched := 0
		for _, word := range words {
			if strings.Contains(titleUpper, word) {
				matched++
			}
		}
		score += float64(matched) / float64(len(words)) * 5.0
	}

	if len(listing.PartNumbers) > 0 {
		score += 3.0
	}
	if listing.ImageURL != "" {
		score += 1.0
	}
	switch listing.Condition {
	case "New":
		score += 2.0
	case "Refurbished":
		score += 1.5
	case "Used":
		score += 1.0
	}
	if listing.Price > 0 {
		score += 1.0
	}

	// Context boosts from query analysis.
	relevantPNs := make(map[string]struct{}, len(analysis.PartNumbers))
	for _, pn := range analysis.PartNumbers {
		relevantPNs[NormalizePartNumber(pn)] = struct{}{}
	}
	if len(relevantPNs) > 0 {
		direct := false
		for _, pn := range listing.PartNumbers {
			if _, ok := relevantPNs[NormalizePartNumber(pn)]; ok {
				direct = true
				break
			}
		}
		if direct {
			score += 15.0
		} else {
			for pn := range relevantPNs {
				if pn != "" && strings.Contains(NormalizePartNumber(titleUpper), pn) {
					score += 12.0
					break
				}
			}
		}
	}

	if analysis.Vehicle != nil {
		vehicleWords := vehicleHintWords(*analysis.Vehicle)
		if len(vehicleWords) > 0 {
			matched := 0
			for _, word := range vehicleWords {
				if strings.Contains(titleUpper, word) {
					matched++
				}
			}
			if matched == len(vehicleWords) {
				score += 10.0
			} else if matched > 0 {
				score += 5.0 * float64(matched) / float64(len(vehicleWords))
			}
		}
	}

	if analysis.PartDescription != "" {
		descUpper := strings.ToUpper(analysis.PartDescription)
		if strings.Contains(titleUpper, descUpper) {
			score += 8.0
		} else {
			descWords := strings.Fields(descUpper)
			matched := 0
			for _, word := range descWords {
				if strings.Contains(titleUpper, word) {
					matched++
				}
			}
			if matched > 0 {
				score += 4.0 * float64(matched) / float64(len(descWords))
			}
		}
	}

	if listing.Brand != "" {
		score += brandTierBoost(listing.Brand, analysis.QueryType)
	}
	if listing.MatchedInterchange != "" {
		// Interchange hits are real matches, just via an alternate number.
		score += 2.0
	}
	return score
}

func vehicleHintWords(hint domain.VehicleHint) []string {
	words := make([]string, 0, 4)
	if hint.Year > 0 {
		words = append(words, strconv.Itoa(hint.Year))
	}
	for _, value := range []string{hint.Make, hint.Model, hint.Trim} {
		value = strings.ToUpper(strings.TrimSpace(value))
		if value != "" {
			words = append(words, strings.Fields(value)...)
		}
	}
	return words
}

// RankListings sorts listings for the requested sort mode. All modes
// break ties on (source, url) so equal inputs produce equal output.
func RankListings(listings []domain.MarketListing, query string, sortBy domain.SearchSort, analysis domain.QueryAnalysis) {
	tieBreak := func(left, right domain.MarketListing) bool {
		if left.Source != right.Source {
			return left.Source < right.Source
		}
		return left.URL < right.URL
	}

	switch sortBy {
	case domain.SearchSortPriceAsc:
		sort.SliceStable(listings, func(i, j int) bool {
			left, right := effectivePrice(listings[i]), effectivePrice(listings[j])
			if left != right {
				return left < right
			}
			return tieBreak(listings[i], listings[j])
		})
	case domain.SearchSortPriceDesc:
		sort.SliceStable(listings, func(i, j int) bool {
			if listings[i].Price != listings[j].Price {
				return listings[i].Price > listings[j].Price
			}
			return tieBreak(listings[i], listings[j])
		})
	case domain.SearchSortValue:
		sort.SliceStable(listings, func(i, j int) bool {
			left, right := valueScore(listings[i]), valueScore(listings[j])
			if left != right {
				return left > right
			}
			return tieBreak(listings[i], listings[j])
		})
	default:
		scores := make(map[string]float64, len(listings))
		scoreOf := func(listing domain.MarketListing) float64 {
			key := listingDedupeKey(listing)
			if score, ok := scores[key]; ok {
				return score
			}
			score := relevanceScore(listing, query, analysis)
			scores[key] = score
			return score
		}
		sort.SliceStable(listings, func(i, j int) bool {
			left, right := scoreOf(listings[i]), scoreOf(listings[j])
			if left != right {
				return left > right
			}
			if listings[i].Price != listings[j].Price {
				return listings[i].Price < listings[j].Price
			}
			return tieBreak(listings[i], listings[j])
		})
	}
}

// effectivePrice pushes zero-priced listings to the end of ascending sorts.
func effectivePrice(listing domain.MarketListing) float64 {
	if listing.Price <= 0 {
		return 1 << 40
	}
	return listing.Price
}

// FilterSalvageHits drops hits for unrelated vehicles once the query
// names a make. Hits with no vehicle field are kept.
func FilterSalvageHits(hits []domain.SalvageHit, analysis domain.QueryAnalysis) []domain.SalvageHit {
	if analysis.Vehicle == nil || strings.TrimSpace(analysis.Vehicle.Make) == "" {
		return hits
	}
	makeName := strings.ToUpper(strings.TrimSpace(analysis.Vehicle.Make))
	filtered := make([]domain.SalvageHit, 0, len(hits))
	for _, hit := range hits {
		vehicle := strings.ToUpper(strings.TrimSpace(hit.Vehicle))
		if vehicle == "" || strings.Contains(vehicle, makeName) {
			filtered = append(filtered, hit)
		}
	}
	return filtered
}

var linkCategoryOrder = map[string]int{
	"new_parts":        0,
	"used_salvage":     1,
	"repair_resources": 2,
}

// SortLinksByCategory orders reference links: new parts, then salvage,
// then repair resources.
func SortLinksByCategory(links []domain.ExternalLink) {
	sort.SliceStable(links, func(i, j int) bool {
		left, right := linkCategoryRank(links[i]), linkCategoryRank(links[j])
		if left != right {
			return left < right
		}
		if links[i].Source != links[j].Source {
			return links[i].Source < links[j].Source
		}
		return links[i].URL < links[j].URL
	})
}

func linkCategoryRank(link domain.ExternalLink) int {
	category := strings.ToLower(strings.TrimSpace(link.Category))
	if category == "" {
		category = "new_parts"
	}
	if rank, ok := linkCategoryOrder[category]; ok {
		return rank
	}
	return 99
}
