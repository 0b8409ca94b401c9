package search

import (
	"math"
	"sort"
	"strings"

	"partlogic/searchservice/internal/domain"
)

// defaultQualityScore is assumed for brands without a profile when
// computing quality-per-dollar.
const defaultQualityScore = 5.0

func groupingKey(listing domain.MarketListing) string {
	if strings.TrimSpace(listing.Brand) == "" || len(listing.PartNumbers) == 0 {
		return ""
	}
	brand := NormalizePartNumber(listing.Brand)
	pn := NormalizePartNumber(listing.PartNumbers[0])
	if brand == "" || pn == "" {
		return ""
	}
	return brand + ":" + pn
}

func totalCost(listing domain.MarketListing) float64 {
	shipping := 0.0
	if listing.ShippingCost > 0 {
		shipping = listing.ShippingCost
	}
	return listing.Price + shipping
}

// valueScore is quality points per dollar: (quality * 10) / total cost.
// Zero when the listing has no valid price, so division never blows up.
func valueScore(listing domain.MarketListing) float64 {
	total := totalCost(listing)
	if total <= 0 {
		return 0
	}
	quality := defaultQualityScore
	if profile, ok := getBrandProfile(listing.Brand); ok {
		quality = profile.QualityScore
	}
	return (quality * 10) / total
}

// GroupListings clusters listings by (brand, part number) so the same
// product from different retailers can be price-compared. Listings that
// cannot be grouped become single-offer groups; zero-price listings are
// skipped entirely.
func GroupListings(listings []domain.MarketListing) []domain.ListingGroup {
	grouped := make(map[string][]domain.MarketListing)
	groupOrder := make([]string, 0)
	ungrouped := make([]domain.MarketListing, 0)

	for _, listing := range listings {
		if listing.Price <= 0 {
			continue
		}
		key := groupingKey(listing)
		if key == "" {
			ungrouped = append(ungrouped, listing)
			continue
		}
		if _, seen := grouped[key]; !seen {
			groupOrder = append(groupOrder, key)
		}
		grouped[key] = append(grouped[key], listing)
	}

	result := make([]domain.ListingGroup, 0, len(grouped)+len(ungrouped))
	for _, key := range groupOrder {
		result = append(result, buildGroup(grouped[key]))
	}
	for _, listing := range ungrouped {
		result = append(result, buildGroup([]domain.MarketListing{listing}))
	}

	sortGroupsByValue(result)
	return result
}

func buildGroup(listings []domain.MarketListing) domain.ListingGroup {
	rep := listings[0]

	offers := make([]domain.Offer, 0, len(listings))
	for _, listing := range listings {
		offers = append(offers, domain.Offer{
			Source:       listing.Source,
			Price:        listing.Price,
			ShippingCost: listing.ShippingCost,
			TotalCost:    round2(totalCost(listing)),
			Condition:    listing.Condition,
			URL:          listing.URL,
			Title:        listing.Title,
			ImageURL:     listing.ImageURL,
			ValueScore:   round3(valueScore(listing)),
		})
	}
	sort.Slice(offers, func(i, j int) bool {
		if offers[i].TotalCost != offers[j].TotalCost {
			return offers[i].TotalCost < offers[j].TotalCost
		}
		return offers[i].Source < offers[j].Source
	})

	low, high, bestValue := math.MaxFloat64, 0.0, 0.0
	for _, offer := range offers {
		if offer.TotalCost < low {
			low = offer.TotalCost
		}
		if offer.TotalCost > high {
			high = offer.TotalCost
		}
		if offer.ValueScore > bestValue {
			bestValue = offer.ValueScore
		}
	}

	tier := TierUnknown
	quality := 0.0
	if profile, ok := getBrandProfile(rep.Brand); ok {
		tier = profile.Tier
		quality = profile.QualityScore
	}
	brand := strings.TrimSpace(rep.Brand)
	if brand == "" {
		brand = "Unknown"
	}
	partNumber := ""
	if len(rep.PartNumbers) > 0 {
		partNumber = rep.PartNumbers[0]
	}

	return domain.ListingGroup{
		Brand:          brand,
		PartNumber:     partNumber,
		Tier:           tier,
		QualityScore:   quality,
		Offers:         offers,
		BestPrice:      low,
		PriceRange:     domain.PriceRange{Low: low, High: high},
		OfferCount:     len(offers),
		BestValueScore: bestValue,
	}
}

func sortGroupsByValue(groups []domain.ListingGroup) {
	sort.Slice(groups, func(i, j int) bool {
		left, right := groups[i], groups[j]
		if left.BestValueScore != right.BestValueScore {
			return left.BestValueScore > right.BestValueScore
		}
		if left.BestPrice != right.BestPrice {
			return left.BestPrice < right.BestPrice
		}
		if left.Brand != right.Brand {
			return left.Brand < right.Brand
		}
		return left.PartNumber < right.PartNumber
	})
}

// SortGroups reorders groups for the requested sort; the default is
// best value first.
func SortGroups(groups []domain.ListingGroup, sortBy domain.SearchSort) {
	switch sortBy {
	case domain.SearchSortPriceAsc:
		sort.Slice(groups, func(i, j int) bool {
			if groups[i].BestPrice != groups[j].BestPrice {
				return groups[i].BestPrice < groups[j].BestPrice
			}
			return groups[i].Brand < groups[j].Brand
		})
	case domain.SearchSortPriceDesc:
		sort.Slice(groups, func(i, j int) bool {
			if groups[i].BestPrice != groups[j].BestPrice {
				return groups[i].BestPrice > groups[j].BestPrice
			}
			return groups[i].Brand < groups[j].Brand
		})
	default:
		sortGroupsByValue(groups)
	}
}

func round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}
