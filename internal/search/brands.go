package search

import (
	"math"
	"sort"
	"strings"

	"partlogic/searchservice/internal/domain"
)

const (
	TierOEM                = "oem"
	TierPremiumAftermarket = "premium_aftermarket"
	TierEconomy            = "economy"
	TierBudget             = "budget"
	TierUnknown            = "unknown"
)

var tierRank = map[string]int{
	TierOEM:                4,
	TierPremiumAftermarket: 3,
	TierEconomy:            2,
	TierBudget:             1,
	TierUnknown:            0,
}

type brandProfile struct {
	Tier         string
	QualityScore float64
	Description  string
	KnownFor     []string
}

// brandProfiles is a static knowledge base of common parts brands.
// Quality scores are 0-10; unknown brands default to 5.0 in value math.
var brandProfiles = map[string]brandProfile{
	// Factory brands
	"bmw":           {Tier: TierOEM, QualityScore: 9.5, Description: "BMW genuine parts."},
	"genuine bmw":   {Tier: TierOEM, QualityScore: 9.5, Description: "BMW genuine parts."},
	"mercedes-benz": {Tier: TierOEM, QualityScore: 9.5, Description: "Mercedes-Benz genuine parts."},
	"toyota":        {Tier: TierOEM, QualityScore: 9.5, Description: "Toyota genuine parts."},
	"honda":         {Tier: TierOEM, QualityScore: 9.5, Description: "Honda genuine parts."},
	"mopar":         {Tier: TierOEM, QualityScore: 9.0, Description: "Chrysler/Dodge/Jeep factory parts."},
	"motorcraft":    {Tier: TierOEM, QualityScore: 9.0, Description: "Ford factory parts."},
	"acdelco":       {Tier: TierOEM, QualityScore: 8.5, Description: "GM factory parts."},
	"porsche":       {Tier: TierOEM, QualityScore: 9.5, Description: "Porsche genuine parts."},
	"volkswagen":    {Tier: TierOEM, QualityScore: 9.0, Description: "Volkswagen genuine parts."},

	// OE suppliers and premium aftermarket
	"bosch":   {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"sensors", "ignition", "fuel systems"}},
	"mahle":   {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"filters", "gaskets", "engine internals"}},
	"mann":    {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"filters"}},
	"denso":   {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"alternators", "starters", "sensors"}},
	"aisin":   {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"water pumps", "clutches"}},
	"brembo":  {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"brakes"}},
	"ate":     {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"brakes", "hydraulics"}},
	"lemfo":   {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"suspension", "steering"}},
	"lemford": {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"suspension", "steering"}},
	"ngk":     {Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"spark plugs", "ignition"}},
	"akebono": {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"brake pads"}},
	"moog":    {Tier: TierPremiumAftermarket, QualityScore: 7.5, KnownFor: []string{"suspension", "steering"}},
	"sachs":   {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"clutches", "shocks"}},
	"bilstein": {
		Tier: TierPremiumAftermarket, QualityScore: 8.5, KnownFor: []string{"shocks", "struts"},
	},
	"timken": {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"bearings", "hubs"}},
	"gates":  {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"belts", "hoses"}},
	"elring": {Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"gaskets", "seals"}},
	"febi":   {Tier: TierPremiumAftermarket, QualityScore: 7.5, KnownFor: []string{"German vehicle parts"}},
	"victor reinz": {
		Tier: TierPremiumAftermarket, QualityScore: 8.0, KnownFor: []string{"gaskets"},
	},

	// Economy
	"beck/arnley": {Tier: TierEconomy, QualityScore: 6.5, Description: "Decent import-car coverage."},
	"beck arnley": {Tier: TierEconomy, QualityScore: 6.5, Description: "Decent import-car coverage."},
	"dorman":      {Tier: TierEconomy, QualityScore: 6.0, Description: "Broad coverage replacement parts."},
	"uro":         {Tier: TierEconomy, QualityScore: 5.5, Description: "Budget European replacements."},
	"cardone":     {Tier: TierEconomy, QualityScore: 6.0, Description: "Remanufactured components."},
	"duralast":    {Tier: TierEconomy, QualityScore: 6.0, Description: "House brand replacement parts."},

	// Budget
	"a-premium":  {Tier: TierBudget, QualityScore: 4.0},
	"autopart t": {Tier: TierBudget, QualityScore: 4.0},
	"evergreen":  {Tier: TierBudget, QualityScore: 4.5},
	"tuff":       {Tier: TierBudget, QualityScore: 4.0},
}

func getBrandProfile(brand string) (brandProfile, bool) {
	key := strings.ToLower(strings.TrimSpace(brand))
	if key == "" {
		return brandProfile{}, false
	}
	profile, ok := brandProfiles[key]
	return profile, ok
}

// detectBrandInTitle finds a known brand mentioned in a listing title.
// Longer names win so "Victor Reinz" beats a bare "Victor".
func detectBrandInTitle(title string) string {
	lower := " " + strings.ToLower(strings.Join(strings.Fields(title), " ")) + " "
	best := ""
	for key := range brandProfiles {
		if len(key) <= len(best) {
			continue
		}
		if strings.Contains(lower, " "+key+" ") {
			best = key
		}
	}
	if best == "" {
		return ""
	}
	return titleWord(best)
}

// BuildBrandComparison groups listings by brand, merges static brand
// profiles and sorts strongest recommendation first.
func BuildBrandComparison(listings []domain.MarketListing, interchange *domain.InterchangeInfo) []domain.BrandSummary {
	byBrand := make(map[string][]domain.MarketListing)
	for _, listing := range listings {
		brand := strings.TrimSpace(listing.Brand)
		if brand == "" {
			continue
		}
		key := titleWord(brand)
		byBrand[key] = append(byBrand[key], listing)
	}
	if len(byBrand) == 0 {
		return nil
	}

	summaries := make([]domain.BrandSummary, 0, len(byBrand))
	for brand, brandListings := range byBrand {
		profile, hasProfile := getBrandProfile(brand)
		tier := TierUnknown
		quality := 0.0
		if hasProfile {
			tier = profile.Tier
			quality = profile.QualityScore
		}

		sum, count := 0.0, 0
		for _, listing := range brandListings {
			if listing.Price > 0 {
				sum += listing.Price
				count++
			}
		}
		avg := 0.0
		if count > 0 {
			avg = round2(sum / float64(count))
		}

		summaries = append(summaries, domain.BrandSummary{
			Brand:              brand,
			Tier:               tier,
			QualityScore:       quality,
			AvgPrice:           avg,
			ListingCount:       len(brandListings),
			RecommendationNote: recommendationNote(profile, hasProfile),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		left, right := summaries[i], summaries[j]
		if tierRank[left.Tier] != tierRank[right.Tier] {
			return tierRank[left.Tier] > tierRank[right.Tier]
		}
		if left.QualityScore != right.QualityScore {
			return left.QualityScore > right.QualityScore
		}
		return left.Brand < right.Brand
	})
	return summaries
}

func recommendationNote(profile brandProfile, hasProfile bool) string {
	if !hasProfile {
		return ""
	}
	switch profile.Tier {
	case TierOEM:
		return strings.TrimSpace("Factory-original part. " + profile.Description)
	case TierPremiumAftermarket:
		note := "OE-quality aftermarket."
		if len(profile.KnownFor) > 0 {
			specialties := profile.KnownFor
			if len(specialties) > 3 {
				specialties = specialties[:3]
			}
			note += " Known for " + strings.Join(specialties, ", ") + "."
		}
		return note
	case TierEconomy:
		return strings.TrimSpace("Good value option. " + profile.Description)
	case TierBudget:
		return "Lowest cost option. Quality may vary."
	default:
		return ""
	}
}

// brandTierBoost prefers higher-quality brands in relevance ranking.
// Part-number queries get a stronger OEM/premium preference: the user
// already knows which part they want.
func brandTierBoost(brand string, queryType domain.QueryType) float64 {
	profile, ok := getBrandProfile(brand)
	if !ok {
		return 0
	}
	if queryType == domain.QueryTypePartNumber {
		switch profile.Tier {
		case TierOEM:
			return 3.0
		case TierPremiumAftermarket:
			return 2.0
		case TierEconomy:
			return 0.5
		default:
			return 0
		}
	}
	switch profile.Tier {
	case TierOEM:
		return 1.5
	case TierPremiumAftermarket:
		return 1.0
	case TierEconomy:
		return 0.5
	default:
		return 0
	}
}

// buildRecommendation produces a one-line recommendation from the best
// comparison row.
func buildRecommendation(comparison []domain.BrandSummary) string {
	for _, summary := range comparison {
		if summary.Tier == TierUnknown || summary.ListingCount == 0 {
			continue
		}
		switch summary.Tier {
		case TierOEM:
			return summary.Brand + " is the factory-original option."
		case TierPremiumAftermarket:
			return summary.Brand + " offers OE-level quality at aftermarket pricing."
		case TierEconomy:
			return summary.Brand + " is a reasonable value pick."
		}
	}
	return ""
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
