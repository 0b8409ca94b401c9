package search

import (
	"context"
	"sort"
	"strings"

	"partlogic/searchservice/internal/domain"
)

// maxInterchangeSearches caps how many alternate part numbers get their
// own secondary search pass.
const maxInterchangeSearches = 3

// PartsCatalog is the canonical parts knowledge the search pipeline
// consults for interchange data and writes history into. Implemented by
// the canonical store; kept small so tests can fake it.
type PartsCatalog interface {
	InterchangeFor(ctx context.Context, partNumber string) (domain.InterchangeInfo, error)
	RecordSearch(ctx context.Context, entry domain.SearchHistoryEntry) error
	RecordPriceSnapshots(ctx context.Context, snapshots []domain.PriceSnapshot) error
}

// VehicleResolver resolves free-text vehicle descriptions to canonical
// vehicles. Implemented by the canonical resolver.
type VehicleResolver interface {
	ResolveVehicleAlias(ctx context.Context, aliasText, sourceDomain string) (domain.AliasResolution, error)
}

// buildInterchangeInfo merges catalog interchange data for the queried
// part number with cross references observed in live listings.
//
// Confidence reflects corroboration: 0.9 when two or more catalog
// sources agree, 0.7 for a single catalog source, 0.5 when only listing
// hints exist.
func buildInterchangeInfo(ctx context.Context, catalog PartsCatalog, partNumber string, listings []domain.MarketListing) *domain.InterchangeInfo {
	queryNorm := NormalizePartNumber(partNumber)
	if queryNorm == "" {
		return nil
	}

	info := domain.InterchangeInfo{PartNumber: partNumber}
	if catalog != nil {
		stored, err := catalog.InterchangeFor(ctx, partNumber)
		if err == nil {
			info.Supersessions = stored.Supersessions
			info.GroupMembers = stored.GroupMembers
			info.Sources = stored.Sources
		}
	}

	// Part numbers seen on listings that are not the queried one are
	// weak interchange hints.
	hintSources := make(map[string]map[string]struct{})
	for _, listing := range listings {
		for _, pn := range listing.PartNumbers {
			norm := NormalizePartNumber(pn)
			if norm == "" || norm == queryNorm {
				continue
			}
			if hintSources[norm] == nil {
				hintSources[norm] = make(map[string]struct{})
			}
			hintSources[norm][strings.ToLower(listing.Source)] = struct{}{}
		}
	}

	known := make(map[string]struct{})
	known[queryNorm] = struct{}{}
	alternates := make([]string, 0, len(info.Supersessions)+len(info.GroupMembers))
	addAlternate := func(pn string) {
		norm := NormalizePartNumber(pn)
		if norm == "" {
			return
		}
		if _, dup := known[norm]; dup {
			return
		}
		known[norm] = struct{}{}
		alternates = append(alternates, pn)
	}
	for _, pn := range info.Supersessions {
		addAlternate(pn)
	}
	for _, pn := range info.GroupMembers {
		addAlternate(pn)
	}

	// Listing hints only count as alternates when seen from more than
	// one source; a single seller's cross reference is too noisy.
	hinted := make([]string, 0, len(hintSources))
	for pn, sources := range hintSources {
		if len(sources) >= 2 {
			hinted = append(hinted, pn)
		}
	}
	sort.Strings(hinted)
	for _, pn := range hinted {
		addAlternate(pn)
	}

	if len(alternates) == 0 && len(info.Supersessions) == 0 && len(info.GroupMembers) == 0 {
		return nil
	}
	info.Alternates = alternates
	info.BrandNumbers = groupNumbersByBrand(known, listings)

	switch {
	case len(info.Sources) >= 2:
		info.Confidence = 0.9
	case len(info.Sources) == 1:
		info.Confidence = 0.7
	default:
		info.Confidence = 0.5
	}
	return &info
}

// groupNumbersByBrand maps each brand in the listings to the interchange
// numbers (normalized) that brand was offered under. Only numbers in the
// known interchange set count; brandless listings are skipped.
func groupNumbersByBrand(known map[string]struct{}, listings []domain.MarketListing) map[string][]string {
	byBrand := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, listing := range listings {
		brand := strings.TrimSpace(listing.Brand)
		if brand == "" {
			continue
		}
		brand = titleWord(brand)
		for _, pn := range listing.PartNumbers {
			norm := NormalizePartNumber(pn)
			if norm == "" {
				continue
			}
			if _, ok := known[norm]; !ok {
				continue
			}
			pairKey := brand + "|" + norm
			if _, dup := seen[pairKey]; dup {
				continue
			}
			seen[pairKey] = struct{}{}
			byBrand[brand] = append(byBrand[brand], norm)
		}
	}
	if len(byBrand) == 0 {
		return nil
	}
	for brand := range byBrand {
		sort.Strings(byBrand[brand])
	}
	return byBrand
}

// interchangeSearchTargets picks which alternates are worth a secondary
// search pass. Catalog-backed alternates come first.
func interchangeSearchTargets(info *domain.InterchangeInfo) []string {
	if info == nil {
		return nil
	}
	targets := info.Alternates
	if len(targets) > maxInterchangeSearches {
		targets = targets[:maxInterchangeSearches]
	}
	return targets
}
