package domain

import "time"

type SearchSort string

const (
	SearchSortRelevance SearchSort = "relevance"
	SearchSortPriceAsc  SearchSort = "price_asc"
	SearchSortPriceDesc SearchSort = "price_desc"
	SearchSortValue     SearchSort = "value"
)

func NormalizeSort(raw string) SearchSort {
	switch SearchSort(raw) {
	case SearchSortPriceAsc:
		return SearchSortPriceAsc
	case SearchSortPriceDesc:
		return SearchSortPriceDesc
	case SearchSortValue:
		return SearchSortValue
	default:
		return SearchSortRelevance
	}
}

type SearchRequest struct {
	Query   string
	Limit   int
	Offset  int
	Sort    SearchSort
	NoCache bool
	// Vehicle carries explicit vehicle context given alongside the
	// query, for example from vehicle_* parameters or a decoded VIN.
	// Fields set here override whatever the analyzer parses out of the
	// query text.
	Vehicle VehicleHint
}

type QueryType string

const (
	QueryTypePartNumber  QueryType = "part_number"
	QueryTypeVehiclePart QueryType = "vehicle_part"
	QueryTypeKeywords    QueryType = "keywords"
)

type VehicleHint struct {
	Year  int    `json:"year,omitempty"`
	Make  string `json:"make,omitempty"`
	Model string `json:"model,omitempty"`
	Trim  string `json:"trim,omitempty"`
}

func (h VehicleHint) Empty() bool {
	return h.Year == 0 && h.Make == "" && h.Model == "" && h.Trim == ""
}

type QueryAnalysis struct {
	QueryType       QueryType    `json:"queryType"`
	PartNumbers     []string     `json:"partNumbers,omitempty"`
	Vehicle         *VehicleHint `json:"vehicle,omitempty"`
	PartDescription string       `json:"partDescription,omitempty"`
}

// MarketListing is a buyable offer for a part on a marketplace or retailer.
type MarketListing struct {
	Source             string   `json:"source"`
	Title              string   `json:"title"`
	Price              float64  `json:"price"`
	Currency           string   `json:"currency,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	URL                string   `json:"url"`
	PartNumbers        []string `json:"partNumbers,omitempty"`
	Vendor             string   `json:"vendor,omitempty"`
	ImageURL           string   `json:"imageUrl,omitempty"`
	Brand              string   `json:"brand,omitempty"`
	ShippingCost       float64  `json:"shippingCost,omitempty"`
	ListingType        string   `json:"listingType,omitempty"`
	MatchedInterchange string   `json:"matchedInterchange,omitempty"`
	// SecondarySources lists sources that presented the same physical offer
	// and were folded into this listing during cross-source dedupe.
	SecondarySources []string `json:"secondarySources,omitempty"`
}

// SalvageHit is a part sighting at a self-service or full-service yard.
type SalvageHit struct {
	Source          string     `json:"source"`
	YardName        string     `json:"yardName"`
	YardLocation    string     `json:"yardLocation,omitempty"`
	Vehicle         string     `json:"vehicle,omitempty"`
	URL             string     `json:"url,omitempty"`
	LastSeen        *time.Time `json:"lastSeen,omitempty"`
	PartDescription string     `json:"partDescription,omitempty"`
}

// ExternalLink points at a reference source (catalog, forum, diagram site)
// that cannot be queried for structured results.
type ExternalLink struct {
	Label    string `json:"label"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Category string `json:"category,omitempty"`
}

// SourceResult is what a single connector returns for one query.
type SourceResult struct {
	Listings    []MarketListing `json:"listings,omitempty"`
	SalvageHits []SalvageHit    `json:"salvageHits,omitempty"`
	Links       []ExternalLink  `json:"links,omitempty"`
}

func (r SourceResult) Count() int {
	return len(r.Listings) + len(r.SalvageHits) + len(r.Links)
}

const (
	SourceStatusOK     = "ok"
	SourceStatusCached = "cached"
	SourceStatusError  = "error"
)

type SourceStatus struct {
	Source      string `json:"source"`
	Status      string `json:"status"`
	ResultCount int    `json:"resultCount"`
	Details     string `json:"details,omitempty"`
}

type SourceInfo struct {
	Name               string `json:"name"`
	Label              string `json:"label"`
	Category           string `json:"category,omitempty"`
	SourceType         string `json:"sourceType"`
	Enabled            bool   `json:"enabled"`
	Priority           int    `json:"priority,omitempty"`
	SupportsVIN        bool   `json:"supportsVin,omitempty"`
	SupportsPartNumber bool   `json:"supportsPartNumberSearch,omitempty"`
}

type SourceDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	SourceType          string     `json:"sourceType"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}

// Offer is one purchasable instance of a grouped part.
type Offer struct {
	Source       string  `json:"source"`
	Price        float64 `json:"price"`
	ShippingCost float64 `json:"shippingCost,omitempty"`
	TotalCost    float64 `json:"totalCost"`
	Condition    string  `json:"condition,omitempty"`
	URL          string  `json:"url"`
	Title        string  `json:"title,omitempty"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	ValueScore   float64 `json:"valueScore"`
}

type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// ListingGroup collects all offers for the same (brand, part number).
type ListingGroup struct {
	Brand          string     `json:"brand"`
	PartNumber     string     `json:"partNumber"`
	Tier           string     `json:"tier"`
	QualityScore   float64    `json:"qualityScore"`
	Offers         []Offer    `json:"offers"`
	BestPrice      float64    `json:"bestPrice"`
	PriceRange     PriceRange `json:"priceRange"`
	OfferCount     int        `json:"offerCount"`
	BestValueScore float64    `json:"bestValueScore"`
}

type InterchangeInfo struct {
	PartNumber    string   `json:"partNumber"`
	Supersessions []string `json:"supersessions,omitempty"`
	GroupMembers  []string `json:"groupMembers,omitempty"`
	Alternates    []string `json:"alternates,omitempty"`
	Sources       []string `json:"sources,omitempty"`
	// BrandNumbers maps each brand seen in the merged listings to the
	// interchange numbers that brand was offered under.
	BrandNumbers map[string][]string `json:"brandNumbers,omitempty"`
	Confidence   float64             `json:"confidence"`
}

type BrandSummary struct {
	Brand              string  `json:"brand"`
	Tier               string  `json:"tier"`
	QualityScore       float64 `json:"qualityScore"`
	AvgPrice           float64 `json:"avgPrice,omitempty"`
	ListingCount       int     `json:"listingCount"`
	RecommendationNote string  `json:"recommendationNote,omitempty"`
}

type CommunityThread struct {
	Title        string `json:"title"`
	URL          string `json:"url"`
	Community    string `json:"community,omitempty"`
	Score        int    `json:"score,omitempty"`
	CommentCount int    `json:"commentCount,omitempty"`
}

type PartIntelligence struct {
	QueryType        QueryType         `json:"queryType"`
	VehicleHint      *VehicleHint      `json:"vehicleHint,omitempty"`
	PartDescription  string            `json:"partDescription,omitempty"`
	CrossReferences  []string          `json:"crossReferences,omitempty"`
	BrandsFound      []string          `json:"brandsFound,omitempty"`
	Interchange      *InterchangeInfo  `json:"interchange,omitempty"`
	BrandComparison  []BrandSummary    `json:"brandComparison,omitempty"`
	Recommendation   string            `json:"recommendation,omitempty"`
	CommunityThreads []CommunityThread `json:"communityThreads,omitempty"`
}

type SearchResults struct {
	MarketListings []MarketListing `json:"marketListings"`
	SalvageHits    []SalvageHit    `json:"salvageHits"`
	ExternalLinks  []ExternalLink  `json:"externalLinks"`
}

type SearchResponse struct {
	Query                string            `json:"query"`
	ExtractedPartNumbers []string          `json:"extractedPartNumbers,omitempty"`
	Results              SearchResults     `json:"results"`
	GroupedListings      []ListingGroup    `json:"groupedListings"`
	Sources              []SourceStatus    `json:"sourcesQueried"`
	Warnings             []string          `json:"warnings,omitempty"`
	Cached               bool              `json:"cached"`
	Intelligence         *PartIntelligence `json:"intelligence,omitempty"`
	ElapsedMS            int64             `json:"elapsedMs"`
	TotalListings        int               `json:"totalListings"`
	Limit                int               `json:"limit"`
	Offset               int               `json:"offset"`
	HasMore              bool              `json:"hasMore"`
	Sort                 SearchSort        `json:"sort"`
}
