package search

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/metrics"
)

// maxConcurrentSources limits how many source queries run simultaneously,
// so a wide registry cannot stampede remote sites.
const maxConcurrentSources = 10

// maxSnapshotsPerSearch caps price history writes per query.
const maxSnapshotsPerSearch = 50

type preparedSearch struct {
	query       string
	normalized  string
	partNumbers []string
	analysis    domain.QueryAnalysis
	limit       int
	offset      int
	sort        domain.SearchSort
	noCache     bool
	vehicle     domain.VehicleHint
	selected    []Connector
	sourceNames []string
}

func (p preparedSearch) cacheRequest() domain.SearchRequest {
	return domain.SearchRequest{
		Query:   p.query,
		Limit:   p.limit,
		Offset:  p.offset,
		Sort:    p.sort,
		Vehicle: p.vehicle,
	}
}

func (s *Service) Search(ctx context.Context, request domain.SearchRequest, sourceNames []string) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request, sourceNames)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	if s.cacheDisabled || request.NoCache {
		return s.executePreparedSearch(ctx, prepared)
	}

	startedAt := time.Now()
	cacheKey := buildSearchCacheKey(prepared.cacheRequest(), prepared.sourceNames)

	if cached, ok, needsRefresh := s.cacheLookup(cacheKey, startedAt); ok {
		// Track popularity on hits too, so the warmer keeps hot queries fresh.
		s.markPopular(cacheKey, prepared.cacheRequest(), prepared.sourceNames, startedAt)
		if needsRefresh {
			s.refreshCacheAsync(cacheKey, prepared)
		}
		cached.Cached = true
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	response, err := s.executePreparedSearch(ctx, prepared)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	s.cacheStore(cacheKey, response, time.Now())
	s.markPopular(cacheKey, prepared.cacheRequest(), prepared.sourceNames, time.Now())
	return response, nil
}

func (s *Service) searchNoCache(ctx context.Context, request domain.SearchRequest, sourceNames []string) (domain.SearchResponse, error) {
	prepared, err := s.prepareSearch(request, sourceNames)
	if err != nil {
		return domain.SearchResponse{}, err
	}
	prepared.noCache = true

	response, err := s.executePreparedSearch(ctx, prepared)
	if err != nil {
		return domain.SearchResponse{}, err
	}

	cacheKey := buildSearchCacheKey(prepared.cacheRequest(), prepared.sourceNames)
	s.cacheStore(cacheKey, response, time.Now())
	return response, nil
}

func (s *Service) refreshCacheAsync(cacheKey string, prepared preparedSearch) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout+2*time.Second)
		defer cancel()
		refreshed := prepared
		refreshed.noCache = true
		response, err := s.executePreparedSearch(ctx, refreshed)
		if err != nil {
			s.cacheClearRefreshing(cacheKey)
			return
		}
		s.cacheStore(cacheKey, response, time.Now())
	}()
}

func (s *Service) prepareSearch(request domain.SearchRequest, sourceNames []string) (preparedSearch, error) {
	query := strings.TrimSpace(request.Query)
	if query == "" {
		return preparedSearch{}, ErrInvalidQuery
	}
	if request.Offset < 0 {
		return preparedSearch{}, ErrInvalidOffset
	}

	limit := request.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	normalized := NormalizeQuery(query)
	partNumbers := ExtractPartNumbers(query)
	analysis := AnalyzeQuery(query)
	analysis = applyVehicleHint(analysis, request.Vehicle)

	selected, err := s.resolveConnectors(sourceNames)
	if err != nil {
		return preparedSearch{}, err
	}

	keys := make([]string, 0, len(selected))
	for _, connector := range selected {
		name := strings.ToLower(strings.TrimSpace(connector.Name()))
		if name != "" {
			keys = append(keys, name)
		}
	}

	return preparedSearch{
		query:       query,
		normalized:  normalized,
		partNumbers: partNumbers,
		analysis:    analysis,
		limit:       limit,
		offset:      request.Offset,
		sort:        domain.NormalizeSort(string(request.Sort)),
		noCache:     request.NoCache,
		vehicle:     request.Vehicle,
		selected:    selected,
		sourceNames: keys,
	}, nil
}

// applyVehicleHint overlays explicit vehicle context onto the parsed
// analysis. Explicit fields win; parsed fields fill the gaps. A query
// that was plain keywords becomes a vehicle_part query once a vehicle
// is known.
func applyVehicleHint(analysis domain.QueryAnalysis, hint domain.VehicleHint) domain.QueryAnalysis {
	if hint.Empty() {
		return analysis
	}
	merged := hint
	if parsed := analysis.Vehicle; parsed != nil {
		if merged.Year == 0 {
			merged.Year = parsed.Year
		}
		if merged.Make == "" {
			merged.Make = parsed.Make
		}
		if merged.Model == "" {
			merged.Model = parsed.Model
		}
		if merged.Trim == "" {
			merged.Trim = parsed.Trim
		}
	}
	if merged.Make != "" {
		merged.Make = canonicalMakeName(merged.Make)
	}
	analysis.Vehicle = &merged
	if analysis.QueryType == domain.QueryTypeKeywords {
		analysis.QueryType = domain.QueryTypeVehiclePart
	}
	return analysis
}

func (s *Service) executePreparedSearch(ctx context.Context, prepared preparedSearch) (domain.SearchResponse, error) {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	statuses := make([]domain.SourceStatus, len(prepared.selected))

	var (
		mu       sync.Mutex
		listings []domain.MarketListing
		salvage  []domain.SalvageHit
		links    []domain.ExternalLink
	)

	merge := func(result domain.SourceResult, source, interchangePN string) {
		for _, listing := range result.Listings {
			if listing.Source == "" {
				listing.Source = source
			}
			if interchangePN != "" {
				listing.MatchedInterchange = interchangePN
			}
			listings = append(listings, listing)
		}
		for _, hit := range result.SalvageHits {
			if hit.Source == "" {
				hit.Source = source
			}
			salvage = append(salvage, hit)
		}
		for _, link := range result.Links {
			if link.Source == "" {
				link.Source = source
			}
			links = append(links, link)
		}
	}

	// runPass fans one query out across the given connector indices.
	// The primary pass fills the status slice; interchange passes only
	// merge extra results.
	runPass := func(indices []int, query string, interchangePN string) {
		sem := semaphore.NewWeighted(maxConcurrentSources)
		var wg sync.WaitGroup
		primary := interchangePN == ""

		for _, i := range indices {
			connector := prepared.selected[i]
			wg.Add(1)
			go func(index int, current Connector) {
				defer wg.Done()

				source := strings.ToLower(strings.TrimSpace(current.Name()))

				setStatus := func(status domain.SourceStatus) {
					if !primary {
						return
					}
					mu.Lock()
					statuses[index] = status
					mu.Unlock()
				}

				if err := sem.Acquire(runCtx, 1); err != nil {
					setStatus(domain.SourceStatus{
						Source:  source,
						Status:  domain.SourceStatusError,
						Details: "context cancelled",
					})
					return
				}
				defer sem.Release(1)

				sourceKey := source + ":" + prepared.normalized
				if primary && !prepared.noCache && !s.cacheDisabled {
					if result, ok := s.sourceCacheLookup(sourceKey, time.Now()); ok {
						mu.Lock()
						statuses[index] = domain.SourceStatus{
							Source:      source,
							Status:      domain.SourceStatusCached,
							ResultCount: result.Count(),
						}
						merge(result, source, "")
						mu.Unlock()
						return
					}
				}

				now := time.Now()
				if blocked, until, lastErr := s.isSourceBlocked(source, now); blocked {
					setStatus(domain.SourceStatus{
						Source:  source,
						Status:  domain.SourceStatusError,
						Details: fmt.Sprintf("source temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr),
					})
					return
				}

				if err := s.waitSourceRateLimit(runCtx, source); err != nil {
					setStatus(domain.SourceStatus{
						Source:  source,
						Status:  domain.SourceStatusError,
						Details: "rate limit wait cancelled",
					})
					return
				}

				sourceStartedAt := time.Now()
				var result domain.SourceResult
				searchErr := RetryWithBackoff(runCtx, DefaultRetryConfig(), func() error {
					var err error
					result, err = current.Search(runCtx, domain.SearchRequest{
						Query: query,
						Limit: s.maxPerSource,
						Sort:  prepared.sort,
					})
					return err
				})
				s.recordSourceResult(source, query, searchErr, time.Since(sourceStartedAt), time.Now())

				if searchErr != nil {
					setStatus(domain.SourceStatus{
						Source:  source,
						Status:  domain.SourceStatusError,
						Details: searchErr.Error(),
					})
					return
				}

				if primary {
					s.sourceCacheStore(sourceKey, result, time.Now())
				}

				mu.Lock()
				if primary {
					statuses[index] = domain.SourceStatus{
						Source:      source,
						Status:      domain.SourceStatusOK,
						ResultCount: result.Count(),
					}
				}
				merge(result, source, interchangePN)
				mu.Unlock()
			}(i, connector)
		}
		wg.Wait()
	}

	all := make([]int, 0, len(prepared.selected))
	for i := range prepared.selected {
		all = append(all, i)
	}
	runPass(all, prepared.query, "")

	// Interchange expansion: for part-number queries, rerun the sources
	// that understand part numbers with known alternates.
	var interchange *domain.InterchangeInfo
	if s.interchangeEnabled && prepared.analysis.QueryType == domain.QueryTypePartNumber && len(prepared.partNumbers) > 0 {
		mu.Lock()
		snapshot := append([]domain.MarketListing(nil), listings...)
		mu.Unlock()
		interchange = buildInterchangeInfo(runCtx, s.catalog, prepared.partNumbers[0], snapshot)

		pnCapable := make([]int, 0, len(prepared.selected))
		for i, connector := range prepared.selected {
			if connector.Info().SupportsPartNumber {
				pnCapable = append(pnCapable, i)
			}
		}
		if len(pnCapable) > 0 {
			for _, alternate := range interchangeSearchTargets(interchange) {
				metrics.InterchangeSearchesTotal.Inc()
				runPass(pnCapable, alternate, alternate)
			}
		}
	}

	for i := range listings {
		listings[i] = normalizeListing(listings[i])
	}
	listings = dedupeListings(listings, s.sourcePriority)
	salvage = FilterSalvageHits(salvage, prepared.analysis)
	links = dedupeLinks(links)
	SortLinksByCategory(links)

	RankListings(listings, prepared.query, prepared.sort, prepared.analysis)

	groups := GroupListings(listings)
	SortGroups(groups, prepared.sort)

	total := len(listings)
	start := prepared.offset
	if start > total {
		start = total
	}
	end := start + prepared.limit
	if end > total {
		end = total
	}
	page := append([]domain.MarketListing(nil), listings[start:end]...)

	intelligence := s.buildIntelligence(runCtx, prepared, listings, interchange)

	warnings := make([]string, 0)
	for _, status := range statuses {
		if status.Status == domain.SourceStatusError {
			warnings = append(warnings, status.Source+": "+status.Details)
		}
	}
	sort.Strings(warnings)

	response := domain.SearchResponse{
		Query:                prepared.query,
		ExtractedPartNumbers: prepared.partNumbers,
		Results: domain.SearchResults{
			MarketListings: page,
			SalvageHits:    salvage,
			ExternalLinks:  links,
		},
		GroupedListings: groups,
		Sources:         statuses,
		Warnings:        warnings,
		Intelligence:    intelligence,
		ElapsedMS:       time.Since(startedAt).Milliseconds(),
		TotalListings:   total,
		Limit:           prepared.limit,
		Offset:          prepared.offset,
		HasMore:         end < total,
		Sort:            prepared.sort,
	}

	s.recordSearchAsync(prepared, listings)
	return response, nil
}

// buildIntelligence assembles the contextual block: analysis, interchange,
// brand comparison and community threads.
func (s *Service) buildIntelligence(ctx context.Context, prepared preparedSearch, listings []domain.MarketListing, interchange *domain.InterchangeInfo) *domain.PartIntelligence {
	brands := make([]string, 0)
	seen := make(map[string]struct{})
	for _, listing := range listings {
		brand := strings.TrimSpace(listing.Brand)
		if brand == "" {
			continue
		}
		key := strings.ToLower(brand)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		brands = append(brands, titleWord(brand))
	}
	sort.Strings(brands)

	comparison := BuildBrandComparison(listings, interchange)

	intelligence := &domain.PartIntelligence{
		QueryType:       prepared.analysis.QueryType,
		VehicleHint:     prepared.analysis.Vehicle,
		PartDescription: prepared.analysis.PartDescription,
		BrandsFound:     brands,
		Interchange:     interchange,
		BrandComparison: comparison,
		Recommendation:  buildRecommendation(comparison),
	}
	if interchange != nil {
		intelligence.CrossReferences = interchange.Alternates
	}

	if s.community != nil && s.community.Enabled() {
		communityCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if threads, err := s.community.Threads(communityCtx, prepared.query); err == nil {
			intelligence.CommunityThreads = threads
		}
	}
	return intelligence
}

// recordSearchAsync writes history, price snapshots and vehicle aliases
// off the request path. Failures are swallowed; the canonical store is
// advisory to search.
func (s *Service) recordSearchAsync(prepared preparedSearch, listings []domain.MarketListing) {
	if s.catalog == nil && s.resolver == nil {
		return
	}

	entry := domain.SearchHistoryEntry{
		Query:       prepared.query,
		QueryType:   prepared.analysis.QueryType,
		ResultCount: len(listings),
		CreatedAt:   time.Now().UTC(),
	}
	snapshots := make([]domain.PriceSnapshot, 0, len(listings))
	for _, listing := range listings {
		if listing.Price <= 0 || len(listing.PartNumbers) == 0 {
			continue
		}
		snapshots = append(snapshots, domain.PriceSnapshot{
			PartNumber: listing.PartNumbers[0],
			Brand:      listing.Brand,
			Source:     listing.Source,
			Price:      listing.Price,
			Shipping:   listing.ShippingCost,
			Condition:  listing.Condition,
			CapturedAt: time.Now().UTC(),
		})
		if len(snapshots) >= maxSnapshotsPerSearch {
			break
		}
	}
	aliasText := ""
	if prepared.analysis.Vehicle != nil {
		aliasText = vehicleAliasText(*prepared.analysis.Vehicle)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.recordSearch(ctx, entry, snapshots, aliasText)
	}()
}

// recordSearch resolves the vehicle alias first so the history row can
// reference the canonical vehicle the query was about, then persists
// history and snapshots.
func (s *Service) recordSearch(ctx context.Context, entry domain.SearchHistoryEntry, snapshots []domain.PriceSnapshot, aliasText string) {
	if s.resolver != nil && aliasText != "" {
		if resolution, err := s.resolver.ResolveVehicleAlias(ctx, aliasText, "search"); err == nil {
			entry.VehicleID = resolution.Alias.VehicleID
			entry.ConfigID = resolution.Alias.ConfigID
		}
	}
	if s.catalog == nil {
		return
	}
	_ = s.catalog.RecordSearch(ctx, entry)
	if len(snapshots) > 0 {
		_ = s.catalog.RecordPriceSnapshots(ctx, snapshots)
	}
}

func vehicleAliasText(hint domain.VehicleHint) string {
	parts := make([]string, 0, 4)
	if hint.Year > 0 {
		parts = append(parts, strconv.Itoa(hint.Year))
	}
	for _, value := range []string{hint.Make, hint.Model, hint.Trim} {
		if value = strings.TrimSpace(value); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Service) resolveConnectors(sourceNames []string) ([]Connector, error) {
	if len(s.connectors) == 0 {
		return nil, ErrNoSources
	}

	if len(sourceNames) == 0 {
		all := make([]Connector, 0, len(s.connectors))
		for name, connector := range s.connectors {
			if !s.sourceEnabled(name) {
				continue
			}
			all = append(all, connector)
		}
		if len(all) == 0 {
			return nil, ErrNoSources
		}
		sort.Slice(all, func(i, j int) bool {
			left := strings.ToLower(all[i].Name())
			right := strings.ToLower(all[j].Name())
			if lp, rp := s.sourcePriority(left), s.sourcePriority(right); lp != rp {
				return lp > rp
			}
			return left < right
		})
		return all, nil
	}

	selected := make([]Connector, 0, len(sourceNames))
	seen := make(map[string]struct{}, len(sourceNames))
	for _, raw := range sourceNames {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		connector, ok := s.connectors[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, connector)
	}
	if len(selected) == 0 {
		return nil, ErrNoSources
	}
	return selected, nil
}
