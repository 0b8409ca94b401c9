package search

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/metrics"
)

const (
	defaultCacheTTL            = 6 * time.Hour
	defaultStaleTTL            = 18 * time.Hour
	defaultWarmInterval        = 5 * time.Minute
	defaultWarmTopQueries      = 12
	defaultCacheMaxEntries     = 400
	defaultPopularMaxEntries   = 200
	defaultSourceCacheEntries  = 1000
	maxConcurrentWarmRefreshes = 3
)

type searchWarmerConfig struct {
	cacheTTL          time.Duration
	staleTTL          time.Duration
	warmInterval      time.Duration
	warmTopQueries    int
	cacheMaxEntries   int
	popularMaxEntries int
}

type cachedSearchResponse struct {
	response    domain.SearchResponse
	updatedAt   time.Time
	expiresAt   time.Time
	staleUntil  time.Time
	refreshing  bool
	refreshOnce sync.Once // one refresh per stale period
}

// cachedSourceResult caches the raw result of one (source, normalized
// query) pair so a failing or slow source can be skipped within the TTL.
type cachedSourceResult struct {
	result    domain.SourceResult
	updatedAt time.Time
	expiresAt time.Time
}

type popularQuery struct {
	request  domain.SearchRequest
	sources  []string
	hits     int
	lastSeen time.Time
	lastWarm time.Time
}

type warmSpec struct {
	key     string
	request domain.SearchRequest
	sources []string
}

func defaultSearchWarmerConfig() searchWarmerConfig {
	return searchWarmerConfig{
		cacheTTL:          defaultCacheTTL,
		staleTTL:          defaultStaleTTL,
		warmInterval:      defaultWarmInterval,
		warmTopQueries:    defaultWarmTopQueries,
		cacheMaxEntries:   defaultCacheMaxEntries,
		popularMaxEntries: defaultPopularMaxEntries,
	}
}

func (s *Service) runWarmer(ctx context.Context) {
	ticker := time.NewTicker(s.warmerCfg.warmInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runWarmCycle(ctx)
		}
	}
}

func (s *Service) runWarmCycle(ctx context.Context) {
	now := time.Now()
	specs := s.collectWarmSpecs(now)
	if len(specs) == 0 {
		return
	}

	// Bounded parallelism keeps a 12-query warm cycle well inside the
	// 5 minute interval without stampeding the sources.
	sem := semaphore.NewWeighted(maxConcurrentWarmRefreshes)
	var wg sync.WaitGroup

	for _, spec := range specs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		wg.Add(1)
		go func(spec warmSpec) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				s.cacheClearRefreshing(spec.key)
				return
			}
			defer sem.Release(1)

			refreshCtx, cancel := context.WithTimeout(ctx, s.timeout+2*time.Second)
			defer cancel()

			_, err := s.searchNoCache(refreshCtx, spec.request, spec.sources)
			if err != nil {
				s.cacheClearRefreshing(spec.key)
			}
		}(spec)
	}

	wg.Wait()
}

func (s *Service) collectWarmSpecs(now time.Time) []warmSpec {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if len(s.popular) == 0 {
		return nil
	}

	keys := make([]string, 0, len(s.popular))
	for key := range s.popular {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		left := s.popular[keys[i]]
		right := s.popular[keys[j]]
		if left.hits != right.hits {
			return left.hits > right.hits
		}
		return left.lastSeen.After(right.lastSeen)
	})

	limit := s.warmerCfg.warmTopQueries
	if limit <= 0 {
		limit = defaultWarmTopQueries
	}
	if len(keys) < limit {
		limit = len(keys)
	}

	specs := make([]warmSpec, 0, limit)
	for _, key := range keys[:limit] {
		pop := s.popular[key]
		if pop == nil {
			continue
		}
		if !pop.lastWarm.IsZero() && now.Sub(pop.lastWarm) < s.warmerCfg.warmInterval/2 {
			continue
		}
		if cacheEntry, ok := s.cache[key]; ok && now.Before(cacheEntry.expiresAt) {
			continue
		}
		pop.lastWarm = now
		if cacheEntry := s.cache[key]; cacheEntry != nil {
			cacheEntry.refreshing = true
		}
		specs = append(specs, warmSpec{
			key:     key,
			request: pop.request,
			sources: append([]string(nil), pop.sources...),
		})
	}
	return specs
}

func (s *Service) cacheLookup(key string, now time.Time) (domain.SearchResponse, bool, bool) {
	// Redis first, when wired.
	if s.redisCache != nil {
		resp, found, err := s.redisCache.Get(context.Background(), key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			// Keep a local copy so the warmer can reason about freshness
			// without re-querying Redis.
			s.cacheStoreMemoryOnly(key, resp, now)
			return resp, true, false
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchResponse{}, false, false
	}

	if now.Before(entry.expiresAt) {
		metrics.CacheHitsTotal.Inc()
		return cloneSearchResponse(entry.response), true, false
	}

	if now.Before(entry.staleUntil) {
		metrics.CacheHitsTotal.Inc()
		// Stale-while-revalidate: serve the stale copy, trigger at most
		// one background refresh per stale period.
		needsRefresh := false
		entry.refreshOnce.Do(func() {
			needsRefresh = true
			entry.refreshing = true
		})
		return cloneSearchResponse(entry.response), true, needsRefresh
	}

	metrics.CacheMissesTotal.Inc()
	delete(s.cache, key)
	delete(s.popular, key)
	return domain.SearchResponse{}, false, false
}

func (s *Service) cacheStore(key string, response domain.SearchResponse, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	if s.redisCache != nil {
		_ = s.redisCache.Set(context.Background(), key, response, cacheTTL)
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
	}

	s.trimCacheLocked(now)
}

func (s *Service) cacheStoreMemoryOnly(key string, response domain.SearchResponse, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	staleTTL := s.warmerCfg.staleTTL
	if staleTTL <= cacheTTL {
		staleTTL = cacheTTL * 3
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = &cachedSearchResponse{
		response:   cloneSearchResponse(response),
		updatedAt:  now,
		expiresAt:  now.Add(cacheTTL),
		staleUntil: now.Add(staleTTL),
	}
	s.trimCacheLocked(now)
}

func (s *Service) cacheClearRefreshing(key string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if entry := s.cache[key]; entry != nil {
		entry.refreshing = false
	}
}

func (s *Service) sourceCacheLookup(key string, now time.Time) (domain.SourceResult, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	entry, ok := s.sourceCache[key]
	if !ok || now.After(entry.expiresAt) {
		metrics.SourceCacheMissesTotal.Inc()
		return domain.SourceResult{}, false
	}
	metrics.SourceCacheHitsTotal.Inc()
	return cloneSourceResult(entry.result), true
}

func (s *Service) sourceCacheStore(key string, result domain.SourceResult, now time.Time) {
	cacheTTL := s.warmerCfg.cacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.sourceCache[key] = &cachedSourceResult{
		result:    cloneSourceResult(result),
		updatedAt: now,
		expiresAt: now.Add(cacheTTL),
	}

	if len(s.sourceCache) <= defaultSourceCacheEntries {
		return
	}
	type pair struct {
		key   string
		entry *cachedSourceResult
	}
	items := make([]pair, 0, len(s.sourceCache))
	for cacheKey, entry := range s.sourceCache {
		items = append(items, pair{key: cacheKey, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-defaultSourceCacheEntries; i++ {
		delete(s.sourceCache, items[i].key)
	}
}

func (s *Service) markPopular(key string, request domain.SearchRequest, sources []string, now time.Time) {
	// Warm first-page requests only; deeper pages are cheap once the
	// first page is warm.
	if request.Offset > 0 {
		return
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	pop, ok := s.popular[key]
	if !ok {
		s.popular[key] = &popularQuery{
			request:  request,
			sources:  append([]string(nil), sources...),
			hits:     1,
			lastSeen: now,
		}
	} else {
		pop.hits++
		pop.lastSeen = now
		pop.request = request
		pop.sources = append(pop.sources[:0], sources...)
	}

	limit := s.warmerCfg.popularMaxEntries
	if limit <= 0 {
		limit = defaultPopularMaxEntries
	}
	if len(s.popular) <= limit {
		return
	}

	// Drop least popular + oldest query.
	type pair struct {
		key   string
		value *popularQuery
	}
	items := make([]pair, 0, len(s.popular))
	for popKey, value := range s.popular {
		items = append(items, pair{key: popKey, value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		left := items[i].value
		right := items[j].value
		if left.hits != right.hits {
			return left.hits < right.hits
		}
		return left.lastSeen.Before(right.lastSeen)
	})
	for i := 0; i < len(items)-limit; i++ {
		delete(s.popular, items[i].key)
	}
}

func (s *Service) trimCacheLocked(now time.Time) {
	maxEntries := s.warmerCfg.cacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	for key, entry := range s.cache {
		if now.After(entry.staleUntil) {
			delete(s.cache, key)
		}
	}

	if len(s.cache) <= maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *cachedSearchResponse
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-maxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneSearchResponse(response domain.SearchResponse) domain.SearchResponse {
	cloned := response
	cloned.ExtractedPartNumbers = append([]string(nil), response.ExtractedPartNumbers...)
	cloned.Results.MarketListings = cloneListings(response.Results.MarketListings)
	if response.Results.SalvageHits != nil {
		cloned.Results.SalvageHits = make([]domain.SalvageHit, len(response.Results.SalvageHits))
		for i, hit := range response.Results.SalvageHits {
			copied := hit
			if hit.LastSeen != nil {
				value := *hit.LastSeen
				copied.LastSeen = &value
			}
			cloned.Results.SalvageHits[i] = copied
		}
	}
	cloned.Results.ExternalLinks = append([]domain.ExternalLink(nil), response.Results.ExternalLinks...)
	if response.GroupedListings != nil {
		cloned.GroupedListings = make([]domain.ListingGroup, len(response.GroupedListings))
		for i, group := range response.GroupedListings {
			copied := group
			copied.Offers = append([]domain.Offer(nil), group.Offers...)
			cloned.GroupedListings[i] = copied
		}
	}
	cloned.Sources = append([]domain.SourceStatus(nil), response.Sources...)
	cloned.Warnings = append([]string(nil), response.Warnings...)
	if response.Intelligence != nil {
		intelligence := *response.Intelligence
		if response.Intelligence.VehicleHint != nil {
			hint := *response.Intelligence.VehicleHint
			intelligence.VehicleHint = &hint
		}
		if response.Intelligence.Interchange != nil {
			info := *response.Intelligence.Interchange
			info.Supersessions = append([]string(nil), info.Supersessions...)
			info.GroupMembers = append([]string(nil), info.GroupMembers...)
			info.Alternates = append([]string(nil), info.Alternates...)
			info.Sources = append([]string(nil), info.Sources...)
			if info.BrandNumbers != nil {
				brandNumbers := make(map[string][]string, len(info.BrandNumbers))
				for brand, numbers := range info.BrandNumbers {
					brandNumbers[brand] = append([]string(nil), numbers...)
				}
				info.BrandNumbers = brandNumbers
			}
			intelligence.Interchange = &info
		}
		intelligence.CrossReferences = append([]string(nil), response.Intelligence.CrossReferences...)
		intelligence.BrandsFound = append([]string(nil), response.Intelligence.BrandsFound...)
		intelligence.BrandComparison = append([]domain.BrandSummary(nil), response.Intelligence.BrandComparison...)
		intelligence.CommunityThreads = append([]domain.CommunityThread(nil), response.Intelligence.CommunityThreads...)
		cloned.Intelligence = &intelligence
	}
	return cloned
}

func cloneListings(listings []domain.MarketListing) []domain.MarketListing {
	if listings == nil {
		return nil
	}
	cloned := make([]domain.MarketListing, len(listings))
	for i, listing := range listings {
		copied := listing
		copied.PartNumbers = append([]string(nil), listing.PartNumbers...)
		copied.SecondarySources = append([]string(nil), listing.SecondarySources...)
		cloned[i] = copied
	}
	return cloned
}

func cloneSourceResult(result domain.SourceResult) domain.SourceResult {
	cloned := result
	cloned.Listings = cloneListings(result.Listings)
	if result.SalvageHits != nil {
		cloned.SalvageHits = make([]domain.SalvageHit, len(result.SalvageHits))
		for i, hit := range result.SalvageHits {
			copied := hit
			if hit.LastSeen != nil {
				value := *hit.LastSeen
				copied.LastSeen = &value
			}
			cloned.SalvageHits[i] = copied
		}
	}
	cloned.Links = append([]domain.ExternalLink(nil), result.Links...)
	return cloned
}

func buildSearchCacheKey(request domain.SearchRequest, sources []string) string {
	names := normalizeSourceNames(sources)
	segments := []string{
		"search:overall",
		"q=" + NormalizeQuery(request.Query),
		"l=" + strconv.Itoa(request.Limit),
		"o=" + strconv.Itoa(request.Offset),
		"sort=" + string(request.Sort),
		"s=" + strings.Join(names, ","),
	}
	// Explicit vehicle context changes the result set, so it is part of
	// the key. No segment at all when absent.
	if !request.Vehicle.Empty() {
		segments = append(segments, "v="+NormalizeQuery(vehicleAliasText(request.Vehicle)))
	}
	return strings.Join(segments, "|")
}

func normalizeSourceNames(sourceNames []string) []string {
	if len(sourceNames) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sourceNames))
	names := make([]string, 0, len(sourceNames))
	for _, raw := range sourceNames {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		names = append(names, value)
	}
	sort.Strings(names)
	return names
}
