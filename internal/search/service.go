package search

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"partlogic/searchservice/internal/domain"
)

var (
	ErrInvalidQuery  = errors.New("query is required")
	ErrNoSources     = errors.New("no search sources configured")
	ErrUnknownSource = errors.New("unknown source")
	ErrInvalidOffset = errors.New("offset must be >= 0")
)

// Connector queries one external parts source.
type Connector interface {
	Name() string
	Info() domain.SourceInfo
	Search(ctx context.Context, request domain.SearchRequest) (domain.SourceResult, error)
}

// SourceDirectory exposes runtime enable/priority state for sources.
// Implemented by the registry.
type SourceDirectory interface {
	IsEnabled(name string) bool
	Priority(name string) int
}

// CommunityClient fetches discussion threads about a part. Optional;
// failures degrade to no threads.
type CommunityClient interface {
	Enabled() bool
	Threads(ctx context.Context, query string) ([]domain.CommunityThread, error)
}

type Service struct {
	connectors    map[string]Connector
	directory     SourceDirectory
	timeout       time.Duration
	maxPerSource  int
	cacheDisabled bool

	interchangeEnabled bool
	catalog            PartsCatalog
	resolver           VehicleResolver
	community          CommunityClient

	cacheMu     sync.RWMutex
	cache       map[string]*cachedSearchResponse
	sourceCache map[string]*cachedSourceResult
	popular     map[string]*popularQuery
	warmerCfg   searchWarmerConfig
	warmerRun   atomic.Bool
	redisCache  *RedisCacheBackend

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	healthMu sync.Mutex
	health   map[string]*sourceHealth
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.warmerCfg.cacheTTL = ttl
			s.warmerCfg.staleTTL = ttl * 3
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithSourceDirectory(directory SourceDirectory) ServiceOption {
	return func(s *Service) {
		s.directory = directory
	}
}

func WithMaxPerSource(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.maxPerSource = limit
		}
	}
}

func WithInterchange(enabled bool) ServiceOption {
	return func(s *Service) {
		s.interchangeEnabled = enabled
	}
}

func WithCatalog(catalog PartsCatalog) ServiceOption {
	return func(s *Service) {
		s.catalog = catalog
	}
}

func WithVehicleResolver(resolver VehicleResolver) ServiceOption {
	return func(s *Service) {
		s.resolver = resolver
	}
}

func WithCommunity(client CommunityClient) ServiceOption {
	return func(s *Service) {
		s.community = client
	}
}

func NewService(connectors []Connector, timeout time.Duration, opts ...ServiceOption) *Service {
	byName := make(map[string]Connector, len(connectors))
	for _, connector := range connectors {
		if connector == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(connector.Name()))
		if name == "" {
			continue
		}
		byName[name] = connector
	}

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	svc := &Service{
		connectors:   byName,
		timeout:      timeout,
		maxPerSource: 20,
		cache:        make(map[string]*cachedSearchResponse),
		sourceCache:  make(map[string]*cachedSourceResult),
		popular:      make(map[string]*popularQuery),
		warmerCfg:    defaultSearchWarmerConfig(),
		limiters:     make(map[string]*rate.Limiter),
		health:       make(map[string]*sourceHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) StartBackground(ctx context.Context) {
	if s.warmerRun.CompareAndSwap(false, true) {
		go s.runWarmer(ctx)
	}
}

// Sources lists every registered connector, annotated with runtime state
// from the directory when one is configured.
func (s *Service) Sources() []domain.SourceInfo {
	if len(s.connectors) == 0 {
		return nil
	}
	items := make([]domain.SourceInfo, 0, len(s.connectors))
	for _, connector := range s.connectors {
		info := connector.Info()
		if info.Name == "" {
			info.Name = strings.ToLower(strings.TrimSpace(connector.Name()))
		}
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			continue
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		if s.directory != nil {
			info.Enabled = s.directory.IsEnabled(info.Name)
			info.Priority = s.directory.Priority(info.Name)
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) sourceEnabled(name string) bool {
	if s.directory == nil {
		return true
	}
	return s.directory.IsEnabled(name)
}

func (s *Service) sourcePriority(name string) int {
	if s.directory == nil {
		return 0
	}
	return s.directory.Priority(name)
}

// waitSourceRateLimit smooths request bursts against a single source.
// Each source gets its own token bucket.
func (s *Service) waitSourceRateLimit(ctx context.Context, source string) error {
	s.limiterMu.Lock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(2), 4)
		s.limiters[source] = limiter
	}
	s.limiterMu.Unlock()
	return limiter.Wait(ctx)
}
