// Package registry tracks the configured part sources and their runtime
// state. Seed data comes from a JSON file or the built-in defaults;
// enable/priority overrides can be persisted through a runtime store so
// operator changes survive restarts.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"partlogic/searchservice/internal/domain"
)

var ErrUnknownSource = errors.New("unknown source")

// Source is one searchable site: its identity plus capability flags.
type Source struct {
	Name               string `json:"name"`
	Label              string `json:"label"`
	Domain             string `json:"domain,omitempty"`
	Category           string `json:"category,omitempty"`
	SourceType         string `json:"sourceType"`
	Enabled            bool   `json:"enabled"`
	Priority           int    `json:"priority"`
	SupportsVIN        bool   `json:"supportsVin,omitempty"`
	SupportsPartNumber bool   `json:"supportsPartNumberSearch,omitempty"`
}

func (s Source) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:               s.Name,
		Label:              s.Label,
		Category:           s.Category,
		SourceType:         s.SourceType,
		Enabled:            s.Enabled,
		Priority:           s.Priority,
		SupportsVIN:        s.SupportsVIN,
		SupportsPartNumber: s.SupportsPartNumber,
	}
}

type Registry struct {
	mu      sync.RWMutex
	sources map[string]*Source
	store   RuntimeStateStore
}

type Option func(*Registry)

func WithRuntimeStore(store RuntimeStateStore) Option {
	return func(r *Registry) {
		r.store = store
	}
}

func New(sources []Source, opts ...Option) *Registry {
	registry := &Registry{
		sources: make(map[string]*Source, len(sources)),
	}
	for _, source := range sources {
		name := strings.ToLower(strings.TrimSpace(source.Name))
		if name == "" {
			continue
		}
		source.Name = name
		source.Domain = NormalizeDomain(source.Domain)
		if source.Label == "" {
			source.Label = name
		}
		copied := source
		registry.sources[name] = &copied
	}
	for _, opt := range opts {
		opt(registry)
	}
	return registry
}

// LoadFile reads seed sources from a JSON file; an empty path falls back
// to the built-in defaults.
func LoadFile(path string) ([]Source, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultSources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source registry: %w", err)
	}
	var sources []Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("parse source registry: %w", err)
	}
	if len(sources) == 0 {
		return nil, errors.New("source registry file is empty")
	}
	return sources, nil
}

// DefaultSources is the seed registry used when no file is configured.
func DefaultSources() []Source {
	return []Source{
		{Name: "ebay", Label: "eBay Motors", Domain: "ebay.com", Category: "marketplace", SourceType: "api", Enabled: true, Priority: 90, SupportsPartNumber: true},
		{Name: "rockauto", Label: "RockAuto", Domain: "rockauto.com", Category: "retailer", SourceType: "api", Enabled: true, Priority: 80, SupportsPartNumber: true},
		{Name: "carparts", Label: "CarParts.com", Domain: "carparts.com", Category: "retailer", SourceType: "api", Enabled: true, Priority: 60, SupportsPartNumber: true},
		{Name: "partsouq", Label: "PartSouq", Domain: "partsouq.com", Category: "retailer", SourceType: "api", Enabled: true, Priority: 50, SupportsVIN: true, SupportsPartNumber: true},
		{Name: "row52", Label: "Row52", Domain: "row52.com", Category: "salvage", SourceType: "api", Enabled: true, Priority: 40},
	}
}

// ApplyRuntimeState overlays persisted operator overrides onto the seed
// registry. Missing store or load errors leave the seed state untouched.
func (r *Registry) ApplyRuntimeState(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	states, err := r.store.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, state := range states {
		source, ok := r.sources[name]
		if !ok {
			continue
		}
		if state.Enabled != nil {
			source.Enabled = *state.Enabled
		}
		if state.Priority != nil {
			source.Priority = *state.Priority
		}
	}
	return nil
}

// Update applies an operator patch to one source and persists it.
func (r *Registry) Update(ctx context.Context, name string, enabled *bool, priority *int) (Source, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	source, ok := r.sources[key]
	if !ok {
		r.mu.Unlock()
		return Source{}, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	if enabled != nil {
		source.Enabled = *enabled
	}
	if priority != nil {
		source.Priority = *priority
	}
	updated := *source
	r.mu.Unlock()

	if r.store != nil {
		state := RuntimeSourceState{Enabled: enabled, Priority: priority}
		if err := r.store.Save(ctx, key, state); err != nil {
			return updated, fmt.Errorf("persist source state: %w", err)
		}
	}
	return updated, nil
}

func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	source, ok := r.sources[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Source{}, false
	}
	return *source, true
}

// List returns all sources, highest priority first.
func (r *Registry) List() []Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Source, 0, len(r.sources))
	for _, source := range r.sources {
		items = append(items, *source)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// Enabled returns the names of enabled sources, highest priority first.
func (r *Registry) Enabled() []string {
	names := make([]string, 0)
	for _, source := range r.List() {
		if source.Enabled {
			names = append(names, source.Name)
		}
	}
	return names
}

func (r *Registry) IsEnabled(name string) bool {
	source, ok := r.Get(name)
	return ok && source.Enabled
}

func (r *Registry) Priority(name string) int {
	source, ok := r.Get(name)
	if !ok {
		return 0
	}
	return source.Priority
}

// NormalizeDomain reduces a URL or hostname to a bare lowercase domain:
// scheme, path and a leading www. are stripped.
func NormalizeDomain(raw string) string {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	value = strings.TrimPrefix(value, "http://")
	value = strings.TrimPrefix(value, "https://")
	if i := strings.IndexAny(value, "/?#"); i >= 0 {
		value = value[:i]
	}
	if i := strings.Index(value, "@"); i >= 0 {
		value = value[i+1:]
	}
	if i := strings.Index(value, ":"); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimPrefix(value, "www.")
	return strings.Trim(value, ".")
}
