package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"partlogic/searchservice/internal/canonical"
	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/enrich/vin"
	"partlogic/searchservice/internal/registry"
	"partlogic/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest, sources []string) (domain.SearchResponse, error)
	Sources() []domain.SourceInfo
	SourceDiagnostics() []domain.SourceDiagnostics
}

// SourceAdmin mutates source runtime state (enable/disable, priority).
type SourceAdmin interface {
	Update(ctx context.Context, name string, enabled *bool, priority *int) (registry.Source, error)
}

// CanonicalStore is the subset of the canonical database the API reads.
type CanonicalStore interface {
	ListVehicles(ctx context.Context, limit int) ([]domain.Vehicle, error)
	ListAliases(ctx context.Context, limit int) ([]domain.VehicleAlias, error)
	ListUnlinkedAliases(ctx context.Context, limit int) ([]domain.VehicleAlias, error)
	LinkAlias(ctx context.Context, aliasID, vehicleID int64, configID *int64, confidence int) error
	LookupPartNumbers(ctx context.Context, value string) ([]domain.PartNumber, error)
	InterchangeFor(ctx context.Context, partNumber string) (domain.InterchangeInfo, error)
	CheckFitment(ctx context.Context, partNumber string, vehicleID int64) (domain.FitmentCheck, error)
	RecentSearches(ctx context.Context, limit int) ([]domain.SearchHistoryEntry, error)
	PriceHistory(ctx context.Context, partNumber string, limit int) ([]domain.PriceSnapshot, error)
	SaveSearch(ctx context.Context, query string, sort domain.SearchSort) (domain.SavedSearch, error)
	ListSavedSearches(ctx context.Context) ([]domain.SavedSearch, error)
	DeleteSavedSearch(ctx context.Context, id string) error
	CreatePriceAlert(ctx context.Context, alert domain.PriceAlert) (domain.PriceAlert, error)
	ListPriceAlerts(ctx context.Context, pendingOnly bool) ([]domain.PriceAlert, error)
	DeletePriceAlert(ctx context.Context, id int64) error
}

type AliasResolver interface {
	ResolveVehicleAlias(ctx context.Context, aliasText, sourceDomain string) (domain.AliasResolution, error)
	ReconcileUnlinkedAliases(ctx context.Context, limit int) (int, error)
}

type VINDecoder interface {
	Decode(ctx context.Context, raw string) (vin.DecodedVIN, error)
}

type Server struct {
	search    SearchService
	sources   SourceAdmin
	canonical CanonicalStore
	resolver  AliasResolver
	vin       VINDecoder
	logger    *slog.Logger
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithSourceAdmin(admin SourceAdmin) ServerOption {
	return func(s *Server) {
		s.sources = admin
	}
}

func WithCanonicalStore(store CanonicalStore) ServerOption {
	return func(s *Server) {
		s.canonical = store
	}
}

func WithAliasResolver(resolver AliasResolver) ServerOption {
	return func(s *Server) {
		s.resolver = resolver
	}
}

func WithVINDecoder(decoder VINDecoder) ServerOption {
	return func(s *Server) {
		s.vin = decoder
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search: searchService,
		logger: slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/sources/health", s.handleSourcesHealth)
	mux.HandleFunc("/canonical/vehicles", s.handleVehicles)
	mux.HandleFunc("/canonical/aliases", s.handleAliases)
	mux.HandleFunc("/canonical/aliases/", s.handleAliasByID)
	mux.HandleFunc("/canonical/reconcile", s.handleReconcile)
	mux.HandleFunc("/canonical/part-numbers", s.handlePartNumbers)
	mux.HandleFunc("/canonical/interchange", s.handleInterchange)
	mux.HandleFunc("/canonical/fitments", s.handleFitments)
	mux.HandleFunc("/vin/", s.handleVIN)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/history/prices", s.handlePriceHistory)
	mux.HandleFunc("/saved-searches", s.handleSavedSearches)
	mux.HandleFunc("/saved-searches/", s.handleSavedSearchByID)
	mux.HandleFunc("/price-alerts", s.handlePriceAlerts)
	mux.HandleFunc("/price-alerts/", s.handlePriceAlertByID)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "parts-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	offset, err := parseNonNegativeInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid offset")
		return
	}

	sources := parseCSV(r.URL.Query().Get("sources"))
	sortMode := domain.NormalizeSort(strings.TrimSpace(r.URL.Query().Get("sort")))
	noCache := parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache"))

	vehicle, ok := s.parseVehicleParams(w, r)
	if !ok {
		return
	}

	response, err := s.search.Search(r.Context(), domain.SearchRequest{
		Query:   query,
		Limit:   limit,
		Offset:  offset,
		Sort:    sortMode,
		NoCache: noCache,
		Vehicle: vehicle,
	}, sources)
	if err != nil {
		s.logger.Warn("search request failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("sources", sources),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, search.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrInvalidOffset):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrUnknownSource):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, search.ErrNoSources):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "search failed")
		}
		return
	}

	failedSources := make([]string, 0, len(response.Sources))
	for _, sourceStatus := range response.Sources {
		if sourceStatus.Status == domain.SourceStatusError {
			failedSources = append(failedSources, sourceStatus.Source)
		}
	}
	s.logger.Info("search completed",
		slog.String("query", truncate(query, 80)),
		slog.Any("sources", sources),
		slog.Int("totalListings", response.TotalListings),
		slog.Int64("elapsedMs", response.ElapsedMS),
		slog.Int("failedSources", len(failedSources)),
	)
	if len(failedSources) > 0 {
		s.logger.Warn("search sources partially failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("failedSources", failedSources),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

// parseVehicleParams reads the optional explicit vehicle context of a
// search: vehicle_make/vehicle_model/vehicle_year/vehicle_trim, or a
// vin to decode. Explicit fields win over the decoded VIN. Reports
// false after writing an error response.
func (s *Server) parseVehicleParams(w http.ResponseWriter, r *http.Request) (domain.VehicleHint, bool) {
	q := r.URL.Query()
	hint := domain.VehicleHint{
		Make:  strings.TrimSpace(q.Get("vehicle_make")),
		Model: strings.TrimSpace(q.Get("vehicle_model")),
		Trim:  strings.TrimSpace(q.Get("vehicle_trim")),
	}
	if rawYear := strings.TrimSpace(q.Get("vehicle_year")); rawYear != "" {
		year, err := strconv.Atoi(rawYear)
		if err != nil || year < 1900 || year > 2100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid vehicle_year")
			return domain.VehicleHint{}, false
		}
		hint.Year = year
	}
	rawVIN := strings.TrimSpace(q.Get("vin"))
	if rawVIN == "" {
		return hint, true
	}
	if s.vin == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "vin decoder is not configured")
		return domain.VehicleHint{}, false
	}
	decoded, err := s.vin.Decode(r.Context(), rawVIN)
	if err != nil {
		if errors.Is(err, vin.ErrInvalidVIN) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return domain.VehicleHint{}, false
		}
		// Decoder outage should not break the search; continue with
		// whatever explicit fields were given.
		s.logger.Warn("vin decode for search failed",
			slog.String("vin", truncate(rawVIN, 20)),
			slog.String("error", err.Error()),
		)
		return hint, true
	}
	if hint.Make == "" {
		hint.Make = decoded.Make
	}
	if hint.Model == "" {
		hint.Model = decoded.Model
	}
	if hint.Trim == "" {
		hint.Trim = decoded.Trim
	}
	if hint.Year == 0 {
		hint.Year = decoded.Year
	}
	return hint, true
}

type sourceUpdateRequest struct {
	Name     string `json:"name"`
	Enabled  *bool  `json:"enabled,omitempty"`
	Priority *int   `json:"priority,omitempty"`
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/sources" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if s.search == nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sources": s.search.Sources()})
	case http.MethodPatch:
		if s.sources == nil {
			writeError(w, http.StatusNotImplemented, "not_supported", "source administration is not configured")
			return
		}
		var patch sourceUpdateRequest
		if err := decodeJSONBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if strings.TrimSpace(patch.Name) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "source name is required")
			return
		}
		if patch.Enabled == nil && patch.Priority == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
			return
		}
		updated, err := s.sources.Update(r.Context(), patch.Name, patch.Enabled, patch.Priority)
		if err != nil {
			if errors.Is(err, registry.ErrUnknownSource) {
				writeError(w, http.StatusNotFound, "not_found", err.Error())
				return
			}
			s.logger.Warn("source update failed",
				slog.String("source", patch.Name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "source update failed")
			return
		}
		s.logger.Info("source updated",
			slog.String("source", updated.Name),
			slog.Bool("enabled", updated.Enabled),
			slog.Int("priority", updated.Priority),
		)
		writeJSON(w, http.StatusOK, updated.Info())
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSourcesHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.search.SourceDiagnostics()})
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	vehicles, err := s.canonical.ListVehicles(r.Context(), limit)
	if err != nil {
		s.logger.Warn("vehicle list failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "vehicle list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles})
}

type aliasResolveRequest struct {
	AliasText    string `json:"aliasText"`
	SourceDomain string `json:"sourceDomain,omitempty"`
}

func (s *Server) handleAliases(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if s.canonical == nil {
			writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
			return
		}
		limit, err := parsePositiveInt(r, "limit", 100)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		var aliases []domain.VehicleAlias
		if parseOptionalBool(r.URL.Query().Get("unlinkedOnly")) {
			aliases, err = s.canonical.ListUnlinkedAliases(r.Context(), limit)
		} else {
			aliases, err = s.canonical.ListAliases(r.Context(), limit)
		}
		if err != nil {
			s.logger.Warn("alias list failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "alias list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"aliases": aliases})
	case http.MethodPost:
		if s.resolver == nil {
			writeError(w, http.StatusNotImplemented, "not_supported", "alias resolver is not configured")
			return
		}
		var payload aliasResolveRequest
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if strings.TrimSpace(payload.AliasText) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "aliasText is required")
			return
		}
		resolution, err := s.resolver.ResolveVehicleAlias(r.Context(), payload.AliasText, payload.SourceDomain)
		if err != nil {
			s.logger.Warn("alias resolution failed",
				slog.String("alias", truncate(payload.AliasText, 80)),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "internal_error", "alias resolution failed")
			return
		}
		status := http.StatusOK
		if resolution.Created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resolution)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type aliasLinkRequest struct {
	VehicleID  int64  `json:"vehicleId"`
	ConfigID   *int64 `json:"configId,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
}

// handleAliasByID is the manual override: an operator links an alias to a
// vehicle directly, bypassing the parser. Links stay monotonic, a linked
// alias cannot be repointed.
func (s *Server) handleAliasByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPatch {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	rawID := strings.TrimPrefix(r.URL.Path, "/canonical/aliases/")
	aliasID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || aliasID <= 0 {
		http.NotFound(w, r)
		return
	}
	var payload aliasLinkRequest
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if payload.VehicleID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "vehicleId is required")
		return
	}
	if payload.ConfigID != nil && *payload.ConfigID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid configId")
		return
	}
	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 100
	}
	if err := s.canonical.LinkAlias(r.Context(), aliasID, payload.VehicleID, payload.ConfigID, confidence); err != nil {
		if errors.Is(err, canonical.ErrAlreadyExist) {
			writeError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		s.logger.Warn("alias link failed",
			slog.Int64("aliasId", aliasID),
			slog.Int64("vehicleId", payload.VehicleID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "alias link failed")
		return
	}
	s.logger.Info("alias linked manually",
		slog.Int64("aliasId", aliasID),
		slog.Int64("vehicleId", payload.VehicleID),
		slog.Int("confidence", confidence),
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "alias resolver is not configured")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 200)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	linked, err := s.resolver.ReconcileUnlinkedAliases(r.Context(), limit)
	if err != nil {
		s.logger.Warn("alias reconciliation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "alias reconciliation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"linked": linked})
}

func (s *Server) handlePartNumbers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	value := strings.TrimSpace(r.URL.Query().Get("value"))
	if value == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "value is required")
		return
	}
	numbers, err := s.canonical.LookupPartNumbers(r.Context(), value)
	if err != nil {
		s.logger.Warn("part number lookup failed",
			slog.String("value", truncate(value, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "part number lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"partNumbers": numbers})
}

func (s *Server) handleInterchange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	partNumber := strings.TrimSpace(r.URL.Query().Get("partNumber"))
	if partNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "partNumber is required")
		return
	}
	info, err := s.canonical.InterchangeFor(r.Context(), partNumber)
	if err != nil {
		s.logger.Warn("interchange lookup failed",
			slog.String("partNumber", truncate(partNumber, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "interchange lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleFitments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	partNumber := strings.TrimSpace(r.URL.Query().Get("partNumber"))
	if partNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "partNumber is required")
		return
	}
	vehicleID := int64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("vehicleId")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid vehicleId")
			return
		}
		vehicleID = parsed
	}
	check, err := s.canonical.CheckFitment(r.Context(), partNumber, vehicleID)
	if err != nil {
		s.logger.Warn("fitment check failed",
			slog.String("partNumber", truncate(partNumber, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "fitment check failed")
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleVIN(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.vin == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "vin decoder is not configured")
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/vin/")
	if raw == "" || strings.Contains(raw, "/") {
		http.NotFound(w, r)
		return
	}
	decoded, err := s.vin.Decode(r.Context(), raw)
	if err != nil {
		if errors.Is(err, vin.ErrInvalidVIN) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.Warn("vin decode failed",
			slog.String("vin", truncate(raw, 20)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "upstream_error", "vin decode failed")
		return
	}
	writeJSON(w, http.StatusOK, decoded)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/history" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	entries, err := s.canonical.RecentSearches(r.Context(), limit)
	if err != nil {
		s.logger.Warn("history lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"searches": entries})
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	partNumber := strings.TrimSpace(r.URL.Query().Get("partNumber"))
	if partNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "partNumber is required")
		return
	}
	limit, err := parsePositiveInt(r, "limit", 100)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
		return
	}
	snapshots, err := s.canonical.PriceHistory(r.Context(), partNumber, limit)
	if err != nil {
		s.logger.Warn("price history lookup failed",
			slog.String("partNumber", truncate(partNumber, 80)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "price history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"partNumber": partNumber, "snapshots": snapshots})
}

type savedSearchRequest struct {
	Query string `json:"query"`
	Sort  string `json:"sort,omitempty"`
}

func (s *Server) handleSavedSearches(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/saved-searches" {
		http.NotFound(w, r)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		saved, err := s.canonical.ListSavedSearches(r.Context())
		if err != nil {
			s.logger.Warn("saved search list failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "saved search list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"savedSearches": saved})
	case http.MethodPost:
		var payload savedSearchRequest
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		query := strings.TrimSpace(payload.Query)
		if query == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
			return
		}
		if len(query) > maxQueryLength {
			writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
			return
		}
		saved, err := s.canonical.SaveSearch(r.Context(), query, domain.NormalizeSort(payload.Sort))
		if err != nil {
			s.logger.Warn("saved search create failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "saved search create failed")
			return
		}
		writeJSON(w, http.StatusCreated, saved)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSavedSearchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/saved-searches/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	if err := s.canonical.DeleteSavedSearch(r.Context(), id); err != nil {
		if errors.Is(err, canonical.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "saved search not found")
			return
		}
		s.logger.Warn("saved search delete failed",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "saved search delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type priceAlertRequest struct {
	PartNumber    string  `json:"partNumber"`
	Brand         string  `json:"brand,omitempty"`
	TargetPrice   float64 `json:"targetPrice"`
	SavedSearchID string  `json:"savedSearchId,omitempty"`
}

func (s *Server) handlePriceAlerts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/price-alerts" {
		http.NotFound(w, r)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		pendingOnly := parseOptionalBool(r.URL.Query().Get("pendingOnly"))
		alerts, err := s.canonical.ListPriceAlerts(r.Context(), pendingOnly)
		if err != nil {
			s.logger.Warn("price alert list failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "price alert list failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	case http.MethodPost:
		var payload priceAlertRequest
		if err := decodeJSONBody(r, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if strings.TrimSpace(payload.PartNumber) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "partNumber is required")
			return
		}
		if payload.TargetPrice <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "targetPrice must be positive")
			return
		}
		alert, err := s.canonical.CreatePriceAlert(r.Context(), domain.PriceAlert{
			PartNumber:    payload.PartNumber,
			Brand:         payload.Brand,
			TargetPrice:   payload.TargetPrice,
			SavedSearchID: payload.SavedSearchID,
		})
		if err != nil {
			s.logger.Warn("price alert create failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "price alert create failed")
			return
		}
		writeJSON(w, http.StatusCreated, alert)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePriceAlertByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.canonical == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "canonical store is not configured")
		return
	}
	rawID := strings.TrimPrefix(r.URL.Path, "/price-alerts/")
	alertID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || alertID <= 0 {
		http.NotFound(w, r)
		return
	}
	if err := s.canonical.DeletePriceAlert(r.Context(), alertID); err != nil {
		if errors.Is(err, canonical.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "price alert not found")
			return
		}
		s.logger.Warn("price alert delete failed",
			slog.Int64("alertId", alertID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "price alert delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func parseNonNegativeInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		return 0, errors.New("invalid value")
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
