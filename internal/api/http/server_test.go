package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"partlogic/searchservice/internal/canonical"
	"partlogic/searchservice/internal/domain"
	"partlogic/searchservice/internal/enrich/vin"
	"partlogic/searchservice/internal/registry"
	"partlogic/searchservice/internal/search"
)

type fakeSearchService struct {
	response    domain.SearchResponse
	err         error
	sources     []domain.SourceInfo
	diagnostics []domain.SourceDiagnostics

	lastRequest domain.SearchRequest
	lastSources []string
}

func (f *fakeSearchService) Search(_ context.Context, request domain.SearchRequest, sources []string) (domain.SearchResponse, error) {
	f.lastRequest = request
	f.lastSources = sources
	if f.err != nil {
		return domain.SearchResponse{}, f.err
	}
	return f.response, nil
}

func (f *fakeSearchService) Sources() []domain.SourceInfo { return f.sources }

func (f *fakeSearchService) SourceDiagnostics() []domain.SourceDiagnostics { return f.diagnostics }

type fakeSourceAdmin struct {
	updated registry.Source
	err     error

	lastName     string
	lastEnabled  *bool
	lastPriority *int
}

func (f *fakeSourceAdmin) Update(_ context.Context, name string, enabled *bool, priority *int) (registry.Source, error) {
	f.lastName = name
	f.lastEnabled = enabled
	f.lastPriority = priority
	if f.err != nil {
		return registry.Source{}, f.err
	}
	return f.updated, nil
}

type fakeCanonicalStore struct {
	vehicles    []domain.Vehicle
	aliases     []domain.VehicleAlias
	unlinked    []domain.VehicleAlias
	linkErr     error
	partNumbers []domain.PartNumber
	interchange domain.InterchangeInfo
	fitment     domain.FitmentCheck
	history     []domain.SearchHistoryEntry
	snapshots   []domain.PriceSnapshot
	saved       []domain.SavedSearch
	deleteErr   error
	alerts      []domain.PriceAlert
	alertErr    error

	savedQuery       string
	savedSort        domain.SearchSort
	deletedID        string
	linkedAliasID    int64
	linkedVehicleID  int64
	linkedConfigID   *int64
	linkedConfidence int
	createdAlert     domain.PriceAlert
	deletedAlertID   int64
	lastPendingOnly  bool
}

func (f *fakeCanonicalStore) ListVehicles(context.Context, int) ([]domain.Vehicle, error) {
	return f.vehicles, nil
}

func (f *fakeCanonicalStore) ListAliases(context.Context, int) ([]domain.VehicleAlias, error) {
	return f.aliases, nil
}

func (f *fakeCanonicalStore) ListUnlinkedAliases(context.Context, int) ([]domain.VehicleAlias, error) {
	return f.unlinked, nil
}

func (f *fakeCanonicalStore) LinkAlias(_ context.Context, aliasID, vehicleID int64, configID *int64, confidence int) error {
	f.linkedAliasID = aliasID
	f.linkedVehicleID = vehicleID
	f.linkedConfigID = configID
	f.linkedConfidence = confidence
	return f.linkErr
}

func (f *fakeCanonicalStore) LookupPartNumbers(context.Context, string) ([]domain.PartNumber, error) {
	return f.partNumbers, nil
}

func (f *fakeCanonicalStore) InterchangeFor(context.Context, string) (domain.InterchangeInfo, error) {
	return f.interchange, nil
}

func (f *fakeCanonicalStore) CheckFitment(context.Context, string, int64) (domain.FitmentCheck, error) {
	return f.fitment, nil
}

func (f *fakeCanonicalStore) RecentSearches(context.Context, int) ([]domain.SearchHistoryEntry, error) {
	return f.history, nil
}

func (f *fakeCanonicalStore) PriceHistory(context.Context, string, int) ([]domain.PriceSnapshot, error) {
	return f.snapshots, nil
}

func (f *fakeCanonicalStore) SaveSearch(_ context.Context, query string, sort domain.SearchSort) (domain.SavedSearch, error) {
	f.savedQuery = query
	f.savedSort = sort
	return domain.SavedSearch{ID: "ss-1", Query: query, Sort: sort, CreatedAt: time.Now().UTC()}, nil
}

func (f *fakeCanonicalStore) ListSavedSearches(context.Context) ([]domain.SavedSearch, error) {
	return f.saved, nil
}

func (f *fakeCanonicalStore) DeleteSavedSearch(_ context.Context, id string) error {
	f.deletedID = id
	return f.deleteErr
}

func (f *fakeCanonicalStore) CreatePriceAlert(_ context.Context, alert domain.PriceAlert) (domain.PriceAlert, error) {
	f.createdAlert = alert
	if f.alertErr != nil {
		return domain.PriceAlert{}, f.alertErr
	}
	alert.ID = 1
	alert.CreatedAt = time.Now().UTC()
	return alert, nil
}

func (f *fakeCanonicalStore) ListPriceAlerts(_ context.Context, pendingOnly bool) ([]domain.PriceAlert, error) {
	f.lastPendingOnly = pendingOnly
	return f.alerts, f.alertErr
}

func (f *fakeCanonicalStore) DeletePriceAlert(_ context.Context, id int64) error {
	f.deletedAlertID = id
	return f.alertErr
}

type fakeAliasResolver struct {
	resolution domain.AliasResolution
	err        error
	linked     int

	lastAlias  string
	lastDomain string
}

func (f *fakeAliasResolver) ResolveVehicleAlias(_ context.Context, aliasText, sourceDomain string) (domain.AliasResolution, error) {
	f.lastAlias = aliasText
	f.lastDomain = sourceDomain
	if f.err != nil {
		return domain.AliasResolution{}, f.err
	}
	return f.resolution, nil
}

func (f *fakeAliasResolver) ReconcileUnlinkedAliases(context.Context, int) (int, error) {
	return f.linked, f.err
}

type fakeVINDecoder struct {
	decoded vin.DecodedVIN
	err     error
}

func (f *fakeVINDecoder) Decode(context.Context, string) (vin.DecodedVIN, error) {
	if f.err != nil {
		return vin.DecodedVIN{}, f.err
	}
	return f.decoded, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeErrorCode(t *testing.T, body io.Reader) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	if envelope.Error.Message == "" {
		t.Fatal("error envelope missing message")
	}
	return envelope.Error.Code
}

func TestSearchEndpoint(t *testing.T) {
	svc := &fakeSearchService{
		response: domain.SearchResponse{
			Query:         "oil filter",
			TotalListings: 2,
			Limit:         10,
			Sort:          domain.SearchSortRelevance,
		},
	}
	server := httptest.NewServer(NewServer(svc, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/search?q=oil+filter&limit=10&sources=ebay,rockauto&sort=price_asc&nocache=1")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload domain.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Query != "oil filter" || payload.TotalListings != 2 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if svc.lastRequest.Query != "oil filter" || svc.lastRequest.Limit != 10 {
		t.Fatalf("unexpected request %+v", svc.lastRequest)
	}
	if svc.lastRequest.Sort != domain.SearchSortPriceAsc {
		t.Fatalf("sort = %q", svc.lastRequest.Sort)
	}
	if !svc.lastRequest.NoCache {
		t.Fatal("nocache flag not passed through")
	}
	if len(svc.lastSources) != 2 || svc.lastSources[0] != "ebay" || svc.lastSources[1] != "rockauto" {
		t.Fatalf("sources = %v", svc.lastSources)
	}
}

func TestSearchEndpointVehicleParams(t *testing.T) {
	svc := &fakeSearchService{}
	server := httptest.NewServer(NewServer(svc, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/search?q=oil+filter&vehicle_year=2011&vehicle_make=BMW&vehicle_model=328i&vehicle_trim=xDrive")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	want := domain.VehicleHint{Year: 2011, Make: "BMW", Model: "328i", Trim: "xDrive"}
	if svc.lastRequest.Vehicle != want {
		t.Fatalf("vehicle = %+v, want %+v", svc.lastRequest.Vehicle, want)
	}
}

func TestSearchEndpointInvalidVehicleYear(t *testing.T) {
	for _, year := range []string{"abc", "1899", "2101"} {
		server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
		resp, err := http.Get(server.URL + "/search?q=oil+filter&vehicle_year=" + year)
		if err != nil {
			t.Fatalf("GET /search: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("year %q: status = %d, want 400", year, resp.StatusCode)
		}
		if code := decodeErrorCode(t, resp.Body); code != "invalid_request" {
			t.Fatalf("year %q: code = %q", year, code)
		}
		resp.Body.Close()
		server.Close()
	}
}

func TestSearchEndpointVINFillsVehicle(t *testing.T) {
	svc := &fakeSearchService{}
	decoder := &fakeVINDecoder{
		decoded: vin.DecodedVIN{VIN: "WBAPH7C51BE851536", Year: 2011, Make: "BMW", Model: "328i"},
	}
	server := httptest.NewServer(NewServer(svc, WithVINDecoder(decoder), WithLogger(testLogger())).Handler())
	defer server.Close()

	// Explicit params win; the decoded VIN only fills the gaps.
	resp, err := http.Get(server.URL + "/search?q=oil+filter&vin=WBAPH7C51BE851536&vehicle_model=335i")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	want := domain.VehicleHint{Year: 2011, Make: "BMW", Model: "335i"}
	if svc.lastRequest.Vehicle != want {
		t.Fatalf("vehicle = %+v, want %+v", svc.lastRequest.Vehicle, want)
	}
}

func TestSearchEndpointVINErrors(t *testing.T) {
	invalid := httptest.NewServer(NewServer(&fakeSearchService{},
		WithVINDecoder(&fakeVINDecoder{err: vin.ErrInvalidVIN}),
		WithLogger(testLogger()),
	).Handler())
	defer invalid.Close()

	resp, err := http.Get(invalid.URL + "/search?q=oil+filter&vin=NOTAVIN")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid vin: status = %d, want 400", resp.StatusCode)
	}

	// Without a decoder configured, a vin param cannot be honored.
	bare := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer bare.Close()

	noDecoder, err := http.Get(bare.URL + "/search?q=oil+filter&vin=WBAPH7C51BE851536")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer noDecoder.Body.Close()
	if noDecoder.StatusCode != http.StatusNotImplemented {
		t.Fatalf("no decoder: status = %d, want 501", noDecoder.StatusCode)
	}
}

func TestSearchEndpointVINOutageDegrades(t *testing.T) {
	svc := &fakeSearchService{}
	decoder := &fakeVINDecoder{err: errors.New("decode vin: status 502")}
	server := httptest.NewServer(NewServer(svc, WithVINDecoder(decoder), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/search?q=oil+filter&vin=WBAPH7C51BE851536&vehicle_year=2011")
	if err != nil {
		t.Fatalf("GET /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, decoder outage must not fail the search", resp.StatusCode)
	}
	if svc.lastRequest.Vehicle.Year != 2011 {
		t.Fatalf("explicit year lost: %+v", svc.lastRequest.Vehicle)
	}
}

func TestSearchEndpointValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing query", "/search"},
		{"blank query", "/search?q=%20%20"},
		{"query too long", "/search?q=" + strings.Repeat("a", maxQueryLength+1)},
		{"bad limit", "/search?q=oil+filter&limit=abc"},
		{"zero limit", "/search?q=oil+filter&limit=0"},
		{"negative offset", "/search?q=oil+filter&offset=-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
			defer server.Close()

			resp, err := http.Get(server.URL + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			if code := decodeErrorCode(t, resp.Body); code != "invalid_request" {
				t.Fatalf("code = %q", code)
			}
		})
	}
}

func TestSearchEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid query", search.ErrInvalidQuery, http.StatusBadRequest, "invalid_request"},
		{"invalid offset", search.ErrInvalidOffset, http.StatusBadRequest, "invalid_request"},
		{"unknown source", search.ErrUnknownSource, http.StatusBadRequest, "invalid_request"},
		{"no sources", search.ErrNoSources, http.StatusServiceUnavailable, "service_unavailable"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeSearchService{err: tt.err}
			server := httptest.NewServer(NewServer(svc, WithLogger(testLogger())).Handler())
			defer server.Close()

			resp, err := http.Get(server.URL + "/search?q=oil+filter")
			if err != nil {
				t.Fatalf("GET /search: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if code := decodeErrorCode(t, resp.Body); code != tt.wantCode {
				t.Fatalf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestSearchEndpointMethodNotAllowed(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/search?q=oil+filter", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /search: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestSourcesList(t *testing.T) {
	svc := &fakeSearchService{
		sources: []domain.SourceInfo{
			{Name: "ebay", Label: "eBay Motors", Enabled: true, Priority: 90},
			{Name: "rockauto", Label: "RockAuto", Enabled: true, Priority: 80},
		},
	}
	server := httptest.NewServer(NewServer(svc, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/sources")
	if err != nil {
		t.Fatalf("GET /sources: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Sources []domain.SourceInfo `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Sources) != 2 || payload.Sources[0].Name != "ebay" {
		t.Fatalf("unexpected sources %+v", payload.Sources)
	}
}

func TestSourcesPatch(t *testing.T) {
	admin := &fakeSourceAdmin{
		updated: registry.Source{Name: "rockauto", Label: "RockAuto", SourceType: "scraper", Enabled: false, Priority: 10},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithSourceAdmin(admin), WithLogger(testLogger())).Handler())
	defer server.Close()

	body := bytes.NewBufferString(`{"name":"rockauto","enabled":false,"priority":10}`)
	req, err := http.NewRequest(http.MethodPatch, server.URL+"/sources", body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH /sources: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload domain.SourceInfo
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Name != "rockauto" || payload.Enabled || payload.Priority != 10 {
		t.Fatalf("unexpected payload %+v", payload)
	}

	if admin.lastName != "rockauto" {
		t.Fatalf("name = %q", admin.lastName)
	}
	if admin.lastEnabled == nil || *admin.lastEnabled {
		t.Fatalf("enabled = %v", admin.lastEnabled)
	}
	if admin.lastPriority == nil || *admin.lastPriority != 10 {
		t.Fatalf("priority = %v", admin.lastPriority)
	}
}

func TestSourcesPatchErrors(t *testing.T) {
	tests := []struct {
		name       string
		admin      *fakeSourceAdmin
		body       string
		wantStatus int
	}{
		{"unknown source", &fakeSourceAdmin{err: registry.ErrUnknownSource}, `{"name":"nope","enabled":true}`, http.StatusNotFound},
		{"missing name", &fakeSourceAdmin{}, `{"enabled":true}`, http.StatusBadRequest},
		{"nothing to update", &fakeSourceAdmin{}, `{"name":"ebay"}`, http.StatusBadRequest},
		{"malformed json", &fakeSourceAdmin{}, `{"name":`, http.StatusBadRequest},
		{"unknown field", &fakeSourceAdmin{}, `{"name":"ebay","bogus":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(NewServer(&fakeSearchService{}, WithSourceAdmin(tt.admin), WithLogger(testLogger())).Handler())
			defer server.Close()

			req, err := http.NewRequest(http.MethodPatch, server.URL+"/sources", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PATCH /sources: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestSourcesPatchWithoutAdmin(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodPatch, server.URL+"/sources", strings.NewReader(`{"name":"ebay","enabled":true}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH /sources: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestSourcesHealth(t *testing.T) {
	svc := &fakeSearchService{
		diagnostics: []domain.SourceDiagnostics{
			{Name: "ebay", Enabled: true, ConsecutiveFailures: 0},
			{Name: "carparts", Enabled: true, ConsecutiveFailures: 4, LastError: "upstream returned 500"},
		},
	}
	server := httptest.NewServer(NewServer(svc, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/sources/health")
	if err != nil {
		t.Fatalf("GET /sources/health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Sources []domain.SourceDiagnostics `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Sources) != 2 || payload.Sources[1].ConsecutiveFailures != 4 {
		t.Fatalf("unexpected diagnostics %+v", payload.Sources)
	}
}

func TestAliasResolveEndpoint(t *testing.T) {
	vehicleID := int64(7)
	resolver := &fakeAliasResolver{
		resolution: domain.AliasResolution{
			Alias:      domain.VehicleAlias{ID: 1, AliasText: "2015 Honda Civic", VehicleID: &vehicleID},
			Created:    true,
			LinkedNow:  true,
			Confidence: 85,
		},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithAliasResolver(resolver), WithLogger(testLogger())).Handler())
	defer server.Close()

	body := strings.NewReader(`{"aliasText":"2015 Honda Civic","sourceDomain":"ebay.com"}`)
	resp, err := http.Post(server.URL+"/canonical/aliases", "application/json", body)
	if err != nil {
		t.Fatalf("POST /canonical/aliases: %v", err)
	}
	defer resp.Body.Close()
	// A newly created alias comes back 201.
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var payload domain.AliasResolution
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.LinkedNow || payload.Confidence != 85 {
		t.Fatalf("unexpected resolution %+v", payload)
	}
	if resolver.lastAlias != "2015 Honda Civic" || resolver.lastDomain != "ebay.com" {
		t.Fatalf("resolver saw %q / %q", resolver.lastAlias, resolver.lastDomain)
	}
}

func TestAliasResolveExistingReturnsOK(t *testing.T) {
	resolver := &fakeAliasResolver{
		resolution: domain.AliasResolution{
			Alias:      domain.VehicleAlias{ID: 1, AliasText: "2015 Honda Civic"},
			Created:    false,
			Confidence: 90,
		},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithAliasResolver(resolver), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/canonical/aliases", "application/json", strings.NewReader(`{"aliasText":"2015 Honda Civic"}`))
	if err != nil {
		t.Fatalf("POST /canonical/aliases: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAliasResolveRequiresText(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithAliasResolver(&fakeAliasResolver{}), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/canonical/aliases", "application/json", strings.NewReader(`{"aliasText":"  "}`))
	if err != nil {
		t.Fatalf("POST /canonical/aliases: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAliasListUnlinkedOnly(t *testing.T) {
	store := &fakeCanonicalStore{
		aliases:  []domain.VehicleAlias{{ID: 1}, {ID: 2}, {ID: 3}},
		unlinked: []domain.VehicleAlias{{ID: 3}},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/canonical/aliases?unlinkedOnly=true")
	if err != nil {
		t.Fatalf("GET /canonical/aliases: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Aliases []domain.VehicleAlias `json:"aliases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Aliases) != 1 || payload.Aliases[0].ID != 3 {
		t.Fatalf("unexpected aliases %+v", payload.Aliases)
	}
}

func TestAliasManualLink(t *testing.T) {
	store := &fakeCanonicalStore{}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodPatch, server.URL+"/canonical/aliases/12", strings.NewReader(`{"vehicleId":7}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH /canonical/aliases/12: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if store.linkedAliasID != 12 || store.linkedVehicleID != 7 {
		t.Fatalf("link recorded %d → %d", store.linkedAliasID, store.linkedVehicleID)
	}
	// Manual links default to full confidence.
	if store.linkedConfidence != 100 {
		t.Fatalf("confidence = %d", store.linkedConfidence)
	}
	if store.linkedConfigID != nil {
		t.Fatalf("configId = %v, want nil when not given", store.linkedConfigID)
	}
}

func TestAliasManualLinkWithConfig(t *testing.T) {
	store := &fakeCanonicalStore{}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodPatch, server.URL+"/canonical/aliases/12", strings.NewReader(`{"vehicleId":7,"configId":3}`))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PATCH /canonical/aliases/12: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if store.linkedConfigID == nil || *store.linkedConfigID != 3 {
		t.Fatalf("configId = %v, want 3", store.linkedConfigID)
	}
}

func TestAliasManualLinkErrors(t *testing.T) {
	tests := []struct {
		name       string
		store      *fakeCanonicalStore
		path       string
		body       string
		wantStatus int
	}{
		{"already linked", &fakeCanonicalStore{linkErr: canonical.ErrAlreadyExist}, "/canonical/aliases/12", `{"vehicleId":7}`, http.StatusConflict},
		{"missing vehicle id", &fakeCanonicalStore{}, "/canonical/aliases/12", `{}`, http.StatusBadRequest},
		{"bad config id", &fakeCanonicalStore{}, "/canonical/aliases/12", `{"vehicleId":7,"configId":0}`, http.StatusBadRequest},
		{"bad alias id", &fakeCanonicalStore{}, "/canonical/aliases/abc", `{"vehicleId":7}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(tt.store), WithLogger(testLogger())).Handler())
			defer server.Close()

			req, err := http.NewRequest(http.MethodPatch, server.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("PATCH %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestReconcileEndpoint(t *testing.T) {
	resolver := &fakeAliasResolver{linked: 3}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithAliasResolver(resolver), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/canonical/reconcile", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /canonical/reconcile: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload struct {
		Linked int `json:"linked"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Linked != 3 {
		t.Fatalf("linked = %d", payload.Linked)
	}
}

func TestCanonicalReadEndpoints(t *testing.T) {
	store := &fakeCanonicalStore{
		vehicles:    []domain.Vehicle{{ID: 1, Make: "Honda", Model: "Civic", Year: 2015}},
		partNumbers: []domain.PartNumber{{ID: 1, PartID: 1, Namespace: "oem", Value: "15400-PLM-A02"}},
		interchange: domain.InterchangeInfo{PartNumber: "15400PLMA02", Alternates: []string{"PH7317"}, Confidence: 0.9},
		fitment:     domain.FitmentCheck{Status: domain.FitmentConfirmed, Confidence: 90},
		history:     []domain.SearchHistoryEntry{{ID: 1, Query: "oil filter", ResultCount: 12}},
		snapshots:   []domain.PriceSnapshot{{ID: 1, PartNumber: "15400PLMA02", Source: "ebay", Price: 8.99}},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	tests := []struct {
		name string
		path string
	}{
		{"vehicles", "/canonical/vehicles"},
		{"part numbers", "/canonical/part-numbers?value=15400-PLM-A02"},
		{"interchange", "/canonical/interchange?partNumber=15400PLMA02"},
		{"fitments", "/canonical/fitments?partNumber=15400PLMA02&vehicleId=1"},
		{"history", "/history"},
		{"price history", "/history/prices?partNumber=15400PLMA02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestCanonicalReadEndpointsRequireParams(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(&fakeCanonicalStore{}), WithLogger(testLogger())).Handler())
	defer server.Close()

	tests := []struct {
		name string
		path string
	}{
		{"part numbers without value", "/canonical/part-numbers"},
		{"interchange without part number", "/canonical/interchange"},
		{"fitments without part number", "/canonical/fitments"},
		{"fitments bad vehicle id", "/canonical/fitments?partNumber=X&vehicleId=abc"},
		{"price history without part number", "/history/prices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCanonicalEndpointsWithoutStore(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/canonical/vehicles")
	if err != nil {
		t.Fatalf("GET /canonical/vehicles: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestVINEndpoint(t *testing.T) {
	decoder := &fakeVINDecoder{
		decoded: vin.DecodedVIN{VIN: "1M8GDM9AXKP042788", Make: "Honda", Model: "Civic", Year: 2015},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithVINDecoder(decoder), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/vin/1M8GDM9AXKP042788")
	if err != nil {
		t.Fatalf("GET /vin: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var payload vin.DecodedVIN
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Make != "Honda" || payload.Year != 2015 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestVINEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		decoder    *fakeVINDecoder
		wantStatus int
	}{
		{"invalid vin", "/vin/NOTAVIN", &fakeVINDecoder{err: vin.ErrInvalidVIN}, http.StatusBadRequest},
		{"upstream failure", "/vin/1M8GDM9AXKP042788", &fakeVINDecoder{err: errors.New("decode vin: status 502")}, http.StatusBadGateway},
		{"empty vin", "/vin/", &fakeVINDecoder{}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(NewServer(&fakeSearchService{}, WithVINDecoder(tt.decoder), WithLogger(testLogger())).Handler())
			defer server.Close()

			resp, err := http.Get(server.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestSavedSearchLifecycle(t *testing.T) {
	store := &fakeCanonicalStore{
		saved: []domain.SavedSearch{{ID: "ss-1", Query: "oil filter"}},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Post(server.URL+"/saved-searches", "application/json", strings.NewReader(`{"query":"oil filter","sort":"price_asc"}`))
	if err != nil {
		t.Fatalf("POST /saved-searches: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created domain.SavedSearch
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" || created.Query != "oil filter" {
		t.Fatalf("unexpected saved search %+v", created)
	}
	if store.savedSort != domain.SearchSortPriceAsc {
		t.Fatalf("sort = %q", store.savedSort)
	}

	listResp, err := http.Get(server.URL + "/saved-searches")
	if err != nil {
		t.Fatalf("GET /saved-searches: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", listResp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/saved-searches/ss-1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	deleteResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /saved-searches/ss-1: %v", err)
	}
	defer deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", deleteResp.StatusCode)
	}
	if store.deletedID != "ss-1" {
		t.Fatalf("deleted id = %q", store.deletedID)
	}
}

func TestSavedSearchCreateValidation(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(&fakeCanonicalStore{}), WithLogger(testLogger())).Handler())
	defer server.Close()

	tests := []struct {
		name string
		body string
	}{
		{"blank query", `{"query":"  "}`},
		{"query too long", `{"query":"` + strings.Repeat("a", maxQueryLength+1) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/saved-searches", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSavedSearchDeleteNotFound(t *testing.T) {
	store := &fakeCanonicalStore{deleteErr: canonical.ErrNotFound}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/saved-searches/missing", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if code := decodeErrorCode(t, resp.Body); code != "not_found" {
		t.Fatalf("code = %q", code)
	}
}

func TestPriceAlertLifecycleEndpoints(t *testing.T) {
	store := &fakeCanonicalStore{
		alerts: []domain.PriceAlert{{ID: 1, PartNumber: "OC90", TargetPrice: 10}},
	}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	body := strings.NewReader(`{"partNumber":"OC90","brand":"Mahle","targetPrice":10.5,"savedSearchId":"ss-1"}`)
	resp, err := http.Post(server.URL+"/price-alerts", "application/json", body)
	if err != nil {
		t.Fatalf("POST /price-alerts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created domain.PriceAlert
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == 0 || created.PartNumber != "OC90" || created.TargetPrice != 10.5 {
		t.Fatalf("unexpected alert %+v", created)
	}
	if store.createdAlert.Brand != "Mahle" || store.createdAlert.SavedSearchID != "ss-1" {
		t.Fatalf("store saw %+v", store.createdAlert)
	}

	listResp, err := http.Get(server.URL + "/price-alerts?pendingOnly=true")
	if err != nil {
		t.Fatalf("GET /price-alerts: %v", err)
	}
	defer listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", listResp.StatusCode)
	}
	if !store.lastPendingOnly {
		t.Fatal("pendingOnly flag not passed through")
	}

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/price-alerts/1", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	deleteResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /price-alerts/1: %v", err)
	}
	defer deleteResp.Body.Close()
	if deleteResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", deleteResp.StatusCode)
	}
	if store.deletedAlertID != 1 {
		t.Fatalf("deleted id = %d", store.deletedAlertID)
	}
}

func TestPriceAlertCreateValidation(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(&fakeCanonicalStore{}), WithLogger(testLogger())).Handler())
	defer server.Close()

	tests := []struct {
		name string
		body string
	}{
		{"missing part number", `{"targetPrice":10}`},
		{"blank part number", `{"partNumber":"  ","targetPrice":10}`},
		{"zero target", `{"partNumber":"OC90","targetPrice":0}`},
		{"negative target", `{"partNumber":"OC90","targetPrice":-5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/price-alerts", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestPriceAlertDeleteNotFound(t *testing.T) {
	store := &fakeCanonicalStore{alertErr: canonical.ErrNotFound}
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithCanonicalStore(store), WithLogger(testLogger())).Handler())
	defer server.Close()

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/price-alerts/99", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if code := decodeErrorCode(t, resp.Body); code != "not_found" {
		t.Fatalf("code = %q", code)
	}
}

func TestPriceAlertsWithoutStore(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/price-alerts")
	if err != nil {
		t.Fatalf("GET /price-alerts: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", resp.StatusCode)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := httptest.NewServer(NewServer(&fakeSearchService{}, WithLogger(testLogger())).Handler())
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("status = %q", payload.Status)
	}
}

func TestRecoveryMiddlewareCatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(testLogger(), panicking)

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/search?q=x", nil))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", recorder.Code)
	}
	if code := decodeErrorCode(t, recorder.Body); code != "internal_error" {
		t.Fatalf("code = %q", code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := rateLimitMiddleware(1, 2, okHandler)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/search?q=x", nil))
		statuses = append(statuses, recorder.Code)
	}
	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %v", statuses)
	}

	// Health stays reachable even when the bucket is empty.
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("/health status = %d", recorder.Code)
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/search", "/search"},
		{"/vin/1M8GDM9AXKP042788", "/vin"},
		{"/saved-searches/ss-1", "/saved-searches"},
		{"/price-alerts/5", "/price-alerts"},
		{"/canonical/vehicles", "/canonical/vehicles"},
		{"/favicon.ico", "/other"},
	}
	for _, tt := range tests {
		if got := normalizeRoute(tt.path); got != tt.want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
