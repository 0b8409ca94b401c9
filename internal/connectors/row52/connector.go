package row52

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"partlogic/searchservice/internal/connectors/common"
	"partlogic/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://www.row52.com/api/v1/search/vehicles"
	defaultUserAgent = "partlogic-search/1.0"
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Connector searches Row52's self-service yard inventory. It returns
// salvage sightings, not buyable listings.
type Connector struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type apiResponse struct {
	Results []apiVehicle `json:"results"`
}

type apiVehicle struct {
	Year         int    `json:"year"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	YardName     string `json:"yardName"`
	YardCity     string `json:"yardCity"`
	YardState    string `json:"yardState"`
	Row          string `json:"row"`
	DateAdded    string `json:"dateAdded"`
	DetailsURL   string `json:"detailsUrl"`
}

func NewConnector(cfg Config) *Connector {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Connector{
		client:    client,
		endpoint:  endpoint,
		userAgent: userAgent,
	}
}

func (c *Connector) Name() string {
	return "row52"
}

func (c *Connector) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:       c.Name(),
		Label:      "Row52",
		Category:   "salvage",
		SourceType: "api",
		Enabled:    true,
	}
}

func (c *Connector) Search(ctx context.Context, request domain.SearchRequest) (domain.SourceResult, error) {
	uri, err := url.Parse(c.endpoint)
	if err != nil {
		return domain.SourceResult{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("q", strings.TrimSpace(request.Query))
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return domain.SourceResult{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.SourceResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return domain.SourceResult{}, &common.UpstreamStatusError{
			Source:     c.Name(),
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return domain.SourceResult{}, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return domain.SourceResult{}, fmt.Errorf("unexpected source payload: %w", err)
	}

	limit := request.Limit
	if limit <= 0 {
		limit = 20
	}
	hits := make([]domain.SalvageHit, 0, len(parsed.Results))
	for _, vehicle := range parsed.Results {
		hit, ok := c.toHit(vehicle)
		if !ok {
			continue
		}
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	return domain.SourceResult{SalvageHits: hits}, nil
}

func (c *Connector) toHit(vehicle apiVehicle) (domain.SalvageHit, bool) {
	yard := common.CleanHTMLText(vehicle.YardName)
	if yard == "" {
		return domain.SalvageHit{}, false
	}

	descParts := make([]string, 0, 3)
	if vehicle.Year > 0 {
		descParts = append(descParts, fmt.Sprintf("%d", vehicle.Year))
	}
	if value := strings.TrimSpace(vehicle.Make); value != "" {
		descParts = append(descParts, value)
	}
	if value := strings.TrimSpace(vehicle.Model); value != "" {
		descParts = append(descParts, value)
	}

	location := strings.TrimSpace(vehicle.YardCity)
	if state := strings.TrimSpace(vehicle.YardState); state != "" {
		if location != "" {
			location += ", "
		}
		location += state
	}

	hit := domain.SalvageHit{
		Source:       c.Name(),
		YardName:     yard,
		YardLocation: location,
		Vehicle:      strings.Join(descParts, " "),
		URL:          strings.TrimSpace(vehicle.DetailsURL),
	}
	if row := strings.TrimSpace(vehicle.Row); row != "" {
		hit.PartDescription = "Row " + row
	}
	if added := strings.TrimSpace(vehicle.DateAdded); added != "" {
		if ts, err := time.Parse("2006-01-02", added); err == nil {
			utc := ts.UTC()
			hit.LastSeen = &utc
		}
	}
	return hit, true
}
