package partsouq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"partlogic/searchservice/internal/connectors/common"
	"partlogic/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://partsouq.com/en/api/search"
	defaultUserAgent = "partlogic-search/1.0"
	vinSearchBaseURL = "https://partsouq.com/en/catalog/genuine/vehicle?q="
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Connector searches PartSouq's OEM catalog. Strong on genuine part
// numbers and supersessions for import vehicles.
type Connector struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type apiResponse struct {
	Items []apiItem `json:"items"`
}

type apiItem struct {
	Name       string   `json:"name"`
	Brand      string   `json:"brand"`
	OEMNumber  string   `json:"oem"`
	CrossRefs  []string `json:"crossRefs"`
	Price      string   `json:"price"`
	Currency   string   `json:"currency"`
	URL        string   `json:"url"`
	ImageURL   string   `json:"image"`
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
	return "partsouq"
}

func (c *Connector) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:               c.Name(),
		Label:              "PartSouq",
		Category:           "retailer",
		SourceType:         "api",
		Enabled:            true,
		SupportsVIN:        true,
		SupportsPartNumber: true,
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
	listings := make([]domain.MarketListing, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		listing, ok := c.toListing(item)
		if !ok {
			continue
		}
		listings = append(listings, listing)
		if len(listings) >= limit {
			break
		}
	}

	links := []domain.ExternalLink{{
		Label:    "PartSouq VIN lookup",
		URL:      vinSearchBaseURL + url.QueryEscape(strings.TrimSpace(request.Query)),
		Source:   c.Name(),
		Category: "new_parts",
	}}
	return domain.SourceResult{Listings: listings, Links: links}, nil
}

func (c *Connector) toListing(item apiItem) (domain.MarketListing, bool) {
	title := common.CleanHTMLText(item.Name)
	pageURL := strings.TrimSpace(item.URL)
	if title == "" || pageURL == "" {
		return domain.MarketListing{}, false
	}

	partNumbers := make([]string, 0, 1+len(item.CrossRefs))
	if oem := strings.ToUpper(strings.TrimSpace(item.OEMNumber)); oem != "" {
		partNumbers = append(partNumbers, oem)
	}
	for _, ref := range item.CrossRefs {
		if ref = strings.ToUpper(strings.TrimSpace(ref)); ref != "" {
			partNumbers = append(partNumbers, ref)
		}
	}

	currency := strings.TrimSpace(item.Currency)
	if currency == "" {
		currency = "USD"
	}

	return domain.MarketListing{
		Source:      c.Name(),
		Title:       title,
		Price:       common.ParsePrice(item.Price),
		Currency:    currency,
		Condition:   "New",
		URL:         pageURL,
		PartNumbers: partNumbers,
		Brand:       common.CleanHTMLText(item.Brand),
		ImageURL:    strings.TrimSpace(item.ImageURL),
	}, true
}
