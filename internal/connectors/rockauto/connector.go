package rockauto

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
	defaultEndpoint  = "https://www.rockauto.com/api/partsearch"
	defaultUserAgent = "partlogic-search/1.0"
	catalogBaseURL   = "https://www.rockauto.com/en/partsearch/?partnum="
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Connector struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type apiResponse struct {
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Brand       string `json:"brand"`
	PartNumber  string `json:"partnumber"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Href        string `json:"href"`
	ImageURL    string `json:"imageurl"`
	Category    string `json:"category"`
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
	return "rockauto"
}

func (c *Connector) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:               c.Name(),
		Label:              "RockAuto",
		Category:           "retailer",
		SourceType:         "api",
		Enabled:            true,
		SupportsPartNumber: true,
	}
}

func (c *Connector) Search(ctx context.Context, request domain.SearchRequest) (domain.SourceResult, error) {
	uri, err := url.Parse(c.endpoint)
	if err != nil {
		return domain.SourceResult{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	query := uri.Query()
	query.Set("partnum", strings.TrimSpace(request.Query))
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
	listings := make([]domain.MarketListing, 0, len(parsed.Parts))
	for _, part := range parsed.Parts {
		listing, ok := c.toListing(part)
		if !ok {
			continue
		}
		listings = append(listings, listing)
		if len(listings) >= limit {
			break
		}
	}

	// Always hand back a catalog deep link so the user can browse the
	// full listing tree even when the API returns nothing.
	links := []domain.ExternalLink{{
		Label:    "RockAuto catalog",
		URL:      catalogBaseURL + url.QueryEscape(strings.TrimSpace(request.Query)),
		Source:   c.Name(),
		Category: "new_parts",
	}}
	return domain.SourceResult{Listings: listings, Links: links}, nil
}

func (c *Connector) toListing(part apiPart) (domain.MarketListing, bool) {
	brand := common.CleanHTMLText(part.Brand)
	partNumber := strings.ToUpper(strings.TrimSpace(part.PartNumber))
	if partNumber == "" {
		return domain.MarketListing{}, false
	}
	description := common.CleanHTMLText(part.Description)

	title := strings.TrimSpace(strings.Join([]string{brand, partNumber, description}, " "))
	pageURL := strings.TrimSpace(part.Href)
	if pageURL == "" {
		pageURL = catalogBaseURL + url.QueryEscape(partNumber)
	}

	return domain.MarketListing{
		Source:      c.Name(),
		Title:       title,
		Price:       common.ParsePrice(part.Price),
		Currency:    "USD",
		Condition:   "New",
		URL:         pageURL,
		PartNumbers: []string{partNumber},
		Brand:       brand,
		ImageURL:    strings.TrimSpace(part.ImageURL),
	}, true
}
