package carparts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"partlogic/searchservice/internal/connectors/common"
	"partlogic/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://www.carparts.com/api/search/products"
	defaultUserAgent = "partlogic-search/1.0"
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
	Products []apiProduct `json:"products"`
}

type apiProduct struct {
	Name        string  `json:"name"`
	Brand       string  `json:"brand"`
	SKU         string  `json:"sku"`
	MPN         string  `json:"mpn"`
	Price       float64 `json:"price"`
	Shipping    float64 `json:"shippingCost"`
	ProductURL  string  `json:"productUrl"`
	ImageURL    string  `json:"imageUrl"`
	InStock     bool    `json:"inStock"`
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
	return "carparts"
}

func (c *Connector) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:               c.Name(),
		Label:              "CarParts.com",
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
	limit := request.Limit
	if limit <= 0 {
		limit = 20
	}
	query := uri.Query()
	query.Set("q", strings.TrimSpace(request.Query))
	query.Set("pageSize", strconv.Itoa(limit))
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

	listings := make([]domain.MarketListing, 0, len(parsed.Products))
	for _, product := range parsed.Products {
		listing, ok := c.toListing(product)
		if !ok {
			continue
		}
		listings = append(listings, listing)
		if len(listings) >= limit {
			break
		}
	}
	return domain.SourceResult{Listings: listings}, nil
}

func (c *Connector) toListing(product apiProduct) (domain.MarketListing, bool) {
	title := common.CleanHTMLText(product.Name)
	pageURL := strings.TrimSpace(product.ProductURL)
	if title == "" || pageURL == "" {
		return domain.MarketListing{}, false
	}
	if !product.InStock {
		return domain.MarketListing{}, false
	}

	partNumbers := make([]string, 0, 2)
	for _, pn := range []string{product.MPN, product.SKU} {
		if pn = strings.ToUpper(strings.TrimSpace(pn)); pn != "" {
			partNumbers = append(partNumbers, pn)
		}
	}

	return domain.MarketListing{
		Source:       c.Name(),
		Title:        title,
		Price:        product.Price,
		Currency:     "USD",
		Condition:    "New",
		URL:          pageURL,
		PartNumbers:  partNumbers,
		Brand:        common.CleanHTMLText(product.Brand),
		ImageURL:     strings.TrimSpace(product.ImageURL),
		ShippingCost: product.Shipping,
	}, true
}
