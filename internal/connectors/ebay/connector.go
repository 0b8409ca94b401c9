package ebay

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
	defaultEndpoint  = "https://api.ebay.com/buy/browse/v1/item_summary/search"
	defaultUserAgent = "partlogic-search/1.0"
	defaultCategory  = "6030" // eBay Motors parts & accessories
)

type Config struct {
	Endpoint   string
	OAuthToken string
	CategoryID string
	UserAgent  string
	Client     *http.Client
}

type Connector struct {
	client     *http.Client
	endpoint   string
	token      string
	categoryID string
	userAgent  string
}

type apiResponse struct {
	ItemSummaries []apiItem `json:"itemSummaries"`
}

type apiItem struct {
	Title     string `json:"title"`
	Condition string `json:"condition"`
	ItemWebURL string `json:"itemWebUrl"`
	Price     struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"price"`
	Image struct {
		ImageURL string `json:"imageUrl"`
	} `json:"image"`
	Seller struct {
		Username string `json:"username"`
	} `json:"seller"`
	ShippingOptions []struct {
		ShippingCost struct {
			Value string `json:"value"`
		} `json:"shippingCost"`
	} `json:"shippingOptions"`
	BuyingOptions []string `json:"buyingOptions"`
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
	categoryID := strings.TrimSpace(cfg.CategoryID)
	if categoryID == "" {
		categoryID = defaultCategory
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Connector{
		client:     client,
		endpoint:   endpoint,
		token:      strings.TrimSpace(cfg.OAuthToken),
		categoryID: categoryID,
		userAgent:  userAgent,
	}
}

func (c *Connector) Name() string {
	return "ebay"
}

func (c *Connector) Info() domain.SourceInfo {
	return domain.SourceInfo{
		Name:               c.Name(),
		Label:              "eBay Motors",
		Category:           "marketplace",
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
	query.Set("limit", strconv.Itoa(limit))
	if c.categoryID != "" {
		query.Set("category_ids", c.categoryID)
	}
	uri.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return domain.SourceResult{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

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

	listings := make([]domain.MarketListing, 0, len(parsed.ItemSummaries))
	for _, item := range parsed.ItemSummaries {
		listing, ok := c.toListing(item)
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

func (c *Connector) toListing(item apiItem) (domain.MarketListing, bool) {
	title := common.CleanHTMLText(item.Title)
	pageURL := strings.TrimSpace(item.ItemWebURL)
	if title == "" || pageURL == "" {
		return domain.MarketListing{}, false
	}

	shipping := 0.0
	if len(item.ShippingOptions) > 0 {
		shipping = common.ParsePrice(item.ShippingOptions[0].ShippingCost.Value)
	}
	listingType := ""
	if len(item.BuyingOptions) > 0 {
		listingType = strings.ToLower(item.BuyingOptions[0])
	}

	return domain.MarketListing{
		Source:       c.Name(),
		Title:        title,
		Price:        common.ParsePrice(item.Price.Value),
		Currency:     strings.TrimSpace(item.Price.Currency),
		Condition:    item.Condition,
		URL:          pageURL,
		Vendor:       strings.TrimSpace(item.Seller.Username),
		ImageURL:     strings.TrimSpace(item.Image.ImageURL),
		ShippingCost: shipping,
		ListingType:  listingType,
	}, true
}
