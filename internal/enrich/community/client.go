// Package community fetches discussion threads about a part or vehicle
// problem. Results are advisory: every failure path degrades to an empty
// thread list.
package community

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"partlogic/searchservice/internal/domain"
)

const (
	defaultEndpoint  = "https://www.reddit.com/search.json"
	defaultUserAgent = "partlogic-search/1.0"
	defaultCacheTTL  = 168 * time.Hour
	defaultTimeout   = 5 * time.Second
	maxThreads       = 8

	redisKeyPrefix = "plsearch:community:"
)

type Config struct {
	Endpoint  string
	UserAgent string
	Enabled   bool
	CacheTTL  time.Duration
	Client    *http.Client
	Redis     *redis.Client
}

type Client struct {
	client    *http.Client
	redis     *redis.Client
	endpoint  string
	userAgent string
	enabled   bool
	cacheTTL  time.Duration
}

type apiResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				Title       string `json:"title"`
				Permalink   string `json:"permalink"`
				Subreddit   string `json:"subreddit"`
				Score       int    `json:"score"`
				NumComments int    `json:"num_comments"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func NewClient(cfg Config) *Client {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Client{
		client:    client,
		redis:     cfg.Redis,
		endpoint:  endpoint,
		userAgent: userAgent,
		enabled:   cfg.Enabled,
		cacheTTL:  cacheTTL,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (c *Client) Threads(ctx context.Context, query string) ([]domain.CommunityThread, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	cacheKey := redisKeyPrefix + strings.ToLower(strings.Join(strings.Fields(query), " "))
	if c.redis != nil {
		if data, err := c.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var threads []domain.CommunityThread
			if err := json.Unmarshal(data, &threads); err == nil {
				return threads, nil
			}
		}
	}

	threads, err := c.fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if c.redis != nil {
		if data, err := json.Marshal(threads); err == nil {
			_ = c.redis.Set(ctx, cacheKey, data, c.cacheTTL).Err()
		}
	}
	return threads, nil
}

func (c *Client) fetch(ctx context.Context, query string) ([]domain.CommunityThread, error) {
	uri, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("q", query)
	values.Set("limit", "10")
	values.Set("sort", "relevance")
	uri.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("community HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("unexpected community payload: %w", err)
	}

	threads := make([]domain.CommunityThread, 0, len(parsed.Data.Children))
	for _, child := range parsed.Data.Children {
		title := strings.TrimSpace(child.Data.Title)
		permalink := strings.TrimSpace(child.Data.Permalink)
		if title == "" || permalink == "" {
			continue
		}
		threads = append(threads, domain.CommunityThread{
			Title:        title,
			URL:          "https://www.reddit.com" + permalink,
			Community:    child.Data.Subreddit,
			Score:        child.Data.Score,
			CommentCount: child.Data.NumComments,
		})
		if len(threads) >= maxThreads {
			break
		}
	}
	return threads, nil
}
