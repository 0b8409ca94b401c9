// Package vin validates and decodes Vehicle Identification Numbers.
// Validation is local (format plus check digit); decoding goes through
// an NHTSA-compatible endpoint with a Redis cache in front.
package vin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultEndpoint  = "https://vpic.nhtsa.dot.gov/api/vehicles/DecodeVinValues/"
	defaultUserAgent = "partlogic-search/1.0"
	defaultCacheTTL  = 30 * 24 * time.Hour

	redisKeyPrefix = "plsearch:vin:"
)

var (
	ErrInvalidVIN = errors.New("invalid VIN")
)

// DecodedVIN is what the decoder extracts for downstream vehicle
// resolution.
type DecodedVIN struct {
	VIN    string `json:"vin"`
	Year   int    `json:"year,omitempty"`
	Make   string `json:"make,omitempty"`
	Model  string `json:"model,omitempty"`
	Trim   string `json:"trim,omitempty"`
	Engine string `json:"engine,omitempty"`
	Plant  string `json:"plantCountry,omitempty"`
}

type Config struct {
	Endpoint  string
	UserAgent string
	CacheTTL  time.Duration
	Client    *http.Client
	Redis     *redis.Client
}

type Decoder struct {
	client    *http.Client
	redis     *redis.Client
	endpoint  string
	userAgent string
	cacheTTL  time.Duration
}

func NewDecoder(cfg Config) *Decoder {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
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
	return &Decoder{
		client:    client,
		redis:     cfg.Redis,
		endpoint:  endpoint,
		userAgent: userAgent,
		cacheTTL:  cacheTTL,
	}
}

// Normalize uppercases and strips whitespace; it does not validate.
func Normalize(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), ""))
}

// vinValues transliterates VIN characters for the check digit. I, O and
// Q are not legal VIN characters at all.
var vinValues = map[byte]int{
	'A': 1, 'B': 2, 'C': 3, 'D': 4, 'E': 5, 'F': 6, 'G': 7, 'H': 8,
	'J': 1, 'K': 2, 'L': 3, 'M': 4, 'N': 5, 'P': 7, 'R': 9,
	'S': 2, 'T': 3, 'U': 4, 'V': 5, 'W': 6, 'X': 7, 'Y': 8, 'Z': 9,
	'0': 0, '1': 1, '2': 2, '3': 3, '4': 4, '5': 5, '6': 6, '7': 7, '8': 8, '9': 9,
}

var vinWeights = [17]int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

// Validate checks length, alphabet and the position-9 check digit.
func Validate(raw string) error {
	vin := Normalize(raw)
	if len(vin) != 17 {
		return fmt.Errorf("%w: must be 17 characters", ErrInvalidVIN)
	}

	sum := 0
	for i := 0; i < 17; i++ {
		value, ok := vinValues[vin[i]]
		if !ok {
			return fmt.Errorf("%w: illegal character %q", ErrInvalidVIN, vin[i])
		}
		sum += value * vinWeights[i]
	}

	expected := byte('0' + sum%11)
	if sum%11 == 10 {
		expected = 'X'
	}
	if vin[8] != expected {
		return fmt.Errorf("%w: check digit mismatch", ErrInvalidVIN)
	}
	return nil
}

func (d *Decoder) Decode(ctx context.Context, raw string) (DecodedVIN, error) {
	if err := Validate(raw); err != nil {
		return DecodedVIN{}, err
	}
	vin := Normalize(raw)

	cacheKey := redisKeyPrefix + vin
	if d.redis != nil {
		if data, err := d.redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var decoded DecodedVIN
			if err := json.Unmarshal(data, &decoded); err == nil {
				return decoded, nil
			}
		}
	}

	decoded, err := d.fetch(ctx, vin)
	if err != nil {
		return DecodedVIN{}, err
	}

	if d.redis != nil {
		if data, err := json.Marshal(decoded); err == nil {
			_ = d.redis.Set(ctx, cacheKey, data, d.cacheTTL).Err()
		}
	}
	return decoded, nil
}

type apiResponse struct {
	Results []map[string]string `json:"Results"`
}

func (d *Decoder) fetch(ctx context.Context, vin string) (DecodedVIN, error) {
	endpoint := strings.TrimSuffix(d.endpoint, "/") + "/" + url.PathEscape(vin) + "?format=json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return DecodedVIN{}, err
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return DecodedVIN{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return DecodedVIN{}, fmt.Errorf("vin decoder HTTP %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return DecodedVIN{}, err
	}

	var parsed apiResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return DecodedVIN{}, fmt.Errorf("unexpected vin decoder payload: %w", err)
	}
	if len(parsed.Results) == 0 {
		return DecodedVIN{}, errors.New("vin decoder returned no results")
	}

	fields := parsed.Results[0]
	decoded := DecodedVIN{
		VIN:    vin,
		Make:   titleCase(fields["Make"]),
		Model:  strings.TrimSpace(fields["Model"]),
		Trim:   strings.TrimSpace(fields["Trim"]),
		Engine: strings.TrimSpace(fields["EngineModel"]),
		Plant:  titleCase(fields["PlantCountry"]),
	}
	if year, err := strconv.Atoi(strings.TrimSpace(fields["ModelYear"])); err == nil {
		decoded.Year = year
	}
	return decoded, nil
}

func titleCase(value string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(value)))
	for i, field := range fields {
		fields[i] = strings.ToUpper(field[:1]) + field[1:]
	}
	return strings.Join(fields, " ")
}
