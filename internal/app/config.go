package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	ConnectorTimeout time.Duration
	LogLevel         string
	LogFormat        string
	UserAgent        string

	MaxPerSource  int
	CacheTTL      time.Duration
	CacheDisabled bool

	RedisURL string

	CanonicalDBPath    string
	SourceRegistryPath string

	InterchangeEnabled bool

	EBayEndpoint     string
	EBayOAuthToken   string
	RockAutoEndpoint string
	CarPartsEndpoint string
	PartSouqEndpoint string
	Row52Endpoint    string

	CommunityEnabled  bool
	CommunityEndpoint string
	CommunityCacheTTL time.Duration

	VINDecoderEndpoint string

	ReconcileInterval  time.Duration
	ReconcileBatch     int
	PriceAlertInterval time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8090"),
		ConnectorTimeout: time.Duration(getEnvInt("CONNECTOR_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:        getEnv("SEARCH_USER_AGENT", "partlogic-search/1.0"),

		MaxPerSource:  getEnvInt("SEARCH_MAX_RESULTS_PER_SOURCE", 20),
		CacheTTL:      time.Duration(getEnvInt("SEARCH_CACHE_TTL_HOURS", 6)) * time.Hour,
		CacheDisabled: getEnvBool("SEARCH_CACHE_DISABLED", false),

		RedisURL: getEnv("REDIS_URL", ""),

		CanonicalDBPath:    getEnv("CANONICAL_DB_PATH", "partlogic.db"),
		SourceRegistryPath: getEnv("SOURCE_REGISTRY_PATH", ""),

		InterchangeEnabled: getEnvBool("INTERCHANGE_ENABLED", true),

		EBayEndpoint:     getEnv("SEARCH_SOURCE_EBAY_ENDPOINT", ""),
		EBayOAuthToken:   strings.TrimSpace(os.Getenv("EBAY_OAUTH_TOKEN")),
		RockAutoEndpoint: getEnv("SEARCH_SOURCE_ROCKAUTO_ENDPOINT", ""),
		CarPartsEndpoint: getEnv("SEARCH_SOURCE_CARPARTS_ENDPOINT", ""),
		PartSouqEndpoint: getEnv("SEARCH_SOURCE_PARTSOUQ_ENDPOINT", ""),
		Row52Endpoint:    getEnv("SEARCH_SOURCE_ROW52_ENDPOINT", ""),

		CommunityEnabled:  getEnvBool("COMMUNITY_ENABLED", true),
		CommunityEndpoint: getEnv("COMMUNITY_ENDPOINT", ""),
		CommunityCacheTTL: time.Duration(getEnvInt("COMMUNITY_CACHE_TTL_HOURS", 168)) * time.Hour,

		VINDecoderEndpoint: getEnv("VIN_DECODER_ENDPOINT", ""),

		ReconcileInterval:  time.Duration(getEnvInt("ALIAS_RECONCILE_INTERVAL_MINUTES", 10)) * time.Minute,
		ReconcileBatch:     getEnvInt("ALIAS_RECONCILE_BATCH", 200),
		PriceAlertInterval: time.Duration(getEnvInt("PRICE_ALERT_CHECK_INTERVAL_MINUTES", 30)) * time.Minute,

		RateLimitRPS:   float64(getEnvInt("RATE_LIMIT_RPS", 50)),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 100),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
