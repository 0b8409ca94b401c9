package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "partlogic/searchservice/internal/api/http"
	"partlogic/searchservice/internal/app"
	"partlogic/searchservice/internal/canonical"
	"partlogic/searchservice/internal/connectors/carparts"
	"partlogic/searchservice/internal/connectors/ebay"
	"partlogic/searchservice/internal/connectors/partsouq"
	"partlogic/searchservice/internal/connectors/rockauto"
	"partlogic/searchservice/internal/connectors/row52"
	"partlogic/searchservice/internal/enrich/community"
	"partlogic/searchservice/internal/enrich/vin"
	"partlogic/searchservice/internal/metrics"
	"partlogic/searchservice/internal/registry"
	"partlogic/searchservice/internal/search"
	"partlogic/searchservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "parts-search")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "parts-search"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Duration("connectorTimeout", cfg.ConnectorTimeout),
		slog.String("canonicalDBPath", cfg.CanonicalDBPath),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("hasEbayToken", strings.TrimSpace(cfg.EBayOAuthToken) != ""),
		slog.Bool("interchangeEnabled", cfg.InterchangeEnabled),
		slog.Bool("communityEnabled", cfg.CommunityEnabled),
		slog.Duration("cacheTTL", cfg.CacheTTL),
	)

	store, err := canonical.Open(cfg.CanonicalDBPath)
	if err != nil {
		logger.Error("canonical store open failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	redisClient := buildRedisClient(cfg, logger)

	sources, err := registry.LoadFile(cfg.SourceRegistryPath)
	if err != nil {
		logger.Error("source registry load failed",
			slog.String("path", cfg.SourceRegistryPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	var registryOpts []registry.Option
	if redisClient != nil {
		registryOpts = append(registryOpts, registry.WithRuntimeStore(
			registry.NewRedisRuntimeStateStore(redisClient, ""),
		))
	}
	sourceRegistry := registry.New(sources, registryOpts...)
	if err := sourceRegistry.ApplyRuntimeState(context.Background()); err != nil {
		logger.Warn("source runtime state load failed", slog.String("error", err.Error()))
	}

	newClient := func() *http.Client {
		return &http.Client{Timeout: cfg.ConnectorTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}

	connectors := []search.Connector{
		ebay.NewConnector(ebay.Config{
			Endpoint:   cfg.EBayEndpoint,
			OAuthToken: cfg.EBayOAuthToken,
			UserAgent:  cfg.UserAgent,
			Client:     newClient(),
		}),
		rockauto.NewConnector(rockauto.Config{
			Endpoint:  cfg.RockAutoEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(),
		}),
		carparts.NewConnector(carparts.Config{
			Endpoint:  cfg.CarPartsEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(),
		}),
		partsouq.NewConnector(partsouq.Config{
			Endpoint:  cfg.PartSouqEndpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(),
		}),
		row52.NewConnector(row52.Config{
			Endpoint:  cfg.Row52Endpoint,
			UserAgent: cfg.UserAgent,
			Client:    newClient(),
		}),
	}

	resolver := canonical.NewResolver(store, logger)

	serviceOpts := []search.ServiceOption{
		search.WithSourceDirectory(sourceRegistry),
		search.WithMaxPerSource(cfg.MaxPerSource),
		search.WithInterchange(cfg.InterchangeEnabled),
		search.WithCatalog(store),
		search.WithVehicleResolver(resolver),
	}
	serviceOpts = append(serviceOpts, buildCacheOptions(cfg, redisClient)...)

	communityClient := community.NewClient(community.Config{
		Endpoint:  cfg.CommunityEndpoint,
		UserAgent: cfg.UserAgent,
		Enabled:   cfg.CommunityEnabled,
		CacheTTL:  cfg.CommunityCacheTTL,
		Redis:     redisClient,
	})
	if communityClient.Enabled() {
		serviceOpts = append(serviceOpts, search.WithCommunity(communityClient))
	}

	searchService := search.NewService(connectors, cfg.ConnectorTimeout, serviceOpts...)

	vinDecoder := vin.NewDecoder(vin.Config{
		Endpoint:  cfg.VINDecoderEndpoint,
		UserAgent: cfg.UserAgent,
		Redis:     redisClient,
	})

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithSourceAdmin(sourceRegistry),
		apihttp.WithCanonicalStore(store),
		apihttp.WithAliasResolver(resolver),
		apihttp.WithVINDecoder(vinDecoder),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	searchService.StartBackground(rootCtx)
	go resolver.RunReconciler(rootCtx, cfg.ReconcileInterval, cfg.ReconcileBatch)
	go store.RunPriceAlertChecker(rootCtx, cfg.PriceAlertInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("parts search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Duration("timeout", cfg.ConnectorTimeout),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("parts search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildRedisClient(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, running without redis", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, running without redis", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildCacheOptions(cfg app.Config, redisClient *redis.Client) []search.ServiceOption {
	var opts []search.ServiceOption

	if cfg.CacheDisabled {
		opts = append(opts, search.WithCacheDisabled(true))
		return opts
	}
	if cfg.CacheTTL > 0 {
		opts = append(opts, search.WithCacheTTL(cfg.CacheTTL))
	}
	if redisClient != nil {
		opts = append(opts, search.WithRedisCache(search.NewRedisCacheBackend(redisClient)))
	}
	return opts
}
