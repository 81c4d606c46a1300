package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogsearch/internal/cache"
	"github.com/utafrali/catalogsearch/internal/config"
	"github.com/utafrali/catalogsearch/internal/engine"
	esengine "github.com/utafrali/catalogsearch/internal/engine/elasticsearch"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/engine/solr"
	"github.com/utafrali/catalogsearch/internal/event"
	handler "github.com/utafrali/catalogsearch/internal/handler/http"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
	pkgkafka "github.com/utafrali/catalogsearch/pkg/kafka"
	"github.com/utafrali/catalogsearch/pkg/middleware"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

const serviceName = "catalog"

// App wires together all dependencies and runs the catalog search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	consumers      []*pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	eng, err := newEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	healthHandler := health.NewHandler()
	healthHandler.Register(cfg.SearchEngine, eng.Ping)

	// Redis backs the facet cache, sessions and event deduplication when enabled.
	var rdb *redis.Client
	if cfg.RedisEnabled {
		rdb, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:        cfg.RedisHost,
			Port:        cfg.RedisPort,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			PoolSize:    cfg.RedisPoolSize,
			DialTimeout: cfg.RedisDialTimeout,
			ReadTimeout: cfg.RedisReadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		if err := database.RegisterRedisPoolMetrics(rdb, serviceName); err != nil {
			logger.Warn("redis pool metrics not registered", slog.String("error", err.Error()))
		}
		healthHandler.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
		)
	}

	opts := []service.Option{service.WithHighlightTags(cfg.HighlightPre, cfg.HighlightPost)}
	switch {
	case cfg.FacetCacheEnabled && rdb != nil:
		opts = append(opts, service.WithFacetCache(cache.NewFacetCache(rdb, cfg.FacetCacheTTL, logger)))
		logger.Info("facet cache enabled", slog.Duration("ttl", cfg.FacetCacheTTL))
	case cfg.FacetCacheEnabled:
		logger.Warn("facet cache requested but REDIS_ENABLED is false; serving facets uncached")
	}
	catalogService := service.NewCatalogService(eng, logger, opts...)

	// Kafka consumers keep the index in sync with product events.
	var consumers []*pkgkafka.Consumer
	if cfg.KafkaEnabled {
		var dedup pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(cfg.EventDedupTTL)
		if rdb != nil {
			dedup = pkgkafka.NewRedisIdempotencyStore(rdb, cfg.EventDedupTTL)
		}
		eventConsumer := event.NewConsumer(catalogService, logger)
		for _, topic := range event.Topics() {
			consumers = append(consumers, pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
				Brokers:   cfg.KafkaBrokers,
				GroupID:   cfg.KafkaGroupID,
				Topic:     topic,
				MinBytes:  1,
				MaxBytes:  10e6, // 10 MB
				EnableDLQ: cfg.KafkaDLQEnabled,
			}, pkgkafka.IdempotentHandler(dedup, eventConsumer.Handle, logger), logger))
		}
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
		logger.Info("kafka consumers initialized",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.Int("topic_count", len(consumers)),
		)
	}

	// Request scopes: sessions in Redis when available, in memory otherwise.
	var sessionStore handler.SessionStore = handler.NewMemorySessionStore()
	if rdb != nil {
		sessionStore = handler.NewRedisSessionStore(rdb)
	}
	application := handler.NewApplication()
	application.Set(handler.AppEngineKey, cfg.SearchEngine)
	scopes := handler.NewScopes(handler.NewSessions(sessionStore, cfg.SessionTTL, logger), application, logger)

	router := handler.NewRouter(
		handler.NewCatalogHandler(catalogService, logger),
		scopes,
		healthHandler,
		handler.RouterConfig{
			AdminToken:  cfg.AdminToken,
			PprofCIDRs:  cfg.PprofAllowedCIDRs,
			FacetMaxAge: cfg.FacetCacheMaxAge,
			CORS: middleware.CORSConfig{
				AllowedOrigins:   cfg.CORSAllowedOrigins,
				AllowCredentials: cfg.CORSAllowCredentials,
				ExposedHeaders:   []string{middleware.CorrelationHeader},
			},
		},
		logger,
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		redis:          rdb,
		consumers:      consumers,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newEngine builds the configured search backend.
func newEngine(cfg *config.Config, logger *slog.Logger) (engine.Factory, error) {
	switch cfg.SearchEngine {
	case config.EngineSolr:
		eng, err := solr.New(solr.Config{
			ReadURL:  cfg.SolrURL,
			WriteURL: cfg.SolrUpdateURL,
			Core:     cfg.SolrCore,
			HTTP: httpclient.Config{
				Timeout:         cfg.SolrTimeout,
				MaxRetries:      cfg.SolrMaxRetries,
				RetryWaitMin:    500 * time.Millisecond,
				RetryWaitMax:    5 * time.Second,
				MaxConnsPerHost: 100,
			},
			Breaker: httpclient.CircuitBreakerConfig{
				MaxRequests:  cfg.CBMaxRequests,
				Interval:     time.Duration(cfg.CBInterval) * time.Second,
				Timeout:      time.Duration(cfg.CBTimeout) * time.Second,
				FailureRatio: cfg.CBFailureRatio,
				MinRequests:  cfg.CBMinRequests,
			},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init solr engine: %w", err)
		}
		logger.Info("solr search engine initialized",
			slog.String("url", cfg.SolrURL),
			slog.String("core", cfg.SolrCore),
		)
		return eng, nil
	case config.EngineElasticsearch:
		eng, err := esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
		return eng, nil
	case config.EngineMemory:
		logger.Info("in-memory search engine initialized")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown search engine %q", cfg.SearchEngine)
	}
}

// Handler returns the HTTP handler serving the catalog API.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
