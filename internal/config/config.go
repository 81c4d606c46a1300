package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/utafrali/catalogsearch/pkg/config"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

// Search engine backends.
const (
	EngineSolr          = "solr"
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the catalog search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`
	// Version is reported in logs and traces. Release builds set it through
	// the environment of the container image.
	Version string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort int `env:"CATALOG_HTTP_PORT" envDefault:"8011"`

	// Search engine selection (solr, elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"solr"`

	// Solr. SOLR_UPDATE_URL defaults to SOLR_URL.
	SolrURL        string        `env:"SOLR_URL" envDefault:"http://localhost:8983/solr"`
	SolrUpdateURL  string        `env:"SOLR_UPDATE_URL"`
	SolrCore       string        `env:"SOLR_CORE" envDefault:"catalog"`
	SolrTimeout    time.Duration `env:"SOLR_TIMEOUT" envDefault:"10s"`
	SolrMaxRetries int           `env:"SOLR_MAX_RETRIES" envDefault:"3"`

	// Circuit breaker settings for engine calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Elasticsearch
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"catalog_products"`

	// Kafka
	KafkaEnabled    bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID    string        `env:"KAFKA_GROUP_ID" envDefault:"catalog-search"`
	KafkaDLQEnabled bool          `env:"KAFKA_DLQ_ENABLED" envDefault:"true"`
	EventDedupTTL   time.Duration `env:"EVENT_DEDUP_TTL" envDefault:"24h"`

	// Redis
	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	// RedisPoolSize of 0 keeps the go-redis default.
	RedisPoolSize    int           `env:"REDIS_POOL_SIZE" envDefault:"0"`
	RedisDialTimeout time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	RedisReadTimeout time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`

	// Facet cache (Redis) and its HTTP Cache-Control max-age in seconds
	FacetCacheEnabled bool          `env:"FACET_CACHE_ENABLED" envDefault:"true"`
	FacetCacheTTL     time.Duration `env:"FACET_CACHE_TTL" envDefault:"5m"`
	FacetCacheMaxAge  int           `env:"FACET_CACHE_MAX_AGE" envDefault:"60"`

	// Sessions
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"30m"`

	// Keyword highlighting
	HighlightPre  string `env:"HIGHLIGHT_PRE" envDefault:"<font color=\"red\">"`
	HighlightPost string `env:"HIGHLIGHT_POST" envDefault:"</font>"`

	// Bearer token required by the write endpoints. Empty leaves them open.
	AdminToken string `env:"ADMIN_TOKEN"`

	// CORS
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation). Empty disables them.
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	// Slow engine call logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid LOG_FORMAT %q: must be json or text", c.LogFormat)
	}

	switch c.SearchEngine {
	case EngineSolr:
		if err := requireURL("SOLR_URL", c.SolrURL); err != nil {
			return err
		}
		if c.SolrUpdateURL != "" {
			if err := requireURL("SOLR_UPDATE_URL", c.SolrUpdateURL); err != nil {
				return err
			}
		}
		if c.SolrCore == "" {
			return fmt.Errorf("SOLR_CORE is required")
		}
		if c.SolrTimeout <= 0 {
			return fmt.Errorf("SOLR_TIMEOUT must be positive, got %s", c.SolrTimeout)
		}
		if c.SolrMaxRetries < 0 {
			return fmt.Errorf("SOLR_MAX_RETRIES must not be negative, got %d", c.SolrMaxRetries)
		}
	case EngineElasticsearch:
		if err := requireURL("ELASTICSEARCH_URL", c.ElasticsearchURL); err != nil {
			return err
		}
		if c.ElasticsearchIndex == "" {
			return fmt.Errorf("ELASTICSEARCH_INDEX is required")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("SEARCH_ENGINE must be one of solr, elasticsearch, memory; got %q", c.SearchEngine)
	}

	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.RedisEnabled && (c.RedisPort < 1 || c.RedisPort > 65535) {
		return fmt.Errorf("invalid Redis port: %d", c.RedisPort)
	}
	if c.RedisPoolSize < 0 {
		return fmt.Errorf("invalid REDIS_POOL_SIZE: %d", c.RedisPoolSize)
	}
	if c.FacetCacheTTL < 0 {
		return fmt.Errorf("FACET_CACHE_TTL must not be negative, got %s", c.FacetCacheTTL)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.CBFailureRatio <= 0 || c.CBFailureRatio > 1.0 {
		return fmt.Errorf("CB_FAILURE_RATIO must be in (0.0, 1.0], got %f", c.CBFailureRatio)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

func requireURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return nil
}
