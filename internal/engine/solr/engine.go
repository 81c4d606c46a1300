// Package solr talks to an Apache Solr core over its JSON HTTP API.
package solr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/catalogsearch/internal/engine"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
)

const system = "solr"

// Config holds the Solr endpoints. ReadURL and WriteURL point at the Solr
// root (e.g. http://localhost:8983/solr); a replicated deployment sends
// writes to the leader and reads to a replica.
type Config struct {
	ReadURL  string
	WriteURL string
	Core     string
	HTTP     httpclient.Config
	// Breaker tunes the read and write circuit breakers. The zero value
	// uses httpclient.DefaultCircuitBreakerConfig.
	Breaker httpclient.CircuitBreakerConfig
}

func (c Config) breaker(name string) httpclient.CircuitBreakerConfig {
	if c.Breaker == (httpclient.CircuitBreakerConfig{}) {
		return httpclient.DefaultCircuitBreakerConfig(name)
	}
	b := c.Breaker
	b.Name = name
	return b
}

// Engine is the Solr-backed engine factory.
type Engine struct {
	reader *Reader
	writer *Writer
	logger *slog.Logger
}

var _ engine.Factory = (*Engine)(nil)

// New builds read and write clients for the configured core. Each client
// gets its own circuit breaker so a failing leader does not stop reads.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if cfg.ReadURL == "" {
		return nil, fmt.Errorf("solr: read url is required")
	}
	if cfg.Core == "" {
		return nil, fmt.Errorf("solr: core is required")
	}
	if cfg.WriteURL == "" {
		cfg.WriteURL = cfg.ReadURL
	}

	base := httpclient.New(cfg.HTTP)
	readHTTP := httpclient.NewCircuitBreakerClient(base, cfg.breaker("solr-read"), logger)
	writeHTTP := httpclient.NewCircuitBreakerClient(base, cfg.breaker("solr-write"), logger)

	return &Engine{
		reader: &Reader{http: readHTTP, coreURL: coreURL(cfg.ReadURL, cfg.Core), logger: logger},
		writer: &Writer{http: writeHTTP, coreURL: coreURL(cfg.WriteURL, cfg.Core), logger: logger},
		logger: logger,
	}, nil
}

// Reader returns the query client.
func (e *Engine) Reader() engine.Reader { return e.reader }

// Writer returns the update client.
func (e *Engine) Writer() engine.Writer { return e.writer }

// Ping checks the core's ping handler through the read client.
func (e *Engine) Ping(ctx context.Context) error {
	resp, err := e.reader.http.Get(ctx, e.reader.coreURL+"/admin/ping?wt=json")
	if err != nil {
		return transportError("ping", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solr ping: %w", httpclient.ParseResponseError(resp, system))
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("solr ping: decode response: %w", err)
	}
	if body.Status != "OK" {
		return fmt.Errorf("solr ping: status %q", body.Status)
	}
	return nil
}

func coreURL(root, core string) string {
	return strings.TrimRight(root, "/") + "/" + core
}

// transportError marks an open circuit as unavailability so callers answer
// 503 while keeping the breaker error in the chain.
func transportError(op string, err error) error {
	if errors.Is(err, httpclient.ErrCircuitOpen) {
		return fmt.Errorf("solr %s: %w: %w", op, apperrors.Unavailable("solr: circuit open"), err)
	}
	return fmt.Errorf("solr %s: %w", op, err)
}

// responseHeader is present on every Solr JSON response.
type responseHeader struct {
	Status int   `json:"status"`
	QTime  int64 `json:"QTime"`
}
