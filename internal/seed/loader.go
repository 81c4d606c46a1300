package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
)

const productsPath = "/api/v1/catalog/products"

// Config holds the loader settings, read from SEED_* variables.
type Config struct {
	TargetURL   string        `env:"SEED_TARGET_URL" envDefault:"http://localhost:8011"`
	Count       int           `env:"SEED_COUNT" envDefault:"1000"`
	Seed        uint64        `env:"SEED_RANDOM_SEED" envDefault:"42"`
	Concurrency int           `env:"SEED_CONCURRENCY" envDefault:"8"`
	Timeout     time.Duration `env:"SEED_REQUEST_TIMEOUT" envDefault:"10s"`
	AdminToken  string        `env:"ADMIN_TOKEN"`
}

// Validate implements the config loader's validation hook.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.TargetURL, "http://") && !strings.HasPrefix(c.TargetURL, "https://") {
		return fmt.Errorf("invalid SEED_TARGET_URL %q", c.TargetURL)
	}
	if c.Count < 1 {
		return fmt.Errorf("SEED_COUNT must be positive, got %d", c.Count)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("SEED_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

// Stats summarises a load.
type Stats struct {
	Indexed  int64
	Failed   int64
	Duration time.Duration
}

// Loader posts products to the index endpoint of a running service.
type Loader struct {
	cfg    Config
	client *httpclient.Client
	logger *slog.Logger
}

// NewLoader creates a loader with its own retrying HTTP client.
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	return &Loader{
		cfg: cfg,
		client: httpclient.New(httpclient.Config{
			Timeout:         cfg.Timeout,
			MaxRetries:      3,
			RetryWaitMin:    200 * time.Millisecond,
			RetryWaitMax:    2 * time.Second,
			MaxConnsPerHost: cfg.Concurrency,
			UserAgent:       "catalog-seed",
		}),
		logger: logger,
	}
}

// Load indexes products with cfg.Concurrency workers. Individual failures
// are logged and counted; Load itself only fails when ctx ends first.
func (l *Loader) Load(ctx context.Context, products []domain.Product) (Stats, error) {
	start := time.Now()
	jobs := make(chan domain.Product)
	var indexed, failed atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < l.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				if err := l.index(ctx, p); err != nil {
					failed.Add(1)
					l.logger.Warn("index product failed",
						slog.String("product_id", p.ID),
						slog.String("error", err.Error()),
					)
					continue
				}
				if n := indexed.Add(1); n%500 == 0 {
					l.logger.Info("seed progress", slog.Int64("indexed", n), slog.Int("total", len(products)))
				}
			}
		}()
	}

	var err error
feed:
	for _, p := range products {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- p:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	return Stats{Indexed: indexed.Load(), Failed: failed.Load(), Duration: time.Since(start)}, err
}

func (l *Loader) index(ctx context.Context, p domain.Product) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(l.cfg.TargetURL, "/")+productsPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.AdminToken)
	}

	resp, err := l.client.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
