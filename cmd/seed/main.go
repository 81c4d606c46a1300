// Command seed indexes generated products into a running catalog service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utafrali/catalogsearch/internal/seed"
	pkgconfig "github.com/utafrali/catalogsearch/pkg/config"
	"github.com/utafrali/catalogsearch/pkg/logger"
)

func main() {
	log := logger.New("catalog-seed", os.Getenv("LOG_LEVEL"))

	var cfg seed.Config
	if err := pkgconfig.Load(&cfg); err != nil {
		log.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	products := seed.Products(cfg.Count, cfg.Seed)
	log.Info("seeding catalog",
		slog.String("target", cfg.TargetURL),
		slog.Int("products", len(products)),
		slog.Int("concurrency", cfg.Concurrency),
	)

	stats, err := seed.NewLoader(cfg, log).Load(ctx, products)
	log.Info("seed finished",
		slog.Int64("indexed", stats.Indexed),
		slog.Int64("failed", stats.Failed),
		slog.Duration("duration", stats.Duration),
	)
	if err != nil || stats.Failed > 0 {
		os.Exit(1)
	}
}
