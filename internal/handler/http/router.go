package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/catalogsearch/pkg/health"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/middleware"
)

const serviceName = "catalog"

// RouterConfig holds the optional parts of the router.
type RouterConfig struct {
	// AdminToken guards the write endpoints. Empty leaves them open.
	AdminToken string
	// PprofCIDRs enables /debug/pprof for the listed networks.
	PprofCIDRs []string
	// FacetMaxAge is the Cache-Control max-age in seconds of facet lookups.
	FacetMaxAge int
	// CORS defaults to middleware.DefaultCORSConfig when no origin is listed.
	CORS middleware.CORSConfig
}

// NewRouter creates a chi router with all catalog routes registered.
func NewRouter(
	handler *CatalogHandler,
	scopes *Scopes,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	corsCfg := cfg.CORS
	if len(corsCfg.AllowedOrigins) == 0 {
		corsCfg = middleware.DefaultCORSConfig()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(corsCfg))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogging(logger, "/health", "/metrics"))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Get("/search", Serve(scopes, Action[KeywordRequest]{
			New: func() *KeywordRequest { return &KeywordRequest{} }, Bind: bindKeyword, Handle: handler.SearchKeyword,
		}))
		r.Get("/recent-searches", Serve(scopes, Action[struct{}]{
			New: func() *struct{} { return &struct{}{} }, Handle: handler.RecentSearches,
		}))
		r.Get("/info", Serve(scopes, Action[struct{}]{
			New: func() *struct{} { return &struct{}{} }, Handle: handler.Info,
		}))
		r.Get("/documents", Serve(scopes, Action[DocumentsRequest]{
			New: func() *DocumentsRequest { return &DocumentsRequest{} }, Bind: bindDocuments, Handle: handler.QueryDocuments,
		}))
		r.Get("/products", Serve(scopes, Action[ProductFilterRequest]{
			New: func() *ProductFilterRequest { return &ProductFilterRequest{} }, Bind: bindProductFilter, Handle: handler.FindByExample,
		}))
		r.Get("/products/by-attributes", Serve(scopes, Action[CategoryRequest]{
			New: func() *CategoryRequest { return &CategoryRequest{} }, Bind: bindCategory, Handle: handler.FindByCategoryAttributes,
		}))
		r.Get("/products/by-price", Serve(scopes, Action[PriceRangeRequest]{
			New: func() *PriceRangeRequest { return &PriceRangeRequest{} }, Bind: bindPriceRange, Handle: handler.FindByPriceRange,
		}))

		r.Group(func(r chi.Router) {
			if cfg.FacetMaxAge > 0 {
				r.Use(middleware.CacheControl(cfg.FacetMaxAge))
			}
			r.Get("/categories", Serve(scopes, Action[CategoryRequest]{
				New: func() *CategoryRequest { return &CategoryRequest{} }, Bind: bindCategory, Handle: handler.ChildCategories,
			}))
			r.Get("/attributes", Serve(scopes, Action[CategoryRequest]{
				New: func() *CategoryRequest { return &CategoryRequest{} }, Bind: bindCategory, Handle: handler.AttributesByCategory,
			}))
		})

		r.Group(func(r chi.Router) {
			if cfg.AdminToken != "" {
				r.Use(middleware.Auth(middleware.StaticToken(cfg.AdminToken, "admin")))
				r.Use(middleware.RequireRole("admin"))
			}
			r.With(ContentTypeJSON).Post("/products", Serve(scopes, Action[IndexProductRequest]{
				New: func() *IndexProductRequest { return &IndexProductRequest{} }, Bind: BindJSON[IndexProductRequest], Handle: handler.IndexProduct,
			}))
			r.With(ContentTypeJSON).Post("/products/delete-by-query", Serve(scopes, Action[DeleteByQueryRequest]{
				New: func() *DeleteByQueryRequest { return &DeleteByQueryRequest{} }, Bind: BindJSON[DeleteByQueryRequest], Handle: handler.DeleteByQuery,
			}))
			r.Delete("/products/{id}", Serve(scopes, Action[DeleteProductRequest]{
				New: func() *DeleteProductRequest { return &DeleteProductRequest{} }, Bind: bindDeleteProduct, Handle: handler.DeleteProduct,
			}))
		})
	})

	return r
}

// ContentTypeJSON rejects request bodies that are not declared as JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "content type must be application/json"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
