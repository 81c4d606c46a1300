package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
	"github.com/utafrali/catalogsearch/internal/facet"
	"github.com/utafrali/catalogsearch/internal/mapper"
	"github.com/utafrali/catalogsearch/internal/query"
	apperrors "github.com/utafrali/catalogsearch/pkg/errors"
	"github.com/utafrali/catalogsearch/pkg/pagination"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// Default highlight tags wrapped around matched terms in product names.
const (
	DefaultHighlightPre  = `<font color="red">`
	DefaultHighlightPost = `</font>`
)

// facetRows is the page size of facet-only queries; the documents are discarded.
const facetRows = 1

// FacetCache stores facet counts per facet request and cache generation.
// Invalidate must start a new generation so that counts computed before a
// commit, but stored after it, are never served. Implementations must be
// safe for concurrent use.
type FacetCache interface {
	Generation(ctx context.Context) (uint64, error)
	GetFacets(ctx context.Context, gen uint64, req facet.Request) ([]domain.FacetCount, bool, error)
	SetFacets(ctx context.Context, gen uint64, req facet.Request, counts []domain.FacetCount) error
	Invalidate(ctx context.Context) error
}

// Option configures a CatalogService.
type Option func(*CatalogService)

// WithFacetCache enables caching of category and attribute facet lookups.
func WithFacetCache(c FacetCache) Option {
	return func(s *CatalogService) { s.cache = c }
}

// WithHighlightTags overrides the tags used by SearchKeyword.
func WithHighlightTags(pre, post string) Option {
	return func(s *CatalogService) {
		s.highlightPre = pre
		s.highlightPost = post
	}
}

// CatalogService is the catalog search facade. It builds predicates, runs
// them on the engine and shapes the results into products or facet values.
type CatalogService struct {
	reader        engine.Reader
	writer        engine.Writer
	cache         FacetCache
	highlightPre  string
	highlightPost string
	tracer        trace.Tracer
	logger        *slog.Logger
}

// NewCatalogService creates a catalog service on top of the factory's read
// and write clients.
func NewCatalogService(factory engine.Factory, logger *slog.Logger, opts ...Option) *CatalogService {
	s := &CatalogService{
		reader:        factory.Reader(),
		writer:        factory.Writer(),
		highlightPre:  DefaultHighlightPre,
		highlightPost: DefaultHighlightPost,
		tracer:        tracing.Tracer("catalog-service"),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexProduct adds or replaces the product and commits. Attribute tokens
// must follow the name_value convention; the attribute facet of a category
// cannot be grouped once a malformed token is indexed.
func (s *CatalogService) IndexProduct(ctx context.Context, p *domain.Product) (err error) {
	ctx, end := s.span(ctx, "IndexProduct")
	defer func() { end(err) }()

	if p == nil || strings.TrimSpace(p.ID) == "" {
		return apperrors.InvalidInput("product id is required")
	}
	for _, token := range p.Attributes {
		if _, _, err := facet.SplitAttribute(token); err != nil {
			return apperrors.InvalidInput(fmt.Sprintf("attribute %q must have the form name_value", token))
		}
	}

	if err := s.writer.Upsert(ctx, mapper.FromProduct(p)); err != nil {
		return fmt.Errorf("index product: %w", err)
	}
	if err := s.commit(ctx); err != nil {
		return fmt.Errorf("index product: %w", err)
	}

	s.logger.InfoContext(ctx, "product indexed",
		slog.String("product_id", p.ID),
		slog.String("name", p.Name),
	)
	return nil
}

// DeleteProduct removes the product with the given id and commits. Deleting
// an id that is not indexed succeeds.
func (s *CatalogService) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, end := s.span(ctx, "DeleteProduct", attribute.String("product_id", id))
	defer func() { end(err) }()

	if strings.TrimSpace(id) == "" {
		return apperrors.InvalidInput("product id is required")
	}

	if err := s.writer.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if err := s.commit(ctx); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	s.logger.InfoContext(ctx, "product deleted from index",
		slog.String("product_id", id),
	)
	return nil
}

// DeleteByQuery removes every product matching predicate and commits. An
// empty predicate is rejected; pass "*:*" to clear the index.
func (s *CatalogService) DeleteByQuery(ctx context.Context, predicate string) (err error) {
	ctx, end := s.span(ctx, "DeleteByQuery", attribute.String("predicate", predicate))
	defer func() { end(err) }()

	if strings.TrimSpace(predicate) == "" {
		return apperrors.InvalidInput("delete predicate is required")
	}

	if err := s.writer.DeleteByQuery(ctx, predicate); err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}
	if err := s.commit(ctx); err != nil {
		return fmt.Errorf("delete by query: %w", err)
	}

	s.logger.InfoContext(ctx, "products deleted by query",
		slog.String("predicate", predicate),
	)
	return nil
}

// QueryDocuments runs predicate and returns the raw engine documents. An
// empty predicate matches everything.
func (s *CatalogService) QueryDocuments(ctx context.Context, predicate string, page pagination.Params) (_ pagination.Result[domain.Document], err error) {
	ctx, end := s.span(ctx, "QueryDocuments", attribute.String("predicate", predicate))
	defer func() { end(err) }()

	if strings.TrimSpace(predicate) == "" {
		predicate = domain.MatchAll
	}
	page = page.Normalize()

	resp, err := s.reader.Execute(ctx, pageQuery(predicate, page))
	if err != nil {
		return pagination.Result[domain.Document]{}, fmt.Errorf("query documents: %w", err)
	}
	return pagination.NewResult(resp.Documents, resp.NumFound, page), nil
}

// FindByExample returns the products matching any of the filter's set
// fields.
func (s *CatalogService) FindByExample(ctx context.Context, f domain.ProductFilter, page pagination.Params) (pagination.Result[domain.Product], error) {
	return s.findProducts(ctx, "FindByExample", query.FromFilter(f, query.Or), page)
}

// FindByCategoryAttributes returns the products in the most specific set
// category level that carry every attribute token.
func (s *CatalogService) FindByCategoryAttributes(ctx context.Context, c domain.Category, attrs []string, page pagination.Params) (pagination.Result[domain.Product], error) {
	return s.findProducts(ctx, "FindByCategoryAttributes", query.AttributeQuery(c, attrs), page)
}

// FindByPriceRange narrows a category listing to products priced within
// [MinPrice, MaxPrice].
func (s *CatalogService) FindByPriceRange(ctx context.Context, f domain.PriceFilter, page pagination.Params) (pagination.Result[domain.Product], error) {
	if f.MinPrice > f.MaxPrice {
		return pagination.Result[domain.Product]{}, apperrors.InvalidInput(
			fmt.Sprintf("min price %s is greater than max price %s",
				query.FormatNumber(f.MinPrice), query.FormatNumber(f.MaxPrice)))
	}
	return s.findProducts(ctx, "FindByPriceRange", query.PriceQuery(f), page)
}

// SearchKeyword matches label against product names and labels. Matched
// terms in the returned names are wrapped in the highlight tags.
func (s *CatalogService) SearchKeyword(ctx context.Context, label string, page pagination.Params) (_ pagination.Result[domain.Product], err error) {
	ctx, end := s.span(ctx, "SearchKeyword", attribute.String("keyword", label))
	defer func() { end(err) }()

	label = strings.TrimSpace(label)
	if label == "" {
		return pagination.Result[domain.Product]{}, apperrors.InvalidInput("search keyword is required")
	}
	page = page.Normalize()

	q := pageQuery(query.Keyword(label), page)
	q.Highlight = &domain.Highlight{
		Fields: []string{domain.FieldName},
		Pre:    s.highlightPre,
		Post:   s.highlightPost,
	}

	resp, err := s.reader.Execute(ctx, q)
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("search keyword: %w", err)
	}

	docs := mapper.ApplyHighlights(resp.Documents, resp.Highlighting, domain.FieldName)
	products, err := mapper.ToProducts(docs)
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("search keyword: %w", err)
	}

	s.logger.DebugContext(ctx, "keyword search executed",
		slog.String("keyword", label),
		slog.Int("total", resp.NumFound),
		slog.Int64("took_ms", resp.QTimeMs),
	)
	return pagination.NewResult(products, resp.NumFound, page), nil
}

// ChildCategories returns the category values one level below the deepest
// set level of c among type1 and type2.
func (s *CatalogService) ChildCategories(ctx context.Context, c domain.Category) (_ []string, err error) {
	ctx, end := s.span(ctx, "ChildCategories")
	defer func() { end(err) }()

	req := facet.ChildLevel(c)
	counts, err := s.facets(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("child categories: %w", err)
	}
	return facet.Values(counts, req.Field), nil
}

// AttributesByCategory returns the attribute names and values present in
// the most specific set level of c.
func (s *CatalogService) AttributesByCategory(ctx context.Context, c domain.Category) (_ domain.AttributeMap, err error) {
	ctx, end := s.span(ctx, "AttributesByCategory")
	defer func() { end(err) }()

	req := facet.Attributes(c)
	counts, err := s.facets(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("attributes by category: %w", err)
	}
	attrs, err := facet.GroupAttributes(counts, req.Field)
	if err != nil {
		return nil, fmt.Errorf("attributes by category: %w", err)
	}
	return attrs, nil
}

func (s *CatalogService) findProducts(ctx context.Context, op, predicate string, page pagination.Params) (_ pagination.Result[domain.Product], err error) {
	ctx, end := s.span(ctx, op, attribute.String("predicate", predicate))
	defer func() { end(err) }()

	page = page.Normalize()
	resp, err := s.reader.Execute(ctx, pageQuery(predicate, page))
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("%s: %w", op, err)
	}

	products, err := mapper.ToProducts(resp.Documents)
	if err != nil {
		return pagination.Result[domain.Product]{}, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.DebugContext(ctx, "product query executed",
		slog.String("operation", op),
		slog.String("predicate", predicate),
		slog.Int("total", resp.NumFound),
	)
	return pagination.NewResult(products, resp.NumFound, page), nil
}

// facets returns the counts for req, consulting the cache first. Cache
// failures are logged and fall through to the engine.
func (s *CatalogService) facets(ctx context.Context, req facet.Request) ([]domain.FacetCount, error) {
	cached := s.cache != nil
	var gen uint64
	if cached {
		var err error
		if gen, err = s.cache.Generation(ctx); err != nil {
			s.logger.WarnContext(ctx, "facet cache read failed", slog.String("error", err.Error()))
			cached = false
		}
	}
	if cached {
		counts, ok, err := s.cache.GetFacets(ctx, gen, req)
		if err != nil {
			s.logger.WarnContext(ctx, "facet cache read failed", slog.String("error", err.Error()))
		} else if ok {
			return counts, nil
		}
	}

	resp, err := s.reader.Execute(ctx, &domain.Query{
		Q:             req.Scope,
		Rows:          facetRows,
		FacetFields:   []string{req.Field},
		FacetMinCount: 1,
		FacetLimit:    -1,
	})
	if err != nil {
		return nil, err
	}

	if cached {
		if err := s.cache.SetFacets(ctx, gen, req, resp.FacetCounts); err != nil {
			s.logger.WarnContext(ctx, "facet cache write failed", slog.String("error", err.Error()))
		}
	}
	return resp.FacetCounts, nil
}

// commit makes pending writes visible and drops cached facets, which may
// now be stale.
func (s *CatalogService) commit(ctx context.Context) error {
	if err := s.writer.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "facet cache invalidation failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *CatalogService) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := s.tracer.Start(ctx, "catalog."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		tracing.RecordError(span, err)
		span.End()
	}
}

func pageQuery(predicate string, page pagination.Params) *domain.Query {
	return &domain.Query{Q: predicate, Start: page.Offset, Rows: page.PerPage}
}
