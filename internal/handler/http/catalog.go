package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/pagination"
)

const (
	recentSearchesKey = "recent_searches"
	maxRecentSearches = 10

	// AppEngineKey is the application attribute naming the active backend.
	AppEngineKey = "engine"
)

// Catalog is the facade the handlers call.
type Catalog interface {
	IndexProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	DeleteByQuery(ctx context.Context, predicate string) error
	QueryDocuments(ctx context.Context, predicate string, page pagination.Params) (pagination.Result[domain.Document], error)
	FindByExample(ctx context.Context, f domain.ProductFilter, page pagination.Params) (pagination.Result[domain.Product], error)
	FindByCategoryAttributes(ctx context.Context, c domain.Category, attrs []string, page pagination.Params) (pagination.Result[domain.Product], error)
	FindByPriceRange(ctx context.Context, f domain.PriceFilter, page pagination.Params) (pagination.Result[domain.Product], error)
	SearchKeyword(ctx context.Context, label string, page pagination.Params) (pagination.Result[domain.Product], error)
	ChildCategories(ctx context.Context, c domain.Category) ([]string, error)
	AttributesByCategory(ctx context.Context, c domain.Category) (domain.AttributeMap, error)
}

// CatalogHandler handles HTTP requests for catalog endpoints.
type CatalogHandler struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(catalog Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// --- Request models ---

// KeywordRequest is the model of GET /search.
type KeywordRequest struct {
	Q    string `param:"q" validate:"required,max=200,querysafe"`
	Page pagination.Params
}

// DocumentsRequest is the model of GET /documents. Q is a raw predicate.
type DocumentsRequest struct {
	Q    string `param:"q" validate:"max=1000"`
	Page pagination.Params
}

// ProductFilterRequest is the model of GET /products.
type ProductFilterRequest struct {
	ID         *string  `param:"id" validate:"omitempty,querysafe"`
	Name       *string  `param:"name" validate:"omitempty,max=200,querysafe"`
	Label      *string  `param:"label" validate:"omitempty,max=200,querysafe"`
	Price      *float64 `param:"price" validate:"omitempty,gte=0"`
	Type1      *string  `param:"type1" validate:"omitempty,querysafe"`
	Type2      *string  `param:"type2" validate:"omitempty,querysafe"`
	Type3      *string  `param:"type3" validate:"omitempty,querysafe"`
	Pic        *string  `param:"pic" validate:"omitempty,querysafe"`
	Attributes []string `param:"attr" validate:"dive,querysafe"`
	Page       pagination.Params
}

// CategoryRequest is the model of the category-scoped endpoints.
type CategoryRequest struct {
	Type1      string   `param:"type1" validate:"omitempty,querysafe"`
	Type2      string   `param:"type2" validate:"omitempty,querysafe"`
	Type3      string   `param:"type3" validate:"omitempty,querysafe"`
	Attributes []string `param:"attr" validate:"dive,querysafe"`
	Page       pagination.Params
}

func (c *CategoryRequest) category() domain.Category {
	return domain.Category{Type1: c.Type1, Type2: c.Type2, Type3: c.Type3}
}

// PriceRangeRequest is the model of GET /products/by-price.
type PriceRangeRequest struct {
	CategoryRequest
	Min *float64 `param:"min" validate:"required,gte=0"`
	Max *float64 `param:"max" validate:"required,gte=0"`
}

// IndexProductRequest is the JSON request body for indexing a product.
type IndexProductRequest struct {
	ID         string   `json:"id" validate:"required,max=128,querysafe"`
	Name       string   `json:"goodsname" validate:"required,min=1,max=500"`
	Label      string   `json:"goodslabel" validate:"max=500"`
	Price      float64  `json:"goodsprice" validate:"gte=0"`
	Type1      string   `json:"goodstype1" validate:"omitempty,querysafe"`
	Type2      string   `json:"goodstype2" validate:"omitempty,querysafe"`
	Type3      string   `json:"goodstype3" validate:"omitempty,querysafe"`
	Attributes []string `json:"goodsattributes" validate:"dive,required,contains=_,startsnotwith=_,querysafe"`
	Pic        string   `json:"goodspic" validate:"max=2048"`
}

// DeleteByQueryRequest is the JSON request body for deleting by predicate.
type DeleteByQueryRequest struct {
	Query string `json:"query" validate:"required,max=1000"`
}

// DeleteProductRequest carries the id path parameter.
type DeleteProductRequest struct {
	ID string `param:"id" validate:"required"`
}

// --- Binders ---

func bindKeyword(r *http.Request, m *KeywordRequest) error {
	m.Q = params(r).get("q")
	m.Page = pagination.FromRequest(r)
	return nil
}

func bindDocuments(r *http.Request, m *DocumentsRequest) error {
	m.Q = params(r).get("q")
	m.Page = pagination.FromRequest(r)
	return nil
}

func bindProductFilter(r *http.Request, m *ProductFilterRequest) error {
	q := params(r)
	price, err := q.optFloat("price")
	if err != nil {
		return err
	}
	m.ID = q.optString("id")
	m.Name = q.optString("name")
	m.Label = q.optString("label")
	m.Price = price
	m.Type1 = q.optString("type1")
	m.Type2 = q.optString("type2")
	m.Type3 = q.optString("type3")
	m.Pic = q.optString("pic")
	m.Attributes = q.list("attr")
	m.Page = pagination.FromRequest(r)
	return nil
}

func bindCategory(r *http.Request, m *CategoryRequest) error {
	q := params(r)
	m.Type1 = q.get("type1")
	m.Type2 = q.get("type2")
	m.Type3 = q.get("type3")
	m.Attributes = q.list("attr")
	m.Page = pagination.FromRequest(r)
	return nil
}

func bindPriceRange(r *http.Request, m *PriceRangeRequest) error {
	if err := bindCategory(r, &m.CategoryRequest); err != nil {
		return err
	}
	q := params(r)
	var err error
	if m.Min, err = q.optFloat("min"); err != nil {
		return err
	}
	if m.Max, err = q.optFloat("max"); err != nil {
		return err
	}
	return nil
}

func bindDeleteProduct(r *http.Request, m *DeleteProductRequest) error {
	m.ID = strings.TrimSpace(chi.URLParam(r, "id"))
	return nil
}

// --- Handlers ---

// SearchKeyword handles GET /api/v1/catalog/search and records the keyword
// in the caller's session.
func (h *CatalogHandler) SearchKeyword(w http.ResponseWriter, r *http.Request, m *KeywordRequest, scope *Scope) {
	result, err := h.catalog.SearchKeyword(r.Context(), m.Q, m.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	rememberSearch(scope.Session, m.Q)
	writePage(w, result)
}

// RecentSearches handles GET /api/v1/catalog/recent-searches.
func (h *CatalogHandler) RecentSearches(w http.ResponseWriter, _ *http.Request, _ *struct{}, scope *Scope) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]any{"searches": recentSearches(scope.Session)},
	})
}

// QueryDocuments handles GET /api/v1/catalog/documents.
func (h *CatalogHandler) QueryDocuments(w http.ResponseWriter, r *http.Request, m *DocumentsRequest, _ *Scope) {
	result, err := h.catalog.QueryDocuments(r.Context(), m.Q, m.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// FindByExample handles GET /api/v1/catalog/products.
func (h *CatalogHandler) FindByExample(w http.ResponseWriter, r *http.Request, m *ProductFilterRequest, _ *Scope) {
	filter := domain.ProductFilter{
		ID:         m.ID,
		Name:       m.Name,
		Label:      m.Label,
		Price:      m.Price,
		Type1:      m.Type1,
		Type2:      m.Type2,
		Type3:      m.Type3,
		Pic:        m.Pic,
		Attributes: m.Attributes,
	}
	result, err := h.catalog.FindByExample(r.Context(), filter, m.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// FindByCategoryAttributes handles GET /api/v1/catalog/products/by-attributes.
func (h *CatalogHandler) FindByCategoryAttributes(w http.ResponseWriter, r *http.Request, m *CategoryRequest, _ *Scope) {
	result, err := h.catalog.FindByCategoryAttributes(r.Context(), m.category(), m.Attributes, m.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// FindByPriceRange handles GET /api/v1/catalog/products/by-price.
func (h *CatalogHandler) FindByPriceRange(w http.ResponseWriter, r *http.Request, m *PriceRangeRequest, _ *Scope) {
	result, err := h.catalog.FindByPriceRange(r.Context(), domain.PriceFilter{
		Category:   m.category(),
		Attributes: m.Attributes,
		MinPrice:   *m.Min,
		MaxPrice:   *m.Max,
	}, m.Page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// ChildCategories handles GET /api/v1/catalog/categories.
func (h *CatalogHandler) ChildCategories(w http.ResponseWriter, r *http.Request, m *CategoryRequest, _ *Scope) {
	values, err := h.catalog.ChildCategories(r.Context(), m.category())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]any{"categories": values})
}

// AttributesByCategory handles GET /api/v1/catalog/attributes.
func (h *CatalogHandler) AttributesByCategory(w http.ResponseWriter, r *http.Request, m *CategoryRequest, _ *Scope) {
	attrs, err := h.catalog.AttributesByCategory(r.Context(), m.category())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]any{"attributes": attrs})
}

// IndexProduct handles POST /api/v1/catalog/products.
func (h *CatalogHandler) IndexProduct(w http.ResponseWriter, r *http.Request, m *IndexProductRequest, _ *Scope) {
	p := &domain.Product{
		ID:         m.ID,
		Name:       m.Name,
		Label:      m.Label,
		Price:      m.Price,
		Type1:      m.Type1,
		Type2:      m.Type2,
		Type3:      m.Type3,
		Attributes: m.Attributes,
		Pic:        m.Pic,
	}
	if err := h.catalog.IndexProduct(r.Context(), p); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]string{"id": m.ID, "status": "indexed"})
}

// DeleteProduct handles DELETE /api/v1/catalog/products/{id}.
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request, m *DeleteProductRequest, _ *Scope) {
	if err := h.catalog.DeleteProduct(r.Context(), m.ID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]string{"id": m.ID, "status": "deleted"})
}

// DeleteByQuery handles POST /api/v1/catalog/products/delete-by-query.
func (h *CatalogHandler) DeleteByQuery(w http.ResponseWriter, r *http.Request, m *DeleteByQueryRequest, _ *Scope) {
	if err := h.catalog.DeleteByQuery(r.Context(), m.Query); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, map[string]string{"query": m.Query, "status": "deleted"})
}

// Info handles GET /api/v1/catalog/info.
func (h *CatalogHandler) Info(w http.ResponseWriter, _ *http.Request, _ *struct{}, scope *Scope) {
	engine, _ := scope.Application.Get(AppEngineKey)
	httputil.WriteData(w, map[string]any{"engine": engine})
}

func writePage[T any](w http.ResponseWriter, result pagination.Result[T]) {
	httputil.WriteData(w, result)
}

// rememberSearch keeps the most recent distinct keywords, newest first.
func rememberSearch(s *Session, keyword string) {
	searches := []string{keyword}
	for _, prev := range recentSearches(s) {
		if prev != keyword && len(searches) < maxRecentSearches {
			searches = append(searches, prev)
		}
	}
	s.Set(recentSearchesKey, strings.Join(searches, "\n"))
}

func recentSearches(s *Session) []string {
	raw, ok := s.Get(recentSearchesKey)
	if !ok || raw == "" {
		return []string{}
	}
	return strings.Split(raw, "\n")
}
