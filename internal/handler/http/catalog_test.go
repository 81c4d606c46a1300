package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine/memory"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/health"
)

type response struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

type productPage struct {
	Data       []domain.Product `json:"data"`
	TotalCount int              `json:"total_count"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
	HasNext    bool             `json:"has_next"`
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixture = []*domain.Product{
	{ID: "1", Name: "Red Phone", Label: "smart", Price: 199, Type1: "electronics", Type2: "mobile", Type3: "phones", Attributes: []string{"color_red", "size_l"}},
	{ID: "2", Name: "Blue Phone", Price: 99, Type1: "electronics", Type2: "mobile", Type3: "phones", Attributes: []string{"color_blue"}},
	{ID: "3", Name: "Phone Case", Price: 15, Type1: "electronics", Type2: "mobile", Type3: "cases", Attributes: []string{"color_red"}},
	{ID: "4", Name: "Kettle", Price: 30, Type1: "home", Type2: "kitchen", Type3: "appliances"},
}

func newTestRouter(t *testing.T, cfg RouterConfig) http.Handler {
	t.Helper()
	logger := newTestLogger()
	svc := service.NewCatalogService(memory.New(), logger)
	for _, p := range fixture {
		require.NoError(t, svc.IndexProduct(context.Background(), p))
	}

	app := NewApplication()
	app.Set(AppEngineKey, "memory")
	scopes := NewScopes(NewSessions(NewMemorySessionStore(), 0, logger), app, logger)
	return NewRouter(NewCatalogHandler(svc, logger), scopes, health.NewHandler(), cfg, logger)
}

func do(t *testing.T, h http.Handler, method, target, body string, mutate ...func(*http.Request)) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mutate {
		m(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func decodePage(t *testing.T, resp response) productPage {
	t.Helper()
	var page productPage
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	return page
}

func ids(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

// --- Search ---

func TestSearch_HighlightsNames(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/search?q=kettle", "")
	require.Equal(t, http.StatusOK, w.Code)

	page := decodePage(t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, `<font color="red">Kettle</font>`, page.Data[0].Name)
	assert.Equal(t, 1, page.TotalCount)
}

func TestSearch_RequiresKeyword(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, "is required", resp.Error.Fields["q"])
}

func TestSearch_RejectsQuerySyntax(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	target := "/api/v1/catalog/search?q=" + url.QueryEscape("x OR goodsprice:[0 TO 1]")
	w, resp := do(t, router, http.MethodGet, target, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Fields["q"], "must not contain")
}

func TestSearch_Paginates(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/search?q=phone&page=2&per_page=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	page := decodePage(t, resp)
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.HasNext)
	assert.Equal(t, []string{"3"}, ids(page.Data))
}

func TestRecentSearches_FollowSessionCookie(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, _ := do(t, router, http.MethodGet, "/api/v1/catalog/search?q=phone", "")
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)

	withCookie := func(r *http.Request) { r.AddCookie(cookies[0]) }
	w, _ = do(t, router, http.MethodGet, "/api/v1/catalog/search?q=kettle", "", withCookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies(), "existing session is reused")

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/recent-searches", "", withCookie)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Searches []string `json:"searches"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, []string{"kettle", "phone"}, data.Searches)

	// A new client starts with no history.
	_, resp = do(t, router, http.MethodGet, "/api/v1/catalog/recent-searches", "")
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Empty(t, data.Searches)
}

func TestInfo_ReadsApplicationScope(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"engine":"memory"}`, string(resp.Data))
}

// --- Product queries ---

func TestFindByExample(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products?name=kettle&type3=cases", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"3", "4"}, ids(decodePage(t, resp).Data))
}

func TestFindByExample_InvalidPrice(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products?price=cheap", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "price must be a valid number")
}

func TestFindByExample_RejectsQuerySyntaxInAttributes(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products?attr=color_red&attr="+url.QueryEscape("*:*"), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Fields, "attr")
}

func TestFindByCategoryAttributes(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products/by-attributes?type2=mobile&attr=color_red", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"1", "3"}, ids(decodePage(t, resp).Data))
}

func TestFindByPriceRange(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products/by-price?min=10&max=100&type2=mobile", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"2", "3"}, ids(decodePage(t, resp).Data))
}

func TestFindByPriceRange_RequiresBounds(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products/by-price?min=10", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "is required", resp.Error.Fields["max"])
}

func TestFindByPriceRange_MinAboveMax(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/products/by-price?min=20&max=10", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestQueryDocuments(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/documents?q="+url.QueryEscape("goodstype1:home"), "")
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Data       []map[string]any `json:"data"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "Kettle", page.Data[0]["goodsname"])
}

func TestQueryDocuments_MalformedPredicate(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, _ := do(t, router, http.MethodGet, "/api/v1/catalog/documents?q="+url.QueryEscape("goodsprice:[1 TO"), "")
	assert.GreaterOrEqual(t, w.Code, http.StatusBadRequest)
}

// --- Facets ---

func TestChildCategories(t *testing.T) {
	router := newTestRouter(t, RouterConfig{FacetMaxAge: 60})

	tests := []struct {
		query string
		want  []string
	}{
		{query: "", want: []string{"electronics", "home"}},
		{query: "type1=electronics", want: []string{"mobile"}},
		{query: "type1=electronics&type2=mobile", want: []string{"phones", "cases"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/categories?"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code)
			// First visit issues a session cookie.
			assert.Equal(t, "private, max-age=60", w.Header().Get("Cache-Control"))

			var data struct {
				Categories []string `json:"categories"`
			}
			require.NoError(t, json.Unmarshal(resp.Data, &data))
			assert.Equal(t, tt.want, data.Categories)
		})
	}
}

func TestAttributesByCategory(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodGet, "/api/v1/catalog/attributes?type2=mobile&type3=phones", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Cache-Control"))

	var data struct {
		Attributes domain.AttributeMap `json:"attributes"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, domain.AttributeMap{
		"color": {"blue", "red"},
		"size":  {"l"},
	}, data.Attributes)
}

// --- Writes ---

func TestIndexProduct_ThenSearch(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	body := `{"id":"5","goodsname":"Garden Rake","goodsprice":12.5,"goodstype1":"garden","goodsattributes":["material_steel"]}`
	w, resp := do(t, router, http.MethodPost, "/api/v1/catalog/products", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"5","status":"indexed"}`, string(resp.Data))

	w, resp = do(t, router, http.MethodGet, "/api/v1/catalog/products?id=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decodePage(t, resp)
	require.Len(t, page.Data, 1)
	assert.Equal(t, domain.Product{
		ID: "5", Name: "Garden Rake", Price: 12.5, Type1: "garden", Attributes: []string{"material_steel"},
	}, page.Data[0])
}

func TestIndexProduct_Validation(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing id", body: `{"goodsname":"x"}`, field: "id"},
		{name: "missing name", body: `{"id":"9"}`, field: "goodsname"},
		{name: "negative price", body: `{"id":"9","goodsname":"x","goodsprice":-1}`, field: "goodsprice"},
		{name: "attribute without separator", body: `{"id":"9","goodsname":"x","goodsattributes":["waterproof"]}`, field: "goodsattributes"},
		{name: "attribute without name", body: `{"id":"9","goodsname":"x","goodsattributes":["color_red","_red"]}`, field: "goodsattributes"},
		{name: "query syntax in id", body: `{"id":"9 OR *:*","goodsname":"x"}`, field: "id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := do(t, router, http.MethodPost, "/api/v1/catalog/products", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, resp.Error)
			assert.Contains(t, resp.Error.Fields, tt.field)
		})
	}
}

func TestIndexProduct_RejectsInvalidJSON(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodPost, "/api/v1/catalog/products", "not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestIndexProduct_RejectsBodyOver1MB(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	body := `{"id":"big","goodsname":"` + strings.Repeat("x", 1<<20+1) + `"}`
	w, resp := do(t, router, http.MethodPost, "/api/v1/catalog/products", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
}

func TestIndexProduct_RejectsNonJSONContentType(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, _ := do(t, router, http.MethodPost, "/api/v1/catalog/products", `{"id":"1","goodsname":"x"}`,
		func(r *http.Request) { r.Header.Set("Content-Type", "text/plain") })
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestDeleteProduct(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodDelete, "/api/v1/catalog/products/4", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"4","status":"deleted"}`, string(resp.Data))

	_, resp = do(t, router, http.MethodGet, "/api/v1/catalog/categories", "")
	var data struct {
		Categories []string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, []string{"electronics"}, data.Categories)
}

func TestDeleteByQuery(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, _ := do(t, router, http.MethodPost, "/api/v1/catalog/products/delete-by-query", `{"query":"goodstype2:mobile"}`)
	require.Equal(t, http.StatusOK, w.Code)

	_, resp := do(t, router, http.MethodGet, "/api/v1/catalog/documents", "")
	var page struct {
		TotalCount int `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 1, page.TotalCount)
}

func TestDeleteByQuery_RequiresQuery(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, resp := do(t, router, http.MethodPost, "/api/v1/catalog/products/delete-by-query", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestWrites_RequireAdminTokenWhenConfigured(t *testing.T) {
	router := newTestRouter(t, RouterConfig{AdminToken: "s3cret"})

	w, _ := do(t, router, http.MethodDelete, "/api/v1/catalog/products/1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/api/v1/catalog/products/1", "",
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, router, http.MethodDelete, "/api/v1/catalog/products/1", "",
		func(r *http.Request) { r.Header.Set("Authorization", "Bearer s3cret") })
	assert.Equal(t, http.StatusOK, w.Code)

	// Reads stay open.
	w, _ = do(t, router, http.MethodGet, "/api/v1/catalog/categories", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Infrastructure ---

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router := newTestRouter(t, RouterConfig{})

	w, _ := do(t, router, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPprof_DeniedOutsideAllowlist(t *testing.T) {
	router := newTestRouter(t, RouterConfig{PprofCIDRs: []string{"10.0.0.0/8"}})

	w, _ := do(t, router, http.MethodGet, "/debug/pprof/", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}
