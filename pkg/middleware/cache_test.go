package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheControl(t *testing.T) {
	tests := []struct {
		name   string
		method string
		status int
		cookie bool
		want   string
	}{
		{name: "shareable", method: http.MethodGet, status: http.StatusOK, want: "public, max-age=60"},
		{name: "sets cookie", method: http.MethodGet, status: http.StatusOK, cookie: true, want: "private, max-age=60"},
		{name: "error", method: http.MethodGet, status: http.StatusBadGateway, want: "no-store"},
		{name: "not a read", method: http.MethodPost, status: http.StatusOK, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := CacheControl(60)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.cookie {
					http.SetCookie(w, &http.Cookie{Name: "sid", Value: "1"})
				}
				w.WriteHeader(tt.status)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/v1/catalog/categories", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Cache-Control"))
		})
	}
}

func TestCacheControl_ImplicitWrite(t *testing.T) {
	h := CacheControl(30)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "public, max-age=30", rec.Header().Get("Cache-Control"))
}
