package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticToken(t *testing.T) {
	validate := StaticToken("s3cret", "admin")

	claims, err := validate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "operator", claims.UserID)

	_, err = validate("wrong")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStaticToken_EmptyTokenRejectsEverything(t *testing.T) {
	_, err := StaticToken("", "admin")("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuth_RequireRole(t *testing.T) {
	var seenUser string
	handler := Auth(StaticToken("s3cret", "admin"))(RequireRole("admin")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenUser = UserIDFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}),
	))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic s3cret", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Equal(t, `Bearer realm="catalog"`, w.Header().Get("WWW-Authenticate"))
				assert.Contains(t, w.Body.String(), `"code":"UNAUTHORIZED"`)
			}
		})
	}
	assert.Equal(t, "operator", seenUser)
}

func TestRequireRole_Forbidden(t *testing.T) {
	handler := Auth(StaticToken("s3cret", "viewer"))(RequireRole("admin")(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
	))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"error":{"code":"FORBIDDEN"`)
}
