package middleware

import (
	"fmt"
	"net/http"
)

// CacheControl marks successful GET responses cacheable for maxAge seconds.
// Responses that set a cookie are only cacheable by the client, never by a
// shared cache.
func CacheControl(maxAge int) func(http.Handler) http.Handler {
	public := fmt.Sprintf("public, max-age=%d", maxAge)
	private := fmt.Sprintf("private, max-age=%d", maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			rec := newRecorder(w)
			rec.beforeHeader = func(status int) {
				h := rec.Header()
				switch {
				case status != http.StatusOK:
					h.Set("Cache-Control", "no-store")
				case h.Get("Set-Cookie") != "":
					h.Set("Cache-Control", private)
				default:
					h.Set("Cache-Control", public)
				}
			}
			next.ServeHTTP(rec, r)
		})
	}
}
