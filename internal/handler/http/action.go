package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Action describes one endpoint: New creates a fresh model per request, Bind
// fills it from the request and Handle runs once the model is valid.
// Bind may be nil for models that take nothing from the request.
type Action[T any] struct {
	New    func() *T
	Bind   func(r *http.Request, model *T) error
	Handle func(w http.ResponseWriter, r *http.Request, model *T, scope *Scope)
}

// Scopes builds the Scope of each request from the shared session manager
// and application attributes.
type Scopes struct {
	sessions *Sessions
	app      *Application
	logger   *slog.Logger
}

// NewScopes creates the scope provider used by Serve.
func NewScopes(sessions *Sessions, app *Application, logger *slog.Logger) *Scopes {
	return &Scopes{sessions: sessions, app: app, logger: logger}
}

// Serve adapts an Action to an http.HandlerFunc. Bind and validation
// failures are answered with 400 before Handle runs; session changes made by
// Handle are saved afterwards.
func Serve[T any](scopes *Scopes, a Action[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		model := a.New()
		if a.Bind != nil {
			if err := a.Bind(r, model); err != nil {
				httputil.WriteValidationError(w, r, err)
				return
			}
		}
		if err := validator.Validate(model); err != nil {
			httputil.WriteValidationError(w, r, err)
			return
		}

		session, err := scopes.sessions.Open(w, r)
		if err != nil {
			httputil.WriteError(w, r, err, scopes.logger)
			return
		}
		defer scopes.sessions.Close(r.Context(), session)

		a.Handle(w, r, model, &Scope{
			Request:     make(map[string]any),
			Session:     session,
			Application: scopes.app,
		})
	}
}

// BindJSON decodes a JSON body of at most 1MB into model.
func BindJSON[T any](r *http.Request, model *T) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(model); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// queryParams reads typed values from the URL query. Empty values count as
// absent.
type queryParams struct {
	r *http.Request
}

func params(r *http.Request) queryParams { return queryParams{r: r} }

func (q queryParams) get(name string) string {
	return strings.TrimSpace(q.r.URL.Query().Get(name))
}

func (q queryParams) optString(name string) *string {
	v := q.get(name)
	if v == "" {
		return nil
	}
	return &v
}

func (q queryParams) optFloat(name string) (*float64, error) {
	v := q.get(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be a valid number", name)
	}
	return &f, nil
}

// list returns every non-empty value of a repeated parameter.
func (q queryParams) list(name string) []string {
	var out []string
	for _, v := range q.r.URL.Query()[name] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
