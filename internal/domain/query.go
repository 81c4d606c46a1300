package domain

import (
	"encoding/json"
	"errors"
	"strconv"
)

// MatchAll is the predicate that matches every document.
const MatchAll = "*:*"

var (
	// ErrMalformedFacetValue is returned when an attribute facet token does not
	// follow the name_value convention.
	ErrMalformedFacetValue = errors.New("malformed attribute facet value")

	// ErrDocumentMapping is returned when an engine document cannot be
	// converted into a Product.
	ErrDocumentMapping = errors.New("document mapping failed")
)

// Document is a raw engine document: field name to value. Multi-valued
// fields hold []any or []string.
type Document map[string]any

// ID returns the document id as a string, or "" when absent. Numeric ids
// render in their canonical form, so 1 and 1.0 both yield "1".
func (d Document) ID() string {
	id, _ := FormatID(d[FieldID])
	return id
}

// FormatID renders an id value decoded from an engine response. Cores with a
// numeric unique key return numbers rather than strings.
func FormatID(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
		return t.String(), true
	case []any:
		if len(t) == 1 {
			return FormatID(t[0])
		}
	}
	return "", false
}

// Clone returns a shallow copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Highlight asks the engine to mark up matches in the given fields.
type Highlight struct {
	Fields []string `json:"fields"`
	Pre    string   `json:"pre"`
	Post   string   `json:"post"`
}

// Query is a single engine request. It is built fresh per call.
type Query struct {
	Q             string     `json:"q"`
	Start         int        `json:"start"`
	Rows          int        `json:"rows"`
	FacetFields   []string   `json:"facet_fields,omitempty"`
	FacetMinCount int        `json:"facet_min_count,omitempty"`
	FacetLimit    int        `json:"facet_limit,omitempty"`
	Highlight     *Highlight `json:"highlight,omitempty"`
}

// FacetCount is one (field, value, count) triple reported by the engine.
type FacetCount struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// Highlighting maps document id to field name to highlighted fragments.
type Highlighting map[string]map[string][]string

// Fragments returns the fragments for the given document and field.
func (h Highlighting) Fragments(id, field string) []string {
	if h == nil {
		return nil
	}
	return h[id][field]
}

// Response is the result of executing a Query.
type Response struct {
	NumFound     int          `json:"num_found"`
	Documents    []Document   `json:"documents"`
	FacetCounts  []FacetCount `json:"facet_counts,omitempty"`
	Highlighting Highlighting `json:"highlighting,omitempty"`
	QTimeMs      int64        `json:"qtime_ms"`
}
