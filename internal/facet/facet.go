// Package facet chooses facet fields for category drill-down and reshapes the
// engine's flat facet counts.
package facet

import (
	"fmt"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/query"
)

// AttributeSeparator splits an attribute facet token into name and value.
const AttributeSeparator = "_"

// Request is the single facet field to ask for and the predicate that scopes
// it to the known part of the category path.
type Request struct {
	Field string
	Scope string
}

// ChildLevel picks the facet field one level below the deepest set level of
// c among type1 and type2. With nothing set it asks for the top level over all
// documents.
func ChildLevel(c domain.Category) Request {
	switch {
	case c.Type2 != "":
		return Request{Field: domain.FieldType3, Scope: query.Clause(domain.FieldType2, c.Type2)}
	case c.Type1 != "":
		return Request{Field: domain.FieldType2, Scope: query.Clause(domain.FieldType1, c.Type1)}
	default:
		return Request{Field: domain.FieldType1, Scope: domain.MatchAll}
	}
}

// Attributes returns the attribute facet request for the most specific
// category level of c.
func Attributes(c domain.Category) Request {
	return Request{Field: domain.FieldAttributes, Scope: query.Join(query.And, query.CategoryClause(c))}
}

// Values returns the facet values reported for field, in engine order,
// without duplicates.
func Values(counts []domain.FacetCount, field string) []string {
	out := make([]string, 0)
	seen := make(map[string]struct{})
	for _, fc := range counts {
		if fc.Field != field {
			continue
		}
		if _, ok := seen[fc.Value]; ok {
			continue
		}
		seen[fc.Value] = struct{}{}
		out = append(out, fc.Value)
	}
	return out
}

// SplitAttribute splits a name_value token at the first separator, so
// "a_b_c" yields ("a", "b_c"). Tokens without a separator or with an empty
// name are rejected.
//
// TODO: attribute names containing the separator cannot round-trip; the
// indexer needs an escaping convention before this can change.
func SplitAttribute(token string) (name, value string, err error) {
	pos := strings.Index(token, AttributeSeparator)
	if pos <= 0 {
		return "", "", fmt.Errorf("%w: %q", domain.ErrMalformedFacetValue, token)
	}
	return token[:pos], token[pos+len(AttributeSeparator):], nil
}

// GroupAttributes regroups the facet counts of field into an AttributeMap.
// A single malformed token fails the whole aggregation.
func GroupAttributes(counts []domain.FacetCount, field string) (domain.AttributeMap, error) {
	attrs := make(domain.AttributeMap)
	for _, fc := range counts {
		if fc.Field != field {
			continue
		}
		name, value, err := SplitAttribute(fc.Value)
		if err != nil {
			return nil, err
		}
		attrs[name] = append(attrs[name], value)
	}
	return attrs, nil
}
