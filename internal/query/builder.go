// Package query assembles predicate strings in the engine's query syntax.
//
// Values are concatenated verbatim: nothing here escapes query syntax
// characters. Callers that accept untrusted input must screen it first.
package query

import (
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Operator joins clauses.
type Operator string

const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// Builder collects clauses and joins them with a single operator.
type Builder struct {
	op      Operator
	clauses []string
}

// New returns an empty builder joining with op.
func New(op Operator) *Builder {
	return &Builder{op: op}
}

// Add appends a field:value clause.
func (b *Builder) Add(field, value string) *Builder {
	return b.Raw(Clause(field, value))
}

// Raw appends a pre-built clause. Empty clauses are ignored.
func (b *Builder) Raw(clause string) *Builder {
	if clause != "" {
		b.clauses = append(b.clauses, clause)
	}
	return b
}

// Len returns the number of clauses collected so far.
func (b *Builder) Len() int {
	return len(b.clauses)
}

// String returns the joined predicate, or the match-all predicate when no
// clause was added.
func (b *Builder) String() string {
	return Join(b.op, b.clauses...)
}

// Clause returns field:value.
func Clause(field, value string) string {
	return field + ":" + value
}

// Range returns an inclusive range clause field:[min TO max].
func Range(field string, min, max float64) string {
	return field + ":[" + FormatNumber(min) + " TO " + FormatNumber(max) + "]"
}

// Join joins the non-empty clauses with op. With no clauses it returns the
// match-all predicate.
func Join(op Operator, clauses ...string) string {
	parts := make([]string, 0, len(clauses))
	for _, c := range clauses {
		if c != "" {
			parts = append(parts, c)
		}
	}
	if len(parts) == 0 {
		return domain.MatchAll
	}
	return strings.Join(parts, " "+string(op)+" ")
}

// FormatNumber renders a float so that it always carries a decimal point
// (10 -> "10.0", 12.5 -> "12.5").
func FormatNumber(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// FromFilter returns one clause per non-nil scalar field of f, in declaration
// order, followed by one clause per attribute token, joined with op.
func FromFilter(f domain.ProductFilter, op Operator) string {
	b := New(op)
	addString(b, domain.FieldID, f.ID)
	addString(b, domain.FieldName, f.Name)
	addString(b, domain.FieldLabel, f.Label)
	if f.Price != nil {
		b.Add(domain.FieldPrice, FormatNumber(*f.Price))
	}
	addString(b, domain.FieldType1, f.Type1)
	addString(b, domain.FieldType2, f.Type2)
	addString(b, domain.FieldType3, f.Type3)
	addString(b, domain.FieldPic, f.Pic)
	for _, c := range AttributeClauses(f.Attributes) {
		b.Raw(c)
	}
	return b.String()
}

func addString(b *Builder, field string, v *string) {
	if v == nil || *v == "" {
		return
	}
	b.Add(field, *v)
}

// CategoryClause returns the clause for the most specific set level of c
// (type3 over type2 over type1), or "" when no level is set.
func CategoryClause(c domain.Category) string {
	switch {
	case c.Type3 != "":
		return Clause(domain.FieldType3, c.Type3)
	case c.Type2 != "":
		return Clause(domain.FieldType2, c.Type2)
	case c.Type1 != "":
		return Clause(domain.FieldType1, c.Type1)
	default:
		return ""
	}
}

// AttributeClauses returns one goodsattributes clause per non-empty token.
func AttributeClauses(attrs []string) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if a == "" {
			continue
		}
		out = append(out, Clause(domain.FieldAttributes, a))
	}
	return out
}

// AttributeQuery returns the conjunction of the category clause and one
// clause per attribute token.
func AttributeQuery(c domain.Category, attrs []string) string {
	b := New(And).Raw(CategoryClause(c))
	for _, a := range AttributeClauses(attrs) {
		b.Raw(a)
	}
	return b.String()
}

// PriceQuery returns the price range clause conjoined with the category and
// attribute clauses.
func PriceQuery(f domain.PriceFilter) string {
	b := New(And).
		Raw(Range(domain.FieldPrice, f.MinPrice, f.MaxPrice)).
		Raw(CategoryClause(f.Category))
	for _, a := range AttributeClauses(f.Attributes) {
		b.Raw(a)
	}
	return b.String()
}

// Keyword matches label against the product name or the product label.
func Keyword(label string) string {
	return Join(Or, Clause(domain.FieldName, label), Clause(domain.FieldLabel, label))
}
