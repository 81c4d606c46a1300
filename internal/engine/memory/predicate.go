package memory

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// clause is one field:value term of a predicate.
type clause struct {
	field   string
	value   string
	isRange bool
	lo, hi  *float64 // nil bound is open
}

// predicate is a disjunction of conjunctions. Without parentheses AND binds
// tighter than OR.
type predicate [][]clause

var colonSpacing = regexp.MustCompile(`\s*:\s*`)

// textFields are matched by case-insensitive containment rather than
// equality, standing in for the engine's tokenized text fields.
var textFields = map[string]bool{
	domain.FieldName:  true,
	domain.FieldLabel: true,
}

// parsePredicate parses the subset of the query grammar the catalog emits:
// field:value, field:[a TO b], *:*, joined by AND / OR.
func parsePredicate(q string) (predicate, error) {
	q = strings.TrimSpace(colonSpacing.ReplaceAllString(q, ":"))
	if q == "" {
		return nil, fmt.Errorf("memory engine: empty query")
	}

	var (
		pred    predicate
		current []clause
	)
	for _, tok := range tokenize(q) {
		switch tok {
		case "AND", "&&":
			continue
		case "OR", "||":
			if len(current) == 0 {
				return nil, fmt.Errorf("memory engine: dangling OR in %q", q)
			}
			pred = append(pred, current)
			current = nil
			continue
		}

		field, value, ok := strings.Cut(tok, ":")
		if !ok {
			// A bare term continues the previous clause's value.
			if len(current) == 0 {
				return nil, fmt.Errorf("memory engine: term %q has no field", tok)
			}
			current[len(current)-1].value += " " + tok
			continue
		}
		c, err := newClause(field, value)
		if err != nil {
			return nil, err
		}
		current = append(current, c)
	}
	if len(current) == 0 {
		return nil, fmt.Errorf("memory engine: dangling operator in %q", q)
	}
	return append(pred, current), nil
}

// tokenize splits on whitespace outside of range brackets.
func tokenize(q string) []string {
	var (
		tokens []string
		buf    strings.Builder
		depth  int
	)
	flush := func() {
		if buf.Len() > 0 {
			tokens = append(tokens, buf.String())
			buf.Reset()
		}
	}
	for _, r := range q {
		switch {
		case r == '[' || r == '{':
			depth++
		case (r == ']' || r == '}') && depth > 0:
			depth--
		case unicode.IsSpace(r) && depth == 0:
			flush()
			continue
		}
		buf.WriteRune(r)
	}
	flush()
	return tokens
}

func newClause(field, value string) (clause, error) {
	c := clause{field: field, value: value}
	if !strings.HasPrefix(value, "[") {
		return c, nil
	}
	body := strings.TrimSuffix(strings.TrimPrefix(value, "["), "]")
	loStr, hiStr, ok := strings.Cut(body, " TO ")
	if !ok {
		return c, fmt.Errorf("memory engine: malformed range %q", value)
	}
	lo, err := parseBound(strings.TrimSpace(loStr))
	if err != nil {
		return c, err
	}
	hi, err := parseBound(strings.TrimSpace(hiStr))
	if err != nil {
		return c, err
	}
	c.isRange, c.lo, c.hi = true, lo, hi
	return c, nil
}

func parseBound(s string) (*float64, error) {
	if s == "*" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("memory engine: range bound %q: %w", s, err)
	}
	return &v, nil
}

func (p predicate) matches(doc domain.Document) bool {
	for _, conj := range p {
		all := true
		for _, c := range conj {
			if !c.matches(doc) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// clausesFor returns every clause targeting field.
func (p predicate) clausesFor(field string) []clause {
	var out []clause
	for _, conj := range p {
		for _, c := range conj {
			if c.field == field {
				out = append(out, c)
			}
		}
	}
	return out
}

func (c clause) matches(doc domain.Document) bool {
	if c.field == "*" && c.value == "*" {
		return true
	}
	values := fieldValues(doc[c.field])
	if len(values) == 0 {
		return false
	}
	if c.value == "*" {
		return true
	}
	for _, v := range values {
		if c.matchValue(v) {
			return true
		}
	}
	return false
}

func (c clause) matchValue(v string) bool {
	if c.isRange {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		if c.lo != nil && f < *c.lo {
			return false
		}
		if c.hi != nil && f > *c.hi {
			return false
		}
		return true
	}

	want := c.value
	if prefix, ok := strings.CutSuffix(want, "*"); ok {
		return strings.HasPrefix(strings.ToLower(v), strings.ToLower(prefix))
	}
	if textFields[c.field] {
		return strings.Contains(strings.ToLower(v), strings.ToLower(want))
	}
	if v == want {
		return true
	}
	// Numeric fields compare by value so 3 matches 3.0.
	a, errA := strconv.ParseFloat(v, 64)
	b, errB := strconv.ParseFloat(want, 64)
	return errA == nil && errB == nil && a == b
}

// fieldValues renders a stored field as strings, flattening lists.
func fieldValues(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, fieldValues(item)...)
		}
		return out
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	default:
		return []string{fmt.Sprint(t)}
	}
}
