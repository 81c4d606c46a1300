package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/engine"
)

const (
	defaultRows       = 10
	defaultFacetLimit = 100
)

// op is a write staged until the next Commit.
type op struct {
	upsert    domain.Document
	deleteID  string
	deleteQry string
}

// Engine is an in-memory stand-in for the search engine. It understands the
// predicate subset the catalog emits, stages writes until Commit, counts
// facets and wraps matched terms for highlighting.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	docs    map[string]domain.Document
	order   []string
	pending []op
}

var (
	_ engine.Factory = (*Engine)(nil)
	_ engine.Reader  = (*Engine)(nil)
	_ engine.Writer  = (*Engine)(nil)
)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{
		docs: make(map[string]domain.Document),
	}
}

// Reader returns the engine itself.
func (e *Engine) Reader() engine.Reader { return e }

// Writer returns the engine itself.
func (e *Engine) Writer() engine.Writer { return e }

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

// Upsert stages the document.
func (e *Engine) Upsert(_ context.Context, doc domain.Document) error {
	if doc.ID() == "" {
		return fmt.Errorf("memory engine: document has no id")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, op{upsert: doc.Clone()})
	return nil
}

// DeleteByID stages the deletion.
func (e *Engine) DeleteByID(_ context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, op{deleteID: id})
	return nil
}

// DeleteByQuery stages the deletion. The predicate is validated now and
// evaluated at commit time.
func (e *Engine) DeleteByQuery(_ context.Context, predicate string) error {
	if _, err := parsePredicate(predicate); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, op{deleteQry: predicate})
	return nil
}

// Commit applies the staged writes in order.
func (e *Engine) Commit(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, o := range e.pending {
		switch {
		case o.upsert != nil:
			id := o.upsert.ID()
			if _, exists := e.docs[id]; !exists {
				e.order = append(e.order, id)
			}
			e.docs[id] = o.upsert
		case o.deleteID != "":
			e.remove(func(id string, _ domain.Document) bool { return id == o.deleteID })
		case o.deleteQry != "":
			pred, err := parsePredicate(o.deleteQry)
			if err != nil {
				return err
			}
			e.remove(func(_ string, doc domain.Document) bool { return pred.matches(doc) })
		}
	}
	e.pending = nil
	return nil
}

// remove deletes every committed document for which drop returns true.
// Callers must hold the write lock.
func (e *Engine) remove(drop func(id string, doc domain.Document) bool) {
	kept := e.order[:0]
	for _, id := range e.order {
		if drop(id, e.docs[id]) {
			delete(e.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	e.order = kept
}

// Execute runs the query against the committed documents.
func (e *Engine) Execute(_ context.Context, q *domain.Query) (*domain.Response, error) {
	start := time.Now()

	pred, err := parsePredicate(q.Q)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]domain.Document, 0)
	for _, id := range e.order {
		if doc := e.docs[id]; pred.matches(doc) {
			matched = append(matched, doc)
		}
	}

	resp := &domain.Response{
		NumFound:  len(matched),
		Documents: page(matched, q.Start, q.Rows),
	}
	if len(q.FacetFields) > 0 {
		resp.FacetCounts = e.facets(matched, q)
	}
	if q.Highlight != nil {
		resp.Highlighting = highlight(resp.Documents, pred, q.Highlight)
	}
	resp.QTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

func page(docs []domain.Document, start, rows int) []domain.Document {
	if rows <= 0 {
		rows = defaultRows
	}
	if start < 0 {
		start = 0
	}
	if start > len(docs) {
		start = len(docs)
	}
	end := start + rows
	if end > len(docs) {
		end = len(docs)
	}
	out := make([]domain.Document, 0, end-start)
	for _, doc := range docs[start:end] {
		out = append(out, doc.Clone())
	}
	return out
}

// facets counts values of each requested field over the matched documents.
// With a zero min count, values present anywhere in the index are reported
// with a zero count too.
func (e *Engine) facets(matched []domain.Document, q *domain.Query) []domain.FacetCount {
	var out []domain.FacetCount
	for _, field := range q.FacetFields {
		counts := make(map[string]int64)
		if q.FacetMinCount <= 0 {
			for _, doc := range e.docs {
				for _, v := range fieldValues(doc[field]) {
					counts[v] += 0
				}
			}
		}
		for _, doc := range matched {
			for _, v := range fieldValues(doc[field]) {
				counts[v]++
			}
		}

		values := make([]domain.FacetCount, 0, len(counts))
		for v, n := range counts {
			if n < int64(q.FacetMinCount) {
				continue
			}
			values = append(values, domain.FacetCount{Field: field, Value: v, Count: n})
		}
		sort.Slice(values, func(i, j int) bool {
			if values[i].Count != values[j].Count {
				return values[i].Count > values[j].Count
			}
			return values[i].Value < values[j].Value
		})

		limit := q.FacetLimit
		if limit == 0 {
			limit = defaultFacetLimit
		}
		if limit > 0 && len(values) > limit {
			values = values[:limit]
		}
		out = append(out, values...)
	}
	return out
}

// highlight wraps every occurrence of the query terms aimed at each
// highlighted field.
func highlight(docs []domain.Document, pred predicate, hl *domain.Highlight) domain.Highlighting {
	out := make(domain.Highlighting)
	for _, doc := range docs {
		id := doc.ID()
		for _, field := range hl.Fields {
			for _, c := range pred.clausesFor(field) {
				if c.isRange || c.value == "*" || c.value == "" {
					continue
				}
				re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(c.value))
				if err != nil {
					continue
				}
				for _, v := range fieldValues(doc[field]) {
					if !re.MatchString(v) {
						continue
					}
					frag := re.ReplaceAllStringFunc(v, func(m string) string {
						return hl.Pre + m + hl.Post
					})
					if out[id] == nil {
						out[id] = make(map[string][]string)
					}
					out[id][field] = append(out[id][field], frag)
				}
			}
		}
	}
	return out
}
