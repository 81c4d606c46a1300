package solr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
)

const defaultRows = 10

// Reader runs /select requests.
type Reader struct {
	http    *httpclient.CircuitBreakerClient
	coreURL string
	logger  *slog.Logger
}

// selectResponse is the subset of the /select JSON response the catalog reads.
type selectResponse struct {
	ResponseHeader responseHeader `json:"responseHeader"`
	Response       struct {
		NumFound int               `json:"numFound"`
		Start    int               `json:"start"`
		Docs     []domain.Document `json:"docs"`
	} `json:"response"`
	FacetCounts *struct {
		FacetFields map[string][]any `json:"facet_fields"`
	} `json:"facet_counts"`
	Highlighting domain.Highlighting `json:"highlighting"`
}

// Execute sends the query to /select and decodes the response.
func (r *Reader) Execute(ctx context.Context, q *domain.Query) (resp *domain.Response, err error) {
	ctx, end := database.TraceQuery(ctx, system, "select", q.Q)
	defer func() { end(err) }()

	params := selectParams(q)
	httpResp, err := r.http.Post(ctx, r.coreURL+"/select", "application/x-www-form-urlencoded",
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, transportError("select", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solr select: %w", httpclient.ParseResponseError(httpResp, system))
	}

	var body selectResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("solr select: decode response: %w", err)
	}

	resp = &domain.Response{
		NumFound:     body.Response.NumFound,
		Documents:    body.Response.Docs,
		Highlighting: body.Highlighting,
		QTimeMs:      body.ResponseHeader.QTime,
	}
	if resp.Documents == nil {
		resp.Documents = []domain.Document{}
	}
	if body.FacetCounts != nil {
		resp.FacetCounts, err = flattenFacets(q.FacetFields, body.FacetCounts.FacetFields)
		if err != nil {
			return nil, fmt.Errorf("solr select: %w", err)
		}
	}

	r.logger.DebugContext(ctx, "solr select",
		slog.String("q", q.Q),
		slog.Int("num_found", resp.NumFound),
		slog.Int64("qtime_ms", resp.QTimeMs),
	)
	return resp, nil
}

// selectParams renders the query as /select request parameters. Queries are
// sent form-encoded in the body so long predicates do not hit URL limits.
func selectParams(q *domain.Query) url.Values {
	rows := q.Rows
	if rows <= 0 {
		rows = defaultRows
	}

	params := url.Values{}
	params.Set("q", q.Q)
	params.Set("start", strconv.Itoa(q.Start))
	params.Set("rows", strconv.Itoa(rows))
	params.Set("wt", "json")

	if len(q.FacetFields) > 0 {
		params.Set("facet", "true")
		for _, f := range q.FacetFields {
			params.Add("facet.field", f)
		}
		params.Set("facet.mincount", strconv.Itoa(q.FacetMinCount))
		if q.FacetLimit != 0 {
			params.Set("facet.limit", strconv.Itoa(q.FacetLimit))
		}
	}

	if hl := q.Highlight; hl != nil && len(hl.Fields) > 0 {
		params.Set("hl", "true")
		params.Set("hl.fl", strings.Join(hl.Fields, ","))
		params.Set("hl.simple.pre", hl.Pre)
		params.Set("hl.simple.post", hl.Post)
		params.Set("hl.tag.pre", hl.Pre)
		params.Set("hl.tag.post", hl.Post)
	}
	return params
}

// flattenFacets turns Solr's alternating [value, count, value, count, ...]
// lists into triples, keeping the requested field order and the engine's
// value order.
func flattenFacets(fields []string, raw map[string][]any) ([]domain.FacetCount, error) {
	var out []domain.FacetCount
	for _, field := range fields {
		pairs, ok := raw[field]
		if !ok {
			continue
		}
		if len(pairs)%2 != 0 {
			return nil, fmt.Errorf("facet field %q: odd number of entries (%d)", field, len(pairs))
		}
		for i := 0; i < len(pairs); i += 2 {
			count, ok := pairs[i+1].(float64)
			if !ok || count < 0 {
				return nil, fmt.Errorf("facet field %q: bad count %v", field, pairs[i+1])
			}
			out = append(out, domain.FacetCount{
				Field: field,
				Value: facetValue(pairs[i]),
				Count: int64(count),
			})
		}
	}
	return out, nil
}

func facetValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
