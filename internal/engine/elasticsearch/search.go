package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/database"
)

const (
	defaultRows       = 10
	defaultFacetLimit = 100
	// unlimitedFacets bounds a negative facet limit; terms aggregations
	// require an explicit size.
	unlimitedFacets = 10000
)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID        string              `json:"_id"`
			Source    domain.Document     `json:"_source"`
			Highlight map[string][]string `json:"highlight"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any   `json:"key"`
			DocCount int64 `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// Execute runs the predicate as a query_string query.
func (e *Engine) Execute(ctx context.Context, q *domain.Query) (resp *domain.Response, err error) {
	ctx, end := database.TraceQuery(ctx, system, "search", q.Q)
	defer func() { end(err) }()

	data, err := json.Marshal(buildSearchBody(q))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	resp = &domain.Response{
		NumFound:  esResp.Hits.Total.Value,
		Documents: make([]domain.Document, 0, len(esResp.Hits.Hits)),
		QTimeMs:   esResp.Took,
	}
	for _, hit := range esResp.Hits.Hits {
		doc := hit.Source
		if doc == nil {
			doc = domain.Document{}
		}
		if doc.ID() == "" {
			doc[domain.FieldID] = hit.ID
		}
		resp.Documents = append(resp.Documents, doc)

		if len(hit.Highlight) > 0 {
			if resp.Highlighting == nil {
				resp.Highlighting = make(domain.Highlighting)
			}
			resp.Highlighting[hit.ID] = hit.Highlight
		}
	}

	for _, field := range q.FacetFields {
		agg, ok := esResp.Aggregations[field]
		if !ok {
			continue
		}
		for _, b := range agg.Buckets {
			resp.FacetCounts = append(resp.FacetCounts, domain.FacetCount{
				Field: field,
				Value: bucketKey(b.Key),
				Count: b.DocCount,
			})
		}
	}

	e.logger.DebugContext(ctx, "elasticsearch search",
		slog.String("q", q.Q),
		slog.Int("num_found", resp.NumFound),
		slog.Int64("took_ms", resp.QTimeMs),
	)
	return resp, nil
}

// buildSearchBody constructs the Elasticsearch query DSL as a map.
func buildSearchBody(q *domain.Query) map[string]interface{} {
	rows := q.Rows
	if rows <= 0 {
		rows = defaultRows
	}

	body := map[string]interface{}{
		"query":            queryStringQuery(q.Q),
		"from":             q.Start,
		"size":             rows,
		"track_total_hits": true,
	}

	if len(q.FacetFields) > 0 {
		limit := q.FacetLimit
		switch {
		case limit == 0:
			limit = defaultFacetLimit
		case limit < 0:
			limit = unlimitedFacets
		}
		aggs := make(map[string]interface{}, len(q.FacetFields))
		for _, f := range q.FacetFields {
			aggs[f] = map[string]interface{}{
				"terms": map[string]interface{}{
					"field":         f,
					"size":          limit,
					"min_doc_count": q.FacetMinCount,
				},
			}
		}
		body["aggs"] = aggs
	}

	if hl := q.Highlight; hl != nil && len(hl.Fields) > 0 {
		fields := make(map[string]interface{}, len(hl.Fields))
		for _, f := range hl.Fields {
			fields[f] = map[string]interface{}{"number_of_fragments": 0}
		}
		body["highlight"] = map[string]interface{}{
			"pre_tags":  []string{hl.Pre},
			"post_tags": []string{hl.Post},
			"fields":    fields,
		}
	}
	return body
}

func queryStringQuery(q string) map[string]interface{} {
	return map[string]interface{}{
		"query_string": map[string]interface{}{
			"query": q,
		},
	}
}

func bucketKey(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
