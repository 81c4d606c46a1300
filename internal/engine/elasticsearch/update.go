package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/database"
)

// Upsert indexes the document under its id. It becomes searchable after the
// next Commit.
func (e *Engine) Upsert(ctx context.Context, doc domain.Document) (err error) {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("elasticsearch index: document has no id")
	}
	ctx, end := database.TraceQuery(ctx, system, "index", id)
	defer func() { end(err) }()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("index", res)
	}

	e.logger.Debug("indexed document", "id", id)
	return nil
}

// DeleteByID removes a document by its id.
// It does not return an error if the document does not exist (404 is ignored).
func (e *Engine) DeleteByID(ctx context.Context, id string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "delete", id)
	defer func() { end(err) }()

	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	// Ignore 404: the document might not exist.
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("delete", res)
	}

	e.logger.Debug("deleted document", "id", id)
	return nil
}

// DeleteByQuery removes every document matching the predicate.
func (e *Engine) DeleteByQuery(ctx context.Context, predicate string) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "delete_by_query", predicate)
	defer func() { end(err) }()

	data, err := json.Marshal(map[string]interface{}{"query": queryStringQuery(predicate)})
	if err != nil {
		return fmt.Errorf("elasticsearch delete by query: marshal query: %w", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		bytes.NewReader(data),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete by query: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("delete by query", res)
	}

	var body struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("elasticsearch delete by query: decode response: %w", err)
	}

	e.logger.Debug("deleted documents by query", "query", predicate, "deleted", body.Deleted)
	return nil
}

// Commit refreshes the index so pending writes become searchable.
func (e *Engine) Commit(ctx context.Context) (err error) {
	ctx, end := database.TraceQuery(ctx, system, "refresh", e.indexName)
	defer func() { end(err) }()

	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.indexName),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("refresh", res)
	}
	return nil
}
