package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
)

// Writer sends JSON update commands to /update. Nothing is visible to
// readers until Commit.
type Writer struct {
	http    *httpclient.CircuitBreakerClient
	coreURL string
	logger  *slog.Logger
}

type updateResponse struct {
	ResponseHeader responseHeader `json:"responseHeader"`
}

// Upsert adds the document, replacing any document with the same id.
func (w *Writer) Upsert(ctx context.Context, doc domain.Document) error {
	if doc.ID() == "" {
		return fmt.Errorf("solr add: document has no id")
	}
	return w.send(ctx, "add", doc.ID(), map[string]any{
		"add": map[string]any{"doc": doc},
	})
}

// DeleteByID removes the document with the given id.
func (w *Writer) DeleteByID(ctx context.Context, id string) error {
	return w.send(ctx, "delete", id, map[string]any{
		"delete": map[string]string{"id": id},
	})
}

// DeleteByQuery removes every document matching the predicate.
func (w *Writer) DeleteByQuery(ctx context.Context, predicate string) error {
	return w.send(ctx, "delete_by_query", predicate, map[string]any{
		"delete": map[string]string{"query": predicate},
	})
}

// Commit issues a hard commit.
func (w *Writer) Commit(ctx context.Context) error {
	return w.send(ctx, "commit", "", map[string]any{
		"commit": map[string]any{},
	})
}

func (w *Writer) send(ctx context.Context, op, statement string, command map[string]any) (err error) {
	ctx, end := database.TraceQuery(ctx, system, op, statement)
	defer func() { end(err) }()

	data, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("solr %s: marshal command: %w", op, err)
	}

	resp, err := w.http.Post(ctx, w.coreURL+"/update?wt=json", "application/json", bytes.NewReader(data))
	if err != nil {
		return transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solr %s: %w", op, httpclient.ParseResponseError(resp, system))
	}

	var body updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("solr %s: decode response: %w", op, err)
	}
	if body.ResponseHeader.Status != 0 {
		return fmt.Errorf("solr %s: status %d", op, body.ResponseHeader.Status)
	}

	w.logger.DebugContext(ctx, "solr update", slog.String("op", op), slog.String("target", statement))
	return nil
}
