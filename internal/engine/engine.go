package engine

import (
	"context"

	"github.com/utafrali/catalogsearch/internal/domain"
)

// Reader executes queries against the search index.
type Reader interface {
	// Execute runs a single query and returns documents, facet counts and
	// highlighting exactly as the engine reported them.
	Execute(ctx context.Context, q *domain.Query) (*domain.Response, error)
}

// Writer modifies the search index. Changes become visible to readers only
// after Commit.
type Writer interface {
	// Upsert adds the document, replacing any document with the same id.
	Upsert(ctx context.Context, doc domain.Document) error

	// DeleteByID removes the document with the given id. Deleting a missing
	// id is not an error.
	DeleteByID(ctx context.Context, id string) error

	// DeleteByQuery removes every document matching the predicate.
	DeleteByQuery(ctx context.Context, predicate string) error

	// Commit makes all pending writes visible.
	Commit(ctx context.Context) error
}

// Factory hands out the read and write clients for one backend. Backends
// with replicated deployments may return clients bound to different nodes.
type Factory interface {
	Reader() Reader
	Writer() Writer

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
