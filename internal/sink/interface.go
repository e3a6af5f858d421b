package sink

import (
	"context"

	"github.com/timmy/syncq/internal/source"
)

// Batch is one chunk's worth of fetched items plus the identifiers a sink
// needs to write them idempotently. Re-persisting the same batch must be
// safe: the database sink upserts on the external item key and the object
// sink overwrites the same object key.
type Batch struct {
	ScopeType  string
	ScopeID    string
	JobID      string
	ChunkIndex int
	Items      []source.Item
}

// ItemSink defines the interface for the downstream item writer.
type ItemSink interface {
	// Persist writes all items in the batch.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - batch: items and identifiers for one processed chunk.
	// Returns:
	//   - error: non-nil if the write fails; partial writes may remain and
	//     are resolved by re-persisting the batch.
	Persist(ctx context.Context, batch Batch) error
}
