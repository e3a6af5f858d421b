package source

import (
	"context"
	"time"
)

// FilterWindow bounds the external collection by date. A nil bound means
// unbounded on that side. The window is applied by the source before any
// offset arithmetic, so chunk offsets always address the filtered view.
type FilterWindow struct {
	Start *time.Time
	End   *time.Time
}

// IsZero reports whether the window has no bounds set.
// Parameters: none.
// Returns:
//   - bool: true when both bounds are nil.
func (w FilterWindow) IsZero() bool {
	return w.Start == nil && w.End == nil
}

// Item represents one record fetched from the external collection.
type Item struct {
	ExternalID string                 // Unique ID within the source
	Payload    map[string]interface{} // Raw item body
	SourcedAt  *time.Time             // Item timestamp at the source, if known
}

// Source defines the interface for external paginated collections.
type Source interface {
	// SourceID returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier.
	SourceID() string

	// FetchRange fetches items at positions [offset, offset+limit) of the
	// collection after the filter window has been applied. Implementations
	// must apply the window before the offset; applying the offset against
	// the unfiltered collection breaks chunk semantics.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - window: date window narrowing the collection.
	//   - offset: zero-based position within the filtered collection.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - []Item: fetched items, fewer than limit at the end of the collection.
	//   - error: non-nil if fetching fails.
	FetchRange(ctx context.Context, window FilterWindow, offset, limit int) ([]Item, error)
}
