package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/syncq/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseSink writes items into the sync_items table. Writes are keyed by
// (scope_type, scope_id, external_id) so replaying a chunk updates rows in
// place instead of duplicating them.
type DatabaseSink struct {
	db *gorm.DB
}

// NewDatabaseSink creates a new database-backed item sink.
// Parameters:
//   - db: GORM database handle used for writes.
// Returns:
//   - *DatabaseSink: sink instance bound to db.
func NewDatabaseSink(db *gorm.DB) *DatabaseSink {
	return &DatabaseSink{db: db}
}

// Persist upserts all items in the batch.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - batch: items and identifiers for one processed chunk.
// Returns:
//   - error: non-nil if the upsert fails.
func (s *DatabaseSink) Persist(ctx context.Context, batch Batch) error {
	if len(batch.Items) == 0 {
		return nil
	}

	now := time.Now()
	rows := make([]domain.SyncItem, 0, len(batch.Items))
	for _, item := range batch.Items {
		rows = append(rows, domain.SyncItem{
			ID:         uuid.New().String(),
			ScopeType:  batch.ScopeType,
			ScopeID:    batch.ScopeID,
			ExternalID: item.ExternalID,
			Payload:    domain.JSONMap(item.Payload),
			SourcedAt:  item.SourcedAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "scope_type"},
			{Name: "scope_id"},
			{Name: "external_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "sourced_at", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to persist %d items: %w", len(rows), err)
	}
	return nil
}
