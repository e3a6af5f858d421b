package domain

import "time"

// SyncItem represents one item fetched from the external collection and
// written by the database sink. The (scope_type, scope_id, external_id)
// key makes repeated writes for the same chunk upsert-safe.
type SyncItem struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	ScopeType  string     `gorm:"type:text;not null;index:idx_sync_items_source,unique" json:"scope_type"`
	ScopeID    string     `gorm:"type:text;not null;index:idx_sync_items_source,unique" json:"scope_id"`
	ExternalID string     `gorm:"type:text;not null;index:idx_sync_items_source,unique" json:"external_id"`
	Payload    JSONMap    `gorm:"type:text" json:"payload,omitempty"`
	SourcedAt  *time.Time `json:"sourced_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (SyncItem) TableName() string {
	return "sync_items"
}
