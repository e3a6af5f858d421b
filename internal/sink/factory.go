package sink

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// SinkType selects the item sink implementation.
type SinkType string

const (
	SinkTypeDatabase SinkType = "database"
	SinkTypeObject   SinkType = "object"
)

// Config holds configuration for the sink factory.
type Config struct {
	Type   SinkType
	Object *ObjectConfig // Required when Type is SinkTypeObject
}

// NewSink creates an ItemSink instance based on the configuration.
// Parameters:
//   - cfg: sink configuration including type and object storage settings.
//   - db: GORM database handle for the database sink.
// Returns:
//   - ItemSink: initialized sink implementation.
//   - error: non-nil if the sink cannot be created.
func NewSink(cfg *Config, db *gorm.DB) (ItemSink, error) {
	switch SinkType(strings.ToLower(string(cfg.Type))) {
	case SinkTypeObject:
		if cfg.Object == nil {
			return nil, fmt.Errorf("object sink selected but no object storage configured")
		}
		return NewObjectSink(cfg.Object)
	case SinkTypeDatabase, "":
		return NewDatabaseSink(db), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
