package service

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory SQLite database with the full schema.
// The pool is pinned to one connection so every goroutine sees the same
// memory database and transactions serialize the way the claim logic expects.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&domain.SyncJob{},
		&domain.SyncChunk{},
		&domain.ChunkHealthRecord{},
		&domain.SyncItem{},
	); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// newTestLogger returns a logger that discards all output.
func newTestLogger() *logger.Logger {
	return logger.New(&logger.Config{
		Level:       "error",
		Format:      "text",
		Output:      io.Discard,
		ServiceName: "test",
	})
}

// recordingTrigger captures trigger calls for assertions.
type recordingTrigger struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingTrigger) TriggerNext(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID)
}

func (r *recordingTrigger) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// makeChunksEligible clears every pending chunk's retry delay so tests can
// drain a queue without sleeping through real backoff windows.
func makeChunksEligible(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Model(&domain.SyncChunk{}).
		Where("status = ?", domain.ChunkStatusPending).
		Update("available_at", time.Now().Add(-time.Second)).Error
	if err != nil {
		t.Fatalf("failed to reset chunk eligibility: %v", err)
	}
}
