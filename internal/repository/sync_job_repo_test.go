package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/syncq/internal/domain"
	"gorm.io/gorm"
)

func newJob(status domain.JobStatus, totalChunks int) *domain.SyncJob {
	now := time.Now()
	return &domain.SyncJob{
		ID:          uuid.New().String(),
		ScopeType:   "workspace",
		ScopeID:     "ws-1",
		JobType:     domain.JobTypeManual,
		Status:      status,
		TotalChunks: totalChunks,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// TestCreateWithChunksAtomic verifies that a failing chunk insert rolls the
// job row back too.
func TestCreateWithChunksAtomic(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	job := newJob(domain.JobStatusPending, 2)
	now := time.Now()
	duplicateID := uuid.New().String()
	chunks := []domain.SyncChunk{
		{ID: duplicateID, JobID: job.ID, ChunkIndex: 0, Status: domain.ChunkStatusPending, MaxAttempts: 3, AvailableAt: now},
		{ID: duplicateID, JobID: job.ID, ChunkIndex: 1, Status: domain.ChunkStatusPending, MaxAttempts: 3, AvailableAt: now},
	}

	if err := repo.CreateWithChunks(ctx, job, chunks); err == nil {
		t.Fatal("expected duplicate chunk ID to fail the transaction")
	}

	if _, err := repo.GetByID(ctx, job.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("job row survived a rolled back transaction: err = %v", err)
	}
}

// TestCreateWithChunksPersistsBoth verifies the happy path writes job and
// chunk rows together.
func TestCreateWithChunksPersistsBoth(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	chunkRepo := NewSyncChunkRepository(db)
	ctx := context.Background()

	job := newJob(domain.JobStatusPending, 2)
	now := time.Now()
	chunks := []domain.SyncChunk{
		{ID: uuid.New().String(), JobID: job.ID, ChunkIndex: 0, StartOffset: 0, EndOffset: 99, Status: domain.ChunkStatusPending, MaxAttempts: 3, AvailableAt: now},
		{ID: uuid.New().String(), JobID: job.ID, ChunkIndex: 1, StartOffset: 100, EndOffset: 149, Status: domain.ChunkStatusPending, MaxAttempts: 3, AvailableAt: now},
	}

	if err := repo.CreateWithChunks(ctx, job, chunks); err != nil {
		t.Fatalf("CreateWithChunks failed: %v", err)
	}

	stored, err := chunkRepo.ListByJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("got %d chunks, want 2", len(stored))
	}
}

// TestMarkProcessingGuard verifies the pending guard makes repeat calls
// no-ops and never demotes a terminal job.
func TestMarkProcessingGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	job := newJob(domain.JobStatusPending, 1)
	if err := repo.CreateWithChunks(ctx, job, nil); err != nil {
		t.Fatalf("CreateWithChunks failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := repo.MarkProcessing(ctx, job.ID); err != nil {
			t.Fatalf("MarkProcessing call %d failed: %v", i, err)
		}
	}
	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusProcessing {
		t.Errorf("status = %s, want processing", stored.Status)
	}

	if _, err := repo.Finalize(ctx, job.ID, domain.JobStatusCompleted); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := repo.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing after finalize failed: %v", err)
	}
	stored, err = repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("status after finalize = %s, want completed", stored.Status)
	}
}

// TestFinalizeExactlyOnce verifies the compare-and-set: only the first
// finalization reports a win, and the winning status sticks.
func TestFinalizeExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	job := newJob(domain.JobStatusProcessing, 4)
	if err := repo.CreateWithChunks(ctx, job, nil); err != nil {
		t.Fatalf("CreateWithChunks failed: %v", err)
	}

	won, err := repo.Finalize(ctx, job.ID, domain.JobStatusCompleted)
	if err != nil {
		t.Fatalf("first Finalize failed: %v", err)
	}
	if !won {
		t.Error("first Finalize did not win")
	}

	won, err = repo.Finalize(ctx, job.ID, domain.JobStatusPartialFailure)
	if err != nil {
		t.Fatalf("second Finalize failed: %v", err)
	}
	if won {
		t.Error("second Finalize won against a terminal job")
	}

	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("status = %s, want completed (first write wins)", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

// TestFinalizeConcurrent verifies exactly one winner among racing callers.
func TestFinalizeConcurrent(t *testing.T) {
	db := newTestDB(t)
	repo := NewSyncJobRepository(db)
	ctx := context.Background()

	job := newJob(domain.JobStatusProcessing, 4)
	if err := repo.CreateWithChunks(ctx, job, nil); err != nil {
		t.Fatalf("CreateWithChunks failed: %v", err)
	}

	const callers = 8
	wins := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.Finalize(ctx, job.ID, domain.JobStatusCompleted)
			if err != nil {
				t.Errorf("Finalize failed: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("got %d finalization winners, want exactly 1", winners)
	}
}
