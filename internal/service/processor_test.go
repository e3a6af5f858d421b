package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/timmy/syncq/internal/domain"
	"github.com/timmy/syncq/internal/repository"
	"github.com/timmy/syncq/internal/sink"
	"github.com/timmy/syncq/internal/source"
	"gorm.io/gorm"
)

// fetchCall records one FetchRange invocation.
type fetchCall struct {
	offset int
	limit  int
	window source.FilterWindow
}

// fakeSource serves a fixed-size filtered collection and records every
// fetch so tests can assert the exact ranges requested.
type fakeSource struct {
	mu    sync.Mutex
	total int
	calls []fetchCall
	fail  func(offset int) error
	block bool
}

func (s *fakeSource) SourceID() string { return "fake" }

func (s *fakeSource) FetchRange(ctx context.Context, window source.FilterWindow, offset, limit int) ([]source.Item, error) {
	s.mu.Lock()
	s.calls = append(s.calls, fetchCall{offset: offset, limit: limit, window: window})
	fail := s.fail
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail != nil {
		if err := fail(offset); err != nil {
			return nil, err
		}
	}

	items := make([]source.Item, 0, limit)
	for i := 0; i < limit && offset+i < s.total; i++ {
		items = append(items, source.Item{
			ExternalID: fmt.Sprintf("item-%d", offset+i),
			Payload:    map[string]interface{}{"position": offset + i},
		})
	}
	return items, nil
}

func (s *fakeSource) recordedCalls() []fetchCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fetchCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// fakeSink collects persisted items keyed by external ID.
type fakeSink struct {
	mu   sync.Mutex
	seen map[string]int
	fail func(batch sink.Batch) error
}

func newFakeSink() *fakeSink {
	return &fakeSink{seen: make(map[string]int)}
}

func (s *fakeSink) Persist(ctx context.Context, batch sink.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		if err := s.fail(batch); err != nil {
			return err
		}
	}
	for _, item := range batch.Items {
		s.seen[item.ExternalID]++
	}
	return nil
}

func (s *fakeSink) distinctItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

// workerFixture wires a worker service against fakes and one database.
type workerFixture struct {
	db         *gorm.DB
	jobRepo    *repository.SyncJobRepository
	chunkRepo  *repository.SyncChunkRepository
	healthRepo *repository.ChunkHealthRepository
	source     *fakeSource
	sink       *fakeSink
	completion *CompletionService
	worker     *WorkerService
}

func newWorkerFixture(t *testing.T, src *fakeSource, snk *fakeSink, cfg *WorkerConfig) *workerFixture {
	t.Helper()
	db := newTestDB(t)
	f := &workerFixture{
		db:         db,
		jobRepo:    repository.NewSyncJobRepository(db),
		chunkRepo:  repository.NewSyncChunkRepository(db),
		healthRepo: repository.NewChunkHealthRepository(db),
		source:     src,
		sink:       snk,
	}
	log := newTestLogger()
	f.completion = NewCompletionService(f.jobRepo, f.chunkRepo, NoopTrigger{}, log)
	if cfg == nil {
		cfg = &WorkerConfig{}
	}
	f.worker = NewWorkerService(f.jobRepo, f.chunkRepo, f.healthRepo, src, snk, f.completion, log, cfg)
	return f
}

func (f *workerFixture) createJob(t *testing.T, params CreateJobParams, chunkSize int) *domain.SyncJob {
	t.Helper()
	intake := NewIntakeService(f.jobRepo, NoopTrigger{}, newTestLogger(), &IntakeConfig{ChunkSize: chunkSize})
	job, err := intake.CreateSyncJob(context.Background(), params)
	if err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

// drain invokes the worker until the job has no outstanding chunks, fast
// forwarding backoff delays between passes.
func (f *workerFixture) drain(t *testing.T, jobID string) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 40; i++ {
		eligible, err := f.chunkRepo.HasEligible(ctx)
		if err != nil {
			t.Fatalf("HasEligible failed: %v", err)
		}
		if !eligible {
			outstanding, err := f.chunkRepo.HasOutstanding(ctx, jobID)
			if err != nil {
				t.Fatalf("HasOutstanding failed: %v", err)
			}
			if !outstanding {
				return
			}
			makeChunksEligible(t, f.db)
			continue
		}
		if err := f.worker.InvokeWorker(ctx); err != nil {
			t.Fatalf("InvokeWorker failed: %v", err)
		}
	}
	t.Fatal("queue did not drain")
}

// TestWorkerFetchesExactChunkRanges drives a full job and asserts the worker
// requests exactly each chunk's range of the filtered collection, passing the
// job's date window through on every fetch.
func TestWorkerFetchesExactChunkRanges(t *testing.T) {
	src := &fakeSource{total: 376}
	snk := newFakeSink()
	f := newWorkerFixture(t, src, snk, nil)

	windowStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	job := f.createJob(t, CreateJobParams{
		ScopeType:         "workspace",
		ScopeID:           "ws-1",
		ItemCountEstimate: 376,
		WindowStart:       &windowStart,
		WindowEnd:         &windowEnd,
	}, 100)

	f.drain(t, job.ID)

	calls := src.recordedCalls()
	want := []fetchCall{
		{offset: 0, limit: 100},
		{offset: 100, limit: 100},
		{offset: 200, limit: 100},
		{offset: 300, limit: 76},
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d fetches, want %d: %+v", len(calls), len(want), calls)
	}
	for i, call := range calls {
		if call.offset != want[i].offset || call.limit != want[i].limit {
			t.Errorf("fetch %d requested offset=%d limit=%d, want offset=%d limit=%d",
				i, call.offset, call.limit, want[i].offset, want[i].limit)
		}
		if call.window.Start == nil || !call.window.Start.Equal(windowStart) {
			t.Errorf("fetch %d window start = %v, want %s", i, call.window.Start, windowStart)
		}
		if call.window.End == nil || !call.window.End.Equal(windowEnd) {
			t.Errorf("fetch %d window end = %v, want %s", i, call.window.End, windowEnd)
		}
	}

	if snk.distinctItems() != 376 {
		t.Errorf("sink saw %d distinct items, want 376", snk.distinctItems())
	}

	stored, err := f.jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %s, want completed", stored.Status)
	}
}

// TestWorkerNoEligibleChunk verifies an invocation on an empty queue is a
// clean no-op.
func TestWorkerNoEligibleChunk(t *testing.T) {
	f := newWorkerFixture(t, &fakeSource{total: 0}, newFakeSink(), nil)
	if err := f.worker.InvokeWorker(context.Background()); err != nil {
		t.Fatalf("InvokeWorker on empty queue failed: %v", err)
	}
}

// TestWorkerRecordsHealthPerAttempt verifies one health record is appended
// per attempt, for failures and successes alike.
func TestWorkerRecordsHealthPerAttempt(t *testing.T) {
	var mu sync.Mutex
	shouldFail := true

	src := &fakeSource{total: 50}
	src.fail = func(offset int) error {
		mu.Lock()
		defer mu.Unlock()
		if shouldFail {
			shouldFail = false
			return fmt.Errorf("json: cannot unmarshal response body")
		}
		return nil
	}
	f := newWorkerFixture(t, src, newFakeSink(), nil)
	job := f.createJob(t, CreateJobParams{
		ScopeType:         "workspace",
		ScopeID:           "ws-1",
		ItemCountEstimate: 50,
	}, 100)

	f.drain(t, job.ID)

	chunks, err := f.chunkRepo.ListByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}

	records, err := f.healthRepo.ListByChunk(context.Background(), chunks[0].ID)
	if err != nil {
		t.Fatalf("ListByChunk failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d health records, want 2", len(records))
	}

	if records[0].Status != domain.ChunkStatusFailed {
		t.Errorf("first record status = %s, want failed", records[0].Status)
	}
	if records[0].ErrorCategory != domain.ErrorCategoryProcessing {
		t.Errorf("first record category = %s, want processing_error", records[0].ErrorCategory)
	}
	if records[1].Status != domain.ChunkStatusCompleted {
		t.Errorf("second record status = %s, want completed", records[1].Status)
	}
	if records[1].ItemCount != 50 {
		t.Errorf("second record item count = %d, want 50", records[1].ItemCount)
	}
}

// TestWorkerChunkBudgetClassifiesAsTimeout verifies an attempt that exceeds
// the wall-clock budget is requeued as a timeout rather than surfacing the
// collaborator's raw cancellation error.
func TestWorkerChunkBudgetClassifiesAsTimeout(t *testing.T) {
	src := &fakeSource{total: 50, block: true}
	f := newWorkerFixture(t, src, newFakeSink(), &WorkerConfig{ChunkBudget: 50 * time.Millisecond})
	job := f.createJob(t, CreateJobParams{
		ScopeType:         "workspace",
		ScopeID:           "ws-1",
		ItemCountEstimate: 50,
	}, 100)

	if err := f.worker.InvokeWorker(context.Background()); err != nil {
		t.Fatalf("InvokeWorker failed: %v", err)
	}

	chunks, err := f.chunkRepo.ListByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	chunk := chunks[0]
	if chunk.Status != domain.ChunkStatusPending {
		t.Errorf("chunk status = %s, want pending (requeued)", chunk.Status)
	}
	if chunk.ErrorCategory != domain.ErrorCategoryTimeout {
		t.Errorf("error category = %s, want timeout", chunk.ErrorCategory)
	}
	if chunk.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", chunk.Attempts)
	}
}

// TestWorkerSinkFailureRequeued verifies a sink failure flows through
// classification like a source failure.
func TestWorkerSinkFailureRequeued(t *testing.T) {
	src := &fakeSource{total: 50}
	snk := newFakeSink()
	snk.fail = func(sink.Batch) error {
		return fmt.Errorf("server error (503): upstream store unavailable")
	}
	f := newWorkerFixture(t, src, snk, nil)
	job := f.createJob(t, CreateJobParams{
		ScopeType:         "workspace",
		ScopeID:           "ws-1",
		ItemCountEstimate: 50,
	}, 100)

	if err := f.worker.InvokeWorker(context.Background()); err != nil {
		t.Fatalf("InvokeWorker failed: %v", err)
	}

	chunks, err := f.chunkRepo.ListByJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ListByJob failed: %v", err)
	}
	if chunks[0].Status != domain.ChunkStatusPending {
		t.Errorf("chunk status = %s, want pending", chunks[0].Status)
	}
	if chunks[0].ErrorCategory != domain.ErrorCategoryTransientServer {
		t.Errorf("error category = %s, want transient_server", chunks[0].ErrorCategory)
	}
}

// TestWorkerReplayDoesNotDuplicateItems verifies that reprocessing a range
// after a sink failure converges on one copy per item in the sink.
func TestWorkerReplayDoesNotDuplicateItems(t *testing.T) {
	src := &fakeSource{total: 50}
	snk := newFakeSink()
	failed := false
	var mu sync.Mutex
	snk.fail = func(sink.Batch) error {
		mu.Lock()
		defer mu.Unlock()
		if !failed {
			failed = true
			return fmt.Errorf("server error (500): write aborted mid-batch")
		}
		return nil
	}
	f := newWorkerFixture(t, src, snk, nil)
	job := f.createJob(t, CreateJobParams{
		ScopeType:         "workspace",
		ScopeID:           "ws-1",
		ItemCountEstimate: 50,
	}, 100)

	f.drain(t, job.ID)

	if snk.distinctItems() != 50 {
		t.Errorf("sink saw %d distinct items, want 50", snk.distinctItems())
	}
	stored, err := f.jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != domain.JobStatusCompleted {
		t.Errorf("job status = %s, want completed", stored.Status)
	}
}
