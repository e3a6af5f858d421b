package service

import (
	"context"

	"github.com/timmy/syncq/internal/logger"
)

// WorkerTrigger wakes up one worker invocation. Triggering must be
// fire-and-forget and an idempotent no-op when nothing is eligible.
type WorkerTrigger interface {
	TriggerNext(jobID string)
}

// WorkerInvoker is the entry point a trigger wakes up.
type WorkerInvoker interface {
	InvokeWorker(ctx context.Context) error
}

// AsyncTrigger invokes the worker service on a new goroutine. In a
// short-lived-invocation runtime this would be an outbound call to the
// execution platform; in this persistent-service runtime the goroutine is
// the equivalent with the same claim semantics.
type AsyncTrigger struct {
	invoker WorkerInvoker
	logger  *logger.Logger
}

// NewAsyncTrigger creates a trigger without an invoker; the invoker is bound
// later because the worker service itself holds the trigger.
func NewAsyncTrigger(log *logger.Logger) *AsyncTrigger {
	return &AsyncTrigger{logger: log}
}

// Bind attaches the worker invoker. Calls before Bind are dropped.
func (t *AsyncTrigger) Bind(invoker WorkerInvoker) {
	t.invoker = invoker
}

// TriggerNext launches one worker invocation in the background.
func (t *AsyncTrigger) TriggerNext(jobID string) {
	if t.invoker == nil {
		t.logger.Warn("Worker trigger fired before invoker was bound")
		return
	}
	go func() {
		ctx := context.Background()
		if jobID != "" {
			ctx = logger.SetJobID(ctx, jobID)
		}
		if err := t.invoker.InvokeWorker(ctx); err != nil {
			t.logger.WithError(err).Error("Triggered worker invocation failed")
		}
	}()
}

// NoopTrigger discards trigger calls. Used where cascading activation is
// driven externally, and in tests.
type NoopTrigger struct{}

// TriggerNext does nothing.
func (NoopTrigger) TriggerNext(string) {}
