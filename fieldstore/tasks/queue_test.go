package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeRunner struct {
	mu         sync.Mutex
	blueprints []int64
	entries    []string
	fail       int // fail this many calls before succeeding
	failErr    error
	calls      int
}

func (f *fakeRunner) record(fn func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail > 0 {
		f.fail--
		return f.failErr
	}
	fn()
	return nil
}

func (f *fakeRunner) ReindexBlueprint(_ context.Context, id int64) error {
	return f.record(func() { f.blueprints = append(f.blueprints, id) })
}

func (f *fakeRunner) ReindexEntry(_ context.Context, id string) error {
	return f.record(func() { f.entries = append(f.entries, id) })
}

type transientErr struct{}

func (transientErr) Error() string   { return "transient" }
func (transientErr) Retryable() bool { return true }

func TestInlineExecution(t *testing.T) {
	r := &fakeRunner{}
	q := New(r, Options{Workers: 0}, zerolog.Nop())

	q.Enqueue(Task{Kind: KindReindexBlueprint, BlueprintID: 7})
	q.Enqueue(Task{Kind: KindReindexEntry, EntryID: "e1"})
	q.Close()

	if len(r.blueprints) != 1 || r.blueprints[0] != 7 {
		t.Fatalf("blueprint task not run inline: %v", r.blueprints)
	}
	if len(r.entries) != 1 || r.entries[0] != "e1" {
		t.Fatalf("entry task not run inline: %v", r.entries)
	}
}

func TestWorkersDrainOnClose(t *testing.T) {
	r := &fakeRunner{}
	q := New(r, Options{Workers: 2, Retries: 0}, zerolog.Nop())

	for i := int64(1); i <= 20; i++ {
		q.Enqueue(Task{Kind: KindReindexBlueprint, BlueprintID: i})
	}
	q.Close()

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.blueprints) != 20 {
		t.Fatalf("expected 20 tasks drained, got %d", len(r.blueprints))
	}
}

func TestEnqueueAfterCloseIsDropped(t *testing.T) {
	r := &fakeRunner{}
	q := New(r, Options{Workers: 1}, zerolog.Nop())
	q.Close()

	// Must not panic on the closed channel; the task is dropped.
	q.Enqueue(Task{Kind: KindReindexBlueprint, BlueprintID: 1})

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.blueprints) != 0 {
		t.Fatalf("task ran after close: %v", r.blueprints)
	}
}

func TestRetryOnTransientError(t *testing.T) {
	r := &fakeRunner{fail: 2, failErr: transientErr{}}
	q := New(r, Options{Workers: 0, Retries: 3, Backoff: time.Millisecond}, zerolog.Nop())

	q.Enqueue(Task{Kind: KindReindexEntry, EntryID: "e1"})
	q.Close()

	if r.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", r.calls)
	}
	if len(r.entries) != 1 {
		t.Fatalf("task never succeeded: %v", r.entries)
	}
}

func TestNoRetryOnPermanentError(t *testing.T) {
	r := &fakeRunner{fail: 10, failErr: errors.New("boom")}
	q := New(r, Options{Workers: 0, Retries: 3, Backoff: time.Millisecond}, zerolog.Nop())

	q.Enqueue(Task{Kind: KindReindexEntry, EntryID: "e1"})
	q.Close()

	if r.calls != 1 {
		t.Fatalf("permanent error must not retry, got %d attempts", r.calls)
	}
}

func TestRetriesExhausted(t *testing.T) {
	r := &fakeRunner{fail: 10, failErr: transientErr{}}
	q := New(r, Options{Workers: 0, Retries: 2, Backoff: time.Millisecond}, zerolog.Nop())

	q.Enqueue(Task{Kind: KindReindexEntry, EntryID: "e1"})
	q.Close()

	if r.calls != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", r.calls)
	}
	if len(r.entries) != 0 {
		t.Fatalf("task should not have succeeded")
	}
}
