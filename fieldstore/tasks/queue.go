// Package tasks runs deferred reindex work so schema edits return without
// waiting for large record sets to be re-projected.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type Kind string

const (
	KindReindexBlueprint Kind = "reindex_blueprint"
	KindReindexEntry     Kind = "reindex_entry"
)

// Task is one unit of background work. Tasks are idempotent and
// dedup-tolerant: enqueueing the same task twice produces the same end
// state as once.
type Task struct {
	Kind        Kind
	BlueprintID int64
	EntryID     string
}

// Runner executes tasks. The engine implements it.
type Runner interface {
	ReindexBlueprint(ctx context.Context, blueprintID int64) error
	ReindexEntry(ctx context.Context, entryID string) error
}

// retryable is implemented by errors that represent transient storage
// failures worth retrying.
type retryable interface {
	Retryable() bool
}

// Options configures a Queue.
type Options struct {
	Workers int
	Retries int
	Backoff time.Duration
}

func DefaultOptions() Options {
	return Options{Workers: 2, Retries: 3, Backoff: 100 * time.Millisecond}
}

// Queue is an in-process task queue with a fixed worker pool. With zero
// workers it degrades to inline execution, which keeps tests
// deterministic.
type Queue struct {
	runner  Runner
	opts    Options
	log     zerolog.Logger
	ch      chan Task
	wg      sync.WaitGroup
	closing sync.Once
	mu      sync.RWMutex
	closed  bool
}

func New(runner Runner, opts Options, log zerolog.Logger) *Queue {
	q := &Queue{runner: runner, opts: opts, log: log}
	if opts.Workers > 0 {
		q.ch = make(chan Task, 256)
		for i := 0; i < opts.Workers; i++ {
			q.wg.Add(1)
			go q.worker()
		}
	}
	return q
}

// Enqueue submits a task. Inline mode (zero workers) runs it immediately
// on the calling goroutine. After Close the task is logged and dropped;
// tasks are idempotent, so a dropped reindex is re-derivable.
func (q *Queue) Enqueue(t Task) {
	if q.ch == nil {
		q.run(t)
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.log.Warn().
			Str("kind", string(t.Kind)).
			Int64("blueprint_id", t.BlueprintID).
			Str("entry_id", t.EntryID).
			Msg("queue closed, task dropped")
		return
	}
	q.ch <- t
}

// Close stops accepting work and waits for queued tasks to drain.
func (q *Queue) Close() {
	q.closing.Do(func() {
		if q.ch != nil {
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			close(q.ch)
		}
	})
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.ch {
		q.run(t)
	}
}

// run executes one task with at-least-once retry on transient failures.
// An irrecoverable failure is reported and dropped; it never blocks other
// tasks.
func (q *Queue) run(t Task) {
	ctx := context.Background()
	var err error
	for attempt := 0; attempt <= q.opts.Retries; attempt++ {
		if attempt > 0 {
			time.Sleep(q.opts.Backoff * time.Duration(attempt))
		}
		err = q.execute(ctx, t)
		if err == nil {
			return
		}
		if !isRetryable(err) {
			break
		}
		q.log.Warn().
			Str("kind", string(t.Kind)).
			Int64("blueprint_id", t.BlueprintID).
			Str("entry_id", t.EntryID).
			Int("attempt", attempt+1).
			Err(err).
			Msg("task failed, retrying")
	}
	q.log.Error().
		Str("kind", string(t.Kind)).
		Int64("blueprint_id", t.BlueprintID).
		Str("entry_id", t.EntryID).
		Err(err).
		Msg("task failed permanently")
}

func (q *Queue) execute(ctx context.Context, t Task) error {
	switch t.Kind {
	case KindReindexBlueprint:
		return q.runner.ReindexBlueprint(ctx, t.BlueprintID)
	case KindReindexEntry:
		return q.runner.ReindexEntry(ctx, t.EntryID)
	default:
		return errors.New("unknown task kind: " + string(t.Kind))
	}
}

func isRetryable(err error) bool {
	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}
