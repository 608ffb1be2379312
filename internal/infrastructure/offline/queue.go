package offline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation is a deferred request. Run performs the full request, retries
// included, and stores its own result before returning.
type Operation struct {
	ID         string
	Label      string
	Run        func(ctx context.Context) error
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
}

type pending struct {
	op   Operation
	done chan error
}

type QueueConfig struct {
	// DefaultMaxRetries applies to operations enqueued without a budget.
	DefaultMaxRetries int
	// Requeue reports whether a failed replay should stay queued for the
	// next drain, typically when connectivity was lost again.
	Requeue func(err error) bool
	// OnDepthChange observes the queue length after every change.
	OnDepthChange func(depth int)
}

// Queue holds operations issued while offline and replays them in FIFO
// order, one at a time, when connectivity returns.
type Queue struct {
	cfg QueueConfig

	mu       sync.Mutex
	items    []*pending
	draining bool
}

func NewQueue(cfg QueueConfig) *Queue {
	if cfg.DefaultMaxRetries <= 0 {
		cfg.DefaultMaxRetries = 3
	}
	if cfg.Requeue == nil {
		cfg.Requeue = func(error) bool { return false }
	}
	return &Queue{cfg: cfg}
}

// Enqueue appends op and returns a channel that receives the replay
// outcome exactly once.
func (q *Queue) Enqueue(op Operation) <-chan error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}
	if op.MaxRetries <= 0 {
		op.MaxRetries = q.cfg.DefaultMaxRetries
	}
	item := &pending{op: op, done: make(chan error, 1)}

	q.mu.Lock()
	q.items = append(q.items, item)
	depth := len(q.items)
	q.mu.Unlock()

	slog.Info("offline_queue_enqueue", "operation_id", op.ID, "label", op.Label, "depth", depth)
	q.reportDepth(depth)
	return item.done
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain replays queued operations sequentially. Concurrent calls are
// no-ops while a drain is running. Drain stops early, keeping the rest of
// the queue in order, when a replay fails in a way Requeue accepts.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		item, ok := q.popFront()
		if !ok {
			return
		}

		err := item.op.Run(ctx)
		if err == nil {
			slog.Info("offline_queue_replay", "operation_id", item.op.ID, "label", item.op.Label, "outcome", "ok")
			item.done <- nil
			continue
		}

		item.op.RetryCount++
		if q.cfg.Requeue(err) && item.op.RetryCount < item.op.MaxRetries {
			slog.Warn("offline_queue_replay",
				"operation_id", item.op.ID,
				"label", item.op.Label,
				"outcome", "requeued",
				"retry_count", item.op.RetryCount,
				"error", err,
			)
			q.pushFront(item)
			return
		}

		slog.Warn("offline_queue_replay",
			"operation_id", item.op.ID,
			"label", item.op.Label,
			"outcome", "abandoned",
			"retry_count", item.op.RetryCount,
			"error", err,
		)
		item.done <- err
	}
}

func (q *Queue) popFront() (*pending, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	depth := len(q.items)
	q.mu.Unlock()

	q.reportDepth(depth)
	return item, true
}

func (q *Queue) pushFront(item *pending) {
	q.mu.Lock()
	q.items = append([]*pending{item}, q.items...)
	depth := len(q.items)
	q.mu.Unlock()

	q.reportDepth(depth)
}

func (q *Queue) reportDepth(depth int) {
	if q.cfg.OnDepthChange != nil {
		q.cfg.OnDepthChange(depth)
	}
}
