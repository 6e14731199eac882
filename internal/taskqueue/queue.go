// Package taskqueue runs external calls admitted by the cost guardrail on a
// fixed pool of workers. Tasks are ordered strictly by priority, FIFO within
// a tier; callers block on Poll until their task completes, fails, or the
// poll times out.
package taskqueue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SaptaDey/asr-nexus-explorer-sub010/api/schemas"
	"github.com/SaptaDey/asr-nexus-explorer-sub010/internal/config"
)

// TaskFunc is the unit of work a worker executes.
type TaskFunc func(ctx context.Context) (any, error)

type record struct {
	id       string
	priority schemas.TaskPriority
	seq      uint64
	fn       TaskFunc

	done   chan struct{}
	result any
	err    error
	status schemas.TaskStatus
	doneAt time.Time
}

// taskHeap orders by priority descending, then submission sequence
// ascending (FIFO within a tier).
type taskHeap []*record

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(*record)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the bounded-concurrency priority executor.
type Queue struct {
	cfg    config.QueueConfig
	logger *zap.Logger

	mu      sync.Mutex
	pending taskHeap
	records map[string]*record
	seq     uint64

	// items carries one token per pending task; its capacity equals
	// MaxPending so sends after a successful push can never block.
	items chan struct{}
	wg    sync.WaitGroup
	now   func() time.Time
}

// New creates a Queue. Start must be called before tasks run.
func New(cfg config.QueueConfig, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 64
	}
	if cfg.ResultRetention <= 0 {
		cfg.ResultRetention = 30 * time.Second
	}
	return &Queue{
		cfg:     cfg,
		logger:  logger.Named("taskqueue"),
		records: make(map[string]*record),
		items:   make(chan struct{}, cfg.MaxPending),
		now:     time.Now,
	}
}

// SetClock replaces the time source used for retention sweeps, for tests.
func (q *Queue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Start launches the worker pool.
func (q *Queue) Start(ctx context.Context) {
	q.logger.Info("Starting task queue worker pool", zap.Int("workers", q.cfg.Workers))
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.runWorker(ctx, i+1)
	}
}

// Stop waits for in-flight tasks to finish. The context passed to Start must
// be cancelled first or Stop blocks until it is.
func (q *Queue) Stop() {
	q.wg.Wait()
	q.logger.Info("Task queue stopped")
}

// Submit enqueues work and returns its task id. Returns ErrQueueFull when
// the pending queue is at capacity (reject-on-full policy).
func (q *Queue) Submit(fn TaskFunc, priority schemas.TaskPriority) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("task function cannot be nil")
	}
	q.mu.Lock()
	q.sweepLocked()
	if len(q.pending) >= q.cfg.MaxPending {
		q.mu.Unlock()
		return "", schemas.ErrQueueFull
	}
	q.seq++
	rec := &record{
		id:       uuid.NewString(),
		priority: priority,
		seq:      q.seq,
		fn:       fn,
		done:     make(chan struct{}),
		status:   schemas.TaskPending,
	}
	heap.Push(&q.pending, rec)
	q.records[rec.id] = rec
	q.mu.Unlock()

	q.items <- struct{}{}
	q.logger.Debug("Task submitted",
		zap.String("task_id", rec.id),
		zap.String("priority", priority.String()))
	return rec.id, nil
}

// Poll blocks until the task completes, fails, or the timeout elapses. A
// timed-out poll is a terminal failure for that call; the task itself keeps
// running to completion.
func (q *Queue) Poll(taskID string, timeout time.Duration) (any, error) {
	q.mu.Lock()
	q.sweepLocked()
	rec, ok := q.records[taskID]
	q.mu.Unlock()
	if !ok {
		return nil, &schemas.TaskFailedError{TaskID: taskID, Err: schemas.ErrNotFound}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-rec.done:
		if rec.err != nil {
			return nil, &schemas.TaskFailedError{TaskID: taskID, Err: rec.err}
		}
		return rec.result, nil
	case <-timer.C:
		return nil, &schemas.TimeoutError{Op: "poll task " + taskID, Timeout: timeout}
	}
}

// Status reports a task's lifecycle state.
func (q *Queue) Status(taskID string) (schemas.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.records[taskID]
	if !ok {
		return "", schemas.ErrNotFound
	}
	return rec.status, nil
}

// runWorker is the main loop for a single worker goroutine.
func (q *Queue) runWorker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	logger := q.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Worker shutting down")
			return
		case <-q.items:
			rec := q.popLocked()
			if rec == nil {
				continue
			}
			q.execute(ctx, rec, logger)
		}
	}
}

func (q *Queue) popLocked() *record {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	rec := heap.Pop(&q.pending).(*record)
	rec.status = schemas.TaskRunning
	return rec
}

// execute runs one task with the configured timeout. A panicking or failing
// task only affects callers polling its id.
func (q *Queue) execute(ctx context.Context, rec *record, logger *zap.Logger) {
	taskCtx := ctx
	var cancel context.CancelFunc
	if q.cfg.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, q.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			rec.err = fmt.Errorf("task panicked: %v", r)
			logger.Error("Task panicked", zap.String("task_id", rec.id), zap.Any("panic", r))
		}
		q.mu.Lock()
		if rec.err != nil {
			rec.status = schemas.TaskFailed
		} else {
			rec.status = schemas.TaskCompleted
		}
		rec.doneAt = q.now()
		q.mu.Unlock()
		close(rec.done)
	}()

	rec.result, rec.err = rec.fn(taskCtx)
	if rec.err != nil {
		logger.Debug("Task failed", zap.String("task_id", rec.id), zap.Error(rec.err))
	}
}

// sweepLocked evicts finished records older than the retention window. Runs
// on every Submit and Poll instead of a background timer so tests stay
// deterministic.
func (q *Queue) sweepLocked() {
	cutoff := q.now().Add(-q.cfg.ResultRetention)
	for id, rec := range q.records {
		if (rec.status == schemas.TaskCompleted || rec.status == schemas.TaskFailed) && rec.doneAt.Before(cutoff) {
			delete(q.records, id)
		}
	}
}
