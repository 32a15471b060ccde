package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgergate/observability"
	"ledgergate/task"
)

// Worker drains the pending-task store on a fixed cadence and executes each
// ledger task through the service. Task payload bytes are never mutated;
// only the finish timestamp and result text change.
type Worker struct {
	store    *task.Store
	service  *Service
	logger   *slog.Logger
	metrics  *observability.GatewayMetrics
	interval time.Duration
	workers  int
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// WorkerOption customises the worker instance.
type WorkerOption func(*Worker)

// WithPollInterval sets the cadence for checking the store.
func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithWorkerCount bounds how many tasks execute concurrently per drain.
func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithWorkerLogger supplies a structured logger.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithWorkerMetrics overrides the default metrics registry.
func WithWorkerMetrics(m *observability.GatewayMetrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithWorkerClock sets the function used to derive timestamps.
func WithWorkerClock(clock func() time.Time) WorkerOption {
	return func(w *Worker) {
		if clock != nil {
			w.now = clock
		}
	}
}

// NewWorker constructs a worker over the store and service.
func NewWorker(store *task.Store, service *Service, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:    store,
		service:  service,
		logger:   slog.Default(),
		metrics:  observability.Gateway(),
		interval: 5 * time.Second,
		workers:  4,
		now:      time.Now,
		inFlight: make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drains pending tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.Drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain executes every currently-pending ledger task once, bounded by the
// worker count, and waits for the batch to finish.
func (w *Worker) Drain(ctx context.Context) {
	pending, err := w.store.Pending(ctx)
	if err != nil {
		w.logger.Error("list pending tasks", "err", err)
		return
	}

	sem := make(chan struct{}, w.workers)
	var wg sync.WaitGroup
	for _, t := range pending {
		if !t.TaskType.IsLedgerTask() {
			continue
		}
		if !w.claim(t.ID) {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(t task.PendingTask) {
			defer wg.Done()
			defer func() { <-sem }()
			defer w.release(t.ID)
			w.process(ctx, t)
		}(t)
	}
	wg.Wait()
}

func (w *Worker) process(ctx context.Context, t task.PendingTask) {
	start := w.now()
	result, err := w.service.ProcessTask(ctx, t)
	outcome := "accepted"
	if err != nil {
		outcome = "failed"
		w.logger.Warn("task failed", "task", t.ID, "type", t.TaskType.String(), "err", err)
	}
	w.metrics.ObserveTaskDuration(t.TaskType.String(), outcome, w.now().Sub(start))

	if err := w.store.Complete(ctx, t.ID, result); err != nil {
		if errors.Is(err, task.ErrTaskFinished) {
			// Lost a completion race; the first terminal outcome stands.
			return
		}
		w.logger.Error("record task outcome", "task", t.ID, "err", err)
	}
}

func (w *Worker) claim(id uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[id]; busy {
		return false
	}
	w.inFlight[id] = struct{}{}
	return true
}

func (w *Worker) release(id uuid.UUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, id)
}
