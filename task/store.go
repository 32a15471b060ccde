package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound indicates the task id is unknown.
	ErrTaskNotFound = errors.New("task: not found")
	// ErrTaskFinished indicates the task already reached a terminal outcome.
	ErrTaskFinished = errors.New("task: already finished")
	// ErrRowCount indicates a persistence update touched an unexpected number
	// of rows. The store never attempts partial recovery from this.
	ErrRowCount = errors.New("task: unexpected affected row count")
)

// Store is the durable, concurrently-accessible pending-task record. Every
// field access goes through a per-task reader/writer guard: reads copy the
// value out before releasing the guard, writes copy the new value in. No
// accessor returns a reference into shared state.
type Store struct {
	db  *gorm.DB
	now func() time.Time

	mu     sync.Mutex
	guards map[uuid.UUID]*sync.RWMutex
}

// StoreOption customises the store instance.
type StoreOption func(*Store)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore constructs a task store backed by the provided database.
func NewStore(db *gorm.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		now:    time.Now,
		guards: make(map[uuid.UUID]*sync.RWMutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// guard returns the per-task lock, creating it on first use. Tasks loaded
// from a previous process run get their guard lazily the same way.
func (s *Store) guard(id uuid.UUID) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guards[id]
	if !ok {
		g = &sync.RWMutex{}
		s.guards[id] = g
	}
	return g
}

// Enqueue creates a new pending task and returns its id. The payload is
// copied; the stored request bytes are immutable from this point on.
func (s *Store) Enqueue(ctx context.Context, userID uuid.UUID, taskType TaskType, payload []byte) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, fmt.Errorf("task: store not configured")
	}
	if !taskType.Valid() {
		return uuid.Nil, fmt.Errorf("task: invalid task type %d", taskType)
	}
	record := PendingTask{
		ID:        uuid.New(),
		UserID:    userID,
		TaskType:  taskType,
		Request:   append([]byte(nil), payload...),
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return uuid.Nil, fmt.Errorf("task: enqueue: %w", err)
	}
	s.guard(record.ID)
	return record.ID, nil
}

// Snapshot returns a copy of the task's current state.
func (s *Store) Snapshot(ctx context.Context, id uuid.UUID) (PendingTask, error) {
	g := s.guard(id)
	g.RLock()
	defer g.RUnlock()
	return s.load(ctx, id)
}

// Request returns a copy of the serialized request payload.
func (s *Store) Request(ctx context.Context, id uuid.UUID) ([]byte, error) {
	g := s.guard(id)
	g.RLock()
	defer g.RUnlock()
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return record.Request, nil
}

// UserID returns the owning user of the task.
func (s *Store) UserID(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	g := s.guard(id)
	g.RLock()
	defer g.RUnlock()
	record, err := s.load(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return record.UserID, nil
}

// Type returns the task's type tag.
func (s *Store) Type(ctx context.Context, id uuid.UUID) (TaskType, error) {
	g := s.guard(id)
	g.RLock()
	defer g.RUnlock()
	record, err := s.load(ctx, id)
	if err != nil {
		return TypeNone, err
	}
	return record.TaskType, nil
}

// SetResult replaces the task's result text without finishing it.
func (s *Store) SetResult(ctx context.Context, id uuid.UUID, result string) error {
	g := s.guard(id)
	g.Lock()
	defer g.Unlock()

	res := s.db.WithContext(ctx).Model(&PendingTask{}).
		Where("id = ?", id).
		Update("result", result)
	if res.Error != nil {
		return fmt.Errorf("task: set result: %w", res.Error)
	}
	return s.checkOneRow(res.RowsAffected)
}

// Complete records the terminal outcome: finished_at and the result text are
// set atomically with respect to other field mutations, and finished_at is
// set at most once. A racing second completion observes ErrTaskFinished and
// issues no further update.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, result string) error {
	g := s.guard(id)
	g.Lock()
	defer g.Unlock()

	finished := s.now()
	res := s.db.WithContext(ctx).Model(&PendingTask{}).
		Where("id = ? AND finished_at IS NULL", id).
		Updates(map[string]any{"finished_at": &finished, "result": result})
	if res.Error != nil {
		return fmt.Errorf("task: complete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Either unknown or already finished; distinguish for the caller.
		if _, err := s.load(ctx, id); err != nil {
			return err
		}
		return ErrTaskFinished
	}
	return s.checkOneRow(res.RowsAffected)
}

// Pending lists all tasks that have not reached a terminal outcome, oldest
// first, for the worker to claim.
func (s *Store) Pending(ctx context.Context) ([]PendingTask, error) {
	var records []PendingTask
	err := s.db.WithContext(ctx).
		Where("finished_at IS NULL").
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("task: list pending: %w", err)
	}
	for i := range records {
		records[i].Request = append([]byte(nil), records[i].Request...)
	}
	return records, nil
}

func (s *Store) load(ctx context.Context, id uuid.UUID) (PendingTask, error) {
	var record PendingTask
	err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PendingTask{}, ErrTaskNotFound
		}
		return PendingTask{}, fmt.Errorf("task: load: %w", err)
	}
	record.Request = append([]byte(nil), record.Request...)
	return record, nil
}

func (s *Store) checkOneRow(affected int64) error {
	switch affected {
	case 1:
		return nil
	case 0:
		return ErrTaskNotFound
	default:
		return fmt.Errorf("%w: %d", ErrRowCount, affected)
	}
}
