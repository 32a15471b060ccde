package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func setupTaskTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Serialize writes; in-memory sqlite is single-writer.
	raw, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	raw.SetMaxOpenConns(1)
	return db
}

func TestEnqueueAndSnapshot(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	ctx := context.Background()

	owner := uuid.New()
	payload := []byte{0x01, 0x02, 0x03, 0x04}
	id, err := store.Enqueue(ctx, owner, TypeTopicCreate, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	snap, err := store.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.UserID != owner {
		t.Fatalf("user = %s, want %s", snap.UserID, owner)
	}
	if snap.TaskType != TypeTopicCreate {
		t.Fatalf("type = %s", snap.TaskType)
	}
	if !bytes.Equal(snap.Request, payload) {
		t.Fatal("payload does not round-trip")
	}
	if snap.Finished() {
		t.Fatal("fresh task must not be finished")
	}

	// Mutating the snapshot or the original slice must not reach the store.
	payload[0] = 0xFF
	snap.Request[1] = 0xFF
	again, err := store.Request(ctx, id)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !bytes.Equal(again, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatal("stored payload mutated through an aliased slice")
	}
}

func TestEnqueueRejectsInvalidType(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	if _, err := store.Enqueue(context.Background(), uuid.New(), TypeNone, nil); err == nil {
		t.Fatal("expected error for task type none")
	}
	if _, err := store.Enqueue(context.Background(), uuid.New(), TaskType(99), nil); err == nil {
		t.Fatal("expected error for unknown task type")
	}
}

func TestUnknownTask(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	if _, err := store.Snapshot(context.Background(), uuid.New()); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
	if err := store.SetResult(context.Background(), uuid.New(), "x"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	ctx := context.Background()

	payload := bytes.Repeat([]byte{0x7E}, 64)
	id, err := store.Enqueue(ctx, uuid.New(), TypeTopicMessage, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const writers = 8
	const reads = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)

	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < reads; i++ {
				if err := store.SetResult(ctx, id, fmt.Sprintf("writer-%d-%d", w, i)); err != nil {
					errs <- err
					return
				}
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < reads; i++ {
				snap, err := store.Snapshot(ctx, id)
				if err != nil {
					errs <- err
					return
				}
				// Immutable fields must never tear.
				if snap.TaskType != TypeTopicMessage || !bytes.Equal(snap.Request, payload) {
					errs <- fmt.Errorf("read observed partially-written state: %+v", snap)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestCompleteIsWriteOnce(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := NewStore(setupTaskTestDB(t), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, uuid.New(), TypeTopicCreate, []byte("req"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Complete(ctx, id, "accepted"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.Complete(ctx, id, "late"); !errors.Is(err, ErrTaskFinished) {
		t.Fatalf("second complete: err = %v, want ErrTaskFinished", err)
	}

	snap, err := store.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.FinishedAt == nil || !snap.FinishedAt.Equal(now) {
		t.Fatalf("finished_at = %v, want %v", snap.FinishedAt, now)
	}
	if snap.Result != "accepted" {
		t.Fatalf("result = %q, the losing completion must not overwrite it", snap.Result)
	}
}

func TestCompleteRace(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, uuid.New(), TypeAccountCreate, []byte("req"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	var won, lost int
	var mu sync.Mutex
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.Complete(ctx, id, fmt.Sprintf("racer-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrTaskFinished):
				lost++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if won != 1 || lost != racers-1 {
		t.Fatalf("won = %d, lost = %d; exactly one completion must win", won, lost)
	}
}

func TestPendingListsUnfinished(t *testing.T) {
	store := NewStore(setupTaskTestDB(t))
	ctx := context.Background()

	first, err := store.Enqueue(ctx, uuid.New(), TypeTopicCreate, []byte("a"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := store.Enqueue(ctx, uuid.New(), TypeTopicMessage, []byte("b"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Complete(ctx, first, "done"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	pending, err := store.Pending(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Fatalf("pending = %+v, want only the second task", pending)
	}
}
