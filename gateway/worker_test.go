package gateway

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"ledgergate/ledger"
	"ledgergate/task"
)

func TestWorkerEndToEnd(t *testing.T) {
	f := newFixture(t)
	if err := task.AutoMigrate(f.db); err != nil {
		t.Fatalf("migrate tasks: %v", err)
	}
	store := task.NewStore(f.db)
	ctx := context.Background()

	payload, err := TopicCreateRequest{TopicRowID: f.topic.ID, OperatorRowID: f.operator.ID}.Encode()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	original := append([]byte(nil), payload...)

	user := uuid.New()
	id, err := store.Enqueue(ctx, user, task.TypeTopicCreate, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker := NewWorker(store, f.service,
		WithPollInterval(10*time.Millisecond),
		WithWorkerCount(2),
	)
	worker.Drain(ctx)

	snap, err := store.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Finished() {
		t.Fatal("task must be finished after the worker ran")
	}
	if !strings.Contains(snap.Result, string(StateAccepted)) {
		t.Fatalf("result = %q, want success summary", snap.Result)
	}
	if !bytes.Equal(snap.Request, original) {
		t.Fatal("payload bytes changed during processing")
	}

	stored, err := LoadTopic(f.db, f.topic.ID)
	if err != nil {
		t.Fatalf("load topic: %v", err)
	}
	if stored.TopicID != "0.0.7777" {
		t.Fatalf("topic id = %q after worker run", stored.TopicID)
	}
}

func TestWorkerRecordsRejection(t *testing.T) {
	f := newFixture(t)
	if err := task.AutoMigrate(f.db); err != nil {
		t.Fatalf("migrate tasks: %v", err)
	}
	f.transport.txCode = ledger.CodeInsufficientTxFee
	f.transport.receipt = nil

	store := task.NewStore(f.db)
	ctx := context.Background()

	payload, err := TopicCreateRequest{TopicRowID: f.topic.ID, OperatorRowID: f.operator.ID}.Encode()
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	id, err := store.Enqueue(ctx, uuid.New(), task.TypeTopicCreate, payload)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker := NewWorker(store, f.service)
	worker.Drain(ctx)

	snap, err := store.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Finished() {
		t.Fatal("rejected task must still reach a terminal outcome")
	}
	if !strings.Contains(snap.Result, string(StateRejected)) {
		t.Fatalf("result = %q, want rejection summary", snap.Result)
	}
}

func TestWorkerSkipsNonLedgerTasks(t *testing.T) {
	f := newFixture(t)
	if err := task.AutoMigrate(f.db); err != nil {
		t.Fatalf("migrate tasks: %v", err)
	}
	store := task.NewStore(f.db)
	ctx := context.Background()

	id, err := store.Enqueue(ctx, uuid.New(), task.TypeTransfer, []byte("local value transfer"))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker := NewWorker(store, f.service)
	worker.Drain(ctx)

	snap, err := store.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Finished() {
		t.Fatal("non-ledger tasks are not this worker's to finish")
	}
}
