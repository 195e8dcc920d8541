package updater

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"dataflow-api/domain"
	"dataflow-api/storage"
)

type fakeQueueStore struct {
	mu      sync.Mutex
	queue   []domain.CommandEnvelope
	acked   []string
	patches map[string]domain.TaskPatch
}

func newFakeQueueStore() *fakeQueueStore {
	return &fakeQueueStore{patches: make(map[string]domain.TaskPatch)}
}

func (f *fakeQueueStore) DequeueCommand(ctx context.Context) (*domain.CommandEnvelope, storage.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, storage.Receipt{}, nil
	}
	env := f.queue[0]
	f.queue = f.queue[1:]
	return &env, storage.Receipt{ID: env.Command.ID, PopReceipt: "pop"}, nil
}

func (f *fakeQueueStore) AckCommand(ctx context.Context, r storage.Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, r.ID)
	return nil
}

func (f *fakeQueueStore) UpdateTask(ctx context.Context, accountID, taskID string, patch domain.TaskPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches[taskID] = patch
	return nil
}

func (f *fakeQueueStore) Acked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.acked))
	copy(out, f.acked)
	return out
}

func statusChangeEnvelope(t *testing.T, accountID string, change domain.TaskChange) domain.CommandEnvelope {
	t.Helper()
	cmd, err := domain.StatusChangeCommand("p1", change)
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	cmd.ID = "cmd-" + change.TaskID
	return domain.CommandEnvelope{AccountID: accountID, Command: cmd}
}

func TestConsumerAppliesStatusChange(t *testing.T) {
	store := newFakeQueueStore()
	consumer := New(store, nil, "", log.New())

	completed := domain.Today()
	env := statusChangeEnvelope(t, "acct", domain.TaskChange{
		TaskID:        "t1",
		Status:        domain.ColumnDone,
		CompletedDate: completed,
	})

	if err := consumer.apply(context.Background(), &env); err != nil {
		t.Fatalf("apply: %v", err)
	}

	patch, ok := store.patches["t1"]
	if !ok {
		t.Fatal("expected an update for t1")
	}
	if patch.Status == nil || *patch.Status != domain.ColumnDone {
		t.Fatalf("unexpected status patch %+v", patch.Status)
	}
	if patch.CompletedDate == nil || !patch.CompletedDate.Equal(completed) {
		t.Fatalf("unexpected completed date patch %+v", patch.CompletedDate)
	}
}

func TestConsumerStatusChangeWithoutCompletionDate(t *testing.T) {
	store := newFakeQueueStore()
	consumer := New(store, nil, "", log.New())

	env := statusChangeEnvelope(t, "acct", domain.TaskChange{
		TaskID: "t1",
		Status: domain.ColumnInProgress,
	})

	if err := consumer.apply(context.Background(), &env); err != nil {
		t.Fatalf("apply: %v", err)
	}

	patch := store.patches["t1"]
	if patch.CompletedDate != nil {
		t.Fatalf("expected no completed date, got %v", patch.CompletedDate)
	}
}

func TestConsumerIgnoresUnknownCommandType(t *testing.T) {
	store := newFakeQueueStore()
	consumer := New(store, nil, "", log.New())

	env := domain.CommandEnvelope{
		AccountID: "acct",
		Command:   domain.Command{ID: "c1", Type: "mystery"},
	}
	if err := consumer.apply(context.Background(), &env); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(store.patches) != 0 {
		t.Fatal("unknown command must not touch storage")
	}
}

func TestConsumerRunDrainsAndAcks(t *testing.T) {
	store := newFakeQueueStore()
	store.queue = []domain.CommandEnvelope{
		statusChangeEnvelope(t, "acct", domain.TaskChange{TaskID: "t1", Status: domain.ColumnDone}),
		statusChangeEnvelope(t, "acct", domain.TaskChange{TaskID: "t2", Status: domain.ColumnTodo}),
	}
	consumer := New(store, nil, "", log.New())
	consumer.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if len(store.Acked()) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for acks, got %v", store.Acked())
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	acked := store.Acked()
	if acked[0] != "cmd-t1" || acked[1] != "cmd-t2" {
		t.Fatalf("unexpected ack order %v", acked)
	}
}

func TestConsumerPublishesBoardEvent(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	sub := client.Subscribe(context.Background(), "board-updates")
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	store := newFakeQueueStore()
	consumer := New(store, client, "", log.New())

	env := statusChangeEnvelope(t, "acct", domain.TaskChange{TaskID: "t1", Status: domain.ColumnDone})
	if err := consumer.apply(context.Background(), &env); err != nil {
		t.Fatalf("apply: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var ev domain.BoardEvent
		if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.AccountID != "acct" || ev.ProjectID != "p1" || ev.TaskID != "t1" {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Status != domain.ColumnDone {
			t.Fatalf("unexpected status %q", ev.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for board event")
	}
}
