package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"finease/internal/amqp"
	"finease/internal/core"
	"finease/internal/storage"
)

func newRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "activity.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestHandleActivityMessage(t *testing.T) {
	repo := newRepo(t)
	w := NewActivityWorker(repo, 0, nil)
	ctx := context.Background()

	msg := amqp.NewActivityMessage(core.Activity{
		ID:      "a1",
		Kind:    core.ActivityTransactionCreated,
		Subject: "t1",
		Actor:   "ann@example.com",
		At:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	if err := w.HandleActivityMessage(ctx, msg); err != nil {
		t.Fatalf("HandleActivityMessage() error = %v", err)
	}
	if err := w.HandleActivityMessage(ctx, msg); err != nil {
		t.Fatalf("redelivery should be accepted, got %v", err)
	}

	got, err := repo.RecentActivity(ctx, 10)
	if err != nil {
		t.Fatalf("RecentActivity() error = %v", err)
	}
	if len(got) != 1 || got[0].Subject != "t1" {
		t.Errorf("RecentActivity() = %+v, want one event for t1", got)
	}
}

func TestHandleActivityMessageFallsBackToPublishTime(t *testing.T) {
	repo := newRepo(t)
	w := NewActivityWorker(repo, 0, nil)
	ctx := context.Background()

	msg := &amqp.ActivityMessage{
		Activity:    core.Activity{ID: "a1", Kind: core.ActivityUserDeleted},
		PublishedAt: time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC),
	}
	if err := w.HandleActivityMessage(ctx, msg); err != nil {
		t.Fatalf("HandleActivityMessage() error = %v", err)
	}
	got, _ := repo.RecentActivity(ctx, 1)
	if len(got) != 1 || !got[0].At.Equal(msg.PublishedAt) {
		t.Errorf("At = %v, want %v", got, msg.PublishedAt)
	}
}

type failingStore struct{ ActivityStore }

func (failingStore) RecordActivity(context.Context, core.Activity) (bool, error) {
	return false, errors.New("database is locked")
}

func TestHandleActivityMessageStoreError(t *testing.T) {
	w := NewActivityWorker(failingStore{}, 0, nil)
	msg := amqp.NewActivityMessage(core.Activity{ID: "a1", Kind: core.ActivityUserDeleted})
	if err := w.HandleActivityMessage(context.Background(), msg); err == nil {
		t.Fatal("expected the store error so the message is requeued")
	}
}

func TestPrune(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, a := range []core.Activity{
		{ID: "old", Kind: core.ActivityUserDeleted, At: now.Add(-48 * time.Hour)},
		{ID: "new", Kind: core.ActivityUserDeleted, At: now.Add(-time.Hour)},
	} {
		if _, err := repo.RecordActivity(ctx, a); err != nil {
			t.Fatalf("RecordActivity() error = %v", err)
		}
	}

	keepAll := NewActivityWorker(repo, 0, nil)
	if n, err := keepAll.Prune(ctx); err != nil || n != 0 {
		t.Fatalf("Prune() without retention = %d, %v", n, err)
	}

	w := NewActivityWorker(repo, 24*time.Hour, nil)
	w.now = func() time.Time { return now }
	n, err := w.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Prune() = %d, want 1", n)
	}
	if err := w.StartupCheck(ctx, 5); err != nil {
		t.Errorf("StartupCheck() error = %v", err)
	}
}
