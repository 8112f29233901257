// Package worker records the activity stream published by the web client.
package worker

import (
	"context"
	"fmt"
	"time"

	"finease/internal/amqp"
	"finease/internal/core"
	"finease/internal/log"
)

// ActivityStore is the part of the SQLite repository the worker writes to.
type ActivityStore interface {
	RecordActivity(ctx context.Context, a core.Activity) (bool, error)
	RecentActivity(ctx context.Context, limit int) ([]core.Activity, error)
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

type ActivityWorker struct {
	store     ActivityStore
	retention time.Duration
	logger    *log.Logger
	now       func() time.Time
}

// NewActivityWorker creates a worker. A zero retention keeps events forever.
func NewActivityWorker(store ActivityStore, retention time.Duration, logger *log.Logger) *ActivityWorker {
	if logger == nil {
		logger = log.Nop()
	}
	return &ActivityWorker{
		store:     store,
		retention: retention,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleActivityMessage stores one event. Redelivered events are skipped.
func (w *ActivityWorker) HandleActivityMessage(ctx context.Context, msg *amqp.ActivityMessage) error {
	a := msg.Activity
	if a.At.IsZero() {
		a.At = msg.PublishedAt
	}

	created, err := w.store.RecordActivity(ctx, a)
	if err != nil {
		return fmt.Errorf("record activity %s: %w", a.ID, err)
	}
	if !created {
		w.logger.DebugContext(ctx, "Duplicate activity skipped", "id", a.ID, log.FieldActivity, a.Kind)
		return nil
	}

	w.logger.InfoContext(ctx, "Activity recorded",
		"id", a.ID,
		log.FieldActivity, a.Kind,
		"subject", a.Subject,
		"actor", a.Actor)
	return nil
}

// StartupCheck logs the most recent events so an operator can see where the
// log left off.
func (w *ActivityWorker) StartupCheck(ctx context.Context, limit int) error {
	recent, err := w.store.RecentActivity(ctx, limit)
	if err != nil {
		return fmt.Errorf("read recent activity: %w", err)
	}
	if len(recent) == 0 {
		w.logger.InfoContext(ctx, "Activity log is empty")
		return nil
	}
	w.logger.InfoContext(ctx, "Activity log resumed",
		log.FieldCount, len(recent),
		"last_id", recent[0].ID,
		"last_at", recent[0].At)
	return nil
}

// Prune removes events older than the retention window.
func (w *ActivityWorker) Prune(ctx context.Context) (int64, error) {
	if w.retention <= 0 {
		return 0, nil
	}
	return w.store.PruneActivity(ctx, w.now().Add(-w.retention))
}

// PeriodicPrune runs Prune every interval until ctx is cancelled.
func (w *ActivityWorker) PeriodicPrune(ctx context.Context, interval time.Duration) error {
	if w.retention <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Prune(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Activity prune failed", log.FieldError, err, log.FieldErrorType, log.ErrorTypeDatabase)
			}
		}
	}
}
