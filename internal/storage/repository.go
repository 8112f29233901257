package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"finease/internal/core"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// GetPref returns the stored value for key. The second result is false when
// the key has never been set.
func (r *SQLiteRepository) GetPref(ctx context.Context, key string) (string, bool, error) {
	p, err := r.queries.GetPref(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get pref %s: %w", key, err)
	}
	return p.Value, true, nil
}

func (r *SQLiteRepository) SetPref(ctx context.Context, key, value string) error {
	if err := r.queries.UpsertPref(ctx, UpsertPrefParams{Key: key, Value: value}); err != nil {
		return fmt.Errorf("set pref %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) DeletePref(ctx context.Context, key string) error {
	if err := r.queries.DeletePref(ctx, key); err != nil {
		return fmt.Errorf("delete pref %s: %w", key, err)
	}
	return nil
}

// CreateAccount stores a new local account. ErrDuplicate is returned when the
// email is already registered.
func (r *SQLiteRepository) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	a, err := r.queries.CreateAccount(ctx, arg)
	if err != nil {
		if isUniqueViolation(err) {
			return Account{}, fmt.Errorf("account %s: %w", arg.Email, ErrDuplicate)
		}
		return Account{}, fmt.Errorf("create account: %w", err)
	}

	slog.InfoContext(ctx, "Account created",
		"id", a.ID,
		"email", a.Email,
		"provider", a.Provider)

	return a, nil
}

func (r *SQLiteRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	a, err := r.queries.GetAccountByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *SQLiteRepository) UpdateAccountProfile(ctx context.Context, email, displayName, photoURL string) error {
	n, err := r.queries.UpdateAccountProfile(ctx, UpdateAccountProfileParams{
		DisplayName: displayName,
		PhotoUrl:    photoURL,
		Email:       email,
	})
	if err != nil {
		return fmt.Errorf("update account profile: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", email, ErrNotFound)
	}
	return nil
}

// RecordActivity appends an activity event. Events already recorded under
// the same id are ignored, so redelivered messages are harmless. The boolean
// reports whether a new row was written.
func (r *SQLiteRepository) RecordActivity(ctx context.Context, a core.Activity) (bool, error) {
	n, err := r.queries.InsertActivity(ctx, InsertActivityParams{
		ID:         a.ID,
		Kind:       string(a.Kind),
		Subject:    a.Subject,
		Actor:      a.Actor,
		Detail:     a.Detail,
		OccurredAt: a.At.UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("record activity: %w", err)
	}
	return n > 0, nil
}

// RecentActivity returns the newest events first.
func (r *SQLiteRepository) RecentActivity(ctx context.Context, limit int) ([]core.Activity, error) {
	rows, err := r.queries.ListRecentActivity(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}

	out := make([]core.Activity, len(rows))
	for i, a := range rows {
		out[i] = core.Activity{
			ID:      a.ID,
			Kind:    core.ActivityKind(a.Kind),
			Subject: a.Subject,
			Actor:   a.Actor,
			Detail:  a.Detail,
			At:      a.OccurredAt,
		}
	}
	return out, nil
}

// PruneActivity deletes events that occurred before the cutoff.
func (r *SQLiteRepository) PruneActivity(ctx context.Context, before time.Time) (int64, error) {
	n, err := r.queries.DeleteActivityBefore(ctx, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Pruned activity", "count", n, "before", before.UTC())
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
