package storage

import (
	"context"
	"time"
)

const getPref = `SELECT key, value, updated_at FROM prefs WHERE key = ?`

func (q *Queries) GetPref(ctx context.Context, key string) (Pref, error) {
	row := q.db.QueryRowContext(ctx, getPref, key)
	var i Pref
	err := row.Scan(&i.Key, &i.Value, &i.UpdatedAt)
	return i, err
}

const upsertPref = `INSERT INTO prefs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

type UpsertPrefParams struct {
	Key   string
	Value string
}

func (q *Queries) UpsertPref(ctx context.Context, arg UpsertPrefParams) error {
	_, err := q.db.ExecContext(ctx, upsertPref, arg.Key, arg.Value)
	return err
}

const deletePref = `DELETE FROM prefs WHERE key = ?`

func (q *Queries) DeletePref(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, deletePref, key)
	return err
}

const createAccount = `INSERT INTO accounts (id, email, display_name, photo_url, password_hash, provider)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, email, display_name, photo_url, password_hash, provider, created_at, updated_at`

type CreateAccountParams struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoUrl     string
	PasswordHash string
	Provider     string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRowContext(ctx, createAccount,
		arg.ID,
		arg.Email,
		arg.DisplayName,
		arg.PhotoUrl,
		arg.PasswordHash,
		arg.Provider,
	)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.DisplayName,
		&i.PhotoUrl,
		&i.PasswordHash,
		&i.Provider,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getAccountByEmail = `SELECT id, email, display_name, photo_url, password_hash, provider, created_at, updated_at
FROM accounts WHERE email = ?`

func (q *Queries) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	row := q.db.QueryRowContext(ctx, getAccountByEmail, email)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.DisplayName,
		&i.PhotoUrl,
		&i.PasswordHash,
		&i.Provider,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateAccountProfile = `UPDATE accounts SET display_name = ?, photo_url = ?, updated_at = CURRENT_TIMESTAMP
WHERE email = ?`

type UpdateAccountProfileParams struct {
	DisplayName string
	PhotoUrl    string
	Email       string
}

func (q *Queries) UpdateAccountProfile(ctx context.Context, arg UpdateAccountProfileParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAccountProfile, arg.DisplayName, arg.PhotoUrl, arg.Email)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertActivity = `INSERT OR IGNORE INTO activity (id, kind, subject, actor, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?)`

type InsertActivityParams struct {
	ID         string
	Kind       string
	Subject    string
	Actor      string
	Detail     string
	OccurredAt time.Time
}

func (q *Queries) InsertActivity(ctx context.Context, arg InsertActivityParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertActivity,
		arg.ID,
		arg.Kind,
		arg.Subject,
		arg.Actor,
		arg.Detail,
		arg.OccurredAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listRecentActivity = `SELECT id, kind, subject, actor, detail, occurred_at, recorded_at
FROM activity ORDER BY occurred_at DESC, recorded_at DESC LIMIT ?`

func (q *Queries) ListRecentActivity(ctx context.Context, limit int64) ([]Activity, error) {
	rows, err := q.db.QueryContext(ctx, listRecentActivity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Activity
	for rows.Next() {
		var i Activity
		if err := rows.Scan(
			&i.ID,
			&i.Kind,
			&i.Subject,
			&i.Actor,
			&i.Detail,
			&i.OccurredAt,
			&i.RecordedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteActivityBefore = `DELETE FROM activity WHERE occurred_at < ?`

func (q *Queries) DeleteActivityBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteActivityBefore, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
