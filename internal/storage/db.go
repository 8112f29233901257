package storage

import (
	"context"
	"database/sql"
	"time"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Pref struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PhotoUrl     string
	PasswordHash string
	Provider     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Activity struct {
	ID         string
	Kind       string
	Subject    string
	Actor      string
	Detail     string
	OccurredAt time.Time
	RecordedAt time.Time
}
