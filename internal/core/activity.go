package core

import "time"

// ActivityKind names a successful mutation the client performed.
type ActivityKind string

const (
	ActivityTransactionCreated ActivityKind = "transaction.created"
	ActivityTransactionUpdated ActivityKind = "transaction.updated"
	ActivityTransactionDeleted ActivityKind = "transaction.deleted"
	ActivityUserRoleChanged    ActivityKind = "user.role_changed"
	ActivityUserDeleted        ActivityKind = "user.deleted"
)

// Activity is emitted after the backend confirmed a mutation.
type Activity struct {
	ID      string       `json:"id"`
	Kind    ActivityKind `json:"kind"`
	Subject string       `json:"subject"` // id of the transaction or user
	Actor   string       `json:"actor"`   // email of the signed-in user
	Detail  string       `json:"detail,omitempty"`
	At      time.Time    `json:"at"`
}
