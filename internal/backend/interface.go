package backend

import (
	"context"

	"finease/internal/core"
	"finease/internal/identity/local"
	"finease/internal/prefs"
	"finease/internal/storage"
)

// Publisher receives activity events after confirmed mutations.
type Publisher interface {
	PublishActivity(ctx context.Context, a core.Activity) error
}

// Backend bundles the local state stores the web client needs.
type Backend struct {
	Prefs    prefs.Store
	Accounts local.AccountStore
	// Publisher is nil when AMQP is not configured.
	Publisher Publisher
	// Repository is nil for the memory backend.
	Repository *storage.SQLiteRepository
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, used by both backend types when URL is set
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
