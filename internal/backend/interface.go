package backend

import (
	"context"

	"spendlog/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result contains the wired store, the change feed, and an optional cleanup
// function releasing their resources.
type Result struct {
	Store   store.Store
	Feed    store.Feed
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Store backend type
	Type BackendType

	// Feed transport
	Feed FeedType

	// Postgres specific
	PostgresDSN string

	// AMQP specific
	AMQPURL      string
	AMQPExchange string
}

// BackendType represents the type of store backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// FeedType represents the transport the change feed rides on
type FeedType string

const (
	// PGListenFeed delivers change events over Postgres LISTEN/NOTIFY.
	PGListenFeed FeedType = "pglisten"
	// AMQPFeed delivers change events through a fanout exchange.
	AMQPFeed FeedType = "amqp"
)

// String implements fmt.Stringer
func (ft FeedType) String() string {
	return string(ft)
}

// IsValid returns true if the feed type is valid
func (ft FeedType) IsValid() bool {
	switch ft {
	case PGListenFeed, AMQPFeed:
		return true
	default:
		return false
	}
}
