// Package store defines the contract of the remote expense store: query,
// insert, reachability, and a live change feed. Implementations live in
// subpackages (postgres, memory); the AMQP-backed feed lives in
// internal/amqp.
package store

import (
	"context"
	"errors"
	"fmt"

	"spendlog/internal/core"
)

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

type (
	// EventType tags a change event delivered by the feed.
	EventType string

	// ChangeEvent is a single insert/update/delete notification for the
	// expense collection. New carries the row's state after the change,
	// Old the state before it; either may be nil depending on Type.
	ChangeEvent struct {
		Type EventType     `json:"type"`
		New  *core.Expense `json:"new,omitempty"`
		Old  *core.Expense `json:"old,omitempty"`
	}

	// Querier reads the full expense collection, ordered by date descending.
	Querier interface {
		QueryAll(ctx context.Context) ([]core.Expense, error)
	}

	// Inserter submits one candidate row and returns the persisted expense
	// with its server-assigned ID and timestamps.
	Inserter interface {
		Insert(ctx context.Context, cand core.Candidate) (core.Expense, error)
	}

	// Pinger probes store reachability. Used by the offline flusher to
	// detect the transition back to online.
	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Feed opens a live subscription to the expense change stream.
	Feed interface {
		Subscribe(ctx context.Context) (*Subscription, error)
	}

	// Store is the full remote store surface.
	Store interface {
		Querier
		Inserter
		Pinger
	}
)

// ErrUnavailable marks failures caused by the store being unreachable, as
// opposed to the store rejecting a request.
var ErrUnavailable = errors.New("remote store unreachable")

// IsUnavailable reports whether err stems from an unreachable store.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// WriteError carries the remote store's message for a rejected insert.
type WriteError struct {
	Message string
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("remote write failed: %s", e.Message)
}

// Subscription is a cancellable handle on the change stream. The consumer
// owns the handle and must call Unsubscribe to release the channel; the
// event channel is closed once the subscription ends.
type Subscription struct {
	events <-chan ChangeEvent
	cancel func()
}

// NewSubscription wraps an event channel and a cancel function. cancel must
// be safe to call more than once.
func NewSubscription(events <-chan ChangeEvent, cancel func()) *Subscription {
	return &Subscription{events: events, cancel: cancel}
}

// Events returns the stream of change events, delivered in feed order.
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.events
}

// Unsubscribe tears the subscription down and releases the underlying
// channel resources.
func (s *Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}
