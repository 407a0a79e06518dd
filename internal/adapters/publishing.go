// Package adapters composes store implementations with cross-cutting
// collaborators without either side knowing about the other.
package adapters

import (
	"context"
	"log/slog"

	"spendlog/internal/core"
	"spendlog/internal/store"
)

// ChangePublisher pushes one change event onto a feed transport.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev store.ChangeEvent) error
}

// PublishingStore wraps a remote store and publishes an insert event after
// every successful write. Used when the change feed rides on AMQP instead of
// the store's own notification channel.
type PublishingStore struct {
	store.Store
	publisher ChangePublisher
}

func NewPublishingStore(inner store.Store, publisher ChangePublisher) *PublishingStore {
	return &PublishingStore{Store: inner, publisher: publisher}
}

// Insert writes through to the wrapped store, then publishes the insert
// event. A publish failure is logged, not surfaced: the row is already
// persisted and a later full refresh will pick it up.
func (p *PublishingStore) Insert(ctx context.Context, cand core.Candidate) (core.Expense, error) {
	row, err := p.Store.Insert(ctx, cand)
	if err != nil {
		return core.Expense{}, err
	}

	if p.publisher != nil {
		if err := p.publisher.PublishChange(ctx, store.ChangeEvent{Type: store.EventInsert, New: &row}); err != nil {
			slog.ErrorContext(ctx, "Failed to publish insert event",
				"error", err, "expense_id", row.ID)
		}
	}

	return row, nil
}
