// Package memory provides an in-process implementation of the remote store
// contract with a broadcast change feed. It backs the "memory" data backend
// and the test suites.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"spendlog/internal/core"
	"spendlog/internal/store"
)

type Store struct {
	mu       sync.Mutex
	items    []core.Expense
	subs     map[int]chan store.ChangeEvent
	nextSub  int
	offline  bool
	queryErr error
}

func New() *Store {
	return &Store{subs: make(map[int]chan store.ChangeEvent)}
}

// QueryAll returns the full collection ordered by date descending.
func (s *Store) QueryAll(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return nil, store.ErrUnavailable
	}
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	out := append([]core.Expense(nil), s.items...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Insert persists the candidate, assigns identity and timestamps, and
// broadcasts an insert event to all subscribers.
func (s *Store) Insert(_ context.Context, cand core.Candidate) (core.Expense, error) {
	s.mu.Lock()
	if s.offline {
		s.mu.Unlock()
		return core.Expense{}, store.ErrUnavailable
	}
	now := time.Now().UTC()
	row := core.Expense{
		ID:          uuid.NewString(),
		UserID:      cand.UserID,
		Amount:      cand.Amount,
		Category:    cand.Category,
		Description: cand.Description,
		Date:        cand.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.items = append(s.items, row)
	s.mu.Unlock()

	s.Emit(store.ChangeEvent{Type: store.EventInsert, New: &row})
	return row, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.offline {
		return store.ErrUnavailable
	}
	return nil
}

// Subscribe registers a new feed consumer. Events emitted after this call
// are delivered in order until Unsubscribe or context cancellation.
func (s *Store) Subscribe(ctx context.Context) (*store.Subscription, error) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan store.ChangeEvent, 64)
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return store.NewSubscription(ch, cancel), nil
}

// Emit broadcasts a change event to every active subscriber. Tests use it to
// inject externally-observed deltas (edits from another client).
func (s *Store) Emit(ev store.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default: // slow consumer, drop rather than block the store
		}
	}
}

// Seed replaces the stored collection without emitting events.
func (s *Store) Seed(items []core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]core.Expense(nil), items...)
}

// SetOffline toggles simulated unreachability for Query/Insert/Ping.
func (s *Store) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// SetQueryErr forces QueryAll to fail with err until cleared.
func (s *Store) SetQueryErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

// Len reports the number of stored rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
