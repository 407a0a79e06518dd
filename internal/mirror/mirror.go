// Package mirror maintains a client-local, eventually-consistent copy of the
// remote expense collection: one initial bulk fetch, then incremental change
// events applied from the live feed.
package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"spendlog/internal/core"
	"spendlog/internal/log"
	"spendlog/internal/store"
)

// Mirror owns the in-memory expense list. The list is ordered by date
// descending and is mutated only by Refresh and by feed events; both paths
// go through the same mutex, and feed events are applied in delivery order.
//
// There is deliberately no sequencing guard between a Refresh completing and
// interleaved change events: whichever lands last wins. A delta arriving
// before the first fetch resolves mutates the current (possibly empty) list,
// and a fetch result landing afterwards replaces the list wholesale.
type Mirror struct {
	store  store.Store
	feed   store.Feed
	logger *log.Logger

	mu       sync.Mutex
	expenses []core.Expense
	loading  bool
	err      error
	gen      uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(st store.Store, feed store.Feed, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Mirror{
		store:   st,
		feed:    feed,
		logger:  logger.WithComponent(log.ComponentMirror),
		loading: true,
	}
}

// Start performs the initial fetch and opens the feed subscription. The
// fetch outcome lands in the mirror's error state rather than failing Start;
// a dead feed is a hard error since the mirror would silently go stale.
// The subscription is torn down on Stop or when ctx is cancelled.
func (m *Mirror) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		return fmt.Errorf("mirror already started")
	}

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("Initial fetch failed, serving empty list until resync", "error", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub, err := m.feed.Subscribe(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to change feed: %w", err)
	}

	m.cancel = cancel
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		defer sub.Unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				m.applyDelta(ev)
			}
		}
	}(m.done)

	m.logger.Info("Mirror started")
	return nil
}

// Stop cancels the feed subscription and waits for the apply loop to exit.
// Safe to call more than once and before Start.
func (m *Mirror) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.done = nil
	m.cancel = nil
	m.logger.Info("Mirror stopped")
}

// Refresh fetches the full collection and replaces the list wholesale,
// clearing any previous fetch error. On failure the prior list is kept so a
// transient error never flashes an empty list. Either way the loading flag
// clears after the first completion. Idempotent; safe to call to force a
// resync.
func (m *Mirror) Refresh(ctx context.Context) error {
	rows, err := m.store.QueryAll(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loading = false
	m.gen++
	if err != nil {
		m.err = err
		m.logger.Error("Fetch failed, keeping stale list",
			"error", err, "stale_rows", len(m.expenses))
		return fmt.Errorf("fetch expenses: %w", err)
	}
	sortByDateDesc(rows)
	m.expenses = rows
	m.err = nil
	m.logger.Debug("Fetched expense collection", "rows", len(rows))
	return nil
}

// Create validates and normalizes the candidate, then inserts it against the
// remote store, returning the persisted row with its server-assigned
// identity. Invalid input is rejected before any network call. Local state
// is not touched: the feed echo (or a later Refresh) surfaces the new row.
func (m *Mirror) Create(ctx context.Context, cand core.Candidate) (core.Expense, error) {
	if err := cand.Normalize(); err != nil {
		return core.Expense{}, err
	}

	row, err := m.store.Insert(ctx, cand)
	if err != nil {
		m.logger.Error("Create failed",
			"error", err,
			"category", cand.Category,
			"date", cand.Date)
		return core.Expense{}, err
	}

	m.logger.Info("Expense created",
		"expense_id", row.ID,
		"category", row.Category,
		"date", row.Date)
	return row, nil
}

// Snapshot returns a copy of the current list, ordered by date descending.
func (m *Mirror) Snapshot() []core.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Expense(nil), m.expenses...)
}

// Loading reports whether the first fetch has yet to complete.
func (m *Mirror) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// Err returns the last fetch failure, or nil after a successful fetch.
func (m *Mirror) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Generation increments on every list mutation. Consumers use it to
// invalidate derived caches.
func (m *Mirror) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// applyDelta reconciles one externally-observed change into the list.
func (m *Mirror) applyDelta(ev store.ChangeEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Type {
	case store.EventInsert:
		if ev.New == nil {
			return
		}
		if m.indexOf(ev.New.ID) >= 0 {
			m.logger.Debug("Duplicate insert event ignored", "expense_id", ev.New.ID)
			return
		}
		m.expenses = append(m.expenses, *ev.New)
		sortByDateDesc(m.expenses)
		m.gen++
		m.logger.Debug("Applied insert delta", "expense_id", ev.New.ID, "rows", len(m.expenses))

	case store.EventUpdate:
		if ev.New == nil {
			return
		}
		i := m.indexOf(ev.New.ID)
		if i < 0 {
			return
		}
		m.expenses[i] = *ev.New
		sortByDateDesc(m.expenses)
		m.gen++
		m.logger.Debug("Applied update delta", "expense_id", ev.New.ID)

	case store.EventDelete:
		id := deletedID(ev)
		if id == "" {
			return
		}
		i := m.indexOf(id)
		if i < 0 {
			return
		}
		m.expenses = append(m.expenses[:i], m.expenses[i+1:]...)
		m.gen++
		m.logger.Debug("Applied delete delta", "expense_id", id, "rows", len(m.expenses))

	default:
		m.logger.Warn("Unknown change event type", "type", ev.Type)
	}
}

func (m *Mirror) indexOf(id string) int {
	for i := range m.expenses {
		if m.expenses[i].ID == id {
			return i
		}
	}
	return -1
}

func deletedID(ev store.ChangeEvent) string {
	if ev.Old != nil {
		return ev.Old.ID
	}
	if ev.New != nil {
		return ev.New.ID
	}
	return ""
}

func sortByDateDesc(rows []core.Expense) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Before(rows[j]) })
}
