// Package offline buffers expense candidates created while the remote store
// is unreachable. The queue lives in a local SQLite database, as a single
// JSON-encoded list under a fixed key, and is best-effort by design: storage
// failures are logged and swallowed so a broken local disk never breaks the
// create flow.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"spendlog/internal/core"
	"spendlog/internal/log"
)

// StorageKey is the fixed key the queued candidate list is stored under.
const StorageKey = "offline_expenses"

// IDPrefix marks locally synthesized expense IDs.
const IDPrefix = "offline_"

type Queue struct {
	db     *sql.DB
	logger *log.Logger

	// Serializes the read-modify-write cycle on the stored list.
	mu sync.Mutex

	// Last synthesized ID value; keeps IDs strictly increasing even when
	// two enqueues land in the same millisecond.
	lastIDMillis int64
}

func Open(dbPath string, logger *log.Logger) (*Queue, error) {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create queue directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping queue database: %w", err)
	}
	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate queue database: %w", err)
	}

	return &Queue{db: db, logger: logger.WithComponent(log.ComponentOffline)}, nil
}

func (q *Queue) Close() error {
	if q.db != nil {
		return q.db.Close()
	}
	return nil
}

// Enqueue appends the candidate to the durable list and returns it as an
// expense row with a synthesized "offline_" ID and locally-set timestamps.
// Previously queued entries are preserved (read-modify-write, never a blind
// overwrite). Storage failures are logged, never returned.
func (q *Queue) Enqueue(ctx context.Context, cand core.Candidate) core.Expense {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	millis := now.UnixMilli()
	if millis <= q.lastIDMillis {
		millis = q.lastIDMillis + 1
	}
	q.lastIDMillis = millis

	row := core.Expense{
		ID:          fmt.Sprintf("%s%d", IDPrefix, millis),
		UserID:      cand.UserID,
		Amount:      cand.Amount,
		Category:    cand.Category,
		Description: cand.Description,
		Date:        cand.Date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	list, err := q.readList(ctx)
	if err != nil {
		// Writing now would clobber entries we failed to read back.
		q.logger.Error("Offline queue read failed, entry not persisted",
			"error", err, "expense_id", row.ID)
		return row
	}
	list = append(list, row)
	if err := q.writeList(ctx, list); err != nil {
		q.logger.Error("Offline queue write failed, entry not persisted",
			"error", err, "expense_id", row.ID)
		return row
	}

	q.logger.Info("Expense queued for later sync",
		"expense_id", row.ID, "queue_depth", len(list))
	return row
}

// Pending returns the queued entries in enqueue order. Read failures are
// logged and reported as an empty queue.
func (q *Queue) Pending(ctx context.Context) []core.Expense {
	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.readList(ctx)
	if err != nil {
		q.logger.Error("Offline queue read failed", "error", err)
		return nil
	}
	return list
}

// Remove deletes the entries with the given IDs from the durable list,
// keeping everything else. Called only after submissions are confirmed.
func (q *Queue) Remove(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	list, err := q.readList(ctx)
	if err != nil {
		q.logger.Error("Offline queue read failed during remove", "error", err)
		return
	}
	kept := list[:0]
	for _, row := range list {
		if _, ok := drop[row.ID]; !ok {
			kept = append(kept, row)
		}
	}
	if len(kept) == len(list) {
		return
	}
	if err := q.writeList(ctx, kept); err != nil {
		q.logger.Error("Offline queue write failed during remove", "error", err)
		return
	}
	q.logger.Info("Flushed entries removed from offline queue",
		"removed", len(list)-len(kept), "queue_depth", len(kept))
}

// Depth reports the number of queued entries.
func (q *Queue) Depth(ctx context.Context) int {
	return len(q.Pending(ctx))
}

func (q *Queue) readList(ctx context.Context) ([]core.Expense, error) {
	var value string
	err := q.db.QueryRowContext(ctx,
		`SELECT value FROM local_state WHERE key = ?`, StorageKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", StorageKey, err)
	}
	var list []core.Expense
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StorageKey, err)
	}
	return list, nil
}

func (q *Queue) writeList(ctx context.Context, list []core.Expense) error {
	if list == nil {
		list = []core.Expense{}
	}
	value, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode %s: %w", StorageKey, err)
	}
	_, err = q.db.ExecContext(ctx,
		`INSERT INTO local_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		StorageKey, string(value))
	if err != nil {
		return fmt.Errorf("write %s: %w", StorageKey, err)
	}
	return nil
}
