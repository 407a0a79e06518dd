package offline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"), nil)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func candidate(desc string) core.Candidate {
	return core.Candidate{
		UserID:      core.DefaultUserID,
		Amount:      decimal.NewFromFloat(4.2),
		Category:    core.CategoryGroceries,
		Description: desc,
		Date:        "2024-03-01",
	}
}

func TestEnqueue_SynthesizesOfflineRow(t *testing.T) {
	q := openTestQueue(t)
	row := q.Enqueue(context.Background(), candidate("bread"))

	if !strings.HasPrefix(row.ID, IDPrefix) {
		t.Errorf("ID = %q, want %q prefix", row.ID, IDPrefix)
	}
	if row.CreatedAt.IsZero() || row.UpdatedAt.IsZero() {
		t.Error("offline row should carry locally-set timestamps")
	}
	if row.Description != "bread" {
		t.Errorf("description = %q", row.Description)
	}
}

func TestEnqueue_PreservesEarlierEntries(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	first := q.Enqueue(ctx, candidate("first"))
	second := q.Enqueue(ctx, candidate("second"))

	pending := q.Pending(ctx)
	if len(pending) != 2 {
		t.Fatalf("queue depth = %d, want 2", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Errorf("queue order = [%s %s], want [%s %s]",
			pending[0].ID, pending[1].ID, first.ID, second.ID)
	}
}

func TestQueue_DurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.db")
	ctx := context.Background()

	q, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	queued := q.Enqueue(ctx, candidate("durable"))
	q.Close()

	q2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer q2.Close()

	pending := q2.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != queued.ID {
		t.Errorf("queue not durable across reopen: %+v", pending)
	}
	if !pending[0].Amount.Equal(decimal.NewFromFloat(4.2)) {
		t.Errorf("amount = %s, want 4.2", pending[0].Amount)
	}
}

func TestRemove_OnlyConfirmedEntries(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()

	a := q.Enqueue(ctx, candidate("a"))
	b := q.Enqueue(ctx, candidate("b"))

	q.Remove(ctx, []string{a.ID})

	pending := q.Pending(ctx)
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Errorf("remaining queue = %+v, want only %s", pending, b.ID)
	}

	// Removing unknown IDs leaves the queue untouched.
	q.Remove(ctx, []string{"offline_missing"})
	if got := q.Depth(ctx); got != 1 {
		t.Errorf("depth = %d after removing unknown id, want 1", got)
	}
}

func TestPending_EmptyQueue(t *testing.T) {
	q := openTestQueue(t)
	if got := q.Pending(context.Background()); len(got) != 0 {
		t.Errorf("fresh queue should be empty, got %+v", got)
	}
}

func TestEnqueue_SwallowsStorageFailure(t *testing.T) {
	q := openTestQueue(t)
	q.db.Close() // simulate broken local storage

	// Must not panic and must still hand back a usable synthesized row.
	row := q.Enqueue(context.Background(), candidate("doomed"))
	if !strings.HasPrefix(row.ID, IDPrefix) {
		t.Errorf("ID = %q, want %q prefix even when storage is broken", row.ID, IDPrefix)
	}
}
