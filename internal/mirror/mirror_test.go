package mirror

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/store"
	"spendlog/internal/store/memory"
)

func row(id, date string) core.Expense {
	return core.Expense{
		ID:          id,
		UserID:      core.DefaultUserID,
		Amount:      decimal.NewFromInt(10),
		Category:    core.CategoryGroceries,
		Description: "test " + id,
		Date:        date,
	}
}

func newTestMirror(t *testing.T) (*Mirror, *memory.Store) {
	t.Helper()
	st := memory.New()
	return New(st, st, nil), st
}

func TestRefresh_OrdersByDateDescending(t *testing.T) {
	m, st := newTestMirror(t)
	st.Seed([]core.Expense{
		row("a", "2024-03-01"),
		row("b", "2024-01-15"),
		row("c", "2024-02-20"),
	})

	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	got := m.Snapshot()
	want := []string{"2024-03-01", "2024-02-20", "2024-01-15"}
	if len(got) != len(want) {
		t.Fatalf("snapshot has %d rows, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Date != w {
			t.Errorf("snapshot[%d].Date = %s, want %s", i, got[i].Date, w)
		}
	}
	if m.Loading() {
		t.Error("loading should clear after first fetch")
	}
	if m.Err() != nil {
		t.Errorf("err should clear after successful fetch, got %v", m.Err())
	}
}

func TestRefresh_FailureKeepsStaleList(t *testing.T) {
	m, st := newTestMirror(t)
	st.Seed([]core.Expense{row("a", "2024-03-01")})
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}

	boom := errors.New("timeout")
	st.SetQueryErr(boom)
	if err := m.Refresh(context.Background()); err == nil {
		t.Fatal("expected Refresh to fail")
	}

	if got := m.Snapshot(); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("stale list not retained on failure: %+v", got)
	}
	if !errors.Is(m.Err(), boom) {
		t.Errorf("Err() = %v, want wrapped %v", m.Err(), boom)
	}
	if m.Loading() {
		t.Error("loading should be cleared even on failure")
	}

	// A later successful refresh clears the error.
	st.SetQueryErr(nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if m.Err() != nil {
		t.Errorf("Err() should clear after success, got %v", m.Err())
	}
}

func TestRefresh_FirstFetchFailureClearsLoading(t *testing.T) {
	m, st := newTestMirror(t)
	st.SetQueryErr(errors.New("boom"))

	if !m.Loading() {
		t.Fatal("loading should start true")
	}
	_ = m.Refresh(context.Background())
	if m.Loading() {
		t.Error("loading should clear after the first completion, success or not")
	}
}

func TestApplyDelta_Insert(t *testing.T) {
	m, _ := newTestMirror(t)
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("a", "2024-02-20"))})
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("b", "2024-03-01"))})

	got := m.Snapshot()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", got[0].ID, got[1].ID)
	}
}

func TestApplyDelta_DuplicateInsertIgnored(t *testing.T) {
	m, _ := newTestMirror(t)
	ev := store.ChangeEvent{Type: store.EventInsert, New: ptr(row("a", "2024-03-01"))}
	m.applyDelta(ev)
	m.applyDelta(ev)

	if got := m.Snapshot(); len(got) != 1 {
		t.Errorf("len = %d after duplicate insert, want 1", len(got))
	}
}

func TestApplyDelta_Update(t *testing.T) {
	m, _ := newTestMirror(t)
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("a", "2024-03-01"))})

	updated := row("a", "2024-03-01")
	updated.Description = "edited elsewhere"
	m.applyDelta(store.ChangeEvent{Type: store.EventUpdate, New: &updated})

	got := m.Snapshot()
	if len(got) != 1 || got[0].Description != "edited elsewhere" {
		t.Errorf("update not applied: %+v", got)
	}

	// Unknown ID is a no-op.
	ghost := row("ghost", "2024-03-01")
	m.applyDelta(store.ChangeEvent{Type: store.EventUpdate, New: &ghost})
	if got := m.Snapshot(); len(got) != 1 {
		t.Errorf("update for unknown id should be a no-op, len = %d", len(got))
	}
}

func TestApplyDelta_UpdateMovesRowOnDateChange(t *testing.T) {
	m, _ := newTestMirror(t)
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("a", "2024-03-01"))})
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("b", "2024-02-20"))})

	moved := row("b", "2024-04-01")
	m.applyDelta(store.ChangeEvent{Type: store.EventUpdate, New: &moved})

	got := m.Snapshot()
	if got[0].ID != "b" {
		t.Errorf("re-dated row should sort first, order = [%s %s]", got[0].ID, got[1].ID)
	}
}

func TestApplyDelta_Delete(t *testing.T) {
	m, _ := newTestMirror(t)
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("a", "2024-03-01"))})

	// Delete for an absent ID is a no-op.
	m.applyDelta(store.ChangeEvent{Type: store.EventDelete, Old: ptr(row("ghost", "2024-01-01"))})
	if got := m.Snapshot(); len(got) != 1 {
		t.Fatalf("delete of unknown id changed length: %d", len(got))
	}

	m.applyDelta(store.ChangeEvent{Type: store.EventDelete, Old: ptr(row("a", "2024-03-01"))})
	if got := m.Snapshot(); len(got) != 0 {
		t.Errorf("len = %d after delete, want 0", len(got))
	}
}

func TestApplyDelta_BeforeFirstFetch(t *testing.T) {
	// A delta arriving before the initial fetch resolves mutates the empty
	// list; the later fetch result replaces it wholesale.
	m, st := newTestMirror(t)
	m.applyDelta(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("early", "2024-05-01"))})
	if got := m.Snapshot(); len(got) != 1 {
		t.Fatalf("delta before fetch should land in the empty list, len = %d", len(got))
	}

	st.Seed([]core.Expense{row("a", "2024-03-01")})
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	got := m.Snapshot()
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("late fetch should replace wholesale, got %+v", got)
	}
}

func TestCreate_InvalidInputSkipsStore(t *testing.T) {
	m, st := newTestMirror(t)

	_, err := m.Create(context.Background(), core.Candidate{
		Amount:      decimal.NewFromInt(-1),
		Category:    core.CategoryGroceries,
		Description: "x",
		Date:        "2024-03-01",
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if st.Len() != 0 {
		t.Error("invalid candidate must not reach the remote store")
	}
}

func TestCreate_ReturnsPersistedRowWithoutLocalMutation(t *testing.T) {
	m, _ := newTestMirror(t)

	cand := core.Candidate{
		Amount:      decimal.NewFromFloat(12.34),
		Category:    core.CategoryUtilities,
		Description: "power bill",
		Date:        "2024-03-01T08:00:00Z",
	}
	rowBack, err := m.Create(context.Background(), cand)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if rowBack.ID == "" || rowBack.CreatedAt.IsZero() {
		t.Errorf("persisted row missing server-assigned fields: %+v", rowBack)
	}
	if rowBack.Date != "2024-03-01" {
		t.Errorf("date = %s, want normalized 2024-03-01", rowBack.Date)
	}
	if !rowBack.Amount.Equal(cand.Amount) {
		t.Errorf("amount = %s, want %s", rowBack.Amount, cand.Amount)
	}

	// Create itself does not touch the local list; the feed echo does.
	if got := m.Snapshot(); len(got) != 0 {
		t.Errorf("Create mutated local state: %+v", got)
	}
}

func TestCreate_SurfacesRemoteMessage(t *testing.T) {
	m, st := newTestMirror(t)
	st.SetOffline(true)

	_, err := m.Create(context.Background(), core.Candidate{
		Amount:      decimal.NewFromInt(1),
		Category:    core.CategoryOther,
		Description: "x",
		Date:        "2024-03-01",
	})
	if !store.IsUnavailable(err) {
		t.Errorf("err = %v, want unreachable-store error", err)
	}
}

func TestStartStop_FeedEchoAndTeardown(t *testing.T) {
	m, st := newTestMirror(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer m.Stop()

	rowBack, err := m.Create(ctx, core.Candidate{
		Amount:      decimal.NewFromInt(5),
		Category:    core.CategoryTransportation,
		Description: "bus",
		Date:        "2024-03-01",
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	waitFor(t, func() bool {
		snap := m.Snapshot()
		return len(snap) == 1 && snap[0].ID == rowBack.ID
	}, "feed echo never landed in the mirror")

	m.Stop()

	// After Stop the subscription is gone: further events must not mutate.
	st.Emit(store.ChangeEvent{Type: store.EventInsert, New: ptr(row("late", "2024-06-01"))})
	time.Sleep(50 * time.Millisecond)
	if got := m.Snapshot(); len(got) != 1 {
		t.Errorf("event applied after Stop, len = %d", len(got))
	}
}

func TestStart_Twice(t *testing.T) {
	m, _ := newTestMirror(t)
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer m.Stop()
	if err := m.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}
}

func ptr(e core.Expense) *core.Expense { return &e }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
