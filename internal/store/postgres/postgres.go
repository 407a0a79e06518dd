// Package postgres implements the remote store contract against a hosted
// Postgres instance. The change feed rides on LISTEN/NOTIFY: the expenses
// table carries an AFTER INSERT OR UPDATE OR DELETE trigger that calls
// pg_notify with a JSON payload of the form
//
//	{"type": "INSERT", "new": {...}, "old": null}
//
// on the channel named by ListenChannel. The trigger is provisioned on the
// backend out of band; this package only consumes it.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/store"
)

// ListenChannel is the NOTIFY channel scoped to the expense collection.
const ListenChannel = "expense_changes"

const selectColumns = `id::text, user_id, amount::text, category, description, date::text, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// QueryAll returns the full expense collection ordered by date descending.
func (s *Store) QueryAll(ctx context.Context) ([]core.Expense, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM expenses ORDER BY date DESC`)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		var (
			e      core.Expense
			amount string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &amount, &e.Category, &e.Description, &e.Date, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan expense row: %w", err)
		}
		e.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", amount, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapReadErr(err)
	}
	return out, nil
}

// Insert submits one candidate row. The store assigns id, created_at and
// updated_at; the persisted row is returned.
func (s *Store) Insert(ctx context.Context, cand core.Candidate) (core.Expense, error) {
	var (
		e      core.Expense
		amount string
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO expenses (user_id, amount, category, description, date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+selectColumns,
		cand.UserID, cand.Amount.String(), string(cand.Category), cand.Description, cand.Date,
	).Scan(&e.ID, &e.UserID, &amount, &e.Category, &e.Description, &e.Date, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isConnectionError(err) {
			return core.Expense{}, fmt.Errorf("insert expense: %w", store.ErrUnavailable)
		}
		return core.Expense{}, &store.WriteError{Message: err.Error()}
	}
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("parse returned amount %q: %w", amount, err)
	}
	return e, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", store.ErrUnavailable)
	}
	return nil
}

// Subscribe opens the change feed on a dedicated connection. The returned
// subscription must be released with Unsubscribe; its event channel closes
// once the listener exits.
func (s *Store) Subscribe(ctx context.Context) (*store.Subscription, error) {
	listenCtx, cancelListen := context.WithCancel(ctx)

	conn, err := s.pool.Acquire(listenCtx)
	if err != nil {
		cancelListen()
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(listenCtx, "LISTEN "+ListenChannel); err != nil {
		conn.Release()
		cancelListen()
		return nil, fmt.Errorf("listen %s: %w", ListenChannel, err)
	}

	events := make(chan store.ChangeEvent, 64)
	go func() {
		defer close(events)
		defer conn.Release()
		for {
			notification, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					slog.Error("Change feed listener stopped", "error", err, "channel", ListenChannel)
				}
				return
			}
			ev, err := decodeNotification([]byte(notification.Payload))
			if err != nil {
				slog.Error("Malformed change notification", "error", err, "payload", notification.Payload)
				continue
			}
			select {
			case events <- ev:
			case <-listenCtx.Done():
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(cancelListen)
	}
	return store.NewSubscription(events, cancel), nil
}

// wireRow is the row shape inside a NOTIFY payload: dates arrive as plain
// ISO strings, amounts as JSON numbers.
type wireRow struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Category    core.Category   `json:"category"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (r *wireRow) expense() *core.Expense {
	if r == nil {
		return nil
	}
	return &core.Expense{
		ID:          r.ID,
		UserID:      r.UserID,
		Amount:      r.Amount,
		Category:    r.Category,
		Description: r.Description,
		Date:        r.Date,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func decodeNotification(payload []byte) (store.ChangeEvent, error) {
	var msg struct {
		Type store.EventType `json:"type"`
		New  *wireRow        `json:"new"`
		Old  *wireRow        `json:"old"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return store.ChangeEvent{}, fmt.Errorf("unmarshal notification: %w", err)
	}
	switch msg.Type {
	case store.EventInsert, store.EventUpdate, store.EventDelete:
	default:
		return store.ChangeEvent{}, fmt.Errorf("unknown event type %q", msg.Type)
	}
	return store.ChangeEvent{Type: msg.Type, New: msg.New.expense(), Old: msg.Old.expense()}, nil
}

func wrapReadErr(err error) error {
	if isConnectionError(err) {
		return fmt.Errorf("query expenses: %w", store.ErrUnavailable)
	}
	return fmt.Errorf("query expenses: %w", err)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"closed pool",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
