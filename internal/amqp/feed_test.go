package amqp

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"spendlog/internal/core"
	"spendlog/internal/store"
)

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},  // capped at 30s
		{10, 30 * time.Second}, // capped at 30s
		{40, 30 * time.Second}, // shift overflow also capped
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			result := exponentialBackoff(tt.attempt)
			if result != tt.expected {
				t.Errorf("exponentialBackoff(%d) = %v, want %v", tt.attempt, result, tt.expected)
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5672: connection refused"), expected: true},
		{name: "amqp closed", err: amqp091.ErrClosed, expected: true},
		{name: "channel not open", err: errors.New("Exception (504) Reason: \"channel/connection is not open\""), expected: true},
		{name: "bad payload", err: errors.New("invalid character 'g' looking for beginning of value"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.expected {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestChangeMessageRoundTrip(t *testing.T) {
	row := core.Expense{
		ID:          "abc",
		UserID:      core.DefaultUserID,
		Amount:      decimal.NewFromFloat(12.5),
		Category:    core.CategoryGroceries,
		Description: "milk",
		Date:        "2024-03-01",
	}
	msg := NewChangeMessage(store.ChangeEvent{Type: store.EventInsert, New: &row})

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON error: %v", err)
	}
	decoded, err := ChangeMessageFromJSON(body)
	if err != nil {
		t.Fatalf("ChangeMessageFromJSON error: %v", err)
	}

	ev := decoded.Event()
	if ev.Type != store.EventInsert {
		t.Errorf("type = %s, want INSERT", ev.Type)
	}
	if ev.New == nil || ev.New.ID != "abc" || !ev.New.Amount.Equal(row.Amount) {
		t.Errorf("round-tripped row mismatch: %+v", ev.New)
	}
	if ev.Old != nil {
		t.Errorf("old should be nil for insert, got %+v", ev.Old)
	}
}

func TestChangeMessageFromJSON_Invalid(t *testing.T) {
	if _, err := ChangeMessageFromJSON([]byte("garbage")); err == nil {
		t.Error("expected error for malformed payload")
	}
}
