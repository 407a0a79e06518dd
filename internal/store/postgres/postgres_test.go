package postgres

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"spendlog/internal/store"
)

func TestDecodeNotification(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType store.EventType
		wantErr  bool
	}{
		{
			name: "insert with new row",
			payload: `{"type":"INSERT","new":{"id":"abc","user_id":"default-user","amount":12.5,
				"category":"groceries","description":"milk","date":"2024-03-01",
				"created_at":"2024-03-01T10:00:00+00:00","updated_at":"2024-03-01T10:00:00+00:00"},"old":null}`,
			wantType: store.EventInsert,
		},
		{
			name:     "delete with old row only",
			payload:  `{"type":"DELETE","new":null,"old":{"id":"abc","amount":1,"category":"other","description":"x","date":"2024-01-01","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}}`,
			wantType: store.EventDelete,
		},
		{
			name:    "unknown type",
			payload: `{"type":"TRUNCATE"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			payload: `garbage`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeNotification([]byte(tt.payload))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeNotification() expected error, got %+v", ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeNotification() error: %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("type = %s, want %s", ev.Type, tt.wantType)
			}
			switch tt.wantType {
			case store.EventInsert:
				if ev.New == nil || ev.New.ID != "abc" {
					t.Errorf("insert event missing new row: %+v", ev.New)
				}
				if ev.New.Amount.String() != "12.5" {
					t.Errorf("amount = %s, want 12.5", ev.New.Amount)
				}
			case store.EventDelete:
				if ev.Old == nil || ev.New != nil {
					t.Errorf("delete event should carry old row only: new=%+v old=%+v", ev.New, ev.Old)
				}
			}
		})
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "net error", err: &net.OpError{Op: "dial", Err: errors.New("timeout")}, want: true},
		{name: "connection refused text", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "wrapped refused", err: fmt.Errorf("insert: %w", errors.New("connection reset by peer")), want: true},
		{name: "constraint violation", err: errors.New(`new row violates check constraint "expenses_amount_check"`), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectionError(tt.err); got != tt.want {
				t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
