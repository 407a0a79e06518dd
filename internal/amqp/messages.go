package amqp

import (
	"encoding/json"
	"time"

	"spendlog/internal/core"
	"spendlog/internal/store"
)

// ChangeMessage is the wire envelope for one expense change event published
// on the fanout exchange. New/Old mirror the store's change event shape.
type ChangeMessage struct {
	Type      store.EventType `json:"type"`
	New       *core.Expense   `json:"new,omitempty"`
	Old       *core.Expense   `json:"old,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewChangeMessage wraps a change event for publishing.
func NewChangeMessage(ev store.ChangeEvent) *ChangeMessage {
	return &ChangeMessage{
		Type:      ev.Type,
		New:       ev.New,
		Old:       ev.Old,
		Timestamp: time.Now(),
	}
}

// Event converts the envelope back into a change event.
func (m *ChangeMessage) Event() store.ChangeEvent {
	return store.ChangeEvent{Type: m.Type, New: m.New, Old: m.Old}
}

// ToJSON converts the message to JSON bytes.
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
