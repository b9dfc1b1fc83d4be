package amqp

import (
	"encoding/json"
	"time"
)

// AlertMessage is a lightweight delivery notification: just the alert ID
// and kind. The worker fetches the full alert row from storage, so the
// queue never carries stale alert data.
type AlertMessage struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// NewAlertMessage creates an alert message stamped with the current time.
func NewAlertMessage(id int64, kind string) *AlertMessage {
	return &AlertMessage{
		ID:        id,
		Kind:      kind,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *AlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AlertMessageFromJSON creates a message from JSON bytes.
func AlertMessageFromJSON(data []byte) (*AlertMessage, error) {
	var msg AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
