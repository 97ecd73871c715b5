package amqp

import (
	"encoding/json"
	"time"

	"oshikakeibo/internal/notify"
)

// NotificationMessage is the wire form of a newly derived notification.
type NotificationMessage struct {
	ID         string      `json:"id"`
	Kind       notify.Kind `json:"kind"`
	Message    string      `json:"message"`
	PersonID   int64       `json:"personId"`
	Percentage float64     `json:"percentage,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewNotificationMessage(n notify.Notification, at time.Time) *NotificationMessage {
	return &NotificationMessage{
		ID:         n.ID,
		Kind:       n.Kind,
		Message:    n.Message,
		PersonID:   n.PersonID,
		Percentage: n.Percentage,
		Timestamp:  at,
	}
}

// ToJSON converts the message to JSON bytes
func (m *NotificationMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// NotificationMessageFromJSON decodes a message published by PublishNotification.
func NotificationMessageFromJSON(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
