package model

import (
	"time"
)

// EventType is the type of a support lifecycle event.
type EventType string

const (
	EventTypeAssignment EventType = "assignment"
	EventTypeMessage    EventType = "message"
	EventTypeEscalation EventType = "escalation"
)

// SupportEvent is published by the backend whenever a conversation changes
// hands or a chat log row is written.
type SupportEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	ClientID   int64          `json:"client_id,omitempty"`
	EmployeeID int64          `json:"employee_id,omitempty"`
	SenderID   int64          `json:"sender_id,omitempty"`
	ReceiverID int64          `json:"receiver_id,omitempty"`
	ChatType   ChatType       `json:"chat_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
