package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Origin tells who produced a message.
type Origin string

const (
	OriginHuman  Origin = "human"
	OriginAI     Origin = "ai"
	OriginSystem Origin = "system"
)

// ChatType is the backend's classification of a chat log row.
type ChatType string

const (
	ChatTypeClientAI       ChatType = "client_ai"
	ChatTypeSystem         ChatType = "system"
	ChatTypeClientEmployee ChatType = "client_employee"
	ChatTypeEmployeeClient ChatType = "employee_client"
	ChatTypeAdminEmployee  ChatType = "admin_employee"
	ChatTypeEmployeeAdmin  ChatType = "employee_admin"
)

// Message is one chat message as owned by the backend.
type Message struct {
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Body       string    `json:"message"`
	CreatedAt  Timestamp `json:"created_at"`
	ChatType   ChatType  `json:"chat_type,omitempty"`
	Origin     Origin    `json:"origin,omitempty"`
	SenderName string    `json:"sender_name,omitempty"`
}

// ResolvedOrigin returns the explicit origin, or derives one from the chat
// type for rows written without it.
func (m Message) ResolvedOrigin() Origin {
	if m.Origin != "" {
		return m.Origin
	}
	if m.ChatType == ChatTypeSystem {
		return OriginSystem
	}
	return OriginHuman
}

// Timestamp is a time that accepts the formats the backend has used over
// time: RFC 3339 and the MySQL DATETIME text form.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// ParseTimestamp parses any of the supported layouts.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// MarshalJSON encodes the timestamp as RFC 3339.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts a string in any supported layout, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
