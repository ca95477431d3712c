package chatapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// MessageType is the backend's name for the author of a transcript record.
type MessageType string

const (
	MessageTypeUser MessageType = "user"
	MessageTypeAI   MessageType = "ai"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message        string `json:"message"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatReply is the body returned by POST /api/chat. Only Response is required.
type ChatReply struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      int64  `json:"message_id,omitempty"`
}

// SessionRecord is one entry of GET /api/conversations/{user_id}.
type SessionRecord struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at,omitzero"`
	IsActive  bool      `json:"is_active,omitempty"`
}

func (r SessionRecord) Summary() conversation.SessionSummary {
	return conversation.SessionSummary{
		SessionID: r.SessionID,
		CreatedAt: r.CreatedAt.Time,
	}
}

// MessageRecord is one entry of GET /api/conversations/{session_id}/messages.
type MessageRecord struct {
	ID          int64       `json:"id"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	Timestamp   Timestamp   `json:"timestamp,omitzero"`
}

// Message translates the record into the store's shape, keeping the backend id.
func (r MessageRecord) Message() conversation.Message {
	sender := conversation.SenderAssistant
	if MessageType(strings.ToLower(string(r.MessageType))) == MessageTypeUser {
		sender = conversation.SenderUser
	}
	return conversation.Message{
		ID:        r.ID,
		Sender:    sender,
		Text:      r.Content,
		Timestamp: r.Timestamp.Time,
	}
}

// Timestamp accepts RFC 3339 as well as the zone-less ISO 8601 form the backend
// emits for naive datetimes, which is read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

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
	return Timestamp{}, errors.Errorf("unrecognized timestamp %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "timestamp must be a string")
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}
