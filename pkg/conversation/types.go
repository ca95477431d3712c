package conversation

import (
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// DefaultGreeting seeds every fresh conversation.
const DefaultGreeting = "Hello! How can I help you today?"

// Message is a single transcript entry. Messages are never mutated once appended;
// display order is append order.
type Message struct {
	ID        int64     `json:"id" yaml:"id"`
	Sender    Sender    `json:"sender" yaml:"sender"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp,omitzero" yaml:"timestamp,omitempty"`
}

// SessionSummary describes a server-persisted session. It is sourced entirely from
// the backend and kept in server order.
type SessionSummary struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// State is the canonical state of the active conversation plus the session list
// of the current user. Empty strings stand for absent optional values.
type State struct {
	Messages        []Message        `json:"messages"`
	IsLoading       bool             `json:"is_loading"`
	DraftInput      string           `json:"draft_input"`
	Sessions        []SessionSummary `json:"sessions"`
	ActiveSessionID string           `json:"active_session_id,omitempty"`
	SessionsLoading bool             `json:"sessions_loading"`
	SessionsError   string           `json:"sessions_error,omitempty"`
}

// NewState returns the initial state, seeded with one assistant greeting.
func NewState(greeting string) State {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return State{
		Messages: []Message{
			{ID: 1, Sender: SenderAssistant, Text: greeting, Timestamp: time.Now()},
		},
		Sessions: []SessionSummary{},
	}
}

// NextID returns an id strictly greater than every id currently in the log.
func (s State) NextID() int64 {
	var highest int64
	for _, m := range s.Messages {
		if m.ID > highest {
			highest = m.ID
		}
	}
	return highest + 1
}

// LastMessage returns the most recently appended message, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a deep copy so callers can hold on to a snapshot while the store moves on.
func (s State) Clone() State {
	ret := s
	ret.Messages = append([]Message(nil), s.Messages...)
	ret.Sessions = append([]SessionSummary(nil), s.Sessions...)
	if ret.Messages == nil {
		ret.Messages = []Message{}
	}
	if ret.Sessions == nil {
		ret.Sessions = []SessionSummary{}
	}
	return ret
}
