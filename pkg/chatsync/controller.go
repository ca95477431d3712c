package chatsync

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/chatapi"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

const (
	DefaultUserID = "anonymous"

	// SendFailureText replaces the assistant reply when a send fails.
	SendFailureText = "Sorry, I'm having trouble connecting right now. Please try again later."
	// LoadFailureText is appended when a session transcript cannot be loaded.
	LoadFailureText = "Sorry, I couldn't load that conversation. Please try again."
)

// Transport is the subset of the backend client the controller drives.
type Transport interface {
	SendMessage(ctx context.Context, req chatapi.ChatRequest) (chatapi.ChatReply, error)
	ListSessions(ctx context.Context, userID string) ([]conversation.SessionSummary, error)
	GetSessionMessages(ctx context.Context, sessionID string) ([]conversation.Message, error)
	CloseSession(ctx context.Context, sessionID string) error
}

// Dispatcher is the write side of the conversation store.
type Dispatcher interface {
	State() conversation.State
	Dispatch(ctx context.Context, actions ...conversation.Action) error
	DispatchFunc(ctx context.Context, build func(conversation.State) []conversation.Action) ([]conversation.Action, error)
}

var _ Transport = (*chatapi.Client)(nil)
var _ Dispatcher = (*conversation.Store)(nil)

type Config struct {
	Store     Dispatcher
	Transport Transport
	// UserID identifies the user towards the backend. Defaults to DefaultUserID.
	UserID string
	// Now is used to timestamp locally minted messages.
	Now func() time.Time
}

// Controller runs the multi-step flows that combine store transitions with
// backend calls. It is the only caller of the transport, and none of its flows
// report failures to the caller: they end up in the transcript or in SessionsError.
type Controller struct {
	store     Dispatcher
	transport Transport
	userID    string
	now       func() time.Time
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("chatsync: store is nil")
	}
	if cfg.Transport == nil {
		return nil, errors.New("chatsync: transport is nil")
	}
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		userID = DefaultUserID
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:     cfg.Store,
		transport: cfg.Transport,
		userID:    userID,
		now:       now,
	}, nil
}

func (c *Controller) UserID() string { return c.userID }

// State returns a snapshot of the conversation.
func (c *Controller) State() conversation.State { return c.store.State() }

func (c *Controller) UpdateDraft(ctx context.Context, text string) {
	if err := c.store.Dispatch(ctx, conversation.SetDraft{Text: text}); err != nil {
		c.logDispatchError(err, "update draft")
	}
}

func (c *Controller) ClearDraft(ctx context.Context) {
	if err := c.store.Dispatch(ctx, conversation.ClearDraft{}); err != nil {
		c.logDispatchError(err, "clear draft")
	}
}

// Send runs one send flow and returns once it is settled. It returns false when
// the request was ignored because text is blank or another request is in flight.
func (c *Controller) Send(ctx context.Context, text string) bool {
	done, accepted := c.Submit(ctx, text)
	if accepted {
		<-done
	}
	return accepted
}

// Submit starts a send flow and returns as soon as the user message is applied
// (or the request was ignored). The backend call goes on in the background and
// done is closed once the flow has settled.
func (c *Controller) Submit(ctx context.Context, text string) (<-chan struct{}, bool) {
	logger := log.With().Str("component", "chatsync").Str("flow", "send").Logger()

	var activeSession string
	applied, err := c.store.DispatchFunc(ctx, func(st conversation.State) []conversation.Action {
		if strings.TrimSpace(text) == "" || st.IsLoading {
			return nil
		}
		activeSession = st.ActiveSessionID
		return []conversation.Action{
			conversation.AppendMessage{Message: conversation.Message{
				ID:        st.NextID(),
				Sender:    conversation.SenderUser,
				Text:      text,
				Timestamp: c.now(),
			}},
			conversation.ClearDraft{},
			conversation.SetLoading{Loading: true},
		}
	})
	if err != nil {
		c.logDispatchError(err, "send")
		return nil, false
	}
	if len(applied) == 0 {
		logger.Debug().Msg("send ignored")
		return nil, false
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer c.release(ctx, "send")

		res := call(func() (chatapi.ChatReply, error) {
			return c.transport.SendMessage(ctx, chatapi.ChatRequest{
				Message:        text,
				UserID:         c.userID,
				ConversationID: activeSession,
			})
		})

		reply := SendFailureText
		if res.OK() {
			reply = res.Value.Response
			logger.Debug().Str("conversation_id", res.Value.ConversationID).Msg("reply received")
		} else {
			logger.Warn().Err(res.Err).Msg("send failed")
		}
		c.appendAssistant(ctx, reply, "send")
	}()
	return done, true
}

// LoadSession replaces the transcript with the one of sessionID. It shares the
// in-flight guard with Send and returns false when ignored.
func (c *Controller) LoadSession(ctx context.Context, sessionID string) bool {
	logger := log.With().Str("component", "chatsync").Str("flow", "load_session").Str("session_id", sessionID).Logger()

	applied, err := c.store.DispatchFunc(ctx, func(st conversation.State) []conversation.Action {
		if strings.TrimSpace(sessionID) == "" || st.IsLoading {
			return nil
		}
		return []conversation.Action{conversation.SetLoading{Loading: true}}
	})
	if err != nil {
		c.logDispatchError(err, "load session")
		return false
	}
	if len(applied) == 0 {
		logger.Debug().Msg("load ignored")
		return false
	}
	defer c.release(ctx, "load session")

	res := call(func() ([]conversation.Message, error) {
		return c.transport.GetSessionMessages(ctx, sessionID)
	})
	if !res.OK() {
		logger.Warn().Err(res.Err).Msg("load failed")
		c.appendAssistant(ctx, LoadFailureText, "load session")
		return true
	}

	logger.Debug().Int("messages", len(res.Value)).Msg("transcript loaded")
	if err := c.store.Dispatch(context.WithoutCancel(ctx),
		conversation.ReplaceMessages{Messages: res.Value},
		conversation.SetActiveSession{SessionID: sessionID},
	); err != nil {
		c.logDispatchError(err, "load session")
	}
	return true
}

// FetchSessions refreshes the session list of userID, or of the configured user
// when userID is empty.
func (c *Controller) FetchSessions(ctx context.Context, userID string) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = c.userID
	}
	logger := log.With().Str("component", "chatsync").Str("flow", "fetch_sessions").Str("user_id", userID).Logger()

	if err := c.store.Dispatch(ctx, conversation.SetSessionsLoading{Loading: true}); err != nil {
		c.logDispatchError(err, "fetch sessions")
		return
	}

	res := call(func() ([]conversation.SessionSummary, error) {
		return c.transport.ListSessions(ctx, userID)
	})

	var action conversation.Action
	if res.OK() {
		logger.Debug().Int("sessions", len(res.Value)).Msg("sessions loaded")
		action = conversation.SetSessions{Sessions: res.Value}
	} else {
		logger.Warn().Err(res.Err).Msg("fetch sessions failed")
		action = conversation.SetSessionsError{Error: res.Err.Error()}
	}
	if err := c.store.Dispatch(context.WithoutCancel(ctx), action); err != nil {
		c.logDispatchError(err, "fetch sessions")
	}
}

// CloseOutcome reports how far a CloseSession flow got.
type CloseOutcome int

const (
	// CloseIgnored means the session id was blank.
	CloseIgnored CloseOutcome = iota
	// CloseFailed means the backend refused the close. The reason is in SessionsError.
	CloseFailed
	// Closed means the backend closed the session. A failed list refresh after
	// that still leaves its reason in SessionsError.
	Closed
)

// CloseSession closes sessionID on the backend and refreshes the session list.
// Closing the active session detaches the transcript from it, so the next send
// starts a new session.
func (c *Controller) CloseSession(ctx context.Context, sessionID string) CloseOutcome {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return CloseIgnored
	}
	logger := log.With().Str("component", "chatsync").Str("flow", "close_session").Str("session_id", sessionID).Logger()

	res := call(func() (struct{}, error) {
		return struct{}{}, c.transport.CloseSession(ctx, sessionID)
	})
	if !res.OK() {
		logger.Warn().Err(res.Err).Msg("close session failed")
		if err := c.store.Dispatch(context.WithoutCancel(ctx), conversation.SetSessionsError{Error: res.Err.Error()}); err != nil {
			c.logDispatchError(err, "close session")
		}
		return CloseFailed
	}

	logger.Debug().Msg("session closed")
	_, err := c.store.DispatchFunc(context.WithoutCancel(ctx), func(st conversation.State) []conversation.Action {
		if st.ActiveSessionID != sessionID {
			return nil
		}
		return []conversation.Action{conversation.SetActiveSession{}}
	})
	if err != nil {
		c.logDispatchError(err, "close session")
		return Closed
	}
	c.FetchSessions(ctx, "")
	return Closed
}

func (c *Controller) appendAssistant(ctx context.Context, text string, flow string) {
	_, err := c.store.DispatchFunc(context.WithoutCancel(ctx), func(st conversation.State) []conversation.Action {
		return []conversation.Action{conversation.AppendMessage{Message: conversation.Message{
			ID:        st.NextID(),
			Sender:    conversation.SenderAssistant,
			Text:      text,
			Timestamp: c.now(),
		}}}
	})
	if err != nil {
		c.logDispatchError(err, flow)
	}
}

// release clears the in-flight flag. It runs even when the caller's context is gone.
func (c *Controller) release(ctx context.Context, flow string) {
	if err := c.store.Dispatch(context.WithoutCancel(ctx), conversation.SetLoading{Loading: false}); err != nil {
		c.logDispatchError(err, flow)
	}
}

func (c *Controller) logDispatchError(err error, flow string) {
	log.Error().Err(err).Str("component", "chatsync").Str("flow", flow).Msg("store dispatch failed")
}
