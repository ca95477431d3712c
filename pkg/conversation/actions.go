package conversation

// Action is one atomic state transition. Apply must be pure: it receives a copy of
// the current state and returns the next one, touching exactly the fields it names.
type Action interface {
	Name() string
	Apply(State) State
}

type AppendMessage struct {
	Message Message `json:"message"`
}

func (AppendMessage) Name() string { return "append_message" }

func (a AppendMessage) Apply(s State) State {
	msgs := make([]Message, 0, len(s.Messages)+1)
	msgs = append(msgs, s.Messages...)
	s.Messages = append(msgs, a.Message)
	return s
}

type SetLoading struct {
	Loading bool `json:"loading"`
}

func (SetLoading) Name() string { return "set_loading" }

func (a SetLoading) Apply(s State) State {
	s.IsLoading = a.Loading
	return s
}

type SetDraft struct {
	Text string `json:"text"`
}

func (SetDraft) Name() string { return "set_draft" }

func (a SetDraft) Apply(s State) State {
	s.DraftInput = a.Text
	return s
}

type ClearDraft struct{}

func (ClearDraft) Name() string { return "clear_draft" }

func (ClearDraft) Apply(s State) State {
	s.DraftInput = ""
	return s
}

// ReplaceMessages swaps the whole log. Only a session switch uses it.
type ReplaceMessages struct {
	Messages []Message `json:"messages"`
}

func (ReplaceMessages) Name() string { return "replace_messages" }

func (a ReplaceMessages) Apply(s State) State {
	s.Messages = append([]Message{}, a.Messages...)
	return s
}

type SetSessions struct {
	Sessions []SessionSummary `json:"sessions"`
}

func (SetSessions) Name() string { return "set_sessions" }

func (a SetSessions) Apply(s State) State {
	s.Sessions = append([]SessionSummary{}, a.Sessions...)
	s.SessionsLoading = false
	s.SessionsError = ""
	return s
}

type SetSessionsLoading struct {
	Loading bool `json:"loading"`
}

func (SetSessionsLoading) Name() string { return "set_sessions_loading" }

func (a SetSessionsLoading) Apply(s State) State {
	s.SessionsLoading = a.Loading
	return s
}

type SetSessionsError struct {
	Error string `json:"error"`
}

func (SetSessionsError) Name() string { return "set_sessions_error" }

func (a SetSessionsError) Apply(s State) State {
	s.SessionsError = a.Error
	s.SessionsLoading = false
	return s
}

type SetActiveSession struct {
	SessionID string `json:"session_id"`
}

func (SetActiveSession) Name() string { return "set_active_session" }

func (a SetActiveSession) Apply(s State) State {
	s.ActiveSessionID = a.SessionID
	return s
}

// Reduce applies actions in order to a copy of state.
func Reduce(state State, actions ...Action) State {
	next := state.Clone()
	for _, a := range actions {
		if a == nil {
			continue
		}
		next = a.Apply(next)
	}
	return next
}

// ActionNames lists the names of actions, in order.
func ActionNames(actions []Action) []string {
	ret := make([]string, 0, len(actions))
	for _, a := range actions {
		if a == nil {
			continue
		}
		ret = append(ret, a.Name())
	}
	return ret
}
