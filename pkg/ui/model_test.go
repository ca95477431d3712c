package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

type stubCommands struct {
	mu        sync.Mutex
	sent      []string
	drafts    []string
	fetches   int
	loaded    []string
	closed    []string
	rejectAll bool
}

func (s *stubCommands) Submit(_ context.Context, text string) (<-chan struct{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectAll {
		return nil, false
	}
	s.sent = append(s.sent, text)
	done := make(chan struct{})
	close(done)
	return done, true
}

func (s *stubCommands) UpdateDraft(_ context.Context, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, text)
}

func (s *stubCommands) FetchSessions(_ context.Context, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
}

func (s *stubCommands) LoadSession(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = append(s.loaded, id)
	return true
}

func (s *stubCommands) CloseSession(_ context.Context, id string) chatsync.CloseOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, id)
	return chatsync.Closed
}

func (s *stubCommands) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *stubCommands) lastDraft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.drafts) == 0 {
		return ""
	}
	return s.drafts[len(s.drafts)-1]
}

func newTestModel(t *testing.T, cmds Commands, opts ...Option) Model {
	t.Helper()
	m := New(t.Context(), cmds, opts...)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// fire runs every command of a batch in the background; some of them are
// cursor blink timers.
func fire(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	go func() {
		msg := cmd()
		if batch, ok := msg.(tea.BatchMsg); ok {
			for _, c := range batch {
				fire(c)
			}
		}
	}()
}

func change(runID string, seq uint64, st conversation.State) StateChangedMsg {
	return StateChangedMsg{Change: conversation.Change{RunID: runID, Seq: seq, State: st}}
}

func TestSessionLabel(t *testing.T) {
	require.Equal(t, "Session 789abc", SessionLabel("0123456789abc"))
	require.Equal(t, "Session abc", SessionLabel("abc"))
	require.Equal(t, "", SessionTime(time.Time{}))
	ts := time.Date(2024, 3, 9, 14, 5, 0, 0, time.UTC)
	require.Equal(t, ts.Local().Format("2006-01-02 15:04"), SessionTime(ts))
}

func TestLastAssistantText(t *testing.T) {
	_, ok := LastAssistantText(nil)
	require.False(t, ok)
	text, ok := LastAssistantText([]conversation.Message{
		{ID: 1, Sender: conversation.SenderAssistant, Text: "a"},
		{ID: 2, Sender: conversation.SenderUser, Text: "u"},
	})
	require.True(t, ok)
	require.Equal(t, "a", text)
}

func TestModel_DropsStaleChanges(t *testing.T) {
	m := newTestModel(t, &stubCommands{})

	newer := conversation.NewState("")
	newer.DraftInput = "newer"
	older := conversation.NewState("")
	older.DraftInput = "older"

	m, _ = update(t, m, change("run", 5, newer))
	m, _ = update(t, m, change("run", 4, older))
	require.Equal(t, "newer", m.State().DraftInput)

	// another process's run on a shared stream is not ours
	m, _ = update(t, m, change("other", 1, older))
	require.Equal(t, "newer", m.State().DraftInput)

	// and does not reopen the door for stale changes of our own
	m, _ = update(t, m, change("run", 3, older))
	require.Equal(t, "newer", m.State().DraftInput)

	newest := conversation.NewState("")
	newest.DraftInput = "newest"
	m, _ = update(t, m, change("run", 6, newest))
	require.Equal(t, "newest", m.State().DraftInput)
}

func TestModel_WithRunIDIgnoresOtherRuns(t *testing.T) {
	m := newTestModel(t, &stubCommands{}, WithRunID("mine"))
	st := conversation.NewState("")
	st.DraftInput = "foreign"
	m, _ = update(t, m, change("theirs", 1, st))
	require.Equal(t, "", m.State().DraftInput)

	st.DraftInput = "own"
	m, _ = update(t, m, change("mine", 1, st))
	require.Equal(t, "own", m.State().DraftInput)
}

func TestModel_TypingMirrorsDraft(t *testing.T) {
	stub := &stubCommands{}
	m := newTestModel(t, stub)

	_, cmd := update(t, m, runes("hi"))
	fire(cmd)
	require.Eventually(t, func() bool { return stub.lastDraft() == "hi" }, time.Second, 5*time.Millisecond)
}

func TestModel_EnterSends(t *testing.T) {
	stub := &stubCommands{}
	m := newTestModel(t, stub)
	m.input.SetValue("hello")

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	require.Equal(t, "", m.input.Value())

	msg := cmd()
	require.Equal(t, sendResultMsg{text: "hello", accepted: true}, msg)
	require.Equal(t, []string{"hello"}, stub.sentTexts())
}

func TestModel_BlankEnterDoesNothing(t *testing.T) {
	m := newTestModel(t, &stubCommands{})
	m.input.SetValue("   ")
	_, cmd := update(t, m, key(tea.KeyEnter))
	require.Nil(t, cmd)
}

func TestModel_RejectedSendRestoresInput(t *testing.T) {
	stub := &stubCommands{rejectAll: true}
	m := newTestModel(t, stub)
	m.input.SetValue("again")

	m, cmd := update(t, m, key(tea.KeyEnter))
	m, _ = update(t, m, cmd())
	require.Equal(t, "again", m.input.Value())
}

func TestModel_HistoryEnterLoadsSelectedSession(t *testing.T) {
	stub := &stubCommands{}
	m := newTestModel(t, stub)

	st := conversation.NewState("")
	st.Sessions = []conversation.SessionSummary{{SessionID: "sess-000001"}, {SessionID: "sess-000002"}}
	m, _ = update(t, m, change("run", 1, st))

	m, _ = update(t, m, key(tea.KeyCtrlH))
	require.True(t, m.showHistory)
	require.Contains(t, m.View(), "Session 000001")

	m, _ = update(t, m, key(tea.KeyDown))
	m, _ = update(t, m, key(tea.KeyDown))
	require.Equal(t, 1, m.cursor)

	_, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []string{"sess-000002"}, stub.loaded)
	require.Empty(t, stub.sentTexts())
}

func TestModel_HistoryCloseSession(t *testing.T) {
	stub := &stubCommands{}
	m := newTestModel(t, stub)
	st := conversation.NewState("")
	st.Sessions = []conversation.SessionSummary{{SessionID: "sess-000001"}}
	m, _ = update(t, m, change("run", 1, st))
	m, _ = update(t, m, key(tea.KeyCtrlH))
	require.Contains(t, m.View(), "d close session")

	_, cmd := update(t, m, runes("d"))
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, []string{"sess-000001"}, stub.closed)
}

func TestModel_HistoryShowsError(t *testing.T) {
	m := newTestModel(t, &stubCommands{})
	st := conversation.NewState("")
	st.SessionsError = "list sessions: boom"
	m, _ = update(t, m, change("run", 1, st))
	m, _ = update(t, m, key(tea.KeyCtrlH))
	require.Contains(t, m.View(), "list sessions: boom")
}

func TestModel_RefreshFetchesSessions(t *testing.T) {
	stub := &stubCommands{}
	m := newTestModel(t, stub)
	_, cmd := update(t, m, key(tea.KeyCtrlR))
	require.NotNil(t, cmd)
	cmd()
	require.Equal(t, 1, stub.fetches)
}

func TestModel_CopyLastReply(t *testing.T) {
	var copied string
	m := newTestModel(t, &stubCommands{}, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))
	st := conversation.NewState("")
	st.Messages = append(st.Messages, conversation.Message{ID: 2, Sender: conversation.SenderUser, Text: "q"})
	m, _ = update(t, m, change("run", 1, st))

	m, cmd := update(t, m, key(tea.KeyCtrlY))
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, conversation.DefaultGreeting, copied)
	require.Contains(t, m.View(), "copied last reply")
}

func TestModel_LoadingShowsSpinner(t *testing.T) {
	m := newTestModel(t, &stubCommands{})
	st := conversation.NewState("")
	st.IsLoading = true
	st.ActiveSessionID = "abcdef123456"
	m, _ = update(t, m, change("run", 1, st))
	view := m.View()
	require.Contains(t, view, "thinking")
	require.Contains(t, view, "Session 123456")
}

type recordingSender struct {
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestForward(t *testing.T) {
	changes := make(chan conversation.Change, 2)
	changes <- conversation.Change{RunID: "r", Seq: 1}
	changes <- conversation.Change{RunID: "r", Seq: 2}
	close(changes)

	rec := &recordingSender{}
	require.NoError(t, Forward(context.Background(), rec, changes))
	require.Len(t, rec.msgs, 2)
	require.Equal(t, uint64(2), rec.msgs[1].(StateChangedMsg).Change.Seq)
}
