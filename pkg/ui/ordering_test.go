package ui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/chatwidget/pkg/chatapi"
	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

type echoTransport struct {
	mu   sync.Mutex
	sent []string
}

func (e *echoTransport) SendMessage(_ context.Context, req chatapi.ChatRequest) (chatapi.ChatReply, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, req.Message)
	return chatapi.ChatReply{Response: "echo: " + req.Message}, nil
}

func (e *echoTransport) ListSessions(context.Context, string) ([]conversation.SessionSummary, error) {
	return nil, nil
}

func (e *echoTransport) GetSessionMessages(context.Context, string) ([]conversation.Message, error) {
	return nil, nil
}

func (e *echoTransport) CloseSession(context.Context, string) error { return nil }

func (e *echoTransport) messages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sent...)
}

func newLiveModel(t *testing.T) (Model, *conversation.Store, *echoTransport) {
	t.Helper()
	store := conversation.NewStore()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		_ = store.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	tr := &echoTransport{}
	c, err := chatsync.NewController(chatsync.Config{Store: store, Transport: tr})
	require.NoError(t, err)
	return newTestModel(t, c, WithRunID(store.RunID())), store, tr
}

// typeText feeds one key per rune and returns the commands Update produced.
func typeText(t *testing.T, m Model, text string) (Model, []tea.Cmd) {
	t.Helper()
	var cmds []tea.Cmd
	for _, r := range text {
		var cmd tea.Cmd
		m, cmd = update(t, m, runes(string(r)))
		cmds = append(cmds, cmd)
	}
	return m, cmds
}

func fireAll(cmds []tea.Cmd) {
	for _, cmd := range cmds {
		fire(cmd)
	}
}

func TestModel_ConcurrentKeystrokesKeepTheLastDraft(t *testing.T) {
	for i := 0; i < 25; i++ {
		m, store, _ := newLiveModel(t)

		m, cmds := typeText(t, m, "abcd")
		fireAll(cmds)

		require.Eventually(t, func() bool { return store.State().DraftInput == "abcd" },
			2*time.Second, time.Millisecond)
		require.Equal(t, "abcd", m.input.Value())
	}
}

func TestModel_SendClearsDraftAfterEarlierKeystrokes(t *testing.T) {
	m, store, tr := newLiveModel(t)

	m, cmds := typeText(t, m, "ab")
	fireAll(cmds)
	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	require.Equal(t, sendResultMsg{text: "ab", accepted: true}, cmd())

	m, cmds = typeText(t, m, "cd")
	fireAll(cmds)
	require.Eventually(t, func() bool {
		st := store.State()
		return !st.IsLoading && st.DraftInput == "cd"
	}, 2*time.Second, time.Millisecond)

	// no keystroke from before the send lands after it
	require.Never(t, func() bool { return store.State().DraftInput != "cd" },
		100*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, []string{"ab"}, tr.messages())
	st := store.State()
	require.Equal(t, "ab", st.Messages[1].Text)
	require.Equal(t, "echo: ab", st.Messages[2].Text)
	require.Equal(t, "cd", m.input.Value())
}
