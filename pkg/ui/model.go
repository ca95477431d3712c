// Package ui is the terminal front end of the chat widget.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// Commands is what the model may ask of the conversation. No call happens in
// Update, since the calls block until the store applies them. Draft updates and
// submits go through one ordered queue; the rest run as tea.Cmds.
type Commands interface {
	Submit(ctx context.Context, text string) (<-chan struct{}, bool)
	UpdateDraft(ctx context.Context, text string)
	FetchSessions(ctx context.Context, userID string)
	LoadSession(ctx context.Context, sessionID string) bool
	CloseSession(ctx context.Context, sessionID string) chatsync.CloseOutcome
}

var _ Commands = (*chatsync.Controller)(nil)

// StateChangedMsg carries a store change into the program.
type StateChangedMsg struct {
	Change conversation.Change
}

type sendResultMsg struct {
	text     string
	accepted bool
}

type copiedMsg struct {
	err error
}

type Option func(*Model)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(write func(string) error) Option {
	return func(m *Model) { m.clip = write }
}

func WithInitialState(st conversation.State) Option {
	return func(m *Model) { m.state = st }
}

// WithRunID makes the model ignore changes of any other store run. Without it
// the model sticks to the run of the first change it sees.
func WithRunID(runID string) Option {
	return func(m *Model) { m.runID = runID }
}

type Model struct {
	ctx      context.Context
	commands Commands
	queue    *commandQueue

	state conversation.State
	runID string
	seq   uint64

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *Renderer
	clip     func(string) error

	showHistory  bool
	historyFocus bool
	cursor       int
	status       string

	width  int
	height int
}

func New(ctx context.Context, commands Commands, opts ...Option) Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message..."
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)

	m := Model{
		ctx:      ctx,
		commands: commands,
		queue:    newCommandQueue(),
		state:    conversation.NewState(""),
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		renderer: NewRenderer(76),
		clip:     clipboard.WriteAll,
		width:    80,
		height:   24,
	}
	for _, o := range opts {
		o(&m)
	}
	go m.queue.run(ctx, commands)
	m.refreshTranscript()
	return m
}

// State is the snapshot the model currently renders.
func (m Model) State() conversation.State { return m.state }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.fetchSessions())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case StateChangedMsg:
		c := msg.Change
		if m.runID != "" && c.RunID != m.runID {
			return m, nil
		}
		if c.Seq <= m.seq {
			return m, nil
		}
		m.runID, m.seq = c.RunID, c.Seq
		m.state = c.State
		if m.cursor >= len(m.state.Sessions) {
			m.cursor = max(0, len(m.state.Sessions)-1)
		}
		m.refreshTranscript()
		return m, nil

	case sendResultMsg:
		if !msg.accepted && m.input.Value() == "" {
			m.input.SetValue(msg.text)
			m.input.CursorEnd()
		}
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = errorStyle.Render("copy failed: " + msg.err.Error())
		} else {
			m.status = "copied last reply"
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	// cursor blink and mouse messages
	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.showHistory {
			m.showHistory, m.historyFocus = false, false
			m.input.Focus()
			m.layout()
			return m, nil
		}
		return m, tea.Quit
	case "ctrl+h":
		m.showHistory = !m.showHistory
		m.historyFocus = m.showHistory
		if m.historyFocus {
			m.input.Blur()
		} else {
			m.input.Focus()
		}
		m.layout()
		return m, nil
	case "tab":
		if m.showHistory {
			m.historyFocus = !m.historyFocus
			if m.historyFocus {
				m.input.Blur()
			} else {
				m.input.Focus()
			}
		}
		return m, nil
	case "ctrl+r":
		return m, m.fetchSessions()
	case "ctrl+y":
		text, ok := LastAssistantText(m.state.Messages)
		if !ok {
			return m, nil
		}
		write := m.clip
		return m, func() tea.Msg { return copiedMsg{err: write(text)} }
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.historyFocus {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.state.Sessions)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.state.Sessions) {
				return m, m.loadSession(m.state.Sessions[m.cursor].SessionID)
			}
		case "d", "delete":
			if m.cursor < len(m.state.Sessions) {
				return m, m.closeSession(m.state.Sessions[m.cursor].SessionID)
			}
		}
		return m, nil
	}

	if msg.String() == "enter" {
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.input.Reset()
		m.status = ""
		return m, m.send(text)
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		m.queue.Draft(after)
	}
	return m, cmd
}

// send queues the submit behind the pending draft updates and waits for the
// verdict in a Cmd.
func (m Model) send(text string) tea.Cmd {
	ctx, reply := m.ctx, m.queue.Submit(text)
	return func() tea.Msg {
		select {
		case accepted := <-reply:
			return sendResultMsg{text: text, accepted: accepted}
		case <-ctx.Done():
			return sendResultMsg{text: text}
		}
	}
}

func (m Model) fetchSessions() tea.Cmd {
	ctx, commands := m.ctx, m.commands
	return func() tea.Msg {
		commands.FetchSessions(ctx, "")
		return nil
	}
}

func (m Model) loadSession(sessionID string) tea.Cmd {
	ctx, commands := m.ctx, m.commands
	return func() tea.Msg {
		commands.LoadSession(ctx, sessionID)
		return nil
	}
}

func (m Model) closeSession(sessionID string) tea.Cmd {
	ctx, commands := m.ctx, m.commands
	return func() tea.Msg {
		commands.CloseSession(ctx, sessionID)
		return nil
	}
}

func (m *Model) layout() {
	transcriptWidth := m.width - 4
	if m.showHistory {
		transcriptWidth -= historyWidth + 4
	}
	if transcriptWidth < 20 {
		transcriptWidth = 20
	}
	m.viewport.Width = transcriptWidth
	m.viewport.Height = max(3, m.height-7)
	m.input.Width = max(10, m.width-4)
	if m.renderer == nil || m.renderer.Width() != transcriptWidth {
		m.renderer = NewRenderer(transcriptWidth)
	}
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderer.Transcript(m.state.Messages))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	header := headerStyle.Render("Chat")
	if m.state.ActiveSessionID != "" {
		header += " " + mutedStyle.Render(SessionLabel(m.state.ActiveSessionID))
	}
	if m.state.IsLoading {
		header += " " + m.spinner.View() + mutedStyle.Render(" thinking")
	}

	transcript := transcriptPane.Render(m.viewport.View())
	body := transcript
	if m.showHistory {
		body = lipgloss.JoinHorizontal(lipgloss.Top, transcript, m.historyView())
	}

	help := "enter send • ctrl+h history • ctrl+r refresh • ctrl+y copy • esc quit"
	if m.historyFocus {
		help = "↑/↓ select • enter open • d close session • tab input • esc back"
	}
	footer := helpStyle.Render(help)
	if m.status != "" {
		footer = helpStyle.Render(m.status)
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View(), footer)
}

func (m Model) historyView() string {
	var sb strings.Builder
	sb.WriteString(subHeaderStyle.Render("History"))
	sb.WriteString("\n")

	switch {
	case m.state.SessionsLoading:
		sb.WriteString(mutedStyle.Render("Loading..."))
	case m.state.SessionsError != "":
		sb.WriteString(errorStyle.Render(m.state.SessionsError))
	case len(m.state.Sessions) == 0:
		sb.WriteString(mutedStyle.Render("No previous sessions"))
	default:
		for i, s := range m.state.Sessions {
			line := SessionLabel(s.SessionID)
			if ts := SessionTime(s.CreatedAt); ts != "" {
				line = fmt.Sprintf("%s\n  %s", line, mutedStyle.Render(ts))
			}
			switch {
			case i == m.cursor && m.historyFocus:
				line = selectedSessionStyle.Render(line)
			case s.SessionID == m.state.ActiveSessionID:
				line = activeSessionStyle.Render(line)
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}

	pane := historyPane.Width(historyWidth).Height(m.viewport.Height)
	if m.historyFocus {
		pane = pane.BorderForeground(focusedBorder)
	}
	return pane.Render(sb.String())
}
