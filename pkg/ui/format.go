package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// SessionLabel names a session by the last six characters of its id.
func SessionLabel(sessionID string) string {
	r := []rune(sessionID)
	if len(r) > 6 {
		r = r[len(r)-6:]
	}
	return "Session " + string(r)
}

// SessionTime renders a session start in the local zone.
func SessionTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// LastAssistantText returns the text of the most recent assistant message.
func LastAssistantText(messages []conversation.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == conversation.SenderAssistant {
			return messages[i].Text, true
		}
	}
	return "", false
}

// Renderer turns assistant markdown into terminal output. It falls back to the
// raw text when glamour cannot render.
type Renderer struct {
	width int
	term  *glamour.TermRenderer
}

func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = 80
	}
	r := &Renderer{width: width}
	term, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		log.Warn().Err(err).Msg("markdown renderer unavailable, showing plain text")
		return r
	}
	r.term = term
	return r
}

func (r *Renderer) Width() int { return r.width }

func (r *Renderer) Markdown(text string) string {
	if r == nil || r.term == nil {
		return text
	}
	out, err := r.term.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Transcript renders the message log, oldest first.
func (r *Renderer) Transcript(messages []conversation.Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		switch m.Sender {
		case conversation.SenderUser:
			sb.WriteString(userStyle.Render("You"))
			if !m.Timestamp.IsZero() {
				sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %s", m.Timestamp.Local().Format("15:04"))))
			}
			sb.WriteString("\n")
			sb.WriteString(m.Text)
		default:
			sb.WriteString(assistantStyle.Render("Assistant"))
			if !m.Timestamp.IsZero() {
				sb.WriteString(mutedStyle.Render(fmt.Sprintf("  %s", m.Timestamp.Local().Format("15:04"))))
			}
			sb.WriteString("\n")
			sb.WriteString(r.Markdown(m.Text))
		}
	}
	return sb.String()
}
