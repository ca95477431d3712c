package cmds

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
	"github.com/go-go-golems/chatwidget/pkg/ui"
)

// transcriptPrinter renders messages with glamour when w is a terminal and as
// plain "sender: text" lines otherwise.
type transcriptPrinter struct {
	w        io.Writer
	renderer *ui.Renderer
}

func newTranscriptPrinter(w io.Writer) *transcriptPrinter {
	p := &transcriptPrinter{w: w}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p.renderer = ui.NewRenderer(100)
	}
	return p
}

func (p *transcriptPrinter) print(messages []conversation.Message) error {
	if p.renderer != nil {
		_, err := fmt.Fprintln(p.w, p.renderer.Transcript(messages))
		return err
	}
	for _, m := range messages {
		if _, err := fmt.Fprintf(p.w, "%s: %s\n", m.Sender, strings.TrimSpace(m.Text)); err != nil {
			return err
		}
	}
	return nil
}

func (p *transcriptPrinter) printSessions(sessions []conversation.SessionSummary) error {
	for _, s := range sessions {
		if _, err := fmt.Fprintf(p.w, "%s\t%s\t%s\n", ui.SessionLabel(s.SessionID), ui.SessionTime(s.CreatedAt), s.SessionID); err != nil {
			return err
		}
	}
	return nil
}
