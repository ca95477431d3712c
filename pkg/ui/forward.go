package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/chatwidget/pkg/conversation"
)

// Sender is the part of tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

var _ Sender = (*tea.Program)(nil)

// Forward hands store changes to the running program until the stream ends or
// ctx is done.
func Forward(ctx context.Context, p Sender, changes <-chan conversation.Change) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			p.Send(StateChangedMsg{Change: c})
		}
	}
}
