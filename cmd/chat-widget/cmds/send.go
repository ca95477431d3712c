package cmds

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/widget"
)

func newSendCommand() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			return withApp(cmd.Context(), s, func(ctx context.Context, app *widget.App) error {
				c := app.Controller()
				if session != "" && !c.LoadSession(ctx, session) {
					return errors.Errorf("could not switch to session %s", session)
				}
				if session != "" && app.Store().State().ActiveSessionID != session {
					return errors.Errorf("could not load session %s", session)
				}
				start := len(app.Store().State().Messages)
				if !c.Send(ctx, text) {
					return errors.New("message was not sent")
				}
				st := app.Store().State()
				if err := newTranscriptPrinter(cmd.OutOrStdout()).print(st.Messages[start:]); err != nil {
					return err
				}
				if last, ok := st.LastMessage(); ok && last.Text == chatsync.SendFailureText {
					return errors.New("backend unreachable")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Continue this session instead of starting a new one")
	return cmd
}
