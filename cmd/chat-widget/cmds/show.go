package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatwidget/pkg/widget"
)

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print the transcript of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			sessionID := args[0]
			return withApp(cmd.Context(), s, func(ctx context.Context, app *widget.App) error {
				if !app.Controller().LoadSession(ctx, sessionID) {
					return errors.Errorf("invalid session id %q", sessionID)
				}
				st := app.Store().State()
				if st.ActiveSessionID != sessionID {
					return errors.Errorf("could not load session %s", sessionID)
				}
				return newTranscriptPrinter(cmd.OutOrStdout()).print(st.Messages)
			})
		},
	}
}
