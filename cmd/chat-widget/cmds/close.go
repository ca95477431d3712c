package cmds

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatwidget/pkg/chatsync"
	"github.com/go-go-golems/chatwidget/pkg/widget"
)

func newCloseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session on the backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			sessionID := args[0]
			return withApp(cmd.Context(), s, func(ctx context.Context, app *widget.App) error {
				switch app.Controller().CloseSession(ctx, sessionID) {
				case chatsync.CloseIgnored:
					return errors.Errorf("invalid session id %q", sessionID)
				case chatsync.CloseFailed:
					return errors.New(app.Store().State().SessionsError)
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "closed %s\n", sessionID); err != nil {
					return err
				}
				// the close went through; a failed list refresh is only worth a warning
				if msg := app.Store().State().SessionsError; msg != "" {
					log.Warn().Str("session_id", sessionID).Str("error", msg).Msg("could not refresh sessions after close")
					_, err := fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", msg)
					return err
				}
				return nil
			})
		},
	}
}
