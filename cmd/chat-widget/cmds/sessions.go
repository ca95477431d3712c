package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatwidget/pkg/widget"
)

func newSessionsCommand() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List previous sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			return withApp(cmd.Context(), s, func(ctx context.Context, app *widget.App) error {
				app.Controller().FetchSessions(ctx, user)
				st := app.Store().State()
				if st.SessionsError != "" {
					return errors.New(st.SessionsError)
				}
				return newTranscriptPrinter(cmd.OutOrStdout()).printSessions(st.Sessions)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "List sessions of this user instead of the configured one")
	return cmd
}
