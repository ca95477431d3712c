package cmds

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatwidget/pkg/ui"
	"github.com/go-go-golems/chatwidget/pkg/widget"
)

func newTUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive chat widget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			// logs would draw over the screen, so they only go to --log-file
			if viper.GetString("log-file") == "" {
				log.Logger = zerolog.Nop()
			}

			return withApp(cmd.Context(), s, runTUI)
		},
	}
}

func runTUI(ctx context.Context, app *widget.App) error {
	changes, err := app.Subscribe(ctx)
	if err != nil {
		return err
	}

	model := ui.New(ctx, app.Controller(),
		ui.WithInitialState(app.Store().State()),
		ui.WithRunID(app.Store().RunID()),
	)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	forwardCtx, stopForward := context.WithCancel(ctx)
	eg := errgroup.Group{}
	eg.Go(func() error { return ui.Forward(forwardCtx, p, changes) })
	eg.Go(func() error {
		defer stopForward()
		_, err := p.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return errors.Wrap(err, "error running program")
	})
	return eg.Wait()
}
