// Package cmds holds the cobra commands of the chat-widget binary.
package cmds

import (
	"context"
	"time"

	clay "github.com/go-go-golems/clay/pkg"
	"github.com/go-go-golems/glazed/pkg/cmds/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatwidget/pkg/config"
	"github.com/go-go-golems/chatwidget/pkg/persistence/journal"
	"github.com/go-go-golems/chatwidget/pkg/widget"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"base-url":        config.KeyBaseURL,
	"user-id":         config.KeyUserID,
	"request-timeout": config.KeyRequestTimeout,
	"journal":         config.KeyJournalBackend,
	"journal-dsn":     config.KeyJournalDSN,
	"redis-addr":      config.KeyRedisOverride,
}

// loadSettings layers defaults, the config file, the environment and then the
// flags the user set explicitly.
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	v := viper.New()
	flags := cmd.Flags()
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return config.Settings{}, errors.Wrapf(err, "bind --%s", name)
		}
	}
	path, _ := flags.GetString("config")
	return config.Load(v, path)
}

func NewRootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           config.AppName,
		Short:         "Terminal chat client for the assistant backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.InitLoggerFromViper(); err != nil {
				return err
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("base-url", config.DefaultBaseURL, "Backend base URL")
	pf.String("user-id", config.DefaultUserID, "User identity sent to the backend")
	pf.Duration("request-timeout", 30*time.Second, "Per-request timeout")
	pf.String("journal", journal.BackendMemory, "Transition journal backend (none, memory, sqlite)")
	pf.String("journal-dsn", "", "SQLite file for the sqlite journal")
	pf.String("redis-addr", "", "Publish state changes to Redis Streams at this address")

	// adds the logging flags (--log-level, --log-file, ...) and binds them to viper
	if err := clay.InitViper(config.AppName, root); err != nil {
		return nil, err
	}
	if pf.Lookup("config") == nil {
		pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/chat-widget/config.yaml)")
	}

	tui := newTUICommand()
	root.AddCommand(
		tui,
		newSendCommand(),
		newSessionsCommand(),
		newShowCommand(),
		newCloseCommand(),
		newJournalCommand(),
	)
	root.RunE = tui.RunE
	return root, nil
}

// withApp assembles the widget, runs the store loop and calls fn. The loop
// stops once fn returns.
func withApp(ctx context.Context, s config.Settings, fn func(ctx context.Context, app *widget.App) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := widget.New(ctx, s)
	if err != nil {
		return errors.Wrap(err, "could not start chat widget")
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Warn().Err(err).Msg("closing chat widget")
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return fn(gctx, app)
	})
	return g.Wait()
}
