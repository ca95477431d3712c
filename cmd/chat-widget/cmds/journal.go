package cmds

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/chatwidget/pkg/persistence/journal"
)

func newJournalCommand() *cobra.Command {
	var (
		runID    string
		sinceSeq uint64
		limit    int
		runsOnly bool
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Dump recorded store transitions as YAML",
		Long: `Reads the sqlite transition journal written by earlier runs.
Without --run, transitions of every run are listed, oldest first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			if !strings.EqualFold(s.Journal.Backend, journal.BackendSQLite) {
				return errors.New("the journal command needs the sqlite backend (--journal sqlite --journal-dsn FILE)")
			}
			j, err := journal.NewSQLiteJournal(s.Journal.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = j.Close() }()

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer func() { _ = enc.Close() }()

			ctx := cmd.Context()
			if runsOnly {
				runs, err := j.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				return enc.Encode(runs)
			}
			transitions, err := j.List(ctx, journal.Query{RunID: runID, SinceSeq: sinceSeq, Limit: limit})
			if err != nil {
				return err
			}
			return enc.Encode(transitions)
		},
	}
	cmd.Flags().StringVar(&runID, "run", "", "Only transitions of this run")
	cmd.Flags().Uint64Var(&sinceSeq, "since", 0, "Only transitions after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of entries (0 for the default)")
	cmd.Flags().BoolVar(&runsOnly, "runs", false, "List runs instead of transitions")
	return cmd
}
