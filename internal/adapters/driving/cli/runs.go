package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs [source-id]",
	Short: "Show the ingest run ledger",
	Long: `Lists recent ingest runs, newest first. With a source ID, only that
source's runs are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if runStore == nil {
			return errors.New("run store not configured")
		}

		source := ""
		if len(args) > 0 {
			source = args[0]
		}
		runs, err := runStore.List(context.Background(), source, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			cmd.Println("No runs recorded.")
			return nil
		}

		for _, run := range runs {
			ended := "running"
			if !run.EndedAt.IsZero() {
				ended = run.EndedAt.Format("2006-01-02 15:04:05")
			}
			cmd.Printf("%s  %-10s %-10s started %s  ended %s  +%d ~%d -%d =%d (%d errors)\n",
				run.RunID, run.Source, run.Status,
				run.StartedAt.Format("2006-01-02 15:04:05"), ended,
				run.Stats.Created, run.Stats.Updated, run.Stats.Deleted,
				run.Stats.Unchanged, run.Stats.Errors)
			if run.ErrorText != "" {
				cmd.Printf("  %s\n", run.ErrorText)
			}
		}
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
