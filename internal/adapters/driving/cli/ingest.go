package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/artdig/artdig/internal/core/domain"
	"github.com/artdig/artdig/internal/core/ports/driving"
)

var (
	forceBootstrap bool
	pageLimit      int
	recordLimit    int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-id]",
	Short: "Ingest records from configured sources",
	Long: `Runs ingestion for one source, or for all configured sources when no
source ID is given. Each run resumes from the source's stored checkpoint;
--force-bootstrap re-extracts from scratch. A run that did not cover its
full window ends partial and resumes where it left off next time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&forceBootstrap, "force-bootstrap", false, "ignore the stored checkpoint and re-extract from scratch")
	ingestCmd.Flags().IntVar(&pageLimit, "page-limit", 0, "stop after this many pages (0 = no limit)")
	ingestCmd.Flags().IntVar(&recordLimit, "record-limit", 0, "stop after this many records (0 = no limit)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingest service not configured")
	}

	// An interrupt aborts between batches; committed pages keep their
	// checkpoints, so the run resumes where it left off.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := driving.RunOptions{
		ForceBootstrap: forceBootstrap,
		PageLimit:      pageLimit,
		RecordLimit:    recordLimit,
	}

	if len(args) > 0 {
		run, err := ingestor.Run(ctx, args[0], opts)
		if run != nil {
			printRunResult(cmd, run)
		}
		return err
	}

	runs, err := ingestor.RunAll(ctx, opts)
	worst := domain.RunSucceeded
	for i := range runs {
		printRunResult(cmd, &runs[i])
		worst = domain.WorstStatus(worst, runs[i].Status)
	}
	if err != nil {
		return fmt.Errorf("ingest finished with failures: %w", err)
	}
	if worst == domain.RunPartial {
		cmd.Println("Some runs ended partial; re-run to continue from their checkpoints.")
	}
	return nil
}

func printRunResult(cmd *cobra.Command, run *domain.IngestRun) {
	cmd.Printf("%s: %s (+%d ~%d -%d =%d, %d errors, %d collisions)\n",
		run.Source, run.Status,
		run.Stats.Created, run.Stats.Updated, run.Stats.Deleted, run.Stats.Unchanged,
		run.Stats.Errors, run.Stats.Collisions)
	if run.ErrorText != "" {
		cmd.Printf("  %s\n", run.ErrorText)
	}
}
