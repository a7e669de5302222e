package cli

import (
	"context"
	"errors"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalogue statistics",
	Long: `Summarises the canonical catalogue: active record counts per source,
the most common classifications and artist nationalities, and the date
range covered by the collection.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if catalogue == nil {
			return errors.New("catalogue store not configured")
		}

		summary, err := catalogue.Summary(context.Background())
		if err != nil {
			return err
		}

		sources := make([]string, 0, len(summary.CountsBySource))
		for source := range summary.CountsBySource {
			sources = append(sources, source)
		}
		sort.Strings(sources)

		total := 0
		cmd.Println("Records by source:")
		for _, source := range sources {
			cmd.Printf("  %-12s %d\n", source, summary.CountsBySource[source])
			total += summary.CountsBySource[source]
		}
		cmd.Printf("  %-12s %d\n", "total", total)

		if len(summary.TopClassifications) > 0 {
			cmd.Println("\nTop classifications:")
			for _, fc := range summary.TopClassifications {
				cmd.Printf("  %-40s %d\n", fc.Value, fc.Count)
			}
		}
		if len(summary.TopNationalities) > 0 {
			cmd.Println("\nTop artist nationalities:")
			for _, fc := range summary.TopNationalities {
				cmd.Printf("  %-40s %d\n", fc.Value, fc.Count)
			}
		}
		if summary.EarliestYear != 0 || summary.LatestYear != 0 {
			cmd.Printf("\nDate range: %d to %d\n", summary.EarliestYear, summary.LatestYear)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
