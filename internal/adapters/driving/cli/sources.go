package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if sourceStore == nil {
			return errors.New("source store not configured")
		}

		sources, err := sourceStore.List(context.Background())
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			cmd.Println("No sources configured.")
			return nil
		}

		for _, source := range sources {
			name := source.Name
			if name == "" {
				name = source.ID
			}
			cmd.Printf("%-12s %-10s grace=%d  %s\n",
				source.ID, source.Family, source.EffectiveGraceRuns(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
