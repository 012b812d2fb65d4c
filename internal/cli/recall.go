package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"mnemo/internal/retrieval"
)

var (
	recallContext string
	recallTopK    int
	recallAll     bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <purpose>",
	Short: "Retrieve experiences similar to a purpose",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine()
		if err != nil {
			return err
		}

		results, err := eng.Retriever.RetrieveSimilar(cmd.Context(), retrieval.Query{
			Context:         recallContext,
			Purpose:         args[0],
			TopK:            recallTopK,
			IncludeNegative: recallAll,
		})
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("no matching experiences")
			return nil
		}

		for _, s := range results {
			r := s.Record
			fmt.Printf("#%-4d %.3f  %s\n", r.ID, s.Score, r.Purpose)
			fmt.Printf("      means: %s (%s)  delta: %+.3f", r.Means, r.MeansType, r.TotalDelta)
			if r.IsAchievement {
				fmt.Printf("  [achievement x%.1f]", r.AchievementMultiplier)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().StringVar(&recallContext, "context", "", "current situation to match against")
	recallCmd.Flags().IntVarP(&recallTopK, "top", "k", 0, "number of results (default from config)")
	recallCmd.Flags().BoolVar(&recallAll, "include-negative", false, "include negative experiences")
}
