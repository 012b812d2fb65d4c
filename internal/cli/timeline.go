package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var timelineN int

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Show the compacted timeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, _, err := openEngine()
		if err != nil {
			return err
		}

		st := eng.Timeline.Stats()
		fmt.Printf("%d pushes compacted into %d entries (%d merges), weights %v\n",
			st.TotalPushes, st.Entries, st.TotalMerges, st.Structure)

		n := timelineN
		if n <= 0 {
			n = eng.Timeline.Len()
		}
		for _, e := range eng.Timeline.Recent(n) {
			fmt.Printf("  [w=%-3d %s] %s\n", e.Weight, e.End.Format("01-02 15:04"), e.Content)
		}
		return nil
	},
}

func init() {
	timelineCmd.Flags().IntVarP(&timelineN, "entries", "n", 0, "entries to show (0 = all)")
}
