package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mnemo/internal/engine"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record one decision cycle from JSON on stdin",
	Long:  "Reads a cycle description (context, purpose, means, outcome) as JSON from stdin and stores it across all memory stores.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var in engine.Input
		if err := json.NewDecoder(os.Stdin).Decode(&in); err != nil {
			return fmt.Errorf("decode input: %w", err)
		}

		eng, _, err := openEngine()
		if err != nil {
			return err
		}
		defer eng.Stop()

		rec, err := eng.Record(cmd.Context(), in)
		if err != nil {
			return err
		}

		fmt.Printf("recorded experience %d (purpose %q, delta %+.3f)\n", rec.ID, rec.Purpose, rec.TotalDelta)
		return nil
	},
}
