package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backfillFrom, backfillTo string

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First partition date (YYYY-MM-DD).")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last partition date, inclusive (YYYY-MM-DD).")
	_ = backfillCmd.MarkFlagRequired("from")
	_ = backfillCmd.MarkFlagRequired("to")
	rootCmd.AddCommand(backfillCmd)
}

var backfillCmd = &cobra.Command{
	Use:   "backfill --from <YYYY-MM-DD> --to <YYYY-MM-DD>",
	Short: "Exports an inclusive range of partition dates without moving the watermark.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseDate("from", backfillFrom)
		if err != nil {
			return err
		}
		to, err := parseDate("to", backfillTo)
		if err != nil {
			return err
		}
		if to.Before(from) {
			return fmt.Errorf("--to %s is before --from %s", to, from)
		}

		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		results, err := a.exporter.Backfill(cmd.Context(), from, to)
		for _, res := range results {
			printResult(cmd.OutOrStdout(), res)
		}
		return err
	},
}
