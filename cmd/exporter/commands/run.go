package commands

import (
	"fmt"
	"io"

	"github.com/dvloznov/points-exporter/internal/pipeline"
	"github.com/spf13/cobra"
)

var runDate string

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Partition date to export (YYYY-MM-DD).")
	_ = runCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run --date <YYYY-MM-DD>",
	Short: "Exports every batch of one partition date.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDate("date", runDate)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.exporter.ExportDate(cmd.Context(), date)
		printResult(cmd.OutOrStdout(), res)
		return err
	},
}

func printResult(w io.Writer, res pipeline.DateResult) {
	fmt.Fprintf(w, "%s: %d batches, %d records, %d objects", res.Date, res.Batches, res.Records, len(res.Keys))
	if len(res.Failed) > 0 {
		fmt.Fprintf(w, ", failed batches %v", res.Failed)
	}
	fmt.Fprintln(w)
}
