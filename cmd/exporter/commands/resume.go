package commands

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
)

var resumeToday string

func init() {
	resumeCmd.Flags().StringVar(&resumeToday, "today", "", "Observation date (YYYY-MM-DD). Defaults to the current date.")
	rootCmd.AddCommand(resumeCmd)
}

var resumeCmd = &cobra.Command{
	Use:   "resume [--today <YYYY-MM-DD>]",
	Short: "Exports every date after the watermark and advances it.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		today := civil.DateOf(time.Now())
		if resumeToday != "" {
			d, err := parseDate("today", resumeToday)
			if err != nil {
				return err
			}
			today = d
		}

		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		results, err := a.exporter.Resume(cmd.Context(), today)
		for _, res := range results {
			printResult(cmd.OutOrStdout(), res)
		}
		if err == nil && len(results) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "up to date")
		}
		return err
	},
}
