package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var lsDate string

func init() {
	lsCmd.Flags().StringVar(&lsDate, "date", "", "Partition date (YYYY-MM-DD).")
	_ = lsCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(lsCmd)
}

var lsCmd = &cobra.Command{
	Use:   "ls --date <YYYY-MM-DD>",
	Short: "Lists the objects written for a partition date.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDate("date", lsDate)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, false)
		if err != nil {
			return err
		}
		defer closeApp(a)

		keys, err := a.exporter.ListDate(cmd.Context(), date)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}
