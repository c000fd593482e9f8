package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var newMembersDate string

func init() {
	newMembersCmd.Flags().StringVar(&newMembersDate, "date", "", "Observation date (YYYY-MM-DD).")
	_ = newMembersCmd.MarkFlagRequired("date")
	rootCmd.AddCommand(newMembersCmd)
}

var newMembersCmd = &cobra.Command{
	Use:   "new-members --date <YYYY-MM-DD>",
	Short: "Exports the first qualifying transactions of new members.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDate("date", newMembersDate)
		if err != nil {
			return err
		}

		a, err := newApp(cmd, true)
		if err != nil {
			return err
		}
		defer closeApp(a)

		res, err := a.exporter.ExportNewMembers(cmd.Context(), date)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows written to %s\n", res.Date, res.Rows, res.Key)
		return nil
	},
}
