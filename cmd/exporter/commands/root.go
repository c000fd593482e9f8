package commands

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	pretty     bool
)

var rootCmd = &cobra.Command{
	Use:   "exporter",
	Short: "exporter writes daily loyalty point issuances from BigQuery to object storage.",
	// Usage is noise for runtime failures; flag errors still print it.
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML configuration file.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Overrides log.level from the configuration.")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Human readable log output.")
}

// ExecuteContext runs the command line and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseDate(flag, value string) (civil.Date, error) {
	d, err := civil.ParseDate(value)
	if err != nil {
		return civil.Date{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", flag, value)
	}
	return d, nil
}
