package commands

import (
	"context"
	"fmt"
	"os"

	"forumbump/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	verbose           bool
	serviceConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "bumper",
	Short: "bumper keeps forum threads on the front page by replying to them on a schedule.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Log debug information and write request dumps to .dev/resty.")
	rootCmd.PersistentFlags().StringVar(&serviceConfigPath, "service-config", "bumper.json5", "Path to the service configuration.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
