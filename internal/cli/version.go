package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"trade-settlement/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tradesettle %s\n", version.Version)
		fmt.Fprintf(out, "commit: %s\nbuilt: %s\ngo: %s\n", version.Commit, version.BuildDate, runtime.Version())
	},
}
