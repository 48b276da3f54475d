package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"trade-settlement/internal/app"
)

var (
	ratesBase      string
	ratesSymbols   []string
	ratesWatch     bool
	ratesCount     int
	ratesCSVPath   string
	ratesPNGPath   string
	ratesMaxPoints int
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show the rate board, optionally sampling it on an interval",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ratesCount < 0 {
			return fmt.Errorf("--count cannot be negative")
		}
		if ratesPNGPath != "" && !ratesWatch {
			return fmt.Errorf("--png needs at least two samples; combine it with --watch")
		}

		return getApp().Rates(cmd.Context(), app.RatesOptions{
			Base:      ratesBase,
			Symbols:   ratesSymbols,
			Watch:     ratesWatch,
			Count:     ratesCount,
			CSVPath:   ratesCSVPath,
			PNGPath:   ratesPNGPath,
			MaxPoints: ratesMaxPoints,
		})
	},
}

func init() {
	ratesCmd.Flags().StringVar(&ratesBase, "base", "", "Base currency (defaults to config)")
	ratesCmd.Flags().StringSliceVar(&ratesSymbols, "symbols", nil, "Comma separated symbols (defaults to config)")
	ratesCmd.Flags().BoolVarP(&ratesWatch, "watch", "w", false, "Keep sampling on board.interval until interrupted")
	ratesCmd.Flags().IntVar(&ratesCount, "count", 0, "Stop watching after this many samples")
	ratesCmd.Flags().StringVar(&ratesCSVPath, "csv", "", "Path to write the sampled history as CSV")
	ratesCmd.Flags().StringVar(&ratesPNGPath, "png", "", "Path to write the sampled history as a PNG chart")
	ratesCmd.Flags().IntVar(&ratesMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
