package cli

import (
	"github.com/spf13/cobra"

	"trade-settlement/internal/app"
)

var (
	simulateRate         string
	simulateFrom         string
	simulateTo           string
	simulateAmount       string
	simulateFailExecutor bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Walk a conversion to settlement against a pinned rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Rate:         simulateRate,
			From:         simulateFrom,
			To:           simulateTo,
			Amount:       simulateAmount,
			FailExecutor: simulateFailExecutor,
		})
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateRate, "rate", "", "Pinned rate of --to per unit of --from")
	simulateCmd.Flags().StringVar(&simulateFrom, "from", "USD", "Currency to sell")
	simulateCmd.Flags().StringVar(&simulateTo, "to", "EUR", "Currency to buy")
	simulateCmd.Flags().StringVar(&simulateAmount, "amount", "100", "Amount of --from to convert")
	simulateCmd.Flags().BoolVar(&simulateFailExecutor, "fail-executor", false, "Fail every payment to exercise the fallback record")
	_ = simulateCmd.MarkFlagRequired("rate")
}
