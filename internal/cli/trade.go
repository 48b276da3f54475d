package cli

import (
	"github.com/spf13/cobra"

	"trade-settlement/internal/app"
)

var (
	tradeFrom        string
	tradeTo          string
	tradeAmount      string
	tradeInteractive bool
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Walk a conversion from quote to settlement",
	Long: "Submits the conversion, then either advances automatically to settlement " +
		"or, with --interactive, reads one action per line from stdin.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trade(cmd.Context(), app.TradeOptions{
			From:        tradeFrom,
			To:          tradeTo,
			Amount:      tradeAmount,
			Interactive: tradeInteractive,
		})
	},
}

func init() {
	tradeCmd.Flags().StringVar(&tradeFrom, "from", "", "Currency to sell")
	tradeCmd.Flags().StringVar(&tradeTo, "to", "", "Currency to buy")
	tradeCmd.Flags().StringVar(&tradeAmount, "amount", "", "Amount of --from to convert")
	tradeCmd.Flags().BoolVarP(&tradeInteractive, "interactive", "i", false, "Choose each workflow action from stdin")
}
