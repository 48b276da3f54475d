package cli

import (
	"github.com/spf13/cobra"

	"trade-settlement/internal/app"
)

var (
	quoteFrom string
	quoteTo   string
)

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Print the current rate for a currency pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Quote(cmd.Context(), app.QuoteOptions{From: quoteFrom, To: quoteTo})
	},
}

func init() {
	quoteCmd.Flags().StringVar(&quoteFrom, "from", "", "Base currency")
	quoteCmd.Flags().StringVar(&quoteTo, "to", "", "Quote currency")
	_ = quoteCmd.MarkFlagRequired("from")
	_ = quoteCmd.MarkFlagRequired("to")
}
