package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulatePrice     float64
	simulateReference float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate a synthetic fare and trigger the alert flow",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 || simulateReference <= 0 {
			return errors.New("--price and --reference must be greater than 0")
		}

		price := decimal.NewFromFloat(simulatePrice)
		reference := decimal.NewFromFloat(simulateReference)
		return getApp().SimulateAlert(cmd.Context(), price, reference)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Observed fare to evaluate")
	simulateCmd.Flags().Float64Var(&simulateReference, "reference", 0, "Reference fare to score against")
}
