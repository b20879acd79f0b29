package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/fee-cli/internal/letter"
)

var (
	calcAmount    string
	calcOverrides overrideFlags
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Calculate fees for an amount using the default rates",
	Long:  "Calculates the fee schedule for an amount without resolving an investor. Rates come from the flags, then the configured defaults.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("calc"); err != nil {
			return err
		}

		amount, err := parseAmount(calcAmount)
		if err != nil {
			return err
		}
		ov, err := calcOverrides.overrides()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		q, err := env.Letters.Quote(ctx, letter.QuoteRequest{Amount: amount, Overrides: ov})
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, outputFormat, q)
	},
}

func init() {
	calcCmd.Flags().StringVar(&calcAmount, "amount", "", "investment amount (gross or net per --direction)")
	_ = calcCmd.MarkFlagRequired("amount")
	calcOverrides.register(calcCmd)
	rootCmd.AddCommand(calcCmd)
}
