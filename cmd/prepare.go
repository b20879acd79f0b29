package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fee-cli/internal/letter"
)

var (
	prepInvestor     string
	prepCompany      string
	prepAmount       string
	prepSubscription string
	prepSharePrice   string
	prepShareClass   string
	prepAccount      string
	prepDryRun       bool
	prepOverrides    overrideFlags
)

var prepareCmd = &cobra.Command{
	Use:   "prepare",
	Short: "Prepare a fee letter payload",
	Long:  "Resolves the investor, company and fee row, calculates fees, runs the compliance gate and records the result. Unresolved entities are reported for clarification rather than guessed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("prepare"); err != nil {
			return err
		}

		req, err := prepareRequest()
		if err != nil {
			return err
		}

		env, err := initEnv(ctx, !prepDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		ds, err := env.loadDataset(ctx)
		if err != nil {
			return err
		}

		p, err := env.Letters.Prepare(ctx, ds, req)
		if err != nil {
			return err
		}
		if err := writeOutput(os.Stdout, outputFormat, p); err != nil {
			return err
		}

		if p.Status != letter.StatusReady {
			zap.L().Info("letter not ready", zap.String("status", string(p.Status)))
			return eris.Errorf("prepare: letter %s", p.Status)
		}
		return nil
	},
}

func prepareRequest() (letter.Request, error) {
	amount, err := parseAmount(prepAmount)
	if err != nil {
		return letter.Request{}, err
	}
	ov, err := prepOverrides.overrides()
	if err != nil {
		return letter.Request{}, err
	}
	req := letter.Request{
		Investor:         prepInvestor,
		Company:          prepCompany,
		Amount:           amount,
		SubscriptionHint: prepSubscription,
		Overrides:        ov,
		ShareClass:       prepShareClass,
		Account:          prepAccount,
		DryRun:           prepDryRun,
	}
	if prepSharePrice != "" {
		sp, err := parseAmount(prepSharePrice)
		if err != nil {
			return letter.Request{}, eris.Wrap(err, "--share-price")
		}
		req.SharePrice = &sp
	}
	return req, nil
}

func init() {
	f := prepareCmd.Flags()
	f.StringVar(&prepInvestor, "investor", "", "investor name, email or client reference")
	f.StringVar(&prepCompany, "company", "", "company name or registration number")
	f.StringVar(&prepAmount, "amount", "", "investment amount")
	f.StringVar(&prepSubscription, "subscription", "", "subscription code to prefer among the investor's fee rows")
	f.StringVar(&prepSharePrice, "share-price", "", "share price override in pounds")
	f.StringVar(&prepShareClass, "share-class", "", "share class override")
	f.StringVar(&prepAccount, "account", "", "operator recorded in the audit trail")
	f.BoolVar(&prepDryRun, "dry-run", false, "skip the store and audit workbook")
	_ = prepareCmd.MarkFlagRequired("investor")
	_ = prepareCmd.MarkFlagRequired("company")
	_ = prepareCmd.MarkFlagRequired("amount")
	prepOverrides.register(prepareCmd)
	rootCmd.AddCommand(prepareCmd)
}
