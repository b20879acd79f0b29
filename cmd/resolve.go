package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/fee-cli/internal/resolve"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve an investor, company or fee row against the workbook",
}

var resolveInvestorCmd = &cobra.Command{
	Use:   "investor <query>",
	Short: "Resolve an investor by email, client reference or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, func(r *resolve.Resolver, e *appEnv) (any, error) {
			ds, err := e.loadDataset(cmd.Context())
			if err != nil {
				return nil, err
			}
			out := r.Investor(args[0], ds.Investors)
			observe(e, "investor", out.Kind, out.Tier)
			return out, nil
		})
	},
}

var resolveCompanyCmd = &cobra.Command{
	Use:   "company <query>",
	Short: "Resolve a company by registration number or name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(cmd, func(r *resolve.Resolver, e *appEnv) (any, error) {
			ds, err := e.loadDataset(cmd.Context())
			if err != nil {
				return nil, err
			}
			out := r.Company(args[0], ds.Companies)
			observe(e, "company", out.Kind, out.Tier)
			return out, nil
		})
	},
}

var (
	feeRowClientRef    string
	feeRowSubscription string
	feeRowName         string
)

var resolveFeeRowCmd = &cobra.Command{
	Use:   "fee-row",
	Short: "Select the fee row for an investor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runResolve(cmd, func(r *resolve.Resolver, e *appEnv) (any, error) {
			ds, err := e.loadDataset(cmd.Context())
			if err != nil {
				return nil, err
			}
			out := r.ResolveFeeRow(ds.FeeRows, feeRowClientRef, feeRowSubscription, feeRowName)
			observe(e, "fee_row", out.Kind, out.Tier)
			return out, nil
		})
	},
}

func runResolve(cmd *cobra.Command, fn func(*resolve.Resolver, *appEnv) (any, error)) error {
	if err := cfg.Validate("resolve"); err != nil {
		return err
	}
	env, err := initEnv(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer env.Close()

	out, err := fn(env.Letters.Resolver(), env)
	if err != nil {
		return err
	}
	return writeOutput(os.Stdout, outputFormat, out)
}

func observe(e *appEnv, entity string, kind resolve.Kind, tier resolve.Tier) {
	e.Metrics.ObserveResolution(entity, kind.String(), tier.String())
}

func init() {
	resolveFeeRowCmd.Flags().StringVar(&feeRowClientRef, "client-ref", "", "investor client reference")
	resolveFeeRowCmd.Flags().StringVar(&feeRowSubscription, "subscription", "", "preferred subscription code")
	resolveFeeRowCmd.Flags().StringVar(&feeRowName, "name", "", "investor full name, used when no row carries the reference")

	resolveCmd.AddCommand(resolveInvestorCmd, resolveCompanyCmd, resolveFeeRowCmd)
	rootCmd.AddCommand(resolveCmd)
}
