package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fee-cli/internal/store"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Inspect recorded calculations and activity",
	Long:  "Commands for listing, viewing, and summarizing stored fee calculations.",
}

// -- audit list --

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded calculations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ref, _ := cmd.Flags().GetString("client-ref")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		recs, err := st.ListCalculations(ctx, store.CalculationFilter{
			ClientRef: ref,
			Status:    status,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "audit list")
		}

		if cmd.Flags().Changed("format") {
			return writeOutput(os.Stdout, outputFormat, recs)
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No calculations found.")
			return nil
		}
		formatCalculations(os.Stdout, recs)
		return nil
	},
}

// -- audit show --

var auditShowCmd = &cobra.Command{
	Use:   "show <id-or-hash>",
	Short: "Show a recorded calculation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetCalculation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "audit show")
		}
		return writeOutput(os.Stdout, outputFormat, rec)
	},
}

// -- audit activity --

var auditActivityCmd = &cobra.Command{
	Use:   "activity",
	Short: "List the activity log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ActivityFilter{Kind: store.ActivityKind(kind), Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		acts, err := st.ListActivity(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "audit activity")
		}
		return writeOutput(os.Stdout, outputFormat, acts)
	},
}

// -- audit stats --

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate calculation statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "audit stats")
		}
		if cmd.Flags().Changed("format") {
			return writeOutput(os.Stdout, outputFormat, stats)
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func formatCalculations(out io.Writer, recs []store.CalculationRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "HASH\tCLIENT_REF\tINVESTOR\tCOMPANY\tSTATUS\tTRANSFER\tDEFAULTS\tCREATED")
	_, _ = fmt.Fprintln(w, "----\t----------\t--------\t-------\t------\t--------\t--------\t-------")

	for _, r := range recs {
		company := r.CompanyName
		if len(company) > 30 {
			company = company[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			r.Hash,
			r.ClientRef,
			r.InvestorName,
			company,
			r.Status,
			r.TotalTransfer.StringFixed(2),
			r.UsingDefaultRates,
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func formatStats(out io.Writer, s *store.Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Calculations:\t%d\n", s.Calculations)
	_, _ = fmt.Fprintf(w, "Default rates:\t%d\n", s.DefaultRateCalcs)
	for _, k := range sortedKeys(s.ByStatus) {
		_, _ = fmt.Fprintf(w, "Status %s:\t%d\n", k, s.ByStatus[k])
	}
	for _, k := range sortedKeys(s.Activity) {
		_, _ = fmt.Fprintf(w, "Activity %s:\t%d\n", k, s.Activity[k])
	}
	if s.LastActivity != nil {
		_, _ = fmt.Fprintf(w, "Last activity:\t%s\n", s.LastActivity.Format(time.RFC3339))
	}
	_ = w.Flush()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	auditListCmd.Flags().String("client-ref", "", "filter by investor client reference")
	auditListCmd.Flags().String("status", "", "filter by letter status (ready, blocked)")
	auditListCmd.Flags().Int("limit", 50, "max number of calculations to display")
	auditListCmd.Flags().Int("offset", 0, "number of calculations to skip")

	auditActivityCmd.Flags().String("kind", "", "filter by kind (request, validation, calculation, refresh)")
	auditActivityCmd.Flags().Duration("since", 24*time.Hour, "time window (e.g. 24h, 168h)")
	auditActivityCmd.Flags().Int("limit", 100, "max number of entries")

	auditCmd.AddCommand(auditListCmd, auditShowCmd, auditActivityCmd, auditStatsCmd)
	rootCmd.AddCommand(auditCmd)
}
