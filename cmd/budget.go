package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/report"
)

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Inspect and administer the budget hierarchy",
}

// -- budget remaining --

var budgetRemainingCmd = &cobra.Command{
	Use:   "remaining <scope>",
	Short: "Show remaining budget for a scope subtree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		root, err := model.ParseScopePath(args[0])
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		scopes := env.Ledger.Scopes()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SCOPE\tPERIOD\tALLOCATED\tCOMMITTED\tSPENT\tREMAINING")
		_, _ = fmt.Fprintln(w, "-----\t------\t---------\t---------\t-----\t---------")
		found := false
		for _, s := range scopes {
			if !root.Contains(s.Path) {
				continue
			}
			found = true
			_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%.2f\n",
				s.Path.String(), s.Period, s.Allocation, s.Committed, s.Spent, s.Remaining())
		}
		_ = w.Flush()

		if !found {
			return eris.Errorf("no budget scopes under %s", root.String())
		}
		return nil
	},
}

// -- budget report --

var budgetReportJSON bool

var budgetReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the budget-vs-actual report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rep := env.Reporter.Build(env.Ledger.Scopes())

		if budgetReportJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rep)
		}

		formatReport(os.Stdout, rep)
		return nil
	},
}

// -- budget txns --

var budgetTxnsSince time.Duration

var budgetTxnsCmd = &cobra.Command{
	Use:   "txns <scope>",
	Short: "List ledger transactions for a scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		scope, err := model.ParseScopePath(args[0])
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		txns, err := st.ListTransactions(ctx, scope, time.Now().Add(-budgetTxnsSince))
		if err != nil {
			return eris.Wrap(err, "list transactions")
		}

		if len(txns) == 0 {
			fmt.Fprintln(os.Stderr, "No transactions in window.")
			return nil
		}

		formatTransactions(os.Stdout, txns)
		return nil
	},
}

// -- budget set --

var (
	budgetSetAllocation float64
	budgetSetPeriod     string
	budgetSetCarryOver  bool
	budgetSetOverride   bool
	budgetSetActor      string
)

var budgetSetCmd = &cobra.Command{
	Use:   "set <scope>",
	Short: "Create or update a budget scope's period allocation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		path, err := model.ParseScopePath(args[0])
		if err != nil {
			return err
		}
		period := model.Period(budgetSetPeriod)
		if period != model.PeriodDaily && period != model.PeriodMonthly {
			return eris.Errorf("unsupported period: %s", budgetSetPeriod)
		}
		if budgetSetAllocation < 0 {
			return eris.New("allocation must not be negative")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Ledger.SetScope(ctx, model.BudgetScope{
			Path:          path,
			Period:        period,
			Allocation:    budgetSetAllocation,
			AllowOverride: budgetSetOverride,
			CarryOver:     budgetSetCarryOver,
		}); err != nil {
			return eris.Wrap(err, "set budget scope")
		}

		if err := env.Store.AppendAudit(ctx, model.AuditEntry{
			Actor:   budgetSetActor,
			Action:  "budget.set",
			Subject: path.String(),
			Detail: map[string]any{
				"allocation": budgetSetAllocation,
				"period":     budgetSetPeriod,
			},
			At: time.Now().UTC(),
		}); err != nil {
			return eris.Wrap(err, "audit budget change")
		}

		zap.L().Info("budget scope updated",
			zap.String("scope", path.String()),
			zap.Float64("allocation", budgetSetAllocation),
			zap.String("period", budgetSetPeriod))
		return nil
	},
}

// formatTransactions writes ledger entries as a table.
func formatTransactions(out io.Writer, txns []model.CostTransaction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AT\tSCOPE\tKIND\tTOTAL\tDECISION\tNOTE")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t-----\t--------\t----")

	for _, txn := range txns {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%+.2f\t%s\t%s\n",
			txn.CreatedAt.Format("2006-01-02 15:04:05"),
			txn.Scope.String(),
			txn.Kind,
			txn.Total,
			truncateID(txn.DecisionID),
			txn.Note,
		)
	}
	_ = w.Flush()
}

// formatReport writes the budget-vs-actual report as a table.
func formatReport(out io.Writer, rep report.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCOPE\tPERIOD\tBUDGETED\tCOMMITTED\tACTUAL\tVARIANCE\tVAR%\tSTATUS")
	_, _ = fmt.Fprintln(w, "-----\t------\t--------\t---------\t------\t--------\t----\t------")

	for _, line := range rep.Lines {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%.2f\t%+.2f\t%+.1f%%\t%s\n",
			line.Scope,
			line.Period,
			line.Budgeted,
			line.Committed,
			line.Actual,
			line.Variance,
			line.VariancePct,
			line.Status,
		)
	}

	budgeted, actual := rep.Totals()
	_, _ = fmt.Fprintf(w, "TOTAL\t\t%.2f\t\t%.2f\t%+.2f\t\t\n", budgeted, actual, actual-budgeted)
	_ = w.Flush()
}

func init() {
	budgetReportCmd.Flags().BoolVar(&budgetReportJSON, "json", false, "emit the report as JSON")

	budgetSetCmd.Flags().Float64Var(&budgetSetAllocation, "allocation", 0, "period allocation in USD (required)")
	budgetSetCmd.Flags().StringVar(&budgetSetPeriod, "period", "monthly", "accounting period (daily, monthly)")
	budgetSetCmd.Flags().BoolVar(&budgetSetCarryOver, "carry-over", false, "carry unspent surplus into the next period")
	budgetSetCmd.Flags().BoolVar(&budgetSetOverride, "allow-override", false, "permit reservations beyond the allocation")
	budgetSetCmd.Flags().StringVar(&budgetSetActor, "actor", "cli", "actor recorded in the audit log")
	_ = budgetSetCmd.MarkFlagRequired("allocation")

	budgetTxnsCmd.Flags().DurationVar(&budgetTxnsSince, "since", 7*24*time.Hour, "time window (e.g. 24h, 168h)")

	budgetCmd.AddCommand(budgetRemainingCmd)
	budgetCmd.AddCommand(budgetReportCmd)
	budgetCmd.AddCommand(budgetTxnsCmd)
	budgetCmd.AddCommand(budgetSetCmd)
	rootCmd.AddCommand(budgetCmd)
}
