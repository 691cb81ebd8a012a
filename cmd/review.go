package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the manual review queue",
	Long:  "Lists escalated decisions and lets an operator approve (re-enter evaluation with review gates lifted) or reject them. Every approval and rejection is audited.",
}

var reviewActor string

// -- review list --

var reviewListLimit int

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions awaiting manual review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pending, err := env.Store.ListDecisions(ctx, store.DecisionFilter{
			Value: model.DecisionManualReview,
			Limit: reviewListLimit,
		})
		if err != nil {
			return eris.Wrap(err, "review list")
		}

		if len(pending) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}

		formatReviewQueue(os.Stdout, pending)
		return nil
	},
}

// -- review approve --

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <decision-id>",
	Short: "Approve an escalated decision and re-enter evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Engine.Approve(ctx, args[0], reviewActor)
		if err != nil {
			return eris.Wrap(err, "review approve")
		}

		zap.L().Info("review approved",
			zap.String("prior_decision_id", args[0]),
			zap.String("decision_id", d.ID),
			zap.String("outcome", string(d.Value)),
			zap.String("reason", string(d.Reason)))
		fmt.Printf("%s -> %s (%s)\n", truncateID(d.ID), d.Value, d.Reason)
		return nil
	},
}

// -- review reject --

var reviewRejectNote string

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <decision-id>",
	Short: "Reject an escalated decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.Engine.Reject(ctx, args[0], reviewActor, reviewRejectNote)
		if err != nil {
			return eris.Wrap(err, "review reject")
		}

		zap.L().Info("review rejected",
			zap.String("prior_decision_id", args[0]),
			zap.String("decision_id", d.ID))
		fmt.Printf("%s -> %s (%s)\n", truncateID(d.ID), d.Value, d.Reason)
		return nil
	},
}

// formatReviewQueue writes the pending review queue as a table.
func formatReviewQueue(out io.Writer, pending []model.Decision) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tCHANNEL\tTRIGGER\tREASON\tCOMPOSITE\tCONFIDENCE\tDECIDED")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t-------\t------\t---------\t----------\t-------")

	for _, d := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%.1f\t%s\n",
			truncateID(d.ID),
			d.Scope.String(),
			d.Channel,
			d.Trigger,
			d.Reason,
			d.Scores.Composite,
			d.Scores.Confidence,
			d.DecidedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	reviewCmd.PersistentFlags().StringVar(&reviewActor, "actor", "cli", "actor recorded in the audit log")
	reviewListCmd.Flags().IntVar(&reviewListLimit, "limit", 50, "max decisions to display")
	reviewRejectCmd.Flags().StringVar(&reviewRejectNote, "note", "", "rejection note for the audit log")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
