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
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

var (
	decideFile     string
	decideDeferred bool
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Evaluate pending action requests through the decision core",
	Long:  "Scores and admits action requests from a JSON file and/or re-evaluates previously deferred decisions whose send window may now be open.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if decideFile == "" && !decideDeferred {
			return eris.New("nothing to do: pass --file and/or --deferred")
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var reqs []model.ActionRequest

		if decideFile != "" {
			data, err := os.ReadFile(decideFile)
			if err != nil {
				return eris.Wrap(err, "read requests file")
			}
			if err := json.Unmarshal(data, &reqs); err != nil {
				return eris.Wrap(err, "parse requests file")
			}
		}

		if decideDeferred {
			requeued, err := deferredRequests(cmd, env)
			if err != nil {
				return err
			}
			reqs = append(reqs, requeued...)
		}

		if len(reqs) == 0 {
			fmt.Fprintln(os.Stderr, "No pending requests.")
			return nil
		}

		decisions, err := env.Engine.EvaluateBatch(ctx, reqs)
		if err != nil {
			return eris.Wrap(err, "evaluate batch")
		}

		formatDecisions(os.Stdout, decisions)
		return nil
	},
}

// deferredRequests reconstructs action requests from DEFER decisions still
// inside their horizon. Expiry is enforced downstream: a request deferred
// past the horizon comes back as a terminal expired decision, never a silent
// retry.
func deferredRequests(cmd *cobra.Command, env *engineEnv) ([]model.ActionRequest, error) {
	ctx := cmd.Context()
	horizon := time.Duration(cfg.Decision.DeferHorizonHours) * time.Hour

	deferred, err := env.Store.ListDecisions(ctx, store.DecisionFilter{
		Value: model.DecisionDefer,
		Since: time.Now().Add(-2 * horizon),
	})
	if err != nil {
		return nil, eris.Wrap(err, "list deferred decisions")
	}

	reqs := make([]model.ActionRequest, 0, len(deferred))
	seen := make(map[string]bool)
	for _, d := range deferred {
		if d.Execution == model.ExecutionExpired || seen[d.RequestID] {
			continue
		}
		seen[d.RequestID] = true
		reqs = append(reqs, model.ActionRequest{
			ID:         d.RequestID,
			IdentityID: d.IdentityID,
			CampaignID: d.CampaignID,
			Scope:      d.Scope,
			Channel:    d.Channel,
			Trigger:    d.Trigger,
			ContentRef: d.ContentRef,
			CreatedAt:  d.DecidedAt,
			ExpiresAt:  d.DecidedAt.Add(horizon),
		})
	}
	zap.L().Info("deferred requests requeued", zap.Int("count", len(reqs)))
	return reqs, nil
}

// formatDecisions writes a tabular decision summary to w.
func formatDecisions(out io.Writer, decisions []model.Decision) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tCHANNEL\tDECISION\tREASON\tCOMPOSITE\tCOST")
	_, _ = fmt.Fprintln(w, "--\t-----\t-------\t--------\t------\t---------\t----")

	for _, d := range decisions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%.2f\n",
			truncateID(d.ID),
			d.Scope.String(),
			d.Channel,
			d.Value,
			d.Reason,
			d.Scores.Composite,
			d.Scores.ExpectedCost,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	decideCmd.Flags().StringVar(&decideFile, "file", "", "path to JSON action requests file")
	decideCmd.Flags().BoolVar(&decideDeferred, "deferred", false, "re-evaluate deferred decisions")
	rootCmd.AddCommand(decideCmd)
}
