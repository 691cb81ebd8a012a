package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/allocator"
	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

var (
	allocatePool        float64
	allocateScope       string
	allocateConstraints string
)

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run the allocation optimizer over pending demand",
	Long:  "Collects demand from high-score deferred decisions, solves the constrained allocation, records the run, and publishes the new allocations. An infeasible run is reported and the prior allocation stays active.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		pool := allocatePool
		if pool == 0 {
			scope, err := model.ParseScopePath(allocateScope)
			if err != nil {
				return eris.Wrap(err, "parse pool scope")
			}
			pool, err = env.Ledger.Remaining(scope)
			if err != nil {
				return eris.Wrap(err, "derive pool from ledger")
			}
		}
		if pool <= 0 {
			return eris.Errorf("allocation pool is %.2f, nothing to allocate", pool)
		}

		horizon := time.Duration(cfg.Allocator.CadenceHours) * time.Hour
		deferred, err := env.Store.ListDecisions(ctx, store.DecisionFilter{
			Value: model.DecisionDefer,
			Since: time.Now().Add(-horizon),
		})
		if err != nil {
			return eris.Wrap(err, "list pending demand")
		}
		demands := allocator.DemandsFromDecisions(deferred, cfg.Allocator.MinScore)
		if len(demands) == 0 {
			fmt.Fprintln(os.Stderr, "No pending demand above the score floor.")
			return nil
		}

		var constraints []model.AllocationConstraint
		if allocateConstraints != "" {
			data, err := os.ReadFile(allocateConstraints)
			if err != nil {
				return eris.Wrap(err, "read constraints file")
			}
			if err := json.Unmarshal(data, &constraints); err != nil {
				return eris.Wrap(err, "parse constraints file")
			}
		}

		run, err := env.Allocator.Run(ctx, pool, demands, constraints)
		if err != nil {
			return eris.Wrap(err, "allocation run")
		}

		if run.Status != model.SolverInfeasible {
			env.Engine.SetAllocation(run)
			_ = env.Events.AllocationPublished(ctx, *run)
		} else {
			zap.L().Warn("allocation infeasible, prior allocations stay active",
				zap.String("run_id", run.ID),
				zap.String("note", run.Note))
		}

		formatAllocationRun(os.Stdout, *run)
		return nil
	},
}

// formatAllocationRun writes a run summary and per-scope allocations.
func formatAllocationRun(out io.Writer, run model.AllocationRun) {
	fmt.Fprintf(out, "Run:     %s\n", truncateID(run.ID))
	fmt.Fprintf(out, "Status:  %s\n", run.Status)
	fmt.Fprintf(out, "Pool:    %.2f\n", run.TotalPool)
	if run.PenaltyCost > 0 {
		fmt.Fprintf(out, "Penalty: %.2f\n", run.PenaltyCost)
	}
	if sp, ok := run.ShadowPrice["pool"]; ok && sp > 0 {
		fmt.Fprintf(out, "Shadow:  %.3f per pool dollar\n", sp)
	}
	if run.Note != "" {
		fmt.Fprintf(out, "Note:    %s\n", run.Note)
	}
	if len(run.Allocations) == 0 {
		return
	}

	paths := make([]string, 0, len(run.Allocations))
	for path := range run.Allocations {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SCOPE\tALLOCATED")
	_, _ = fmt.Fprintln(w, "-----\t---------")
	for _, path := range paths {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\n", path, run.Allocations[path])
	}
	_ = w.Flush()
}

func init() {
	allocateCmd.Flags().Float64Var(&allocatePool, "pool", 0, "spend pool in USD (default: remaining budget of --scope)")
	allocateCmd.Flags().StringVar(&allocateScope, "scope", "", "scope whose remaining budget funds the pool")
	allocateCmd.Flags().StringVar(&allocateConstraints, "constraints", "", "path to JSON allocation constraints file")
	rootCmd.AddCommand(allocateCmd)
}
