package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundgame-labs/outreach-engine/internal/matcher"
)

var matchLimit int

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve queued contacts against master identities",
	Long:  "Runs the matching waterfall (email, phone, social handle, name+postal, name+phone4) over queued contact records. Records whose lookups fail stay queued for the next pass.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := matchLimit
		if limit == 0 {
			limit = cfg.Matcher.BatchSize
		}

		stats, err := env.Runner.Drain(ctx, limit)
		if err != nil {
			return err
		}

		formatMatchStats(os.Stdout, stats)
		return nil
	},
}

func formatMatchStats(out io.Writer, s matcher.RunStats) {
	fmt.Fprintf(out, "Processed: %d\n", s.Processed)
	fmt.Fprintf(out, "Matched:   %d\n", s.Matched)
	fmt.Fprintf(out, "Unmatched: %d\n", s.Unmatched)
	fmt.Fprintf(out, "Deferred:  %d\n", s.Deferred)
}

func init() {
	matchCmd.Flags().IntVar(&matchLimit, "limit", 0, "max records to process (default from config)")
	rootCmd.AddCommand(matchCmd)
}
