package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

var (
	ingestFile    string
	ingestSource  string
	ingestBatchID string
	ingestNoMatch bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a batch of harvested contacts from a JSON file",
	Long:  "Reads a JSON array of contact records, ingests them idempotently (re-submitting a batch never creates duplicates), and runs the identity matcher over the queue.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(ingestFile)
		if err != nil {
			return eris.Wrap(err, "read contacts file")
		}
		var records []model.ContactRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return eris.Wrap(err, "parse contacts file")
		}
		if len(records) == 0 {
			return eris.New("contacts file is empty")
		}

		for i := range records {
			records[i].Source = model.Source{Name: ingestSource, BatchID: ingestBatchID}
			records[i].Enrichment = model.EnrichmentQueued
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		accepted, err := env.Store.IngestContacts(ctx, records)
		if err != nil {
			return eris.Wrap(err, "ingest contacts")
		}
		duplicates := len(records) - accepted
		env.Metrics.ObserveIngest(accepted, duplicates)
		_ = env.Events.ContactsIngested(ctx, ingestSource, ingestBatchID, accepted, duplicates)

		zap.L().Info("batch ingested",
			zap.String("source", ingestSource),
			zap.String("batch_id", ingestBatchID),
			zap.Int("accepted", accepted),
			zap.Int("duplicates", duplicates))

		if ingestNoMatch {
			return nil
		}

		stats, err := env.Runner.Drain(ctx, cfg.Matcher.BatchSize)
		if err != nil {
			return eris.Wrap(err, "match pass")
		}
		zap.L().Info("ingest complete",
			zap.Int("matched", stats.Matched),
			zap.Int("unmatched", stats.Unmatched),
			zap.Int("deferred", stats.Deferred))
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "", "path to JSON contacts file (required)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "source system name (required)")
	ingestCmd.Flags().StringVar(&ingestBatchID, "batch", "", "batch identifier for idempotent re-submission")
	ingestCmd.Flags().BoolVar(&ingestNoMatch, "no-match", false, "skip the matcher pass after ingesting")
	_ = ingestCmd.MarkFlagRequired("file")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}
