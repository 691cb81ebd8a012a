package matcher

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// ContactQueue is the slice of the store the runner drains and writes back to.
type ContactQueue interface {
	ListContacts(ctx context.Context, state model.EnrichmentState, limit int) ([]model.ContactRecord, error)
	SetMatchOutcome(ctx context.Context, id string, outcome model.MatchOutcome, state model.EnrichmentState) error
}

// RunStats summarizes one resolution pass.
type RunStats struct {
	Processed int
	Matched   int
	Unmatched int
	Deferred  int
}

// Runner drains queued contact records through the matcher with bounded
// concurrency. Each record has a single writer, so workers never contend on
// the same row.
type Runner struct {
	matcher *Matcher
	queue   ContactQueue
	workers int
}

// NewRunner builds a Runner; workers < 1 is coerced to 1.
func NewRunner(matcher *Matcher, queue ContactQueue, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{matcher: matcher, queue: queue, workers: workers}
}

// Drain resolves up to limit queued records. A record whose lookup fails is
// left queued for the next pass rather than marked failed; the directory
// being down is not evidence the record is unmatchable.
func (r *Runner) Drain(ctx context.Context, limit int) (RunStats, error) {
	records, err := r.queue.ListContacts(ctx, model.EnrichmentQueued, limit)
	if err != nil {
		return RunStats{}, err
	}

	results := make([]*model.MatchOutcome, len(records))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, rec := range records {
		g.Go(func() error {
			outcome, err := r.matcher.Resolve(gctx, rec)
			if err != nil {
				zap.L().Warn("match resolution deferred",
					zap.String("contact_id", rec.ID),
					zap.Error(err))
				return nil // leave queued
			}
			results[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return RunStats{}, err
	}

	var stats RunStats
	stats.Processed = len(records)
	for i, outcome := range results {
		if outcome == nil {
			stats.Deferred++
			continue
		}
		state := model.EnrichmentCompleted
		if outcome.Unmatched {
			stats.Unmatched++
		} else {
			stats.Matched++
		}
		if err := r.queue.SetMatchOutcome(ctx, records[i].ID, *outcome, state); err != nil {
			zap.L().Warn("match outcome write deferred",
				zap.String("contact_id", records[i].ID),
				zap.Error(err))
			stats.Deferred++
			if outcome.Unmatched {
				stats.Unmatched--
			} else {
				stats.Matched--
			}
		}
	}

	zap.L().Info("match pass complete",
		zap.Int("processed", stats.Processed),
		zap.Int("matched", stats.Matched),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("deferred", stats.Deferred))
	return stats, nil
}
