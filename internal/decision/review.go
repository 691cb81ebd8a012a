package decision

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

// Approve re-enters an escalated request into evaluation with the review
// gates lifted. The original MANUAL_REVIEW decision stays untouched; the
// re-evaluation produces a fresh decision, and both the approval and its
// outcome are audited.
func (e *Engine) Approve(ctx context.Context, decisionID, actor string) (*model.Decision, error) {
	prior, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: load for approval")
	}
	if prior.Value != model.DecisionManualReview {
		return nil, eris.Errorf("decision: %s is %s, not awaiting review", decisionID, prior.Value)
	}

	d, err := e.evaluate(ctx, requestFrom(*prior, e.now()), true)
	if err != nil {
		return nil, err
	}
	if d.Value == model.DecisionGo {
		d.Reason = model.ReasonReviewApproved
	}

	if err := e.store.AppendAudit(ctx, model.AuditEntry{
		Actor:   actor,
		Action:  "review.approve",
		Subject: decisionID,
		Detail: map[string]any{
			"new_decision_id": d.ID,
			"outcome":         string(d.Value),
		},
		At: e.now(),
	}); err != nil {
		return nil, eris.Wrap(err, "decision: audit approval")
	}
	return d, nil
}

// Reject closes out an escalated request as NO_GO. Immutable history: the
// rejection is a new decision referencing the same request.
func (e *Engine) Reject(ctx context.Context, decisionID, actor, note string) (*model.Decision, error) {
	prior, err := e.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, eris.Wrap(err, "decision: load for rejection")
	}
	if prior.Value != model.DecisionManualReview {
		return nil, eris.Errorf("decision: %s is %s, not awaiting review", decisionID, prior.Value)
	}

	d := e.newDecision(requestFrom(*prior, e.now()), model.DecisionNoGo, model.ReasonReviewRejected, prior.Scores)
	recorded, err := e.record(ctx, d)
	if err != nil {
		return nil, err
	}

	if err := e.store.AppendAudit(ctx, model.AuditEntry{
		Actor:   actor,
		Action:  "review.reject",
		Subject: decisionID,
		Detail: map[string]any{
			"new_decision_id": recorded.ID,
			"note":            note,
		},
		At: e.now(),
	}); err != nil {
		return nil, eris.Wrap(err, "decision: audit rejection")
	}
	return recorded, nil
}

// requestFrom reconstructs the action request an escalated decision carried.
func requestFrom(d model.Decision, now time.Time) model.ActionRequest {
	return model.ActionRequest{
		ID:         d.RequestID,
		IdentityID: d.IdentityID,
		CampaignID: d.CampaignID,
		Scope:      d.Scope,
		Channel:    d.Channel,
		Trigger:    d.Trigger,
		ContentRef: d.ContentRef,
		CreatedAt:  now,
	}
}
