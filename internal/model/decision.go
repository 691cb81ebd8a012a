package model

import "time"

// DecisionValue is the admission outcome for an ActionRequest.
type DecisionValue string

const (
	DecisionGo           DecisionValue = "go"
	DecisionNoGo         DecisionValue = "no_go"
	DecisionDefer        DecisionValue = "defer"
	DecisionManualReview DecisionValue = "manual_review"
)

// ReasonCode is a machine-readable explanation attached to every decision.
// Constraint violations are decisions with a reason, never faults.
type ReasonCode string

const (
	ReasonAdmitted            ReasonCode = "admitted"
	ReasonBelowThreshold      ReasonCode = "below_threshold"
	ReasonBudgetImplausible   ReasonCode = "budget_implausible"
	ReasonInsufficientBudget  ReasonCode = "insufficient_budget"
	ReasonCooldownActive      ReasonCode = "cooldown_active"
	ReasonAllowanceExhausted  ReasonCode = "allowance_exhausted"
	ReasonOutsideSendWindow   ReasonCode = "outside_send_window"
	ReasonDeferHorizonExpired ReasonCode = "defer_horizon_expired"
	ReasonLowConfidence       ReasonCode = "low_confidence"
	ReasonSensitiveCategory   ReasonCode = "sensitive_category"
	ReasonSignalExhausted     ReasonCode = "signal_retries_exhausted"
	ReasonReviewApproved      ReasonCode = "review_approved"
	ReasonReviewRejected      ReasonCode = "review_rejected"
)

// ExecutionStatus tracks a GO decision through dispatch.
type ExecutionStatus string

const (
	ExecutionNone     ExecutionStatus = "none"     // non-GO decisions
	ExecutionPending  ExecutionStatus = "pending"  // ledger debited, dispatch not yet acked
	ExecutionExecuted ExecutionStatus = "executed" // dispatch acked
	ExecutionFailed   ExecutionStatus = "failed"   // dispatch failed, debit credited back
	ExecutionExpired  ExecutionStatus = "expired"  // deferred past horizon
)

// Decision is the durable record of an admission decision. It is immutable
// once recorded; execution outcome fields are appended afterwards, never
// rewritten.
type Decision struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id"`
	IdentityID string          `json:"identity_id"`
	CampaignID string          `json:"campaign_id"`
	Scope      ScopePath       `json:"scope"`
	Channel    Channel         `json:"channel"`
	Trigger    TriggerType     `json:"trigger"`
	ContentRef string          `json:"content_ref,omitempty"`
	Value      DecisionValue   `json:"value"`
	Reason     ReasonCode      `json:"reason"`
	Scores     ModelScoreSet   `json:"scores"`
	Execution  ExecutionStatus `json:"execution"`
	DecidedAt  time.Time       `json:"decided_at"`

	// Appended after execution.
	ActualCost *float64   `json:"actual_cost,omitempty"`
	Succeeded  *bool      `json:"succeeded,omitempty"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}
