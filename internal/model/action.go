package model

import "time"

// Channel is an outreach delivery channel. Delivery itself is handled by
// external dispatchers; the engine only decides and records.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelVoice Channel = "voice"
	ChannelVideo Channel = "video"
)

// TriggerType names the rule-table entry that raised an ActionRequest.
type TriggerType string

// ActionRequest is a proposed outreach action. It is transient: created per
// trigger evaluation, scored, decided, and then either discarded or
// converted into a Decision record.
type ActionRequest struct {
	ID          string      `json:"id"`
	IdentityID  string      `json:"identity_id"`
	CampaignID  string      `json:"campaign_id"`
	CandidateID string      `json:"candidate_id,omitempty"`
	Scope       ScopePath   `json:"scope"`
	Channel     Channel     `json:"channel"`
	Trigger     TriggerType `json:"trigger"`
	ContentRef  string      `json:"content_ref,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`

	// ExpiresAt bounds the DEFER horizon: a deferred request not
	// re-evaluated by this time is expired, never silently retried.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the request's defer horizon has passed.
func (a ActionRequest) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && now.After(a.ExpiresAt)
}
