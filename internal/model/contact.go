package model

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// EnrichmentState tracks a harvested contact through the resolution pipeline.
type EnrichmentState string

const (
	EnrichmentPending    EnrichmentState = "pending"
	EnrichmentQueued     EnrichmentState = "queued"
	EnrichmentProcessing EnrichmentState = "processing"
	EnrichmentCompleted  EnrichmentState = "completed"
	EnrichmentFailed     EnrichmentState = "failed"
)

// MatchMethod identifies which waterfall strategy produced a match.
type MatchMethod string

const (
	MatchEmailExact   MatchMethod = "email_exact"
	MatchPhoneExact   MatchMethod = "phone_exact"
	MatchSocialHandle MatchMethod = "social_handle"
	MatchNamePostal   MatchMethod = "name_postal"
	MatchNamePhone4   MatchMethod = "name_phone4"
	MatchManual       MatchMethod = "manual"
)

// Source describes where a harvested contact came from.
type Source struct {
	Name    string `json:"name"`
	BatchID string `json:"batch_id"`
}

// MatchOutcome is the mutable resolution result written back onto a
// ContactRecord by the matcher. A nil outcome means resolution has not
// completed; Unmatched=true is a terminal negative, not an error state.
type MatchOutcome struct {
	IdentityID    string      `json:"identity_id,omitempty"`
	Confidence    float64     `json:"confidence"`
	Method        MatchMethod `json:"method,omitempty"`
	Unmatched     bool        `json:"unmatched,omitempty"`
	HumanVerified bool        `json:"human_verified,omitempty"`
	MatchedAt     time.Time   `json:"matched_at"`
}

// ContactRecord is a harvested, unresolved contact. It is owned by the
// matcher until matched or marked unmatchable; a single writer mutates any
// given record.
type ContactRecord struct {
	ID            string            `json:"id"`
	FirstName     string            `json:"first_name,omitempty"`
	LastName      string            `json:"last_name,omitempty"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
	Street        string            `json:"street,omitempty"`
	City          string            `json:"city,omitempty"`
	State         string            `json:"state,omitempty"`
	PostalCode    string            `json:"postal_code,omitempty"`
	SocialHandles map[string]string `json:"social_handles,omitempty"` // platform -> handle
	Source        Source            `json:"source"`
	Enrichment    EnrichmentState   `json:"enrichment"`
	Match         *MatchOutcome     `json:"match,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Fingerprint returns a stable digest of the record's identifying fields and
// source. Re-submitting an identical record produces the same fingerprint,
// which the store uses to make batch ingestion idempotent.
func (c ContactRecord) Fingerprint() string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(c.FirstName)),
		strings.ToLower(strings.TrimSpace(c.LastName)),
		strings.ToLower(strings.TrimSpace(c.Email)),
		digitsOnly(c.Phone),
		strings.ToLower(strings.TrimSpace(c.PostalCode)),
		c.Source.Name,
	}
	handles := make([]string, 0, len(c.SocialHandles))
	for platform, handle := range c.SocialHandles {
		handles = append(handles, platform+"="+strings.ToLower(handle))
	}
	sort.Strings(handles)
	parts = append(parts, handles...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
