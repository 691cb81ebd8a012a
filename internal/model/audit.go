package model

import "time"

// AuditEntry records one administrative mutation. Entries are append-only.
type AuditEntry struct {
	ID      string         `json:"id"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"`  // e.g. "review.approve", "allocation.trigger"
	Subject string         `json:"subject"` // entity id the action touched
	Detail  map[string]any `json:"detail,omitempty"`
	At      time.Time      `json:"at"`
}
