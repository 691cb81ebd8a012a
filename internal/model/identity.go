package model

import (
	"strings"
	"time"
)

// IdentityKind classifies a master identity.
type IdentityKind string

const (
	IdentityDonor     IdentityKind = "donor"
	IdentityVolunteer IdentityKind = "volunteer"
	IdentityContact   IdentityKind = "contact"
)

// VerifiedValue is a contact field value with a verification flag. Matcher
// strategies that require verification only consider entries with
// Verified=true.
type VerifiedValue struct {
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
}

// MasterIdentity is the canonical record for a person. It is referenced by
// ContactRecord match outcomes and by ActionRequests, and is never mutated
// by the matcher.
type MasterIdentity struct {
	ID            string            `json:"id"`
	Kind          IdentityKind      `json:"kind"`
	FirstName     string            `json:"first_name"`
	LastName      string            `json:"last_name"`
	Emails        []VerifiedValue   `json:"emails,omitempty"`
	Phones        []VerifiedValue   `json:"phones,omitempty"`
	SocialHandles map[string]string `json:"social_handles,omitempty"`
	PostalCode    string            `json:"postal_code,omitempty"`

	// Attributes carries signal-model inputs (giving history, engagement
	// scores, persona tags) keyed by attribute name.
	Attributes map[string]any `json:"attributes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NameKey builds the normalized first|last key on which the name-based
// matcher strategies index identities.
func NameKey(first, last string) string {
	f := strings.ToLower(strings.TrimSpace(first))
	l := strings.ToLower(strings.TrimSpace(last))
	if f == "" && l == "" {
		return ""
	}
	return f + "|" + l
}

// NameKey returns the identity's normalized name key.
func (m MasterIdentity) NameKey() string {
	return NameKey(m.FirstName, m.LastName)
}

// PrimaryEmail returns the first verified email, or empty.
func (m MasterIdentity) PrimaryEmail() string {
	for _, e := range m.Emails {
		if e.Verified {
			return e.Value
		}
	}
	return ""
}
