package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintStable(t *testing.T) {
	a := ContactRecord{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.org",
		Phone:      "(555) 123-4567",
		PostalCode: "30301",
		Source:     Source{Name: "fec_import", BatchID: "b-1"},
	}
	b := a
	b.Email = "  ADA@example.org "
	b.Phone = "555-123-4567"
	b.Source.BatchID = "b-2" // batch id is not identifying

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintDistinguishesSource(t *testing.T) {
	a := ContactRecord{Email: "ada@example.org", Source: Source{Name: "fec_import"}}
	b := ContactRecord{Email: "ada@example.org", Source: Source{Name: "voter_file"}}
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestFingerprintHandleOrderIndependent(t *testing.T) {
	a := ContactRecord{SocialHandles: map[string]string{"x": "ada", "bluesky": "ada.bsky"}}
	b := ContactRecord{SocialHandles: map[string]string{"bluesky": "ada.bsky", "x": "ada"}}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}
