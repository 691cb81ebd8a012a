package matcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

// IdentityDirectory is the slice of the store the matcher reads from.
type IdentityDirectory interface {
	FindIdentities(ctx context.Context, q store.IdentityQuery) ([]model.MasterIdentity, error)
}

// Matcher walks the strategy waterfall for a contact record. Strategies run
// in policy order and the first one clearing its confidence floor wins; later
// strategies are never consulted for a matched record.
type Matcher struct {
	directory IdentityDirectory
	policy    Policy
	now       func() time.Time
}

// New creates a Matcher. A zero-value policy falls back to DefaultPolicy.
func New(directory IdentityDirectory, policy Policy) *Matcher {
	if len(policy.Strategies) == 0 {
		policy = DefaultPolicy()
	}
	return &Matcher{
		directory: directory,
		policy:    policy,
		now:       time.Now,
	}
}

// WithNow fixes the clock for testing.
func (m *Matcher) WithNow(now func() time.Time) *Matcher {
	m.now = now
	return m
}

// Resolve runs the waterfall for one contact record and returns the match
// outcome. An exhausted waterfall returns a terminal Unmatched outcome, not
// an error; a non-nil error means the directory was unreachable and the
// record should stay queued for a later attempt.
func (m *Matcher) Resolve(ctx context.Context, contact model.ContactRecord) (*model.MatchOutcome, error) {
	for _, strategy := range m.policy.Strategies {
		query, ok := buildQuery(strategy.Method, contact)
		if !ok {
			continue // record lacks the fields this strategy needs
		}
		query.Limit = ambiguityLimit

		candidates, err := m.directory.FindIdentities(ctx, query)
		if err != nil {
			return nil, eris.Wrapf(err, "matcher: %s lookup", strategy.Method)
		}
		if len(candidates) == 0 {
			continue
		}

		confidence := strategy.Confidence
		if len(candidates) > 1 {
			// Ambiguous hit: split confidence across candidates so a
			// multi-way tie cannot clear a precise strategy's floor.
			confidence = strategy.Confidence / float64(len(candidates))
		}
		if confidence < strategy.Floor {
			zap.L().Debug("match strategy below floor",
				zap.String("contact_id", contact.ID),
				zap.String("method", string(strategy.Method)),
				zap.Int("candidates", len(candidates)),
				zap.Float64("confidence", confidence),
				zap.Float64("floor", strategy.Floor))
			continue
		}

		return &model.MatchOutcome{
			IdentityID: candidates[0].ID,
			Confidence: confidence,
			Method:     strategy.Method,
			MatchedAt:  m.now(),
		}, nil
	}

	// Every strategy passed or fell below its floor: terminal negative.
	return &model.MatchOutcome{
		Unmatched: true,
		MatchedAt: m.now(),
	}, nil
}

// ambiguityLimit bounds candidate fan-out per lookup. Anything at or above
// this many hits is hopeless for the precise strategies anyway.
const ambiguityLimit = 10

// buildQuery translates a strategy into the directory query it needs, or
// reports that the contact is missing the required fields.
func buildQuery(method model.MatchMethod, c model.ContactRecord) (store.IdentityQuery, bool) {
	switch method {
	case model.MatchEmailExact:
		email := strings.ToLower(strings.TrimSpace(c.Email))
		if email == "" {
			return store.IdentityQuery{}, false
		}
		return store.IdentityQuery{Email: email, VerifiedOnly: true}, true

	case model.MatchPhoneExact:
		digits := digitsOf(c.Phone)
		if len(digits) < 7 {
			return store.IdentityQuery{}, false
		}
		return store.IdentityQuery{PhoneDigits: digits, VerifiedOnly: true}, true

	case model.MatchSocialHandle:
		// Platforms in sorted order so a contact with several handles always
		// produces the same query.
		platforms := make([]string, 0, len(c.SocialHandles))
		for platform := range c.SocialHandles {
			platforms = append(platforms, platform)
		}
		sort.Strings(platforms)
		for _, platform := range platforms {
			handle := strings.TrimPrefix(strings.TrimSpace(c.SocialHandles[platform]), "@")
			if platform != "" && handle != "" {
				return store.IdentityQuery{Platform: platform, Handle: handle}, true
			}
		}
		return store.IdentityQuery{}, false

	case model.MatchNamePostal:
		key := model.NameKey(c.FirstName, c.LastName)
		postal := strings.ToLower(strings.TrimSpace(c.PostalCode))
		if key == "" || postal == "" {
			return store.IdentityQuery{}, false
		}
		return store.IdentityQuery{NameKey: key, PostalCode: postal}, true

	case model.MatchNamePhone4:
		key := model.NameKey(c.FirstName, c.LastName)
		digits := digitsOf(c.Phone)
		if key == "" || len(digits) < 4 {
			return store.IdentityQuery{}, false
		}
		return store.IdentityQuery{NameKey: key, PhoneLast4: digits[len(digits)-4:]}, true
	}

	return store.IdentityQuery{}, false
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
