package matcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
	"github.com/groundgame-labs/outreach-engine/internal/store"
)

// fakeDirectory answers lookups from a canned table keyed by query shape.
type fakeDirectory struct {
	byEmail  map[string][]model.MasterIdentity
	byPhone  map[string][]model.MasterIdentity
	byHandle map[string][]model.MasterIdentity
	byName   map[string][]model.MasterIdentity
	err      error

	mu      sync.Mutex
	queries []store.IdentityQuery
}

func (f *fakeDirectory) FindIdentities(_ context.Context, q store.IdentityQuery) ([]model.MasterIdentity, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case q.Email != "":
		return f.byEmail[q.Email], nil
	case q.PhoneDigits != "":
		return f.byPhone[q.PhoneDigits], nil
	case q.Handle != "":
		return f.byHandle[q.Platform+"/"+q.Handle], nil
	case q.NameKey != "":
		return f.byName[q.NameKey], nil
	}
	return nil, nil
}

func identity(id string) model.MasterIdentity {
	return model.MasterIdentity{ID: id, Kind: model.IdentityContact}
}

func TestResolveEmailExact(t *testing.T) {
	dir := &fakeDirectory{
		byEmail: map[string][]model.MasterIdentity{
			"ada@example.org": {identity("id-1")},
		},
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := New(dir, Policy{}).WithNow(func() time.Time { return now })

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:    "c-1",
		Email: "Ada@Example.org ",
		Phone: "+1 (555) 867-5309",
	})
	require.NoError(t, err)
	require.NotNil(t, outcome)

	assert.False(t, outcome.Unmatched)
	assert.Equal(t, "id-1", outcome.IdentityID)
	assert.Equal(t, model.MatchEmailExact, outcome.Method)
	assert.InDelta(t, 0.97, outcome.Confidence, 1e-9)
	assert.Equal(t, now, outcome.MatchedAt)

	// First winner stops the waterfall: only the email lookup ran.
	require.Len(t, dir.queries, 1)
	assert.True(t, dir.queries[0].VerifiedOnly)
}

func TestResolveFallsThroughToPhone(t *testing.T) {
	dir := &fakeDirectory{
		byPhone: map[string][]model.MasterIdentity{
			"15558675309": {identity("id-7")},
		},
	}
	m := New(dir, Policy{})

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:    "c-2",
		Email: "nobody@example.org",
		Phone: "1-555-867-5309",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchPhoneExact, outcome.Method)
	assert.Equal(t, "id-7", outcome.IdentityID)
	assert.InDelta(t, 0.93, outcome.Confidence, 1e-9)
}

func TestResolveSkipsStrategiesMissingFields(t *testing.T) {
	dir := &fakeDirectory{
		byName: map[string][]model.MasterIdentity{
			"ada|lovelace": {identity("id-3")},
		},
	}
	m := New(dir, Policy{})

	// No email, no phone, no handles: the first viable strategy is
	// name+postal.
	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:         "c-3",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		PostalCode: "20001",
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchNamePostal, outcome.Method)
	require.Len(t, dir.queries, 1)
	assert.Equal(t, "ada|lovelace", dir.queries[0].NameKey)
	assert.Equal(t, "20001", dir.queries[0].PostalCode)
}

func TestResolveAmbiguousHitFallsBelowFloor(t *testing.T) {
	dir := &fakeDirectory{
		byEmail: map[string][]model.MasterIdentity{
			// A shared inbox matching two identities cannot clear the
			// email_exact floor.
			"office@example.org": {identity("id-a"), identity("id-b")},
		},
	}
	m := New(dir, Policy{})

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:    "c-4",
		Email: "office@example.org",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Unmatched)
	assert.Empty(t, outcome.IdentityID)
}

func TestResolveNeverBelowFloor(t *testing.T) {
	policy := DefaultPolicy()
	floors := make(map[model.MatchMethod]float64, len(policy.Strategies))
	for _, sc := range policy.Strategies {
		floors[sc.Method] = sc.Floor
	}

	dir := &fakeDirectory{
		byEmail:  map[string][]model.MasterIdentity{"a@b.c": {identity("1")}},
		byPhone:  map[string][]model.MasterIdentity{"5558675309": {identity("2")}},
		byHandle: map[string][]model.MasterIdentity{"x/ada": {identity("3")}},
		byName:   map[string][]model.MasterIdentity{"ada|lovelace": {identity("4")}},
	}
	m := New(dir, policy)

	records := []model.ContactRecord{
		{ID: "r1", Email: "a@b.c"},
		{ID: "r2", Phone: "555-867-5309"},
		{ID: "r3", SocialHandles: map[string]string{"x": "@ada"}},
		{ID: "r4", FirstName: "Ada", LastName: "Lovelace", PostalCode: "20001"},
		{ID: "r5", FirstName: "Ada", LastName: "Lovelace", Phone: "5309"},
	}
	for _, rec := range records {
		outcome, err := m.Resolve(context.Background(), rec)
		require.NoError(t, err)
		if outcome.Unmatched {
			continue
		}
		assert.GreaterOrEqual(t, outcome.Confidence, floors[outcome.Method],
			"record %s matched via %s below floor", rec.ID, outcome.Method)
	}
}

func TestResolveUnmatchedIsTerminal(t *testing.T) {
	m := New(&fakeDirectory{}, Policy{})

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:         "c-5",
		FirstName:  "No",
		LastName:   "Body",
		Email:      "nobody@example.org",
		PostalCode: "20001",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Unmatched)
	assert.False(t, outcome.MatchedAt.IsZero())
}

func TestResolveDirectoryErrorPropagates(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("connection refused")}
	m := New(dir, Policy{})

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:    "c-6",
		Email: "ada@example.org",
	})
	require.Error(t, err)
	assert.Nil(t, outcome)
}

func TestResolveHandleStripsAtSign(t *testing.T) {
	dir := &fakeDirectory{
		byHandle: map[string][]model.MasterIdentity{
			"bluesky/ada": {identity("id-9")},
		},
	}
	m := New(dir, Policy{})

	outcome, err := m.Resolve(context.Background(), model.ContactRecord{
		ID:            "c-7",
		SocialHandles: map[string]string{"bluesky": "@ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.MatchSocialHandle, outcome.Method)
	assert.Equal(t, "id-9", outcome.IdentityID)
}

func TestResolveHandlePlatformDeterministic(t *testing.T) {
	dir := &fakeDirectory{
		byHandle: map[string][]model.MasterIdentity{
			"bluesky/ada": {identity("id-bsky")},
			"x/ada":       {identity("id-x")},
		},
	}
	m := New(dir, Policy{})

	// Several platforms carry a handle; the lookup always goes to the first
	// platform in sorted order, never whichever map iteration yields.
	for i := 0; i < 20; i++ {
		outcome, err := m.Resolve(context.Background(), model.ContactRecord{
			ID:            "c-8",
			SocialHandles: map[string]string{"x": "@ada", "bluesky": "@ada", "mastodon": "@ada"},
		})
		require.NoError(t, err)
		assert.Equal(t, "id-bsky", outcome.IdentityID)
	}
}
