package matcher

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundgame-labs/outreach-engine/internal/model"
)

func TestDefaultPolicyOrderAndValidity(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())

	want := []model.MatchMethod{
		model.MatchEmailExact,
		model.MatchPhoneExact,
		model.MatchSocialHandle,
		model.MatchNamePostal,
		model.MatchNamePhone4,
	}
	require.Len(t, p.Strategies, len(want))
	for i, method := range want {
		assert.Equal(t, method, p.Strategies[i].Method)
		assert.GreaterOrEqual(t, p.Strategies[i].Confidence, p.Strategies[i].Floor)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matcher.yaml")
	content := `matcher:
  strategies:
    - method: email_exact
      floor: 0.90
    - method: name_postal
      confidence: 0.80
      floor: 0.75
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)

	// Overridden values applied, defaults retained elsewhere, order unchanged.
	assert.Equal(t, model.MatchEmailExact, p.Strategies[0].Method)
	assert.InDelta(t, 0.90, p.Strategies[0].Floor, 1e-9)
	assert.InDelta(t, 0.97, p.Strategies[0].Confidence, 1e-9)

	assert.Equal(t, model.MatchNamePostal, p.Strategies[3].Method)
	assert.InDelta(t, 0.80, p.Strategies[3].Confidence, 1e-9)
	assert.InDelta(t, 0.75, p.Strategies[3].Floor, 1e-9)

	assert.InDelta(t, 0.93, p.Strategies[1].Confidence, 1e-9)
}

func TestLoadPolicyRejectsImpossibleStrategy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matcher.yaml")
	content := `matcher:
  strategies:
    - method: phone_exact
      confidence: 0.50
      floor: 0.90
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadPolicy(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below its floor")
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
