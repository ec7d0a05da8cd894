package vendors

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/rules"
	"sfex/pkg/errors"
)

const profileFixture = `
vendors:
  - id: acme
    name: Acme Corp
    active: true
    file:
      format: csv
      delimiter: ","
    sftp:
      host: sftp.acme.example
      port: 22
      user: feed
      remote_directory: /outbox
      poll_interval_seconds: 60
    notification:
      emails:
        - ops@acme.example
    rules:
      - field: Id
        kind: required
      - field: Amount
        kind: range
        min: 0
        max: 1000
  - id: globex
    name: Globex
    active: true
    file:
      format: json
`

func writeProfiles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vendors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadStore(t *testing.T) {
	store, err := LoadStore(writeProfiles(t, profileFixture))
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	profile, err := store.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", profile.Name)
	assert.Equal(t, "csv", profile.File.Format)
	assert.Equal(t, []string{"ops@acme.example"}, profile.Notification.Emails)
	assert.True(t, profile.PollEnabled())

	ruleSet, err := store.RuleSet("acme")
	require.NoError(t, err)
	assert.Equal(t, 2, ruleSet.Len())

	// No SFTP host, nothing to poll.
	globex, err := store.Get("globex")
	require.NoError(t, err)
	assert.False(t, globex.PollEnabled())
}

func TestStoreUnknownVendor(t *testing.T) {
	store, err := LoadStore(writeProfiles(t, profileFixture))
	require.NoError(t, err)

	_, err = store.Get("unknown")
	assert.ErrorIs(t, err, errors.ErrVendorNotFound)

	_, err = store.RuleSet("unknown")
	assert.ErrorIs(t, err, errors.ErrVendorNotFound)
	assert.True(t, errors.IsFatal(err))
}

func TestNewStoreRejectsDuplicateIDs(t *testing.T) {
	_, err := NewStore([]Profile{{ID: "acme"}, {ID: "acme"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate vendor id")
}

func TestNewStoreRejectsMissingID(t *testing.T) {
	_, err := NewStore([]Profile{{Name: "nameless"}})
	require.Error(t, err)
}

func TestNewStoreRejectsInvalidRules(t *testing.T) {
	_, err := NewStore([]Profile{{
		ID:    "acme",
		Rules: []rules.Config{{Field: "Amount", Kind: "range"}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acme")
}

func TestNewStoreDefaultsFormat(t *testing.T) {
	store, err := NewStore([]Profile{{ID: "acme"}})
	require.NoError(t, err)

	profile, err := store.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "csv", profile.File.Format)
}

func TestMinPollInterval(t *testing.T) {
	store, err := NewStore([]Profile{
		{ID: "a", Active: true, SFTP: SFTPSettings{Host: "a.example", PollIntervalSeconds: 120}},
		{ID: "b", Active: true, SFTP: SFTPSettings{Host: "b.example", PollIntervalSeconds: 30}},
		{ID: "c", Active: false, SFTP: SFTPSettings{Host: "c.example", PollIntervalSeconds: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, store.MinPollInterval())
}

func TestMinPollIntervalDefault(t *testing.T) {
	store, err := NewStore([]Profile{{ID: "a"}})
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, store.MinPollInterval())
}
