package userstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

func newStore(t *testing.T) *DirStore {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func sampleProfile(userID string) *domain.UserProfile {
	return &domain.UserProfile{
		UserID:             userID,
		FireflyAccessToken: "ff-token",
		WebhookURL:         "https://hooks.example.com/abc",
		WebhookSecret:      "s1",
		Reports: domain.ReportSchedule{
			Daily: domain.KindSchedule{Enabled: true, At: "23:00"},
		},
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(sampleProfile("dad")))

	got, err := s.Get("dad")
	require.NoError(t, err)
	assert.Equal(t, "dad", got.UserID)
	assert.Equal(t, "ff-token", got.FireflyAccessToken)
	assert.True(t, got.Reports.Daily.Enabled)
	assert.Equal(t, "zh", got.Language, "language defaults on validate")
	assert.True(t, got.NotificationEnabled, "older documents default to enabled")
}

func TestGetUnknownUser(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestGetMalformedDocumentIsConfigError(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("{not json"), 0o600))

	_, err := s.Get("bad")
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "bad", cfgErr.UserID)
}

func TestGetInvalidScheduleIsConfigError(t *testing.T) {
	s := newStore(t)
	doc := `{"firefly_access_token":"t","reports":{"weekly":{"enabled":true,"at":"09:00","weekday":9}}}`
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "u1.json"), []byte(doc), 0o600))

	_, err := s.Get("u1")
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
}

func TestGetStripsBearerPrefix(t *testing.T) {
	s := newStore(t)
	doc := `{"firefly_access_token":"Bearer abc123"}`
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "u2.json"), []byte(doc), 0o600))

	got, err := s.Get("u2")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.FireflyAccessToken)
}

func TestListSorted(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(sampleProfile("mom")))
	require.NoError(t, s.Save(sampleProfile("dad")))

	ids, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"dad", "mom"}, ids)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(sampleProfile("dad")))
	require.NoError(t, s.Delete("dad"))
	_, err := s.Get("dad")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	// Deleting again is fine.
	assert.NoError(t, s.Delete("dad"))
}

func TestPathTraversalRejected(t *testing.T) {
	s := newStore(t)
	_, err := s.Get("../etc/passwd")
	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
