package playbackmodule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer("test-secret", "streamgate-test",
		4*time.Hour+15*time.Minute, 60*time.Second, "https://drm.example.com")
}

func TestIssueTokens(t *testing.T) {
	issuer := newTestIssuer()

	issued, err := issuer.Issue("film-1", "user-1", "device-1", DefaultProtectionSystems)
	require.NoError(t, err)

	require.Len(t, issued.Tokens, len(DefaultProtectionSystems))
	require.Len(t, issued.LicenseURLs, len(DefaultProtectionSystems))

	for _, system := range DefaultProtectionSystems {
		token, ok := issued.Tokens[system.Name]
		require.True(t, ok, "missing token for %s", system.Name)
		assert.NotEmpty(t, token)

		url := issued.LicenseURLs[system.Name]
		assert.Contains(t, url, "https://drm.example.com/license/")
		assert.Contains(t, url, "film-1")

		claims, err := issuer.Validate(token, "film-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.UserID)
		assert.Equal(t, "device-1", claims.DeviceID)
		assert.Equal(t, system.Name, claims.System)
	}
}

func TestValidateRejectsWrongFilm(t *testing.T) {
	issuer := newTestIssuer()

	issued, err := issuer.Issue("film-1", "user-1", "device-1", DefaultProtectionSystems)
	require.NoError(t, err)

	_, err = issuer.Validate(issued.Tokens[SystemWidevine.Name], "film-2")
	assert.ErrorIs(t, err, ErrTokenForbidden)
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	issuer := newTestIssuer()

	issued, err := issuer.Issue("film-1", "user-1", "device-1", DefaultProtectionSystems)
	require.NoError(t, err)

	token := issued.Tokens[SystemWidevine.Name]
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	_, err = issuer.Validate(tampered, "film-1")
	assert.ErrorIs(t, err, ErrTokenUnauthorized)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := newTestIssuer()
	other := NewTokenIssuer("other-secret", "streamgate-test",
		time.Hour, time.Minute, "https://drm.example.com")

	issued, err := other.Issue("film-1", "user-1", "device-1", DefaultProtectionSystems)
	require.NoError(t, err)

	_, err = issuer.Validate(issued.Tokens[SystemWidevine.Name], "film-1")
	assert.ErrorIs(t, err, ErrTokenUnauthorized)
}

func TestValidateExpiryAndLeeway(t *testing.T) {
	issuer := newTestIssuer()
	issuedAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issuedAt }

	issued, err := issuer.Issue("film-1", "user-1", "device-1", DefaultProtectionSystems)
	require.NoError(t, err)
	token := issued.Tokens[SystemWidevine.Name]

	t.Run("valid within lifetime", func(t *testing.T) {
		issuer.now = func() time.Time { return issuedAt.Add(4 * time.Hour) }
		_, err := issuer.Validate(token, "film-1")
		assert.NoError(t, err)
	})

	t.Run("leeway tolerates slight clock skew", func(t *testing.T) {
		issuer.now = func() time.Time { return issued.ExpiresAt.Add(30 * time.Second) }
		_, err := issuer.Validate(token, "film-1")
		assert.NoError(t, err)
	})

	t.Run("rejected past the leeway", func(t *testing.T) {
		issuer.now = func() time.Time { return issued.ExpiresAt.Add(2 * time.Minute) }
		_, err := issuer.Validate(token, "film-1")
		assert.ErrorIs(t, err, ErrTokenUnauthorized)
	})
}

func TestSystemByName(t *testing.T) {
	system, ok := SystemByName("widevine")
	require.True(t, ok)
	assert.Equal(t, SystemWidevine, system)

	_, ok = SystemByName("bogus-drm")
	assert.False(t, ok)
}
