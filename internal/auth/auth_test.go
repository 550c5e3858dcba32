package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier struct {
	token string
}

func (s stubVerifier) Validate(tokenString string) (*Claims, error) {
	if tokenString != s.token {
		return nil, errors.New("bad token")
	}
	return &Claims{UserID: "oidc-user", Email: "o@city.gov", Name: "Olive"}, nil
}

func TestAuthenticate_StaffPassword(t *testing.T) {
	a := NewAuthenticator("s3cret", "", nil)

	id, err := a.Authenticate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, MethodStaffPassword, id.Method)

	_, err = a.Authenticate("s3cre")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = a.Authenticate("")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_LegacyJWT(t *testing.T) {
	a := NewAuthenticator("", "hmac-key", nil)

	token, err := IssueLegacyToken("hmac-key", "u1", "u1@city.gov", time.Hour)
	require.NoError(t, err)

	id, err := a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, MethodLegacyJWT, id.Method)

	expired, err := IssueLegacyToken("hmac-key", "u1", "", -time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(expired)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := IssueLegacyToken("other-key", "u1", "", time.Hour)
	require.NoError(t, err)
	_, err = a.Authenticate(forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestAuthenticate_OIDCBeforeLegacy(t *testing.T) {
	a := NewAuthenticator("", "hmac-key", stubVerifier{token: "oidc-token"})

	id, err := a.Authenticate("oidc-token")
	require.NoError(t, err)
	assert.Equal(t, MethodOIDC, id.Method)
	assert.Equal(t, "Olive", id.Name)

	token, _ := IssueLegacyToken("hmac-key", "u2", "", time.Hour)
	id, err = a.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, MethodLegacyJWT, id.Method)
}

func TestIssueLegacyToken_RequiresSecret(t *testing.T) {
	_, err := IssueLegacyToken("", "u", "", time.Hour)
	assert.Error(t, err)
	assert.False(t, NewAuthenticator("", "", nil).Configured())
}
