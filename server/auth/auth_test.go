package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndAuthenticate(t *testing.T) {
	secret := []byte("test-secret")

	token, err := GenerateAccessToken("acme", "user-1", time.Now().Add(time.Hour), secret)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Authenticate(token, secret)
	require.NoError(t, err)
	require.Equal(t, "acme", claims.TenantID)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, Issuer, claims.Issuer)
}

func TestAuthenticateRejects(t *testing.T) {
	secret := []byte("test-secret")

	t.Run("EmptyToken", func(t *testing.T) {
		_, err := Authenticate("", secret)
		require.Error(t, err)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := GenerateAccessToken("acme", "user-1", time.Now().Add(time.Hour), secret)
		require.NoError(t, err)
		_, err = Authenticate(token, []byte("other-secret"))
		require.Error(t, err)
	})

	t.Run("Expired", func(t *testing.T) {
		token, err := GenerateAccessToken("acme", "user-1", time.Now().Add(-time.Hour), secret)
		require.NoError(t, err)
		_, err = Authenticate(token, secret)
		require.Error(t, err)
	})

	t.Run("MissingTenant", func(t *testing.T) {
		token, err := GenerateAccessToken("", "user-1", time.Now().Add(time.Hour), secret)
		require.NoError(t, err)
		_, err = Authenticate(token, secret)
		require.Error(t, err)
	})

	t.Run("WrongSigningMethod", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &ClaimsMessage{
			TenantID: "acme",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:   Issuer,
				Audience: jwt.ClaimStrings{AccessTokenAudienceName},
			},
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = Authenticate(token, secret)
		require.Error(t, err)
	})
}
