package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

const (
	// Issuer is the issuer of the jwt token.
	Issuer = "cachestream"
	// KeyID is the version of the signing key.
	KeyID = "v1"
	// AccessTokenAudienceName is the audience name of the access token.
	AccessTokenAudienceName = "user.access-token"
	// AccessTokenDuration is the lifetime of the access token.
	AccessTokenDuration = 7 * 24 * time.Hour
)

// ClaimsMessage is the claims message embedded in the jwt token.
type ClaimsMessage struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// GenerateAccessToken generates an access token scoped to the given tenant.
func GenerateAccessToken(tenantID, userID string, expirationTime time.Time, secret []byte) (string, error) {
	registeredClaims := jwt.RegisteredClaims{
		Issuer:   Issuer,
		Audience: jwt.ClaimStrings{AccessTokenAudienceName},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Subject:  userID,
	}
	if !expirationTime.IsZero() {
		registeredClaims.ExpiresAt = jwt.NewNumericDate(expirationTime)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &ClaimsMessage{
		TenantID:         tenantID,
		UserID:           userID,
		RegisteredClaims: registeredClaims,
	})
	token.Header["kid"] = KeyID

	return token.SignedString(secret)
}

// Authenticate parses and validates the access token, returning its claims.
func Authenticate(tokenString string, secret []byte) (*ClaimsMessage, error) {
	if tokenString == "" {
		return nil, errors.New("access token not found")
	}

	claims := &ClaimsMessage{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		if kid, ok := t.Header["kid"].(string); !ok || kid != KeyID {
			return nil, errors.Errorf("unexpected key id: %v", t.Header["kid"])
		}
		return secret, nil
	}, jwt.WithAudience(AccessTokenAudienceName), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, errors.Wrap(err, "invalid or expired access token")
	}
	if claims.TenantID == "" {
		return nil, errors.New("access token has no tenant")
	}
	return claims, nil
}
