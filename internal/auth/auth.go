// Package auth resolves a bearer credential to a staff identity.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned when no configured method accepts the credential
var ErrUnauthenticated = errors.New("invalid or expired credential")

// Method names how a caller authenticated
type Method string

const (
	MethodStaffPassword Method = "staff_password"
	MethodLegacyJWT     Method = "legacy_jwt"
	MethodOIDC          Method = "oidc"
)

// Identity is the caller behind a bearer credential
type Identity struct {
	UserID string
	Email  string
	Name   string
	Method Method
}

// LegacyClaims are the claims of HMAC-signed staff tokens
type LegacyClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Authenticator checks the staff password, then OIDC tokens, then legacy HMAC tokens
type Authenticator struct {
	staffPassword string
	jwtSecret     string
	verifier      TokenVerifier
}

func NewAuthenticator(staffPassword, jwtSecret string, verifier TokenVerifier) *Authenticator {
	return &Authenticator{
		staffPassword: staffPassword,
		jwtSecret:     jwtSecret,
		verifier:      verifier,
	}
}

// Configured reports whether at least one method can succeed
func (a *Authenticator) Configured() bool {
	return a.staffPassword != "" || a.jwtSecret != "" || a.verifier != nil
}

func (a *Authenticator) Authenticate(credential string) (*Identity, error) {
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	if a.staffPassword != "" &&
		subtle.ConstantTimeCompare([]byte(credential), []byte(a.staffPassword)) == 1 {
		return &Identity{UserID: "staff", Name: "Staff", Method: MethodStaffPassword}, nil
	}

	if a.verifier != nil {
		if claims, err := a.verifier.Validate(credential); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name, Method: MethodOIDC}, nil
		}
	}

	if a.jwtSecret != "" {
		if claims, err := ValidateLegacyToken(credential, a.jwtSecret); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Method: MethodLegacyJWT}, nil
		}
	}

	return nil, ErrUnauthenticated
}

// ValidateLegacyToken validates a token using HMAC signing
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// IssueLegacyToken signs an HMAC token for a staff member
func IssueLegacyToken(secret, userID, email string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("jwt secret is not configured")
	}

	now := time.Now()
	claims := LegacyClaims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
