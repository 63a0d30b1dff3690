// Package auth resolves the already-authenticated caller identity consumed
// by the sync layer. Tokens are issued by the external identity provider;
// this package only verifies and unpacks them into an explicit Scope that is
// threaded through every coordinator call — never ambient state.
package auth

import (
	"time"

	"github.com/fieldlabs/hydrosync/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims plus the lab-membership scope the
// identity provider resolved for the user.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	LabID  string `json:"lab_id"`
}

// Scope is the resolved caller identity every guard/coordinator call takes
// explicitly.
type Scope struct {
	UserID string
	LabID  string
}

// GenerateToken signs a scope into a token. Used by tests and local tooling;
// production tokens come from the identity provider with the same shape.
func GenerateToken(scope Scope, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID: scope.UserID,
		LabID:  scope.LabID,
	})

	return token.SignedString(secretKey)
}

// ScopeFromToken verifies tokenString and returns the caller scope.
func ScopeFromToken(tokenString string, secretKey []byte) (Scope, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return Scope{}, err
	}

	if !token.Valid || claims.UserID == "" || claims.LabID == "" {
		return Scope{}, common.ErrInvalidToken
	}

	return Scope{UserID: claims.UserID, LabID: claims.LabID}, nil
}
