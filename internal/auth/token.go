package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/totpgate/internal/models"
	"github.com/BradenHooton/totpgate/pkg/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and validates session credentials
type TokenManager struct {
	secret []byte
	expiry time.Duration
	issuer string
	clock  clock.Clocker
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, expiry time.Duration, issuer string, clk clock.Clocker) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
		clock:  clk,
	}
}

// Issue signs a session credential for the principal.
// totpVerified states whether this session completed the second factor.
func (tm *TokenManager) Issue(p *models.Principal, totpVerified bool) (string, error) {
	now := tm.clock.Now()

	claims := &models.SessionClaims{
		PrincipalID:  p.ID,
		Identifier:   p.Identifier,
		TOTPVerified: totpVerified,
		TOTPEnrolled: p.TOTPEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    tm.issuer,
			Subject:   p.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(tm.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}

	return signed, nil
}

// ValidateToken verifies a credential and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	claims := &models.SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithTimeFunc(tm.clock.Now),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	if !token.Valid || claims.PrincipalID == "" {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}
