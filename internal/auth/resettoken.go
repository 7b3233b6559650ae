package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resetTokenIssuer = "family-assistant/reset"

// ResetClaims binds a reset token to one password-reset request
type ResetClaims struct {
	jwt.RegisteredClaims
}

// RequestID returns the reset request the token was minted for
func (c *ResetClaims) RequestID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// UserID returns the user the token was minted for
func (c *ResetClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// ResetTokenService signs and verifies reset tokens (HS256)
type ResetTokenService struct {
	secret []byte
}

// NewResetTokenService creates a new reset token service
func NewResetTokenService(secret string) *ResetTokenService {
	return &ResetTokenService{
		secret: []byte(secret),
	}
}

// Sign creates a reset token that expires together with its request
func (s *ResetTokenService) Sign(requestID, userID uuid.UUID, issuedAt, expiresAt time.Time) (string, error) {
	claims := &ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        requestID.String(),
			Subject:   userID.String(),
			Issuer:    resetTokenIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}

	return tokenString, nil
}

// Verify checks the signature, issuer and expiry of a reset token as of now
func (s *ResetTokenService) Verify(tokenString string, now time.Time) (*ResetClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(resetTokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse reset token: %w", err)
	}

	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid reset token")
	}

	return claims, nil
}
