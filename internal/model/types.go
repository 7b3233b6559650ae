package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account
type User struct {
	ID           uuid.UUID
	Phone        *string
	Email        *string
	PasswordHash string
	Verified     bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// NewUser holds the fields needed to insert a user
type NewUser struct {
	Phone        *string
	Email        *string
	PasswordHash string
	Verified     bool
}

// Session represents an issued bearer token. Only the token digest is persisted.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether the session is still usable at the given instant.
func (s Session) Valid(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// PasswordReset represents a forgot-password request.
// TokenHash stays nil until the code has been verified and a reset token minted.
type PasswordReset struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	CodeHash     string
	TokenHash    *string
	ExpiresAt    time.Time
	UsedAt       *time.Time
	AttemptCount int
	CreatedAt    time.Time
}

// Active reports whether the request is unused and unexpired.
func (p PasswordReset) Active(now time.Time) bool {
	return p.UsedAt == nil && p.ExpiresAt.After(now)
}

// Family is a household grouping
type Family struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Membership links a user to a family through a member record
type Membership struct {
	UserID     uuid.UUID
	FamilyID   uuid.UUID
	FamilyName string
	MemberID   uuid.UUID
}

// Identity is the resolved owner of a valid session token.
// Family fields are nil when the user has no household.
type Identity struct {
	UserID     uuid.UUID
	Phone      *string
	Email      *string
	FamilyID   *uuid.UUID
	FamilyName *string
	MemberID   *uuid.UUID
}

// FamilyScope is the authorization scope every family resource handler works in
type FamilyScope struct {
	UserID   uuid.UUID
	FamilyID uuid.UUID
	MemberID uuid.UUID
}

// Scope returns the family scope, or false when the identity has no household.
func (i Identity) Scope() (FamilyScope, bool) {
	if i.FamilyID == nil || i.MemberID == nil {
		return FamilyScope{}, false
	}
	return FamilyScope{UserID: i.UserID, FamilyID: *i.FamilyID, MemberID: *i.MemberID}, true
}

// WithMembership returns a copy of the identity carrying the given family fields.
func (i Identity) WithMembership(m Membership) Identity {
	familyID, memberID, name := m.FamilyID, m.MemberID, m.FamilyName
	i.FamilyID = &familyID
	i.MemberID = &memberID
	i.FamilyName = &name
	return i
}
