// Package repo holds the storage contracts of the server and their Postgres
// implementations. Every method takes the instant it should treat as "now"
// so expiry checks are decided by the caller's clock.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/model"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")
	// ErrDuplicatePhone is returned when a phone number is already registered
	ErrDuplicatePhone = errors.New("phone already registered")
	// ErrDuplicateEmail is returned when an email is already registered
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrConflict is returned for any other unique violation
	ErrConflict = errors.New("conflict")
)

// UserRepo stores user credentials
type UserRepo interface {
	Create(ctx context.Context, u model.NewUser) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByPhone(ctx context.Context, phone string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) error
}

// SessionRepo stores issued session tokens by digest
type SessionRepo interface {
	Create(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (model.Session, error)
	// FindIdentity resolves a live session to its user and, when present, family membership.
	FindIdentity(ctx context.Context, tokenHash string, now time.Time) (model.Identity, error)
	// Expire sets expires_at to now for a live session. Unknown or expired tokens are not an error.
	Expire(ctx context.Context, tokenHash string, now time.Time) error
	ExpireAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

// ResetRepo stores password-reset requests
type ResetRepo interface {
	// LockUser serializes reset-request replacement for one user until the transaction ends.
	LockUser(ctx context.Context, userID uuid.UUID) error
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
	Create(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) (model.PasswordReset, error)
	// FindActiveByCode returns the most recent unused, unexpired request with this code digest.
	FindActiveByCode(ctx context.Context, userID uuid.UUID, codeHash string, now time.Time) (model.PasswordReset, error)
	FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.PasswordReset, error)
	SetTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error
	// RecordFailedAttempt bumps the attempt counter of the user's active request and returns it.
	RecordFailedAttempt(ctx context.Context, userID uuid.UUID, now time.Time) (model.PasswordReset, error)
	// MarkUsed consumes a request. It returns ErrNotFound if the request was already used.
	MarkUsed(ctx context.Context, id uuid.UUID, now time.Time) error
}

// FamilyRepo stores households and resolves membership
type FamilyRepo interface {
	Create(ctx context.Context, name string) (model.Family, error)
	MembershipForUser(ctx context.Context, userID uuid.UUID) (model.Membership, error)
}

// MemberRepo stores the family roster
type MemberRepo interface {
	Create(ctx context.Context, m model.Member) (model.Member, error)
	List(ctx context.Context, familyID uuid.UUID) ([]model.Member, error)
	Get(ctx context.Context, familyID, id uuid.UUID) (model.Member, error)
	Update(ctx context.Context, familyID, id uuid.UUID, patch model.MemberPatch, now time.Time) (model.Member, error)
	// Detach removes a member from its family without deleting the row.
	Detach(ctx context.Context, familyID, id uuid.UUID, now time.Time) error
}

// TaskRepo stores family tasks
type TaskRepo interface {
	Create(ctx context.Context, t model.Task) (model.Task, error)
	List(ctx context.Context, familyID uuid.UUID, completed *bool) ([]model.Task, error)
	Get(ctx context.Context, familyID, id uuid.UUID) (model.Task, error)
	Update(ctx context.Context, familyID, id uuid.UUID, patch model.TaskPatch, now time.Time) (model.Task, error)
}

// Repos bundles repositories bound to one connection or transaction
type Repos struct {
	Users    UserRepo
	Sessions SessionRepo
	Resets   ResetRepo
	Families FamilyRepo
	Members  MemberRepo
	Tasks    TaskRepo
}

// Store hands out repositories, either directly or inside a transaction.
type Store interface {
	Repos() Repos
	// WithTx runs fn with repositories bound to a single transaction.
	// Nothing fn wrote is visible if it returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
	Ping(ctx context.Context) error
}
