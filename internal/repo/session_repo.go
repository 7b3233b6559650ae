package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/db"
	"github.com/familyassistant/server/internal/model"
)

type sessionRepo struct {
	q db.DBTX
}

// NewSessionRepo creates a new SessionRepo instance
func NewSessionRepo(q db.DBTX) SessionRepo {
	return &sessionRepo{q: q}
}

// Create inserts a new session
func (r *sessionRepo) Create(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (model.Session, error) {
	s := model.Session{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, userID, tokenHash, expiresAt).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return model.Session{}, fmt.Errorf("insert session: %w", mapUniqueViolation(err))
	}
	return s, nil
}

// FindIdentity returns the owner of a live session joined with its family membership, if any.
func (r *sessionRepo) FindIdentity(ctx context.Context, tokenHash string, now time.Time) (model.Identity, error) {
	var (
		id         model.Identity
		familyID   uuid.NullUUID
		memberID   uuid.NullUUID
		familyName sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT u.id, u.phone, u.email, fm.family_id, f.name, fm.id
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		LEFT JOIN family_members fm ON fm.user_id = u.id AND fm.family_id IS NOT NULL
		LEFT JOIN families f ON f.id = fm.family_id
		WHERE s.token_hash = $1 AND s.expires_at > $2
		LIMIT 1
	`, tokenHash, now).Scan(&id.UserID, &id.Phone, &id.Email, &familyID, &familyName, &memberID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Identity{}, ErrNotFound
		}
		return model.Identity{}, fmt.Errorf("find session: %w", err)
	}
	if familyID.Valid && memberID.Valid {
		id = id.WithMembership(model.Membership{
			UserID:     id.UserID,
			FamilyID:   familyID.UUID,
			FamilyName: familyName.String,
			MemberID:   memberID.UUID,
		})
	}
	return id, nil
}

// Expire ends a live session now. The row is kept.
func (r *sessionRepo) Expire(ctx context.Context, tokenHash string, now time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $2 WHERE token_hash = $1 AND expires_at > $2
	`, tokenHash, now)
	if err != nil {
		return fmt.Errorf("expire session: %w", err)
	}
	return nil
}

// ExpireAllForUser ends every live session of a user (forced global logout)
func (r *sessionRepo) ExpireAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	result, err := r.q.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $2 WHERE user_id = $1 AND expires_at > $2
	`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("expire all sessions for user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire all sessions for user: %w", err)
	}
	return n, nil
}
