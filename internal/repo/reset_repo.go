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

const resetColumns = `id, user_id, code_hash, token_hash, expires_at, used_at, attempt_count, created_at`

// resetLockClass namespaces the advisory locks taken for reset-request replacement
const resetLockClass = 2

type resetRepo struct {
	q db.DBTX
}

// NewResetRepo creates a new ResetRepo instance
func NewResetRepo(q db.DBTX) ResetRepo {
	return &resetRepo{q: q}
}

// LockUser takes a transaction-scoped advisory lock for the user.
// Blocks until we hold the lock; released on COMMIT/ROLLBACK.
func (r *resetRepo) LockUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`, resetLockClass, userID.String())
	if err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	return nil
}

// DeleteForUser removes every reset request of the user, superseding any active one.
func (r *resetRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete reset requests: %w", err)
	}
	return nil
}

// Create inserts a new reset request
func (r *resetRepo) Create(ctx context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) (model.PasswordReset, error) {
	p, err := scanReset(r.q.QueryRowContext(ctx, `
		INSERT INTO password_resets (user_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING `+resetColumns, userID, codeHash, expiresAt))
	if err != nil {
		return model.PasswordReset{}, fmt.Errorf("insert reset request: %w", mapUniqueViolation(err))
	}
	return p, nil
}

// FindActiveByCode returns the latest active request of the user matching the code digest.
func (r *resetRepo) FindActiveByCode(ctx context.Context, userID uuid.UUID, codeHash string, now time.Time) (model.PasswordReset, error) {
	return r.getOne(ctx, `
		SELECT `+resetColumns+`
		FROM password_resets
		WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL AND expires_at > $3
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, codeHash, now)
}

// FindActiveByTokenHash returns the active request a reset token was minted for.
func (r *resetRepo) FindActiveByTokenHash(ctx context.Context, tokenHash string, now time.Time) (model.PasswordReset, error) {
	return r.getOne(ctx, `
		SELECT `+resetColumns+`
		FROM password_resets
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
	`, tokenHash, now)
}

// SetTokenHash records the digest of the reset token minted for the request
func (r *resetRepo) SetTokenHash(ctx context.Context, id uuid.UUID, tokenHash string) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE password_resets SET token_hash = $2 WHERE id = $1 AND used_at IS NULL
	`, id, tokenHash)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return requireOneRow(result, "set reset token")
}

// RecordFailedAttempt increments attempt_count of the user's active request.
func (r *resetRepo) RecordFailedAttempt(ctx context.Context, userID uuid.UUID, now time.Time) (model.PasswordReset, error) {
	return r.getOne(ctx, `
		UPDATE password_resets
		SET attempt_count = attempt_count + 1
		WHERE user_id = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING `+resetColumns, userID, now)
}

// MarkUsed sets used_at. The used_at IS NULL guard makes consumption single-use under concurrency.
func (r *resetRepo) MarkUsed(ctx context.Context, id uuid.UUID, now time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE password_resets SET used_at = $2 WHERE id = $1 AND used_at IS NULL
	`, id, now)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return requireOneRow(result, "mark reset used")
}

func (r *resetRepo) getOne(ctx context.Context, query string, args ...any) (model.PasswordReset, error) {
	p, err := scanReset(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PasswordReset{}, ErrNotFound
		}
		return model.PasswordReset{}, fmt.Errorf("query reset request: %w", err)
	}
	return p, nil
}

func scanReset(row *sql.Row) (model.PasswordReset, error) {
	var p model.PasswordReset
	err := row.Scan(&p.ID, &p.UserID, &p.CodeHash, &p.TokenHash, &p.ExpiresAt, &p.UsedAt, &p.AttemptCount, &p.CreatedAt)
	return p, err
}

func requireOneRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
