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

const userColumns = `id, phone, email, password_hash, is_verified, last_login_at, created_at`

type userRepo struct {
	q db.DBTX
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(q db.DBTX) UserRepo {
	return &userRepo{q: q}
}

// Create inserts a user. Unique violations on phone/email map to ErrDuplicatePhone/ErrDuplicateEmail.
func (r *userRepo) Create(ctx context.Context, u model.NewUser) (model.User, error) {
	query := `
		INSERT INTO users (phone, email, password_hash, is_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRowContext(ctx, query, u.Phone, u.Email, u.PasswordHash, u.Verified))
	if err != nil {
		if mapped := mapUniqueViolation(err); mapped != err {
			return model.User{}, mapped
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByPhone retrieves a user by normalized phone number
func (r *userRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1`, phone)
}

// GetByEmail retrieves a user by normalized email
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// TouchLastLogin records a successful login
func (r *userRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored password digest
func (r *userRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
	`, id, hash, at)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	user, err := scanUser(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Phone, &u.Email, &u.PasswordHash, &u.Verified, &u.LastLoginAt, &u.CreatedAt)
	return u, err
}
