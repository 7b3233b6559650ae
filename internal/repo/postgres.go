package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/familyassistant/server/internal/db"
)

const uniqueViolation = "23505"

// PostgresStore is the Store backed by a database/sql pool
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store over the given pool
func NewPostgresStore(database *sql.DB) *PostgresStore {
	return &PostgresStore{db: database}
}

// Repos returns repositories that run each statement on the pool
func (s *PostgresStore) Repos() Repos {
	return bind(s.db)
}

// WithTx runs fn inside one transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	return db.WithTx(ctx, s.db, nil, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, bind(tx))
	})
}

// Ping checks the pool is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func bind(q db.DBTX) Repos {
	return Repos{
		Users:    NewUserRepo(q),
		Sessions: NewSessionRepo(q),
		Resets:   NewResetRepo(q),
		Families: NewFamilyRepo(q),
		Members:  NewMemberRepo(q),
		Tasks:    NewTaskRepo(q),
	}
}

// mapUniqueViolation converts a Postgres unique violation into a repository error.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_phone_key":
		return ErrDuplicatePhone
	case "users_email_key":
		return ErrDuplicateEmail
	default:
		return ErrConflict
	}
}
