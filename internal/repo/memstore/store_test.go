package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	phone := "+15550001111"
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		u, err := r.Users.Create(ctx, model.NewUser{Phone: &phone, PasswordHash: "h"})
		require.NoError(t, err)
		_, err = r.Families.Create(ctx, "Family")
		require.NoError(t, err)
		_, err = r.Sessions.Create(ctx, u.ID, "digest", time.Now().Add(time.Hour))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	users, families, members := s.Counts()
	assert.Zero(t, users)
	assert.Zero(t, families)
	assert.Zero(t, members)
	_, ok := s.Session("digest")
	assert.False(t, ok)
}

func TestUsers_UniqueIdentifiers(t *testing.T) {
	s := New()
	ctx := context.Background()
	phone, email := "+15550001111", "a@b.co"

	_, err := s.Repos().Users.Create(ctx, model.NewUser{Phone: &phone, Email: &email, PasswordHash: "h"})
	require.NoError(t, err)

	_, err = s.Repos().Users.Create(ctx, model.NewUser{Phone: &phone, PasswordHash: "h"})
	assert.ErrorIs(t, err, repo.ErrDuplicatePhone)
	_, err = s.Repos().Users.Create(ctx, model.NewUser{Email: &email, PasswordHash: "h"})
	assert.ErrorIs(t, err, repo.ErrDuplicateEmail)
}

func TestResets_OneUnusedPerUser(t *testing.T) {
	s := New()
	ctx := context.Background()
	phone := "+15550001111"
	now := time.Now()

	u, err := s.Repos().Users.Create(ctx, model.NewUser{Phone: &phone, PasswordHash: "h"})
	require.NoError(t, err)
	first, err := s.Repos().Resets.Create(ctx, u.ID, "c1", now.Add(time.Minute))
	require.NoError(t, err)

	_, err = s.Repos().Resets.Create(ctx, u.ID, "c2", now.Add(time.Minute))
	assert.ErrorIs(t, err, repo.ErrConflict)

	require.NoError(t, s.Repos().Resets.MarkUsed(ctx, first.ID, now))
	assert.ErrorIs(t, s.Repos().Resets.MarkUsed(ctx, first.ID, now), repo.ErrNotFound)
	_, err = s.Repos().Resets.Create(ctx, u.ID, "c2", now.Add(time.Minute))
	assert.NoError(t, err)
}

func TestFailNext(t *testing.T) {
	s := New()
	s.FailNext = errors.New("db down")

	_, err := s.Repos().Users.GetByEmail(context.Background(), "a@b.co")
	assert.EqualError(t, err, "db down")
	_, err = s.Repos().Users.GetByEmail(context.Background(), "a@b.co")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
