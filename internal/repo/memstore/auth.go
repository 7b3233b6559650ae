package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

type users struct {
	x   exec
	now func() time.Time
}

func (r *users) Create(_ context.Context, u model.NewUser) (model.User, error) {
	var out model.User
	err := r.x(func(st *state) error {
		for _, existing := range st.users {
			if u.Phone != nil && existing.Phone != nil && *existing.Phone == *u.Phone {
				return repo.ErrDuplicatePhone
			}
			if u.Email != nil && existing.Email != nil && *existing.Email == *u.Email {
				return repo.ErrDuplicateEmail
			}
		}
		out = model.User{
			ID:           uuid.New(),
			Phone:        u.Phone,
			Email:        u.Email,
			PasswordHash: u.PasswordHash,
			Verified:     u.Verified,
			CreatedAt:    r.now(),
		}
		st.users[out.ID] = out
		return nil
	})
	return out, err
}

func (r *users) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *users) GetByPhone(_ context.Context, phone string) (model.User, error) {
	return r.find(func(u model.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *users) GetByEmail(_ context.Context, email string) (model.User, error) {
	return r.find(func(u model.User) bool { return u.Email != nil && *u.Email == email })
}

func (r *users) find(match func(model.User) bool) (model.User, error) {
	var out model.User
	err := r.x(func(st *state) error {
		for _, u := range st.users {
			if match(u) {
				out = u
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r *users) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.x(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return nil
		}
		u.LastLoginAt = &at
		st.users[id] = u
		return nil
	})
}

func (r *users) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string, _ time.Time) error {
	return r.x(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return repo.ErrNotFound
		}
		u.PasswordHash = hash
		st.users[id] = u
		return nil
	})
}

type sessions struct {
	x   exec
	now func() time.Time
}

func (r *sessions) Create(_ context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) (model.Session, error) {
	var out model.Session
	err := r.x(func(st *state) error {
		if _, exists := st.sessions[tokenHash]; exists {
			return repo.ErrConflict
		}
		out = model.Session{ID: uuid.New(), UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt, CreatedAt: r.now()}
		st.sessions[tokenHash] = out
		return nil
	})
	return out, err
}

func (r *sessions) FindIdentity(_ context.Context, tokenHash string, now time.Time) (model.Identity, error) {
	var out model.Identity
	err := r.x(func(st *state) error {
		s, ok := st.sessions[tokenHash]
		if !ok || !s.Valid(now) {
			return repo.ErrNotFound
		}
		u, ok := st.users[s.UserID]
		if !ok {
			return repo.ErrNotFound
		}
		out = model.Identity{UserID: u.ID, Phone: u.Phone, Email: u.Email}
		if m, ok := membership(st, u.ID); ok {
			out = out.WithMembership(m)
		}
		return nil
	})
	return out, err
}

func (r *sessions) Expire(_ context.Context, tokenHash string, now time.Time) error {
	return r.x(func(st *state) error {
		s, ok := st.sessions[tokenHash]
		if ok && s.Valid(now) {
			s.ExpiresAt = now
			st.sessions[tokenHash] = s
		}
		return nil
	})
}

func (r *sessions) ExpireAllForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	var n int64
	err := r.x(func(st *state) error {
		for hash, s := range st.sessions {
			if s.UserID == userID && s.Valid(now) {
				s.ExpiresAt = now
				st.sessions[hash] = s
				n++
			}
		}
		return nil
	})
	return n, err
}

type resets struct {
	x   exec
	now func() time.Time
}

// LockUser is a no-op: transactions already hold the store lock.
func (r *resets) LockUser(context.Context, uuid.UUID) error {
	return r.x(func(*state) error { return nil })
}

func (r *resets) DeleteForUser(_ context.Context, userID uuid.UUID) error {
	return r.x(func(st *state) error {
		for id, p := range st.resets {
			if p.UserID == userID {
				delete(st.resets, id)
			}
		}
		return nil
	})
}

func (r *resets) Create(_ context.Context, userID uuid.UUID, codeHash string, expiresAt time.Time) (model.PasswordReset, error) {
	var out model.PasswordReset
	err := r.x(func(st *state) error {
		for _, p := range st.resets {
			if p.UserID == userID && p.UsedAt == nil {
				return repo.ErrConflict
			}
		}
		out = model.PasswordReset{ID: uuid.New(), UserID: userID, CodeHash: codeHash, ExpiresAt: expiresAt, CreatedAt: r.now()}
		st.resets[out.ID] = out
		st.next(out.ID)
		return nil
	})
	return out, err
}

func (r *resets) FindActiveByCode(_ context.Context, userID uuid.UUID, codeHash string, now time.Time) (model.PasswordReset, error) {
	return r.latest(now, func(p model.PasswordReset) bool {
		return p.UserID == userID && p.CodeHash == codeHash
	})
}

func (r *resets) FindActiveByTokenHash(_ context.Context, tokenHash string, now time.Time) (model.PasswordReset, error) {
	return r.latest(now, func(p model.PasswordReset) bool {
		return p.TokenHash != nil && *p.TokenHash == tokenHash
	})
}

func (r *resets) latest(now time.Time, match func(model.PasswordReset) bool) (model.PasswordReset, error) {
	var out model.PasswordReset
	err := r.x(func(st *state) error {
		var found []model.PasswordReset
		for _, p := range st.resets {
			if p.Active(now) && match(p) {
				found = append(found, p)
			}
		}
		if len(found) == 0 {
			return repo.ErrNotFound
		}
		sort.Slice(found, func(i, j int) bool { return st.order[found[i].ID] > st.order[found[j].ID] })
		out = found[0]
		return nil
	})
	return out, err
}

func (r *resets) SetTokenHash(_ context.Context, id uuid.UUID, tokenHash string) error {
	return r.x(func(st *state) error {
		p, ok := st.resets[id]
		if !ok || p.UsedAt != nil {
			return repo.ErrNotFound
		}
		for otherID, other := range st.resets {
			if otherID != id && other.TokenHash != nil && *other.TokenHash == tokenHash {
				return repo.ErrConflict
			}
		}
		p.TokenHash = &tokenHash
		st.resets[id] = p
		return nil
	})
}

func (r *resets) RecordFailedAttempt(_ context.Context, userID uuid.UUID, now time.Time) (model.PasswordReset, error) {
	var out model.PasswordReset
	err := r.x(func(st *state) error {
		for id, p := range st.resets {
			if p.UserID == userID && p.Active(now) {
				p.AttemptCount++
				st.resets[id] = p
				out = p
				return nil
			}
		}
		return repo.ErrNotFound
	})
	return out, err
}

func (r *resets) MarkUsed(_ context.Context, id uuid.UUID, now time.Time) error {
	return r.x(func(st *state) error {
		p, ok := st.resets[id]
		if !ok || p.UsedAt != nil {
			return repo.ErrNotFound
		}
		p.UsedAt = &now
		st.resets[id] = p
		return nil
	})
}
