// Package memstore is an in-memory repo.Store used by service and handler tests.
// Transactions are serialized and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

type state struct {
	seq      int64
	users    map[uuid.UUID]model.User
	sessions map[string]model.Session
	resets   map[uuid.UUID]model.PasswordReset
	families map[uuid.UUID]model.Family
	members  map[uuid.UUID]model.Member
	tasks    map[uuid.UUID]model.Task
	order    map[uuid.UUID]int64
}

func newState() *state {
	return &state{
		users:    map[uuid.UUID]model.User{},
		sessions: map[string]model.Session{},
		resets:   map[uuid.UUID]model.PasswordReset{},
		families: map[uuid.UUID]model.Family{},
		members:  map[uuid.UUID]model.Member{},
		tasks:    map[uuid.UUID]model.Task{},
		order:    map[uuid.UUID]int64{},
	}
}

// clone copies the maps. Stored values are replaced on write, never mutated in place.
func (s *state) clone() *state {
	c := &state{seq: s.seq}
	c.users = copyMap(s.users)
	c.sessions = copyMap(s.sessions)
	c.resets = copyMap(s.resets)
	c.families = copyMap(s.families)
	c.members = copyMap(s.members)
	c.tasks = copyMap(s.tasks)
	c.order = copyMap(s.order)
	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// next returns a monotonically increasing insertion number for id
func (s *state) next(id uuid.UUID) {
	s.seq++
	s.order[id] = s.seq
}

// Store implements repo.Store in memory
type Store struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time

	// FailNext, when set, is returned by the next repository call and then cleared.
	FailNext error
}

// New creates an empty Store
func New() *Store {
	return &Store{st: newState(), clock: time.Now}
}

// SetClock overrides the time used for created_at/updated_at stamps
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

// Repos returns repositories that lock the store per call
func (s *Store) Repos() repo.Repos {
	return s.bind(func(fn func(st *state) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.run(s.st, fn)
	})
}

// WithTx holds the store lock for the whole of fn and restores the snapshot if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r repo.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.st.clone()
	r := s.bind(func(op func(st *state) error) error {
		return s.run(working, op)
	})
	if err := fn(ctx, r); err != nil {
		return err
	}
	s.st = working
	return nil
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) run(st *state, fn func(st *state) error) error {
	if err := s.FailNext; err != nil {
		s.FailNext = nil
		return err
	}
	return fn(st)
}

type exec func(fn func(st *state) error) error

func (s *Store) bind(x exec) repo.Repos {
	return repo.Repos{
		Users:    &users{x: x, now: s.clock},
		Sessions: &sessions{x: x, now: s.clock},
		Resets:   &resets{x: x, now: s.clock},
		Families: &families{x: x, now: s.clock},
		Members:  &members{x: x, now: s.clock},
		Tasks:    &tasks{x: x, now: s.clock},
	}
}

// Snapshot helpers for assertions in tests.

// Session returns the stored session for a token digest
func (s *Store) Session(tokenHash string) (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.st.sessions[tokenHash]
	return v, ok
}

// Sessions returns every stored session of a user
func (s *Store) Sessions(userID uuid.UUID) []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Session
	for _, v := range s.st.sessions {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out
}

// Resets returns every stored reset request of a user
func (s *Store) Resets(userID uuid.UUID) []model.PasswordReset {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PasswordReset
	for _, v := range s.st.resets {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	return out
}

// Counts reports the number of stored users, families and members
func (s *Store) Counts() (users, families, members int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.users), len(s.st.families), len(s.st.members)
}
