// Package household implements the family-scoped resources: the member roster and tasks.
// Every operation takes the caller's model.FamilyScope; nothing here parses tokens.
package household

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/familyassistant/server/internal/apperr"
	"github.com/familyassistant/server/internal/model"
	"github.com/familyassistant/server/internal/repo"
)

const (
	defaultMemberRole = "Family member"
	defaultAvatar     = "👤"
	defaultAvatarType = "emoji"
)

// MemberService manages the family roster
type MemberService struct {
	store repo.Store
	log   zerolog.Logger
	now   func() time.Time
}

// NewMemberService creates a new member service
func NewMemberService(store repo.Store, log zerolog.Logger) *MemberService {
	return &MemberService{store: store, log: log.With().Str("component", "members").Logger(), now: time.Now}
}

// WithClock replaces the time source
func (s *MemberService) WithClock(now func() time.Time) *MemberService {
	s.now = now
	return s
}

// List returns the roster of the family
func (s *MemberService) List(ctx context.Context, familyID uuid.UUID) ([]model.Member, error) {
	members, err := s.store.Repos().Members.List(ctx, familyID)
	if err != nil {
		return nil, storage(s.log, "list members", err)
	}
	return members, nil
}

// Add creates a member without an account. Name is required; other fields default.
func (s *MemberService) Add(ctx context.Context, scope model.FamilyScope, in model.MemberPatch) (model.Member, error) {
	if !in.Name.Set || in.Name.Null || strings.TrimSpace(in.Name.Value) == "" {
		return model.Member{}, apperr.Validation("name is required")
	}
	if err := validateMemberPatch(in); err != nil {
		return model.Member{}, err
	}

	familyID := scope.FamilyID
	m := model.Member{
		FamilyID:   &familyID,
		Name:       strings.TrimSpace(in.Name.Value),
		Role:       defaultMemberRole,
		Avatar:     defaultAvatar,
		AvatarType: defaultAvatarType,
		Level:      1,
	}
	setString(&m.Role, in.Role)
	setString(&m.Avatar, in.Avatar)
	setString(&m.AvatarType, in.AvatarType)
	m.Relationship = in.Relationship.Ptr()
	m.PhotoURL = in.PhotoURL.Ptr()
	if in.Points.Set {
		m.Points = in.Points.Value
	}
	if in.Level.Set {
		m.Level = in.Level.Value
	}
	if in.Workload.Set {
		m.Workload = in.Workload.Value
	}
	if in.Age.Set {
		m.Age = in.Age.Ptr()
	}

	created, err := s.store.Repos().Members.Create(ctx, m)
	if err != nil {
		return model.Member{}, storage(s.log, "add member", err)
	}
	return created, nil
}

// Update applies a partial update to a member of the caller's family
func (s *MemberService) Update(ctx context.Context, scope model.FamilyScope, id uuid.UUID, patch model.MemberPatch) (model.Member, error) {
	if patch.Name.Set && (patch.Name.Null || strings.TrimSpace(patch.Name.Value) == "") {
		return model.Member{}, apperr.Validation("name must not be empty")
	}
	if err := validateMemberPatch(patch); err != nil {
		return model.Member{}, err
	}
	// role, avatar and avatar_type can be changed but not blanked
	for name, o := range map[string]model.Optional[string]{"role": patch.Role, "avatar": patch.Avatar, "avatar_type": patch.AvatarType} {
		if o.Set && strings.TrimSpace(o.Value) == "" {
			return model.Member{}, apperr.Validation("%s must not be empty", name)
		}
	}
	if patch.Name.Set {
		patch.Name.Value = strings.TrimSpace(patch.Name.Value)
	}

	m, err := s.store.Repos().Members.Update(ctx, scope.FamilyID, id, patch, s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Member{}, apperr.NotFound("family member not found")
		}
		return model.Member{}, storage(s.log, "update member", err)
	}
	return m, nil
}

// Remove detaches a member from the family. Members linked to an account cannot be removed.
func (s *MemberService) Remove(ctx context.Context, scope model.FamilyScope, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		m, err := r.Members.Get(ctx, scope.FamilyID, id)
		if err != nil {
			return err
		}
		if m.UserID != nil {
			return apperr.Validation("a family member linked to an account cannot be removed")
		}
		return r.Members.Detach(ctx, scope.FamilyID, id, s.now())
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrNotFound):
		return apperr.NotFound("family member not found")
	case errors.Is(err, apperr.ErrValidation):
		return err
	default:
		return storage(s.log, "remove member", err)
	}
}

func validateMemberPatch(p model.MemberPatch) error {
	for name, o := range map[string]model.Optional[string]{"role": p.Role, "avatar": p.Avatar, "avatar_type": p.AvatarType} {
		if o.Set && o.Null {
			return apperr.Validation("%s must not be null", name)
		}
	}
	for name, o := range map[string]model.Optional[int]{"points": p.Points, "level": p.Level, "workload": p.Workload} {
		if o.Set && o.Null {
			return apperr.Validation("%s must not be null", name)
		}
	}
	if p.Points.Set && p.Points.Value < 0 {
		return apperr.Validation("points must not be negative")
	}
	if p.Level.Set && p.Level.Value < 1 {
		return apperr.Validation("level must be at least 1")
	}
	if p.Workload.Set && p.Workload.Value < 0 {
		return apperr.Validation("workload must not be negative")
	}
	if p.Age.Set && !p.Age.Null && (p.Age.Value < 0 || p.Age.Value > 150) {
		return apperr.Validation("age must be between 0 and 150")
	}
	return nil
}

func setString(dst *string, o model.Optional[string]) {
	if o.Set && !o.Null && o.Value != "" {
		*dst = o.Value
	}
}

func storage(log zerolog.Logger, op string, err error) error {
	log.Error().Err(err).Str("op", op).Msg("household operation failed")
	return apperr.Storage(op, err)
}
