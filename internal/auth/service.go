package auth

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
	ownerRole        = "Owner"
	defaultAvatar    = "👤"
	defaultAvatarTyp = "emoji"

	// public message shared by unknown-login and wrong-password so neither is distinguishable
	msgBadCredentials = "invalid login or password"
)

// Options tune token lifetimes and the reset flow
type Options struct {
	SessionTTL       time.Duration
	ResetCodeTTL     time.Duration
	MaxResetAttempts int
	ResetCodeSalt    string
	// DevMode returns raw reset codes to the caller
	DevMode bool
}

// EventRecorder observes auth outcomes (metrics)
type EventRecorder interface {
	AuthEvent(op, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) AuthEvent(string, string) {}

// Service orchestrates authentication operations. It is the only component that creates or
// destroys sessions and password-reset requests.
type Service struct {
	store       repo.Store
	passwords   *PasswordHasher
	resetTokens *ResetTokenService
	sender      CodeSender
	events      EventRecorder
	opts        Options
	log         zerolog.Logger
	now         func() time.Time
}

// NewService creates a new auth service
func NewService(
	store repo.Store,
	passwords *PasswordHasher,
	resetTokens *ResetTokenService,
	sender CodeSender,
	opts Options,
	log zerolog.Logger,
) *Service {
	return &Service{
		store:       store,
		passwords:   passwords,
		resetTokens: resetTokens,
		sender:      sender,
		events:      nopRecorder{},
		opts:        opts,
		log:         log.With().Str("component", "auth").Logger(),
		now:         time.Now,
	}
}

// WithClock replaces the time source
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithEvents installs an outcome recorder
func (s *Service) WithEvents(r EventRecorder) *Service {
	if r != nil {
		s.events = r
	}
	return s
}

// RegisterInput is the register request. At least one of Phone and Email is required.
type RegisterInput struct {
	Phone      string
	Email      string
	Password   string
	FamilyName string
}

// Session is an issued token together with the identity it resolves to
type Session struct {
	Token    string
	Identity model.Identity
}

// ResetRequest is the outcome of ForgotPassword. Code is set only in dev mode.
type ResetRequest struct {
	Code      string
	ExpiresAt time.Time
}

// Register creates the user, a default family, its Owner member and a session in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (sess Session, err error) {
	defer func() { s.record("register", err) }()

	var phone, email *string
	if strings.TrimSpace(in.Phone) == "" && strings.TrimSpace(in.Email) == "" {
		return Session{}, apperr.Validation("phone or email is required")
	}
	if strings.TrimSpace(in.Phone) != "" {
		p, err := NormalizePhone(in.Phone)
		if err != nil {
			return Session{}, err
		}
		phone = &p
	}
	if strings.TrimSpace(in.Email) != "" {
		e, err := NormalizeEmail(in.Email)
		if err != nil {
			return Session{}, err
		}
		email = &e
	}
	if err := validatePassword("password", in.Password); err != nil {
		return Session{}, err
	}

	// Advisory only: the unique constraints decide concurrent registrations.
	if err := s.checkAvailable(ctx, phone, email); err != nil {
		return Session{}, err
	}

	digest, err := s.passwords.Hash(in.Password)
	if err != nil {
		return Session{}, s.internal("hash password", err)
	}
	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return Session{}, s.internal("generate session token", err)
	}

	now := s.now()
	identifier := displayIdentifier(phone, email)
	familyName := strings.TrimSpace(in.FamilyName)
	if familyName == "" {
		familyName = "Family " + identifier
	}

	var identity model.Identity
	err = s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		user, err := r.Users.Create(ctx, model.NewUser{Phone: phone, Email: email, PasswordHash: digest, Verified: true})
		if err != nil {
			return err
		}
		family, err := r.Families.Create(ctx, familyName)
		if err != nil {
			return err
		}
		userID, familyID := user.ID, family.ID
		member, err := r.Members.Create(ctx, model.Member{
			FamilyID:   &familyID,
			UserID:     &userID,
			Name:       ownerMemberName(phone, email),
			Role:       ownerRole,
			Avatar:     defaultAvatar,
			AvatarType: defaultAvatarTyp,
			Points:     0,
			Level:      1,
		})
		if err != nil {
			return err
		}
		if _, err := r.Sessions.Create(ctx, user.ID, tokenHash, now.Add(s.opts.SessionTTL)); err != nil {
			return err
		}
		identity = model.Identity{UserID: user.ID, Phone: user.Phone, Email: user.Email}.WithMembership(model.Membership{
			UserID:     user.ID,
			FamilyID:   family.ID,
			FamilyName: family.Name,
			MemberID:   member.ID,
		})
		return nil
	})
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return Session{}, dup
		}
		return Session{}, s.internal("register", err)
	}

	s.log.Info().Str("user_id", identity.UserID.String()).Msg("user registered")
	return Session{Token: token, Identity: identity}, nil
}

func (s *Service) checkAvailable(ctx context.Context, phone, email *string) error {
	users := s.store.Repos().Users
	if phone != nil {
		if _, err := users.GetByPhone(ctx, *phone); err == nil {
			return apperr.New(apperr.ErrDuplicateIdentifier, "phone already registered")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return s.internal("check phone", err)
		}
	}
	if email != nil {
		if _, err := users.GetByEmail(ctx, *email); err == nil {
			return apperr.New(apperr.ErrDuplicateIdentifier, "email already registered")
		} else if !errors.Is(err, repo.ErrNotFound) {
			return s.internal("check email", err)
		}
	}
	return nil
}

func duplicateError(err error) error {
	switch {
	case errors.Is(err, repo.ErrDuplicatePhone):
		return apperr.New(apperr.ErrDuplicateIdentifier, "phone already registered")
	case errors.Is(err, repo.ErrDuplicateEmail):
		return apperr.New(apperr.ErrDuplicateIdentifier, "email already registered")
	}
	return nil
}

// Login authenticates by phone or email (an identifier containing "@" is an email).
// Unknown identifiers fail with NotFound, wrong passwords with InvalidCredential.
func (s *Service) Login(ctx context.Context, login, password string) (sess Session, err error) {
	defer func() { s.record("login", err) }()

	login = strings.TrimSpace(login)
	if login == "" {
		return Session{}, apperr.Validation("login is required")
	}
	if password == "" {
		return Session{}, apperr.Validation("password is required")
	}

	users := s.store.Repos().Users
	var user model.User
	if strings.Contains(login, "@") {
		user, err = users.GetByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = users.GetByPhone(ctx, CleanPhone(login))
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Session{}, apperr.New(apperr.ErrNotFound, msgBadCredentials)
		}
		return Session{}, s.internal("find user", err)
	}

	ok, err := s.passwords.Matches(user.PasswordHash, password)
	if err != nil {
		return Session{}, s.internal("compare password", err)
	}
	if !ok {
		return Session{}, apperr.New(apperr.ErrInvalidCredential, msgBadCredentials)
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return Session{}, s.internal("generate session token", err)
	}
	now := s.now()
	identity := model.Identity{UserID: user.ID, Phone: user.Phone, Email: user.Email}
	err = s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := r.Sessions.Create(ctx, user.ID, tokenHash, now.Add(s.opts.SessionTTL)); err != nil {
			return err
		}
		if err := r.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
			return err
		}
		m, err := r.Families.MembershipForUser(ctx, user.ID)
		switch {
		case err == nil:
			identity = identity.WithMembership(m)
		case !errors.Is(err, repo.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return Session{}, s.internal("login", err)
	}
	return Session{Token: token, Identity: identity}, nil
}

// Verify resolves a token to its identity. ok is false for empty, unknown or expired tokens;
// err is only set when storage fails.
func (s *Service) Verify(ctx context.Context, token string) (model.Identity, bool, error) {
	if token == "" {
		return model.Identity{}, false, nil
	}
	identity, err := s.store.Repos().Sessions.FindIdentity(ctx, HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.Identity{}, false, nil
		}
		return model.Identity{}, false, s.internal("verify session", err)
	}
	return identity, true, nil
}

// Authorize returns the family scope of a token: Unauthenticated when the token does not verify,
// NotInFamily when the user has no household.
func (s *Service) Authorize(ctx context.Context, token string) (model.FamilyScope, error) {
	identity, ok, err := s.Verify(ctx, token)
	if err != nil {
		return model.FamilyScope{}, err
	}
	if !ok {
		return model.FamilyScope{}, apperr.New(apperr.ErrUnauthenticated, "authentication required")
	}
	scope, ok := identity.Scope()
	if !ok {
		return model.FamilyScope{}, apperr.New(apperr.ErrNotInFamily, "user is not a member of a family")
	}
	return scope, nil
}

// Logout expires the session now. Unknown and already expired tokens succeed.
func (s *Service) Logout(ctx context.Context, token string) (err error) {
	defer func() { s.record("logout", err) }()

	if token == "" {
		return nil
	}
	if err := s.store.Repos().Sessions.Expire(ctx, HashToken(token), s.now()); err != nil {
		return s.internal("expire session", err)
	}
	return nil
}

// ForgotPassword replaces any reset request of the phone's owner with a new one and hands
// the code to the sender.
func (s *Service) ForgotPassword(ctx context.Context, phone string) (req ResetRequest, err error) {
	defer func() { s.record("forgot_password", err) }()

	phone, err = NormalizePhone(phone)
	if err != nil {
		return ResetRequest{}, err
	}
	user, err := s.store.Repos().Users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ResetRequest{}, apperr.NotFound("user not found")
		}
		return ResetRequest{}, s.internal("find user", err)
	}

	code, err := generateResetCode()
	if err != nil {
		return ResetRequest{}, s.internal("generate reset code", err)
	}
	expiresAt := s.now().Add(s.opts.ResetCodeTTL)
	err = s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if err := r.Resets.LockUser(ctx, user.ID); err != nil {
			return err
		}
		if err := r.Resets.DeleteForUser(ctx, user.ID); err != nil {
			return err
		}
		_, err := r.Resets.Create(ctx, user.ID, hashResetCode(phone, code, s.opts.ResetCodeSalt), expiresAt)
		return err
	})
	if err != nil {
		return ResetRequest{}, s.internal("create reset request", err)
	}

	if err := s.sender.SendResetCode(ctx, phone, code); err != nil {
		return ResetRequest{}, s.internal("dispatch reset code", err)
	}

	req = ResetRequest{ExpiresAt: expiresAt}
	if s.opts.DevMode {
		req.Code = code
	}
	return req, nil
}

// VerifyResetCode exchanges a valid code for a reset token. Wrong codes count against the
// active request, which is burned once the attempt cap is reached.
func (s *Service) VerifyResetCode(ctx context.Context, phone, code string) (resetToken string, err error) {
	defer func() { s.record("verify_reset_code", err) }()

	phone, err = NormalizePhone(phone)
	if err != nil {
		return "", err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", apperr.Validation("code is required")
	}
	invalid := apperr.New(apperr.ErrInvalidOrExpiredCode, "invalid or expired code")

	user, err := s.store.Repos().Users.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", invalid
		}
		return "", s.internal("find user", err)
	}

	now := s.now()
	matched := false
	err = s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		var p model.PasswordReset
		var err error
		if validResetCodeShape(code) {
			p, err = r.Resets.FindActiveByCode(ctx, user.ID, hashResetCode(phone, code, s.opts.ResetCodeSalt), now)
		} else {
			err = repo.ErrNotFound
		}
		if errors.Is(err, repo.ErrNotFound) {
			return s.countFailedAttempt(ctx, r, user.ID, now)
		}
		if err != nil {
			return err
		}

		resetToken, err = s.resetTokens.Sign(p.ID, user.ID, now, p.ExpiresAt)
		if err != nil {
			return err
		}
		if err := r.Resets.SetTokenHash(ctx, p.ID, HashToken(resetToken)); err != nil {
			return err
		}
		matched = true
		return nil
	})
	if err != nil {
		return "", s.internal("verify reset code", err)
	}
	if !matched {
		return "", invalid
	}
	return resetToken, nil
}

func (s *Service) countFailedAttempt(ctx context.Context, r repo.Repos, userID uuid.UUID, now time.Time) error {
	p, err := r.Resets.RecordFailedAttempt(ctx, userID, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.opts.MaxResetAttempts > 0 && p.AttemptCount >= s.opts.MaxResetAttempts {
		s.log.Warn().Str("user_id", userID.String()).Int("attempts", p.AttemptCount).Msg("reset request burned after too many wrong codes")
		if err := r.Resets.MarkUsed(ctx, p.ID, now); err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
	}
	return nil
}

// ResetPassword consumes the reset request, sets the new password and expires every session
// of the user, all in one transaction.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.record("reset_password", err) }()

	if err := validatePassword("new_password", newPassword); err != nil {
		return err
	}
	if resetToken == "" {
		return apperr.Validation("reset_token is required")
	}
	invalid := apperr.New(apperr.ErrInvalidOrExpiredToken, "invalid or expired reset token")

	now := s.now()
	claims, err := s.resetTokens.Verify(resetToken, now)
	if err != nil {
		return invalid
	}
	requestID, err := claims.RequestID()
	if err != nil {
		return invalid
	}
	userID, err := claims.UserID()
	if err != nil {
		return invalid
	}

	digest, err := s.passwords.Hash(newPassword)
	if err != nil {
		return s.internal("hash password", err)
	}

	var expired int64
	err = s.store.WithTx(ctx, func(ctx context.Context, r repo.Repos) error {
		p, err := r.Resets.FindActiveByTokenHash(ctx, HashToken(resetToken), now)
		if err != nil {
			return err
		}
		if p.ID != requestID || p.UserID != userID {
			return repo.ErrNotFound
		}
		if err := r.Resets.MarkUsed(ctx, p.ID, now); err != nil {
			return err
		}
		if err := r.Users.UpdatePasswordHash(ctx, p.UserID, digest, now); err != nil {
			return err
		}
		expired, err = r.Sessions.ExpireAllForUser(ctx, p.UserID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return invalid
		}
		return s.internal("reset password", err)
	}

	s.log.Info().Str("user_id", userID.String()).Int64("sessions_expired", expired).Msg("password reset")
	return nil
}

func (s *Service) internal(op string, err error) error {
	s.log.Error().Err(err).Str("op", op).Msg("auth operation failed")
	return apperr.Storage(op, err)
}

func (s *Service) record(op string, err error) {
	s.events.AuthEvent(op, Outcome(err))
}

// Outcome names the result of an auth operation for metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrValidation):
		return "invalid"
	case errors.Is(err, apperr.ErrDuplicateIdentifier):
		return "duplicate"
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalidCredential):
		return "rejected"
	case errors.Is(err, apperr.ErrInvalidOrExpiredCode), errors.Is(err, apperr.ErrInvalidOrExpiredToken):
		return "expired"
	default:
		return "error"
	}
}

func displayIdentifier(phone, email *string) string {
	if phone != nil {
		return *phone
	}
	return *email
}

// ownerMemberName is the last four phone digits, or the email local part
func ownerMemberName(phone, email *string) string {
	if phone != nil {
		p := *phone
		if len(p) > 4 {
			return p[len(p)-4:]
		}
		return p
	}
	local, _, _ := strings.Cut(*email, "@")
	return local
}
