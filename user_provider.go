package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// UserTracker is a store we can use to retrieve users and track logins
type UserTracker interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (*User, error)
	TrackAttemptedLogin(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) (*User, error)
	TrackSuccessfulLogin(ctx context.Context, id uuid.UUID, now time.Time) (*User, error)
	ClearExpiredLock(ctx context.Context, id uuid.UUID, policy LockoutPolicy, now time.Time) error
	SaveResetToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error
	SaveVerificationToken(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error
}

// UserProvider handles users
type UserProvider struct {
	store     UserTracker
	cfg       Config
	policy    LockoutPolicy
	now       func() time.Time
	activity  ActivitySink
	Validator func(*User) error
	logger    Logger
	provider  LoggerProvider
}

var _ IdentityProvider = (*UserProvider)(nil)

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker, cfg Config) *UserProvider {
	cfg = cfg.WithDefaults()
	loggerProvider, logger := ResolveLogger("auth.user_provider", nil, nil)
	return &UserProvider{
		store:     store,
		cfg:       cfg,
		policy:    cfg.LockoutPolicy(),
		now:       time.Now,
		activity:  noopActivitySink{},
		logger:    logger,
		provider:  loggerProvider,
		Validator: defaultValidator,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.provider, u.logger = ResolveLogger("auth.user_provider", u.provider, l)
	return u
}

// WithLoggerProvider overrides the logger provider used by the user provider.
func (u *UserProvider) WithLoggerProvider(provider LoggerProvider) *UserProvider {
	u.provider, u.logger = ResolveLogger("auth.user_provider", provider, u.logger)
	return u
}

// WithActivitySink sets the sink used to emit login events.
func (u *UserProvider) WithActivitySink(sink ActivitySink) *UserProvider {
	u.activity = normalizeActivitySink(sink)
	return u
}

// WithClock replaces the time source used for lock windows.
func (u *UserProvider) WithClock(now func() time.Time) *UserProvider {
	if now != nil {
		u.now = now
	}
	return u
}

// Policy returns the lockout policy in use.
func (u *UserProvider) Policy() LockoutPolicy {
	return u.policy
}

func (u *UserProvider) validate(user *User) error {
	if u.Validator != nil {
		return u.Validator(user)
	}
	return defaultValidator(user)
}

// VerifyIdentity checks credentials and applies the lockout policy.
//
// A locked account is rejected before the password is compared, so attempts
// made during the lock window never move the counter. The failure that
// reaches the limit is answered with ACCOUNT_LOCKED.
func (u *UserProvider) VerifyIdentity(ctx context.Context, email, password string) (*User, error) {
	user, err := u.store.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if user == nil || !user.IsActive {
		return nil, ErrMismatchedHashAndPassword.Clone()
	}

	now := u.now()

	if user.IsLocked(now) {
		return nil, NewAccountLockedError(*user.LockedUntil)
	}

	if user.HasExpiredLock(now) {
		if err := u.store.ClearExpiredLock(ctx, user.ID, u.policy, now); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to clear expired lock")
		}
	}

	if !user.VerifyPassword(password) {
		updated, err := u.store.TrackAttemptedLogin(ctx, user.ID, u.policy, now)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to track login attempt")
		}

		u.record(ctx, ActivityEventLoginFailure, user, map[string]any{
			"login_attempts": updated.LoginAttempts,
		})

		if updated.IsLocked(now) {
			u.logger.Warn("account locked after failed logins",
				"user_id", user.ID.String(),
				"locked_until", updated.LockedUntil,
			)
			u.record(ctx, ActivityEventAccountLocked, user, map[string]any{
				"locked_until": updated.LockedUntil,
			})
			return nil, NewAccountLockedError(*updated.LockedUntil)
		}

		return nil, ErrMismatchedHashAndPassword.Clone()
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	updated, err := u.store.TrackSuccessfulLogin(ctx, user.ID, now)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, u.lockedSince(ctx, user.ID, now)
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to track successful login")
	}

	u.record(ctx, ActivityEventLoginSuccess, updated, nil)

	return updated, nil
}

// lockedSince reports why a successful login matched no row: the account was
// locked by a concurrent failure or is gone.
func (u *UserProvider) lockedSince(ctx context.Context, id uuid.UUID, now time.Time) error {
	current, err := u.store.GetActiveByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return ErrMismatchedHashAndPassword.Clone()
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to reload user after login")
	}

	if current.IsLocked(now) {
		return NewAccountLockedError(*current.LockedUntil)
	}

	return ErrMismatchedHashAndPassword.Clone()
}

// ResolveSession re-reads the token subject and checks it is still allowed in.
func (u *UserProvider) ResolveSession(ctx context.Context, claims AuthClaims) (*Session, error) {
	if claims == nil {
		return nil, ErrAuthRequired.Clone()
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, ErrTokenMalformed.Clone()
	}

	user, err := u.store.GetActiveByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.IsNotFound(err) {
			return nil, ErrUserNotFound.Clone()
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to resolve session user").
			WithCode(errors.CodeInternal).
			WithTextCode(CodeAuthError)
	}

	if user == nil || !user.IsActive {
		return nil, ErrUserNotFound.Clone()
	}

	if user.ChangedPasswordAfter(claims.IssuedAt().Unix()) {
		return nil, ErrPasswordChanged.Clone()
	}

	if user.IsLocked(u.now()) {
		return nil, NewAccountLockedError(*user.LockedUntil)
	}

	if u.cfg.RequireVerifiedEmail && !user.EmailVerified {
		return nil, ErrEmailNotVerified.Clone()
	}

	if err := u.validate(user); err != nil {
		return nil, err
	}

	return &Session{User: user, Claims: claims}, nil
}

// GenerateResetToken stores the hash of a fresh reset token and returns the
// raw token for delivery.
func (u *UserProvider) GenerateResetToken(ctx context.Context, user *User) (string, error) {
	return u.generateSecret(ctx, user, u.cfg.ResetTokenTTL, u.store.SaveResetToken)
}

// GenerateEmailVerificationToken stores the hash of a fresh verification
// token and returns the raw token for delivery.
func (u *UserProvider) GenerateEmailVerificationToken(ctx context.Context, user *User) (string, error) {
	return u.generateSecret(ctx, user, u.cfg.VerificationTokenTTL, u.store.SaveVerificationToken)
}

type secretSaver func(ctx context.Context, id uuid.UUID, token SecretToken, now time.Time) error

func (u *UserProvider) generateSecret(ctx context.Context, user *User, ttl time.Duration, save secretSaver) (string, error) {
	if user == nil {
		return "", ErrUserNotFound.Clone()
	}

	now := u.now()
	token, err := NewSecretToken(now, ttl)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate token")
	}

	if err := save(ctx, user.ID, token, now); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to store token")
	}

	return token.Raw, nil
}

func (u *UserProvider) record(ctx context.Context, eventType ActivityEventType, user *User, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   meta,
		OccurredAt: u.now().UTC(),
	}
	if user != nil {
		event.UserID = user.ID.String()
		event.ActorID = user.ID.String()
	}
	recordActivity(ctx, u.activity, u.logger, event)
}

func defaultValidator(u *User) error {
	if u == nil {
		return ErrUserNotFound.Clone()
	}
	if u.Role.IsValid() {
		return nil
	}
	return errors.New("user has an unknown or invalid role", errors.CategoryAuth).
		WithCode(errors.CodeForbidden).
		WithTextCode(CodeForbidden).
		WithMetadata(map[string]any{"role": u.Role, "user_id": u.ID.String()})
}
