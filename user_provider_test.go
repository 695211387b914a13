package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-library-auth"
)

var aliceHash = hashed("Passw0rd!")

func aliceUser() *auth.User {
	return &auth.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@x.com",
		PasswordHash: aliceHash,
		Role:         auth.RoleUser,
		IsActive:     true,
	}
}

func claimsFor(id string, issuedAt time.Time) *auth.JWTClaims {
	return &auth.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(24 * time.Hour)),
		},
		UID: id,
	}
}

func TestUserProviderVerifyIdentity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	policy := auth.DefaultLockoutPolicy()

	t.Run("Successful verification", func(t *testing.T) {
		tracker := new(MockUserTracker)
		sink := &recordingSink{}
		provider := auth.NewUserProvider(tracker, testConfig()).
			WithClock(fixedClock(now)).
			WithActivitySink(sink)

		user := aliceUser()
		user.LoginAttempts = 3
		updated := *user
		updated.LoginAttempts = 0
		updated.LastLoginAt = &now

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", mock.Anything, user.ID, now).Return(&updated, nil).Once()

		got, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.NoError(t, err)
		assert.Equal(t, 0, got.LoginAttempts)
		assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginSuccess}, sink.types())
		tracker.AssertExpectations(t)
	})

	t.Run("Invalid password below the limit", func(t *testing.T) {
		tracker := new(MockUserTracker)
		sink := &recordingSink{}
		provider := auth.NewUserProvider(tracker, testConfig()).
			WithClock(fixedClock(now)).
			WithActivitySink(sink)

		user := aliceUser()
		updated := *user
		updated.LoginAttempts = 1

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()
		tracker.On("TrackAttemptedLogin", mock.Anything, user.ID, policy, now).Return(&updated, nil).Once()

		got, err := provider.VerifyIdentity(ctx, "alice@x.com", "wrong")

		assert.Nil(t, got)
		require.Error(t, err)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))
		assert.False(t, auth.HasCode(err, auth.CodeAccountLocked))
		assert.Equal(t, []auth.ActivityEventType{auth.ActivityEventLoginFailure}, sink.types())
		tracker.AssertExpectations(t)
	})

	t.Run("Failure reaching the limit locks the account", func(t *testing.T) {
		tracker := new(MockUserTracker)
		sink := &recordingSink{}
		provider := auth.NewUserProvider(tracker, testConfig()).
			WithClock(fixedClock(now)).
			WithActivitySink(sink)

		user := aliceUser()
		user.LoginAttempts = 4
		lockedUntil := now.Add(30 * time.Minute)
		updated := *user
		updated.LoginAttempts = 5
		updated.LockedUntil = &lockedUntil

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()
		tracker.On("TrackAttemptedLogin", mock.Anything, user.ID, policy, now).Return(&updated, nil).Once()

		_, err := provider.VerifyIdentity(ctx, "alice@x.com", "wrong")

		require.Error(t, err)
		assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))
		until, ok := auth.LockedUntil(err)
		require.True(t, ok)
		assert.Equal(t, lockedUntil, until)
		assert.Equal(t, []auth.ActivityEventType{
			auth.ActivityEventLoginFailure,
			auth.ActivityEventAccountLocked,
		}, sink.types())
	})

	t.Run("Locked account rejects the correct password without counting", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		lockedUntil := now.Add(10 * time.Minute)
		user.LoginAttempts = 5
		user.LockedUntil = &lockedUntil

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()

		_, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.Error(t, err)
		assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))
		tracker.AssertNotCalled(t, "TrackAttemptedLogin", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		tracker.AssertNotCalled(t, "TrackSuccessfulLogin", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Expired lock is cleared before the password check", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		lockedUntil := now.Add(-time.Minute)
		user.LoginAttempts = 5
		user.LockedUntil = &lockedUntil
		updated := *user
		updated.LoginAttempts = 0
		updated.LockedUntil = nil

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()
		tracker.On("ClearExpiredLock", mock.Anything, user.ID, policy, now).Return(nil).Once()
		tracker.On("TrackSuccessfulLogin", mock.Anything, user.ID, now).Return(&updated, nil).Once()

		got, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.NoError(t, err)
		assert.Nil(t, got.LockedUntil)
		tracker.AssertExpectations(t)
	})

	t.Run("Lock set after the password check wins", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		locked := *user
		lockedUntil := now.Add(30 * time.Minute)
		locked.LoginAttempts = 5
		locked.LockedUntil = &lockedUntil

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()
		tracker.On("TrackSuccessfulLogin", mock.Anything, user.ID, now).Return(nil, repository.NewRecordNotFound()).Once()
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(&locked, nil).Once()

		got, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))
		tracker.AssertExpectations(t)
	})

	t.Run("Unknown email looks like a wrong password", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig())

		tracker.On("GetByEmail", mock.Anything, "ghost@x.com").Return(nil, repository.NewRecordNotFound()).Once()

		_, err := provider.VerifyIdentity(ctx, "ghost@x.com", "Passw0rd!")

		require.Error(t, err)
		assert.Equal(t, auth.ErrMismatchedHashAndPassword.Message, err.(*goerrors.Error).Message)
	})

	t.Run("Inactive user", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig())

		user := aliceUser()
		user.IsActive = false
		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(user, nil).Once()

		_, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.Error(t, err)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryBadInput))
	})

	t.Run("Store failure", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig())

		tracker.On("GetByEmail", mock.Anything, "alice@x.com").Return(nil, errors.New("connection reset")).Once()

		_, err := provider.VerifyIdentity(ctx, "alice@x.com", "Passw0rd!")

		require.Error(t, err)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))
	})
}

func TestUserProviderResolveSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Active user", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		changed := now.Add(-time.Hour)
		user.PasswordChangedAt = &changed
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(user, nil).Once()

		session, err := provider.ResolveSession(ctx, claimsFor(user.ID.String(), now.Add(-time.Minute)))

		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), session.ID())
		assert.Equal(t, "user", session.Role())
	})

	t.Run("Password changed in the same second is still valid", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		changed := now.Add(400 * time.Millisecond)
		user.PasswordChangedAt = &changed
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(user, nil).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(user.ID.String(), now))
		assert.NoError(t, err)
	})

	t.Run("Password changed after issue", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		changed := now.Add(time.Second)
		user.PasswordChangedAt = &changed
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(user, nil).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(user.ID.String(), now))
		assert.True(t, auth.HasCode(err, auth.CodePasswordChanged))
	})

	t.Run("Malformed subject", func(t *testing.T) {
		provider := auth.NewUserProvider(new(MockUserTracker), testConfig())

		_, err := provider.ResolveSession(ctx, claimsFor("not-a-uuid", now))
		assert.True(t, auth.HasCode(err, auth.CodeInvalidToken))
	})

	t.Run("Missing user", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig())

		id := uuid.New()
		tracker.On("GetActiveByID", mock.Anything, id).Return(nil, repository.NewRecordNotFound()).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(id.String(), now))
		assert.True(t, auth.HasCode(err, auth.CodeUserNotFound))
	})

	t.Run("Locked user", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))

		user := aliceUser()
		until := now.Add(5 * time.Minute)
		user.LockedUntil = &until
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(user, nil).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(user.ID.String(), now))
		assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))
	})

	t.Run("Unverified email when verification is required", func(t *testing.T) {
		tracker := new(MockUserTracker)
		cfg := testConfig()
		cfg.RequireVerifiedEmail = true
		provider := auth.NewUserProvider(tracker, cfg).WithClock(fixedClock(now))

		user := aliceUser()
		tracker.On("GetActiveByID", mock.Anything, user.ID).Return(user, nil).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(user.ID.String(), now))
		assert.True(t, auth.HasCode(err, auth.CodeForbidden))
	})

	t.Run("Store failure", func(t *testing.T) {
		tracker := new(MockUserTracker)
		provider := auth.NewUserProvider(tracker, testConfig())

		id := uuid.New()
		tracker.On("GetActiveByID", mock.Anything, id).Return(nil, errors.New("db down")).Once()

		_, err := provider.ResolveSession(ctx, claimsFor(id.String(), now))
		assert.True(t, auth.HasCode(err, auth.CodeAuthError))
	})

	t.Run("Nil claims", func(t *testing.T) {
		provider := auth.NewUserProvider(new(MockUserTracker), testConfig())

		_, err := provider.ResolveSession(ctx, nil)
		assert.True(t, auth.HasCode(err, auth.CodeAuthRequired))
	})
}

func TestUserProviderGenerateResetToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := new(MockUserTracker)
	provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))
	user := aliceUser()

	var saved auth.SecretToken
	tracker.On("SaveResetToken", mock.Anything, user.ID, mock.AnythingOfType("auth.SecretToken"), now).
		Run(func(args mock.Arguments) { saved = args.Get(2).(auth.SecretToken) }).
		Return(nil).Once()

	raw, err := provider.GenerateResetToken(context.Background(), user)

	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, auth.HashSecretToken(raw), saved.Hash)
	assert.Equal(t, now.Add(10*time.Minute), saved.Expires)
}

func TestUserProviderGenerateVerificationToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tracker := new(MockUserTracker)
	provider := auth.NewUserProvider(tracker, testConfig()).WithClock(fixedClock(now))
	user := aliceUser()

	tracker.On("SaveVerificationToken", mock.Anything, user.ID, mock.MatchedBy(func(tok auth.SecretToken) bool {
		return tok.Expires.Equal(now.Add(24*time.Hour))
	}), now).Return(errors.New("write failed")).Once()

	_, err := provider.GenerateEmailVerificationToken(context.Background(), user)
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryInternal))
}
