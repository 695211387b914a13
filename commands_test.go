package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-library-auth"
)

type mailMessage struct {
	to, token string
}

type memoryMailer struct {
	mu     sync.Mutex
	resets []mailMessage
	verify []mailMessage
	err    error
}

func (m *memoryMailer) SendPasswordReset(_ context.Context, to, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, mailMessage{to, token})
	return m.err
}

func (m *memoryMailer) SendEmailVerification(_ context.Context, to, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, mailMessage{to, token})
	return m.err
}

type commandFixture struct {
	repo     auth.RepositoryManager
	provider *auth.UserProvider
	mailer   *memoryMailer
	sink     *recordingSink
	now      time.Time
}

func newCommandFixture(t *testing.T) *commandFixture {
	f := &commandFixture{
		repo:   newSQLiteRepo(t),
		mailer: &memoryMailer{},
		sink:   &recordingSink{},
		now:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.provider = auth.NewUserProvider(f.repo.Users(), testConfig()).WithClock(f.clock)
	return f
}

func (f *commandFixture) clock() time.Time { return f.now }

func (f *commandFixture) register(t *testing.T, username, email string) *auth.User {
	t.Helper()
	user, err := auth.NewRegisterUserHandler(f.repo, f.provider, testConfig()).
		WithMailer(f.mailer).
		WithActivitySink(f.sink).
		WithClock(f.clock).
		Execute(context.Background(), auth.RegisterUserMessage{
			Username: username,
			Email:    email,
			Password: "Passw0rd!",
		})
	require.NoError(t, err)
	return user
}

func fields(err error) []string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return nil
	}
	out := []string{}
	for _, fe := range richErr.ValidationErrors {
		out = append(out, fe.Field)
	}
	return out
}

func TestRegisterUserHandler(t *testing.T) {
	f := newCommandFixture(t)

	user := f.register(t, "Alice", "Alice@X.com")

	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@x.com", user.Email)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.EmailVerified)
	assert.True(t, user.VerifyPassword("Passw0rd!"))
	require.NotNil(t, user.PasswordChangedAt)
	assert.True(t, f.now.Equal(*user.PasswordChangedAt))

	require.Len(t, f.mailer.verify, 1)
	assert.Equal(t, "alice@x.com", f.mailer.verify[0].to)

	stored, err := f.repo.Users().GetByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, auth.HashSecretToken(f.mailer.verify[0].token), stored.EmailVerificationToken)

	assert.Contains(t, f.sink.types(), auth.ActivityEventUserRegistered)
}

func TestRegisterUserHandlerValidation(t *testing.T) {
	f := newCommandFixture(t)
	h := auth.NewRegisterUserHandler(f.repo, f.provider, testConfig())

	tests := []struct {
		name   string
		msg    auth.RegisterUserMessage
		fields []string
	}{
		{"short username", auth.RegisterUserMessage{Username: "al", Email: "a@x.com", Password: "Passw0rd!"}, []string{"username"}},
		{"long username", auth.RegisterUserMessage{Username: "a123456789012345678901234567890", Email: "a@x.com", Password: "Passw0rd!"}, []string{"username"}},
		{"bad characters", auth.RegisterUserMessage{Username: "al-ice", Email: "a@x.com", Password: "Passw0rd!"}, []string{"username"}},
		{"bad email", auth.RegisterUserMessage{Username: "alice", Email: "alice", Password: "Passw0rd!"}, []string{"email"}},
		{"short password", auth.RegisterUserMessage{Username: "alice", Email: "a@x.com", Password: "Pa55"}, []string{"password"}},
		{"password without digit", auth.RegisterUserMessage{Username: "alice", Email: "a@x.com", Password: "Password!"}, []string{"password"}},
		{"everything missing", auth.RegisterUserMessage{}, []string{"email", "password", "username"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Execute(context.Background(), tt.msg)
			require.Error(t, err)
			assert.Equal(t, 400, auth.HTTPStatus(err))
			assert.ElementsMatch(t, tt.fields, fields(err))
		})
	}
}

func TestRegisterUserHandlerDuplicates(t *testing.T) {
	f := newCommandFixture(t)
	f.register(t, "alice", "alice@x.com")
	h := auth.NewRegisterUserHandler(f.repo, f.provider, testConfig())

	_, err := h.Execute(context.Background(), auth.RegisterUserMessage{Username: "bob", Email: "ALICE@x.com", Password: "Passw0rd!"})
	assert.Equal(t, []string{"email"}, fields(err))

	_, err = h.Execute(context.Background(), auth.RegisterUserMessage{Username: "ALICE", Email: "bob@x.com", Password: "Passw0rd!"})
	assert.Equal(t, []string{"username"}, fields(err))
}

func TestRegisterUserHandlerMailFailureKeepsAccount(t *testing.T) {
	f := newCommandFixture(t)
	f.mailer.err = errors.New("smtp down")

	user := f.register(t, "alice", "alice@x.com")
	assert.NotNil(t, user)
}

func TestRegisterUserHandlerCancelledContext(t *testing.T) {
	f := newCommandFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := auth.NewRegisterUserHandler(f.repo, f.provider, testConfig()).
		Execute(ctx, auth.RegisterUserMessage{Username: "alice", Email: "alice@x.com", Password: "Passw0rd!"})
	assert.True(t, goerrors.IsCategory(err, goerrors.CategoryOperation))
}

func TestChangePasswordHandler(t *testing.T) {
	f := newCommandFixture(t)
	user := f.register(t, "alice", "alice@x.com")
	h := auth.NewChangePasswordHandler(f.repo, testConfig()).
		WithActivitySink(f.sink).
		WithClock(f.clock)

	_, err := h.Execute(context.Background(), auth.ChangePasswordMessage{UserID: user.ID, CurrentPassword: "Wr0ngPass", NewPassword: "N3wPassw0rd"})
	assert.Equal(t, []string{"currentPassword"}, fields(err))

	_, err = h.Execute(context.Background(), auth.ChangePasswordMessage{UserID: user.ID, CurrentPassword: "Passw0rd!", NewPassword: "Passw0rd!"})
	assert.Equal(t, []string{"newPassword"}, fields(err))

	f.now = f.now.Add(5 * time.Second)
	updated, err := h.Execute(context.Background(), auth.ChangePasswordMessage{UserID: user.ID, CurrentPassword: "Passw0rd!", NewPassword: "N3wPassw0rd"})
	require.NoError(t, err)
	assert.True(t, updated.VerifyPassword("N3wPassw0rd"))
	assert.True(t, updated.ChangedPasswordAfter(f.now.Add(-time.Second).Unix()))
	assert.Contains(t, f.sink.types(), auth.ActivityEventPasswordChanged)
}

func TestPasswordResetHandlers(t *testing.T) {
	f := newCommandFixture(t)
	f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	init := auth.NewInitializePasswordResetHandler(f.repo, f.provider).
		WithMailer(f.mailer).
		WithActivitySink(f.sink)
	finalize := auth.NewFinalizePasswordResetHandler(f.repo, testConfig()).
		WithActivitySink(f.sink).
		WithClock(f.clock)

	require.NoError(t, init.Execute(ctx, auth.InitializePasswordResetMessage{Email: "nobody@x.com"}))
	assert.Empty(t, f.mailer.resets)

	require.NoError(t, init.Execute(ctx, auth.InitializePasswordResetMessage{Email: "ALICE@x.com"}))
	require.Len(t, f.mailer.resets, 1)
	raw := f.mailer.resets[0].token

	err := finalize.Execute(ctx, auth.FinalizePasswordResetMessage{Token: "bogus", Password: "N3wPassw0rd"})
	assert.Equal(t, 400, auth.HTTPStatus(err))

	err = finalize.Execute(ctx, auth.FinalizePasswordResetMessage{Token: raw, Password: "weak"})
	assert.Equal(t, []string{"password"}, fields(err))

	require.NoError(t, finalize.Execute(ctx, auth.FinalizePasswordResetMessage{Token: raw, Password: "N3wPassw0rd"}))

	user, err := f.repo.Users().GetByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.True(t, user.VerifyPassword("N3wPassw0rd"))
	assert.Empty(t, user.ResetPasswordToken)

	err = finalize.Execute(ctx, auth.FinalizePasswordResetMessage{Token: raw, Password: "An0therPass"})
	assert.Equal(t, 400, auth.HTTPStatus(err), "tokens are single use")

	assert.Contains(t, f.sink.types(), auth.ActivityEventPasswordResetRequest)
	assert.Contains(t, f.sink.types(), auth.ActivityEventPasswordResetSuccess)
}

func TestPasswordResetExpiredToken(t *testing.T) {
	f := newCommandFixture(t)
	f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	require.NoError(t, auth.NewInitializePasswordResetHandler(f.repo, f.provider).
		WithMailer(f.mailer).
		Execute(ctx, auth.InitializePasswordResetMessage{Email: "alice@x.com"}))

	f.now = f.now.Add(10*time.Minute + time.Second)

	err := auth.NewFinalizePasswordResetHandler(f.repo, testConfig()).
		WithClock(f.clock).
		Execute(ctx, auth.FinalizePasswordResetMessage{Token: f.mailer.resets[0].token, Password: "N3wPassw0rd"})
	assert.Equal(t, 400, auth.HTTPStatus(err))
}

func TestAccountVerificationHandlers(t *testing.T) {
	f := newCommandFixture(t)
	user := f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	request := auth.NewAccountVerificationRequestHandler(f.repo, f.provider).WithMailer(f.mailer)
	verify := auth.NewAccountVerificationHandler(f.repo).
		WithActivitySink(f.sink).
		WithClock(f.clock)

	require.NoError(t, request.Execute(ctx, auth.AccountVerificationRequestMessage{UserID: user.ID}))
	require.Len(t, f.mailer.verify, 2)

	err := verify.Execute(ctx, auth.AccountVerificationMessage{Token: f.mailer.verify[0].token})
	assert.Equal(t, 400, auth.HTTPStatus(err), "a newer token replaces the older one")

	require.NoError(t, verify.Execute(ctx, auth.AccountVerificationMessage{Token: f.mailer.verify[1].token}))

	stored, err := f.repo.Users().GetActiveByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
	assert.Empty(t, stored.EmailVerificationToken)
	assert.Contains(t, f.sink.types(), auth.ActivityEventEmailVerified)

	err = request.Execute(ctx, auth.AccountVerificationRequestMessage{UserID: user.ID})
	assert.Equal(t, 400, auth.HTTPStatus(err))
}

func TestChangeRoleHandler(t *testing.T) {
	f := newCommandFixture(t)
	admin := f.register(t, "root", "root@x.com")
	user := f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	h := auth.NewChangeRoleHandler(f.repo).WithActivitySink(f.sink)

	updated, err := h.Execute(ctx, auth.ChangeRoleMessage{ActorID: admin.ID.String(), Identifier: "alice", Role: "Moderator"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, updated.Role)
	assert.Contains(t, f.sink.types(), auth.ActivityEventRoleChanged)

	same, err := h.Execute(ctx, auth.ChangeRoleMessage{ActorID: admin.ID.String(), Identifier: user.ID.String(), Role: "moderator"})
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, same.Role)

	_, err = h.Execute(ctx, auth.ChangeRoleMessage{ActorID: admin.ID.String(), Identifier: "alice", Role: "owner"})
	assert.Equal(t, []string{"role"}, fields(err))

	_, err = h.Execute(ctx, auth.ChangeRoleMessage{ActorID: admin.ID.String(), Identifier: "ghost", Role: "admin"})
	assert.Equal(t, 404, auth.HTTPStatus(err))

	_, err = h.Execute(ctx, auth.ChangeRoleMessage{ActorID: admin.ID.String(), Identifier: "root", Role: "user"})
	assert.Equal(t, 403, auth.HTTPStatus(err))
}

func TestUnlockAccountHandler(t *testing.T) {
	f := newCommandFixture(t)
	user := f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := f.repo.Users().TrackAttemptedLogin(ctx, user.ID, auth.DefaultLockoutPolicy(), f.now)
		require.NoError(t, err)
	}

	h := auth.NewUnlockAccountHandler(f.repo).WithActivitySink(f.sink)

	unlocked, err := h.Execute(ctx, auth.UnlockAccountMessage{ActorID: "admin", Identifier: "alice@x.com"})
	require.NoError(t, err)
	assert.Equal(t, 0, unlocked.LoginAttempts)
	assert.False(t, unlocked.IsLocked(f.now))
	assert.Contains(t, f.sink.types(), auth.ActivityEventAccountUnlocked)

	_, err = h.Execute(ctx, auth.UnlockAccountMessage{ActorID: "admin", Identifier: "ghost"})
	assert.Equal(t, 404, auth.HTTPStatus(err))
}

func TestLoginFlowAgainstStore(t *testing.T) {
	f := newCommandFixture(t)
	f.register(t, "alice", "alice@x.com")
	ctx := context.Background()

	auther := auth.NewAuthenticator(f.provider, auth.NewTokenService(testConfig()).WithClock(f.clock))

	for i := 0; i < 4; i++ {
		_, err := auther.Login(ctx, "alice@x.com", "wrong-pass1")
		assert.Equal(t, 400, auth.HTTPStatus(err))
	}

	_, err := auther.Login(ctx, "alice@x.com", "wrong-pass1")
	assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))

	_, err = auther.Login(ctx, "alice@x.com", "Passw0rd!")
	assert.True(t, auth.HasCode(err, auth.CodeAccountLocked))

	f.now = f.now.Add(30*time.Minute + time.Second)

	res, err := auther.Login(ctx, "alice@x.com", "Passw0rd!")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	session, err := auther.SessionFromToken(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, session.User.LoginAttempts)
	assert.Equal(t, "alice", session.Username())
}
