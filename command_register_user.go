package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username string `json:"username" example:"alice" doc:"3 to 30 letters, numbers or underscores"`
	Email    string `json:"email" example:"alice@example.com" doc:"Email address"`
	Password string `json:"password" example:"Passw0rd!" doc:"Password"`
}

// Validate checks the payload with the given minimum password length.
func (e RegisterUserMessage) Validate(minPasswordLength int) error {
	return invalidInput(validation.ValidateStruct(&e,
		validation.Field(&e.Username, usernameRules()...),
		validation.Field(&e.Email, validation.Required.Error("email is required"), is.EmailFormat.Error("please provide a valid email")),
		validation.Field(&e.Password, passwordRules(minPasswordLength)...),
	), "invalid registration data")
}

type RegisterUserHandler struct {
	repo     RepositoryManager
	secrets  *UserProvider
	mailer   Mailer
	cfg      Config
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates a handler. The user provider is used to
// issue the email verification token sent after registration.
func NewRegisterUserHandler(repo RepositoryManager, secrets *UserProvider, cfg Config) *RegisterUserHandler {
	_, logger := ResolveLogger("auth.register_user", nil, nil)
	return &RegisterUserHandler{
		repo:     repo,
		secrets:  secrets,
		mailer:   normalizeMailer(nil, logger),
		cfg:      cfg.WithDefaults(),
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *RegisterUserHandler) WithMailer(m Mailer) *RegisterUserHandler {
	h.mailer = normalizeMailer(m, h.logger)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) WithClock(now func() time.Time) *RegisterUserHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	if err := event.Validate(h.cfg.PasswordMinLength); err != nil {
		return nil, err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	now := h.now().UTC()
	user := &User{
		Username:          event.Username,
		Email:             event.Email,
		PasswordHash:      hash,
		Role:              RoleUser,
		IsActive:          true,
		PasswordChangedAt: &now,
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().IdentifiersTakenTx(ctx, tx, event.Username, event.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check existing users")
		}

		if taken.Email {
			return fieldError("user already exists", "email", "user with this email already exists")
		}

		if taken.Username {
			return fieldError("user already exists", "username", "username already taken")
		}

		if user, err = h.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			if repository.IsDuplicatedKey(err) {
				return fieldError("user already exists", "email", "user with this email or username already exists")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create user")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventUserRegistered,
		ActorID:    user.ID.String(),
		UserID:     user.ID.String(),
		OccurredAt: now,
	})

	h.sendVerification(ctx, user)

	return user, nil
}

// sendVerification is best effort, registration succeeds without it.
func (h *RegisterUserHandler) sendVerification(ctx context.Context, user *User) {
	if h.secrets == nil {
		return
	}

	token, err := h.secrets.GenerateEmailVerificationToken(ctx, user)
	if err != nil {
		h.logger.Error("failed to create verification token", "user_id", user.ID.String(), "error", err)
		return
	}

	if err := h.mailer.SendEmailVerification(ctx, user.Email, user.Username, token); err != nil {
		h.logger.Error("failed to send verification email", "user_id", user.ID.String(), "error", err)
	}
}
