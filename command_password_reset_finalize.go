package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	Token    string `json:"token" example:"9f86d081884c7d65..." doc:"Reset token received by email"`
	Password string `json:"password" example:"N3wPassw0rd" doc:"New password"`
}

func (e FinalizePasswordResetMessage) Validate(minPasswordLength int) error {
	return invalidInput(validation.ValidateStruct(&e,
		validation.Field(&e.Token, validation.Required.Error("reset token is required")),
		validation.Field(&e.Password, passwordRules(minPasswordLength)...),
	), "invalid password reset data")
}

type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	cfg      Config
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, cfg Config) *FinalizePasswordResetHandler {
	_, logger := ResolveLogger("auth.password_reset", nil, nil)
	return &FinalizePasswordResetHandler{
		repo:     repo,
		cfg:      cfg.WithDefaults(),
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := event.Validate(h.cfg.PasswordMinLength); err != nil {
		return err
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	tokenHash := HashSecretToken(event.Token)
	now := h.now()
	var user *User

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().GetByResetTokenHashTx(ctx, tx, tokenHash)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidResetToken.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve password reset request")
		}

		if !found.CheckResetToken(event.Token, now) {
			return ErrInvalidResetToken.Clone()
		}

		user, err = h.repo.Users().ResetPasswordTx(ctx, tx, found.ID, tokenHash, passwordHash, now)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				// consumed by a concurrent request
				return ErrInvalidResetToken.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordResetSuccess,
		ActorID:    user.ID.String(),
		UserID:     user.ID.String(),
		OccurredAt: now.UTC(),
	})

	return nil
}
