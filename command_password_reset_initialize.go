package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"alice@example.com" doc:"Account email."`
}

func (p InitializePasswordResetMessage) Validate() error {
	return invalidInput(validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required.Error("email is required"), is.EmailFormat.Error("please provide a valid email")),
	), "invalid password reset request")
}

// InitializePasswordResetHandler mails a reset token. Unknown or inactive
// emails succeed silently so the endpoint can not be used to discover accounts.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	secrets  *UserProvider
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager, secrets *UserProvider) *InitializePasswordResetHandler {
	_, logger := ResolveLogger("auth.password_reset", nil, nil)
	return &InitializePasswordResetHandler{
		repo:     repo,
		secrets:  secrets,
		mailer:   normalizeMailer(nil, logger),
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *InitializePasswordResetHandler) WithMailer(m Mailer) *InitializePasswordResetHandler {
	h.mailer = normalizeMailer(m, h.logger)
	return h
}

func (h *InitializePasswordResetHandler) WithActivitySink(sink ActivitySink) *InitializePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByEmail(ctx, event.Email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			h.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password reset")
	}

	if !user.IsActive {
		return nil
	}

	token, err := h.secrets.GenerateResetToken(ctx, user)
	if err != nil {
		return err
	}

	if err := h.mailer.SendPasswordReset(ctx, user.Email, user.Username, token); err != nil {
		h.logger.Error("failed to send password reset email", "user_id", user.ID.String(), "error", err)
		return goerrors.Wrap(err, goerrors.CategoryExternal, "email could not be sent").
			WithCode(goerrors.CodeInternal)
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		ActorID:   user.ID.String(),
		UserID:    user.ID.String(),
	})

	return nil
}
