package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type AccountVerificationRequestMessage struct {
	UserID uuid.UUID `json:"user_id"`
}

// AccountVerificationRequestHandler mails a new verification token to an
// account that has not verified its email yet.
type AccountVerificationRequestHandler struct {
	repo    RepositoryManager
	secrets *UserProvider
	mailer  Mailer
	logger  Logger
}

func NewAccountVerificationRequestHandler(repo RepositoryManager, secrets *UserProvider) *AccountVerificationRequestHandler {
	_, logger := ResolveLogger("auth.account_verification", nil, nil)
	return &AccountVerificationRequestHandler{
		repo:    repo,
		secrets: secrets,
		mailer:  normalizeMailer(nil, logger),
		logger:  logger,
	}
}

func (h *AccountVerificationRequestHandler) WithMailer(m Mailer) *AccountVerificationRequestHandler {
	h.mailer = normalizeMailer(m, h.logger)
	return h
}

func (h *AccountVerificationRequestHandler) WithLogger(logger Logger) *AccountVerificationRequestHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationRequestHandler) Execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationRequestHandler) execute(ctx context.Context, event AccountVerificationRequestMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetActiveByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound.Clone()
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for verification")
	}

	if user.EmailVerified {
		return goerrors.New("email address is already verified", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest).
			WithTextCode("ALREADY_VERIFIED")
	}

	token, err := h.secrets.GenerateEmailVerificationToken(ctx, user)
	if err != nil {
		return err
	}

	if err := h.mailer.SendEmailVerification(ctx, user.Email, user.Username, token); err != nil {
		h.logger.Error("failed to send verification email", "user_id", user.ID.String(), "error", err)
		return goerrors.Wrap(err, goerrors.CategoryExternal, "email could not be sent").
			WithCode(goerrors.CodeInternal)
	}

	return nil
}
