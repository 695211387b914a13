package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

type ChangePasswordMessage struct {
	UserID          uuid.UUID `json:"-"`
	CurrentPassword string    `json:"currentPassword" doc:"Current password"`
	NewPassword     string    `json:"newPassword" doc:"New password"`
}

func (e ChangePasswordMessage) Validate(minPasswordLength int) error {
	return invalidInput(validation.ValidateStruct(&e,
		validation.Field(&e.CurrentPassword, validation.Required.Error("current password is required")),
		validation.Field(&e.NewPassword, append(passwordRules(minPasswordLength),
			validation.NotIn(e.CurrentPassword).Error("new password must differ from the current one"))...),
	), "invalid password change data")
}

// ChangePasswordHandler replaces the password of an authenticated user.
// Tokens issued before the change stop resolving.
type ChangePasswordHandler struct {
	repo     RepositoryManager
	cfg      Config
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(repo RepositoryManager, cfg Config) *ChangePasswordHandler {
	_, logger := ResolveLogger("auth.password_change", nil, nil)
	return &ChangePasswordHandler{
		repo:     repo,
		cfg:      cfg.WithDefaults(),
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangePasswordHandler) WithClock(now func() time.Time) *ChangePasswordHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *ChangePasswordHandler) Execute(ctx context.Context, event ChangePasswordMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, event ChangePasswordMessage) (*User, error) {
	if err := event.Validate(h.cfg.PasswordMinLength); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetActiveByID(ctx, event.UserID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound.Clone()
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for password change")
	}

	if !user.VerifyPassword(event.CurrentPassword) {
		return nil, fieldError("invalid password change data", "currentPassword", "current password is incorrect")
	}

	hash, err := HashPassword(event.NewPassword)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	now := h.now()
	updated, err := h.repo.Users().ChangePassword(ctx, user.ID, hash, now)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user password in database")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventPasswordChanged,
		ActorID:    user.ID.String(),
		UserID:     user.ID.String(),
		OccurredAt: now.UTC(),
	})

	return updated, nil
}
