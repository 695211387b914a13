package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type AccountVerificationMessage struct {
	Token string `json:"token" doc:"Verification token received by email"`
}

type AccountVerificationHandler struct {
	repo     RepositoryManager
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

func NewAccountVerificationHandler(repo RepositoryManager) *AccountVerificationHandler {
	_, logger := ResolveLogger("auth.account_verification", nil, nil)
	return &AccountVerificationHandler{
		repo:     repo,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *AccountVerificationHandler) WithActivitySink(sink ActivitySink) *AccountVerificationHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *AccountVerificationHandler) WithLogger(logger Logger) *AccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationHandler) WithClock(now func() time.Time) *AccountVerificationHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) error {
	raw := strings.TrimSpace(event.Token)
	if raw == "" {
		return ErrInvalidVerificationToken.Clone()
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	tokenHash := HashSecretToken(raw)
	now := h.now()
	var user *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().GetByVerificationTokenHashTx(ctx, tx, tokenHash)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerificationToken.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve verification request")
		}

		if !found.CheckEmailVerificationToken(raw, now) {
			return ErrInvalidVerificationToken.Clone()
		}

		user, err = h.repo.Users().MarkEmailVerifiedTx(ctx, tx, found.ID, tokenHash, now)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidVerificationToken.Clone()
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark email as verified")
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify account")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType:  ActivityEventEmailVerified,
		ActorID:    user.ID.String(),
		UserID:     user.ID.String(),
		OccurredAt: now.UTC(),
	})

	return nil
}
