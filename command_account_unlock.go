package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type UnlockAccountMessage struct {
	ActorID    string
	Identifier string
}

// UnlockAccountHandler clears the failure counter and lock of an account.
type UnlockAccountHandler struct {
	repo     RepositoryManager
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

func NewUnlockAccountHandler(repo RepositoryManager) *UnlockAccountHandler {
	_, logger := ResolveLogger("auth.account_unlock", nil, nil)
	return &UnlockAccountHandler{
		repo:     repo,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *UnlockAccountHandler) WithActivitySink(sink ActivitySink) *UnlockAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UnlockAccountHandler) WithLogger(logger Logger) *UnlockAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *UnlockAccountHandler) Execute(ctx context.Context, event UnlockAccountMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account unlock")
	default:
		return h.execute(ctx, event)
	}
}

func (h *UnlockAccountHandler) execute(ctx context.Context, event UnlockAccountMessage) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for unlock")
	}

	updated, err := h.repo.Users().Unlock(ctx, user.ID, h.now())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to unlock account")
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAccountUnlocked,
		ActorID:   event.ActorID,
		UserID:    user.ID.String(),
	})

	return updated, nil
}
