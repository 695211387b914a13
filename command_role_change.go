package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type ChangeRoleMessage struct {
	ActorID    string `json:"-"`
	Identifier string `json:"-"`
	Role       string `json:"role" example:"moderator" doc:"user, moderator or admin"`
}

type ChangeRoleHandler struct {
	repo     RepositoryManager
	now      func() time.Time
	activity ActivitySink
	logger   Logger
}

func NewChangeRoleHandler(repo RepositoryManager) *ChangeRoleHandler {
	_, logger := ResolveLogger("auth.role_change", nil, nil)
	return &ChangeRoleHandler{
		repo:     repo,
		now:      time.Now,
		activity: noopActivitySink{},
		logger:   logger,
	}
}

func (h *ChangeRoleHandler) WithActivitySink(sink ActivitySink) *ChangeRoleHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *ChangeRoleHandler) WithLogger(logger Logger) *ChangeRoleHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangeRoleHandler) Execute(ctx context.Context, event ChangeRoleMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during role change")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeRoleHandler) execute(ctx context.Context, event ChangeRoleMessage) (*User, error) {
	role, ok := ParseRole(event.Role)
	if !ok {
		return nil, fieldError("invalid role change data", "role", "role must be one of user, moderator or admin")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, goerrors.New("user not found", goerrors.CategoryNotFound).
				WithCode(goerrors.CodeNotFound)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not retrieve user for role change")
	}

	if user.ID.String() == event.ActorID {
		return nil, goerrors.New("administrators can not change their own role", goerrors.CategoryAuthz).
			WithCode(goerrors.CodeForbidden).
			WithTextCode(CodeForbidden)
	}

	if user.Role == role {
		return user, nil
	}

	updated, err := h.repo.Users().UpdateRole(ctx, user.ID, role, h.now())
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user role")
	}

	h.logger.Info("user role changed", "user_id", user.ID.String(), "from", user.Role, "to", role, "actor_id", event.ActorID)

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventRoleChanged,
		ActorID:   event.ActorID,
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"from": user.Role,
			"to":   role,
		},
	})

	return updated, nil
}
