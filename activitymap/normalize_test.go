package activitymap_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-library-auth"
	"github.com/goliatone/go-library-auth/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType: auth.ActivityEventRoleChanged,
		ActorID:   "admin-42",
		UserID:    "user-100",
		Metadata: map[string]any{
			"from":   auth.RoleUser,
			"to":     auth.RoleModerator,
			"ticket": "SEC-204",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	assert.Equal(t, "admin-42", out.ActorID)
	assert.Equal(t, string(auth.ActivityEventRoleChanged), out.Verb)
	assert.Equal(t, "user", out.ObjectType)
	assert.Equal(t, "user-100", out.ObjectID)
	assert.Equal(t, "auth", out.Channel)
	assert.True(t, out.OccurredAt.Equal(ts))

	assert.Equal(t, "SEC-204", out.Metadata["ticket"])
	assert.Equal(t, "user", out.Metadata[activitymap.MetadataKeyFromRole])
	assert.Equal(t, "moderator", out.Metadata[activitymap.MetadataKeyToRole])
	assert.NotContains(t, out.Metadata, "from")

	assert.Equal(t, auth.RoleUser, event.Metadata["from"], "source metadata must not be mutated")
}

func TestNormalizeFallbacks(t *testing.T) {
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	out := activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess, UserID: "u-1"},
		activitymap.WithClock(func() time.Time { return now }))
	assert.Equal(t, "u-1", out.ActorID)
	assert.Equal(t, now, out.OccurredAt)
	assert.Nil(t, out.Metadata)

	out = activitymap.Normalize(auth.ActivityEvent{EventType: auth.ActivityEventLoginFailure},
		activitymap.WithActorFallback("anonymous"),
		activitymap.WithDefaultChannel("library"),
		activitymap.WithDefaultObjectType("member"),
	)
	assert.Equal(t, "anonymous", out.ActorID)
	assert.Equal(t, "library", out.Channel)
	assert.Equal(t, "member", out.ObjectType)
	assert.Empty(t, out.ObjectID)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := glog.NewLogger(
		glog.WithLoggerTypeJSON(),
		glog.WithWriter(&buf),
		glog.WithLevel("info"),
	)

	sink := activitymap.NewLogSink(logger)
	err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventAccountLocked,
		UserID:    "user-7",
		Metadata:  map[string]any{"login_attempts": 5},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "auth.account.locked")
	assert.Contains(t, out, "user-7")
	assert.Contains(t, out, "login_attempts")
}

func TestLogSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := activitymap.NewLogSink(nil).Record(ctx, auth.ActivityEvent{EventType: auth.ActivityEventLoginSuccess})
	assert.ErrorIs(t, err, context.Canceled)
}
