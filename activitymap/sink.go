package activitymap

import (
	"context"

	auth "github.com/goliatone/go-library-auth"
)

// LogSink writes every activity event as a normalized audit log line.
type LogSink struct {
	logger auth.Logger
	opts   []Option
}

var _ auth.ActivitySink = (*LogSink)(nil)

func NewLogSink(logger auth.Logger, opts ...Option) *LogSink {
	_, logger = auth.ResolveLogger("auth.audit", nil, logger)
	return &LogSink{logger: logger, opts: opts}
}

func (s *LogSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n := Normalize(event, s.opts...)
	args := []any{
		"verb", n.Verb,
		"actor_id", n.ActorID,
		"object_type", n.ObjectType,
		"object_id", n.ObjectID,
		"channel", n.Channel,
		"occurred_at", n.OccurredAt,
	}
	if len(n.Metadata) > 0 {
		args = append(args, "metadata", n.Metadata)
	}

	s.logger.Info("activity", args...)
	return nil
}
