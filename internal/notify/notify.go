// Package notify delivers invitation lifecycle events to outside listeners.
//
// Delivery is best effort. Services call Sink.Notify after their transaction
// has committed and never undo a state change because a sink failed.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/groupledger/internal/models"
)

// Sink receives committed events.
type Sink interface {
	Notify(ctx context.Context, event models.Event) error
}

// SinkFunc is an adapter to use a plain function as a Sink.
type SinkFunc func(ctx context.Context, event models.Event) error

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, event models.Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Sink = SinkFunc(func(context.Context, models.Event) error { return nil })

// LogSink writes events to a slog.Logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink. A nil logger means slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, event models.Event) error {
	s.logger.InfoContext(ctx, "Invitation event",
		"type", event.Type,
		"invitation_id", event.InvitationID,
		"group_id", event.GroupID,
		"user_id", event.UserID,
	)
	return nil
}

// Multi fans an event out to every sink. All sinks are called even when some
// fail; the failures are joined.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, event models.Event) error {
		var errs []error
		for _, s := range sinks {
			if err := s.Notify(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
