package audit

import (
	"context"
	"log/slog"
	"time"
)

// ChannelPublisher hands events to an in-process worker through a buffered
// channel. When the buffer is full the event is dropped rather than blocking
// the safety-check path; drops are logged.
type ChannelPublisher struct {
	inbox  chan<- Event
	logger *slog.Logger
}

func NewChannelPublisher(inbox chan<- Event, logger *slog.Logger) *ChannelPublisher {
	return &ChannelPublisher{inbox: inbox, logger: logger}
}

func (p *ChannelPublisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit inbox full, event dropped",
				"action", event.Action,
				"session_id", event.SessionID,
			)
		}
		return nil
	}
}

// NopPublisher discards events. Used when no audit sink is configured.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
