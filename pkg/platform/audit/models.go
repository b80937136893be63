// Package audit defines the audit event model and publishing contracts for
// supervisor-relevant actions. Events are emitted from domain services and
// fanned out to a sink (kafka in production, a channel worker elsewhere);
// the event itself stays transport-agnostic.
package audit

import (
	"context"
	"time"

	id "genba/pkg/domain"
)

// Action names the audited operation.
type Action string

const (
	ActionSessionStarted   Action = "session_started"
	ActionSessionPaused    Action = "session_paused"
	ActionSessionResumed   Action = "session_resumed"
	ActionSessionAborted   Action = "session_aborted"
	ActionSessionCompleted Action = "session_completed"
	ActionSessionApproved  Action = "session_approved"
	ActionSessionRejected  Action = "session_rejected"
	ActionCheckOverridden  Action = "check_overridden"
)

// Event is emitted from domain logic to capture key actions on a session.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time    `json:"timestamp"`
	Action    Action       `json:"action"`
	SessionID id.SessionID `json:"session_id"`
	// ActorID is who performed the action: the worker for lifecycle
	// transitions, the supervisor for approvals, rejections, and overrides.
	ActorID   id.UserID `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Publisher emits audit events. Emit must not block the calling request for
// long; slow sinks buffer or drop and report via their own telemetry.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store persists audit events. The memory implementation backs tests and
// single-node deployments; kafka consumers own durable storage in
// production.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]Event, error)
}
