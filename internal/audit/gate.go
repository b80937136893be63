// Package audit holds the supervisor review gate: the only code path that
// approves or rejects a completed session and thereby locks it.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"genba/internal/session/metrics"
	"genba/internal/session/models"
	"genba/internal/session/store"
	sopmodels "genba/internal/sop/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	platformaudit "genba/pkg/platform/audit"
	"genba/pkg/platform/sentinel"
	"genba/pkg/requestcontext"
)

// SOPReader resolves procedure titles for review listings.
type SOPReader interface {
	GetByID(ctx context.Context, sopID id.SOPID) (*sopmodels.SOP, error)
}

// ReviewItem summarizes one session awaiting supervisor review.
type ReviewItem struct {
	Session      *models.WorkSession
	SOPTitle     string
	CheckCount   int
	FailedChecks int
	NeedsReview  int
}

// Gate performs supervisor review operations.
type Gate struct {
	sessions   store.SessionStore
	sops       SOPReader
	publisher  platformaudit.Publisher
	auditStore platformaudit.Store
	logger     *slog.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithEventStore enables per-session audit event listings.
func WithEventStore(store platformaudit.Store) Option {
	return func(g *Gate) {
		g.auditStore = store
	}
}

func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// New constructs a Gate.
func New(sessions store.SessionStore, sops SOPReader, publisher platformaudit.Publisher, opts ...Option) *Gate {
	g := &Gate{
		sessions:  sessions,
		sops:      sops,
		publisher: publisher,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.publisher == nil {
		g.publisher = platformaudit.NopPublisher{}
	}
	return g
}

// ListPendingReview returns completed sessions waiting for a verdict,
// enriched with the procedure title and check tallies.
func (g *Gate) ListPendingReview(ctx context.Context) ([]ReviewItem, error) {
	sessions, err := g.sessions.ListPendingReview(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending sessions")
	}

	items := make([]ReviewItem, 0, len(sessions))
	titles := make(map[id.SOPID]string)
	for _, session := range sessions {
		title, ok := titles[session.SOPID]
		if !ok {
			if sop, err := g.sops.GetByID(ctx, session.SOPID); err == nil {
				title = sop.Title
			}
			titles[session.SOPID] = title
		}
		item := ReviewItem{
			Session:      session,
			SOPTitle:     title,
			CheckCount:   len(session.Checks),
			FailedChecks: session.FailedCheckCount(),
		}
		for i := range session.Checks {
			if session.Checks[i].NeedsReview {
				item.NeedsReview++
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Approve finalizes and locks a completed session.
func (g *Gate) Approve(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID) (*models.WorkSession, error) {
	return g.decide(ctx, supervisorID, sessionID, platformaudit.ActionSessionApproved, "", func(session *models.WorkSession) error {
		return session.Approve(supervisorID, g.clock())
	})
}

// Reject finalizes and locks a completed session with a reason.
func (g *Gate) Reject(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID, reason string) (*models.WorkSession, error) {
	return g.decide(ctx, supervisorID, sessionID, platformaudit.ActionSessionRejected, reason, func(session *models.WorkSession) error {
		return session.Reject(supervisorID, reason, g.clock())
	})
}

func (g *Gate) decide(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID, action platformaudit.Action, reason string, mutate func(*models.WorkSession) error) (*models.WorkSession, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if err := mutate(session); err != nil {
		return nil, err
	}
	if err := g.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "session was modified concurrently")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}

	event := platformaudit.Event{
		Timestamp: g.clock(),
		Action:    action,
		SessionID: session.ID,
		ActorID:   supervisorID,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := g.publisher.Emit(ctx, event); err != nil {
		g.logger.WarnContext(ctx, "audit emit failed",
			"action", action,
			"session_id", session.ID,
			"error", err)
	}
	if g.metrics != nil {
		g.metrics.IncrementTransition(string(session.Status))
	}
	g.logger.InfoContext(ctx, "session reviewed",
		"session_id", session.ID,
		"status", session.Status,
		"supervisor_id", supervisorID)
	return session, nil
}

// Detail returns a session together with its recorded audit trail. A
// missing event store yields an empty trail, not an error.
func (g *Gate) Detail(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, []platformaudit.Event, error) {
	session, err := g.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	events, err := g.Events(ctx, sessionID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return session, []platformaudit.Event{}, nil
		}
		return nil, nil, err
	}
	return session, events, nil
}

// Events returns the audit trail recorded for a session.
func (g *Gate) Events(ctx context.Context, sessionID id.SessionID) ([]platformaudit.Event, error) {
	if g.auditStore == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "audit history not available")
	}
	events, err := g.auditStore.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit events")
	}
	return events, nil
}
