package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"genba/internal/artifact"
	"genba/internal/check/gateway"
	"genba/internal/session/metrics"
	"genba/internal/session/models"
	"genba/internal/session/store"
	sopmodels "genba/internal/sop/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/audit"
	"genba/pkg/platform/sentinel"
	"genba/pkg/requestcontext"
)

// SOPReader loads procedures for session start and navigation.
type SOPReader interface {
	GetByID(ctx context.Context, sopID id.SOPID) (*sopmodels.SOP, error)
}

// Actor identifies the caller of a session operation.
type Actor struct {
	ID         id.UserID
	Supervisor bool
}

// Service orchestrates the work session lifecycle.
type Service struct {
	sessions    store.SessionStore
	sops        SOPReader
	synthesizer gateway.Synthesizer
	artifacts   artifact.Store
	publisher   audit.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	clock       func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithSynthesizer enables welcome audio generation at session start.
func WithSynthesizer(synth gateway.Synthesizer, artifacts artifact.Store) Option {
	return func(s *Service) {
		s.synthesizer = synth
		s.artifacts = artifacts
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs a Service.
func New(sessions store.SessionStore, sops SOPReader, publisher audit.Publisher, opts ...Option) *Service {
	s := &Service{
		sessions:  sessions,
		sops:      sops,
		publisher: publisher,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher == nil {
		s.publisher = audit.NopPublisher{}
	}
	return s
}

// Start begins a new session at the procedure's first step. Welcome audio is
// generated best-effort; a synthesis failure never fails the start.
func (s *Service) Start(ctx context.Context, workerID id.UserID, sopID id.SOPID) (*models.WorkSession, error) {
	sop, err := s.sops.GetByID(ctx, sopID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "sop not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sop")
	}
	firstStep, ok := sop.FirstStepID()
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidState, "sop has no steps")
	}

	session, err := models.NewWorkSession(sopID, workerID, firstStep, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}

	s.generateWelcomeAudio(ctx, session, sop)

	s.emit(ctx, audit.ActionSessionStarted, session.ID, workerID, "")
	if s.metrics != nil {
		s.metrics.IncrementStarted()
	}
	s.logger.InfoContext(ctx, "session started",
		"session_id", session.ID,
		"sop_id", sopID,
		"worker_id", workerID)
	return session, nil
}

func (s *Service) generateWelcomeAudio(ctx context.Context, session *models.WorkSession, sop *sopmodels.SOP) {
	if s.synthesizer == nil || s.artifacts == nil {
		return
	}
	audioData, err := s.synthesizer.Synthesize(ctx, welcomeText(sop))
	if err == nil {
		_, err = s.artifacts.SaveWelcome(ctx, session.ID, audioData)
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementWelcomeFailure()
		}
		s.logger.WarnContext(ctx, "welcome audio generation failed",
			"session_id", session.ID,
			"error", err)
	}
}

func welcomeText(sop *sopmodels.SOP) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Starting procedure: %s.", sop.Title)
	if len(sop.Tasks) > 0 && len(sop.Tasks[0].Steps) > 0 {
		first := sop.Tasks[0].Steps[0]
		fmt.Fprintf(&b, " First step: %s.", first.Description)
		if len(first.Hazards) > 0 {
			fmt.Fprintf(&b, " Watch for: %s.", first.HazardSummary())
		}
	}
	return b.String()
}

// Get returns a session. Workers see only their own sessions; supervisors
// see everything.
func (s *Service) Get(ctx context.Context, actor Actor, sessionID id.SessionID) (*models.WorkSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Current returns the worker's most recently started active session.
func (s *Service) Current(ctx context.Context, workerID id.UserID) (*models.WorkSession, error) {
	session, err := s.sessions.GetCurrentForWorker(ctx, workerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no active session")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load current session")
	}
	return session, nil
}

// List returns a worker's sessions. Workers may only list their own.
func (s *Service) List(ctx context.Context, actor Actor, workerID id.UserID, filter store.ListFilter) ([]*models.WorkSession, error) {
	if !actor.Supervisor && actor.ID != workerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "cannot list another worker's sessions")
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid status filter")
	}
	out, err := s.sessions.ListByWorker(ctx, workerID, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list sessions")
	}
	return out, nil
}

// Pause suspends the session.
func (s *Service) Pause(ctx context.Context, actor Actor, sessionID id.SessionID) (*models.WorkSession, error) {
	return s.transition(ctx, actor, sessionID, audit.ActionSessionPaused, "", func(session *models.WorkSession) error {
		return session.Pause(s.clock())
	})
}

// Resume returns a paused session to in-progress.
func (s *Service) Resume(ctx context.Context, actor Actor, sessionID id.SessionID) (*models.WorkSession, error) {
	return s.transition(ctx, actor, sessionID, audit.ActionSessionResumed, "", func(session *models.WorkSession) error {
		return session.Resume()
	})
}

// Abort permanently ends the session.
func (s *Service) Abort(ctx context.Context, actor Actor, sessionID id.SessionID, reason string) (*models.WorkSession, error) {
	return s.transition(ctx, actor, sessionID, audit.ActionSessionAborted, reason, func(session *models.WorkSession) error {
		return session.Abort(reason, s.clock())
	})
}

// Complete marks the session finished ahead of supervisor review.
func (s *Service) Complete(ctx context.Context, actor Actor, sessionID id.SessionID) (*models.WorkSession, error) {
	session, err := s.transition(ctx, actor, sessionID, audit.ActionSessionCompleted, "", func(session *models.WorkSession) error {
		return session.Complete(s.clock())
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveCompleted(session.StartedAt, len(session.Checks))
	}
	return session, nil
}

// WelcomeAudio returns the session's generated welcome audio.
func (s *Service) WelcomeAudio(ctx context.Context, actor Actor, sessionID id.SessionID) ([]byte, error) {
	session, err := s.Get(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if s.artifacts == nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "welcome audio not available")
	}
	data, err := s.artifacts.Load(ctx, artifact.WelcomePath(session.ID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "welcome audio not available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load welcome audio")
	}
	return data, nil
}

func (s *Service) transition(ctx context.Context, actor Actor, sessionID id.SessionID, action audit.Action, reason string, mutate func(*models.WorkSession) error) (*models.WorkSession, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, session); err != nil {
		return nil, err
	}
	if err := mutate(session); err != nil {
		return nil, err
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.emit(ctx, action, session.ID, actor.ID, reason)
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(session.Status))
	}
	s.logger.InfoContext(ctx, "session transition",
		"session_id", session.ID,
		"status", session.Status,
		"actor_id", actor.ID)
	return session, nil
}

func (s *Service) load(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	return session, nil
}

func (s *Service) save(ctx context.Context, session *models.WorkSession) error {
	if err := s.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			if s.metrics != nil {
				s.metrics.IncrementConflict()
			}
			return dErrors.New(dErrors.CodeConflict, "session was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, sessionID id.SessionID, actorID id.UserID, reason string) {
	event := audit.Event{
		Timestamp: s.clock(),
		Action:    action,
		SessionID: sessionID,
		ActorID:   actorID,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := s.publisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed",
			"action", action,
			"session_id", sessionID,
			"error", err)
	}
}

func authorize(actor Actor, session *models.WorkSession) error {
	if actor.Supervisor || actor.ID == session.WorkerID {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "session belongs to another worker")
}
