// Package executor runs the safety check pipeline: evidence in, verdict and
// spoken feedback out, session advanced when the step is confirmed done.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"genba/internal/artifact"
	"genba/internal/check/gateway"
	"genba/internal/check/metrics"
	"genba/internal/session/models"
	"genba/internal/session/store"
	sopmodels "genba/internal/sop/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/audit"
	"genba/pkg/platform/sentinel"
	pstrings "genba/pkg/platform/strings"
	"genba/pkg/requestcontext"
)

const (
	defaultVerifyTimeout   = 5 * time.Second
	defaultReviewThreshold = 0.7
)

// SOPReader loads the full procedure for verification context.
type SOPReader interface {
	GetByID(ctx context.Context, sopID id.SOPID) (*sopmodels.SOP, error)
}

// Input carries the worker's evidence for the current step. Transcript is
// used directly when present; otherwise Audio is transcribed first. StepID
// is optional; when set it must match the session's current step.
type Input struct {
	SessionID  id.SessionID
	StepID     id.StepID
	Transcript string
	Audio      []byte
	Image      []byte
}

// Result is the outcome of one pipeline run.
type Result struct {
	Session *models.WorkSession
	Check   *models.SafetyCheck
	// NextStep is the step the session advanced to, nil when the session
	// did not advance or the procedure completed.
	NextStep *sopmodels.Step
}

// Actor identifies the caller.
type Actor struct {
	ID         id.UserID
	Supervisor bool
}

// Executor orchestrates transcription, verification, feedback synthesis,
// artifact persistence, and session advancement for one check.
type Executor struct {
	sessions  store.SessionStore
	sops      SOPReader
	gateway   gateway.Gateway
	artifacts artifact.Store
	publisher audit.Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time

	verifyTimeout   time.Duration
	reviewThreshold float64
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func WithVerifyTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.verifyTimeout = d
		}
	}
}

// WithReviewThreshold sets the confidence below which a check is flagged
// for supervisor review.
func WithReviewThreshold(threshold float64) Option {
	return func(e *Executor) {
		if threshold > 0 && threshold <= 1 {
			e.reviewThreshold = threshold
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(e *Executor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New constructs an Executor.
func New(sessions store.SessionStore, sops SOPReader, gw gateway.Gateway, artifacts artifact.Store, publisher audit.Publisher, opts ...Option) *Executor {
	e := &Executor{
		sessions:        sessions,
		sops:            sops,
		gateway:         gw,
		artifacts:       artifacts,
		publisher:       publisher,
		logger:          slog.Default(),
		clock:           time.Now,
		verifyTimeout:   defaultVerifyTimeout,
		reviewThreshold: defaultReviewThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.publisher == nil {
		e.publisher = audit.NopPublisher{}
	}
	return e
}

// Execute runs the pipeline for the session's current step.
func (e *Executor) Execute(ctx context.Context, actor Actor, input Input) (*Result, error) {
	start := e.clock()
	ctx, span := otel.Tracer("check").Start(ctx, "check.Execute",
		trace.WithAttributes(
			attribute.String("session_id", input.SessionID.String()),
		))
	defer span.End()

	session, sop, step, taskNumber, stepNumber, err := e.prepare(ctx, actor, input.SessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "prepare failed")
		return nil, err
	}
	if !input.StepID.IsNil() && input.StepID != session.CurrentStepID {
		return nil, dErrors.New(dErrors.CodeValidation, "step_id does not match the session's current step")
	}

	transcript := input.Transcript
	if transcript == "" && len(input.Audio) > 0 {
		transcript, err = e.gateway.Transcribe(ctx, input.Audio)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "transcription failed")
			return nil, e.mapGatewayErr(err, "transcription failed")
		}
	}
	if transcript == "" && len(input.Image) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a transcript, audio, or image is required")
	}

	verdict, err := e.verify(ctx, gateway.VerifyRequest{
		SOPStructure:     sop.FormatStructure(),
		TaskNumber:       taskNumber,
		StepNumber:       stepNumber,
		StepAction:       step.Description,
		StepResult:       step.ExpectedResult,
		Hazards:          hazardLines(step),
		WorkerTranscript: transcript,
		ImageData:        input.Image,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		return nil, err
	}

	needsReview := verdict.Confidence < e.reviewThreshold || !verdict.SequenceCorrect
	feedback := verdict.Feedback
	if feedback == "" {
		feedback = fallbackFeedback(verdict, step)
	}

	confidence := verdict.Confidence
	check, err := session.AddCheck(session.CurrentStepID, verdict.Result, feedback, "", &confidence, needsReview, e.clock())
	if err != nil {
		return nil, err
	}
	check.FeedbackAudioURL = e.persistFeedbackAudio(ctx, session.ID, check.ID, feedback)

	result := &Result{Session: session, Check: check}
	if verdict.Result == models.ResultPass && verdict.SequenceCorrect {
		result.NextStep, err = e.advance(session, sop)
		if err != nil {
			return nil, err
		}
	}

	if err := e.save(ctx, session); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("result", string(verdict.Result)),
		attribute.Float64("confidence", verdict.Confidence),
		attribute.Bool("needs_review", needsReview),
	)
	if e.metrics != nil {
		e.metrics.ObserveCheck(string(verdict.Result), start, needsReview)
	}
	e.logger.InfoContext(ctx, "check executed",
		"session_id", session.ID,
		"check_id", check.ID,
		"result", verdict.Result,
		"confidence", verdict.Confidence,
		"needs_review", needsReview,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) prepare(ctx context.Context, actor Actor, sessionID id.SessionID) (*models.WorkSession, *sopmodels.SOP, *sopmodels.Step, int, int, error) {
	session, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil, nil, 0, 0, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, nil, nil, 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if !actor.Supervisor && actor.ID != session.WorkerID {
		return nil, nil, nil, 0, 0, dErrors.New(dErrors.CodeForbidden, "session belongs to another worker")
	}
	if session.Locked {
		return nil, nil, nil, 0, 0, dErrors.New(dErrors.CodeLocked, "cannot modify a locked session")
	}
	if session.Status != models.StatusInProgress {
		return nil, nil, nil, 0, 0, dErrors.Newf(dErrors.CodeInvalidState, "cannot check a %s session", session.Status)
	}
	if session.CurrentStepID.IsNil() {
		return nil, nil, nil, 0, 0, dErrors.New(dErrors.CodeInvalidState, "session has no current step")
	}

	sop, err := e.sops.GetByID(ctx, session.SOPID)
	if err != nil {
		return nil, nil, nil, 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load sop")
	}
	taskNumber, stepNumber, step, err := sop.FindStep(session.CurrentStepID)
	if err != nil {
		return nil, nil, nil, 0, 0, err
	}
	return session, sop, step, taskNumber, stepNumber, nil
}

func (e *Executor) verify(ctx context.Context, req gateway.VerifyRequest) (*gateway.Verdict, error) {
	verifyStart := e.clock()
	ctx, cancel := context.WithTimeout(ctx, e.verifyTimeout)
	defer cancel()

	verdict, err := e.gateway.Verify(ctx, req)
	if e.metrics != nil {
		e.metrics.ObserveVerify(verifyStart)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			if e.metrics != nil {
				e.metrics.IncrementTimeout()
			}
			return nil, dErrors.New(dErrors.CodeTimeout, "verification timed out")
		}
		return nil, e.mapGatewayErr(err, "verification failed")
	}
	if !verdict.Result.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInternal, "verifier returned unknown result %q", verdict.Result)
	}
	return verdict, nil
}

// persistFeedbackAudio synthesizes and stores feedback audio. Failures are
// logged and swallowed: the check stands on its text feedback alone.
func (e *Executor) persistFeedbackAudio(ctx context.Context, sessionID id.SessionID, checkID id.CheckID, feedback string) string {
	if e.artifacts == nil {
		return ""
	}
	audioData, err := e.gateway.Synthesize(ctx, feedback)
	if err != nil {
		e.noteArtifactFailure(ctx, sessionID, err)
		return ""
	}
	path, err := e.artifacts.Save(ctx, sessionID, checkID, audioData)
	if err != nil {
		e.noteArtifactFailure(ctx, sessionID, err)
		return ""
	}
	return path
}

func (e *Executor) noteArtifactFailure(ctx context.Context, sessionID id.SessionID, err error) {
	if e.metrics != nil {
		e.metrics.IncrementArtifactFailure()
	}
	e.logger.WarnContext(ctx, "feedback audio not persisted",
		"session_id", sessionID,
		"error", err)
}

func (e *Executor) advance(session *models.WorkSession, sop *sopmodels.SOP) (*sopmodels.Step, error) {
	nextID, ok := sop.NextStepAfter(session.CurrentStepID)
	if !ok {
		// Last step passed: the session completes.
		if err := session.AdvanceToNextStep(id.StepID{}, e.clock()); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := session.AdvanceToNextStep(nextID, e.clock()); err != nil {
		return nil, err
	}
	_, _, next, err := sop.FindStep(nextID)
	if err != nil {
		return nil, err
	}
	return next, nil
}

func (e *Executor) save(ctx context.Context, session *models.WorkSession) error {
	if err := e.sessions.Save(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "session was modified concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save session")
	}
	return nil
}

func (e *Executor) mapGatewayErr(err error, msg string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.New(dErrors.CodeTimeout, msg+": deadline exceeded")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

// Override rewrites a check's result on supervisor authority.
func (e *Executor) Override(ctx context.Context, supervisorID id.UserID, checkID id.CheckID, newResult models.CheckResult, reason string) (*Result, error) {
	session, err := e.sessions.GetByCheckID(ctx, checkID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "check not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if err := session.OverrideCheck(checkID, newResult, reason, supervisorID); err != nil {
		return nil, err
	}
	if err := e.save(ctx, session); err != nil {
		return nil, err
	}

	event := audit.Event{
		Timestamp: e.clock(),
		Action:    audit.ActionCheckOverridden,
		SessionID: session.ID,
		ActorID:   supervisorID,
		Reason:    reason,
		RequestID: requestcontext.RequestID(ctx),
	}
	if err := e.publisher.Emit(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "audit emit failed",
			"action", event.Action,
			"session_id", session.ID,
			"error", err)
	}
	if e.metrics != nil {
		e.metrics.IncrementOverride()
	}
	e.logger.InfoContext(ctx, "check overridden",
		"session_id", session.ID,
		"check_id", checkID,
		"new_result", newResult,
		"supervisor_id", supervisorID,
	)
	return &Result{Session: session, Check: session.FindCheck(checkID)}, nil
}

// Audio returns a check's feedback audio.
func (e *Executor) Audio(ctx context.Context, actor Actor, checkID id.CheckID) ([]byte, error) {
	session, err := e.sessions.GetByCheckID(ctx, checkID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "check not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if !actor.Supervisor && actor.ID != session.WorkerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "session belongs to another worker")
	}
	check := session.FindCheck(checkID)
	if check == nil || check.FeedbackAudioURL == "" {
		return nil, dErrors.New(dErrors.CodeNotFound, "feedback audio not available")
	}
	data, err := e.artifacts.Load(ctx, check.FeedbackAudioURL)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "feedback audio not available")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load feedback audio")
	}
	return data, nil
}

// hazardLines renders a step's hazards for the verifier prompt. Imported
// procedures sometimes repeat a hazard across revisions, so dedupe.
func hazardLines(step *sopmodels.Step) []string {
	if len(step.Hazards) == 0 {
		return nil
	}
	out := make([]string, 0, len(step.Hazards))
	for _, h := range step.Hazards {
		out = append(out, fmt.Sprintf("[%s] %s", h.Severity, h.Description))
	}
	return pstrings.DedupeAndTrim(out)
}

func fallbackFeedback(verdict *gateway.Verdict, step *sopmodels.Step) string {
	switch verdict.Result {
	case models.ResultPass:
		if !verdict.SequenceCorrect {
			return fmt.Sprintf("The step %q looks done, but it appears out of sequence. Hold for supervisor review before continuing.", step.Description)
		}
		return fmt.Sprintf("Step confirmed: %s. You may proceed to the next step.", step.Description)
	case models.ResultFail:
		return fmt.Sprintf("The step %q does not appear to be completed correctly. Check the expected result and try again.", step.Description)
	default:
		return fmt.Sprintf("Result recorded for step %q.", step.Description)
	}
}
