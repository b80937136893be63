package models

import (
	"strings"
	"time"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
)

// WorkSession is the aggregate root for one worker's traversal of a
// procedure. It is the single place the lifecycle invariants are enforced;
// every caller, HTTP or test, goes through the methods below.
//
// Invariants:
//   - Locked == true implies no field may change; every mutator returns
//     CodeLocked unconditionally
//   - Status APPROVED or REJECTED implies Locked == true
//   - Checks is append-only and chronological; entries are never removed or
//     reordered, only overridden in place
//   - CurrentStepID is non-nil exactly while Status == IN_PROGRESS and the
//     procedure is not finished
//
// Sessions are independent aggregates: a worker may hold several IN_PROGRESS
// sessions at once, and they share no state. Version backs the optimistic
// concurrency check at the repository boundary.
type WorkSession struct {
	ID              id.SessionID  `json:"id"`
	SOPID           id.SOPID      `json:"sop_id"`
	WorkerID        id.UserID     `json:"worker_id"`
	Status          SessionStatus `json:"status"`
	CurrentStepID   id.StepID     `json:"current_step_id,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	PausedAt        *time.Time    `json:"paused_at,omitempty"`
	AbortedAt       *time.Time    `json:"aborted_at,omitempty"`
	AbortReason     string        `json:"abort_reason,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
	ApprovedBy      id.UserID     `json:"approved_by,omitempty"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	Locked          bool          `json:"locked"`
	Version         int           `json:"version"`
	Checks          []SafetyCheck `json:"checks"`
}

// NewWorkSession starts a session at the procedure's first step.
func NewWorkSession(sopID id.SOPID, workerID id.UserID, firstStepID id.StepID, now time.Time) (*WorkSession, error) {
	if sopID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "sop_id is required")
	}
	if workerID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "worker_id is required")
	}
	if firstStepID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "first step is required")
	}
	return &WorkSession{
		ID:            id.NewSessionID(),
		SOPID:         sopID,
		WorkerID:      workerID,
		Status:        StatusInProgress,
		CurrentStepID: firstStepID,
		StartedAt:     now,
	}, nil
}

func (s *WorkSession) ensureNotLocked() error {
	if s.Locked {
		return dErrors.New(dErrors.CodeLocked, "cannot modify a locked session")
	}
	return nil
}

// Pause suspends an in-progress session. CurrentStepID is kept so Resume
// picks up exactly where the worker left off.
func (s *WorkSession) Pause(now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "only in-progress sessions may be paused")
	}
	s.Status = StatusPaused
	s.PausedAt = &now
	return nil
}

// Resume returns a paused session to in-progress.
func (s *WorkSession) Resume() error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusPaused {
		return dErrors.New(dErrors.CodeInvalidState, "only paused sessions may be resumed")
	}
	s.Status = StatusInProgress
	s.PausedAt = nil
	return nil
}

// Abort ends the session permanently. Aborted sessions keep their check
// history but are never reviewable for approval.
func (s *WorkSession) Abort(reason string, now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return dErrors.Newf(dErrors.CodeInvalidState, "cannot abort a %s session", s.Status)
	}
	s.Status = StatusAborted
	s.AbortedAt = &now
	s.AbortReason = reason
	s.CurrentStepID = id.StepID{}
	return nil
}

// AddCheck appends a safety check. Only in-progress sessions accept checks.
func (s *WorkSession) AddCheck(stepID id.StepID, result CheckResult, feedbackText, audioURL string, confidence *float64, needsReview bool, now time.Time) (*SafetyCheck, error) {
	if err := s.ensureNotLocked(); err != nil {
		return nil, err
	}
	switch s.Status {
	case StatusInProgress:
	case StatusPaused:
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot add checks to a paused session")
	case StatusAborted:
		return nil, dErrors.New(dErrors.CodeInvalidState, "cannot add checks to an aborted session")
	default:
		return nil, dErrors.New(dErrors.CodeInvalidState, "can only add checks to in-progress sessions")
	}

	check, err := newSafetyCheck(stepID, result, feedbackText, audioURL, confidence, needsReview, now)
	if err != nil {
		return nil, err
	}
	s.Checks = append(s.Checks, *check)
	return &s.Checks[len(s.Checks)-1], nil
}

// AdvanceToNextStep moves the session to the given step. A nil next step
// means the procedure is finished and delegates to Complete.
func (s *WorkSession) AdvanceToNextStep(nextStepID id.StepID, now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "can only advance in-progress sessions")
	}
	if nextStepID.IsNil() {
		return s.Complete(now)
	}
	s.CurrentStepID = nextStepID
	return nil
}

// Complete marks the traversal finished and clears the current step.
func (s *WorkSession) Complete(now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "only in-progress sessions may be completed")
	}
	s.Status = StatusCompleted
	s.CompletedAt = &now
	s.CurrentStepID = id.StepID{}
	return nil
}

// Approve finalizes a completed session and locks it. The only callers are
// the audit gate operations; nothing else may set Locked.
func (s *WorkSession) Approve(supervisorID id.UserID, now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "only completed sessions may be approved")
	}
	s.Status = StatusApproved
	s.ApprovedAt = &now
	s.ApprovedBy = supervisorID
	s.Locked = true
	return nil
}

// Reject finalizes a completed session with a reason and locks it. The full
// check history is retained for audit; rejected sessions are not resumable.
func (s *WorkSession) Reject(supervisorID id.UserID, reason string, now time.Time) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if s.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeInvalidState, "only completed sessions may be rejected")
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	s.Status = StatusRejected
	s.RejectionReason = reason
	s.ApprovedBy = supervisorID
	s.Locked = true
	return nil
}

// OverrideLastCheck rewrites the most recent check's result on supervisor
// authority. The original feedback, confidence, and timestamp are untouched
// so the audit trail shows both the machine verdict and the correction.
func (s *WorkSession) OverrideLastCheck(newResult CheckResult, reason string, supervisorID id.UserID) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	if len(s.Checks) == 0 {
		return dErrors.New(dErrors.CodeInvalidState, "no checks to override")
	}
	return s.overrideAt(len(s.Checks)-1, newResult, reason, supervisorID)
}

// OverrideCheck rewrites a specific check's result by ID.
func (s *WorkSession) OverrideCheck(checkID id.CheckID, newResult CheckResult, reason string, supervisorID id.UserID) error {
	if err := s.ensureNotLocked(); err != nil {
		return err
	}
	for i := range s.Checks {
		if s.Checks[i].ID == checkID {
			return s.overrideAt(i, newResult, reason, supervisorID)
		}
	}
	return dErrors.Newf(dErrors.CodeNotFound, "check %s not found in session", checkID)
}

func (s *WorkSession) overrideAt(i int, newResult CheckResult, reason string, supervisorID id.UserID) error {
	if !newResult.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid override result")
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "override reason is required")
	}
	if supervisorID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "override requires a supervisor")
	}
	s.Checks[i].applyOverride(newResult, reason, supervisorID)
	return nil
}

// FindCheck returns the check with the given ID, or nil.
func (s *WorkSession) FindCheck(checkID id.CheckID) *SafetyCheck {
	for i := range s.Checks {
		if s.Checks[i].ID == checkID {
			return &s.Checks[i]
		}
	}
	return nil
}

// LatestAudioURL returns the most recent check's audio URL, skipping checks
// whose artifact persistence failed.
func (s *WorkSession) LatestAudioURL() string {
	for i := len(s.Checks) - 1; i >= 0; i-- {
		if s.Checks[i].FeedbackAudioURL != "" {
			return s.Checks[i].FeedbackAudioURL
		}
	}
	return ""
}

// FailedCheckCount counts checks whose recorded result is FAIL.
func (s *WorkSession) FailedCheckCount() int {
	n := 0
	for i := range s.Checks {
		if s.Checks[i].Result == ResultFail {
			n++
		}
	}
	return n
}
