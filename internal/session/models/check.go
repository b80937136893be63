package models

import (
	"strings"
	"time"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
)

// SafetyCheck is one verification round recorded against a session step.
//
// Invariants:
//   - FeedbackText is non-empty
//   - ConfidenceScore, when present, lies in [0, 1]
//   - Immutable after creation except through an explicit override, which
//     rewrites Result, OverrideReason, and OverrideBy and nothing else
//
// FeedbackAudioURL is empty when artifact persistence failed; audio is an
// enhancement, never a correctness gate.
type SafetyCheck struct {
	ID               id.CheckID  `json:"id"`
	StepID           id.StepID   `json:"step_id"`
	Result           CheckResult `json:"result"`
	FeedbackText     string      `json:"feedback_text"`
	FeedbackAudioURL string      `json:"feedback_audio_url,omitempty"`
	ConfidenceScore  *float64    `json:"confidence_score,omitempty"`
	NeedsReview      bool        `json:"needs_review"`
	CheckedAt        time.Time   `json:"checked_at"`
	OverrideReason   string      `json:"override_reason,omitempty"`
	OverrideBy       id.UserID   `json:"override_by,omitempty"`
}

func newSafetyCheck(stepID id.StepID, result CheckResult, feedbackText, audioURL string, confidence *float64, needsReview bool, now time.Time) (*SafetyCheck, error) {
	if !result.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid check result")
	}
	if strings.TrimSpace(feedbackText) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "feedback text cannot be empty")
	}
	if confidence != nil && (*confidence < 0.0 || *confidence > 1.0) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "confidence score must be between 0.0 and 1.0")
	}
	return &SafetyCheck{
		ID:               id.NewCheckID(),
		StepID:           stepID,
		Result:           result,
		FeedbackText:     feedbackText,
		FeedbackAudioURL: audioURL,
		ConfidenceScore:  confidence,
		NeedsReview:      needsReview,
		CheckedAt:        now,
	}, nil
}

func (c *SafetyCheck) applyOverride(newResult CheckResult, reason string, supervisorID id.UserID) {
	c.Result = newResult
	c.OverrideReason = reason
	c.OverrideBy = supervisorID
}
