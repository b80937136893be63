package handler

import (
	"time"

	"genba/internal/session/models"
)

// SessionResponse is the HTTP representation of a work session.
type SessionResponse struct {
	ID              string          `json:"id"`
	SOPID           string          `json:"sop_id"`
	WorkerID        string          `json:"worker_id"`
	Status          string          `json:"status"`
	CurrentStepID   *string         `json:"current_step_id"`
	StartedAt       time.Time       `json:"started_at"`
	PausedAt        *time.Time      `json:"paused_at,omitempty"`
	AbortedAt       *time.Time      `json:"aborted_at,omitempty"`
	AbortReason     string          `json:"abort_reason,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy      *string         `json:"approved_by,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Locked          bool            `json:"locked"`
	Checks          []CheckResponse `json:"checks"`
}

// StartResponse is the HTTP response for POST /sessions. The welcome audio
// is served lazily; the URL is valid even while synthesis is still pending.
type StartResponse struct {
	SessionResponse
	FirstStepID     string `json:"first_step_id,omitempty"`
	WelcomeAudioURL string `json:"welcome_audio_url"`
}

// CheckResponse is the HTTP representation of a safety check.
type CheckResponse struct {
	ID               string    `json:"id"`
	StepID           string    `json:"step_id"`
	Result           string    `json:"result"`
	FeedbackText     string    `json:"feedback_text"`
	FeedbackAudioURL string    `json:"feedback_audio_url,omitempty"`
	ConfidenceScore  *float64  `json:"confidence_score"`
	NeedsReview      bool      `json:"needs_review"`
	CheckedAt        time.Time `json:"checked_at"`
	OverrideReason   string    `json:"override_reason,omitempty"`
	OverrideBy       *string   `json:"override_by,omitempty"`
}

// FromSession converts a domain session to its HTTP representation.
func FromSession(s *models.WorkSession) *SessionResponse {
	resp := &SessionResponse{
		ID:              s.ID.String(),
		SOPID:           s.SOPID.String(),
		WorkerID:        s.WorkerID.String(),
		Status:          string(s.Status),
		StartedAt:       s.StartedAt,
		PausedAt:        s.PausedAt,
		AbortedAt:       s.AbortedAt,
		AbortReason:     s.AbortReason,
		CompletedAt:     s.CompletedAt,
		ApprovedAt:      s.ApprovedAt,
		RejectionReason: s.RejectionReason,
		Locked:          s.Locked,
		Checks:          make([]CheckResponse, 0, len(s.Checks)),
	}
	if !s.CurrentStepID.IsNil() {
		v := s.CurrentStepID.String()
		resp.CurrentStepID = &v
	}
	if !s.ApprovedBy.IsNil() {
		v := s.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	for i := range s.Checks {
		resp.Checks = append(resp.Checks, FromCheck(&s.Checks[i]))
	}
	return resp
}

// FromCheck converts a domain safety check to its HTTP representation.
func FromCheck(c *models.SafetyCheck) CheckResponse {
	resp := CheckResponse{
		ID:               c.ID.String(),
		StepID:           c.StepID.String(),
		Result:           string(c.Result),
		FeedbackText:     c.FeedbackText,
		FeedbackAudioURL: c.FeedbackAudioURL,
		ConfidenceScore:  c.ConfidenceScore,
		NeedsReview:      c.NeedsReview,
		CheckedAt:        c.CheckedAt,
		OverrideReason:   c.OverrideReason,
	}
	if !c.OverrideBy.IsNil() {
		v := c.OverrideBy.String()
		resp.OverrideBy = &v
	}
	return resp
}

// FromSessions converts a list of sessions.
func FromSessions(sessions []*models.WorkSession) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}
