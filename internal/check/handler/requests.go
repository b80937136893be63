package handler

import (
	"strings"

	"genba/internal/session/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
)

const maxMediaBytes = 10 << 20

// ExecuteRequest is the HTTP request body for POST /checks. Audio and Image
// are base64 in JSON; at least one form of evidence is required.
type ExecuteRequest struct {
	SessionID  string `json:"session_id"`
	StepID     string `json:"step_id,omitempty"`
	Transcript string `json:"transcript,omitempty"`
	Audio      []byte `json:"audio,omitempty"`
	Image      []byte `json:"image,omitempty"`

	parsedSessionID id.SessionID
	parsedStepID    id.StepID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ExecuteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SessionID = strings.TrimSpace(r.SessionID)
	if r.SessionID == "" {
		return dErrors.New(dErrors.CodeValidation, "session_id is required")
	}
	sessionID, err := id.ParseSessionID(r.SessionID)
	if err != nil {
		return err
	}
	r.parsedSessionID = sessionID

	r.StepID = strings.TrimSpace(r.StepID)
	if r.StepID != "" {
		stepID, err := id.ParseStepID(r.StepID)
		if err != nil {
			return err
		}
		r.parsedStepID = stepID
	}

	r.Transcript = strings.TrimSpace(r.Transcript)
	if r.Transcript == "" && len(r.Audio) == 0 && len(r.Image) == 0 {
		return dErrors.New(dErrors.CodeValidation, "a transcript, audio, or image is required")
	}
	if len(r.Audio) > maxMediaBytes {
		return dErrors.New(dErrors.CodeValidation, "audio exceeds the 10MB limit")
	}
	if len(r.Image) > maxMediaBytes {
		return dErrors.New(dErrors.CodeValidation, "image exceeds the 10MB limit")
	}
	return nil
}

// ParsedSessionID returns the validated session ID.
func (r *ExecuteRequest) ParsedSessionID() id.SessionID {
	return r.parsedSessionID
}

// ParsedStepID returns the validated step ID, nil when not supplied.
func (r *ExecuteRequest) ParsedStepID() id.StepID {
	return r.parsedStepID
}

// OverrideRequest is the HTTP request body for POST /checks/{id}/override.
type OverrideRequest struct {
	Result string `json:"result"`
	Reason string `json:"reason"`

	parsedResult models.CheckResult
}

// Validate validates and parses the request.
func (r *OverrideRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	result := models.CheckResult(strings.TrimSpace(strings.ToLower(r.Result)))
	if !result.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "result must be one of pass, fail, override")
	}
	r.parsedResult = result
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// ParsedResult returns the validated result.
func (r *OverrideRequest) ParsedResult() models.CheckResult {
	return r.parsedResult
}
