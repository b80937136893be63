package handler

import (
	"strings"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
)

// StartRequest is the HTTP request body for POST /sessions.
type StartRequest struct {
	SOPID string `json:"sop_id"`

	parsedSOPID id.SOPID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.SOPID = strings.TrimSpace(r.SOPID)
	if r.SOPID == "" {
		return dErrors.New(dErrors.CodeValidation, "sop_id is required")
	}
	sopID, err := id.ParseSOPID(r.SOPID)
	if err != nil {
		return err
	}
	r.parsedSOPID = sopID
	return nil
}

// ParsedSOPID returns the validated SOP ID.
func (r *StartRequest) ParsedSOPID() id.SOPID {
	return r.parsedSOPID
}

// AbortRequest is the HTTP request body for POST /sessions/{id}/abort.
type AbortRequest struct {
	Reason string `json:"reason"`
}

// Validate trims the optional abort reason.
func (r *AbortRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > 2000 {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 2000 characters")
	}
	return nil
}
