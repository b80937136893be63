// Package httputil centralizes JSON encoding and domain-error translation
// for HTTP handlers so every endpoint produces the same envelopes.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "genba/pkg/domain-errors"
)

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain error codes onto HTTP statuses. Locked sessions are
// a conflict with current resource state, not a malformed request.
func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeInvalidState, dErrors.CodeInvariantViolation,
		dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeLocked, dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates a domain error into the JSON error envelope.
// Internal errors deliberately omit the description so infrastructure
// details never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := statusFor(code)

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, status, body)
}

// Validatable is implemented by request types with a pointer-receiver
// Validate that checks fields and parses IDs in place.
type Validatable interface {
	Validate() error
}

// DecodeAndPrepare decodes the JSON request body into T and runs its
// Validate. On failure it writes the error envelope, logs the rejection, and
// returns ok=false so handlers can bail out with a single branch.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var zero T
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body"))
		return zero, false
	}
	if err := PT(&req).Validate(); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "rejected request body",
				"request_id", requestID,
				"error", err,
			)
		}
		WriteError(w, err)
		return zero, false
	}
	return req, true
}
