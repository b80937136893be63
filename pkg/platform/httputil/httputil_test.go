package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "genba/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "db failed"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["error_description"]; ok {
			t.Fatalf("expected error_description to be omitted for internal errors")
		}
	})

	t.Run("invalid state maps to 400 with description", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidState, "only in-progress sessions may be paused"))

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "invalid_state" {
			t.Fatalf("expected error code invalid_state, got %q", body["error"])
		}
		if body["error_description"] != "only in-progress sessions may be paused" {
			t.Fatalf("expected error_description to be returned for invalid state")
		}
	})

	t.Run("locked maps to 409", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeLocked, "cannot modify a locked session"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}
	})

	t.Run("timeout maps to 504", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeTimeout, "verification timed out"))

		if w.Code != http.StatusGatewayTimeout {
			t.Fatalf("expected status %d, got %d", http.StatusGatewayTimeout, w.Code)
		}
	})

	t.Run("forbidden maps to 403", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeForbidden, "not authorized to view this session"))

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
		}
	})
}

type echoRequest struct {
	Name string `json:"name"`

	normalized string
}

func (r *echoRequest) Validate() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.normalized = "greeting:" + r.Name
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	t.Run("runs validate and keeps parsed state", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"lockout"}`))

		req, ok := DecodeAndPrepare[echoRequest](w, r, nil, r.Context(), "")
		if !ok {
			t.Fatalf("expected decode to succeed, got %d: %s", w.Code, w.Body.String())
		}
		if req.normalized != "greeting:lockout" {
			t.Fatalf("expected Validate to run and set parsed state, got %q", req.normalized)
		}
	})

	t.Run("validation failure writes the domain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":""}`))

		_, ok := DecodeAndPrepare[echoRequest](w, r, nil, r.Context(), "")
		if ok {
			t.Fatalf("expected validation to reject the request")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "validation_error" {
			t.Fatalf("expected error code validation_error, got %q", body["error"])
		}
	})

	t.Run("malformed json maps to bad_request", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":`))

		_, ok := DecodeAndPrepare[echoRequest](w, r, nil, r.Context(), "")
		if ok {
			t.Fatalf("expected decode to fail")
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})
}
