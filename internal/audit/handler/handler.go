package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genba/internal/audit"
	sessionhandler "genba/internal/session/handler"
	"genba/internal/session/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	platformaudit "genba/pkg/platform/audit"
	"genba/pkg/platform/httputil"
	"genba/pkg/requestcontext"
)

// Gate defines the review operations the handler depends on.
type Gate interface {
	ListPendingReview(ctx context.Context) ([]audit.ReviewItem, error)
	Approve(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID) (*models.WorkSession, error)
	Reject(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID, reason string) (*models.WorkSession, error)
	Detail(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, []platformaudit.Event, error)
}

// Handler wires supervisor review endpoints to the gate.
type Handler struct {
	gate   Gate
	logger *slog.Logger
}

// New constructs a review handler.
func New(gate Gate, logger *slog.Logger) *Handler {
	return &Handler{gate: gate, logger: logger}
}

// Register mounts review endpoints on the router. Every route is
// supervisor-only.
func (h *Handler) Register(r chi.Router, requireSupervisor func(http.Handler) http.Handler) {
	r.Route("/audit/sessions", func(r chi.Router) {
		r.Use(requireSupervisor)
		r.Get("/", h.HandlePending)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleDetail)
			r.Post("/approve", h.HandleApprove)
			r.Post("/reject", h.HandleReject)
		})
	})
}

// RejectRequest is the HTTP request body for POST /audit/sessions/{id}/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Validate requires a non-empty reason.
func (r *RejectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

// PendingItemResponse summarizes one session awaiting review.
type PendingItemResponse struct {
	Session      *sessionhandler.SessionResponse `json:"session"`
	SOPTitle     string                          `json:"sop_title"`
	CheckCount   int                             `json:"check_count"`
	FailedChecks int                             `json:"failed_checks"`
	NeedsReview  int                             `json:"needs_review"`
}

// EventResponse is the HTTP representation of an audit event.
type EventResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// DetailResponse is the full review trail for a single session.
type DetailResponse struct {
	Session *sessionhandler.SessionResponse `json:"session"`
	Events  []EventResponse                 `json:"events"`
}

// HandlePending handles GET /audit/sessions.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.gate.ListPendingReview(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]PendingItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, PendingItemResponse{
			Session:      sessionhandler.FromSession(item.Session),
			SOPTitle:     item.SOPTitle,
			CheckCount:   item.CheckCount,
			FailedChecks: item.FailedChecks,
			NeedsReview:  item.NeedsReview,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleApprove handles POST /audit/sessions/{sessionID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "approve", func(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID) (*models.WorkSession, error) {
		return h.gate.Approve(ctx, supervisorID, sessionID)
	})
}

// HandleReject handles POST /audit/sessions/{sessionID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	h.handleDecision(w, r, "reject", func(ctx context.Context, supervisorID id.UserID, sessionID id.SessionID) (*models.WorkSession, error) {
		return h.gate.Reject(ctx, supervisorID, sessionID, req.Reason)
	})
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, id.UserID, id.SessionID) (*models.WorkSession, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	supervisorID := requestcontext.UserID(ctx)
	if supervisorID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := op(ctx, supervisorID, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "review decision failed",
			"request_id", requestID,
			"session_id", sessionID,
			"decision", name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "review decision",
		"request_id", requestID,
		"session_id", sessionID,
		"decision", name,
		"status", session.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, sessionhandler.FromSession(session))
}

// HandleDetail handles GET /audit/sessions/{sessionID}.
func (h *Handler) HandleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, events, err := h.gate.Detail(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := DetailResponse{
		Session: sessionhandler.FromSession(session),
		Events:  make([]EventResponse, 0, len(events)),
	}
	for _, e := range events {
		resp.Events = append(resp.Events, EventResponse{
			Timestamp: e.Timestamp,
			Action:    string(e.Action),
			ActorID:   e.ActorID.String(),
			Reason:    e.Reason,
			RequestID: e.RequestID,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
