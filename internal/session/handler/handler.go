package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genba/internal/session/models"
	"genba/internal/session/service"
	"genba/internal/session/store"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/httputil"
	"genba/pkg/requestcontext"
)

// Service defines the session operations the handler depends on.
type Service interface {
	Start(ctx context.Context, workerID id.UserID, sopID id.SOPID) (*models.WorkSession, error)
	Get(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error)
	Current(ctx context.Context, workerID id.UserID) (*models.WorkSession, error)
	List(ctx context.Context, actor service.Actor, workerID id.UserID, filter store.ListFilter) ([]*models.WorkSession, error)
	Pause(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error)
	Resume(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error)
	Abort(ctx context.Context, actor service.Actor, sessionID id.SessionID, reason string) (*models.WorkSession, error)
	Complete(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error)
	WelcomeAudio(ctx context.Context, actor service.Actor, sessionID id.SessionID) ([]byte, error)
}

// Handler wires session lifecycle endpoints to the session service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a session handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts session endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/", h.HandleList)
		r.Get("/current", h.HandleCurrent)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/pause", h.HandlePause)
			r.Post("/resume", h.HandleResume)
			r.Post("/abort", h.HandleAbort)
			r.Post("/complete", h.HandleComplete)
			r.Get("/welcome-audio", h.HandleWelcomeAudio)
		})
	})
}

func actorFrom(ctx context.Context) (service.Actor, error) {
	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		return service.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return service.Actor{ID: userID, Supervisor: requestcontext.IsSupervisor(ctx)}, nil
}

func sessionIDFrom(r *http.Request) (id.SessionID, error) {
	return id.ParseSessionID(chi.URLParam(r, "sessionID"))
}

// HandleStart handles POST /sessions.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Start(ctx, actor.ID, req.ParsedSOPID())
	if err != nil {
		h.logger.ErrorContext(ctx, "session start failed",
			"request_id", requestID,
			"sop_id", req.SOPID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session started",
		"request_id", requestID,
		"session_id", session.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	resp := StartResponse{
		SessionResponse: *FromSession(session),
		WelcomeAudioURL: "/api/v1/sessions/" + session.ID.String() + "/welcome-audio",
	}
	if !session.CurrentStepID.IsNil() {
		resp.FirstStepID = session.CurrentStepID.String()
	}
	httputil.WriteJSON(w, http.StatusCreated, resp)
}

// HandleGet handles GET /sessions/{sessionID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.Get(ctx, actor, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleCurrent handles GET /sessions/current.
func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := h.service.Current(ctx, actor.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleList handles GET /sessions. Workers list their own sessions;
// supervisors may pass worker_id to list someone else's.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	workerID := actor.ID
	if raw := strings.TrimSpace(r.URL.Query().Get("worker_id")); raw != "" {
		workerID, err = id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	filter := store.ListFilter{
		Status:         models.SessionStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		IncludeAborted: r.URL.Query().Get("include_aborted") == "true",
	}

	sessions, err := h.service.List(ctx, actor, workerID, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSessions(sessions))
}

// HandlePause handles POST /sessions/{sessionID}/pause.
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "pause", func(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error) {
		return h.service.Pause(ctx, actor, sessionID)
	})
}

// HandleResume handles POST /sessions/{sessionID}/resume.
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "resume", func(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error) {
		return h.service.Resume(ctx, actor, sessionID)
	})
}

// HandleComplete handles POST /sessions/{sessionID}/complete.
func (h *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "complete", func(ctx context.Context, actor service.Actor, sessionID id.SessionID) (*models.WorkSession, error) {
		return h.service.Complete(ctx, actor, sessionID)
	})
}

// HandleAbort handles POST /sessions/{sessionID}/abort.
func (h *Handler) HandleAbort(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AbortRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.service.Abort(ctx, actor, sessionID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, name string, op func(context.Context, service.Actor, id.SessionID) (*models.WorkSession, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	session, err := op(ctx, actor, sessionID)
	if err != nil {
		h.logger.WarnContext(ctx, "session transition rejected",
			"request_id", requestID,
			"session_id", sessionID,
			"transition", name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "session transition",
		"request_id", requestID,
		"session_id", sessionID,
		"transition", name,
		"status", session.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromSession(session))
}

// HandleWelcomeAudio handles GET /sessions/{sessionID}/welcome-audio.
func (h *Handler) HandleWelcomeAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := actorFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sessionID, err := sessionIDFrom(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audio, err := h.service.WelcomeAudio(ctx, actor, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
