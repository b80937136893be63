package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"genba/internal/check/executor"
	"genba/internal/session/models"
	sopmodels "genba/internal/sop/models"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/httputil"
	"genba/pkg/requestcontext"
)

// Pipeline defines the check operations the handler depends on.
type Pipeline interface {
	Execute(ctx context.Context, actor executor.Actor, input executor.Input) (*executor.Result, error)
	Override(ctx context.Context, supervisorID id.UserID, checkID id.CheckID, newResult models.CheckResult, reason string) (*executor.Result, error)
	Audio(ctx context.Context, actor executor.Actor, checkID id.CheckID) ([]byte, error)
}

// Handler wires check endpoints to the pipeline.
type Handler struct {
	pipeline Pipeline
	logger   *slog.Logger
}

// New constructs a check handler.
func New(pipeline Pipeline, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, logger: logger}
}

// Register mounts check endpoints on the router. The override route expects
// the supervisor middleware to be applied by the caller.
func (h *Handler) Register(r chi.Router, requireSupervisor func(http.Handler) http.Handler) {
	r.Route("/checks", func(r chi.Router) {
		r.Post("/", h.HandleExecute)
		r.Get("/{checkID}/audio", h.HandleAudio)
		r.With(requireSupervisor).Post("/{checkID}/override", h.HandleOverride)
	})
}

// ExecuteResponse is the HTTP response for POST /checks. Verdict fields are
// flattened; next_step carries the full step so clients need no second call.
type ExecuteResponse struct {
	CheckID          string            `json:"check_id"`
	Result           string            `json:"result"`
	FeedbackText     string            `json:"feedback_text"`
	FeedbackAudioURL string            `json:"feedback_audio_url,omitempty"`
	ConfidenceScore  *float64          `json:"confidence_score"`
	NeedsReview      bool              `json:"needs_review"`
	OverrideReason   string            `json:"override_reason,omitempty"`
	OverrideBy       *string           `json:"override_by,omitempty"`
	NextStepID       *string           `json:"next_step_id,omitempty"`
	NextStep         *NextStepResponse `json:"next_step,omitempty"`
	SessionStatus    string            `json:"session_status"`
}

// NextStepResponse describes the step the worker should perform next.
type NextStepResponse struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	ExpectedAction string `json:"expected_action,omitempty"`
	ExpectedResult string `json:"expected_result,omitempty"`
	Hazards        int    `json:"hazards"`
}

func fromResult(result *executor.Result) *ExecuteResponse {
	check := result.Check
	resp := &ExecuteResponse{
		CheckID:          check.ID.String(),
		Result:           string(check.Result),
		FeedbackText:     check.FeedbackText,
		FeedbackAudioURL: check.FeedbackAudioURL,
		ConfidenceScore:  check.ConfidenceScore,
		NeedsReview:      check.NeedsReview,
		OverrideReason:   check.OverrideReason,
		SessionStatus:    string(result.Session.Status),
	}
	if !check.OverrideBy.IsNil() {
		v := check.OverrideBy.String()
		resp.OverrideBy = &v
	}
	if result.NextStep != nil {
		v := result.NextStep.ID.String()
		resp.NextStepID = &v
		resp.NextStep = fromStep(result.NextStep)
	}
	return resp
}

func fromStep(step *sopmodels.Step) *NextStepResponse {
	return &NextStepResponse{
		ID:             step.ID.String(),
		Description:    step.Description,
		ExpectedAction: step.ExpectedAction,
		ExpectedResult: step.ExpectedResult,
		Hazards:        len(step.Hazards),
	}
}

// HandleExecute handles POST /checks.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ExecuteRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.pipeline.Execute(ctx, executor.Actor{
		ID:         userID,
		Supervisor: requestcontext.IsSupervisor(ctx),
	}, executor.Input{
		SessionID:  req.ParsedSessionID(),
		StepID:     req.ParsedStepID(),
		Transcript: req.Transcript,
		Audio:      req.Audio,
		Image:      req.Image,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "check execution failed",
			"request_id", requestID,
			"session_id", req.SessionID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "check executed",
		"request_id", requestID,
		"session_id", req.SessionID,
		"check_id", result.Check.ID,
		"result", result.Check.Result,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, fromResult(result))
}

// HandleOverride handles POST /checks/{checkID}/override.
func (h *Handler) HandleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	supervisorID := requestcontext.UserID(ctx)
	if supervisorID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	checkID, err := id.ParseCheckID(chi.URLParam(r, "checkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[OverrideRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.pipeline.Override(ctx, supervisorID, checkID, req.ParsedResult(), req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "check override failed",
			"request_id", requestID,
			"check_id", checkID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromResult(result))
}

// HandleAudio handles GET /checks/{checkID}/audio.
func (h *Handler) HandleAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	checkID, err := id.ParseCheckID(chi.URLParam(r, "checkID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audio, err := h.pipeline.Audio(ctx, executor.Actor{
		ID:         userID,
		Supervisor: requestcontext.IsSupervisor(ctx),
	}, checkID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}
