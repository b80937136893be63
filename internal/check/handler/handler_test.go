package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"genba/internal/artifact"
	"genba/internal/check/executor"
	"genba/internal/check/gateway"
	"genba/internal/platform/logger"
	"genba/internal/platform/middleware"
	"genba/internal/session/models"
	"genba/internal/session/store"
	sopmodels "genba/internal/sop/models"
	sopstore "genba/internal/sop/store"
	id "genba/pkg/domain"
	"genba/pkg/platform/audit"
	"genba/pkg/requestcontext"
)

type scriptedGateway struct {
	verdict gateway.Verdict
}

func (g *scriptedGateway) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return "transcribed evidence", nil
}

func (g *scriptedGateway) Verify(ctx context.Context, req gateway.VerifyRequest) (*gateway.Verdict, error) {
	v := g.verdict
	return &v, nil
}

func (g *scriptedGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

type testEnv struct {
	router   chi.Router
	gw       *scriptedGateway
	sessions *store.InMemorySessionStore
	sop      *sopmodels.SOP
	workerID id.UserID
	session  *models.WorkSession
}

func identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if raw := r.Header.Get("X-Test-User"); raw != "" {
			userID, err := id.ParseUserID(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			ctx = requestcontext.WithUserID(ctx, userID)
		}
		role := requestcontext.RoleWorker
		if r.Header.Get("X-Test-Role") == "supervisor" {
			role = requestcontext.RoleSupervisor
		}
		ctx = requestcontext.WithRole(ctx, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.New()

	env := &testEnv{
		gw: &scriptedGateway{verdict: gateway.Verdict{
			Result:          models.ResultPass,
			Confidence:      0.9,
			SequenceCorrect: true,
			Feedback:        "confirmed",
		}},
		sessions: store.NewInMemorySessionStore(),
		workerID: id.NewUserID(),
	}

	sops := sopstore.NewInMemorySOPStore()
	env.sop = &sopmodels.SOP{
		ID:    id.NewSOPID(),
		Title: "Valve replacement",
		Tasks: []sopmodels.Task{
			{
				ID:         id.NewTaskID(),
				Title:      "Depressurize",
				OrderIndex: 1,
				Steps: []sopmodels.Step{
					{ID: id.NewStepID(), OrderIndex: 1, Description: "Close inlet valve"},
					{ID: id.NewStepID(), OrderIndex: 2, Description: "Vent line"},
				},
			},
		},
	}
	sops.Put(env.sop)

	artifacts, err := artifact.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	env.session, err = models.NewWorkSession(env.sop.ID, env.workerID, env.sop.Tasks[0].Steps[0].ID, time.Now())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := env.sessions.Create(context.Background(), env.session); err != nil {
		t.Fatalf("create session: %v", err)
	}

	exec := executor.New(env.sessions, sops, env.gw, artifacts, audit.NopPublisher{})

	router := chi.NewRouter()
	router.Use(identityMiddleware)
	New(exec, log).Register(router, middleware.RequireSupervisor(log))
	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, userID id.UserID, supervisor bool) *httptest.ResponseRecorder {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if userID != (id.UserID{}) {
		req.Header.Set("X-Test-User", userID.String())
	}
	if supervisor {
		req.Header.Set("X-Test-Role", "supervisor")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestExecuteCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": env.session.ID.String(),
		"transcript": "inlet valve closed",
	}, env.workerID, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var resp ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Result != "pass" {
		t.Fatalf("expected pass, got %s", resp.Result)
	}
	if resp.NextStep == nil || resp.NextStep.Description != "Vent line" {
		t.Fatalf("expected next step, got %+v", resp.NextStep)
	}
	if resp.NextStepID == nil || *resp.NextStepID != env.sop.Tasks[0].Steps[1].ID.String() {
		t.Fatalf("expected next step id, got %v", resp.NextStepID)
	}
}

func TestExecuteCheck_Validation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": env.session.ID.String(),
	}, env.workerID, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without evidence, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": "nope",
		"transcript": "t",
	}, env.workerID, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad session_id, got %d", rec.Code)
	}
}

func TestExecuteCheck_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": env.session.ID.String(),
		"transcript": "t",
	}, id.UserID{}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOverrideRequiresSupervisor(t *testing.T) {
	env := newTestEnv(t)
	env.gw.verdict = gateway.Verdict{Result: models.ResultFail, Confidence: 0.5, SequenceCorrect: true, Feedback: "not done"}

	rec := env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": env.session.ID.String(),
		"transcript": "valve closed",
	}, env.workerID, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var created ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	overrideBody := map[string]string{"result": "override", "reason": "verified at the machine"}

	// Workers are rejected by the middleware.
	rec = env.do(t, http.MethodPost, "/checks/"+created.CheckID+"/override", overrideBody, env.workerID, false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for worker, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/checks/"+created.CheckID+"/override", overrideBody, id.NewUserID(), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for supervisor, got %d: %s", rec.Code, rec.Body)
	}
	var overridden ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&overridden); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if overridden.Result != "override" {
		t.Fatalf("expected override result, got %s", overridden.Result)
	}
	if overridden.OverrideReason != "verified at the machine" {
		t.Fatalf("unexpected override reason %q", overridden.OverrideReason)
	}
}

func TestOverrideValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/checks/"+id.NewCheckID().String()+"/override",
		map[string]string{"result": "maybe", "reason": "r"}, id.NewUserID(), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad result, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/checks/"+id.NewCheckID().String()+"/override",
		map[string]string{"result": "pass", "reason": ""}, id.NewUserID(), true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty reason, got %d", rec.Code)
	}
}

func TestCheckAudio(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/checks", map[string]string{
		"session_id": env.session.ID.String(),
		"transcript": "valve closed",
	}, env.workerID, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created ExecuteResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/checks/"+created.CheckID+"/audio", nil, env.workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %s", ct)
	}
	if rec.Body.String() != "confirmed" {
		t.Fatalf("unexpected audio body %q", rec.Body.String())
	}

	// Strangers cannot fetch it.
	rec = env.do(t, http.MethodGet, "/checks/"+created.CheckID+"/audio", nil, id.NewUserID(), false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}
