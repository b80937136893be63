package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"genba/internal/artifact"
	"genba/internal/session/service"
	"genba/internal/session/store"
	sopmodels "genba/internal/sop/models"
	sopstore "genba/internal/sop/store"
	id "genba/pkg/domain"
	"genba/internal/platform/logger"
	"genba/pkg/platform/audit"
	"genba/pkg/requestcontext"
)

type testEnv struct {
	router chi.Router
	sop    *sopmodels.SOP
}

// identityMiddleware injects the caller the way the auth middleware would
// after validating a token.
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

	sops := sopstore.NewInMemorySOPStore()
	sop := &sopmodels.SOP{
		ID:    id.NewSOPID(),
		Title: "Conveyor maintenance",
		Tasks: []sopmodels.Task{
			{
				ID:         id.NewTaskID(),
				Title:      "Shut down",
				OrderIndex: 1,
				Steps: []sopmodels.Step{
					{ID: id.NewStepID(), OrderIndex: 1, Description: "Stop the belt"},
					{ID: id.NewStepID(), OrderIndex: 2, Description: "Apply lockout"},
				},
			},
		},
	}
	sops.Put(sop)

	artifacts, err := artifact.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}

	svc := service.New(store.NewInMemorySessionStore(), sops, audit.NopPublisher{},
		service.WithSynthesizer(staticSynth{}, artifacts))

	router := chi.NewRouter()
	router.Use(identityMiddleware)
	New(svc, logger.New()).Register(router)
	return &testEnv{router: router, sop: sop}
}

type staticSynth struct{}

func (staticSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

func (e *testEnv) do(t *testing.T, method, path string, body any, userID id.UserID, supervisor bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
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

func (e *testEnv) startSession(t *testing.T, workerID id.UserID) SessionResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/sessions", map[string]string{"sop_id": e.sop.ID.String()}, workerID, false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 starting session, got %d: %s", rec.Code, rec.Body)
	}
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode session response: %v", err)
	}
	return resp
}

func TestStartRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/sessions", map[string]string{"sop_id": env.sop.ID.String()}, id.UserID{}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestStartAndGet(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()

	created := env.startSession(t, workerID)
	if created.Status != "in_progress" {
		t.Fatalf("expected in_progress, got %s", created.Status)
	}
	if created.CurrentStepID == nil || *created.CurrentStepID != env.sop.Tasks[0].Steps[0].ID.String() {
		t.Fatalf("expected first step as current, got %v", created.CurrentStepID)
	}

	rec := env.do(t, http.MethodGet, "/sessions/"+created.ID, nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 getting own session, got %d", rec.Code)
	}
}

func TestStartResponseCarriesFirstStepAndWelcomeURL(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/sessions", map[string]string{"sop_id": env.sop.ID.String()}, id.NewUserID(), false)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp StartResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.FirstStepID != env.sop.Tasks[0].Steps[0].ID.String() {
		t.Fatalf("expected first step id, got %q", resp.FirstStepID)
	}
	want := "/api/v1/sessions/" + resp.ID + "/welcome-audio"
	if resp.WelcomeAudioURL != want {
		t.Fatalf("expected welcome audio url %q, got %q", want, resp.WelcomeAudioURL)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/sessions", map[string]string{"sop_id": "not-a-uuid"}, id.NewUserID(), false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad sop_id, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/sessions", map[string]string{"sop_id": id.NewSOPID().String()}, id.NewUserID(), false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sop, got %d", rec.Code)
	}
}

func TestGetForbiddenForOtherWorker(t *testing.T) {
	env := newTestEnv(t)
	created := env.startSession(t, id.NewUserID())

	rec := env.do(t, http.MethodGet, "/sessions/"+created.ID, nil, id.NewUserID(), false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger, got %d", rec.Code)
	}

	// Supervisor may read it.
	rec = env.do(t, http.MethodGet, "/sessions/"+created.ID, nil, id.NewUserID(), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for supervisor, got %d", rec.Code)
	}
}

func TestLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()
	created := env.startSession(t, workerID)

	rec := env.do(t, http.MethodPost, "/sessions/"+created.ID+"/pause", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 pausing, got %d: %s", rec.Code, rec.Body)
	}

	// Pausing again is an invalid transition.
	rec = env.do(t, http.MethodPost, "/sessions/"+created.ID+"/pause", nil, workerID, false)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on double pause, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/sessions/"+created.ID+"/resume", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resuming, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/sessions/"+created.ID+"/complete", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 completing, got %d", rec.Code)
	}
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "completed" {
		t.Fatalf("expected completed, got %s", resp.Status)
	}
	if resp.CurrentStepID != nil {
		t.Fatalf("expected current step cleared, got %v", *resp.CurrentStepID)
	}
}

func TestAbortOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()
	created := env.startSession(t, workerID)

	rec := env.do(t, http.MethodPost, "/sessions/"+created.ID+"/abort", map[string]string{"reason": "tooling failure"}, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 aborting, got %d: %s", rec.Code, rec.Body)
	}
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "aborted" || resp.AbortReason != "tooling failure" {
		t.Fatalf("unexpected abort response: %+v", resp)
	}
}

func TestCurrentOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()

	rec := env.do(t, http.MethodGet, "/sessions/current", nil, workerID, false)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with no active session, got %d", rec.Code)
	}

	created := env.startSession(t, workerID)
	rec = env.do(t, http.MethodGet, "/sessions/current", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != created.ID {
		t.Fatalf("expected current session %s, got %s", created.ID, resp.ID)
	}
}

func TestListOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()
	env.startSession(t, workerID)
	env.startSession(t, id.NewUserID())

	rec := env.do(t, http.MethodGet, "/sessions", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []SessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 session for worker, got %d", len(out))
	}

	// A worker cannot list someone else's sessions.
	rec = env.do(t, http.MethodGet, "/sessions?worker_id="+id.NewUserID().String(), nil, workerID, false)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestWelcomeAudioOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	workerID := id.NewUserID()
	created := env.startSession(t, workerID)

	rec := env.do(t, http.MethodGet, "/sessions/"+created.ID+"/welcome-audio", nil, workerID, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("expected audio/mpeg, got %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("expected audio bytes")
	}
}
