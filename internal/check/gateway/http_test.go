package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"genba/internal/check/gateway"
	"genba/internal/session/models"
	"genba/pkg/platform/sentinel"
)

func TestVerify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/verify" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req gateway.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.StepAction != "close the guard" {
			t.Errorf("unexpected step action %q", req.StepAction)
		}
		json.NewEncoder(w).Encode(gateway.Verdict{
			Result:          models.ResultPass,
			Confidence:      0.91,
			SequenceCorrect: true,
			Feedback:        "guard confirmed closed",
		})
	}))
	defer srv.Close()

	g := gateway.NewHTTP(srv.URL)
	verdict, err := g.Verify(context.Background(), gateway.VerifyRequest{StepAction: "close the guard"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Result != models.ResultPass {
		t.Errorf("expected pass, got %s", verdict.Result)
	}
	if verdict.Confidence != 0.91 {
		t.Errorf("expected confidence 0.91, got %f", verdict.Confidence)
	}
	if !verdict.SequenceCorrect {
		t.Error("expected sequence correct")
	}
}

func TestVerify_ClampsConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.Verdict{Result: models.ResultPass, Confidence: 1.7})
	}))
	defer srv.Close()

	verdict, err := gateway.NewHTTP(srv.URL).Verify(context.Background(), gateway.VerifyRequest{})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verdict.Confidence != 1.0 {
		t.Errorf("expected clamped confidence 1.0, got %f", verdict.Confidence)
	}
}

func TestVerify_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := gateway.NewHTTP(srv.URL).Verify(context.Background(), gateway.VerifyRequest{})
	if !errors.Is(err, sentinel.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{"transcript": "  lockout applied  "})
	}))
	defer srv.Close()

	got, err := gateway.NewHTTP(srv.URL).Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "lockout applied" {
		t.Errorf("expected trimmed transcript, got %q", got)
	}
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte{0xff, 0xf3, 0x01})
	}))
	defer srv.Close()

	audio, err := gateway.NewHTTP(srv.URL).Synthesize(context.Background(), "step complete")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(audio) != 3 {
		t.Errorf("expected 3 bytes, got %d", len(audio))
	}
}

func TestSynthesize_SkippedWhileCircuitOpen(t *testing.T) {
	var synthCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/synthesize" {
			synthCalls++
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := gateway.NewHTTP(srv.URL)
	for i := 0; i < 5; i++ {
		if _, err := g.Verify(context.Background(), gateway.VerifyRequest{}); err == nil {
			t.Fatal("expected verify to fail")
		}
	}

	_, err := g.Synthesize(context.Background(), "step complete")
	if !errors.Is(err, sentinel.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if synthCalls != 0 {
		t.Fatalf("expected synthesize to be skipped, got %d calls", synthCalls)
	}
}

func TestVerify_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := gateway.NewHTTP(srv.URL).Verify(ctx, gateway.VerifyRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
