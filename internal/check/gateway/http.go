package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"genba/pkg/platform/circuit"
	"genba/pkg/platform/sentinel"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPGateway talks to the external verifier service over JSON/HTTP.
// The service exposes three endpoints: /transcribe, /verify, /synthesize.
// A circuit breaker tracks service health; verification always probes, but
// best-effort synthesis is skipped while the breaker is open.
type HTTPGateway struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuit.Breaker
}

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(g *HTTPGateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// NewHTTP constructs a verifier gateway against the given base URL.
func NewHTTP(baseURL string, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		breaker:    circuit.New("verifier"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type transcribeRequest struct {
	Audio []byte `json:"audio"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
}

func (g *HTTPGateway) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var out transcribeResponse
	if err := g.postJSON(ctx, "/transcribe", transcribeRequest{Audio: audio}, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Transcript), nil
}

func (g *HTTPGateway) Verify(ctx context.Context, req VerifyRequest) (*Verdict, error) {
	var verdict Verdict
	if err := g.postJSON(ctx, "/verify", req, &verdict); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	// Clamp out-of-range confidences rather than reject: the verdict is
	// still usable and the clamp keeps the review threshold meaningful.
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	return &verdict, nil
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

func (g *HTTPGateway) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if g.breaker.IsOpen() {
		return nil, fmt.Errorf("synthesize: circuit open: %w", sentinel.ErrUnavailable)
	}
	body, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("synthesize: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("synthesize: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	defer resp.Body.Close()
	if err := g.checkStatus(resp); err != nil {
		return nil, fmt.Errorf("synthesize: %w", err)
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read body: %w", err)
	}
	return audio, nil
}

func (g *HTTPGateway) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()
	if err := g.checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkStatus maps response codes and feeds the breaker. A 4xx means the
// service is up, so only transport errors and 5xx count against it.
func (g *HTTPGateway) checkStatus(resp *http.Response) error {
	if resp.StatusCode < http.StatusMultipleChoices {
		g.breaker.RecordSuccess()
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= http.StatusInternalServerError {
		g.breaker.RecordFailure()
		return fmt.Errorf("http %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(snippet)), sentinel.ErrUnavailable)
	}
	return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}
