package gateway

import (
	"context"

	"genba/internal/session/models"
)

// VerifyRequest carries everything the verifier needs to judge one step:
// the procedure context, the step under check, and the worker's evidence.
type VerifyRequest struct {
	SOPStructure     string   `json:"sop_structure"`
	TaskNumber       int      `json:"task_number"`
	StepNumber       int      `json:"step_number"`
	StepAction       string   `json:"step_action"`
	StepResult       string   `json:"step_result"`
	Hazards          []string `json:"hazards,omitempty"`
	WorkerTranscript string   `json:"worker_transcript,omitempty"`
	ImageData        []byte   `json:"image_data,omitempty"`
}

// Verdict is the verifier's judgment on one step.
type Verdict struct {
	Result          models.CheckResult `json:"result"`
	Confidence      float64            `json:"confidence"`
	SequenceCorrect bool               `json:"step_sequence_correct"`
	Feedback        string             `json:"feedback"`
	Reasoning       string             `json:"reasoning,omitempty"`
	NextStepHint    string             `json:"next_step_hint,omitempty"`
}

// Transcriber converts worker speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// Verifier judges step evidence against the procedure.
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*Verdict, error)
}

// Synthesizer converts feedback text to speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Gateway bundles the three verifier-service capabilities.
type Gateway interface {
	Transcriber
	Verifier
	Synthesizer
}
