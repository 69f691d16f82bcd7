// Package agent provides the external task invocation boundary: an LLM-backed
// invoker with retry and error classification, plus structured-output
// extraction from free-text model responses.
package agent

import "context"

// Request describes one opaque call to the model backend.
type Request struct {
	// TaskName identifies the calling task, for logging and diagnostics only.
	TaskName string

	Prompt       string
	SystemPrompt string

	// Model is the backend model identifier to use.
	Model string

	// AllowedCapabilities lists backend tools the task may use, e.g.
	// web_search. Empty means text-only.
	AllowedCapabilities []string

	// MaxTokens limits response length. 0 uses the backend default.
	MaxTokens int
}

// Diagnostics carries trace-only telemetry from a call. Routing logic never
// consumes it.
type Diagnostics struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// Sink receives partial response text as it arrives, so a caller that times
// the call out can still recover whatever was produced.
type Sink interface {
	Append(text string)
}

// Invoker is the boundary the orchestration core depends on. Implementations
// must honor ctx cancellation and stream any text they receive into sink
// before returning.
type Invoker interface {
	Invoke(ctx context.Context, req Request, sink Sink) (string, Diagnostics, error)
}
