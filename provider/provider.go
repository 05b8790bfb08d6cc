package provider

import (
	"context"

	"github.com/google/uuid"
)

// MaxOutputTokens caps vendor completions. Storyboard scripts for even long
// videos fit comfortably; the cap guards against runaway generations.
const MaxOutputTokens = 8192

// Emit forwards ev to events unless ctx is already done. Adapters route every
// send through it so a consumer that stops reading mid-stream releases the
// pump goroutine instead of parking it on a full channel.
func Emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Provider is implemented once per vendor route. AnalyzeVideo translates the
// request into the vendor's wire format and returns the normalized event
// stream. The returned channel is owned by a single caller and is closed by
// the adapter after the terminal event.
type Provider interface {
	AnalyzeVideo(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Request carries one video analysis invocation.
type Request struct {
	// TaskID correlates every emitted event with the persisted task row.
	TaskID uuid.UUID

	// VideoURL is a publicly reachable reference to the uploaded video.
	VideoURL string

	// Prompt is the natural-language analysis instruction.
	Prompt string

	// Thinking asks the vendor to stream intermediate reasoning. Vendors
	// without the feature ignore the toggle; the request still succeeds.
	Thinking bool

	// ThinkingParams holds vendor-specific thinking configuration, already
	// decoded from the model config blob. Nil when absent or malformed.
	ThinkingParams map[string]any

	// Prevents unkeyed literals
	_ struct{}
}

// Config is the read-model of one configured vendor model, resolved from
// storage once per analysis request and immutable for its duration.
type Config struct {
	// ModelID is the unique key used by clients to select this model.
	ModelID string

	// Name is the vendor-side model name sent on the wire (e.g. "glm-4v-plus").
	Name string

	// Vendor is a free-text vendor label; localized display names and
	// English aliases both resolve through the factory.
	Vendor string

	// APIKey is the vendor credential.
	APIKey string

	// BaseURL overrides the vendor endpoint. Empty means the vendor default.
	BaseURL string

	// UseNativeSDK selects the vendor-proprietary route instead of the
	// generic OpenAI-compatible chat-completion surface.
	UseNativeSDK bool

	// DefaultPrompt is used when an analysis request carries no instruction.
	DefaultPrompt string

	// ThinkingParams is the raw vendor-specific thinking configuration blob.
	ThinkingParams string

	// Active models are the only ones resolvable by the orchestrator.
	Active bool
}
