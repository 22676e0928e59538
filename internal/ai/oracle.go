package ai

import "context"

// Oracle is a text-generation backend. Implementations are expected to be
// unreliable: they may time out, rate-limit, or return text that only
// resembles the requested shape. Callers go through the safecall package
// rather than using an Oracle directly.
type Oracle interface {
	// GenerateStructuredJSON asks the backend for a JSON-shaped response.
	// The returned string is raw model output and must not be trusted to
	// actually be JSON.
	GenerateStructuredJSON(ctx context.Context, prompt string, maxTokens int) (string, error)

	// GenerateAssistantReply asks the backend for free-form reply text.
	GenerateAssistantReply(ctx context.Context, prompt string, maxTokens int) (string, error)
}
