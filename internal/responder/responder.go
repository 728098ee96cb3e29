// Package responder produces the response text for a submitted prompt.
//
// The AI behind it is an external system. This package only fixes the
// contract: one synchronous call, prompt text and attachment metadata in,
// response text out. Three implementations exist:
//
//	Mock    answers locally with the fixed acknowledgement text
//	HTTP    POSTs to a webhook (optionally with an OAuth2 client-credentials token)
//	Gemini  asks Google's Gemini model directly
//
// A failing responder never fails a submission; the pipeline substitutes
// Fallback instead.
package responder

import (
	"context"
	"fmt"

	"github.com/sakif/clustify-agent/internal/model"
)

// Responder turns a prompt into a response string.
type Responder interface {
	Respond(ctx context.Context, promptText string, files []model.Attachment) (string, error)
}

// Fallback is the deterministic response used when no responder is
// configured or the configured one fails.
func Fallback(promptText string, fileCount int) string {
	return fmt.Sprintf(
		"Thank you for your prompt: \"%s\". I've received %d file(s) for processing. "+
			"This is a mock response from the server. "+
			"In a real implementation, this would be processed by an AI agent.",
		promptText, fileCount,
	)
}

// Mock answers every prompt with Fallback and never fails.
type Mock struct{}

var _ Responder = Mock{}

func (Mock) Respond(_ context.Context, promptText string, files []model.Attachment) (string, error) {
	return Fallback(promptText, len(files)), nil
}
