package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/sakif/clustify-agent/internal/apperror"
	"github.com/sakif/clustify-agent/internal/model"
)

const (
	DefaultGeminiModel = "gemini-1.5-flash-latest"

	geminiSystemInstruction = "You are Clustify Agent, an assistant for container and cluster tooling. " +
		"Answer the user's prompt concisely. When files are listed, take their names and types into account."
)

// generateFunc is the one Gemini call we make; tests replace it.
type generateFunc func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// Gemini answers prompts with a Gemini model.
type Gemini struct {
	client   *genai.Client
	generate generateFunc
}

var _ Responder = (*Gemini)(nil)

// NewGemini creates a client authenticated with apiKey. Call Close when done.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("responder: creating gemini client: %w", err)
	}

	m := client.GenerativeModel(modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(geminiSystemInstruction)},
	}

	return &Gemini{client: client, generate: m.GenerateContent}, nil
}

func (g *Gemini) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func (g *Gemini) Respond(ctx context.Context, promptText string, files []model.Attachment) (string, error) {
	resp, err := g.generate(ctx, genai.Text(geminiPrompt(promptText, files)))
	if err != nil {
		return "", apperror.Upstream("gemini request failed", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperror.Upstream("gemini returned no candidates", nil)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", apperror.Upstream("gemini returned an empty response", errors.New("no text parts"))
	}
	return text.String(), nil
}

func geminiPrompt(promptText string, files []model.Attachment) string {
	if len(files) == 0 {
		return promptText
	}
	var b strings.Builder
	b.WriteString(promptText)
	b.WriteString("\n\nAttached files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", f.OriginalName, f.MimeType, f.SizeBytes)
	}
	return b.String()
}
