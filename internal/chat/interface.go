package chat

import (
	"context"

	"chatgate/internal/models"
)

// ServiceInterface defines the interface for chat service operations
type ServiceInterface interface {
	// Reply validates the request, forwards it to the model and returns its answer.
	Reply(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error)

	// ModelName identifies the model replies come from.
	ModelName() string
}

// Model is a hosted generative-language model.
type Model interface {
	// Generate produces a reply for the conversation in req.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)

	// Name returns the model identifier sent to the provider.
	Name() string
}

// Part is one piece of a message: text or an inline base64 image.
type Part struct {
	Text       string
	MimeType   string
	InlineData string
}

// Message is a single conversation turn.
type Message struct {
	Role  string
	Parts []Part
}

// GenerateRequest is the provider-neutral input to a Model.
type GenerateRequest struct {
	SystemPrompt    string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
}

// GenerateResult is the provider-neutral output of a Model.
type GenerateResult struct {
	Text         string
	FinishReason string
	Usage        *models.TokenUsage
}

// Ensure Service implements ServiceInterface
var _ ServiceInterface = (*Service)(nil)
