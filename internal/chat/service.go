// Package chat turns validated chat requests into model calls. It owns the
// request schema enforcement, the conversation layout sent to the model, the
// Gemini REST client and the mapping of model failures onto HTTP-aware errors.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chatgate/internal/models"
)

// Service handles chat replies
type Service struct {
	model           Model
	systemPrompt    string
	temperature     float64
	maxOutputTokens int
	now             func() time.Time
}

// NewService creates a new chat service that answers through model using
// the prompt and generation settings in cfg.
func NewService(model Model, cfg models.ModelConfig) *Service {
	return &Service{
		model:           model,
		systemPrompt:    cfg.SystemPrompt,
		temperature:     cfg.Temperature,
		maxOutputTokens: cfg.MaxOutputTokens,
		now:             time.Now,
	}
}

// ModelName returns the configured model identifier.
func (s *Service) ModelName() string {
	return s.model.Name()
}

// Reply validates req, sends it to the model and returns the model's answer.
func (s *Service) Reply(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if req == nil {
		return nil, NewInvalidRequestError("request body is required", nil)
	}

	// Validate and normalize request
	req.Normalize()
	if fields := req.FieldErrors(); len(fields) > 0 {
		return nil, NewValidationError(fields, req.Validate())
	}

	result, err := s.model.Generate(ctx, s.buildRequest(req))
	if err != nil {
		return nil, classifyModelError(err)
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return nil, NewUpstreamError("model returned an empty reply", nil)
	}

	return &models.ChatResponse{
		Reply:        text,
		Model:        s.model.Name(),
		FinishReason: result.FinishReason,
		Usage:        result.Usage,
		CreatedAt:    s.now(),
	}, nil
}

// buildRequest lays out the conversation: prior turns first, then the new
// user turn with its text followed by the inline image.
func (s *Service) buildRequest(req *models.ChatRequest) *GenerateRequest {
	messages := make([]Message, 0, len(req.History)+1)
	for _, turn := range req.History {
		messages = append(messages, Message{
			Role:  turn.Role,
			Parts: []Part{{Text: turn.Text}},
		})
	}

	user := Message{Role: models.RoleUser}
	if req.Message != "" {
		user.Parts = append(user.Parts, Part{Text: req.Message})
	}
	if req.Image != nil {
		user.Parts = append(user.Parts, Part{
			MimeType:   req.Image.MimeType,
			InlineData: req.Image.Data,
		})
	}
	messages = append(messages, user)

	return &GenerateRequest{
		SystemPrompt:    s.systemPrompt,
		Messages:        messages,
		Temperature:     s.temperature,
		MaxOutputTokens: s.maxOutputTokens,
	}
}

// classifyModelError maps model client failures onto service errors.
func classifyModelError(err error) *ServiceError {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrPaced):
		return NewUnavailableError("chat model is busy, try again shortly", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewUpstreamTimeoutError(err)
	case errors.Is(err, context.Canceled):
		return NewInvalidRequestError("request canceled", err)
	case errors.Is(err, ErrNotConfigured):
		return NewUnavailableError("chat model is not configured", err)
	case errors.Is(err, ErrBlocked):
		return NewUpstreamError("the model declined to answer this message", err)
	case errors.As(err, &upstream):
		if upstream.StatusCode == http.StatusTooManyRequests || upstream.StatusCode == http.StatusServiceUnavailable {
			return NewUnavailableError("chat model is temporarily unavailable", err)
		}
		return NewUpstreamError(fmt.Sprintf("model request failed with status %d", upstream.StatusCode), err)
	default:
		return NewUpstreamError("model request failed", err)
	}
}
