package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatgate/internal/models"

	"golang.org/x/time/rate"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// maxResponseBytes bounds how much of a provider response is read.
const maxResponseBytes = 4 << 20

// GeminiClient calls the Gemini generateContent REST endpoint.
type GeminiClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration

	// pacer spaces outbound calls so a burst of admitted chat requests does
	// not exhaust the provider quota. Nil means unpaced.
	pacer *rate.Limiter
}

// NewGeminiClient returns a client configured from cfg with defaults applied.
func NewGeminiClient(cfg models.ModelConfig) *GeminiClient {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultGeminiBaseURL
	}

	c := &GeminiClient{
		BaseURL:    strings.TrimRight(base, "/"),
		APIKey:     strings.TrimSpace(cfg.APIKey),
		Model:      cfg.Name,
		HTTPClient: &http.Client{},
		Timeout:    cfg.Timeout,
	}
	if cfg.RequestsPerSecond > 0 {
		c.pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c
}

// Name returns the model identifier.
func (c *GeminiClient) Name() string {
	return c.Model
}

// Configured reports whether the client has credentials.
func (c *GeminiClient) Configured() bool {
	return c != nil && c.APIKey != ""
}

// Generate sends the conversation to generateContent and joins the text parts
// of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for upstream slot: %w: %w", ErrPaced, err)
		}
	}

	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.BaseURL, url.PathEscape(c.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.APIKey)

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	slog.Debug("Model call completed",
		"model", c.Model,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseGeminiError(resp, respBody)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return parsed.result()
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type geminiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildGeminiRequest(req *GenerateRequest) *geminiRequest {
	out := &geminiRequest{
		Contents: make([]geminiContent, 0, len(req.Messages)),
	}

	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		out.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt}}}
	}

	for _, msg := range req.Messages {
		content := geminiContent{Role: msg.Role}
		for _, p := range msg.Parts {
			if p.InlineData != "" {
				content.Parts = append(content.Parts, geminiPart{
					InlineData: &geminiInlineData{MimeType: p.MimeType, Data: p.InlineData},
				})
				continue
			}
			content.Parts = append(content.Parts, geminiPart{Text: p.Text})
		}
		out.Contents = append(out.Contents, content)
	}

	temperature := req.Temperature
	out.GenerationConfig = &geminiGenerationConfig{
		Temperature:     &temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	return out
}

func (r *geminiResponse) result() (*GenerateResult, error) {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, r.PromptFeedback.BlockReason)
	}
	if len(r.Candidates) == 0 {
		return nil, fmt.Errorf("response contained no candidates")
	}

	candidate := r.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 && candidate.FinishReason == "SAFETY" {
		return nil, fmt.Errorf("%w: %s", ErrBlocked, candidate.FinishReason)
	}

	result := &GenerateResult{
		Text:         text.String(),
		FinishReason: candidate.FinishReason,
	}
	if u := r.UsageMetadata; u != nil {
		result.Usage = &models.TokenUsage{
			PromptTokens:     u.PromptTokenCount,
			CandidatesTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return result, nil
}

func parseGeminiError(resp *http.Response, body []byte) error {
	upstream := &UpstreamError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	var parsed geminiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		upstream.Message = parsed.Error.Message
	} else {
		upstream.Message = strings.TrimSpace(string(body))
	}
	return upstream
}

var _ Model = (*GeminiClient)(nil)
