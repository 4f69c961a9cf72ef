package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"chatgate/internal/chat"
	"chatgate/internal/models"
	"chatgate/internal/ratelimit"
	"chatgate/internal/version"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeMultipart = "multipart/form-data"

	// multipartMemory is the part of a multipart body held in memory; the rest
	// spills to temporary files.
	multipartMemory = 8 << 20
)

// Handlers contains HTTP handlers for the chat API
type Handlers struct {
	chatService  chat.ServiceInterface
	limiter      ratelimit.Limiter
	policy       ratelimit.Policy
	modelCheck   func() error
	maxBodyBytes int64
	version      version.Info
}

// HandlerOption configures optional Handlers dependencies.
type HandlerOption func(*Handlers)

// WithLimiter enables admission control on the chat route using policy.
func WithLimiter(limiter ratelimit.Limiter, policy ratelimit.Policy) HandlerOption {
	return func(h *Handlers) {
		h.limiter = limiter
		h.policy = policy
	}
}

// WithModelCheck sets the readiness probe reported as the "model" health component.
func WithModelCheck(check func() error) HandlerOption {
	return func(h *Handlers) {
		h.modelCheck = check
	}
}

// WithMaxBodyBytes caps the size of chat request bodies. Zero means no cap.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		h.maxBodyBytes = n
	}
}

// WithVersion overrides the build info reported by the health endpoint.
func WithVersion(v version.Info) HandlerOption {
	return func(h *Handlers) {
		h.version = v
	}
}

// NewHandlers creates a new handlers instance
func NewHandlers(chatService chat.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		chatService: chatService,
		version:     version.GetInfo(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Chat handles chat requests
// POST /api/v1/chat
// Accepts a JSON ChatRequest or a multipart form with "message", optional
// "history" (JSON array) and an optional "image" file.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeChatRequest(w, r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	response, err := h.chatService.Reply(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	if decision, ok := ratelimit.DecisionFromContext(r.Context()); ok {
		response.RateLimit = &models.RateLimitInfo{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt.UTC(),
		}
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

func (h *Handlers) decodeChatRequest(w http.ResponseWriter, r *http.Request) (*models.ChatRequest, error) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	mediaType := contentTypeJSON
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, unsupportedMediaType(ct)
		}
		mediaType = parsed
	}

	switch mediaType {
	case contentTypeJSON:
		var req models.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, bodyError("Invalid JSON body", err)
		}
		return &req, nil
	case contentTypeMultipart:
		return h.decodeMultipart(r)
	default:
		return nil, unsupportedMediaType(mediaType)
	}
}

func (h *Handlers) decodeMultipart(r *http.Request) (*models.ChatRequest, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, bodyError("Invalid multipart body", err)
	}
	defer r.MultipartForm.RemoveAll()

	req := &models.ChatRequest{
		Message: r.FormValue("message"),
	}

	if history := r.FormValue("history"); history != "" {
		if err := json.Unmarshal([]byte(history), &req.History); err != nil {
			return nil, chat.NewValidationError(map[string]string{
				"history": "history must be a JSON array of turns",
			}, err)
		}
	}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return nil, bodyError("Invalid image upload", err)
	}
	defer file.Close()

	image, err := chat.EncodeImage(file, header.Header.Get("Content-Type"), models.MaxImageBytes)
	if err != nil {
		return nil, chat.NewValidationError(map[string]string{"image": err.Error()}, err)
	}
	req.Image = image
	return req, nil
}

// bodyError maps a body read failure to 413 when the size cap was hit and
// 400 otherwise.
func bodyError(message string, err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return &chat.ServiceError{
			Code:       models.ErrorCodeInvalidRequest,
			Message:    fmt.Sprintf("Request body exceeds %d bytes", maxErr.Limit),
			StatusCode: http.StatusRequestEntityTooLarge,
			Err:        err,
		}
	}
	return chat.NewInvalidRequestError(message, err)
}

func unsupportedMediaType(mediaType string) error {
	return &chat.ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    fmt.Sprintf("Unsupported content type: %s", mediaType),
		StatusCode: http.StatusUnsupportedMediaType,
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version
	response.Uptime = h.version.Uptime().Truncate(time.Second).String()

	modelStatus, modelMessage := models.StatusHealthy, "Model client is configured"
	if h.modelCheck != nil {
		if err := h.modelCheck(); err != nil {
			modelStatus, modelMessage = models.StatusDegraded, err.Error()
			response.Status = models.StatusDegraded
		}
	}
	response.AddComponent("model", modelStatus, modelMessage)
	if h.chatService != nil {
		response.Components["model"].Details["name"] = h.chatService.ModelName()
	}

	if h.limiter != nil {
		response.AddComponent("rate_limiter", models.StatusHealthy, "Rate limiter is operational")
		details := response.Components["rate_limiter"].Details
		details["tracked_keys"] = h.limiter.Len()
		details["max_requests"] = h.policy.Max
		details["window"] = h.policy.Window.String()
	} else {
		response.AddComponent("rate_limiter", models.StatusUnknown, "Rate limiting is disabled")
	}

	response.AddMetric("instance_id", h.version.InstanceID)
	response.AddMetric("go_version", h.version.GoVersion)

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeServiceError converts err into an ErrorResponse. Errors that are not a
// *chat.ServiceError are reported as internal errors.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *chat.ServiceError
	if !errors.As(err, &svcErr) {
		svcErr = chat.NewInternalError("Internal server error", err)
	}

	errorResp := models.NewErrorResponse(svcErr.Message, svcErr.Code)
	errorResp.Details = svcErr.Fields
	errorResp.RequestID = RequestIDFromContext(r.Context())

	attrs := []any{
		"code", svcErr.Code,
		"status", svcErr.StatusCode,
		"request_id", errorResp.RequestID,
		"error", err,
	}
	if svcErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Chat request failed", attrs...)
	} else {
		slog.Info("Chat request rejected", attrs...)
	}

	h.writeJSONResponse(w, svcErr.StatusCode, errorResp)
}
