// Package models - API request types and input validation.
// This file defines the chat request schema accepted from the browser front-end.
//
// Validation Philosophy:
// - Fail fast with clear error messages for invalid input
// - Normalize input data for consistent processing (trimmed text, lowercase MIME types)
// - Keep image payloads bounded before they reach the model client
// - Separate validation from normalization for clear error reporting
package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chat request limits.
const (
	MaxMessageRunes = 4000
	MaxImageBytes   = 4 << 20
	MaxHistoryTurns = 20
)

// Conversation roles understood by the model.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// SupportedImageTypes lists the MIME types accepted for inline images.
var SupportedImageTypes = []string{
	"image/png",
	"image/jpeg",
	"image/webp",
	"image/gif",
	"image/heic",
	"image/heif",
}

// ChatRequest is a single user message, optionally with an image and the
// prior turns of the conversation held by the browser.
type ChatRequest struct {
	Message string           `json:"message"`
	Image   *ImageAttachment `json:"image,omitempty"`
	History []ChatTurn       `json:"history,omitempty"`
}

// ImageAttachment is an inline image encoded as standard base64.
type ImageAttachment struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// ChatTurn is one earlier message in the conversation.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Validate checks the request against the chat schema. It returns the first
// violation found; use FieldErrors for the full set.
func (r *ChatRequest) Validate() error {
	errs := r.FieldErrors()
	for _, field := range []string{"message", "image", "image.mime_type", "image.data", "history"} {
		if msg, ok := errs[field]; ok {
			return errors.New(msg)
		}
	}
	return nil
}

// FieldErrors returns every schema violation keyed by field path.
func (r *ChatRequest) FieldErrors() map[string]string {
	errs := make(map[string]string)

	hasImage := r.Image != nil
	if strings.TrimSpace(r.Message) == "" && !hasImage {
		errs["message"] = "message or image is required"
	}
	if n := utf8.RuneCountInString(r.Message); n > MaxMessageRunes {
		errs["message"] = fmt.Sprintf("message exceeds %d characters", MaxMessageRunes)
	}

	if hasImage {
		if err := r.Image.Validate(); err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				errs[fe.Field] = fe.Message
			} else {
				errs["image"] = err.Error()
			}
		}
	}

	if len(r.History) > MaxHistoryTurns {
		errs["history"] = fmt.Sprintf("history exceeds %d turns", MaxHistoryTurns)
	} else {
		for i, turn := range r.History {
			if turn.Role != RoleUser && turn.Role != RoleModel {
				errs["history"] = fmt.Sprintf("history[%d]: invalid role: %s", i, turn.Role)
				break
			}
			if strings.TrimSpace(turn.Text) == "" {
				errs["history"] = fmt.Sprintf("history[%d]: text is required", i)
				break
			}
		}
	}

	return errs
}

// Normalize trims the message and canonicalizes the image MIME type.
func (r *ChatRequest) Normalize() {
	r.Message = strings.TrimSpace(r.Message)
	if r.Image != nil {
		r.Image.MimeType = strings.ToLower(strings.TrimSpace(r.Image.MimeType))
	}
	for i := range r.History {
		r.History[i].Text = strings.TrimSpace(r.History[i].Text)
	}
}

// FieldError is a validation failure tied to a request field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the MIME type and the encoded payload.
func (a *ImageAttachment) Validate() error {
	mimeType := strings.ToLower(strings.TrimSpace(a.MimeType))
	if mimeType == "" {
		return &FieldError{Field: "image.mime_type", Message: "image mime_type is required"}
	}
	if !IsSupportedImageType(mimeType) {
		return &FieldError{Field: "image.mime_type", Message: fmt.Sprintf("unsupported image type: %s", a.MimeType)}
	}
	if a.Data == "" {
		return &FieldError{Field: "image.data", Message: "image data is required"}
	}
	if base64.StdEncoding.DecodedLen(len(a.Data)) > MaxImageBytes+2 {
		return &FieldError{Field: "image.data", Message: fmt.Sprintf("image exceeds %d bytes", MaxImageBytes)}
	}
	decoded, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return &FieldError{Field: "image.data", Message: "image data is not valid base64"}
	}
	if len(decoded) > MaxImageBytes {
		return &FieldError{Field: "image.data", Message: fmt.Sprintf("image exceeds %d bytes", MaxImageBytes)}
	}
	return nil
}

// IsSupportedImageType reports whether mimeType may be sent to the model.
func IsSupportedImageType(mimeType string) bool {
	for _, t := range SupportedImageTypes {
		if t == mimeType {
			return true
		}
	}
	return false
}
