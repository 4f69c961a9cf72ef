package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"chatgate/internal/models"
)

// ErrImageTooLarge is returned when an uploaded image exceeds the limit.
var ErrImageTooLarge = errors.New("image too large")

// EncodeImage reads an uploaded file and returns it as an inline base64
// attachment. When mimeType is empty or generic the type is sniffed from the
// content.
func EncodeImage(r io.Reader, mimeType string, limit int64) (*models.ImageAttachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrImageTooLarge, limit)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}

	mediaType := normalizeMediaType(mimeType)
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = normalizeMediaType(http.DetectContentType(data))
	}

	return &models.ImageAttachment{
		MimeType: mediaType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func normalizeMediaType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return mediaType
}
