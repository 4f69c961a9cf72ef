package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"chatgate/internal/models"
)

// UnknownClient is the client address used when no forwarded address is present.
const UnknownClient = "unknown"

// Policy binds a route scope to the window parameters passed to the limiter.
type Policy struct {
	Scope  string
	Max    int
	Window time.Duration
}

// Key builds the limiter key for a client address under this policy.
func (p Policy) Key(clientAddress string) string {
	return p.Scope + ":" + clientAddress
}

type decisionKey struct{}

// DecisionFromContext returns the decision the middleware made for the
// current request, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionKey{}).(Decision)
	return d, ok
}

// Middleware returns HTTP middleware that admits or rejects each request
// through limiter. Admitted requests carry the Decision in their context.
func Middleware(limiter Limiter, policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := policy.Key(ClientAddress(r))

			decision := limiter.Check(key, policy.Max, policy.Window)

			// Always set rate limit headers
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))

			if !decision.Admitted {
				checkedAt := decision.CheckedAt
				if checkedAt.IsZero() {
					checkedAt = time.Now()
				}
				retryAfterSecs := retryAfterSeconds(decision.RetryAfter(checkedAt))
				w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)

				errorResp := models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimitExceeded)
				errorResp.Details = map[string]string{
					"reset_at": decision.ResetAt.UTC().Format(time.RFC3339),
				}
				if err := json.NewEncoder(w).Encode(errorResp); err != nil {
					slog.Error("Failed to encode rate limit response", "error", err)
				}

				slog.Warn("Rate limit exceeded",
					"key", key,
					"limit", decision.Limit,
					"reset_at", decision.ResetAt,
					"retry_after", retryAfterSecs,
				)
				return
			}

			ctx := context.WithValue(r.Context(), decisionKey{}, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientAddress extracts the client address from the first X-Forwarded-For
// entry, falling back to UnknownClient.
func ClientAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return UnknownClient
}

func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
