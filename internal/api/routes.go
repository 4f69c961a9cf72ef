package api

import (
	"net/http"

	"chatgate/internal/models"
	"chatgate/internal/ratelimit"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes for the API. The chat route is
// wrapped in the admission limiter when handlers carry one.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	router.Use(recoveryMiddleware)
	router.Use(requestIDMiddleware)
	router.Use(loggingMiddleware)

	for _, opt := range opts {
		opt(router)
	}

	if config.Server.CORS.Enabled {
		router.Use(corsMiddleware(config.Server.CORS))
	}

	api := router.PathPrefix("/api/v1").Subrouter()

	var chatHandler http.Handler = http.HandlerFunc(handlers.Chat)
	if handlers.limiter != nil {
		chatHandler = ratelimit.Middleware(handlers.limiter, handlers.policy)(chatHandler)
	}
	api.Handle("/chat", chatHandler).Methods(http.MethodPost)
	api.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods(http.MethodGet)
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods(http.MethodGet)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Preflight requests must reach the CORS middleware, which only runs on matched routes.
	api.PathPrefix("").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodOptions)

	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)
	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)

	return router
}
