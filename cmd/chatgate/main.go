package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatgate/internal/api"
	"chatgate/internal/chat"
	"chatgate/internal/config"
	"chatgate/internal/logger"
	"chatgate/internal/models"
	"chatgate/internal/observability"
	"chatgate/internal/ratelimit"
	"chatgate/internal/version"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	writeExample = flag.String("write-example", "", "Write an example configuration file to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()

	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *writeExample)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the model client
	gemini := chat.NewGeminiClient(cfg.Model)
	if !gemini.Configured() {
		slog.Warn("Model API key is not set; chat requests will fail until it is configured",
			"env", "GEMINI_API_KEY")
	}

	var model chat.Model = gemini
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedModel(gemini)
		if err != nil {
			slog.Error("Failed to create instrumented model", "error", err)
			os.Exit(1)
		}
		model = instrumented
	}

	chatService := chat.NewService(model, cfg.Model)

	handlerOpts := []api.HandlerOption{
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithVersion(ver),
		api.WithModelCheck(func() error {
			if !gemini.Configured() {
				return chat.ErrNotConfigured
			}
			return nil
		}),
	}

	// Initialize rate limiter if enabled
	if cfg.RateLimit.Enabled {
		limiter, err := newLimiter(cfg)
		if err != nil {
			slog.Error("Failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		defer limiter.Close()

		handlerOpts = append(handlerOpts, api.WithLimiter(limiter, ratelimit.Policy{
			Scope:  "chat",
			Max:    cfg.RateLimit.MaxRequests,
			Window: cfg.RateLimit.Window,
		}))
		slog.Info("Rate limiting enabled",
			"max_requests", cfg.RateLimit.MaxRequests,
			"window", cfg.RateLimit.Window,
			"max_keys", cfg.RateLimit.MaxKeys)
	}

	handlers := api.NewHandlers(chatService, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr, "model", chatService.ModelName())

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// newLimiter builds the window limiter from configuration, instrumented when
// metrics are enabled.
func newLimiter(cfg *models.Config) (ratelimit.Limiter, error) {
	windowLimiter := ratelimit.NewWindowLimiter(
		ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval),
		ratelimit.WithMaxKeys(cfg.RateLimit.MaxKeys),
	)
	if !cfg.Metrics.Enabled {
		return windowLimiter, nil
	}

	instrumented, err := observability.NewInstrumentedLimiter(windowLimiter)
	if err != nil {
		windowLimiter.Close()
		return nil, fmt.Errorf("instrument limiter: %w", err)
	}
	return instrumented, nil
}
