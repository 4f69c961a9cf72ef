// Package models - Service configuration and operational settings.
// This file defines configuration structures for every chatgate component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, rate limit, model, etc.)
// - Environment-friendly defaults that work out of the box
// - Validation catches misconfigurations before the server starts
package models

import (
	"errors"
	"fmt"
	"time"
)

// Model provider constants
const (
	ModelProviderGemini = "gemini"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - RateLimit: Per-client fixed-window admission control
// - Model: Hosted generative model client
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus scrape endpoint
// - Observability: Tracing and service identity
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Model         ModelConfig         `yaml:"model" json:"model"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// RateLimitConfig holds the window parameters passed to the admission limiter
// on every chat request.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	MaxRequests   int           `yaml:"max_requests" json:"max_requests"`
	Window        time.Duration `yaml:"window" json:"window"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	MaxKeys       int           `yaml:"max_keys" json:"max_keys"`
}

type ModelConfig struct {
	Provider          string        `yaml:"provider" json:"provider"`
	Name              string        `yaml:"name" json:"name"`
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	APIKey            string        `yaml:"api_key" json:"-"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	SystemPrompt      string        `yaml:"system_prompt" json:"system_prompt"`
	Temperature       float64       `yaml:"temperature" json:"temperature"`
	MaxOutputTokens   int           `yaml:"max_output_tokens" json:"max_output_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values:
// - Port 8080: Standard non-privileged HTTP port
// - 30 chat requests per client per 60-second window
// - Expired window records swept every 5 minutes
// - Gemini flash model with a 60-second upstream timeout
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodyBytes: 8 << 20,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         86400,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   30,
			Window:        60 * time.Second,
			SweepInterval: 5 * time.Minute,
			MaxKeys:       100000,
		},
		Model: ModelConfig{
			Provider:          ModelProviderGemini,
			Name:              "gemini-1.5-flash",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta",
			Timeout:           60 * time.Second,
			SystemPrompt:      "You are a helpful assistant. Answer concisely and describe any attached image when it is relevant to the question.",
			Temperature:       0.7,
			MaxOutputTokens:   2048,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "chatgate",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Model.Validate(); err != nil {
		return fmt.Errorf("invalid model config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.MaxBodyBytes < 0 {
		return errors.New("max body bytes cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

// Validate checks the rate limit settings. The limiter itself trusts its
// callers, so positive values are enforced here instead.
func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}
	if rl.MaxRequests <= 0 {
		return errors.New("max requests must be positive")
	}
	if rl.Window <= 0 {
		return errors.New("window must be positive")
	}
	if rl.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	if rl.MaxKeys < 0 {
		return errors.New("max keys cannot be negative")
	}
	return nil
}

func (mc *ModelConfig) Validate() error {
	if mc.Provider != ModelProviderGemini {
		return fmt.Errorf("invalid model provider: %s", mc.Provider)
	}
	if mc.Name == "" {
		return errors.New("model name cannot be empty")
	}
	if mc.BaseURL == "" {
		return errors.New("model base URL cannot be empty")
	}
	if mc.Timeout < 0 {
		return errors.New("model timeout cannot be negative")
	}
	if mc.Temperature < 0 || mc.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}
	if mc.MaxOutputTokens < 0 {
		return errors.New("max output tokens cannot be negative")
	}
	if mc.RequestsPerSecond < 0 {
		return errors.New("requests per second cannot be negative")
	}
	if mc.RequestsPerSecond > 0 && mc.Burst <= 0 {
		return errors.New("burst must be positive when requests per second is set")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
