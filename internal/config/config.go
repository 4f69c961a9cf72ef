package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chatgate/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "CHATGATE_"

// Load builds the configuration from defaults, the optional YAML file at
// configPath and CHATGATE_* environment variables, in that order, then validates it.
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// legacyConfig mirrors keys accepted by earlier releases.
type legacyConfig struct {
	Server struct {
		TrustedProxies interface{} `yaml:"trusted_proxies"`
	} `yaml:"server"`
	RateLimit struct {
		WindowMS *int64 `yaml:"window_ms"`
	} `yaml:"rate_limit"`
}

// applyLegacyKeys logs a warning for each legacy key found in data. rate_limit.window_ms
// is still honoured when rate_limit.window is not set in the same file.
func applyLegacyKeys(config *models.Config, data []byte) {
	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return
	}
	if legacy.Server.TrustedProxies != nil {
		slog.Warn("Config key is no longer supported; the client address is always the first X-Forwarded-For entry.", "config_key", "server.trusted_proxies")
	}
	if legacy.RateLimit.WindowMS != nil {
		slog.Warn("Config key is deprecated; use rate_limit.window with a duration string.", "config_key", "rate_limit.window_ms")
		if !hasKey(data, "rate_limit", "window") {
			config.RateLimit.Window = time.Duration(*legacy.RateLimit.WindowMS) * time.Millisecond
		}
	}
}

func hasKey(data []byte, section, key string) bool {
	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return false
	}
	_, ok := raw[section][key]
	return ok
}

func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	applyLegacyKeys(config, data)
	return nil
}

func loadFromEnvironment(config *models.Config) {
	// Server configuration
	setInt(&config.Server.Port, "PORT")
	setString(&config.Server.Host, "HOST")
	setDuration(&config.Server.ReadTimeout, "READ_TIMEOUT")
	setDuration(&config.Server.WriteTimeout, "WRITE_TIMEOUT")
	setDuration(&config.Server.IdleTimeout, "IDLE_TIMEOUT")
	setInt64(&config.Server.MaxBodyBytes, "MAX_BODY_BYTES")
	setBool(&config.Server.TLSEnabled, "TLS_ENABLED")
	setString(&config.Server.TLSCertFile, "TLS_CERT_FILE")
	setString(&config.Server.TLSKeyFile, "TLS_KEY_FILE")
	setBool(&config.Server.CORS.Enabled, "CORS_ENABLED")
	if origins := getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.Server.CORS.AllowedOrigins = splitList(origins)
	}

	// Rate limit configuration
	setBool(&config.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&config.RateLimit.MaxRequests, "RATE_LIMIT_MAX")
	setDuration(&config.RateLimit.Window, "RATE_LIMIT_WINDOW")
	if ms := getenv("RATE_LIMIT_WINDOW_MS"); ms != "" {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
			config.RateLimit.Window = time.Duration(n) * time.Millisecond
		}
	}
	setDuration(&config.RateLimit.SweepInterval, "RATE_LIMIT_SWEEP_INTERVAL")
	setInt(&config.RateLimit.MaxKeys, "RATE_LIMIT_MAX_KEYS")

	// Model configuration
	setString(&config.Model.Provider, "MODEL_PROVIDER")
	setString(&config.Model.Name, "MODEL_NAME")
	setString(&config.Model.BaseURL, "MODEL_BASE_URL")
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Model.APIKey = key
	}
	setString(&config.Model.APIKey, "MODEL_API_KEY")
	setDuration(&config.Model.Timeout, "MODEL_TIMEOUT")
	setString(&config.Model.SystemPrompt, "MODEL_SYSTEM_PROMPT")
	setFloat(&config.Model.Temperature, "MODEL_TEMPERATURE")
	setInt(&config.Model.MaxOutputTokens, "MODEL_MAX_OUTPUT_TOKENS")
	setFloat(&config.Model.RequestsPerSecond, "MODEL_REQUESTS_PER_SECOND")
	setInt(&config.Model.Burst, "MODEL_BURST")

	// Logging configuration
	setString(&config.Logging.Level, "LOG_LEVEL")
	setString(&config.Logging.Format, "LOG_FORMAT")
	setString(&config.Logging.Output, "LOG_OUTPUT")
	setString(&config.Logging.FilePath, "LOG_FILE_PATH")

	// Metrics configuration
	setBool(&config.Metrics.Enabled, "METRICS_ENABLED")
	setString(&config.Metrics.Path, "METRICS_PATH")
	setInt(&config.Metrics.Port, "METRICS_PORT")

	// Observability configuration
	setString(&config.Observability.ServiceName, "SERVICE_NAME")
	setBool(&config.Observability.Tracing.Enabled, "TRACING_ENABLED")
	setString(&config.Observability.Tracing.Exporter, "TRACING_EXPORTER")
	setString(&config.Observability.Tracing.OTLPEndpoint, "TRACING_OTLP_ENDPOINT")
	setFloat(&config.Observability.Tracing.SampleRate, "TRACING_SAMPLE_RATE")
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func setString(dst *string, name string) {
	if v := getenv(name); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, name string) {
	if v := getenv(name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

// Unparseable numeric and duration values are ignored and the previous value kept.

func setInt(dst *int, name string) {
	if v := getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, name string) {
	if v := getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, name string) {
	if v := getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, name string) {
	if v := getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SaveExample writes the default configuration with placeholder secrets to filePath.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Model.APIKey = "your-gemini-api-key"
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"
	config.Observability.Tracing.OTLPEndpoint = "localhost:4317"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
