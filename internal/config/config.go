package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeoutSeconds      = 30
	DefaultProvidersEndpoint   = "providers"
	DefaultModelsEndpoint      = "models"
	DefaultPipelinesEndpoint   = "pipelines"
	DefaultServiceTokenTTL     = 5 * time.Minute
	DefaultServiceTokenSubject = "api-config"
)

// Config holds configuration for one configuration-loading process.
type Config struct {
	APIClient   APIClientConfig
	Logging     LoggingConfig
	Diagnostics DiagnosticsConfig
	Metrics     MetricsConfig
	Secrets     SecretsConfig
	Tracing     TracingConfig
}

// APIClientConfig describes how to reach the remote configuration API.
type APIClientConfig struct {
	BaseURL        string
	TimeoutSeconds int

	// Static auth header, applied only when both name and value are set
	AuthHeader string
	AuthValue  string

	// Signed service token, used when no static auth header is configured
	JWTSecret  []byte
	JWTSubject string
	JWTTTL     time.Duration

	// Endpoint overrides; empty means the default sub-path
	ProvidersEndpoint  string
	ModelsEndpoint     string
	PipelinesEndpoint  string
	FullConfigEndpoint string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// DiagnosticsConfig selects where transform diagnostics are published
type DiagnosticsConfig struct {
	Sink string // none, memory, redis, s3

	Redis RedisConfig
	S3    S3Config
}

// RedisConfig holds Redis connection settings for the diagnostics list
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	Key          string
	MaxLen       int64
	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

// S3Config holds settings for the S3 diagnostics export
type S3Config struct {
	Bucket   string // S3 bucket name
	Region   string // AWS region
	Prefix   string // Prefix for S3 keys (e.g., "diagnostics/")
	Endpoint string // Custom endpoint (MinIO); forces path-style addressing
	PodName  string // Pod identifier for multi-pod deployments
}

// SecretsConfig holds secret resolution settings
type SecretsConfig struct {
	EncryptionKey string // base64 AES key for encrypted literals; empty disables decryption
}

// TracingConfig holds OTLP exporter settings. An empty endpoint disables export.
type TracingConfig struct {
	Endpoint    string            // host:port of the collector
	Protocol    string            // "grpc" (default) or "http"
	Insecure    bool              // plaintext connection
	ServiceName string            // service.name resource attribute
	Headers     map[string]string // extra headers sent with each export
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Namespace string
}

// Timeout returns the per-request transport timeout.
func (c APIClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HasStaticAuth reports whether the static auth header pair is complete.
func (c APIClientConfig) HasStaticAuth() bool {
	return c.AuthHeader != "" && c.AuthValue != ""
}

// ProvidersPath returns the providers endpoint or its default.
func (c APIClientConfig) ProvidersPath() string {
	return valueOrDefault(c.ProvidersEndpoint, DefaultProvidersEndpoint)
}

// ModelsPath returns the models endpoint or its default.
func (c APIClientConfig) ModelsPath() string {
	return valueOrDefault(c.ModelsEndpoint, DefaultModelsEndpoint)
}

// PipelinesPath returns the pipelines endpoint or its default.
func (c APIClientConfig) PipelinesPath() string {
	return valueOrDefault(c.PipelinesEndpoint, DefaultPipelinesEndpoint)
}

func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}
	return b
}

// parseHeaders reads "k1=v1,k2=v2" pairs; malformed pairs are ignored.
func parseHeaders(val string) map[string]string {
	if val == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			continue
		}
		headers[k] = strings.TrimSpace(v)
	}
	return headers
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// LoadAPIClientConfig reads the API_CONFIG_* variables.
func LoadAPIClientConfig() (APIClientConfig, error) {
	baseURL := os.Getenv("API_CONFIG_BASE_URL")
	if baseURL == "" {
		return APIClientConfig{}, fmt.Errorf("API_CONFIG_BASE_URL environment variable is required")
	}

	timeout := getEnvInt("API_CONFIG_TIMEOUT_SECONDS", DefaultTimeoutSeconds)
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	var jwtSecret []byte
	if secret := os.Getenv("API_CONFIG_JWT_SECRET"); secret != "" {
		jwtSecret = []byte(secret)
	}

	return APIClientConfig{
		BaseURL:            baseURL,
		TimeoutSeconds:     timeout,
		AuthHeader:         os.Getenv("API_CONFIG_AUTH_HEADER"),
		AuthValue:          os.Getenv("API_CONFIG_AUTH_VALUE"),
		JWTSecret:          jwtSecret,
		JWTSubject:         getEnvString("API_CONFIG_JWT_SUBJECT", DefaultServiceTokenSubject),
		JWTTTL:             getEnvDuration("API_CONFIG_JWT_TTL", DefaultServiceTokenTTL),
		ProvidersEndpoint:  os.Getenv("API_CONFIG_PROVIDERS_ENDPOINT"),
		ModelsEndpoint:     os.Getenv("API_CONFIG_MODELS_ENDPOINT"),
		PipelinesEndpoint:  os.Getenv("API_CONFIG_PIPELINES_ENDPOINT"),
		FullConfigEndpoint: os.Getenv("API_CONFIG_FULL_ENDPOINT"),
	}, nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	apiClient, err := LoadAPIClientConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIClient: apiClient,
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "warning"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Diagnostics: DiagnosticsConfig{
			Sink: strings.ToLower(getEnvString("DIAGNOSTICS_SINK", "none")),
			Redis: RedisConfig{
				Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
				Password:     getEnvString("REDIS_PASSWORD", ""),
				DB:           getEnvInt("REDIS_DB", 0),
				Key:          getEnvString("DIAGNOSTICS_REDIS_KEY", "diagnostics:api-config"),
				MaxLen:       getEnvInt64("DIAGNOSTICS_REDIS_MAX_LEN", 1000),
				DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
				WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			},
			S3: S3Config{
				Bucket:   getEnvString("DIAGNOSTICS_S3_BUCKET", ""),
				Region:   getEnvString("DIAGNOSTICS_S3_REGION", "us-east-1"),
				Prefix:   getEnvString("DIAGNOSTICS_S3_PREFIX", "diagnostics/"),
				Endpoint: getEnvString("DIAGNOSTICS_S3_ENDPOINT", ""),
				PodName:  getEnvString("POD_NAME", "api-config-0"),
			},
		},
		Metrics: MetricsConfig{
			Namespace: getEnvString("METRICS_NAMESPACE", "api_config"),
		},
		Secrets: SecretsConfig{
			EncryptionKey: os.Getenv("SECRETS_ENCRYPTION_KEY"),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Protocol:    strings.ToLower(getEnvString("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")),
			Insecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName: getEnvString("OTEL_SERVICE_NAME", "api-config"),
			Headers:     parseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		},
	}

	switch cfg.Diagnostics.Sink {
	case "none", "memory", "redis":
	case "s3":
		if cfg.Diagnostics.S3.Bucket == "" {
			return nil, fmt.Errorf("DIAGNOSTICS_S3_BUCKET is required when DIAGNOSTICS_SINK=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported DIAGNOSTICS_SINK %q", cfg.Diagnostics.Sink)
	}

	return cfg, nil
}
