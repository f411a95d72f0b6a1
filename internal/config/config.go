// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server and logging
// settings, storage selection, messaging provider credentials, generation
// backend settings, the inbound pipeline and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "orderbot")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the persistent store.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // sqlite file
	URL    string // postgres DSN
}

// WhatsAppConfig holds the global Graph-style channel settings. Tenants may
// override the phone number id, verify token, app secret and access token.
type WhatsAppConfig struct {
	VerifyToken   string
	AppSecret     string
	AccessToken   string
	PhoneNumberID string
	APIBaseURL    string
	APIVersion    string
}

// GatewayConfig holds the global Gateway-style channel settings.
type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	SenderID string
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider          string // anthropic|openai
	AnthropicAPIKey   string
	OpenAIAPIKey      string
	Model             string
	FastModel         string
	GenerationTimeout time.Duration
	SearchTimeout     time.Duration
}

// QueueConfig selects the inbound handoff.
type QueueConfig struct {
	Backend    string // memory|nats
	Workers    int
	Size       int
	NATSURL    string
	NATSStream string
}

// DedupConfig controls inbound message deduplication.
type DedupConfig struct {
	Enabled       bool
	Backend       string // sql|redis
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// SendConfig bounds outbound delivery.
type SendConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // trace|debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for the admin API

	// Storage
	DB                DBConfig
	DemoMode          bool // in-memory conversations and orders
	HistoryLimit      int
	HistoryMaxAge     time.Duration // 0 disables the age filter
	ReceiptPurgeEvery time.Duration // dedup receipt cleanup (sql backend)

	// Messaging
	Provider string // whatsapp|lam
	WhatsApp WhatsAppConfig
	Gateway  GatewayConfig
	Send     SendConfig

	// Generation
	LLM LLMConfig

	// Pipeline
	Queue QueueConfig
	Dedup DedupConfig

	// Admin API
	AdminJWTSecret string // admin routes are not mounted when empty
	RateRPS        float64
	RateBurst      int
	CORS           CORSConfig
	Security       SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "orderbot.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		DemoMode:          getbool("DEMO_MODE", false),
		HistoryLimit:      getint("HISTORY_LIMIT", 50),
		HistoryMaxAge:     getdur("HISTORY_MAX_AGE", 24*time.Hour),
		ReceiptPurgeEvery: getdur("RECEIPT_PURGE_INTERVAL", time.Hour),

		Provider: strings.ToLower(getenv("MESSAGING_PROVIDER", "whatsapp")),
		WhatsApp: WhatsAppConfig{
			VerifyToken:   getenv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:     getenv("WHATSAPP_APP_SECRET", ""),
			AccessToken:   getenv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
			APIBaseURL:    getenv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenv("WHATSAPP_API_VERSION", "v18.0"),
		},
		Gateway: GatewayConfig{
			BaseURL:  getenv("LAM_API_BASE_URL", ""),
			APIKey:   getenv("LAM_API_KEY", ""),
			SenderID: getenv("LAM_SENDER_ID", ""),
		},
		Send: SendConfig{
			MaxRetries: getint("SEND_MAX_RETRIES", 3),
			BaseDelay:  getdur("SEND_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:   getdur("SEND_MAX_DELAY", 8*time.Second),
			Timeout:    getdur("SEND_TIMEOUT", 10*time.Second),
		},

		LLM: LLMConfig{
			Provider:          strings.ToLower(getenv("LLM_PROVIDER", "anthropic")),
			AnthropicAPIKey:   getenv("ANTHROPIC_API_KEY", ""),
			OpenAIAPIKey:      getenv("OPENAI_API_KEY", ""),
			Model:             getenv("LLM_MODEL", ""),
			FastModel:         getenv("LLM_FAST_MODEL", ""),
			GenerationTimeout: getdur("GENERATION_TIMEOUT", 15*time.Second),
			SearchTimeout:     getdur("SEARCH_TIMEOUT", 2*time.Second),
		},

		Queue: QueueConfig{
			Backend:    strings.ToLower(getenv("QUEUE_BACKEND", "memory")),
			Workers:    getint("WORKER_COUNT", 4),
			Size:       getint("QUEUE_SIZE", 256),
			NATSURL:    getenv("NATS_URL", "nats://localhost:4222"),
			NATSStream: getenv("NATS_STREAM", "ORDERBOT_INBOUND"),
		},
		Dedup: DedupConfig{
			Enabled:       getbool("DEDUP_ENABLED", true),
			Backend:       strings.ToLower(getenv("DEDUP_BACKEND", "sql")),
			TTL:           getdur("DEDUP_TTL", 24*time.Hour),
			RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getint("REDIS_DB", 0),
		},

		AdminJWTSecret: getenv("ADMIN_JWT_SECRET", ""),
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "orderbot"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Provider == "meta" || cfg.Provider == "graph" {
		cfg.Provider = "whatsapp"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: trace, debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if !cfg.DemoMode && strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if !cfg.DemoMode && strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required for DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if cfg.HistoryLimit < 1 {
		return cfg, errors.New("HISTORY_LIMIT must be >= 1")
	}
	if cfg.HistoryMaxAge < 0 {
		return cfg, errors.New("HISTORY_MAX_AGE must be >= 0")
	}
	switch cfg.Provider {
	case "whatsapp", "lam":
	default:
		return cfg, errors.New("MESSAGING_PROVIDER must be one of: whatsapp, lam")
	}
	if cfg.Send.MaxRetries < 0 {
		return cfg, errors.New("SEND_MAX_RETRIES must be >= 0")
	}
	if cfg.Send.BaseDelay <= 0 || cfg.Send.MaxDelay < cfg.Send.BaseDelay || cfg.Send.Timeout <= 0 {
		return cfg, errors.New("SEND_BASE_DELAY, SEND_MAX_DELAY and SEND_TIMEOUT must be positive with max >= base")
	}
	switch cfg.LLM.Provider {
	case "anthropic", "openai":
	default:
		return cfg, errors.New("LLM_PROVIDER must be one of: anthropic, openai")
	}
	if cfg.LLM.GenerationTimeout <= 0 || cfg.LLM.SearchTimeout <= 0 {
		return cfg, errors.New("GENERATION_TIMEOUT and SEARCH_TIMEOUT must be > 0")
	}
	switch cfg.Queue.Backend {
	case "memory":
		if cfg.Queue.Workers < 1 || cfg.Queue.Size < 1 {
			return cfg, errors.New("WORKER_COUNT and QUEUE_SIZE must be >= 1")
		}
	case "nats":
		if strings.TrimSpace(cfg.Queue.NATSURL) == "" {
			return cfg, errors.New("NATS_URL is required for QUEUE_BACKEND=nats")
		}
	default:
		return cfg, errors.New("QUEUE_BACKEND must be one of: memory, nats")
	}
	if cfg.Dedup.Enabled {
		switch cfg.Dedup.Backend {
		case "sql", "redis":
		default:
			return cfg, errors.New("DEDUP_BACKEND must be one of: sql, redis")
		}
		if cfg.Dedup.TTL <= 0 {
			return cfg, errors.New("DEDUP_TTL must be > 0")
		}
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// LLMAPIKey returns the key of the selected generation provider.
func (c Config) LLMAPIKey() string {
	if c.LLM.Provider == "openai" {
		return c.LLM.OpenAIAPIKey
	}
	return c.LLM.AnthropicAPIKey
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
