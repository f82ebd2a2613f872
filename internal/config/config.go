// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, signing secrets, Telegram bot credentials, Redis
// connection details, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "creamshop-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RedisConfig defines the connection to the key-value store, the system of
// record for this service.
type RedisConfig struct {
	Addr     string // REDIS_ADDR, host:port
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// TelegramConfig defines both bot identities and the OTP gateway.
type TelegramConfig struct {
	StoreBotToken    string  // STORE_BOT_TOKEN, customer-facing bot
	StoreBotUsername string  // STORE_BOT_USERNAME, for t.me deep links
	AdminBotToken    string  // ADMIN_BOT_TOKEN, operator bot
	WebhookSecret    string  // TG_WEBHOOK_SECRET, webhook secret-token header value
	GatewayToken     string  // TG_GATEWAY_TOKEN, Telegram Gateway API access token
	GatewayTimeout   time.Duration
	AdminChatIDs     []int64 // ADMIN_CHAT_IDS, comma-separated
}

// AuthConfig defines the token-signing secrets and lifetimes.
type AuthConfig struct {
	SessionSecret   string        // SESSION_SECRET, customer session tokens
	AdminSecret     string        // ADMIN_SECRET, admin session tokens
	OrderLinkSecret string        // ORDER_LINK_SECRET, public order tracking links
	OTPPepper       string        // OTP_PEPPER, mixed into stored OTP hashes
	AdminLogin      string        // ADMIN_LOGIN
	AdminPassword   string        // ADMIN_PASSWORD
	SessionTTL      time.Duration // SESSION_TTL
	AdminSessionTTL time.Duration // ADMIN_SESSION_TTL
}

// OTPConfig tunes one-time code issuance. OTPDevExpose returns the code in
// the API response when delivery is not configured; never enable it in
// production.
type OTPConfig struct {
	TTL         time.Duration // OTP_TTL
	Cooldown    time.Duration // OTP_COOLDOWN
	MaxAttempts int           // OTP_MAX_ATTEMPTS
	DevExpose   bool          // OTP_DEV_EXPOSE
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
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	SiteBaseURL    string // public storefront origin for tracking links
	APIBasePath    string // mount point of the JSON API, e.g. "/api/v1"
	RecentOrderCap int    // RECENT_ORDERS_CAP, size of the global recency index

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	Redis    RedisConfig
	Telegram TelegramConfig
	Auth     AuthConfig
	OTP      OTPConfig

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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		SiteBaseURL:    strings.TrimRight(getenv("SITE_BASE_URL", ""), "/"),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),
		RecentOrderCap: getint("RECENT_ORDERS_CAP", 100),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Domain
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Telegram: TelegramConfig{
			StoreBotToken:    getenv("STORE_BOT_TOKEN", ""),
			StoreBotUsername: strings.TrimPrefix(getenv("STORE_BOT_USERNAME", ""), "@"),
			AdminBotToken:    getenv("ADMIN_BOT_TOKEN", ""),
			WebhookSecret:    getenv("TG_WEBHOOK_SECRET", ""),
			GatewayToken:     getenv("TG_GATEWAY_TOKEN", ""),
			GatewayTimeout:   getdur("TG_GATEWAY_TIMEOUT", 7*time.Second),
			AdminChatIDs:     splitInt64CSV(getenv("ADMIN_CHAT_IDS", "")),
		},
		Auth: AuthConfig{
			SessionSecret:   getenv("SESSION_SECRET", ""),
			AdminSecret:     getenv("ADMIN_SECRET", ""),
			OrderLinkSecret: getenv("ORDER_LINK_SECRET", ""),
			OTPPepper:       getenv("OTP_PEPPER", ""),
			AdminLogin:      getenv("ADMIN_LOGIN", "admin"),
			AdminPassword:   getenv("ADMIN_PASSWORD", ""),
			SessionTTL:      getdur("SESSION_TTL", 14*24*time.Hour),
			AdminSessionTTL: getdur("ADMIN_SESSION_TTL", 7*24*time.Hour),
		},
		OTP: OTPConfig{
			TTL:         getdur("OTP_TTL", 5*time.Minute),
			Cooldown:    getdur("OTP_COOLDOWN", 60*time.Second),
			MaxAttempts: getint("OTP_MAX_ATTEMPTS", 5),
			DevExpose:   getbool("OTP_DEV_EXPOSE", false),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "creamshop-backend"),
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

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
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
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
		return cfg, errors.New("SESSION_SECRET must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.AdminSecret) == "" {
		return cfg, errors.New("ADMIN_SECRET must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.OrderLinkSecret) == "" {
		return cfg, errors.New("ORDER_LINK_SECRET must not be empty")
	}
	if strings.TrimSpace(cfg.Auth.OTPPepper) == "" {
		return cfg, errors.New("OTP_PEPPER must not be empty")
	}
	if cfg.Auth.SessionTTL <= 0 || cfg.Auth.AdminSessionTTL <= 0 {
		return cfg, errors.New("session TTLs must be positive durations")
	}
	if cfg.Telegram.GatewayTimeout <= 0 {
		return cfg, errors.New("TG_GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.OTP.TTL <= 0 || cfg.OTP.Cooldown <= 0 {
		return cfg, errors.New("OTP_TTL and OTP_COOLDOWN must be positive durations")
	}
	if cfg.OTP.MaxAttempts < 1 {
		return cfg, errors.New("OTP_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.RecentOrderCap < 1 {
		return cfg, errors.New("RECENT_ORDERS_CAP must be >= 1")
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
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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

// normalizeBasePath ensures a leading slash, strips a trailing one, and maps
// "/" to "" so the router can mount at the root.
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// splitInt64CSV parses a comma-separated list of chat ids, skipping anything
// that does not parse as an integer.
func splitInt64CSV(s string) []int64 {
	var out []int64
	for _, p := range splitCSV(s) {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
