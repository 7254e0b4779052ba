package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Email       EmailConfig     `yaml:"email"`
	Webhooks    WebhooksConfig  `yaml:"webhooks"`
	Stripe      StripeConfig    `yaml:"stripe"`
	Draft       DraftConfig     `yaml:"draft"`
	Documents   DocumentsConfig `yaml:"documents"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"`
	// AppURL is the web front end, used for links in outbound email.
	AppURL string `yaml:"app_url"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	// MigrationsPath overrides the migrations compiled into the binary.
	MigrationsPath string `yaml:"migrations_path"`
}

type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl"`
	Issuer        string        `yaml:"issuer"`
	CookieName    string        `yaml:"cookie_name"`
	CookieSecure  bool          `yaml:"cookie_secure"`
	CSRFKey       string        `yaml:"csrf_key"`
	TrustedOrigin []string      `yaml:"trusted_origins"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	TenantPerMinute   int      `yaml:"tenant_per_minute"`
	AuthPerMinute     int      `yaml:"auth_per_minute"`
	WebhookPerMinute  int      `yaml:"webhook_per_minute"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	OTLPInsecure bool    `yaml:"otlp_insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
}

type EmailConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ResendAPIKey  string `yaml:"resend_api_key"`
	From          string `yaml:"from"`
	InboundDomain string `yaml:"inbound_domain"`
	TemplatesDir  string `yaml:"templates_dir"`
}

type WebhooksConfig struct {
	StripeSecret string        `yaml:"stripe_secret"`
	ResendSecret string        `yaml:"resend_secret"`
	Tolerance    time.Duration `yaml:"tolerance"`
}

type StripeConfig struct {
	APIKey     string `yaml:"api_key"`
	APIBase    string `yaml:"api_base"`
	ReturnURL  string `yaml:"return_url"`
	RefreshURL string `yaml:"refresh_url"`
}

type DraftConfig struct {
	DefaultPickWindow time.Duration `yaml:"default_pick_window"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
}

type DocumentsConfig struct {
	// ChromeURL is a DevTools websocket URL. Empty launches a local headless browser.
	ChromeURL  string        `yaml:"chrome_url"`
	PDFTimeout time.Duration `yaml:"pdf_timeout"`
}

// Defaults returns the configuration used before the file and environment are applied.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
			AppURL:  "http://localhost:3000",
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "breederhq",
			CookieName: "bhq_session",
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:  60,
			TenantPerMinute:  600,
			AuthPerMinute:    10,
			WebhookPerMinute: 600,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Tracing: TracingConfig{
			Exporter:    "none",
			ServiceName: "breederhq-server",
			SampleRate:  1.0,
		},
		Email: EmailConfig{
			From:          "BreederHQ <notifications@breederhq.com>",
			InboundDomain: "inbound.breederhq.com",
		},
		Webhooks: WebhooksConfig{Tolerance: 5 * time.Minute},
		Stripe:   StripeConfig{APIBase: "https://api.stripe.com"},
		Draft: DraftConfig{
			DefaultPickWindow: 24 * time.Hour,
			SweepInterval:     time.Minute,
		},
		Documents:   DocumentsConfig{PDFTimeout: 30 * time.Second},
		Environment: "development",
	}
}

// Load reads configuration from environment variables on top of the defaults.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file, then applies environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Environment == "production" {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Auth.CSRFKey == "" {
			return fmt.Errorf("CSRF_KEY is required in production")
		}
	}
	if c.Email.Enabled && c.Email.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required when email is enabled")
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "test"
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.AppURL = getEnv("APP_URL", cfg.Server.AppURL)

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTTL = getEnvDuration("JWT_ACCESS_TTL", cfg.Auth.AccessTTL)
	cfg.Auth.RefreshTTL = getEnvDuration("JWT_REFRESH_TTL", cfg.Auth.RefreshTTL)
	cfg.Auth.CookieName = getEnv("SESSION_COOKIE_NAME", cfg.Auth.CookieName)
	cfg.Auth.CookieSecure = getEnvBool("SESSION_COOKIE_SECURE", cfg.Auth.CookieSecure)
	cfg.Auth.CSRFKey = getEnv("CSRF_KEY", cfg.Auth.CSRFKey)
	cfg.Auth.TrustedOrigin = getEnvList("CSRF_TRUSTED_ORIGINS", cfg.Auth.TrustedOrigin)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.TenantPerMinute = getEnvInt("RATE_LIMIT_TENANT", cfg.RateLimit.TenantPerMinute)
	cfg.RateLimit.AuthPerMinute = getEnvInt("RATE_LIMIT_AUTH", cfg.RateLimit.AuthPerMinute)
	cfg.RateLimit.WebhookPerMinute = getEnvInt("RATE_LIMIT_WEBHOOK", cfg.RateLimit.WebhookPerMinute)
	cfg.RateLimit.TrustedProxyCIDRs = getEnvList("TRUSTED_PROXY_CIDRS", cfg.RateLimit.TrustedProxyCIDRs)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.OTLPInsecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.OTLPInsecure)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.InboundDomain = getEnv("EMAIL_INBOUND_DOMAIN", cfg.Email.InboundDomain)
	cfg.Email.TemplatesDir = getEnv("EMAIL_TEMPLATES_DIR", cfg.Email.TemplatesDir)

	cfg.Webhooks.StripeSecret = getEnv("STRIPE_WEBHOOK_SECRET", cfg.Webhooks.StripeSecret)
	cfg.Webhooks.ResendSecret = getEnv("RESEND_WEBHOOK_SECRET", cfg.Webhooks.ResendSecret)
	cfg.Webhooks.Tolerance = getEnvDuration("WEBHOOK_TOLERANCE", cfg.Webhooks.Tolerance)

	cfg.Stripe.APIKey = getEnv("STRIPE_API_KEY", cfg.Stripe.APIKey)
	cfg.Stripe.APIBase = getEnv("STRIPE_API_BASE", cfg.Stripe.APIBase)
	cfg.Stripe.ReturnURL = getEnv("STRIPE_CONNECT_RETURN_URL", cfg.Stripe.ReturnURL)
	cfg.Stripe.RefreshURL = getEnv("STRIPE_CONNECT_REFRESH_URL", cfg.Stripe.RefreshURL)

	cfg.Draft.DefaultPickWindow = getEnvDuration("DRAFT_PICK_WINDOW", cfg.Draft.DefaultPickWindow)
	cfg.Draft.SweepInterval = getEnvDuration("DRAFT_SWEEP_INTERVAL", cfg.Draft.SweepInterval)

	cfg.Documents.ChromeURL = getEnv("CHROME_URL", cfg.Documents.ChromeURL)
	cfg.Documents.PDFTimeout = getEnvDuration("PDF_TIMEOUT", cfg.Documents.PDFTimeout)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("90s", "24h").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
