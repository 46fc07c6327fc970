package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RedirectURI  string `json:"redirect_uri"`
}

type SMTPConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

type TwilioConfig struct {
	AccountSID string `json:"account_sid"`
	AuthToken  string `json:"-"`
	FromNumber string `json:"from_number"`
	// InboundURL is the public URL Twilio posts inbound messages to; it is part
	// of the signature base string.
	InboundURL string `json:"inbound_url"`
}

type StorageConfig struct {
	Bucket          string   `json:"bucket"`
	CredentialsFile string   `json:"credentials_file"`
	MaxUploadBytes  int64    `json:"max_upload_bytes"`
	AllowedTypes    []string `json:"allowed_types"`
	PublicBaseURL   string   `json:"public_base_url"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`
	AppURL      string `json:"app_url"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// JWTSecret verifies access tokens issued by the hosted auth provider.
	JWTSecret           string   `json:"-"`
	SessionCookieName   string   `json:"session_cookie_name"`
	AuthzMode           string   `json:"authz_mode"` // policy, database
	BootstrapAdminEmail string   `json:"bootstrap_admin_email"`
	EncryptionKey       string   `json:"-"`
	CronSecret          string   `json:"-"`
	AllowedOrigins      []string `json:"allowed_origins"`

	StripeSecretKey     string `json:"-"`
	StripeWebhookSecret string `json:"-"`
	Currency            string `json:"currency"`

	Twilio  TwilioConfig  `json:"twilio"`
	SMTP    SMTPConfig    `json:"smtp"`
	Google  OAuthConfig   `json:"google"`
	Storage StorageConfig `json:"storage"`
	Redis   RedisConfig   `json:"redis"`

	OpenAIAPIKey string `json:"-"`
	OpenAIModel  string `json:"openai_model"`

	SentryDSN string `json:"-"`

	RateLimitAI           int           `json:"rate_limit_ai"`
	WebhookWorkerInterval time.Duration `json:"webhook_worker_interval"`
	WebhookBatchSize      int           `json:"webhook_batch_size"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

// Load reads the process environment. Only values the service cannot start
// without are checked here; integration credentials are checked by each
// adapter at call time.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),
		AppURL:      getEnv("APP_URL", "http://localhost:3000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "fieldcrm"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret:           getEnv("JWT_SECRET", ""),
		SessionCookieName:   getEnv("SESSION_COOKIE_NAME", "sb-access-token"),
		AuthzMode:           getEnv("AUTHZ_MODE", "policy"),
		BootstrapAdminEmail: strings.ToLower(getEnv("BOOTSTRAP_ADMIN_EMAIL", "")),
		EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
		CronSecret:          getEnv("CRON_SECRET", ""),
		AllowedOrigins:      getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),

		Twilio: TwilioConfig{
			AccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
			FromNumber: getEnv("TWILIO_FROM_NUMBER", ""),
			InboundURL: getEnv("TWILIO_INBOUND_URL", ""),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("FROM_EMAIL", ""),
			FromName:  getEnv("FROM_NAME", "Field CRM"),
		},
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("GOOGLE_REDIRECT_URI", ""),
		},
		Storage: StorageConfig{
			Bucket:          getEnv("STORAGE_BUCKET", "attachments"),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			MaxUploadBytes:  int64(getEnvAsInt("STORAGE_MAX_UPLOAD_BYTES", 10<<20)),
			AllowedTypes: getEnvAsList("STORAGE_ALLOWED_TYPES", []string{
				"image/jpeg", "image/png", "image/gif", "image/webp",
				"application/pdf", "text/plain", "text/csv",
			}),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),

		RateLimitAI:           getEnvAsInt("RATE_LIMIT_AI", 20),
		WebhookWorkerInterval: getEnvAsDuration("WEBHOOK_WORKER_INTERVAL", 0),
		WebhookBatchSize:      getEnvAsInt("WEBHOOK_BATCH_SIZE", 50),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks presence of the settings the server cannot run without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.DBPassword == "" && c.IsProduction() {
		return fmt.Errorf("DB_PASSWORD is required in production")
	}
	if c.EncryptionKey != "" {
		switch len(c.EncryptionKey) {
		case 16, 24, 32:
		default:
			return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes")
		}
	}
	switch c.AuthzMode {
	case "policy", "database":
	default:
		return fmt.Errorf("AUTHZ_MODE must be policy or database, got %q", c.AuthzMode)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Log prints the non-secret parts of the configuration.
func (c *Config) Log(logger logrus.FieldLogger) {
	logger.WithFields(logrus.Fields{
		"environment": c.Environment,
		"port":        c.ServerPort,
		"database":    fmt.Sprintf("%s@%s:%s/%s", c.DBUser, c.DBHost, c.DBPort, c.DBName),
		"authz_mode":  c.AuthzMode,
		"stripe":      c.StripeSecretKey != "",
		"twilio":      c.Twilio.AccountSID != "",
		"smtp":        c.SMTP.Host != "",
		"google":      c.Google.ClientID != "",
		"openai":      c.OpenAIAPIKey != "",
		"redis":       c.Redis.Enabled,
	}).Info("Loaded configuration")
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
