package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Port        string
	Origin      string
	Environment string
	LogLevel    string
	JWTSecret   string
	Database    DatabaseConfig
	Mailer      MailerConfig
	Triage      UpstreamConfig
	Prediction  UpstreamConfig
	Webhook     WebhookConfig
	Storage     StorageConfig
	Events      EventsConfig
	Workflow    WorkflowConfig
}

// DatabaseConfig holds database connection details
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	Name     string
	SSLMode  string
	DSN      string
}

// MailerConfig holds email service configuration
type MailerConfig struct {
	Transport    string
	DefaultFrom  string
	ResendAPIKey string
	Timeout      time.Duration
}

// UpstreamConfig describes an external HTTP service the workflow calls.
type UpstreamConfig struct {
	URL     string
	Timeout time.Duration
}

// WebhookConfig holds the identity provider webhook signing secret.
type WebhookConfig struct {
	SigningSecret string
}

// StorageConfig holds S3/SQS settings for test result files.
type StorageConfig struct {
	Bucket         string
	ResultQueue    string
	PresignExpiry  time.Duration
	RequestTimeout time.Duration
}

// EventsConfig holds Kafka settings for workflow events.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// WorkflowConfig tunes the diagnostic workflow engine.
type WorkflowConfig struct {
	AtomicWrites bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "3001")
	v.SetDefault("ORIGIN", "http://localhost:3000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", "default_jwt_secret")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_USERNAME", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "curanova")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("MAILER_TRANSPORT", "log")
	v.SetDefault("MAILER_DEFAULT_FROM", "CuraNova <noreply@resend.dev>")
	v.SetDefault("MAILER_TIMEOUT", "10s")

	v.SetDefault("TRIAGE_URL", "")
	v.SetDefault("TRIAGE_TIMEOUT", "10s")
	v.SetDefault("PREDICTION_URL", "http://localhost:8000")
	v.SetDefault("PREDICTION_TIMEOUT", "10s")

	v.SetDefault("RESULTS_PRESIGN_EXPIRY", "15m")
	v.SetDefault("STORAGE_TIMEOUT", "10s")
	v.SetDefault("EVENTS_TOPIC", "curanova-workflow")
	v.SetDefault("WORKFLOW_ATOMIC_WRITES", true)

	driver := strings.ToLower(v.GetString("DB_DRIVER"))
	dbConfig := DatabaseConfig{
		Driver:   driver,
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		Username: v.GetString("DB_USERNAME"),
		Password: v.GetString("DB_PASSWORD"),
		Name:     v.GetString("DB_NAME"),
		SSLMode:  v.GetString("DB_SSLMODE"),
		DSN:      v.GetString("DATABASE_URL"),
	}
	if dbConfig.Port == "" {
		dbConfig.Port = defaultPort(driver)
	}
	if dbConfig.DSN == "" {
		dbConfig.DSN = buildDSN(dbConfig)
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		Origin:      v.GetString("ORIGIN"),
		Environment: v.GetString("APP_ENV"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		Database:    dbConfig,
		Mailer: MailerConfig{
			Transport:    strings.ToLower(v.GetString("MAILER_TRANSPORT")),
			DefaultFrom:  v.GetString("MAILER_DEFAULT_FROM"),
			ResendAPIKey: v.GetString("RESEND_API_KEY"),
			Timeout:      v.GetDuration("MAILER_TIMEOUT"),
		},
		Triage: UpstreamConfig{
			URL:     v.GetString("TRIAGE_URL"),
			Timeout: v.GetDuration("TRIAGE_TIMEOUT"),
		},
		Prediction: UpstreamConfig{
			URL:     strings.TrimRight(v.GetString("PREDICTION_URL"), "/"),
			Timeout: v.GetDuration("PREDICTION_TIMEOUT"),
		},
		Webhook: WebhookConfig{
			SigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET"),
		},
		Storage: StorageConfig{
			Bucket:         v.GetString("RESULTS_BUCKET"),
			ResultQueue:    v.GetString("RESULTS_QUEUE"),
			PresignExpiry:  v.GetDuration("RESULTS_PRESIGN_EXPIRY"),
			RequestTimeout: v.GetDuration("STORAGE_TIMEOUT"),
		},
		Events: EventsConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("EVENTS_TOPIC"),
		},
		Workflow: WorkflowConfig{
			AtomicWrites: v.GetBool("WORKFLOW_ATOMIC_WRITES"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql":
	case "sqlite":
		if c.IsProduction() {
			return fmt.Errorf("DB_DRIVER \"sqlite\" is for local development only")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be \"postgres\", \"mysql\" or \"sqlite\", got %q", c.Database.Driver)
	}
	switch c.Mailer.Transport {
	case "log":
	case "resend":
		if c.Mailer.ResendAPIKey == "" {
			return fmt.Errorf("RESEND_API_KEY is required when MAILER_TRANSPORT is \"resend\"")
		}
	default:
		return fmt.Errorf("MAILER_TRANSPORT must be \"log\" or \"resend\", got %q", c.Mailer.Transport)
	}
	for name, d := range map[string]time.Duration{
		"TRIAGE_TIMEOUT":     c.Triage.Timeout,
		"PREDICTION_TIMEOUT": c.Prediction.Timeout,
		"MAILER_TIMEOUT":     c.Mailer.Timeout,
		"STORAGE_TIMEOUT":    c.Storage.RequestTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if c.IsProduction() {
		if c.JWTSecret == "" || c.JWTSecret == "default_jwt_secret" {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		if c.Webhook.SigningSecret == "" {
			return fmt.Errorf("WEBHOOK_SIGNING_SECRET must be set in production")
		}
	}
	return nil
}

func defaultPort(driver string) string {
	if driver == "mysql" {
		return "3306"
	}
	return "5432"
}

func buildDSN(db DatabaseConfig) string {
	switch db.Driver {
	case "sqlite":
		return fmt.Sprintf("file:%s.db?_pragma=foreign_keys(1)", db.Name)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			db.Username, db.Password, db.Host, db.Port, db.Name)
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		db.Host, db.Port, db.Username, db.Password, db.Name, db.SSLMode)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
