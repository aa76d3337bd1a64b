// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	HubSpot   HubSpotConfig
	Square    SquareConfig
	Email     EmailConfig
	Anthropic AnthropicConfig
	Cron      CronConfig
	Admin     AdminConfig
	App       AppConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// HubSpotConfig holds CRM API settings, including the pipeline and stage ids
// every deal operation is scoped to.
type HubSpotConfig struct {
	APIToken       string
	APIURL         string
	PipelineID     string
	StageQuoted    string
	StageScheduled string
	StageCompleted string
	StageLost      string
	SubscriptionID string
}

// SquareConfig holds payment processor settings.
type SquareConfig struct {
	AccessToken         string
	APIURL              string
	WebhookSignatureKey string
	// WebhookURL is the exact notification URL registered with Square.
	// Signature verification is computed over this URL plus the raw body.
	WebhookURL string
}

// EmailConfig holds transactional email delivery settings.
type EmailConfig struct {
	APIKey            string
	APIURL            string
	FromAddress       string
	SalesAddress      string
	UnsubscribeSecret string
}

// AnthropicConfig holds Claude AI settings for the conversational quoting agent.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	// MaxToolIterations bounds the tool-calling loop within a single chat turn.
	MaxToolIterations int
}

// CronConfig holds settings for the scheduled campaign endpoints.
type CronConfig struct {
	Secret string
}

// AdminConfig holds settings for the administrative update endpoints.
type AdminConfig struct {
	// PasswordHash is a bcrypt hash of the admin password.
	PasswordHash string
}

// AppConfig holds general application settings.
type AppConfig struct {
	PublicURL string
	// NumberPrefix is the business prefix on quote and booking numbers.
	NumberPrefix string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	// Set config file options
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/farmops")

	// Enable environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	setDefaults(v)

	// Try to read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		HubSpot: HubSpotConfig{
			APIToken:       v.GetString("hubspot.api_token"),
			APIURL:         v.GetString("hubspot.api_url"),
			PipelineID:     v.GetString("hubspot.pipeline_id"),
			StageQuoted:    v.GetString("hubspot.stage_quoted"),
			StageScheduled: v.GetString("hubspot.stage_scheduled"),
			StageCompleted: v.GetString("hubspot.stage_completed"),
			StageLost:      v.GetString("hubspot.stage_lost"),
			SubscriptionID: v.GetString("hubspot.subscription_id"),
		},
		Square: SquareConfig{
			AccessToken:         v.GetString("square.access_token"),
			APIURL:              v.GetString("square.api_url"),
			WebhookSignatureKey: v.GetString("square.webhook_signature_key"),
			WebhookURL:          v.GetString("square.webhook_url"),
		},
		Email: EmailConfig{
			APIKey:            v.GetString("email.api_key"),
			APIURL:            v.GetString("email.api_url"),
			FromAddress:       v.GetString("email.from_address"),
			SalesAddress:      v.GetString("email.sales_address"),
			UnsubscribeSecret: v.GetString("email.unsubscribe_secret"),
		},
		Anthropic: AnthropicConfig{
			APIKey:            v.GetString("anthropic.api_key"),
			Model:             v.GetString("anthropic.model"),
			MaxTokens:         v.GetInt("anthropic.max_tokens"),
			MaxToolIterations: v.GetInt("anthropic.max_tool_iterations"),
		},
		Cron: CronConfig{
			Secret: v.GetString("cron.secret"),
		},
		Admin: AdminConfig{
			PasswordHash: v.GetString("admin.password_hash"),
		},
		App: AppConfig{
			PublicURL:    v.GetString("app.public_url"),
			NumberPrefix: v.GetString("app.number_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		RateLimit: RateLimitConfig{
			Requests: v.GetInt("rate_limit.requests"),
			Window:   v.GetDuration("rate_limit.window"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "farmops")
	v.SetDefault("database.name", "farmops")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")

	// HubSpot defaults
	v.SetDefault("hubspot.api_url", "https://api.hubapi.com")

	// Square defaults
	v.SetDefault("square.api_url", "https://connect.squareup.com")

	// Email defaults
	v.SetDefault("email.api_url", "https://api.resend.com")
	v.SetDefault("email.from_address", "My Horse Farm <sales@myhorsefarm.com>")
	v.SetDefault("email.sales_address", "sales@myhorsefarm.com")

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.max_tool_iterations", 5)

	// App defaults
	v.SetDefault("app.number_prefix", "MHF")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Rate limit defaults
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.HubSpot.APIToken == "" {
		missing = append(missing, "HUBSPOT_API_TOKEN")
	}
	if c.HubSpot.PipelineID == "" {
		missing = append(missing, "HUBSPOT_PIPELINE_ID")
	}
	if c.Square.AccessToken == "" {
		missing = append(missing, "SQUARE_ACCESS_TOKEN")
	}
	if c.Square.WebhookSignatureKey == "" {
		missing = append(missing, "SQUARE_WEBHOOK_SIGNATURE_KEY")
	}
	if c.Email.APIKey == "" {
		missing = append(missing, "EMAIL_API_KEY")
	}
	if c.Email.UnsubscribeSecret == "" {
		missing = append(missing, "EMAIL_UNSUBSCRIBE_SECRET")
	}
	if c.Anthropic.APIKey == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if c.Cron.Secret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if c.App.PublicURL == "" {
		missing = append(missing, "APP_PUBLIC_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
