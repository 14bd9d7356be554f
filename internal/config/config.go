package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all Basket Guardian configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Budget  BudgetConfig  `mapstructure:"budget"`
	Email   EmailConfig   `mapstructure:"email"`
	Push    PushConfig    `mapstructure:"push"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	AI      AIConfig      `mapstructure:"ai"`
	Credits CreditsConfig `mapstructure:"credits"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Pricing PricingConfig `mapstructure:"pricing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Driver           string `mapstructure:"driver"`
	Path             string `mapstructure:"path"`
	MongoURI         string `mapstructure:"mongo_uri"`
	MongoDatabase    string `mapstructure:"mongo_database"`
	FirestoreProject string `mapstructure:"firestore_project"`
}

// ServerConfig defines HTTP API settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
}

// AMQPConfig defines the event queue consumer.
type AMQPConfig struct {
	URL            string        `mapstructure:"url"`
	Queue          string        `mapstructure:"queue"`
	Prefetch       int           `mapstructure:"prefetch"`
	Workers        int           `mapstructure:"workers"`
	MessageTimeout time.Duration `mapstructure:"message_timeout"`
}

// BudgetConfig tunes budget alerting.
type BudgetConfig struct {
	ThresholdPct float64 `mapstructure:"threshold_pct"`
	RequireOptIn bool    `mapstructure:"require_opt_in"`
	// Timezone is an IANA name for month boundaries. Empty means server local.
	Timezone string `mapstructure:"timezone"`
	// SweepSchedule is a cron expression for the periodic sweep. Empty disables it.
	SweepSchedule string `mapstructure:"sweep_schedule"`
}

// Location resolves Timezone.
func (b BudgetConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("budget timezone: %w", err)
	}
	return loc, nil
}

// EmailConfig defines the Resend mailer.
type EmailConfig struct {
	ResendAPIKey string `mapstructure:"resend_api_key"`
	From         string `mapstructure:"from"`
	BaseURL      string `mapstructure:"base_url"`
}

// PushConfig defines the Expo push sender.
type PushConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AccessToken string `mapstructure:"access_token"`
	BaseURL     string `mapstructure:"base_url"`
}

// WebhookConfig defines the signed alert webhook and the optional Slack
// channel that receives the same events.
type WebhookConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	URL          string `mapstructure:"url"`
	Secret       string `mapstructure:"secret"`
	SlackURL     string `mapstructure:"slack_url"`
	SlackChannel string `mapstructure:"slack_channel"`
}

// AIConfig selects the receipt vision provider.
type AIConfig struct {
	Provider        string `mapstructure:"provider"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIModel     string `mapstructure:"openai_model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	BaseURL         string `mapstructure:"base_url"`
}

// CreditsConfig defines AI credit defaults.
type CreditsConfig struct {
	SignupGrant int64 `mapstructure:"signup_grant"`
}

// NotifyConfig tunes notification fan-out.
type NotifyConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// PricingConfig defines pricing data overrides.
type PricingConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from a .env file, the config file and
// BASKET_-prefixed environment variables, in increasing precedence.
func Load(cfgFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()

	home, _ := os.UserHomeDir()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home != "" {
			v.AddConfigPath(filepath.Join(home, ".basket"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.path", filepath.Join(home, ".basket", "basket.db"))
	v.SetDefault("storage.mongo_database", "basket")
	v.SetDefault("storage.mongo_uri", "")
	v.SetDefault("storage.firestore_project", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.max_body_size", 1<<20)
	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.queue", "basket.events")
	v.SetDefault("amqp.prefetch", 10)
	v.SetDefault("amqp.workers", 4)
	v.SetDefault("amqp.message_timeout", "30s")
	v.SetDefault("budget.threshold_pct", 50.0)
	v.SetDefault("budget.require_opt_in", false)
	v.SetDefault("budget.timezone", "")
	v.SetDefault("budget.sweep_schedule", "")
	v.SetDefault("email.resend_api_key", "")
	v.SetDefault("email.from", "Basket <alerts@basket.app>")
	v.SetDefault("email.base_url", "")
	v.SetDefault("push.enabled", true)
	v.SetDefault("push.access_token", "")
	v.SetDefault("push.base_url", "")
	v.SetDefault("webhook.enabled", false)
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.slack_url", "")
	v.SetDefault("webhook.slack_channel", "")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai_api_key", "")
	v.SetDefault("ai.openai_model", "gpt-4o-mini")
	v.SetDefault("ai.anthropic_api_key", "")
	v.SetDefault("ai.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("credits.signup_grant", 5)
	v.SetDefault("notify.concurrency", 1)
	v.SetDefault("pricing.dir", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Environment variables
	v.SetEnvPrefix("BASKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that cannot work regardless of which command runs.
// Credentials are checked by the constructors that need them.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "mongo", "firestore":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("ai.provider: unknown provider %q", c.AI.Provider)
	}
	if c.Budget.ThresholdPct <= 0 || c.Budget.ThresholdPct > 100 {
		return fmt.Errorf("budget.threshold_pct must be in (0, 100], got %v", c.Budget.ThresholdPct)
	}
	if _, err := c.Budget.Location(); err != nil {
		return err
	}
	return nil
}

// loadDotEnv loads path into the process environment when it exists.
// Variables already set are not overridden.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
