package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	APIBaseURL   string        `mapstructure:"API_BASE_URL" validate:"required,url"`
	AssetBaseURL string        `mapstructure:"ASSET_BASE_URL" validate:"required,url"`
	ProxyPath    string        `mapstructure:"PROXY_PATH" validate:"required,startswith=/"`
	PageSize     int           `mapstructure:"PAGE_SIZE" validate:"gte=1,lte=200"`
	SortBy       string        `mapstructure:"SORT_BY" validate:"oneof=created_at likes dislikes"`
	Timeout      time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"gt=0"`

	BadgerDBPath string `mapstructure:"BADGERDB_PATH" validate:"required"`
	OutputDir    string `mapstructure:"OUTPUT_DIR" validate:"required"`

	// DownloadConcurrency caps parallel asset fetches; 0 means unbounded.
	DownloadConcurrency int `mapstructure:"DOWNLOAD_CONCURRENCY" validate:"gte=0"`
	// DownloadRate is in requests per second; 0 means unlimited.
	DownloadRate float64 `mapstructure:"DOWNLOAD_RATE" validate:"gte=0"`

	BreakerMaxFailures uint32        `mapstructure:"BREAKER_MAX_FAILURES"`
	BreakerTimeout     time.Duration `mapstructure:"BREAKER_TIMEOUT" validate:"gte=0"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	LogLevel         string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error"`
}

var defaults = map[string]any{
	"API_BASE_URL":         "http://localhost:8000/api",
	"ASSET_BASE_URL":       "http://localhost:8080",
	"PROXY_PATH":           "/v2/proxy-image",
	"PAGE_SIZE":            20,
	"SORT_BY":              "created_at",
	"REQUEST_TIMEOUT":      60 * time.Second,
	"BADGERDB_PATH":        "./badger_data",
	"OUTPUT_DIR":           ".",
	"DOWNLOAD_CONCURRENCY": 8,
	"DOWNLOAD_RATE":        0.0,
	"BREAKER_MAX_FAILURES": 5,
	"BREAKER_TIMEOUT":      30 * time.Second,
	"TELEGRAM_BOT_TOKEN":   "",
	"LOG_LEVEL":            "info",
}

// ErrMissingBotToken is returned by RequireBotToken when no token is configured.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Defaults double as the key list AutomaticEnv needs for Unmarshal.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine, env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	cfg.AssetBaseURL = strings.TrimRight(cfg.AssetBaseURL, "/")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireBotToken is checked only by the chat front end.
func (c Config) RequireBotToken() error {
	if c.TelegramBotToken == "" {
		return ErrMissingBotToken
	}
	return nil
}
