/**
 * @description
 * This file handles configuration management for the entitlement service.
 * It uses the 'viper' library to load configuration from environment variables
 * (optionally seeded from a .env file), applies defaults and validates the
 * secrets the service cannot run without.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`

	SessionJWTSecret string `mapstructure:"SESSION_JWT_SECRET"`
	InternalAPIKey   string `mapstructure:"INTERNAL_API_KEY"`
	AllowedOrigins   string `mapstructure:"ALLOWED_ORIGINS"`

	GatewayBaseURL        string `mapstructure:"GATEWAY_BASE_URL"`
	GatewayKeyID          string `mapstructure:"GATEWAY_KEY_ID"`
	GatewayKeySecret      string `mapstructure:"GATEWAY_KEY_SECRET"`
	GatewayProPlanID      string `mapstructure:"GATEWAY_PRO_PLAN_ID"`
	GatewayTimeoutSeconds int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`

	ExpirySweepSchedule string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`

	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	EntitlementEventsExchange string `mapstructure:"ENTITLEMENT_EVENTS_EXCHANGE"`

	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	CheckoutRateLimitPerMinute int    `mapstructure:"CHECKOUT_RATE_LIMIT_PER_MINUTE"`

	AIServiceURL string `mapstructure:"AI_SERVICE_URL"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var keys = []string{
	"SERVER_PORT",
	"DATABASE_DRIVER",
	"DATABASE_URL",
	"SQLITE_PATH",
	"SESSION_JWT_SECRET",
	"INTERNAL_API_KEY",
	"ALLOWED_ORIGINS",
	"GATEWAY_BASE_URL",
	"GATEWAY_KEY_ID",
	"GATEWAY_KEY_SECRET",
	"GATEWAY_PRO_PLAN_ID",
	"GATEWAY_TIMEOUT_SECONDS",
	"EXPIRY_SWEEP_SCHEDULE",
	"RABBITMQ_URL",
	"ENTITLEMENT_EVENTS_EXCHANGE",
	"REDIS_URL",
	"REDIS_RATE_LIMIT_PREFIX",
	"CHECKOUT_RATE_LIMIT_PER_MINUTE",
	"AI_SERVICE_URL",
	"LOG_LEVEL",
	"LOG_FORMAT",
}

// Load reads configuration from environment variables without validating it.
func Load() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8085")
	viper.SetDefault("DATABASE_DRIVER", DriverPostgres)
	viper.SetDefault("SQLITE_PATH", "data/entitlements.db")
	viper.SetDefault("ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("GATEWAY_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("GATEWAY_PRO_PLAN_ID", "plan_pro_monthly")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 10)
	viper.SetDefault("ENTITLEMENT_EVENTS_EXCHANGE", "entitlement_events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "nutriapp:rate_limit")
	viper.SetDefault("CHECKOUT_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	config.DatabaseDriver = strings.ToLower(strings.TrimSpace(config.DatabaseDriver))
	return &config, nil
}

// LoadConfig reads and validates the configuration the HTTP service needs.
func LoadConfig() (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}
	if err := config.ValidateServer(); err != nil {
		return nil, err
	}
	return config, nil
}

// ValidateStore checks the settings needed to open the entitlement store.
func (c *Config) ValidateStore() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=%s", DriverPostgres)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when DATABASE_DRIVER=%s", DriverSQLite)
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DatabaseDriver)
	}
	return nil
}

// ValidateServer checks everything the HTTP service needs at startup.
func (c *Config) ValidateServer() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}

	required := map[string]string{
		"SESSION_JWT_SECRET": c.SessionJWTSecret,
		"GATEWAY_KEY_ID":     c.GatewayKeyID,
		"GATEWAY_KEY_SECRET": c.GatewayKeySecret,
		"INTERNAL_API_KEY":   c.InternalAPIKey,
	}
	var missing []string
	for _, key := range []string{"SESSION_JWT_SECRET", "GATEWAY_KEY_ID", "GATEWAY_KEY_SECRET", "INTERNAL_API_KEY"} {
		if strings.TrimSpace(required[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// GatewayTimeout is the bound applied to every payment gateway call.
func (c *Config) GatewayTimeout() time.Duration {
	if c.GatewayTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

// Origins splits ALLOWED_ORIGINS into the list CORS expects.
func (c *Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
