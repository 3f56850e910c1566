/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the clinic-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	SheetsAPIBaseURL  string `mapstructure:"SHEETS_API_BASE_URL"`
	SheetsAPIKey      string `mapstructure:"SHEETS_API_KEY"`
	LedgerSheet       string `mapstructure:"LEDGER_SHEET"`
	OrdersSheet       string `mapstructure:"ORDERS_SHEET"`
	PatientsSheet     string `mapstructure:"PATIENTS_SHEET"`
	AppointmentsSheet string `mapstructure:"APPOINTMENTS_SHEET"`

	DarajaBaseURL        string `mapstructure:"DARAJA_BASE_URL"`
	DarajaConsumerKey    string `mapstructure:"DARAJA_CONSUMER_KEY"`
	DarajaConsumerSecret string `mapstructure:"DARAJA_CONSUMER_SECRET"`
	DarajaShortCode      string `mapstructure:"DARAJA_SHORT_CODE"`
	DarajaPasskey        string `mapstructure:"DARAJA_PASSKEY"`
	DarajaCallbackURL    string `mapstructure:"DARAJA_CALLBACK_URL"`

	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	JWTSecret string `mapstructure:"JWT_SECRET"`

	STKPushRateLimitPerMinute int `mapstructure:"STK_PUSH_RATE_LIMIT_PER_MINUTE"`

	WSAllowedOrigins string `mapstructure:"WS_ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LEDGER_SHEET", "Transactions")
	viper.SetDefault("ORDERS_SHEET", "Orders")
	viper.SetDefault("PATIENTS_SHEET", "Patients")
	viper.SetDefault("APPOINTMENTS_SHEET", "Appointments")
	viper.SetDefault("DARAJA_BASE_URL", "https://sandbox.safaricom.co.ke")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "afyalink:rate_limit")
	viper.SetDefault("STK_PUSH_RATE_LIMIT_PER_MINUTE", 5)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("SHEETS_API_BASE_URL")
	_ = viper.BindEnv("SHEETS_API_KEY")
	_ = viper.BindEnv("LEDGER_SHEET")
	_ = viper.BindEnv("ORDERS_SHEET")
	_ = viper.BindEnv("PATIENTS_SHEET")
	_ = viper.BindEnv("APPOINTMENTS_SHEET")
	_ = viper.BindEnv("DARAJA_BASE_URL")
	_ = viper.BindEnv("DARAJA_CONSUMER_KEY")
	_ = viper.BindEnv("DARAJA_CONSUMER_SECRET")
	_ = viper.BindEnv("DARAJA_SHORT_CODE")
	_ = viper.BindEnv("DARAJA_PASSKEY")
	_ = viper.BindEnv("DARAJA_CALLBACK_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "CLINIC_SERVICE_JWT_SECRET")
	_ = viper.BindEnv("STK_PUSH_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WS_ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		config.JWTSecret = strings.TrimSpace(os.Getenv("CLINIC_SERVICE_JWT_SECRET"))
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "afyalink:rate_limit"
	}
	config.SheetsAPIBaseURL = strings.TrimSuffix(strings.TrimSpace(config.SheetsAPIBaseURL), "/")
	config.DarajaBaseURL = strings.TrimSuffix(strings.TrimSpace(config.DarajaBaseURL), "/")

	if config.STKPushRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative stk push rate limit configured; coercing to zero\" limit=%d", config.STKPushRateLimitPerMinute)
		config.STKPushRateLimitPerMinute = 0
	}

	return
}

// AllowedOrigins splits the comma-separated websocket origin allowlist. An
// empty list means all origins are accepted.
func (c *Config) AllowedOrigins() []string {
	raw := strings.TrimSpace(c.WSAllowedOrigins)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
