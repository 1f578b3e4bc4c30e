package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	DatabaseURL       string `mapstructure:"DATABASE_URL"`
	DatabaseName      string `mapstructure:"DATABASE_NAME"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`

	// Redis configuration.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB   int    `mapstructure:"REDIS_CACHE_DB"`
	RedisSessionDB int    `mapstructure:"REDIS_SESSION_DB"`
	RedisQueueDB   int    `mapstructure:"REDIS_QUEUE_DB"`

	// Telegram transport.
	TelegramToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`

	// Travel provider API.
	TripAPIURL       string `mapstructure:"TRIP_API_URL"`
	TripAPIKey       string `mapstructure:"TRIP_API_KEY"`
	TripAPISecret    string `mapstructure:"TRIP_API_SECRET"`
	TripRatePerSec   int    `mapstructure:"TRIP_RATE_PER_SEC"`
	MaxSearchResults int    `mapstructure:"MAX_SEARCH_RESULTS"`
	MaxPassengers    int    `mapstructure:"MAX_PASSENGERS"`

	// Payment gateways. An empty URL puts the gateway in mock mode.
	TeleBirrAPIURL string `mapstructure:"TELEBIRR_API_URL"`
	TeleBirrAppID  string `mapstructure:"TELEBIRR_APP_ID"`
	TeleBirrSecret string `mapstructure:"TELEBIRR_SECRET"`
	CBEBirrAPIURL  string `mapstructure:"CBE_BIRR_API_URL"`
	CBEBirrAppID   string `mapstructure:"CBE_BIRR_APP_ID"`
	CBEBirrSecret  string `mapstructure:"CBE_BIRR_SECRET"`

	// Payment polling.
	PaymentPollInterval time.Duration `mapstructure:"PAYMENT_POLL_INTERVAL"`
	PaymentPollAfter    time.Duration `mapstructure:"PAYMENT_POLL_AFTER"`
	PaymentMaxPolls     int           `mapstructure:"PAYMENT_MAX_POLLS"`

	// Conversation and offer lifetimes.
	SessionTimeout time.Duration `mapstructure:"SESSION_TIMEOUT"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	OfferTTL       time.Duration `mapstructure:"OFFER_TTL"`

	// Price alerts.
	AlertCheckInterval time.Duration `mapstructure:"PRICE_CHECK_INTERVAL"`
	AlertExpiryDays    int           `mapstructure:"ALERT_EXPIRY_DAYS"`
	MaxAlertsPerUser   int           `mapstructure:"MAX_ALERTS_PER_USER"`

	// Trip reminders.
	FlightReminderHours int `mapstructure:"REMINDER_HOURS_BEFORE_FLIGHT"`

	// Currency conversion.
	CurrencyAPIURL string  `mapstructure:"CURRENCY_API_URL"`
	USDToETBRate   float64 `mapstructure:"USD_TO_ETB_RATE"` // fallback when the rate API is down
}

var AppConfig Config

func LoadConfig() {
	// Look for a config file named "config.yaml" in the current and "config" directory.
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	// Automatically use environment variables where available.
	viper.AutomaticEnv()

	// Set default values.
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("MAX_REQUESTS_PER_MIN", 100)
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_CACHE_DB", 0)
	viper.SetDefault("REDIS_SESSION_DB", 1)
	viper.SetDefault("REDIS_QUEUE_DB", 2)
	viper.SetDefault("DATABASE_URL", "mongodb://localhost:27017")
	viper.SetDefault("DATABASE_NAME", "tripbot")
	viper.SetDefault("TELEGRAM_BOT_TOKEN", "")
	viper.SetDefault("TRIP_API_URL", "")
	viper.SetDefault("TRIP_API_KEY", "test")
	viper.SetDefault("TRIP_API_SECRET", "test")
	viper.SetDefault("TRIP_RATE_PER_SEC", 5)
	viper.SetDefault("MAX_SEARCH_RESULTS", 10)
	viper.SetDefault("MAX_PASSENGERS", 9)
	viper.SetDefault("TELEBIRR_API_URL", "")
	viper.SetDefault("TELEBIRR_APP_ID", "")
	viper.SetDefault("TELEBIRR_SECRET", "")
	viper.SetDefault("CBE_BIRR_API_URL", "")
	viper.SetDefault("CBE_BIRR_APP_ID", "")
	viper.SetDefault("CBE_BIRR_SECRET", "")
	viper.SetDefault("PAYMENT_POLL_INTERVAL", "30s")
	viper.SetDefault("PAYMENT_POLL_AFTER", "2m")
	viper.SetDefault("PAYMENT_MAX_POLLS", 20)
	viper.SetDefault("SESSION_TIMEOUT", "30m")
	viper.SetDefault("SWEEP_INTERVAL", "1m")
	viper.SetDefault("OFFER_TTL", "15m")
	viper.SetDefault("PRICE_CHECK_INTERVAL", "1h")
	viper.SetDefault("ALERT_EXPIRY_DAYS", 30)
	viper.SetDefault("MAX_ALERTS_PER_USER", 5)
	viper.SetDefault("REMINDER_HOURS_BEFORE_FLIGHT", 24)
	viper.SetDefault("CURRENCY_API_URL", "https://api.exchangerate.host/latest")
	viper.SetDefault("USD_TO_ETB_RATE", 55.5)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
}

func GetEnv() string {
	return AppConfig.Env
}

func IsProduction() bool {
	return GetEnv() == "production"
}
