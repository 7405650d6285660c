package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Quotes   Quotes   `mapstructure:"quotes"`
	Telegram Telegram `mapstructure:"telegram"`
	Engine   Engine   `mapstructure:"engine"`
	Risk     Risk     `mapstructure:"risk"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Quotes holds the configuration for the external price feed.
type Quotes struct {
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Telegram holds the configuration for signal delivery to subscribers.
type Telegram struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Engine holds the configuration for the live trigger poller.
type Engine struct {
	PollInterval int `mapstructure:"poll_interval"` // seconds between quote ticks per instrument
	ScanInterval int `mapstructure:"scan_interval"` // seconds between instrument rescans
}

// Risk holds the platform risk tiers subscribers may choose from.
type Risk struct {
	AllowedPercents []float64 `mapstructure:"allowed_percents"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("quotes.rate_limit", 10)      // requests per second
	viper.SetDefault("quotes.rate_limit_burst", 5) // burst size
	viper.SetDefault("engine.poll_interval", 30)
	viper.SetDefault("engine.scan_interval", 60)
	viper.SetDefault("risk.allowed_percents", []float64{1, 2, 3})

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
