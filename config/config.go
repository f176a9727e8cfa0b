// Package config loads process configuration from defaults, the
// environment (optionally via a .env file) and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Market data providers.
const (
	ProviderAlpaca = "alpaca"
	ProviderSim    = "sim"
)

// Config holds all process configuration. Settings users change at runtime
// (notification transports, check interval) live in the settings store;
// CheckInterval and AutoCheck here only seed it on first start.
type Config struct {
	Service  string `yaml:"service"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	SQLitePath  string `yaml:"sqlite_path"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	MarketData MarketDataConfig `yaml:"market_data"`

	CheckInterval   int    `yaml:"check_interval"` // seconds
	AutoCheck       bool   `yaml:"auto_check"`
	SeedSymbols     bool   `yaml:"seed_symbols"`
	InboxSize       int    `yaml:"inbox_size"`
	AdminTOTPSecret string `yaml:"admin_totp_secret"`
	TelegramRate    int    `yaml:"telegram_rate"` // messages per second
}

// RedisConfig enables the bar cache and trigger publishing when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig enables the trigger topic when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MarketDataConfig selects and tunes the market data provider.
type MarketDataConfig struct {
	Provider       string        `yaml:"provider"`
	BaseURL        string        `yaml:"base_url"`
	DataURL        string        `yaml:"data_url"`
	APIKey         string        `yaml:"api_key"`
	APISecret      string        `yaml:"api_secret"`
	Feed           string        `yaml:"feed"`
	RequestsPerSec float64       `yaml:"requests_per_sec"`
	Timeout        time.Duration `yaml:"timeout"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	SyncOnStart    bool          `yaml:"sync_on_start"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service:     "alert-engine",
		LogLevel:    "info",
		SQLitePath:  "data/alerts.db",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		Kafka:       KafkaConfig{Topic: "alerts.triggered"},
		MarketData: MarketDataConfig{
			Provider:       ProviderSim,
			BaseURL:        "https://paper-api.alpaca.markets",
			DataURL:        "https://data.alpaca.markets",
			Feed:           "iex",
			RequestsPerSec: 3,
			Timeout:        10 * time.Second,
			CacheTTL:       time.Minute,
		},
		CheckInterval: 60,
		AutoCheck:     true,
		SeedSymbols:   true,
		InboxSize:     500,
		TelegramRate:  1,
	}
}

// Load builds the configuration: defaults, then .env and environment
// variables, then the YAML file at path if path is non-empty. The file
// overrides only the keys it sets.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Service = getEnv("SERVICE_NAME", c.Service)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB, &errs)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	md := &c.MarketData
	md.Provider = strings.ToLower(getEnv("MARKET_DATA_PROVIDER", md.Provider))
	md.BaseURL = getEnv("ALPACA_BASE_URL", md.BaseURL)
	md.DataURL = getEnv("ALPACA_DATA_URL", md.DataURL)
	md.APIKey = getEnv("ALPACA_API_KEY", md.APIKey)
	md.APISecret = getEnv("ALPACA_SECRET_KEY", md.APISecret)
	md.Feed = getEnv("ALPACA_FEED", md.Feed)
	md.RequestsPerSec = getEnvFloat("MARKET_DATA_RPS", md.RequestsPerSec, &errs)
	md.Timeout = getEnvDuration("MARKET_DATA_TIMEOUT", md.Timeout, &errs)
	md.CacheTTL = getEnvDuration("BAR_CACHE_TTL", md.CacheTTL, &errs)
	md.SyncOnStart = getEnvBool("SYNC_SYMBOLS_ON_START", md.SyncOnStart, &errs)

	c.CheckInterval = getEnvInt("CHECK_INTERVAL", c.CheckInterval, &errs)
	c.AutoCheck = getEnvBool("AUTO_CHECK", c.AutoCheck, &errs)
	c.SeedSymbols = getEnvBool("SEED_SYMBOLS", c.SeedSymbols, &errs)
	c.InboxSize = getEnvInt("INBOX_SIZE", c.InboxSize, &errs)
	c.AdminTOTPSecret = getEnv("ADMIN_TOTP_SECRET", c.AdminTOTPSecret)
	c.TelegramRate = getEnvInt("TELEGRAM_RATE", c.TelegramRate, &errs)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.SQLitePath == "" {
		errs = append(errs, errors.New("sqlite_path is required"))
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("check_interval must be positive, got %d", c.CheckInterval))
	}
	if c.InboxSize <= 0 {
		errs = append(errs, fmt.Errorf("inbox_size must be positive, got %d", c.InboxSize))
	}
	if c.TelegramRate <= 0 {
		errs = append(errs, fmt.Errorf("telegram_rate must be positive, got %d", c.TelegramRate))
	}

	md := c.MarketData
	switch md.Provider {
	case ProviderSim:
	case ProviderAlpaca:
		if md.APIKey == "" || md.APISecret == "" {
			errs = append(errs, errors.New("alpaca provider needs api_key and api_secret"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown market data provider %q", md.Provider))
	}
	if md.RequestsPerSec <= 0 {
		errs = append(errs, fmt.Errorf("market_data.requests_per_sec must be positive, got %g", md.RequestsPerSec))
	}
	if md.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("market_data.timeout must be positive, got %s", md.Timeout))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64, errs *[]error) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return b
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, fallback time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
