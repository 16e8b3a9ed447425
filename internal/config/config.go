package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Fetcher  FetcherConfig
	Browser  BrowserConfig
	Scanner  ScannerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type FetcherConfig struct {
	Proxies        []string
	AllowDirect    bool
	Timeout        time.Duration
	MinBodyLength  int
	UserAgent      string
	AcceptLanguage string
}

type BrowserConfig struct {
	Enabled        bool
	Headless       bool
	Timeout        time.Duration
	MaxRetries     int
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	TimezoneID     string
	RateLimitMin   time.Duration
	RateLimitMax   time.Duration
}

type ScannerConfig struct {
	// OriginTable is an optional YAML overlay for the origin keyword table.
	OriginTable string
	Concurrency int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	MaxConns int32
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	Stream       string
	StreamMaxLen int64
	PollInterval time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadEnvFiles loads ENV_FILE if set, otherwise .env.local then .env.
// Missing files are not an error; variables already set are never
// overwritten.
func LoadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the environment (after any .env files) and validates it.
func Load() (*Config, error) {
	if err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the process environment without validating.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			RequestTimeout:  getDurationOrDefault("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Fetcher: FetcherConfig{
			Proxies: getStringSliceOrDefault("FETCHER_PROXIES", []string{
				"https://api.allorigins.win/raw?url=",
				"https://corsproxy.io/?",
				"https://api.codetabs.com/v1/proxy?quest=",
			}),
			AllowDirect:    getBoolOrDefault("FETCHER_ALLOW_DIRECT", false),
			Timeout:        getDurationOrDefault("FETCHER_TIMEOUT", 10*time.Second),
			MinBodyLength:  getIntOrDefault("FETCHER_MIN_BODY_LENGTH", 500),
			UserAgent:      getEnvOrDefault("FETCHER_USER_AGENT", defaultUserAgent),
			AcceptLanguage: getEnvOrDefault("FETCHER_ACCEPT_LANGUAGE", "en-US,en;q=0.9,de;q=0.8"),
		},
		Browser: BrowserConfig{
			Enabled:        getBoolOrDefault("BROWSER_ENABLED", false),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			MaxRetries:     getIntOrDefault("BROWSER_MAX_RETRIES", 2),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1366),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 900),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Kyiv"),
			RateLimitMin:   getDurationOrDefault("BROWSER_RATE_LIMIT_MIN", 2*time.Second),
			RateLimitMax:   getDurationOrDefault("BROWSER_RATE_LIMIT_MAX", 5*time.Second),
		},
		Scanner: ScannerConfig{
			OriginTable: getEnvOrDefault("ORIGIN_TABLE", ""),
			Concurrency: getIntOrDefault("SCANNER_CONCURRENCY", 4),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "product_scanner"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:product_scans"),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 100000)),
			PollInterval: getDurationOrDefault("RELAY_POLL_INTERVAL", 5*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Fetcher.Proxies) == 0 && !c.Fetcher.AllowDirect && !c.Browser.Enabled {
		return fmt.Errorf("no fetch route configured: set FETCHER_PROXIES, FETCHER_ALLOW_DIRECT or BROWSER_ENABLED")
	}

	if c.Fetcher.Timeout <= 0 {
		return fmt.Errorf("FETCHER_TIMEOUT must be positive")
	}

	if c.Browser.RateLimitMin > c.Browser.RateLimitMax {
		return fmt.Errorf("BROWSER_RATE_LIMIT_MIN cannot be greater than BROWSER_RATE_LIMIT_MAX")
	}

	if c.Scanner.Concurrency < 1 {
		return fmt.Errorf("SCANNER_CONCURRENCY must be at least 1")
	}

	if c.Database.Enabled && c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// DSN is the Postgres connection string for the database group.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
