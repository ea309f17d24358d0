package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Output   OutputConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type ScraperConfig struct {
	Workers           int
	NavigationTimeout time.Duration
	SelectorTimeout   time.Duration
	LoginTimeout      time.Duration
	CaptchaTimeout    time.Duration
	PollInterval      time.Duration
	ScrollPasses      int
	ScrollDelay       time.Duration
	PaceMin           time.Duration
	PaceMax           time.Duration
	MismatchThreshold int
	MaxPagesPerFilter int
	PaginationRetries int
	PaginationBackoff time.Duration
	MaxLoadMore       int
	MaxEmptyBatches   int
	LoadMoreTimeout   time.Duration
	// ReferenceDate anchors relative dates ("3 days ago"). Empty means the
	// run start time.
	ReferenceDate string
}

type BrowserConfig struct {
	Headless         bool
	Timeout          time.Duration
	SlowMo           time.Duration
	UserAgents       []string
	AcceptLanguage   string
	TimezoneID       string
	Locale           string
	ProxyServer      string
	StorageStatePath string
}

type OutputConfig struct {
	Dir            string
	DiagnosticsDir string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	Stream       string
	// StreamMaxLen caps the stream approximately. Zero leaves it unbounded.
	StreamMaxLen int64
}

type QueueConfig struct {
	MaxSize int
}

type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Load reads .env (when present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getIntOrDefault("SERVER_PORT", 8080),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Scraper: ScraperConfig{
			Workers:           getIntOrDefault("SCRAPER_WORKERS", 4),
			NavigationTimeout: getDurationOrDefault("SCRAPER_NAVIGATION_TIMEOUT", 60*time.Second),
			SelectorTimeout:   getDurationOrDefault("SCRAPER_SELECTOR_TIMEOUT", 10*time.Second),
			LoginTimeout:      getDurationOrDefault("SCRAPER_LOGIN_TIMEOUT", 120*time.Second),
			CaptchaTimeout:    getDurationOrDefault("SCRAPER_CAPTCHA_TIMEOUT", 120*time.Second),
			PollInterval:      getDurationOrDefault("SCRAPER_POLL_INTERVAL", time.Second),
			ScrollPasses:      getIntOrDefault("SCRAPER_SCROLL_PASSES", 5),
			ScrollDelay:       getDurationOrDefault("SCRAPER_SCROLL_DELAY", 2*time.Second),
			PaceMin:           getDurationOrDefault("SCRAPER_PACE_MIN", 2*time.Second),
			PaceMax:           getDurationOrDefault("SCRAPER_PACE_MAX", 4*time.Second),
			MismatchThreshold: getIntOrDefault("SCRAPER_MISMATCH_THRESHOLD", 5),
			MaxPagesPerFilter: getIntOrDefault("SCRAPER_MAX_PAGES_PER_FILTER", 100),
			PaginationRetries: getIntOrDefault("SCRAPER_PAGINATION_RETRIES", 3),
			PaginationBackoff: getDurationOrDefault("SCRAPER_PAGINATION_BACKOFF", 5*time.Second),
			MaxLoadMore:       getIntOrDefault("SCRAPER_MAX_LOAD_MORE", 200),
			MaxEmptyBatches:   getIntOrDefault("SCRAPER_MAX_EMPTY_BATCHES", 5),
			LoadMoreTimeout:   getDurationOrDefault("SCRAPER_LOAD_MORE_TIMEOUT", 10*time.Second),
			ReferenceDate:     getEnvOrDefault("SCRAPER_REFERENCE_DATE", ""),
		},
		Browser: BrowserConfig{
			Headless:         getBoolOrDefault("BROWSER_HEADLESS", false),
			Timeout:          getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			SlowMo:           getDurationOrDefault("BROWSER_SLOW_MO", 100*time.Millisecond),
			UserAgents:       getStringSliceOrDefault("BROWSER_USER_AGENTS", nil),
			AcceptLanguage:   getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			TimezoneID:       getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:           getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:      getEnvOrDefault("BROWSER_PROXY", ""),
			StorageStatePath: getEnvOrDefault("BROWSER_STORAGE_STATE", "auth.json"),
		},
		Output: OutputConfig{
			Dir:            getEnvOrDefault("OUTPUT_DIR", "output"),
			DiagnosticsDir: getEnvOrDefault("DIAGNOSTICS_DIR", "output/diagnostics"),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			Name:     getEnvOrDefault("DB_NAME", "reviews"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Enabled:      getBoolOrDefault("REDIS_ENABLED", false),
			Addr:         getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			Stream:       getEnvOrDefault("REDIS_STREAM", "stream:review_runs"),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAXLEN", 10000)),
		},
		Queue: QueueConfig{
			MaxSize: getIntOrDefault("QUEUE_MAX_SIZE", 100),
		},
		Logging: LoggingConfig{
			Level:      getEnvOrDefault("LOG_LEVEL", "info"),
			Format:     getEnvOrDefault("LOG_FORMAT", "text"),
			File:       getEnvOrDefault("LOG_FILE", "scraper.log"),
			MaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.Workers < 1 {
		return fmt.Errorf("SCRAPER_WORKERS must be at least 1")
	}

	if c.Scraper.PaceMin > c.Scraper.PaceMax {
		return fmt.Errorf("SCRAPER_PACE_MIN cannot be greater than SCRAPER_PACE_MAX")
	}

	if c.Scraper.MismatchThreshold < 1 {
		return fmt.Errorf("SCRAPER_MISMATCH_THRESHOLD must be at least 1")
	}

	if c.Scraper.PaginationRetries < 1 {
		return fmt.Errorf("SCRAPER_PAGINATION_RETRIES must be at least 1")
	}

	if c.Scraper.MaxLoadMore < 0 || c.Scraper.MaxEmptyBatches < 1 {
		return fmt.Errorf("SCRAPER_MAX_LOAD_MORE must be >= 0 and SCRAPER_MAX_EMPTY_BATCHES >= 1")
	}

	if _, err := c.Scraper.Reference(time.Time{}); err != nil {
		return err
	}

	if c.Output.Dir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}

	if c.Redis.StreamMaxLen < 0 {
		return fmt.Errorf("REDIS_STREAM_MAXLEN cannot be negative")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("QUEUE_MAX_SIZE must be at least 1")
	}

	return nil
}

// Reference returns the instant relative dates resolve against: the
// configured ReferenceDate, or fallback when none is set.
func (s ScraperConfig) Reference(fallback time.Time) (time.Time, error) {
	if s.ReferenceDate == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", s.ReferenceDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("SCRAPER_REFERENCE_DATE must be YYYY-MM-DD: %w", err)
	}
	return t, nil
}

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
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := parts[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
