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
	Marketplace MarketplaceConfig
	Browser     BrowserConfig
	Loader      LoaderConfig
	Scraper     ScraperConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Server      ServerConfig
	Logging     LoggingConfig
}

type MarketplaceConfig struct {
	BaseURL           string
	ProductHost       string
	CatalogURL        string
	SearchScrollSteps int
	OfferScrollSteps  int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	Locale         string
	Languages      []string
	Vendor         string
	Platform       string
	WebGLVendor    string
	Renderer       string
	ViewportWidth  int
	ViewportHeight int
}

type LoaderConfig struct {
	ScrollPixels  int
	ScrollPause   time.Duration
	SettleTimeout time.Duration
	PollInterval  time.Duration
	StablePolls   int
}

type ScraperConfig struct {
	OutputDir      string
	LookupDelayMin time.Duration
	LookupDelayMax time.Duration
	WriteJSON      bool
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int32
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory are applied first when the file exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Marketplace: MarketplaceConfig{
			BaseURL:           getEnvOrDefault("MARKETPLACE_BASE_URL", "https://www.ozon.ru/"),
			ProductHost:       getEnvOrDefault("MARKETPLACE_PRODUCT_HOST", "https://ozon.ru"),
			CatalogURL:        getEnvOrDefault("MARKETPLACE_CATALOG_URL", "https://www.ozon.ru/"),
			SearchScrollSteps: getIntOrDefault("MARKETPLACE_SEARCH_SCROLL_STEPS", 50),
			OfferScrollSteps:  getIntOrDefault("MARKETPLACE_OFFER_SCROLL_STEPS", 2),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 15*time.Second),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", defaultUserAgent),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			Languages:      getStringSliceOrDefault("BROWSER_LANGUAGES", []string{"en-US", "en"}),
			Vendor:         getEnvOrDefault("BROWSER_VENDOR", "Google Inc."),
			Platform:       getEnvOrDefault("BROWSER_PLATFORM", "Win32"),
			WebGLVendor:    getEnvOrDefault("BROWSER_WEBGL_VENDOR", "Intel Inc."),
			Renderer:       getEnvOrDefault("BROWSER_RENDERER", "Intel Iris OpenGL Engine"),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
		},
		Loader: LoaderConfig{
			ScrollPixels:  getIntOrDefault("LOADER_SCROLL_PIXELS", 500),
			ScrollPause:   getDurationOrDefault("LOADER_SCROLL_PAUSE", 100*time.Millisecond),
			SettleTimeout: getDurationOrDefault("LOADER_SETTLE_TIMEOUT", 10*time.Second),
			PollInterval:  getDurationOrDefault("LOADER_POLL_INTERVAL", 250*time.Millisecond),
			StablePolls:   getIntOrDefault("LOADER_STABLE_POLLS", 3),
		},
		Scraper: ScraperConfig{
			OutputDir:      getEnvOrDefault("SCRAPER_OUTPUT_DIR", "."),
			LookupDelayMin: getDurationOrDefault("SCRAPER_LOOKUP_DELAY_MIN", 5*time.Second),
			LookupDelayMax: getDurationOrDefault("SCRAPER_LOOKUP_DELAY_MAX", 10*time.Second),
			WriteJSON:      getBoolOrDefault("SCRAPER_WRITE_JSON", false),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "marketplace_scraper"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 4)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:marketplace_offers"),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
			File:   getEnvOrDefault("LOG_FILE", ""),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if !strings.HasSuffix(c.Marketplace.BaseURL, "/") {
		return fmt.Errorf("MARKETPLACE_BASE_URL must end with a slash")
	}

	if c.Marketplace.SearchScrollSteps < 0 || c.Marketplace.OfferScrollSteps < 0 {
		return fmt.Errorf("scroll steps cannot be negative")
	}

	if c.Loader.ScrollPixels <= 0 {
		return fmt.Errorf("LOADER_SCROLL_PIXELS must be positive")
	}

	if c.Loader.StablePolls < 1 {
		return fmt.Errorf("LOADER_STABLE_POLLS must be at least 1")
	}

	if c.Scraper.LookupDelayMin > c.Scraper.LookupDelayMax {
		return fmt.Errorf("SCRAPER_LOOKUP_DELAY_MIN cannot be greater than SCRAPER_LOOKUP_DELAY_MAX")
	}

	if c.Database.Enabled && c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required when DB_ENABLED is set")
	}

	return nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

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
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
