package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"sjsage522/runewatcher/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Store configuration
	StoreBackend string
	StorePath    string

	// Marketplace pages
	G2GURL       string
	DD373URL     string
	ProfilesPath string

	// Headless browser
	ChromeURL    string
	RenderPages  bool
	WatchPages   bool
	PageInterval time.Duration
	PageDebounce time.Duration

	// Extraction
	ExtractWindow int
	PriceMax      float64

	// Notifications and sync
	TelegramBotToken string
	TelegramChatID   int64
	GistToken        string

	// Operator API
	HTTPAddr string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	streamMaxLength, _ := strconv.Atoi(getEnv("REDIS_STREAM_MAX_LENGTH", "1000"))
	pageInterval, _ := strconv.Atoi(getEnv("PAGE_INTERVAL_SECONDS", "30"))
	pageDebounce, _ := strconv.Atoi(getEnv("PAGE_DEBOUNCE_MS", "1000"))
	window, _ := strconv.Atoi(getEnv("EXTRACT_WINDOW", "200"))
	priceMax, _ := strconv.ParseFloat(getEnv("PRICE_MAX", "10000"), 64)
	chatID, _ := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)

	return &Config{
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              redisDB,
		RedisStream:          getEnv("REDIS_STREAM", "runewatcher:prices"),
		RedisStreamMaxLength: streamMaxLength,
		MemcacheAddr:         getEnv("MEMCACHE_ADDR", "localhost:11211"),
		StoreBackend:         strings.ToLower(getEnv("STORE_BACKEND", "file")),
		StorePath:            getEnv("STORE_PATH", "data/prices.json"),
		G2GURL:               getEnv("G2G_URL", "https://www.g2g.com/categories/diablo-2-resurrected-item?q=rune"),
		DD373URL:             getEnv("DD373_URL", "https://www.dd373.com/s-rbg22w-c-8rknmp-bwgvrk.html"),
		ProfilesPath:         getEnv("PROFILES_PATH", ""),
		ChromeURL:            getEnv("CHROME_URL", ""),
		RenderPages:          getBool("RENDER_PAGES", false),
		WatchPages:           getBool("WATCH_PAGES", false),
		PageInterval:         time.Duration(pageInterval) * time.Second,
		PageDebounce:         time.Duration(pageDebounce) * time.Millisecond,
		ExtractWindow:        window,
		PriceMax:             priceMax,
		TelegramBotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:       chatID,
		GistToken:            getEnv("GIST_TOKEN", ""),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		Environment:          getEnv("RUNEWATCHER_ENVIRONMENT", "development"),
	}
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case "file", "sqlite", "redis":
	default:
		return errors.NewConfiguration("STORE_BACKEND must be file, sqlite or redis, got "+c.StoreBackend, nil)
	}
	if c.G2GURL == "" || c.DD373URL == "" {
		return errors.NewConfiguration("G2G_URL and DD373_URL are required", nil)
	}
	if c.PageInterval <= 0 {
		return errors.NewConfiguration("PAGE_INTERVAL_SECONDS must be positive", nil)
	}
	if c.PageDebounce <= 0 {
		return errors.NewConfiguration("PAGE_DEBOUNCE_MS must be positive", nil)
	}
	if c.ExtractWindow <= 0 {
		return errors.NewConfiguration("EXTRACT_WINDOW must be positive", nil)
	}
	if c.PriceMax <= 0 {
		return errors.NewConfiguration("PRICE_MAX must be positive", nil)
	}
	if c.RedisStreamMaxLength <= 0 {
		return errors.NewConfiguration("REDIS_STREAM_MAX_LENGTH must be positive", nil)
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return errors.NewConfiguration("TELEGRAM_CHAT_ID is required with TELEGRAM_BOT_TOKEN", nil)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(defaultValue)))
	if err != nil {
		return defaultValue
	}
	return v
}
