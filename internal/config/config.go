package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	TelegramToken string
	DatabasePath  string
	LogLevel      string
	MetricsAddr   string

	WeatherAPIKey      string
	WeatherAPIURL      string
	WeatherProAPIURL   string
	WeatherLang        string
	UpstreamTimeout    time.Duration
	UpstreamRetries    int
	UpstreamRetryDelay time.Duration
	UpstreamRateRPS    float64
	UpstreamRateBurst  int
	BreakerTimeout     time.Duration

	CacheTTL      time.Duration
	CacheSweepAge time.Duration

	TurnTimeout          time.Duration
	DialogPendingTimeout time.Duration

	NotifyInterval    time.Duration
	NotifyConcurrency int
	NotifyHours       NotifyHours
}

// NotifyHours defines when periodic notifications may be delivered
type NotifyHours struct {
	StartHour int
	EndHour   int
	Location  *time.Location
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	cfg := &Config{
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		WeatherAPIKey: os.Getenv("WEATHER_API_KEY"),
		DatabasePath:  getEnv("DATABASE_PATH", "./weather_bot.db"),
		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
		WeatherAPIURL: getEnv("WEATHER_API_URL", "https://api.openweathermap.org"),
		WeatherLang:   getEnv("WEATHER_LANG", "en"),

		WeatherProAPIURL: getEnv("WEATHER_PRO_API_URL", "https://pro.openweathermap.org"),
	}
	if _, ok := os.LookupEnv("METRICS_ADDR"); !ok {
		cfg.MetricsAddr = ":9090"
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("config: TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("config: WEATHER_API_KEY is required")
	}

	var err error
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"UPSTREAM_TIMEOUT", "10s", &cfg.UpstreamTimeout},
		{"UPSTREAM_RETRY_DELAY", "200ms", &cfg.UpstreamRetryDelay},
		{"BREAKER_TIMEOUT", "30s", &cfg.BreakerTimeout},
		{"CACHE_TTL", "10m", &cfg.CacheTTL},
		{"CACHE_SWEEP_AGE", "24h", &cfg.CacheSweepAge},
		{"TURN_TIMEOUT", "30s", &cfg.TurnTimeout},
		{"DIALOG_PENDING_TIMEOUT", "30m", &cfg.DialogPendingTimeout},
		{"NOTIFY_INTERVAL", "2h", &cfg.NotifyInterval},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"UPSTREAM_RETRIES", 3, &cfg.UpstreamRetries},
		{"UPSTREAM_RATE_BURST", 5, &cfg.UpstreamRateBurst},
		{"NOTIFY_CONCURRENCY", 4, &cfg.NotifyConcurrency},
		{"NOTIFY_START_HOUR", 0, &cfg.NotifyHours.StartHour},
		{"NOTIFY_END_HOUR", 24, &cfg.NotifyHours.EndHour},
	}
	for _, i := range ints {
		if *i.dst, err = parseInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	if cfg.UpstreamRateRPS, err = parseFloat("UPSTREAM_RATE_RPS", 1); err != nil {
		return nil, err
	}

	if cfg.CacheTTL <= 0 {
		return nil, fmt.Errorf("config: CACHE_TTL must be positive")
	}
	if cfg.NotifyInterval <= 0 {
		return nil, fmt.Errorf("config: NOTIFY_INTERVAL must be positive")
	}
	if cfg.UpstreamRetries < 1 {
		cfg.UpstreamRetries = 1
	}
	if cfg.NotifyConcurrency < 1 {
		cfg.NotifyConcurrency = 1
	}
	h := cfg.NotifyHours
	if h.StartHour < 0 || h.StartHour > 23 || h.EndHour < 1 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return nil, fmt.Errorf("config: NOTIFY_START_HOUR/NOTIFY_END_HOUR must satisfy 0 <= start < end <= 24, got %d..%d", h.StartHour, h.EndHour)
	}

	// Default to local timezone
	loc, err := time.LoadLocation("Local")
	if err != nil {
		loc = time.UTC
	}
	cfg.NotifyHours.Location = loc

	return cfg, nil
}

// IsNotifyHour checks if t falls within the notification window
func (c *Config) IsNotifyHour(t time.Time) bool {
	loc := c.NotifyHours.Location
	if loc == nil {
		loc = time.Local
	}
	hour := t.In(loc).Hour()
	return hour >= c.NotifyHours.StartHour && hour < c.NotifyHours.EndHour
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, def))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return f, nil
}
