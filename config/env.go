package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"production-dashboard/lifecycle"

	"github.com/joho/godotenv"
)

const DefaultAPIBaseURL = "https://api.atelier-production.com/api"

type Config struct {
	AppEnv        string
	Port          string
	LogLevel      string
	OriginURL     string
	UIOrigins     []string
	EnvFileLoaded bool

	APIBaseURL    string
	AccessToken   string
	JWTSecret     string
	DashboardRole lifecycle.Role

	HubPath              string
	DevHubOrigins        []string
	ServerTimeout        time.Duration
	HeartbeatInterval    time.Duration
	KeepAliveInterval    time.Duration
	MaxReconnectAttempts int

	EventQueueSize  int
	RefreshDebounce time.Duration

	MediaMaxConcurrent int64
	MediaRetryDelay    time.Duration
	MediaCacheTTL      time.Duration
	ViewportLeadRows   int

	RedisURL      string
	RedisAddr     string
	RedisPassword string

	DatabaseURL    string
	LocalStorePath string

	CloudinaryURL       string
	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
}

func LoadConfig() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          getEnv("APP_PORT", getEnv("PORT", "8082")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		OriginURL:     getEnv("ORIGIN_URL", ""),
		UIOrigins:     splitList(getEnv("UI_ORIGINS", "http://localhost:5173")),
		EnvFileLoaded: loaded,

		APIBaseURL:  getEnv("API_BASE_URL", DefaultAPIBaseURL),
		AccessToken: getEnv("ACCESS_TOKEN", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		HubPath:       getEnv("HUB_PATH", "/hubs/orders"),
		DevHubOrigins: splitList(getEnv("DEV_HUB_ORIGINS", "http://localhost:5000,https://localhost:5001")),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		LocalStorePath: getEnv("LOCAL_STORE_PATH", "./dashboard.db"),

		CloudinaryURL:       getEnv("CLOUDINARY_URL", ""),
		CloudinaryCloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
	}

	var err error
	if raw := getEnv("DASHBOARD_ROLE", ""); raw != "" {
		if cfg.DashboardRole, err = lifecycle.ParseRole(raw); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"SERVER_TIMEOUT", 120 * time.Second, &cfg.ServerTimeout},
		{"HEARTBEAT_INTERVAL", 15 * time.Second, &cfg.HeartbeatInterval},
		{"KEEPALIVE_INTERVAL", 15 * time.Second, &cfg.KeepAliveInterval},
		{"REFRESH_DEBOUNCE", 250 * time.Millisecond, &cfg.RefreshDebounce},
		{"MEDIA_RETRY_DELAY", 150 * time.Millisecond, &cfg.MediaRetryDelay},
		{"MEDIA_CACHE_TTL", 24 * time.Hour, &cfg.MediaCacheTTL},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"MAX_RECONNECT_ATTEMPTS", 0, &cfg.MaxReconnectAttempts},
		{"EVENT_QUEUE_SIZE", 256, &cfg.EventQueueSize},
		{"VIEWPORT_LEAD_ROWS", 5, &cfg.ViewportLeadRows},
	}
	for _, i := range ints {
		if *i.dest, err = getInt(i.key, i.def); err != nil {
			return nil, err
		}
	}

	concurrent, err := getInt("MEDIA_MAX_CONCURRENT", 3)
	if err != nil {
		return nil, err
	}
	cfg.MediaMaxConcurrent = int64(concurrent)

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.ServerTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("SERVER_TIMEOUT (%s) must be greater than HEARTBEAT_INTERVAL (%s)", c.ServerTimeout, c.HeartbeatInterval)
	}
	if c.IsProduction() && len(c.AllowedOrigins()) == 0 {
		return fmt.Errorf("UI_ORIGINS or ORIGIN_URL must be set in production")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	if c.MediaMaxConcurrent <= 0 {
		return fmt.Errorf("MEDIA_MAX_CONCURRENT must be positive")
	}
	if c.DashboardRole != "" {
		if _, err := lifecycle.PolicyFor(c.DashboardRole); err != nil {
			return err
		}
	}
	return nil
}

// AllowedOrigins is UI_ORIGINS plus ORIGIN_URL when it is set and not listed.
func (c *Config) AllowedOrigins() []string {
	origins := append([]string(nil), c.UIOrigins...)
	if c.OriginURL != "" && !slices.Contains(origins, c.OriginURL) {
		origins = append(origins, c.OriginURL)
	}
	return origins
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
