package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything read from the environment at startup.
type Config struct {
	Port          string
	AllowedOrigin string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AuthSecret    string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	LowStockThreshold int
	DashboardCacheTTL time.Duration

	SMTPAddr        string
	SMTPUser        string
	SMTPPass        string
	SMTPFrom        string
	AlertRecipients []string

	CompanyName string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:5173"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		AuthSecret:    os.Getenv("AUTH_SECRET"),
		RefreshSecret: os.Getenv("REFRESH_SECRET"),
		AccessTTL:     time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		RefreshTTL:    time.Duration(getEnvInt("REFRESH_TOKEN_TTL_HOURS", 168)) * time.Hour,

		LowStockThreshold: getEnvInt("LOW_STOCK_THRESHOLD", 10),
		DashboardCacheTTL: time.Duration(getEnvInt("DASHBOARD_CACHE_TTL_SECONDS", 30)) * time.Second,

		SMTPAddr:        os.Getenv("SMTP_ADDR"),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		SMTPFrom:        getEnv("SMTP_FROM", "no-reply@kihaan.local"),
		AlertRecipients: splitList(os.Getenv("ALERT_RECIPIENTS")),

		CompanyName: getEnv("COMPANY_NAME", "Kihaan Enterprises"),
	}
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
