package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port           string
	PostgresDSN    string
	MongoURI       string
	MongoDB        string
	DBTimeout      time.Duration
	RedisAddr      string
	RedisPassword  string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	SessionTTL     time.Duration
	CookieSecure   bool
	AllowedOrigins []string
	TimelineQueue  int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	ArchiveDays    int
}

// Load reads the configuration. With ENV=dev a local .env file is loaded first.
func Load() *Config {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	return &Config{
		Port:           getenv("PORT", "8080"),
		PostgresDSN:    getenv("POSTGRES_DSN", ""),
		MongoURI:       getenv("MONGO_URI", "mongodb://mongo:27017"),
		MongoDB:        getenv("MONGO_DB", "favorites_app"),
		DBTimeout:      getenvDuration("DB_TIMEOUT", 5*time.Second),
		RedisAddr:      getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getenv("REDIS_PASSWORD", ""),
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "user-archives"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
		SessionTTL:     getenvDuration("SESSION_TTL", 24*time.Hour),
		CookieSecure:   getenvBool("COOKIE_SECURE", false),
		AllowedOrigins: getenvList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		TimelineQueue:  getenvInt("TIMELINE_QUEUE", 256),
		RequestTimeout: getenvDuration("REQUEST_TIMEOUT", 30*time.Second),
		MaxBodyBytes:   int64(getenvInt("MAX_BODY_BYTES", 1<<20)),
		ArchiveDays:    getenvInt("MINIO_ARCHIVE_DAYS", 0),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func getenvList(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
