package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr           string
	DatabaseURL        string
	JWTSecret          string
	RedisAddr          string
	BundleCacheTTL     time.Duration
	KafkaBrokers       []string
	KafkaOrderTopic    string
	MetricsUser        string
	MetricsPassword    string
	CORSOrigins        []string
	GatewayMethods     []string
	RateLimitPerMinute int
	WebhookSecret      string
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		BundleCacheTTL:     getDuration("BUNDLE_CACHE_TTL", time.Minute),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic:    getEnv("KAFKA_ORDER_TOPIC", "orders.completed"),
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPassword:    os.Getenv("METRICS_PASSWORD"),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		GatewayMethods:     splitList(getEnv("GATEWAY_METHODS", "paytr,shopier,papara")),
		RateLimitPerMinute: getInt("RATE_LIMIT_PER_MINUTE", 100),
		WebhookSecret:      os.Getenv("WEBHOOK_SECRET"),
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("Warning: invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
