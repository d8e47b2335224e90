package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultCardFeeRate  = 0.035
	defaultNotifyTopic  = "order-notifications"
	defaultNotifyPerSec = 2.0
	defaultAppPort      = "8080"
)

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string
	AppPort    string
	AppEnv     string

	JWTSecret         string
	InternalSecretKey string

	GatewayBaseURL       string
	GatewayAPIKey        string
	GatewayCallbackToken string
	PaymentReturnURL     string
	CardFeeRate          float64

	RedisAddr string

	KafkaBrokers     []string
	NotifyTopic      string
	NotifyRatePerSec float64

	MaintenanceMode bool
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),
		AppPort:    envOr("APP_PORT", defaultAppPort),
		AppEnv:     os.Getenv("APP_ENV"),

		JWTSecret:         os.Getenv("JWT_SECRET"),
		InternalSecretKey: os.Getenv("INTERNAL_SECRET_KEY"),

		GatewayBaseURL:       os.Getenv("GATEWAY_BASE_URL"),
		GatewayAPIKey:        os.Getenv("GATEWAY_API_KEY"),
		GatewayCallbackToken: os.Getenv("GATEWAY_CALLBACK_TOKEN"),
		PaymentReturnURL:     os.Getenv("PAYMENT_RETURN_URL"),
		CardFeeRate:          envFloat("CARD_FEE_RATE", defaultCardFeeRate),

		RedisAddr: os.Getenv("REDIS_ADDR"),

		KafkaBrokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		NotifyTopic:      envOr("NOTIFY_TOPIC", defaultNotifyTopic),
		NotifyRatePerSec: envFloat("NOTIFY_RATE_PER_SEC", defaultNotifyPerSec),

		MaintenanceMode: envBool("MAINTENANCE_MODE"),
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

// Runtime returns the per-request switches derived from the config.
func (c *Config) Runtime() Runtime {
	return Runtime{MaintenanceMode: c.MaintenanceMode}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		log.Printf("invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return v
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
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
