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
	Server     ServerConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Observ     ObservabilityConfig
	Saga       SagaConfig
	Breaker    BreakerConfig
	Simulation SimulationConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	MarketplaceID string
}

type DatabaseConfig struct {
	URL string
}

type KafkaConfig struct {
	Brokers            []string
	TopicOrderRequests string
	TopicOrderEvents   string
	ConsumerGroup      string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type SagaConfig struct {
	SellerEndpoints []string
	CallTimeout     time.Duration
	SendTimeout     time.Duration
	// OrderTimeout of zero means no overall deadline
	OrderTimeout   time.Duration
	MaxConcurrency int
	MaxOrderItems  int
}

type BreakerConfig struct {
	Enabled     bool
	MaxFailures uint32
	OpenTimeout time.Duration
}

type SimulationConfig struct {
	Orders   int
	Interval time.Duration
	Products []string
}

const defaultSellerEndpoints = "tcp://127.0.0.1:5555,tcp://127.0.0.1:5556,tcp://127.0.0.1:5557,tcp://127.0.0.1:5558,tcp://127.0.0.1:5559"

// Load reads the marketplace configuration from .env and the environment
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			Env:           getEnv("ENV", "development"),
			MarketplaceID: getEnv("MARKETPLACE_ID", "MP-DEFAULT"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvList("KAFKA_BROKERS", ""),
			TopicOrderRequests: getEnv("KAFKA_TOPIC_ORDER_REQUESTS", "order-requests"),
			TopicOrderEvents:   getEnv("KAFKA_TOPIC_ORDER_EVENTS", "order-events"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "marketplace-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		},
		Saga: SagaConfig{
			SellerEndpoints: getEnvList("SELLER_ENDPOINTS", defaultSellerEndpoints),
			CallTimeout:     getEnvMillis("CALL_TIMEOUT_MS", 3000),
			SendTimeout:     getEnvMillis("SEND_TIMEOUT_MS", 1000),
			OrderTimeout:    getEnvMillis("ORDER_TIMEOUT_MS", 0),
			MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 16),
			MaxOrderItems:   getEnvInt("MAX_ORDER_ITEMS", 50),
		},
		Breaker: BreakerConfig{
			Enabled:     getEnvBool("BREAKER_ENABLED", false),
			MaxFailures: uint32(getEnvInt("BREAKER_MAX_FAILURES", 5)),
			OpenTimeout: getEnvMillis("BREAKER_OPEN_TIMEOUT_MS", 10000),
		},
		Simulation: SimulationConfig{
			Orders:   getEnvInt("SIMULATION_ORDERS", 0),
			Interval: getEnvMillis("SIMULATION_INTERVAL_MS", 2000),
			Products: getEnvList("SIMULATION_PRODUCTS", "laptop,smartphone,tablet"),
		},
	}

	log.Printf("Config loaded: env=%s, port=%s, sellers=%d", cfg.Server.Env, cfg.Server.Port, len(cfg.Saga.SellerEndpoints))
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvMillis(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}

func getEnvBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList splits a comma list, dropping blanks
func getEnvList(key, defaultVal string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultVal), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
