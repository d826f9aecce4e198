package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Ledger backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type SellerRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SellerConfig describes one seller process
type SellerConfig struct {
	ID       string            `yaml:"id"`
	Listen   string            `yaml:"listen"`
	Env      string            `yaml:"env"`
	Backend  string            `yaml:"backend"`
	Redis    SellerRedisConfig `yaml:"redis"`
	Products map[string]int    `yaml:"products"`

	CrashProbability   float64 `yaml:"crash_probability"`
	LostAckProbability float64 `yaml:"lost_ack_probability"`
	AvgLatencyMs       int     `yaml:"avg_latency_ms"`

	ReservationTTL  time.Duration `yaml:"reservation_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	JaegerEndpoint string `yaml:"jaeger_endpoint"`
	MetricsAddr    string `yaml:"metrics_addr"`
}

// LoadSeller parses a seller YAML file, applies env overrides and validates the result
func LoadSeller(path string) (*SellerConfig, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seller config: %w", err)
	}
	return ParseSeller(data)
}

// ParseSeller is LoadSeller on an in-memory document
func ParseSeller(data []byte) (*SellerConfig, error) {
	var cfg SellerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse seller config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SellerConfig) applyEnv() {
	c.Listen = getEnv("SELLER_LISTEN", c.Listen)
	c.Backend = getEnv("SELLER_BACKEND", c.Backend)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if db, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		c.Redis.DB = db
	}
	c.Env = getEnv("ENV", c.Env)
	c.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", c.JaegerEndpoint)
}

func (c *SellerConfig) applyDefaults() {
	if c.Listen == "" {
		c.Listen = "tcp://127.0.0.1:5555"
	}
	if c.ID == "" {
		c.ID = c.Listen
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Backend == "" {
		c.Backend = BackendMemory
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.ReservationTTL <= 0 {
		c.ReservationTTL = 5 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = time.Minute
	}
}

// Validate rejects probabilities outside [0,1], negative stock and unknown backends
func (c *SellerConfig) Validate() error {
	if c.CrashProbability < 0 || c.CrashProbability > 1 {
		return fmt.Errorf("crash_probability must be within [0,1], got %v", c.CrashProbability)
	}
	if c.LostAckProbability < 0 || c.LostAckProbability > 1 {
		return fmt.Errorf("lost_ack_probability must be within [0,1], got %v", c.LostAckProbability)
	}
	if c.AvgLatencyMs < 0 {
		return fmt.Errorf("avg_latency_ms must not be negative, got %d", c.AvgLatencyMs)
	}
	for product, qty := range c.Products {
		if qty < 0 {
			return fmt.Errorf("stock for %q must not be negative, got %d", product, qty)
		}
	}
	if c.Backend != BackendMemory && c.Backend != BackendRedis {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// AvgLatency returns the configured mean artificial latency
func (c *SellerConfig) AvgLatency() time.Duration {
	return time.Duration(c.AvgLatencyMs) * time.Millisecond
}
