package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	ServiceName  string
	StoreBackend string
	Database     DatabaseConfig
	RabbitMQ     RabbitMQConfig
	Simulator    SimulatorConfig
	Topup        TopupConfig
	Meter        MeterConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RabbitMQConfig holds RabbitMQ connection, exchange and queue settings
type RabbitMQConfig struct {
	URL               string
	EventsExchange    string
	EventsRoutingKey  string
	CommandExchange   string
	CommandQueue      string
	CommandRoutingKey string
	CommandDLQQueue   string
	PrefetchCount     int
}

// SimulatorConfig holds consumption simulator settings
type SimulatorConfig struct {
	Interval           time.Duration
	ConsumptionPerTick float64
	MinVoltage         float64
	MaxVoltage         float64
	MaxCurrent         float64
	Seed               int64
}

// TopupConfig holds purchase validation settings
type TopupConfig struct {
	MaxAmount float64
}

// MeterConfig holds per-meter defaults applied at registration
type MeterConfig struct {
	DefaultLowThresholdKwh float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName:  getEnv("SERVICE_NAME", "prepaid-engine"),
		StoreBackend: getEnv("STORE_BACKEND", BackendPostgres),
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DATABASE_MAX_CONNS", 8),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			EventsExchange:    getEnv("RABBITMQ_EVENTS_EXCHANGE", "prepaid.events.exchange"),
			EventsRoutingKey:  getEnv("RABBITMQ_EVENTS_ROUTING_KEY", "meter.alert"),
			CommandExchange:   getEnv("RABBITMQ_COMMAND_EXCHANGE", "prepaid.commands.exchange"),
			CommandQueue:      getEnv("RABBITMQ_COMMAND_QUEUE", "prepaid.commands.queue"),
			CommandRoutingKey: getEnv("RABBITMQ_COMMAND_ROUTING_KEY", "billing.period.reset"),
			CommandDLQQueue:   getEnv("RABBITMQ_COMMAND_DLQ_QUEUE", "prepaid.commands.dlq"),
			PrefetchCount:     getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Simulator: SimulatorConfig{
			Interval:           getEnvAsDuration("SIMULATOR_INTERVAL", time.Second),
			ConsumptionPerTick: getEnvAsFloat("SIMULATOR_CONSUMPTION_KWH", 0.05),
			MinVoltage:         getEnvAsFloat("SIMULATOR_MIN_VOLTAGE", 220),
			MaxVoltage:         getEnvAsFloat("SIMULATOR_MAX_VOLTAGE", 240),
			MaxCurrent:         getEnvAsFloat("SIMULATOR_MAX_CURRENT", 5),
			Seed:               int64(getEnvAsInt("SIMULATOR_SEED", 0)),
		},
		Topup: TopupConfig{
			MaxAmount: getEnvAsFloat("TOPUP_MAX_AMOUNT", 100_000_000),
		},
		Meter: MeterConfig{
			DefaultLowThresholdKwh: getEnvAsFloat("METER_LOW_THRESHOLD_KWH", 10),
		},
	}

	if cfg.Simulator.Seed == 0 {
		cfg.Simulator.Seed = time.Now().UnixNano()
	}

	// Validate required fields
	if cfg.StoreBackend != BackendPostgres && cfg.StoreBackend != BackendMemory {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, cfg.StoreBackend)
	}
	if cfg.StoreBackend == BackendPostgres && cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
