// api/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	StoreBackend string
	DatabaseURL  string
	MongoURI     string
	MongoDBName  string

	ClickHouse ClickHouseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig

	DedupTTL       time.Duration
	PurgeBatchSize int

	FEOrigin    string
	JWTSecret   string
	AuthDefault string
	TrackingURL string
}

type ClickHouseConfig struct {
	Host       string
	NativePort int
	Database   string
	Username   string
	Password   string
}

// Enabled reports whether enough settings are present to open a connection.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != "" && c.NativePort != 0 && c.Database != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// LoadDotEnv loads a .env file when one exists. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "8080"),
		GinMode:      os.Getenv("GIN_MODE"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "json"),
		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDBName:  getEnv("MONGO_DB_NAME", "storefront"),
		ClickHouse: ClickHouseConfig{
			Host:     os.Getenv("CLICKHOUSE_HOST"),
			Database: os.Getenv("CLICKHOUSE_DB_NAME"),
			Username: os.Getenv("CLICKHOUSE_USERNAME"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "storefront.analytics"),
		},
		FEOrigin:    os.Getenv("FE_ORIGIN"),
		JWTSecret:   os.Getenv("JWT_SECRET_KEY"),
		AuthDefault: os.Getenv("AUTH_DEFAULT"),
		TrackingURL: getEnv("TRACKING_API_URL", "http://localhost:8080"),
	}

	var err error
	if cfg.ClickHouse.NativePort, err = getInt("CLICKHOUSE_NATIVE_PORT", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.PurgeBatchSize, err = getInt("PURGE_BATCH_SIZE", 500); err != nil {
		return nil, err
	}
	if cfg.PurgeBatchSize <= 0 {
		return nil, fmt.Errorf("invalid PURGE_BATCH_SIZE: must be positive, got %d", cfg.PurgeBatchSize)
	}
	if cfg.DedupTTL, err = getDuration("DEDUP_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI must be set when STORE_BACKEND=%s", BackendMongo)
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=%s", BackendPostgres)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND: %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
