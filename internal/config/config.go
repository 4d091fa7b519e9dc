package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Persistencia del agregado y del outbox. DBBackend: "sqlite" | "postgres".
	DBBackend   string
	SQLitePath  string
	PostgresDSN string

	// Backend del outbox que drena el relayer: "db" (el mismo backend SQL)
	// o "mongodb" (colección externa alimentada por otro servicio).
	OutboxBackend string
	MongoURI      string
	MongoDatabase string

	// Cache de lectura. Vacío = cache en memoria.
	RedisAddr string
	CacheTTL  time.Duration

	// Publicación de eventos.
	UseKafka     bool
	KafkaBrokers []string
	KafkaTopic   string

	// Relayer.
	OutboxPeriod    time.Duration
	OutboxLimit     int
	DeliveryTimeout time.Duration

	// Analítica de entregas. Vacío = desactivada.
	ClickHouseAddr string

	// Directorio de clientes.
	DirectoryBaseURL string
	DirectoryTimeout time.Duration
	DirectoryRetries int
	BreakerThreshold int
	BreakerCooldown  time.Duration

	HTTPPort string
}

func LoadConfig() *Config {
	getEnv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	getInt := func(key string, fallback int) int {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return fallback
	}
	getDuration := func(key string, fallback time.Duration) time.Duration {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
		return fallback
	}

	kafkaBrokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")

	return &Config{
		DBBackend:   getEnv("DB_BACKEND", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "./invoicelab.db"),
		PostgresDSN: getEnv("POSTGRES_DSN", ""),

		OutboxBackend: getEnv("OUTBOX_BACKEND", "db"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "invoicelab"),

		RedisAddr: getEnv("REDIS_ADDR", ""),
		CacheTTL:  getDuration("CACHE_TTL", 60*time.Second),

		UseKafka:     getEnv("USE_KAFKA", "false") == "true",
		KafkaBrokers: kafkaBrokers,
		KafkaTopic:   getEnv("KAFKA_TOPIC", "invoice-events"),

		OutboxPeriod:    getDuration("OUTBOX_PERIOD", 30*time.Second),
		OutboxLimit:     getInt("OUTBOX_LIMIT", 10),
		DeliveryTimeout: getDuration("DELIVERY_TIMEOUT", 5*time.Second),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", ""),

		DirectoryBaseURL: getEnv("CUSTOMERS_API_URL", "http://localhost:9090"),
		DirectoryTimeout: getDuration("CUSTOMERS_API_TIMEOUT", 5*time.Second),
		DirectoryRetries: getInt("CUSTOMERS_API_RETRIES", 3),
		BreakerThreshold: getInt("BREAKER_THRESHOLD", 5),
		BreakerCooldown:  getDuration("BREAKER_COOLDOWN", 30*time.Second),

		HTTPPort: getEnv("HTTP_PORT", "8080"),
	}
}
