package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	AuthJWTIssuer string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBRunMigrations   bool

	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Scheduler SchedulerConfig
	Chat      ChatConfig
	Bootstrap BootstrapConfig
}

type RateLimitConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MessageRate         float64
	MessageBurst        int
	SessionRequestRate  float64
	SessionRequestBurst int
	SweepLockTTLSeconds int
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && strings.TrimSpace(k.Topic) != ""
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	// Jobs limits which jobs run; empty runs all of them.
	Jobs []string
}

type ChatConfig struct {
	// CustomerCanEnd lets a customer close their own session early.
	CustomerCanEnd bool
	StreamEnabled  bool
}

// BootstrapConfig seeds demo wallets on startup outside production.
type BootstrapConfig struct {
	SeedDemoWallets bool
	DemoCustomers   []string
	DemoCreditCents int64
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "mystictxt"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AuthJWTIssuer: strings.TrimSpace(getenv("AUTH_JWT_ISSUER", "")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(getenv("DATABASE_TYPE", "postgres")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "mystictxt"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "mystictxt.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBRunMigrations:   getenvBool("DATABASE_RUN_MIGRATIONS", true),

		RateLimit: RateLimitConfig{
			Enabled:             getenvBool("RATE_LIMIT_ENABLED", false),
			RedisAddr:           strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:       getenv("REDIS_PASSWORD", ""),
			RedisDB:             getenvInt("REDIS_DB", 0),
			MessageRate:         getenvFloat("RATE_LIMIT_MESSAGE_RATE", 1),
			MessageBurst:        getenvInt("RATE_LIMIT_MESSAGE_BURST", 5),
			SessionRequestRate:  getenvFloat("RATE_LIMIT_SESSION_REQUEST_RATE", 0.1),
			SessionRequestBurst: getenvInt("RATE_LIMIT_SESSION_REQUEST_BURST", 3),
			SweepLockTTLSeconds: getenvInt("RATE_LIMIT_SWEEP_LOCK_TTL_SECONDS", 30),
		},
		Kafka: KafkaConfig{
			Brokers:  getenvList("KAFKA_BROKERS"),
			Topic:    getenv("KAFKA_TOPIC", "mystictxt.chat.events"),
			ClientID: getenv("KAFKA_CLIENT_ID", "mystictxt"),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: getenvDuration("SCHEDULER_RUN_INTERVAL", 15*time.Second),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
			Jobs:        getenvList("SCHEDULER_JOBS"),
		},
		Chat: ChatConfig{
			CustomerCanEnd: getenvBool("CHAT_CUSTOMER_CAN_END", true),
			StreamEnabled:  getenvBool("CHAT_STREAM_ENABLED", true),
		},
		Bootstrap: BootstrapConfig{
			SeedDemoWallets: getenvBool("BOOTSTRAP_SEED_DEMO_WALLETS", false),
			DemoCustomers:   getenvList("BOOTSTRAP_DEMO_CUSTOMERS"),
			DemoCreditCents: int64(getenvInt("BOOTSTRAP_DEMO_CREDIT_CENTS", 2500)),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
