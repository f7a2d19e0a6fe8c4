package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Scanner  ScannerConfig
	Auth     AuthConfig
	LogDir   string
}

type ServerConfig struct {
	Port        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	AutoMigrate   bool
	MigrationsDir string
}

// RedisConfig with an empty Addr disables scan debouncing.
type RedisConfig struct {
	Addr           string
	DebounceWindow time.Duration
}

type KafkaConfig struct {
	Brokers      []string
	GroupID      string
	CheckinTopic string
	Enabled      bool
}

type ScannerConfig struct {
	QRSecret          string
	LookupTimeout     time.Duration
	CommitTimeout     time.Duration
	RecentValidations int
	SessionIdleTTL    time.Duration
}

type AuthConfig struct {
	Mode       string // "oidc" or "unverified"
	OIDCIssuer string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", ":8086"),
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
		},
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			DebounceWindow: getEnvMillis("SCAN_DEBOUNCE_MS", 1500*time.Millisecond),
		},
		Kafka: KafkaConfig{
			Brokers:      getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID:      getEnv("KAFKA_GROUP_ID", "checkin-feed"),
			CheckinTopic: getEnv("KAFKA_TOPIC_CHECKINS", "ticketly.tickets.checked_in"),
			Enabled:      getEnvBool("KAFKA_ENABLED", false),
		},
		Scanner: ScannerConfig{
			QRSecret:          getEnv("QR_SECRET_KEY", ""),
			LookupTimeout:     getEnvMillis("LOOKUP_TIMEOUT_MS", 3*time.Second),
			CommitTimeout:     getEnvMillis("COMMIT_TIMEOUT_MS", 3*time.Second),
			RecentValidations: getEnvInt("RECENT_VALIDATIONS", 5),
			SessionIdleTTL:    time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 240)) * time.Minute,
		},
		Auth: AuthConfig{
			Mode:       strings.ToLower(getEnv("AUTH_MODE", "oidc")),
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
		},
		LogDir: getEnv("LOG_DIR", "logs"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed >= 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
