package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Oracle       OracleConfig
	Pipeline     PipelineConfig
	SLA          SLAConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines worker authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// OracleConfig points at the external decision oracle.
type OracleConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// PipelineConfig tunes the per-issue decision pipeline.
type PipelineConfig struct {
	DuplicateRadiusMeters float64
	SimilarityThreshold   float64
	EventQueueSize        int
	FlowSubscriberBuffer  int
	FlowHeartbeatSeconds  int
}

// SLAConfig tunes time supervision and escalation.
type SLAConfig struct {
	SweepIntervalSeconds int
	WarnEverySweep       bool
	CriticalHours        int
	HighHours            int
	MediumHours          int
	LowHours             int
}

// NotificationConfig holds outbound notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	radius, err := strconv.ParseFloat(getEnv("DUPLICATE_RADIUS_METERS", "50"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DUPLICATE_RADIUS_METERS: %w", err)
	}
	threshold, err := strconv.ParseFloat(getEnv("SIMILARITY_THRESHOLD", "0.75"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SIMILARITY_THRESHOLD: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "civic-issue-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Oracle: OracleConfig{
			BaseURL:        getEnv("ORACLE_BASE_URL", ""),
			TimeoutSeconds: getEnvAsInt("ORACLE_TIMEOUT_SECONDS", 20),
		},
		Pipeline: PipelineConfig{
			DuplicateRadiusMeters: radius,
			SimilarityThreshold:   threshold,
			EventQueueSize:        getEnvAsInt("EVENT_QUEUE_SIZE", 1024),
			FlowSubscriberBuffer:  getEnvAsInt("FLOW_SUBSCRIBER_BUFFER", 64),
			FlowHeartbeatSeconds:  getEnvAsInt("FLOW_HEARTBEAT_SECONDS", 30),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds: getEnvAsInt("SWEEP_INTERVAL_SECONDS", 900),
			WarnEverySweep:       getEnvAsBool("SLA_WARN_EVERY_SWEEP", false),
			CriticalHours:        getEnvAsInt("SLA_CRITICAL_HOURS", 4),
			HighHours:            getEnvAsInt("SLA_HIGH_HOURS", 12),
			MediumHours:          getEnvAsInt("SLA_MEDIUM_HOURS", 48),
			LowHours:             getEnvAsInt("SLA_LOW_HOURS", 168),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the SLA sweep cadence.
func (s SLAConfig) SweepInterval() time.Duration {
	if s.SweepIntervalSeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// HoursForPriority maps a priority to baseline SLA hours.
func (s SLAConfig) HoursForPriority(priority int) int {
	switch priority {
	case 1:
		return s.CriticalHours
	case 2:
		return s.HighHours
	case 3:
		return s.MediumHours
	case 4:
		return s.LowHours
	default:
		return s.MediumHours
	}
}

// Timeout returns the oracle request timeout.
func (o OracleConfig) Timeout() time.Duration {
	if o.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// Heartbeat returns the flow stream heartbeat interval.
func (p PipelineConfig) Heartbeat() time.Duration {
	if p.FlowHeartbeatSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(p.FlowHeartbeatSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
