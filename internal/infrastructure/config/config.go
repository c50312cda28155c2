// Package config loads the sync engine settings from config.toml and SYNC_*
// environment variables.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	App          AppConfig                    `mapstructure:"app"`
	Database     DatabaseConfig               `mapstructure:"database"`
	Redis        RedisConfig                  `mapstructure:"redis"`
	Log          LogConfig                    `mapstructure:"log"`
	HTTP         HTTPConfig                   `mapstructure:"http"`
	Sync         SyncConfig                   `mapstructure:"sync"`
	Scheduler    SchedulerConfig              `mapstructure:"scheduler"`
	RateLimit    RateLimitConfig              `mapstructure:"rate_limit"`
	Destinations map[string]DestinationConfig `mapstructure:"destinations"`
	Queue        QueueConfig                  `mapstructure:"queue"`
	Kafka        KafkaConfig                  `mapstructure:"kafka"`
	Analytics    AnalyticsConfig              `mapstructure:"analytics"`
	Export       ExportConfig                 `mapstructure:"export"`
	Telemetry    TelemetryConfig              `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"` // development, production, ...
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"`  // minutes
	ConnMaxIdleTime int `mapstructure:"conn_max_idle_time"` // minutes
}

// DSN renders a postgres:// URL; credentials are escaped
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type HTTPConfig struct {
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	MaxBodySize    int64         `mapstructure:"max_body_size"`

	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`

	CORSAllowOrigins []string `mapstructure:"cors_allow_origins"`
	CORSAllowMethods []string `mapstructure:"cors_allow_methods"`
	CORSAllowHeaders []string `mapstructure:"cors_allow_headers"`
	TrustedProxies   []string `mapstructure:"trusted_proxies"`
}

// Retry policies for failed sync records
const (
	RetryPolicyFlat        = "flat"
	RetryPolicyExponential = "exponential"
)

type SyncConfig struct {
	SubChunkSize  int           `mapstructure:"sub_chunk_size"` // records loaded per query inside a job
	ThrottleEvery int           `mapstructure:"throttle_every"`
	ThrottleDelay time.Duration `mapstructure:"throttle_delay"`
	Cooldown      time.Duration `mapstructure:"cooldown"`      // observers skip records attempted this recently
	DedupeWindow  time.Duration `mapstructure:"dedupe_window"` // repeated single-record dispatches are dropped

	RetryPolicy     string          `mapstructure:"retry_policy"`
	RetryWindow     time.Duration   `mapstructure:"retry_window"`     // flat
	BackoffSchedule []time.Duration `mapstructure:"backoff_schedule"` // exponential

	InProgressTimeout time.Duration `mapstructure:"in_progress_timeout"`
	BatchJobTimeout   time.Duration `mapstructure:"batch_job_timeout"`
	SingleJobTimeout  time.Duration `mapstructure:"single_job_timeout"`
	BatchLimit        int           `mapstructure:"batch_limit"`
}

type SchedulerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	QueueSize         int           `mapstructure:"queue_size"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	HistorySize       int           `mapstructure:"history_size"`

	SweepEnabled  bool          `mapstructure:"sweep_enabled"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepLockTTL  time.Duration `mapstructure:"sweep_lock_ttl"`
}

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

type RateLimitConfig struct {
	Backend string          `mapstructure:"backend"`
	MaxWait time.Duration   `mapstructure:"max_wait"`
	Limits  []RateLimitRule `mapstructure:"limits"`
}

// RateLimitRule is the token bucket of one destination operation
type RateLimitRule struct {
	Destination string  `mapstructure:"destination"`
	Operation   string  `mapstructure:"operation"`
	Rate        float64 `mapstructure:"rate"`
	Burst       int     `mapstructure:"burst"`
}

// DestinationConfig points a destination type at its gateway
type DestinationConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

type QueueConfig struct {
	Backend      string        `mapstructure:"backend"`
	Stream       string        `mapstructure:"stream"`
	Group        string        `mapstructure:"group"`
	Consumer     string        `mapstructure:"consumer"`
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	MaxLen       int64         `mapstructure:"max_len"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	ClientID     string        `mapstructure:"client_id"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type AnalyticsConfig struct {
	CacheBackend         string        `mapstructure:"cache_backend"` // memory or redis
	CacheTTL             time.Duration `mapstructure:"cache_ttl"`
	StaleInProgressAfter time.Duration `mapstructure:"stale_in_progress_after"`
	BacklogWarning       int64         `mapstructure:"backlog_warning"`
	BacklogCritical      int64         `mapstructure:"backlog_critical"`
}

type ExportConfig struct {
	MaxRows int      `mapstructure:"max_rows"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config is the optional archive bucket for exports
type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"` // S3-compatible stores
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

type TelemetryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	CollectorEndpoint string        `mapstructure:"collector_endpoint"` // OTLP gRPC
	SamplingRatio     float64       `mapstructure:"sampling_ratio"`
	ServiceName       string        `mapstructure:"service_name"`
	Insecure          bool          `mapstructure:"insecure"`
	LogsEnabled       bool          `mapstructure:"logs_enabled"`
	MetricsInterval   time.Duration `mapstructure:"metrics_interval"`

	DBTraceEnabled    bool          `mapstructure:"db_trace_enabled"`
	DBLogFullSQL      bool          `mapstructure:"db_log_full_sql"` // leaks parameters; refused in production
	DBSlowQueryThresh time.Duration `mapstructure:"db_slow_query_threshold"`

	ProfilingEnabled bool   `mapstructure:"profiling_enabled"`
	PyroscopeAddress string `mapstructure:"pyroscope_address"`
}
