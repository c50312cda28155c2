package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SYNC"

// defaults also registers every key that may be overridden from the
// environment; viper only binds env vars for keys it already knows.
var defaults = map[string]any{
	"app.name": "sync-engine",
	"app.env":  "development",
	"app.port": "8080",

	"database.host":               "localhost",
	"database.port":               5432,
	"database.user":               "postgres",
	"database.password":           "",
	"database.dbname":             "sync",
	"database.sslmode":            "disable",
	"database.max_open_conns":     25,
	"database.max_idle_conns":     5,
	"database.conn_max_lifetime":  5,
	"database.conn_max_idle_time": 3,

	"redis.host":     "localhost",
	"redis.port":     6379,
	"redis.password": "",
	"redis.db":       0,

	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"http.read_timeout":        30 * time.Second,
	"http.write_timeout":       2 * time.Minute, // exports
	"http.idle_timeout":        2 * time.Minute,
	"http.max_header_bytes":    1 << 20,
	"http.max_body_size":       int64(10 << 20),
	"http.rate_limit_enabled":  false,
	"http.rate_limit_requests": 100,
	"http.rate_limit_window":   time.Minute,
	"http.cors_allow_origins":  []string{},
	"http.cors_allow_methods":  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
	"http.cors_allow_headers":  []string{"Content-Type", "Authorization", "X-Request-ID", "X-Tenant-ID"},
	"http.trusted_proxies":     []string{},

	"sync.sub_chunk_size":      50,
	"sync.throttle_every":      10,
	"sync.throttle_delay":      500 * time.Millisecond,
	"sync.cooldown":            5 * time.Minute,
	"sync.dedupe_window":       30 * time.Second,
	"sync.retry_policy":        RetryPolicyFlat,
	"sync.retry_window":        15 * time.Minute,
	"sync.in_progress_timeout": 30 * time.Minute,
	"sync.batch_job_timeout":   10 * time.Minute,
	"sync.single_job_timeout":  5 * time.Minute,
	"sync.batch_limit":         100,

	"scheduler.enabled":             false,
	"scheduler.max_concurrent_jobs": 4,
	"scheduler.queue_size":          1000,
	"scheduler.retry_attempts":      3,
	"scheduler.retry_delay":         30 * time.Second,
	"scheduler.history_size":        100,
	"scheduler.sweep_enabled":       false,
	"scheduler.sweep_interval":      5 * time.Minute,
	"scheduler.sweep_lock_ttl":      4 * time.Minute,

	"rate_limit.backend":  RateLimitBackendMemory,
	"rate_limit.max_wait": 2 * time.Minute,

	"queue.backend":       QueueBackendMemory,
	"queue.stream":        "sync:jobs",
	"queue.group":         "sync-workers",
	"queue.consumer":      "", // app name
	"queue.block_timeout": 5 * time.Second,
	"queue.max_len":       int64(100000),

	"kafka.enabled":       false,
	"kafka.brokers":       []string{},
	"kafka.topic":         "sync.outcomes",
	"kafka.client_id":     "", // app name
	"kafka.write_timeout": 10 * time.Second,
	"kafka.batch_size":    100,

	"analytics.cache_backend":           "memory",
	"analytics.cache_ttl":               5 * time.Minute,
	"analytics.stale_in_progress_after": 30 * time.Minute,
	"analytics.backlog_warning":         int64(1000),
	"analytics.backlog_critical":        int64(10000),

	"export.max_rows":             50000,
	"export.s3.enabled":           false,
	"export.s3.bucket":            "",
	"export.s3.region":            "us-east-1",
	"export.s3.endpoint":          "",
	"export.s3.prefix":            "exports/",
	"export.s3.access_key_id":     "",
	"export.s3.secret_access_key": "",
	"export.s3.use_path_style":    false,

	"telemetry.enabled":                 false,
	"telemetry.collector_endpoint":      "localhost:4317",
	"telemetry.sampling_ratio":          1.0,
	"telemetry.service_name":            "", // app name
	"telemetry.insecure":                false,
	"telemetry.logs_enabled":            false,
	"telemetry.metrics_interval":        time.Minute,
	"telemetry.db_trace_enabled":        false,
	"telemetry.db_log_full_sql":         false,
	"telemetry.db_slow_query_threshold": 200 * time.Millisecond,
	"telemetry.profiling_enabled":       false,
	"telemetry.pyroscope_address":       "http://localhost:4040",
}

// destination entries come from config.toml tables, so their defaults are
// filled per entry after decoding
var destinationDefaults = DestinationConfig{
	Timeout:         30 * time.Second,
	BreakerFailures: 5,
	BreakerTimeout:  time.Minute,
}

// Load resolves configuration from, highest precedence first, SYNC_*
// environment variables (SYNC_DATABASE_PASSWORD for database.password),
// config.toml in ., ./config or /app, and the built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")
	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.fillDerived()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fillDerived() {
	for _, name := range []*string{&c.Queue.Consumer, &c.Kafka.ClientID, &c.Telemetry.ServiceName} {
		if *name == "" {
			*name = c.App.Name
		}
	}
	for key, d := range c.Destinations {
		if d.Timeout == 0 {
			d.Timeout = destinationDefaults.Timeout
		}
		if d.BreakerFailures == 0 {
			d.BreakerFailures = destinationDefaults.BreakerFailures
		}
		if d.BreakerTimeout == 0 {
			d.BreakerTimeout = destinationDefaults.BreakerTimeout
		}
		c.Destinations[key] = d
	}
}

func oneOf(key, got string, allowed ...string) error {
	if slices.Contains(allowed, got) {
		return nil
	}
	return fmt.Errorf("%s must be one of %q, got %q", key, allowed, got)
}

// validate reports every problem at once
func (c *Config) validate() error {
	var errs []error
	check := func(bad bool, format string, args ...any) {
		if bad {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	db := c.Database
	check(db.MaxOpenConns <= 0, "database.max_open_conns must be positive")
	check(db.MaxIdleConns < 0, "database.max_idle_conns must not be negative")
	check(db.MaxIdleConns > db.MaxOpenConns,
		"database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)", db.MaxIdleConns, db.MaxOpenConns)

	errs = append(errs,
		oneOf("sync.retry_policy", c.Sync.RetryPolicy, RetryPolicyFlat, RetryPolicyExponential),
		oneOf("rate_limit.backend", c.RateLimit.Backend, RateLimitBackendMemory, RateLimitBackendRedis),
		oneOf("queue.backend", c.Queue.Backend, QueueBackendMemory, QueueBackendRedis),
	)
	check(c.Sync.SubChunkSize < 0 || c.Sync.ThrottleEvery < 0, "sync.sub_chunk_size and sync.throttle_every must not be negative")
	check(c.Scheduler.MaxConcurrentJobs < 0, "scheduler.max_concurrent_jobs must not be negative")

	for i, l := range c.RateLimit.Limits {
		check(l.Destination == "" || l.Operation == "", "rate_limit.limits[%d]: destination and operation are required", i)
		check(l.Rate <= 0 || l.Burst <= 0, "rate_limit.limits[%d]: rate and burst must be positive", i)
	}
	for name, d := range c.Destinations {
		if _, err := url.ParseRequestURI(d.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("destinations.%s.base_url: %w", name, err))
		}
	}

	check(c.Kafka.Enabled && len(c.Kafka.Brokers) == 0, "kafka.brokers is required when kafka is enabled")
	check(c.Analytics.BacklogWarning > c.Analytics.BacklogCritical,
		"analytics.backlog_warning (%d) cannot exceed analytics.backlog_critical (%d)",
		c.Analytics.BacklogWarning, c.Analytics.BacklogCritical)
	check(c.Export.S3.Enabled && c.Export.S3.Bucket == "", "export.s3.bucket is required when the export archive is enabled")
	check(c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1,
		"telemetry.sampling_ratio must be within [0, 1], got %g", c.Telemetry.SamplingRatio)

	if c.App.Env == "production" {
		check(db.Password == "", "database.password is required in production")
		check(db.SSLMode == "disable", "database.sslmode cannot be 'disable' in production")
		check(slices.Contains(c.HTTP.CORSAllowOrigins, "*"), "http.cors_allow_origins cannot contain '*' in production")
		check(c.Telemetry.DBLogFullSQL, "telemetry.db_log_full_sql must be false in production")
	}

	return errors.Join(errs...)
}
