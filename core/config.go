package core

import (
	"os"
	"strconv"
	"time"
)

// Config holds every runtime tunable for the orchestration core. Zero
// value is invalid; always start from DefaultConfig().
type Config struct {
	MaxConcurrentTasksPerClient int
	MaxRetries                  int
	StepTimeout                 time.Duration
	PermissionTimeout           time.Duration
	AuditRetention              time.Duration
	HealthCheckInterval         time.Duration
	FailureThreshold            int
	RoutingCacheTTL             time.Duration
	RoutingConfidenceThreshold  float64
}

// DefaultConfig returns the orchestration core's default tuning.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentTasksPerClient: 5,
		MaxRetries:                  2,
		StepTimeout:                 30 * time.Second,
		PermissionTimeout:           5 * time.Minute,
		AuditRetention:              30 * 24 * time.Hour,
		HealthCheckInterval:         60 * time.Second,
		FailureThreshold:            3,
		RoutingCacheTTL:             5 * time.Minute,
		RoutingConfidenceThreshold:  0.7,
	}
}

// Option mutates a Config. Following the functional-options idiom lets
// cmd/agentcored compose configuration the same way core.Config does
// elsewhere in the corpus (WithName, WithPort, ...).
type Option func(*Config)

func WithMaxConcurrentTasks(n int) Option {
	return func(c *Config) { c.MaxConcurrentTasksPerClient = n }
}

func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

func WithStepTimeout(d time.Duration) Option {
	return func(c *Config) { c.StepTimeout = d }
}

func WithPermissionTimeout(d time.Duration) Option {
	return func(c *Config) { c.PermissionTimeout = d }
}

func WithAuditRetention(d time.Duration) Option {
	return func(c *Config) { c.AuditRetention = d }
}

func WithHealthCheckInterval(d time.Duration) Option {
	return func(c *Config) { c.HealthCheckInterval = d }
}

func WithFailureThreshold(n int) Option {
	return func(c *Config) { c.FailureThreshold = n }
}

func WithRoutingCacheTTL(d time.Duration) Option {
	return func(c *Config) { c.RoutingCacheTTL = d }
}

func WithRoutingConfidenceThreshold(v float64) Option {
	return func(c *Config) { c.RoutingConfidenceThreshold = v }
}

// NewConfig builds a Config from defaults plus the given options.
func NewConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadFromEnv overlays environment variables onto an existing Config,
// following the corpus's env-var-overlay convention (fsnotify-backed
// hot reload is out of scope here; this is a one-shot read at startup).
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("AGENTCORE_MAX_CONCURRENT_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxConcurrentTasksPerClient = n
		}
	}
	if v := os.Getenv("AGENTCORE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENTCORE_STEP_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.StepTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENTCORE_PERMISSION_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PermissionTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENTCORE_AUDIT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.AuditRetention = time.Duration(n) * 24 * time.Hour
		}
	}
	if v := os.Getenv("AGENTCORE_HEALTH_CHECK_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HealthCheckInterval = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENTCORE_FAILURE_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.FailureThreshold = n
		}
	}
	if v := os.Getenv("AGENTCORE_ROUTING_CACHE_TTL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RoutingCacheTTL = time.Duration(n) * time.Millisecond
		}
	}
	if v := os.Getenv("AGENTCORE_ROUTING_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RoutingConfidenceThreshold = f
		}
	}
}
