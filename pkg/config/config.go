package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

type SignalConfig struct {
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxChatLength  int           `yaml:"max_chat_length"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type WebRTCConfig struct {
	ICEServers []ICEServer `yaml:"ice_servers"`
}

type DJConfig struct {
	AllowViewerRequests bool          `yaml:"allow_viewer_requests"`
	MaxQueueSize        int           `yaml:"max_queue_size"`
	VotingEnabled       bool          `yaml:"voting_enabled"`
	AutoPlay            bool          `yaml:"auto_play"`
	LockTTL             time.Duration `yaml:"lock_ttl"`
	LockTimeout         time.Duration `yaml:"lock_timeout"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
	SessionTTL          time.Duration `yaml:"session_ttl"`
}

type PersistenceConfig struct {
	Retry struct {
		Enabled      bool          `yaml:"enabled"`
		MaxAttempts  int           `yaml:"max_attempts"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
	} `yaml:"retry"`
	CircuitBreaker struct {
		FailureThreshold    int           `yaml:"failure_threshold"`
		SuccessThreshold    int           `yaml:"success_threshold"`
		Timeout             time.Duration `yaml:"timeout"`
		MaxRequestsHalfOpen int           `yaml:"max_requests_half_open"`
	} `yaml:"circuit_breaker"`
}

type ActivityConfig struct {
	Sink          string        `yaml:"sink"` // zap | redis
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	StreamKey     string        `yaml:"stream_key"`
	StreamMaxLen  int64         `yaml:"stream_max_len"`
}

// BackupConfig controls periodic DJ session snapshots to local files.
type BackupConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Directory string        `yaml:"directory"`
	Interval  time.Duration `yaml:"interval"`
	Keep      int           `yaml:"keep"`
	// RestoreOnStart loads the newest snapshot into the session store
	// before serving.
	RestoreOnStart bool `yaml:"restore_on_start"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ServiceName    string  `yaml:"service_name"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	AllowTokenIssue bool          `yaml:"allow_token_issue"`
	RequireForWS    bool          `yaml:"require_for_websocket"`
}

type RateLimitingConfig struct {
	Enabled bool `yaml:"enabled"`

	HTTP struct {
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"http"`

	WebSocket struct {
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent_connections"`
	} `yaml:"websocket"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Signal       SignalConfig       `yaml:"signal"`
	WebRTC       WebRTCConfig       `yaml:"webrtc"`
	DJ           DJConfig           `yaml:"dj"`
	Persistence  PersistenceConfig  `yaml:"persistence"`
	Activity     ActivityConfig     `yaml:"activity"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Logging      LoggingConfig      `yaml:"logging"`
	Redis        RedisConfig        `yaml:"redis"`
	Auth         AuthConfig         `yaml:"auth"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server timeouts must be > 0")
	}

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be greater than signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.MaxMessageSize <= 0 {
		return fmt.Errorf("signal.max_message_size must be > 0")
	}
	if c.Signal.SendBuffer <= 0 {
		return fmt.Errorf("signal.send_buffer must be > 0")
	}
	if c.Signal.MaxChatLength <= 0 {
		return fmt.Errorf("signal.max_chat_length must be > 0")
	}

	for i, s := range c.WebRTC.ICEServers {
		if len(s.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}

	if c.DJ.MaxQueueSize < 1 {
		return fmt.Errorf("dj.max_queue_size must be >= 1")
	}
	if c.DJ.LockTTL <= 0 || c.DJ.LockTimeout <= 0 {
		return fmt.Errorf("dj.lock_ttl and dj.lock_timeout must be > 0")
	}
	if c.DJ.CacheTTL < 0 || c.DJ.SessionTTL < 0 {
		return fmt.Errorf("dj.cache_ttl and dj.session_ttl must be >= 0")
	}

	if c.Persistence.Retry.Enabled && c.Persistence.Retry.MaxAttempts < 1 {
		return fmt.Errorf("persistence.retry.max_attempts must be >= 1")
	}
	if c.Persistence.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("persistence.circuit_breaker.failure_threshold must be >= 1")
	}

	switch c.Activity.Sink {
	case "zap":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("activity.sink=redis requires redis.enabled=true")
		}
	default:
		return fmt.Errorf("activity.sink must be one of zap, redis; got %q", c.Activity.Sink)
	}
	if c.Activity.BatchSize < 1 || c.Activity.FlushInterval <= 0 {
		return fmt.Errorf("activity.batch_size and activity.flush_interval must be > 0")
	}

	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 || c.Backup.Keep < 1 {
			return fmt.Errorf("backup.interval must be > 0 and backup.keep >= 1")
		}
	}

	if c.Tracing.Enabled && c.Tracing.JaegerEndpoint == "" {
		return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing is enabled")
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 || c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http requires requests_per_second and burst > 0")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 || c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket requires messages_per_second and burst > 0")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 || c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting concurrency limits must be >= 0")
		}
	}

	return nil
}

// Find returns the first existing path, or "" when none exists.
func Find(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load reads configuration from a YAML file over the defaults, then applies
// env overrides and validates. A missing file means defaults only.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults applied before file and env.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Server.AllowedOrigins = []string{"*"}

	cfg.Signal.PingInterval = 25 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.MaxMessageSize = 64 * 1024
	cfg.Signal.SendBuffer = 256
	cfg.Signal.MaxChatLength = 500

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}

	cfg.DJ.AllowViewerRequests = true
	cfg.DJ.MaxQueueSize = 20
	cfg.DJ.VotingEnabled = true
	cfg.DJ.AutoPlay = true
	cfg.DJ.LockTTL = 5 * time.Second
	cfg.DJ.LockTimeout = 3 * time.Second
	cfg.DJ.CacheTTL = 2 * time.Second
	cfg.DJ.SessionTTL = 0

	cfg.Persistence.Retry.Enabled = true
	cfg.Persistence.Retry.MaxAttempts = 3
	cfg.Persistence.Retry.InitialDelay = 50 * time.Millisecond
	cfg.Persistence.Retry.MaxDelay = time.Second
	cfg.Persistence.Retry.Multiplier = 2.0
	cfg.Persistence.CircuitBreaker.FailureThreshold = 5
	cfg.Persistence.CircuitBreaker.SuccessThreshold = 2
	cfg.Persistence.CircuitBreaker.Timeout = 30 * time.Second
	cfg.Persistence.CircuitBreaker.MaxRequestsHalfOpen = 3

	cfg.Activity.Sink = "zap"
	cfg.Activity.BatchSize = 100
	cfg.Activity.FlushInterval = time.Second
	cfg.Activity.StreamKey = "activity"
	cfg.Activity.StreamMaxLen = 100000

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "data/backups"
	cfg.Backup.Interval = 5 * time.Minute
	cfg.Backup.Keep = 12
	cfg.Backup.RestoreOnStart = true

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "streamfy-signal"
	cfg.Tracing.JaegerEndpoint = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 0.1

	cfg.Logging.Level = "info"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.KeyPrefix = "streamfy:"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 24 * time.Hour
	cfg.Auth.AllowTokenIssue = false
	cfg.Auth.RequireForWS = false

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 20
	cfg.RateLimiting.WebSocket.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("STREAMFY_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("STREAMFY_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("STREAMFY_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("STREAMFY_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if v := os.Getenv("STREAMFY_REDIS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("STREAMFY_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = enabled
	}
	return nil
}
