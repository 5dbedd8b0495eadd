package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces every environment variable read by LoadFromEnv
const EnvPrefix = "SUPPORTCHAT_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Matching  *MatchingConfig  `json:"matching"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
}

// FUNCTIONAL DISCOVERY: The ledger is optional; matching never depends on it
type DatabaseConfig struct {
	Enabled        bool          `json:"enabled"`
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MaxConnections int           `json:"max_connections"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig bounds each client connection
type WebSocketConfig struct {
	PingInterval  time.Duration `json:"ping_interval"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	BufferSize    int           `json:"buffer_size"`
	MaxFrameBytes int64         `json:"max_frame_bytes"`
}

// MatchingConfig holds the per-room limits
type MatchingConfig struct {
	MaxQueueSize      int `json:"max_queue_size"`
	MaxIdentityLength int `json:"max_identity_length"`
}

// RateLimitConfig selects the relay limiter; an empty RedisURL keeps it in memory
type RateLimitConfig struct {
	MessagesPerMinute int    `json:"messages_per_minute"`
	RedisURL          string `json:"redis_url"`
	KeyPrefix         string `json:"key_prefix"`
}

// Addr is the listen address for the HTTP server
func (h *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// FUNCTIONAL DISCOVERY: Production-ready defaults; local SQLite ledger,
// standard port, 30s websocket heartbeat, in-memory rate limiting
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Enabled:        true,
			Path:           "./supportchat.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:  30 * time.Second,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  10 * time.Second,
			BufferSize:    100,
			MaxFrameBytes: 131072,
		},
		Matching: &MatchingConfig{
			MaxQueueSize:      50,
			MaxIdentityLength: 100,
		},
		RateLimit: &RateLimitConfig{
			MessagesPerMinute: 100,
			RedisURL:          "",
			KeyPrefix:         "supportchat:ratelimit:",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Enabled {
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
		if c.Database.Timeout <= 0 {
			return fmt.Errorf("database timeout must be positive")
		}
		if c.Database.MaxConnections <= 0 {
			return fmt.Errorf("database max connections must be positive")
		}
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	// TECHNICAL DISCOVERY: A ping must land before the peer's read deadline expires
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxFrameBytes <= 0 {
		return fmt.Errorf("WebSocket max frame bytes must be positive")
	}

	if c.Matching == nil {
		return fmt.Errorf("matching configuration is required")
	}
	if c.Matching.MaxQueueSize <= 0 {
		return fmt.Errorf("max queue size must be positive")
	}
	if c.Matching.MaxIdentityLength <= 0 {
		return fmt.Errorf("max identity length must be positive")
	}

	if c.RateLimit == nil {
		return fmt.Errorf("rate limit configuration is required")
	}
	if c.RateLimit.MessagesPerMinute <= 0 {
		return fmt.Errorf("messages per minute must be positive")
	}
	if c.RateLimit.RedisURL != "" && c.RateLimit.KeyPrefix == "" {
		return fmt.Errorf("rate limit key prefix is required with a Redis URL")
	}

	return nil
}

// LoadDotEnv loads a .env file into the process environment without
// overriding variables that are already set; a missing file is not an error
func LoadDotEnv(filenames ...string) error {
	if len(filenames) == 0 {
		filenames = []string{".env"}
	}
	for _, name := range filenames {
		if err := godotenv.Load(name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", name, err)
		}
		log.Printf("Loaded environment from %s", name)
	}
	return nil
}

// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
// Supports containerized deployments and configuration management systems
func LoadFromEnv() *Config {
	config := DefaultConfig()

	envString("DATABASE_PATH", &config.Database.Path)
	envBool("DATABASE_ENABLED", &config.Database.Enabled)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)
	envInt("DATABASE_MAX_CONNECTIONS", &config.Database.MaxConnections)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	envInt64("WEBSOCKET_MAX_FRAME_BYTES", &config.WebSocket.MaxFrameBytes)

	// FUNCTIONAL DISCOVERY: Bare MAX_QUEUE_SIZE is honoured for existing deployments;
	// the prefixed name wins when both are set
	if v := os.Getenv("MAX_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Matching.MaxQueueSize = n
		}
	}
	envInt("MATCHING_MAX_QUEUE_SIZE", &config.Matching.MaxQueueSize)
	envInt("MATCHING_MAX_IDENTITY_LENGTH", &config.Matching.MaxIdentityLength)

	envInt("RATE_LIMIT_MESSAGES_PER_MINUTE", &config.RateLimit.MessagesPerMinute)
	envString("RATE_LIMIT_REDIS_URL", &config.RateLimit.RedisURL)
	envString("RATE_LIMIT_KEY_PREFIX", &config.RateLimit.KeyPrefix)

	return config
}

// Environment helpers leave the target untouched when the variable is unset or unparsable

func envString(name string, target *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*target = v
	}
}

func envInt(name string, target *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func envInt64(name string, target *int64) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = n
		}
	}
}

func envBool(name string, target *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*target = b
		}
	}
}

func envDuration(name string, target *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings;
// pointer fields distinguish "absent" from zero values
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Matching  *MatchingConfigFile  `json:"matching"`
	RateLimit *RateLimitConfigFile `json:"rate_limit"`
}

type DatabaseConfigFile struct {
	Enabled        *bool  `json:"enabled"`
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval  string `json:"ping_interval"`
	ReadTimeout   string `json:"read_timeout"`
	WriteTimeout  string `json:"write_timeout"`
	BufferSize    int    `json:"buffer_size"`
	MaxFrameBytes int64  `json:"max_frame_bytes"`
}

type MatchingConfigFile struct {
	MaxQueueSize      int `json:"max_queue_size"`
	MaxIdentityLength int `json:"max_identity_length"`
}

type RateLimitConfigFile struct {
	MessagesPerMinute int    `json:"messages_per_minute"`
	RedisURL          string `json:"redis_url"`
	KeyPrefix         string `json:"key_prefix"`
}

// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment scenarios
// JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	return loadFileOver(DefaultConfig(), filepath)
}

// loadFileOver overlays the values present in the file onto base
func loadFileOver(base *Config, filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := base
	if err := configFile.applyTo(config); err != nil {
		return nil, fmt.Errorf("invalid value in %s: %w", filepath, err)
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func (f *ConfigFile) applyTo(config *Config) error {
	if db := f.Database; db != nil {
		if db.Enabled != nil {
			config.Database.Enabled = *db.Enabled
		}
		if db.Path != "" {
			config.Database.Path = db.Path
		}
		if db.MaxConnections > 0 {
			config.Database.MaxConnections = db.MaxConnections
		}
		if err := parseDuration(db.Timeout, &config.Database.Timeout); err != nil {
			return fmt.Errorf("database.timeout: %w", err)
		}
	}

	if h := f.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		if h.Host != "" {
			config.HTTP.Host = h.Host
		}
		if err := parseDuration(h.ReadTimeout, &config.HTTP.ReadTimeout); err != nil {
			return fmt.Errorf("http.read_timeout: %w", err)
		}
		if err := parseDuration(h.WriteTimeout, &config.HTTP.WriteTimeout); err != nil {
			return fmt.Errorf("http.write_timeout: %w", err)
		}
	}

	if ws := f.WebSocket; ws != nil {
		if ws.BufferSize > 0 {
			config.WebSocket.BufferSize = ws.BufferSize
		}
		if ws.MaxFrameBytes > 0 {
			config.WebSocket.MaxFrameBytes = ws.MaxFrameBytes
		}
		if err := parseDuration(ws.PingInterval, &config.WebSocket.PingInterval); err != nil {
			return fmt.Errorf("websocket.ping_interval: %w", err)
		}
		if err := parseDuration(ws.ReadTimeout, &config.WebSocket.ReadTimeout); err != nil {
			return fmt.Errorf("websocket.read_timeout: %w", err)
		}
		if err := parseDuration(ws.WriteTimeout, &config.WebSocket.WriteTimeout); err != nil {
			return fmt.Errorf("websocket.write_timeout: %w", err)
		}
	}

	if m := f.Matching; m != nil {
		if m.MaxQueueSize > 0 {
			config.Matching.MaxQueueSize = m.MaxQueueSize
		}
		if m.MaxIdentityLength > 0 {
			config.Matching.MaxIdentityLength = m.MaxIdentityLength
		}
	}

	if rl := f.RateLimit; rl != nil {
		if rl.MessagesPerMinute > 0 {
			config.RateLimit.MessagesPerMinute = rl.MessagesPerMinute
		}
		if rl.RedisURL != "" {
			config.RateLimit.RedisURL = rl.RedisURL
		}
		if rl.KeyPrefix != "" {
			config.RateLimit.KeyPrefix = rl.KeyPrefix
		}
	}

	return nil
}

func parseDuration(value string, target *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*target = d
	return nil
}

// FUNCTIONAL DISCOVERY: Configuration precedence: file > environment (.env included) > defaults
// Enables flexible deployment patterns while maintaining sane defaults
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	config := LoadFromEnv()

	if filepath != "" {
		fileConfig, err := loadFileOver(config, filepath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
