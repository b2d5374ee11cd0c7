package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Auth     *AuthConfig     `json:"auth"`
	Realtime *RealtimeConfig `json:"realtime"`
	Notify   *NotifyConfig   `json:"notify"`
	History  *HistoryConfig  `json:"history"`
}

// AuthConfig drives credential exchange and silent token renewal
type AuthConfig struct {
	BaseURL     string        `json:"base_url"`
	RenewalSkew time.Duration `json:"renewal_skew"`
	HTTPTimeout time.Duration `json:"http_timeout"`
}

// RealtimeConfig drives the push connection and its recovery behavior
// FUNCTIONAL DISCOVERY: Heartbeat interval doubles as the liveness timeout -
// no inbound traffic within one interval is treated as connection failure
type RealtimeConfig struct {
	URL                  string        `json:"url"`
	HandshakeTimeout     time.Duration `json:"handshake_timeout"`
	HeartbeatInterval    time.Duration `json:"heartbeat_interval"`
	ReconnectBaseDelay   time.Duration `json:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `json:"reconnect_max_delay"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	HealthPollInterval   time.Duration `json:"health_poll_interval"`
}

// NotifyConfig bounds the in-memory notification history
type NotifyConfig struct {
	MaxHistory int `json:"max_history"`
}

// HistoryConfig points at the SQLite notification archive
type HistoryConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns production-ready defaults
// FUNCTIONAL DISCOVERY: 90s renewal skew avoids tokens expiring mid-request;
// 4s bidirectional heartbeat detects half-open sockets within one interval;
// backoff 1s base doubling to a 30s cap over at most 5 attempts
func DefaultConfig() *Config {
	return &Config{
		Auth: &AuthConfig{
			BaseURL:     "http://localhost:8080",
			RenewalSkew: 90 * time.Second,
			HTTPTimeout: 15 * time.Second,
		},
		Realtime: &RealtimeConfig{
			URL:                  "ws://localhost:8080/ws",
			HandshakeTimeout:     10 * time.Second,
			HeartbeatInterval:    4 * time.Second,
			ReconnectBaseDelay:   time.Second,
			ReconnectMaxDelay:    30 * time.Second,
			MaxReconnectAttempts: 5,
			HealthPollInterval:   5 * time.Second,
		},
		Notify: &NotifyConfig{
			MaxHistory: 50,
		},
		History: &HistoryConfig{
			Path:    "./studyhall.db",
			Timeout: 30 * time.Second,
		},
	}
}

// Validate prevents invalid system configurations from reaching components
// FUNCTIONAL DISCOVERY: Comprehensive validation prevents runtime failures
// deep inside the reconnect path where they are hard to diagnose
func (c *Config) Validate() error {
	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Auth.BaseURL == "" {
		return fmt.Errorf("auth base URL cannot be empty")
	}

	if c.Auth.RenewalSkew <= 0 {
		return fmt.Errorf("auth renewal skew must be positive")
	}

	if c.Auth.HTTPTimeout <= 0 {
		return fmt.Errorf("auth HTTP timeout must be positive")
	}

	if c.Realtime == nil {
		return fmt.Errorf("realtime configuration is required")
	}

	if c.Realtime.URL == "" {
		return fmt.Errorf("realtime URL cannot be empty")
	}

	if c.Realtime.HandshakeTimeout <= 0 {
		return fmt.Errorf("realtime handshake timeout must be positive")
	}

	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("realtime heartbeat interval must be positive")
	}

	if c.Realtime.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect base delay must be positive")
	}

	if c.Realtime.ReconnectMaxDelay < c.Realtime.ReconnectBaseDelay {
		return fmt.Errorf("reconnect max delay cannot be below base delay")
	}

	if c.Realtime.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("max reconnect attempts must be positive")
	}

	if c.Realtime.HealthPollInterval <= 0 {
		return fmt.Errorf("health poll interval must be positive")
	}

	if c.Notify == nil {
		return fmt.Errorf("notify configuration is required")
	}

	if c.Notify.MaxHistory <= 0 {
		return fmt.Errorf("notification history bound must be positive")
	}

	if c.History == nil {
		return fmt.Errorf("history configuration is required")
	}

	if c.History.Path == "" {
		return fmt.Errorf("history database path cannot be empty")
	}

	if c.History.Timeout <= 0 {
		return fmt.Errorf("history database timeout must be positive")
	}

	return nil
}

// LoadFromEnv applies environment variable overrides on top of defaults
// FUNCTIONAL DISCOVERY: Environment variables override defaults with fallback,
// supporting containerized deployments and configuration management systems
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if baseURL := os.Getenv("STUDYHALL_AUTH_BASE_URL"); baseURL != "" {
		config.Auth.BaseURL = baseURL
	}

	if skew := os.Getenv("STUDYHALL_AUTH_RENEWAL_SKEW"); skew != "" {
		if d, err := time.ParseDuration(skew); err == nil {
			config.Auth.RenewalSkew = d
		}
	}

	if timeout := os.Getenv("STUDYHALL_AUTH_HTTP_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Auth.HTTPTimeout = d
		}
	}

	if url := os.Getenv("STUDYHALL_REALTIME_URL"); url != "" {
		config.Realtime.URL = url
	}

	if timeout := os.Getenv("STUDYHALL_REALTIME_HANDSHAKE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Realtime.HandshakeTimeout = d
		}
	}

	if interval := os.Getenv("STUDYHALL_REALTIME_HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Realtime.HeartbeatInterval = d
		}
	}

	if delay := os.Getenv("STUDYHALL_REALTIME_RECONNECT_BASE_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Realtime.ReconnectBaseDelay = d
		}
	}

	if delay := os.Getenv("STUDYHALL_REALTIME_RECONNECT_MAX_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Realtime.ReconnectMaxDelay = d
		}
	}

	if attempts := os.Getenv("STUDYHALL_REALTIME_MAX_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Realtime.MaxReconnectAttempts = n
		}
	}

	if interval := os.Getenv("STUDYHALL_REALTIME_HEALTH_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Realtime.HealthPollInterval = d
		}
	}

	if maxHistory := os.Getenv("STUDYHALL_NOTIFY_MAX_HISTORY"); maxHistory != "" {
		if n, err := strconv.Atoi(maxHistory); err == nil {
			config.Notify.MaxHistory = n
		}
	}

	if path := os.Getenv("STUDYHALL_HISTORY_PATH"); path != "" {
		config.History.Path = path
	}

	if timeout := os.Getenv("STUDYHALL_HISTORY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.History.Timeout = d
		}
	}

	return config
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Auth     *AuthConfigFile     `json:"auth"`
	Realtime *RealtimeConfigFile `json:"realtime"`
	Notify   *NotifyConfigFile   `json:"notify"`
	History  *HistoryConfigFile  `json:"history"`
}

type AuthConfigFile struct {
	BaseURL     string `json:"base_url"`
	RenewalSkew string `json:"renewal_skew"`
	HTTPTimeout string `json:"http_timeout"`
}

type RealtimeConfigFile struct {
	URL                  string `json:"url"`
	HandshakeTimeout     string `json:"handshake_timeout"`
	HeartbeatInterval    string `json:"heartbeat_interval"`
	ReconnectBaseDelay   string `json:"reconnect_base_delay"`
	ReconnectMaxDelay    string `json:"reconnect_max_delay"`
	MaxReconnectAttempts int    `json:"max_reconnect_attempts"`
	HealthPollInterval   string `json:"health_poll_interval"`
}

type NotifyConfigFile struct {
	MaxHistory int `json:"max_history"`
}

type HistoryConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

// LoadFromFile reads JSON configuration with duration-string parsing
// FUNCTIONAL DISCOVERY: File-based configuration supports complex deployment
// scenarios; JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	// Convert to runtime config with duration parsing
	config := DefaultConfig()

	if configFile.Auth != nil {
		if configFile.Auth.BaseURL != "" {
			config.Auth.BaseURL = configFile.Auth.BaseURL
		}
		if configFile.Auth.RenewalSkew != "" {
			if d, err := time.ParseDuration(configFile.Auth.RenewalSkew); err == nil {
				config.Auth.RenewalSkew = d
			}
		}
		if configFile.Auth.HTTPTimeout != "" {
			if d, err := time.ParseDuration(configFile.Auth.HTTPTimeout); err == nil {
				config.Auth.HTTPTimeout = d
			}
		}
	}

	if configFile.Realtime != nil {
		if configFile.Realtime.URL != "" {
			config.Realtime.URL = configFile.Realtime.URL
		}
		if configFile.Realtime.HandshakeTimeout != "" {
			if d, err := time.ParseDuration(configFile.Realtime.HandshakeTimeout); err == nil {
				config.Realtime.HandshakeTimeout = d
			}
		}
		if configFile.Realtime.HeartbeatInterval != "" {
			if d, err := time.ParseDuration(configFile.Realtime.HeartbeatInterval); err == nil {
				config.Realtime.HeartbeatInterval = d
			}
		}
		if configFile.Realtime.ReconnectBaseDelay != "" {
			if d, err := time.ParseDuration(configFile.Realtime.ReconnectBaseDelay); err == nil {
				config.Realtime.ReconnectBaseDelay = d
			}
		}
		if configFile.Realtime.ReconnectMaxDelay != "" {
			if d, err := time.ParseDuration(configFile.Realtime.ReconnectMaxDelay); err == nil {
				config.Realtime.ReconnectMaxDelay = d
			}
		}
		if configFile.Realtime.MaxReconnectAttempts > 0 {
			config.Realtime.MaxReconnectAttempts = configFile.Realtime.MaxReconnectAttempts
		}
		if configFile.Realtime.HealthPollInterval != "" {
			if d, err := time.ParseDuration(configFile.Realtime.HealthPollInterval); err == nil {
				config.Realtime.HealthPollInterval = d
			}
		}
	}

	if configFile.Notify != nil {
		if configFile.Notify.MaxHistory > 0 {
			config.Notify.MaxHistory = configFile.Notify.MaxHistory
		}
	}

	if configFile.History != nil {
		if configFile.History.Path != "" {
			config.History.Path = configFile.History.Path
		}
		if configFile.History.Timeout != "" {
			if d, err := time.ParseDuration(configFile.History.Timeout); err == nil {
				config.History.Timeout = d
			}
		}
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment > defaults
// FUNCTIONAL DISCOVERY: Precedence order enables flexible deployment patterns
// while maintaining sane defaults
func LoadConfigWithPrecedence(filepath string) *Config {
	// Start with defaults, then environment overrides
	config := LoadFromEnv()

	// Override with file if provided and readable
	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
