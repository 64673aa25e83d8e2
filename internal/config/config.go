package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds daemon-wide configuration settings.
type ServerConfig struct {
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Auth        AuthConfig        `yaml:"auth"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// RateLimitConfig holds rate limiting settings for failed auth attempts.
type RateLimitConfig struct {
	// MaxAttempts is the maximum failed auth attempts before lockout.
	MaxAttempts int `yaml:"max_attempts"`

	// LockoutSeconds is the initial lockout duration in seconds.
	LockoutSeconds int `yaml:"lockout_seconds"`

	// MaxLockoutSeconds is the maximum lockout duration (for exponential backoff).
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`
}

// AuthConfig holds HTTP basic auth settings for the API.
type AuthConfig struct {
	// Username expected in the Authorization header.
	Username string `yaml:"username"`

	// PasswordHash is the bcrypt hash of the shared password.
	// An empty hash disables authentication.
	PasswordHash string `yaml:"password_hash"`
}

// Enabled reports whether basic auth is configured.
func (c *AuthConfig) Enabled() bool {
	return c.PasswordHash != ""
}

// ConnectionsConfig holds connection limit settings.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent WebSocket connections allowed
	// from a single IP address. 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent WebSocket connections.
	// 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// ArchiveConfig holds artifact packaging settings.
type ArchiveConfig struct {
	// Disabled turns off zip packaging. Each artifact is then offered
	// as its own individually named download.
	Disabled bool `yaml:"disabled"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns a ServerConfig with secure defaults.
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		WebSocket: WebSocketConfig{
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 4096,
		},
		Auth: AuthConfig{
			Username: "mazeforge",
		},
		Connections: ConnectionsConfig{
			MaxPerIP: 4,  // Default: 4 connections per IP
			MaxTotal: 64, // Default: 64 total connections
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:       5,   // Default: 5 attempts before lockout
			LockoutSeconds:    30,  // Default: 30 second initial lockout
			MaxLockoutSeconds: 300, // Default: 5 minute max lockout
		},
		Archive: ArchiveConfig{
			Disabled: false,
		},
	}
}

// LoadConfig loads server configuration from a YAML file and applies
// environment variable overrides.
// If the file doesn't exist or can't be parsed, returns default config.
func LoadConfig(path string) (*ServerConfig, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(config)
			return config, nil // Use defaults if file doesn't exist
		}
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		config = DefaultConfig()
		applyEnvOverrides(config)
		return config, err
	}

	applyEnvOverrides(config)
	return config, nil
}

// applyEnvOverrides applies environment variable overrides for the
// common deploy knobs.
func applyEnvOverrides(config *ServerConfig) {
	if user := os.Getenv("MAZEFORGE_AUTH_USERNAME"); user != "" {
		config.Auth.Username = user
	}

	if hash := os.Getenv("MAZEFORGE_AUTH_PASSWORD_HASH"); hash != "" {
		config.Auth.PasswordHash = hash
	}

	if origins := os.Getenv("MAZEFORGE_ALLOWED_ORIGINS"); origins != "" {
		var parsed []string
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		config.WebSocket.AllowedOrigins = parsed
	}

	if disabled := os.Getenv("MAZEFORGE_ARCHIVE_DISABLED"); disabled != "" {
		if parsed, err := strconv.ParseBool(disabled); err == nil {
			config.Archive.Disabled = parsed
		}
	}
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	// If no origins configured, enforce same-origin policy
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		// Wildcard allows all origins
		if allowed == "*" {
			return true
		}
		// Exact match
		if allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	// Remove trailing slash if present
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
