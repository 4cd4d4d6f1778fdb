// ABOUTME: Configuration loading and parsing for tool-gateway
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, GATEWAY_* env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/2389/tool-gateway/internal/auth"
	"github.com/2389/tool-gateway/internal/authz"
)

// EnvPrefix prefixes every environment override, e.g. GATEWAY_SERVER_HTTP_ADDR.
const EnvPrefix = "GATEWAY_"

// PlaceholderSecret is the jwt_secret shipped in example configs. It never validates.
const PlaceholderSecret = "change-me-to-a-random-secret-of-32-bytes-or-more"

// Provider selections for auth.provider.
const (
	ProviderSigned = "signed"
	ProviderMemory = "memory"
	ProviderBoth   = "both"
)

// Token formats for auth.token_format.
const (
	TokenFormatRandom    = "random"
	TokenFormatTimestamp = "timestamp"
)

// Audit sinks for audit.sink.
const (
	AuditSinkStdout = "stdout"
	AuditSinkFile   = "file"
	AuditSinkStore  = "store"
)

// Config represents the complete tool-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" envPrefix:"SERVER_"`
	Database  DatabaseConfig  `yaml:"database" toml:"database" envPrefix:"DATABASE_"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth" envPrefix:"AUTH_"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache" envPrefix:"CACHE_"`
	Audit     AuditConfig     `yaml:"audit" toml:"audit" envPrefix:"AUDIT_"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools" envPrefix:"TOOLS_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging" envPrefix:"LOGGING_"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" envPrefix:"METRICS_"`
}

// ServerConfig holds the HTTP listener configuration
type ServerConfig struct {
	HTTPAddr    string   `yaml:"http_addr" toml:"http_addr" env:"HTTP_ADDR"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path" env:"PATH"`
}

// AuthConfig holds authentication provider configuration
type AuthConfig struct {
	Provider    string `yaml:"provider" toml:"provider" env:"PROVIDER"`
	JWTSecret   string `yaml:"jwt_secret" toml:"jwt_secret" env:"JWT_SECRET"`
	TokenFormat string `yaml:"token_format" toml:"token_format" env:"TOKEN_FORMAT"`

	TokenExpiry    time.Duration `yaml:"-" toml:"-"`
	ReaperInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	TokenExpiryRaw    string `yaml:"token_expiry" toml:"token_expiry" env:"TOKEN_EXPIRY"`
	ReaperIntervalRaw string `yaml:"reaper_interval" toml:"reaper_interval" env:"REAPER_INTERVAL"`

	Users []UserConfig `yaml:"users" toml:"users"`
}

// UsesSigned reports whether the signed-token provider should be registered.
func (a AuthConfig) UsesSigned() bool {
	return a.Provider == ProviderSigned || a.Provider == ProviderBoth
}

// UsesMemory reports whether the in-memory token provider should be registered.
func (a AuthConfig) UsesMemory() bool {
	return a.Provider == ProviderMemory || a.Provider == ProviderBoth
}

// UserConfig seeds one user into every registered provider
type UserConfig struct {
	Username    string   `yaml:"username" toml:"username"`
	Password    string   `yaml:"password" toml:"password"`
	Roles       []string `yaml:"roles" toml:"roles"`
	Permissions []string `yaml:"permissions" toml:"permissions"`
}

// CacheConfig holds the two-tier cache configuration
type CacheConfig struct {
	MaxSize    int  `yaml:"max_size" toml:"max_size" env:"MAX_SIZE"`
	Persistent bool `yaml:"persistent" toml:"persistent" env:"PERSISTENT"`

	DefaultTTL     time.Duration `yaml:"-" toml:"-"`
	ReaperInterval time.Duration `yaml:"-" toml:"-"`

	DefaultTTLRaw     string `yaml:"default_ttl" toml:"default_ttl" env:"DEFAULT_TTL"`
	ReaperIntervalRaw string `yaml:"reaper_interval" toml:"reaper_interval" env:"REAPER_INTERVAL"`
}

// AuditConfig selects where audit events go
type AuditConfig struct {
	Sink       string `yaml:"sink" toml:"sink" env:"SINK"`
	File       string `yaml:"file" toml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups" env:"MAX_BACKUPS"`
}

// ToolsConfig holds builtin tool configuration
type ToolsConfig struct {
	BaseDir    string `yaml:"base_dir" toml:"base_dir" env:"BASE_DIR"`
	AllowShell bool   `yaml:"allow_shell" toml:"allow_shell" env:"ALLOW_SHELL"`

	ShellTimeout    time.Duration `yaml:"-" toml:"-"`
	ShellTimeoutRaw string        `yaml:"shell_timeout" toml:"shell_timeout" env:"SHELL_TIMEOUT"`
}

// RateLimitConfig limits login attempts per client IP. Unset rates get the
// defaults; Disabled turns limiting off.
type RateLimitConfig struct {
	Disabled       bool    `yaml:"disabled" toml:"disabled" env:"DISABLED"`
	LoginPerSecond float64 `yaml:"login_per_second" toml:"login_per_second" env:"LOGIN_PER_SECOND"`
	LoginBurst     int     `yaml:"login_burst" toml:"login_burst" env:"LOGIN_BURST"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`
	Format string `yaml:"format" toml:"format" env:"FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" toml:"path" env:"PATH"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then GATEWAY_*
// variables override individual fields. Files ending in .toml are decoded as TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"auth.token_expiry", cfg.Auth.TokenExpiryRaw, &cfg.Auth.TokenExpiry},
		{"auth.reaper_interval", cfg.Auth.ReaperIntervalRaw, &cfg.Auth.ReaperInterval},
		{"cache.default_ttl", cfg.Cache.DefaultTTLRaw, &cfg.Cache.DefaultTTL},
		{"cache.reaper_interval", cfg.Cache.ReaperIntervalRaw, &cfg.Cache.ReaperInterval},
		{"tools.shell_timeout", cfg.Tools.ShellTimeoutRaw, &cfg.Tools.ShellTimeout},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("parsing %s %q: must not be negative", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}

// applyDefaults fills zero values. Reaper intervals stay zero (disabled) unless set.
func (c *Config) applyDefaults() {
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = ProviderSigned
	}
	if c.Auth.TokenFormat == "" {
		c.Auth.TokenFormat = TokenFormatRandom
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = auth.DefaultTokenExpiry
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1000
	}
	if c.Cache.DefaultTTL == 0 {
		c.Cache.DefaultTTL = 300 * time.Second
	}
	if c.Audit.Sink == "" {
		c.Audit.Sink = AuditSinkStdout
	}
	if c.Audit.MaxSizeMB == 0 {
		c.Audit.MaxSizeMB = 100
	}
	if c.Audit.MaxBackups == 0 {
		c.Audit.MaxBackups = 7
	}
	if c.Tools.BaseDir == "" {
		c.Tools.BaseDir = "./workspace"
	}
	if c.Tools.ShellTimeout == 0 {
		c.Tools.ShellTimeout = 30 * time.Second
	}
	if c.RateLimit.LoginPerSecond == 0 {
		c.RateLimit.LoginPerSecond = 5
	}
	if c.RateLimit.LoginBurst == 0 {
		c.RateLimit.LoginBurst = 10
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Auth.Provider {
	case ProviderSigned, ProviderMemory, ProviderBoth:
	default:
		return fmt.Errorf("auth.provider must be signed, memory or both, got %q", c.Auth.Provider)
	}

	if c.Auth.UsesSigned() {
		if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == PlaceholderSecret {
			return fmt.Errorf("auth.jwt_secret is required for the signed provider (run 'tool-gateway init' to generate one)")
		}
		if len(c.Auth.JWTSecret) < auth.MinSecretLength {
			return fmt.Errorf("auth.jwt_secret must be at least %d bytes, got %d", auth.MinSecretLength, len(c.Auth.JWTSecret))
		}
	}

	switch c.Auth.TokenFormat {
	case TokenFormatRandom, TokenFormatTimestamp:
	default:
		return fmt.Errorf("auth.token_format must be random or timestamp, got %q", c.Auth.TokenFormat)
	}

	for i, u := range c.Auth.Users {
		if u.Username == "" {
			return fmt.Errorf("auth.users[%d].username is required", i)
		}
		for _, p := range u.Permissions {
			if _, err := authz.ParsePermission(p); err != nil {
				return fmt.Errorf("auth.users[%d].permissions: %w", i, err)
			}
		}
	}

	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("cache.max_size must not be negative")
	}

	switch c.Audit.Sink {
	case AuditSinkStdout, AuditSinkStore:
	case AuditSinkFile:
		if c.Audit.File == "" {
			return fmt.Errorf("audit.file is required when audit.sink is file")
		}
	default:
		return fmt.Errorf("audit.sink must be stdout, file or store, got %q", c.Audit.Sink)
	}

	if c.RateLimit.LoginPerSecond < 0 || c.RateLimit.LoginBurst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}

	return nil
}

// DefaultPath returns the config path used when none is given.
// Priority: TOOL_GATEWAY_CONFIG > $XDG_CONFIG_HOME/tool-gateway/gateway.yaml > ~/.config/tool-gateway/gateway.yaml
func DefaultPath() string {
	if p := os.Getenv("TOOL_GATEWAY_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".", "gateway.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tool-gateway", "gateway.yaml")
}
