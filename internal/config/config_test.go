// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, GATEWAY_* overrides, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "127.0.0.1:8080"
  cors_origins:
    - "https://app.example.com"
  shutdown_timeout: "5s"

database:
  path: "./test.db"

auth:
  provider: "both"
  jwt_secret: "`+testSecret+`"
  token_expiry: "30m"
  token_format: "timestamp"
  reaper_interval: "1m"
  users:
    - username: "admin"
      password: "admin123"
      roles: ["admin"]
    - username: "analyst"
      password: "pw"
      roles: ["data_scientist"]
      permissions: ["adapter:postgres:execute"]

cache:
  max_size: 50
  default_ttl: "2m"
  persistent: true

audit:
  sink: "file"
  file: "/var/log/gateway/audit.log"

tools:
  base_dir: "/srv/workspace"
  allow_shell: true
  shell_timeout: "10s"

rate_limit:
  login_per_second: 2
  login_burst: 4

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://app.example.com" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if !cfg.Auth.UsesSigned() || !cfg.Auth.UsesMemory() {
		t.Error("provider both should use signed and memory")
	}
	if cfg.Auth.TokenExpiry != 30*time.Minute {
		t.Errorf("Auth.TokenExpiry = %v, want 30m", cfg.Auth.TokenExpiry)
	}
	if cfg.Auth.TokenFormat != TokenFormatTimestamp {
		t.Errorf("Auth.TokenFormat = %q", cfg.Auth.TokenFormat)
	}
	if cfg.Auth.ReaperInterval != time.Minute {
		t.Errorf("Auth.ReaperInterval = %v, want 1m", cfg.Auth.ReaperInterval)
	}
	if len(cfg.Auth.Users) != 2 {
		t.Fatalf("len(Auth.Users) = %d, want 2", len(cfg.Auth.Users))
	}
	if cfg.Auth.Users[1].Permissions[0] != "adapter:postgres:execute" {
		t.Errorf("Users[1].Permissions = %v", cfg.Auth.Users[1].Permissions)
	}
	if cfg.Cache.MaxSize != 50 || !cfg.Cache.Persistent || cfg.Cache.DefaultTTL != 2*time.Minute {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Audit.Sink != AuditSinkFile || cfg.Audit.File != "/var/log/gateway/audit.log" {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if !cfg.Tools.AllowShell || cfg.Tools.ShellTimeout != 10*time.Second {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
	if cfg.RateLimit.LoginPerSecond != 2 || cfg.RateLimit.LoginBurst != 4 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.Provider != ProviderSigned {
		t.Errorf("Auth.Provider = %q, want signed", cfg.Auth.Provider)
	}
	if cfg.Auth.TokenExpiry != 60*time.Minute {
		t.Errorf("Auth.TokenExpiry = %v, want 60m", cfg.Auth.TokenExpiry)
	}
	if cfg.Auth.TokenFormat != TokenFormatRandom {
		t.Errorf("Auth.TokenFormat = %q, want random", cfg.Auth.TokenFormat)
	}
	if cfg.Auth.ReaperInterval != 0 || cfg.Cache.ReaperInterval != 0 {
		t.Error("reapers should be disabled by default")
	}
	if cfg.Cache.MaxSize != 1000 || cfg.Cache.DefaultTTL != 300*time.Second {
		t.Errorf("Cache defaults = %+v", cfg.Cache)
	}
	if cfg.Audit.Sink != AuditSinkStdout {
		t.Errorf("Audit.Sink = %q, want stdout", cfg.Audit.Sink)
	}
	if cfg.Tools.AllowShell {
		t.Error("shell must be disabled by default")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q", cfg.Metrics.Path)
	}
	if cfg.RateLimit.Disabled || cfg.RateLimit.LoginPerSecond != 5 || cfg.RateLimit.LoginBurst != 10 {
		t.Errorf("RateLimit defaults = %+v", cfg.RateLimit)
	}
}

func TestLoad_RateLimitDisabled(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "memory"
rate_limit:
  disabled: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.RateLimit.Disabled {
		t.Error("RateLimit.Disabled = false, want true")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = ":9090"

[database]
path = "./gw.db"

[auth]
provider = "memory"
token_expiry = "15m"

[[auth.users]]
username = "admin"
password = "admin123"
roles = ["admin"]

[cache]
max_size = 10
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Auth.Provider != ProviderMemory || cfg.Auth.UsesSigned() {
		t.Errorf("Auth.Provider = %q", cfg.Auth.Provider)
	}
	if cfg.Auth.TokenExpiry != 15*time.Minute {
		t.Errorf("Auth.TokenExpiry = %v", cfg.Auth.TokenExpiry)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Roles[0] != "admin" {
		t.Errorf("Auth.Users = %+v", cfg.Auth.Users)
	}
	if cfg.Cache.MaxSize != 10 {
		t.Errorf("Cache.MaxSize = %d", cfg.Cache.MaxSize)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_SECRET", testSecret)
	t.Setenv("TEST_GATEWAY_DB", "/data/gateway.db")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "${TEST_GATEWAY_DB}"
auth:
  jwt_secret: "${TEST_GATEWAY_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("Auth.JWTSecret = %q, want expanded secret", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/data/gateway.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_SERVER_HTTP_ADDR", "0.0.0.0:9999")
	t.Setenv("GATEWAY_SERVER_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("GATEWAY_AUTH_TOKEN_EXPIRY", "2h")
	t.Setenv("GATEWAY_TOOLS_ALLOW_SHELL", "true")
	t.Setenv("GATEWAY_CACHE_MAX_SIZE", "42")
	t.Setenv("GATEWAY_LOGGING_LEVEL", "warn")

	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
  token_expiry: "30m"
logging:
  level: "info"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9999" {
		t.Errorf("Server.HTTPAddr = %q, want env override", cfg.Server.HTTPAddr)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Auth.TokenExpiry != 2*time.Hour {
		t.Errorf("Auth.TokenExpiry = %v, want 2h", cfg.Auth.TokenExpiry)
	}
	if !cfg.Tools.AllowShell {
		t.Error("Tools.AllowShell = false, want env override true")
	}
	if cfg.Cache.MaxSize != 42 {
		t.Errorf("Cache.MaxSize = %d, want 42", cfg.Cache.MaxSize)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	// untouched fields keep file values
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr "missing colon"
`)

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
  token_expiry: "forever"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "auth.token_expiry") {
		t.Errorf("error %q should name the field", err)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing http_addr",
			configContent: `
database:
  path: "./test.db"
auth:
  jwt_secret: "` + testSecret + `"
`,
			wantErrSubstr: "http_addr",
		},
		{
			name: "missing database path",
			configContent: `
server:
  http_addr: ":8080"
auth:
  jwt_secret: "` + testSecret + `"
`,
			wantErrSubstr: "database.path",
		},
		{
			name: "missing secret for signed",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
`,
			wantErrSubstr: "jwt_secret",
		},
		{
			name: "placeholder secret",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "` + PlaceholderSecret + `"
`,
			wantErrSubstr: "jwt_secret",
		},
		{
			name: "short secret",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "short"
`,
			wantErrSubstr: "at least 32 bytes",
		},
		{
			name: "unknown provider",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "ldap"
`,
			wantErrSubstr: "auth.provider",
		},
		{
			name: "bad token format",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "memory"
  token_format: "uuid"
`,
			wantErrSubstr: "token_format",
		},
		{
			name: "bad user permission",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "memory"
  users:
    - username: "x"
      permissions: ["widget:*:read"]
`,
			wantErrSubstr: "auth.users[0].permissions",
		},
		{
			name: "file sink without file",
			configContent: `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "memory"
audit:
  sink: "file"
`,
			wantErrSubstr: "audit.file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, "config.yaml", tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want substring %q", err, tt.wantErrSubstr)
			}
		})
	}
}

func TestLoad_MemoryProviderNeedsNoSecret(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  provider: "memory"
`)

	if _, err := Load(configPath); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TEST_EXPAND_A}", "alpha"},
		{"x-${TEST_EXPAND_A}-y", "x-alpha-y"},
		{"${TEST_EXPAND_UNSET_VAR}", ""},
		{"$TEST_EXPAND_A", "$TEST_EXPAND_A"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("TOOL_GATEWAY_CONFIG", "/etc/gw.yaml")
	if got := DefaultPath(); got != "/etc/gw.yaml" {
		t.Errorf("DefaultPath() = %q, want env path", got)
	}

	t.Setenv("TOOL_GATEWAY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "tool-gateway", "gateway.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}
