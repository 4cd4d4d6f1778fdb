// Package config handles configuration loading for tool-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML when the path ends in
// .toml) with environment variable expansion and per-field environment
// overrides. Load applies defaults and validates the result.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TOOL_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tool-gateway/gateway.yaml
//  3. ~/.config/tool-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GATEWAY_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
// After decoding, GATEWAY_<SECTION>_<FIELD> variables replace individual
// values:
//
//	GATEWAY_SERVER_HTTP_ADDR=0.0.0.0:9000
//	GATEWAY_AUTH_TOKEN_EXPIRY=2h
//	GATEWAY_TOOLS_ALLOW_SHELL=true
//
// Users cannot be set from the environment.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_expiry: "60m"
//	  reaper_interval: "5m"
//	cache:
//	  default_ttl: "300s"
//
// A zero reaper interval disables the corresponding background reaper.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  cors_origins: ["https://app.example.com"]
//	  shutdown_timeout: "10s"
//
//	database:
//	  path: "./tool-gateway.db"
//
//	auth:
//	  provider: "signed"        # signed, memory or both
//	  jwt_secret: "..."         # required for signed, at least 32 bytes
//	  token_format: "random"    # memory provider: random or timestamp
//	  users:
//	    - username: "admin"
//	      password: "..."
//	      roles: ["admin"]
//
//	cache:
//	  max_size: 1000
//	  persistent: false         # adds the SQLite-backed second tier
//
//	audit:
//	  sink: "stdout"            # stdout, file or store
//
//	tools:
//	  base_dir: "./workspace"
//	  allow_shell: false
//
//	rate_limit:
//	  disabled: false
//	  login_per_second: 5
//	  login_burst: 10
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
