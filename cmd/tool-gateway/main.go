// ABOUTME: Entry point for the tool-gateway server and its operator commands
// ABOUTME: serve, init, token, health and version share the config path resolution

package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/tool-gateway/internal/config"
	"github.com/2389/tool-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _              _                     _
| |_ ___   ___ | |       __ _  __ _ _| |_ _____      ____ _ _   _
| __/ _ \ / _ \| |_____ / _' |/ _' |_   _/ _ \ \ /\ / / _' | | | |
| || (_) | (_) | |_____| (_| | (_| | | ||  __/\ V  V / (_| | |_| |
 \__\___/ \___/|_|      \__, |\__,_| |_| \___| \_/\_/ \__,_|\__, |
                        |___/                               |___/
`

// getDataPath returns the directory for the SQLite database and workspace.
// Priority: XDG_DATA_HOME/tool-gateway > ~/.local/share/tool-gateway
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "tool-gateway")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: tool-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                           Start the gateway server")
		fmt.Println("  init                            Create a new config file interactively")
		fmt.Println("  token --user U --password P     Log in to a running gateway and print a token")
		fmt.Println("  health                          Check gateway health")
		fmt.Println("  version                         Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin)
	case "token":
		err = runToken(ctx, os.Args[2:])
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Auth:      %s (%d users)\n", cfg.Auth.Provider, len(cfg.Auth.Users))
	green.Print("    ▶ ")
	fmt.Printf("Workspace: %s\n", cfg.Tools.BaseDir)
	if cfg.Tools.AllowShell {
		yellow.Println("    ! shell tool enabled")
	}
	fmt.Println()

	logger.Info("starting tool-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"auth_provider", cfg.Auth.Provider,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			out:   os.Stdout,
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	// Handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	h.lock().Lock()
	defer h.lock().Unlock()
	_, err := io.WriteString(h.output(), buf.String())
	return err
}

var defaultHandlerMu sync.Mutex

// lock returns the mutex shared by a handler and its derivatives.
func (h *colorHandler) lock() *sync.Mutex {
	if h.mu == nil {
		return &defaultHandlerMu
	}
	return h.mu
}

func (h *colorHandler) output() io.Writer {
	if h.out == nil {
		return os.Stdout
	}
	return h.out
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		mu:     h.lock(),
		out:    h.out,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		mu:     h.lock(),
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// baseURL turns a listen address into a client URL.
func baseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(cfg.Server.HTTPAddr)+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

type tokenArgs struct {
	user     string
	password string
	provider string
}

// parseTokenArgs accepts "--flag value" and "--flag=value" forms.
func parseTokenArgs(args []string) (tokenArgs, error) {
	var out tokenArgs
	targets := map[string]*string{
		"--user":     &out.user,
		"--password": &out.password,
		"--provider": &out.provider,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		dst, ok := targets[name]
		if !ok {
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			return out, fmt.Errorf("unexpected argument: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return out, fmt.Errorf("%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		*dst = value
	}
	if out.user == "" {
		return out, errors.New("--user flag is required")
	}
	if out.password == "" {
		out.password = os.Getenv("TOOL_GATEWAY_PASSWORD")
	}
	if out.password == "" {
		return out, errors.New("--password flag (or TOOL_GATEWAY_PASSWORD) is required")
	}
	return out, nil
}

func runToken(ctx context.Context, args []string) error {
	ta, err := parseTokenArgs(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	token, expiresAt, err := requestToken(ctx, http.DefaultClient, baseURL(cfg.Server.HTTPAddr), ta)
	if err != nil {
		return err
	}

	fmt.Println(token)
	if expiresAt > 0 {
		color.New(color.FgHiBlack).Fprintf(os.Stderr, "expires %s\n", time.Unix(expiresAt, 0).Format(time.RFC3339))
	}
	return nil
}

// requestToken logs in through the gateway's login endpoint.
func requestToken(ctx context.Context, client *http.Client, base string, ta tokenArgs) (string, int64, error) {
	body, err := json.Marshal(gateway.LoginRequest{Username: ta.user, Password: ta.password, Provider: ta.provider})
	if err != nil {
		return "", 0, fmt.Errorf("encoding login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	var out gateway.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decoding login response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || !out.Authenticated {
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return "", 0, fmt.Errorf("login failed: %s", msg)
	}
	return out.Token, out.ExpiresAt, nil
}

// initOptions are the answers collected by runInit.
type initOptions struct {
	HTTPAddr   string
	DBPath     string
	BaseDir    string
	Provider   string
	Secret     string
	AdminUser  string
	AdminPass  string
	LogLevel   string
	LogFormat  string
	AllowShell bool
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// renderConfig writes the YAML config for opts.
func renderConfig(opts initOptions) string {
	var cfg strings.Builder
	cfg.WriteString("# tool-gateway configuration\n")
	cfg.WriteString("# Generated by tool-gateway init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: %q\n", opts.HTTPAddr))
	cfg.WriteString("  shutdown_timeout: \"10s\"\n\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: %q\n\n", opts.DBPath))

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  provider: %q\n", opts.Provider))
	if opts.Secret != "" {
		cfg.WriteString(fmt.Sprintf("  jwt_secret: %q\n", opts.Secret))
	}
	cfg.WriteString("  token_expiry: \"1h\"\n")
	cfg.WriteString("  reaper_interval: \"5m\"\n")
	if opts.AdminUser != "" {
		cfg.WriteString("  users:\n")
		cfg.WriteString(fmt.Sprintf("    - username: %q\n", opts.AdminUser))
		cfg.WriteString(fmt.Sprintf("      password: %q\n", opts.AdminPass))
		cfg.WriteString("      roles: [\"admin\"]\n")
	}
	cfg.WriteString("\n")

	cfg.WriteString("cache:\n")
	cfg.WriteString("  max_size: 1000\n")
	cfg.WriteString("  default_ttl: \"5m\"\n")
	cfg.WriteString("  persistent: true\n")
	cfg.WriteString("  reaper_interval: \"1m\"\n\n")

	cfg.WriteString("audit:\n")
	cfg.WriteString("  sink: \"store\"\n\n")

	cfg.WriteString("tools:\n")
	cfg.WriteString(fmt.Sprintf("  base_dir: %q\n", opts.BaseDir))
	cfg.WriteString(fmt.Sprintf("  allow_shell: %t\n\n", opts.AllowShell))

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: %q\n", opts.LogLevel))
	cfg.WriteString(fmt.Sprintf("  format: %q\n\n", opts.LogFormat))

	cfg.WriteString("metrics:\n")
	cfg.WriteString("  enabled: true\n")
	cfg.WriteString("  path: \"/metrics\"\n")
	return cfg.String()
}

func isYes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func runInit(in io.Reader) error {
	reader := bufio.NewReader(in)

	fmt.Println("tool-gateway configuration setup")
	fmt.Println("================================")
	fmt.Println()

	dataPath := getDataPath()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	opts := initOptions{}

	fmt.Println("\n--- Server Configuration ---")
	opts.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	opts.DBPath = prompt(reader, "SQLite database path", filepath.Join(dataPath, "gateway.db"))
	opts.BaseDir = prompt(reader, "Tool workspace directory", filepath.Join(dataPath, "workspace"))
	opts.AllowShell = isYes(prompt(reader, "Enable the shell tool?", "no"))

	fmt.Println("\n--- Authentication ---")
	opts.Provider = prompt(reader, "Token provider (signed/memory/both)", config.ProviderSigned)
	if opts.Provider != config.ProviderMemory {
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		opts.Secret = secret
	}
	opts.AdminUser = prompt(reader, "Admin username", "admin")
	if opts.AdminUser != "" {
		pass, err := generateSecret()
		if err != nil {
			return err
		}
		opts.AdminPass = prompt(reader, "Admin password", pass[:20])
	}

	fmt.Println("\n--- Logging Configuration ---")
	opts.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(opts)), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(opts.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("\n  ✓ Config written to %s\n", outputFile)
	if opts.Secret != "" {
		green.Println("  ✓ Generated a random 32-byte jwt_secret")
	}
	fmt.Println("\nTo start the server:")
	fmt.Println("  tool-gateway serve")
	if opts.AdminUser != "" {
		fmt.Printf("  tool-gateway token --user %s --password <password>\n", opts.AdminUser)
	}

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
