// ABOUTME: Gateway orchestrator that wires auth, authz, cache, audit, tools and adapters
// ABOUTME: Owns the HTTP server lifecycle, background reapers and graceful shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/2389/tool-gateway/internal/adapters"
	"github.com/2389/tool-gateway/internal/audit"
	"github.com/2389/tool-gateway/internal/auth"
	"github.com/2389/tool-gateway/internal/authz"
	"github.com/2389/tool-gateway/internal/cache"
	"github.com/2389/tool-gateway/internal/config"
	"github.com/2389/tool-gateway/internal/mcp"
	"github.com/2389/tool-gateway/internal/metrics"
	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/store"
	"github.com/2389/tool-gateway/internal/tools"
)

// Provider ids registered with the auth manager.
const (
	ProviderSigned = "signed"
	ProviderMemory = "memory"
)

// Gateway orchestrates the tool-gateway server components.
type Gateway struct {
	config *config.Config
	logger *slog.Logger
	store  *store.SQLiteStore

	metrics     *metrics.Metrics
	authManager *auth.Manager
	memory      *auth.MemoryProvider // nil unless the memory provider is enabled
	authz       *authz.Manager
	cache       *cache.Manager[json.RawMessage]
	audit       audit.Logger
	auditCloser io.Closer

	packRegistry *packs.Registry
	packRouter   *packs.Router
	adapters     *adapters.Manager
	mcpServer    *mcp.Server

	loginLimiter *ipLimiter
	handler      http.Handler
	httpServer   *http.Server

	reapers []interface{ Stop() }
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	gw := &Gateway{
		config:       cfg,
		logger:       logger.With("component", "gateway"),
		store:        sqlStore,
		metrics:      metrics.New(),
		authz:        authz.NewManagerWithDefaults(logger),
	}
	if !cfg.RateLimit.Disabled {
		gw.loginLimiter = newIPLimiter(cfg.RateLimit.LoginPerSecond, cfg.RateLimit.LoginBurst)
	}

	if err := gw.init(logger); err != nil {
		_ = gw.closeComponents(context.Background())
		return nil, err
	}
	return gw, nil
}

func (g *Gateway) init(logger *slog.Logger) error {
	cfg := g.config

	if err := g.buildAuth(logger); err != nil {
		return err
	}
	g.buildCache(logger)
	if err := g.metrics.RegisterCacheStats(g.cache); err != nil {
		return fmt.Errorf("registering cache metrics: %w", err)
	}
	if err := g.buildAudit(logger); err != nil {
		return err
	}

	g.packRegistry = packs.NewRegistry(logger.With("component", "pack-registry"))
	router, err := packs.NewRouter(packs.RouterConfig{
		Registry: g.packRegistry,
		Logger:   logger.With("component", "pack-router"),
	})
	if err != nil {
		return fmt.Errorf("creating tool router: %w", err)
	}
	g.packRouter = router
	if err := registerBuiltinPacks(g.packRegistry, cfg.Tools); err != nil {
		return err
	}

	g.adapters = adapters.NewManager(adapters.NewDefaultRegistry(), logger)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Router:      g.packRouter,
		Authz:       g.authz,
		Auth:        g.authManager,
		Cache:       g.cache,
		Metrics:     g.metrics,
		Audit:       g.audit,
		Logger:      logger,
		RequireAuth: true,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}
	g.mcpServer = mcpServer

	g.handler = g.routes()
	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// buildAuth registers the configured providers and seeds their users.
func (g *Gateway) buildAuth(logger *slog.Logger) error {
	cfg := g.config.Auth
	g.authManager = auth.NewManager(logger)
	g.authManager.SetObserver(g.metrics)

	opts := []auth.ProviderOption{
		auth.WithTokenExpiry(cfg.TokenExpiry),
		auth.WithLogger(logger),
	}
	if cfg.TokenFormat == config.TokenFormatTimestamp {
		opts = append(opts, auth.WithTokenGenerator(auth.TimestampTokens))
	}

	if cfg.UsesSigned() {
		signed, err := auth.NewSignedTokenProvider([]byte(cfg.JWTSecret), opts...)
		if err != nil {
			return fmt.Errorf("creating signed token provider: %w", err)
		}
		for _, u := range cfg.Users {
			signed.AddUser(u.Username, u.Password, u.Roles, u.Permissions)
		}
		g.authManager.RegisterProvider(ProviderSigned, signed)
	}

	if cfg.UsesMemory() {
		g.memory = auth.NewMemoryProvider(opts...)
		for _, u := range cfg.Users {
			g.memory.AddUser(u.Username, u.Password, u.Roles, u.Permissions)
		}
		g.authManager.RegisterProvider(ProviderMemory, g.memory)
	}

	g.logger.Info("auth providers registered", "providers", g.authManager.ProviderIDs(), "users", len(cfg.Users))
	return nil
}

// buildCache creates the in-memory tier and, when configured, the SQLite tier.
func (g *Gateway) buildCache(logger *slog.Logger) {
	cfg := g.config.Cache
	opts := []cache.MemoryOption{
		cache.WithMaxSize(cfg.MaxSize),
		cache.WithDefaultTTL(cfg.DefaultTTL),
	}
	primary := cache.NewMemory[json.RawMessage](opts...)
	var secondary cache.Cache[json.RawMessage]
	if cfg.Persistent {
		secondary = cache.NewPersistent[json.RawMessage](g.store, opts...)
	}
	g.cache = cache.NewManager[json.RawMessage](primary, secondary, logger)
}

// buildAudit selects the audit sink.
func (g *Gateway) buildAudit(logger *slog.Logger) error {
	cfg := g.config.Audit
	switch cfg.Sink {
	case config.AuditSinkFile:
		f := audit.NewFileLogger(audit.FileOptions{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		})
		g.audit = f
		g.auditCloser = f
	case config.AuditSinkStore:
		g.audit = audit.NewStoreLogger(g.store)
	case config.AuditSinkStdout, "":
		g.audit = audit.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	default:
		return fmt.Errorf("unknown audit sink %q", cfg.Sink)
	}
	return nil
}

// registerBuiltinPacks registers the filesystem and shell packs.
func registerBuiltinPacks(registry *packs.Registry, cfg config.ToolsConfig) error {
	sb, err := tools.NewSandbox(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("creating tool sandbox: %w", err)
	}
	if err := registry.RegisterBuiltinPack(tools.FilesystemPack(sb)); err != nil {
		return fmt.Errorf("registering filesystem pack: %w", err)
	}
	shell := tools.ShellPack(sb, tools.ShellOptions{Enabled: cfg.AllowShell, Timeout: cfg.ShellTimeout})
	if err := registry.RegisterBuiltinPack(shell); err != nil {
		return fmt.Errorf("registering shell pack: %w", err)
	}
	return nil
}

// routes builds the chi router with every middleware and endpoint.
func (g *Gateway) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(g.recoverer)
	r.Use(securityHeaders)
	if len(g.config.Server.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   g.config.Server.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "Mcp-Session-Id", "Mcp-Protocol-Version"},
			ExposedHeaders:   []string{"Mcp-Session-Id", requestIDHeader},
			AllowCredentials: false,
			MaxAge:           600,
		}))
	}
	r.Use(g.metrics.Instrument)
	r.Use(g.requestLogger)

	// Public endpoints
	r.Get("/health", g.handleHealth)
	r.With(auth.OptionalAuthMiddleware(g.authManager)).Get("/whoami", g.handleWhoami)
	if g.config.Metrics.Enabled {
		r.Method(http.MethodGet, g.config.Metrics.Path, g.metrics.Handler())
	}
	r.With(middleware.RealIP, g.rateLimitLogin).Post("/api/auth/login", g.handleLogin)
	r.Post("/api/auth/refresh", g.handleRefresh)

	// MCP authenticates each request itself so failures are JSON-RPC errors.
	r.Handle("/mcp", g.mcpServer)

	r.Group(func(r chi.Router) {
		r.Use(auth.HTTPAuthMiddleware(g.authManager))
		r.Post("/api/auth/logout", g.handleLogout)
		r.Get("/api/protected", g.handleProtected)
		r.Get("/api/adapters", g.handleListAdapters)
		r.Post("/api/adapters/{type}", g.handleCreateAdapter)
		r.Get("/api/adapters/{id}", g.handleGetAdapter)
		r.Delete("/api/adapters/{id}", g.handleDeleteAdapter)
		r.Post("/api/adapters/{id}/execute", g.handleExecuteAdapter)
		r.Get("/api/cache/stats", g.handleCacheStats)
		r.Delete("/api/cache", g.handleClearCache)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not Found"})
	})
	return r
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// startReapers launches the token and cache sweepers enabled by config.
func (g *Gateway) startReapers(ctx context.Context) {
	if iv := g.config.Auth.ReaperInterval; iv > 0 && g.memory != nil {
		g.reapers = append(g.reapers, auth.StartReaper(ctx, iv, g.logger, g.memory))
		g.logger.Info("token reaper started", "interval", iv)
	}
	if iv := g.config.Cache.ReaperInterval; iv > 0 {
		g.reapers = append(g.reapers, cache.StartReaper(ctx, iv, g.logger, g.cache))
		g.logger.Info("cache reaper started", "interval", iv)
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the gateway on an existing listener.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	g.startReapers(ctx)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context since the
// original one is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, then releases every component.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if g.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	}
	if err := g.closeComponents(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (g *Gateway) closeComponents(ctx context.Context) error {
	for _, r := range g.reapers {
		r.Stop()
	}
	g.reapers = nil

	var errs []error
	if g.adapters != nil {
		errs = appendCloseError(errs, "adapter shutdown", g.adapters.ShutdownAll(ctx))
	}
	if g.packRegistry != nil {
		g.packRegistry.Close()
	}
	if g.auditCloser != nil {
		errs = appendCloseError(errs, "audit close", g.auditCloser.Close())
	}
	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}
	return errors.Join(errs...)
}
