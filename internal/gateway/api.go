// ABOUTME: HTTP API handlers for login, token lifecycle, adapters and cache stats
// ABOUTME: Every state-changing call is authorized through authz and recorded in the audit log

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/2389/tool-gateway/internal/adapters"
	"github.com/2389/tool-gateway/internal/audit"
	"github.com/2389/tool-gateway/internal/auth"
	"github.com/2389/tool-gateway/internal/authz"
	"github.com/2389/tool-gateway/internal/cache"
)

// maxBodyBytes limits JSON request bodies on the REST API.
const maxBodyBytes = 1 << 20

// Adapter execution defaults applied when a request omits them.
const (
	defaultMaxResults = 100
	defaultTimeoutMS  = 30000
)

// LoginRequest is the JSON body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Provider string `json:"provider,omitempty"`
}

// LoginResponse is returned by login and refresh.
type LoginResponse struct {
	Authenticated bool     `json:"authenticated"`
	UserID        string   `json:"user_id,omitempty"`
	Token         string   `json:"token,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	ExpiresAt     int64    `json:"expires_at,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// RefreshRequest is the JSON body for POST /api/auth/refresh. The token may
// also be supplied as a bearer header.
type RefreshRequest struct {
	Provider string `json:"provider,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ExecuteRequest is the JSON body for POST /api/adapters/{id}/execute.
// REST adapters use Method, Path, Params, Headers and Body; SQL adapters use
// Query and Args.
type ExecuteRequest struct {
	Method     string            `json:"method,omitempty"`
	Path       string            `json:"path,omitempty"`
	Params     map[string]any    `json:"params,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       any               `json:"body,omitempty"`
	Query      string            `json:"query,omitempty"`
	Args       []any             `json:"args,omitempty"`
	MaxResults int               `json:"max_results,omitempty"`
	TimeoutMS  int               `json:"timeout_ms,omitempty"`
}

// ExecuteResponse is the JSON response for adapter execution.
type ExecuteResponse struct {
	Message    string         `json:"message"`
	InstanceID string         `json:"instance_id"`
	StatusCode int            `json:"status_code"`
	Data       any            `json:"data"`
	Metadata   map[string]any `json:"metadata"`
	Error      *string        `json:"error"`
	Cached     bool           `json:"cached"`
}

// AdapterInfo describes one live adapter instance.
type AdapterInfo struct {
	InstanceID string            `json:"instance_id"`
	Type       string            `json:"type"`
	Healthy    bool              `json:"healthy"`
	Metadata   adapters.Metadata `json:"metadata"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// decodeBody reads a JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalBody is decodeBody, except an empty body leaves v untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := decodeBody(w, r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (g *Gateway) recordAudit(ctx context.Context, e audit.Event) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Log(ctx, e); err != nil {
		g.logger.Warn("audit write failed", "event", e.Type, "error", err)
	}
}

// selectProvider picks the explicit provider, else the signed provider when
// registered, else the first registered one.
func (g *Gateway) selectProvider(explicit string) string {
	if explicit != "" {
		return explicit
	}
	ids := g.authManager.ProviderIDs()
	if slices.Contains(ids, ProviderSigned) {
		return ProviderSigned
	}
	if len(ids) > 0 {
		return ids[0]
	}
	return ""
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Tool gateway is running",
	})
}

// handleWhoami lists the auth providers and, when a valid token came with the
// request, who the caller is.
func (g *Gateway) handleWhoami(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"message":       "Tool gateway is running",
		"providers":     g.authManager.ProviderIDs(),
		"authenticated": false,
	}
	if p := auth.FromContext(r.Context()); p != nil {
		resp["authenticated"] = true
		resp["user"] = p.UserID
		resp["roles"] = p.Roles
	}
	writeJSON(w, http.StatusOK, resp)
}

func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(w, r, &req); err != nil {
		g.logger.Debug("invalid login body", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON format"})
		return
	}

	providerID := g.selectProvider(req.Provider)
	res := g.authManager.Authenticate(r.Context(), providerID, auth.Credentials{
		"username": req.Username,
		"password": req.Password,
	})

	actor := res.UserID
	if actor == "" {
		actor = req.Username
	}
	auditCtx := map[string]any{
		"provider": providerID,
		"ip":       clientIP(r),
	}
	if !res.Authenticated {
		auditCtx["reason"] = "invalid_credentials"
	}
	g.recordAudit(r.Context(), audit.Event{
		Type:    audit.EventLogin,
		Actor:   actor,
		Outcome: audit.OutcomeOf(res.Authenticated),
		Context: auditCtx,
	})

	if !res.Authenticated {
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Error: "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func loginResponse(res *auth.Result) LoginResponse {
	return LoginResponse{
		Authenticated: true,
		UserID:        res.UserID,
		Token:         res.Token,
		Roles:         res.Roles,
		ExpiresAt:     res.ExpiresAt,
	}
}

func (g *Gateway) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON format"})
		return
	}
	token := req.Token
	if token == "" {
		token = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "token is required"})
		return
	}

	providerID := g.selectProvider(req.Provider)
	res := g.authManager.RefreshToken(r.Context(), providerID, token)
	g.recordAudit(r.Context(), audit.Event{
		Type:    audit.EventRefresh,
		Actor:   res.UserID,
		Outcome: audit.OutcomeOf(res.Authenticated),
		Context: map[string]any{"provider": providerID},
	})
	if !res.Authenticated {
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Error: "Invalid or expired token"})
		return
	}
	writeJSON(w, http.StatusOK, loginResponse(res))
}

func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := auth.MustFromContext(r.Context())
	revoked := g.authManager.RevokeToken(r.Context(), p.Token)
	g.recordAudit(r.Context(), audit.Event{
		Type:    audit.EventLogout,
		Actor:   p.UserID,
		Outcome: audit.OutcomeSuccess,
		Context: map[string]any{"revoked": revoked},
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Logged out",
		"revoked": revoked,
	})
}

func (g *Gateway) handleProtected(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Not authenticated"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "This is a protected route",
		"user":        p.UserID,
		"roles":       p.Roles,
		"permissions": p.Permissions,
		"expires_at":  p.ExpiresAt,
	})
}

// authorize checks the principal on the request context.
func (g *Gateway) authorize(r *http.Request, rt authz.ResourceType, id string, action authz.Action) bool {
	p := auth.FromContext(r.Context())
	if p == nil {
		return false
	}
	return g.authz.CheckPermission(p.Roles, p.Permissions, rt, id, action)
}

func (g *Gateway) handleCreateAdapter(w http.ResponseWriter, r *http.Request) {
	adapterType := chi.URLParam(r, "type")
	actor := actorOf(r.Context())
	auditCtx := map[string]any{
		"resource_type": string(authz.ResourceAdapter),
		"resource_id":   adapterType,
		"action":        string(authz.ActionCreate),
	}

	if !g.authorize(r, authz.ResourceAdapter, adapterType, authz.ActionCreate) {
		auditCtx["authorized"] = false
		g.recordAudit(r.Context(), audit.Event{
			Type:    audit.EventAdapterCreate,
			Actor:   actor,
			Outcome: audit.OutcomeFailure,
			Context: auditCtx,
		})
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	auditCtx["authorized"] = true

	cfg := map[string]any{}
	if err := decodeOptionalBody(w, r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON format"})
		return
	}

	instanceID := uuid.New().String()
	err := g.adapters.Create(r.Context(), adapterType, instanceID, cfg)
	auditCtx["instance_id"] = instanceID
	if err != nil {
		auditCtx["error"] = err.Error()
	}
	g.recordAudit(r.Context(), audit.Event{
		Type:    audit.EventAdapterCreate,
		Actor:   actor,
		Outcome: audit.OutcomeOf(err == nil),
		Context: auditCtx,
	})

	switch {
	case errors.Is(err, adapters.ErrUnknownAdapterType):
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("Unknown adapter type: %s", adapterType))
		return
	case err != nil:
		g.logger.Warn("adapter creation failed", "type", adapterType, "error", err)
		writeMessage(w, http.StatusBadRequest, fmt.Sprintf("Adapter creation failed: %v", err))
		return
	}

	g.logger.Info("adapter created", "type", adapterType, "instance_id", instanceID, "actor", actor)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Adapter created",
		"type":        adapterType,
		"instance_id": instanceID,
		"config":      redactConfig(cfg),
	})
}

// redactConfig masks credential-looking keys before a config is echoed back.
func redactConfig(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "password") || strings.Contains(lk, "secret") || lk == "dsn" {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}

func (g *Gateway) handleListAdapters(w http.ResponseWriter, r *http.Request) {
	infos := make([]AdapterInfo, 0)
	for _, id := range g.adapters.InstanceIDs() {
		typeID, ok := g.adapters.InstanceType(id)
		if !ok || !g.authorize(r, authz.ResourceAdapter, typeID, authz.ActionRead) {
			continue
		}
		info, err := g.adapterInfo(r.Context(), id, typeID)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"adapters": infos})
}

func (g *Gateway) handleGetAdapter(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")
	typeID, ok := g.adapters.InstanceType(instanceID)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Adapter instance not found: "+instanceID)
		return
	}
	if !g.authorize(r, authz.ResourceAdapter, typeID, authz.ActionRead) {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	info, err := g.adapterInfo(r.Context(), instanceID, typeID)
	if err != nil {
		writeMessage(w, http.StatusNotFound, "Adapter instance not found: "+instanceID)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (g *Gateway) adapterInfo(ctx context.Context, instanceID, typeID string) (AdapterInfo, error) {
	md, err := g.adapters.Metadata(ctx, instanceID)
	if err != nil {
		return AdapterInfo{}, err
	}
	healthy, err := g.adapters.HealthCheck(ctx, instanceID)
	if err != nil {
		return AdapterInfo{}, err
	}
	return AdapterInfo{InstanceID: instanceID, Type: typeID, Healthy: healthy, Metadata: md}, nil
}

func (g *Gateway) handleDeleteAdapter(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")
	typeID, ok := g.adapters.InstanceType(instanceID)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Adapter instance not found: "+instanceID)
		return
	}
	if !g.authorize(r, authz.ResourceAdapter, typeID, authz.ActionDelete) {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	if err := g.adapters.Shutdown(r.Context(), instanceID); err != nil {
		g.logger.Warn("adapter shutdown failed", "instance_id", instanceID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// dataRequest maps the HTTP body onto the adapter request.
func (req ExecuteRequest) dataRequest() adapters.DataRequest {
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	timeout := req.TimeoutMS
	if timeout <= 0 {
		timeout = defaultTimeoutMS
	}

	if req.Query != "" {
		return adapters.DataRequest{
			Query:      req.Query,
			Parameters: map[string]any{"args": req.Args},
			Context:    map[string]any{},
			MaxResults: maxResults,
			TimeoutMS:  timeout,
		}
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	path := req.Path
	if path == "" {
		path = "/"
	}
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	headers := map[string]any{}
	for k, v := range req.Headers {
		headers[k] = v
	}
	return adapters.DataRequest{
		Query: method + " " + path,
		Parameters: map[string]any{
			"method":  method,
			"path":    path,
			"params":  params,
			"headers": headers,
			"body":    req.Body,
		},
		Context:    map[string]any{},
		MaxResults: maxResults,
		TimeoutMS:  timeout,
	}
}

// cacheable reports whether a request only reads data.
func (req ExecuteRequest) cacheable() bool {
	if req.Query != "" {
		return adapters.ReturnsRows(req.Query)
	}
	return req.Method == "" || strings.EqualFold(req.Method, http.MethodGet)
}

func (g *Gateway) handleExecuteAdapter(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "id")
	actor := actorOf(r.Context())

	typeID, ok := g.adapters.InstanceType(instanceID)
	if !ok {
		writeMessage(w, http.StatusNotFound, "Adapter instance not found: "+instanceID)
		return
	}
	if !g.authorize(r, authz.ResourceAdapter, typeID, authz.ActionExecute) {
		g.recordAudit(r.Context(), audit.Event{
			Type:    audit.EventAdapterExecute,
			Actor:   actor,
			Outcome: audit.OutcomeFailure,
			Context: map[string]any{"instance_id": instanceID, "type": typeID, "authorized": false},
		})
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}

	var req ExecuteRequest
	if err := decodeOptionalBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON format"})
		return
	}
	dreq := req.dataRequest()

	var key string
	if req.cacheable() {
		k, err := cache.Fingerprint("adapter", instanceID, dreq.Query, dreq.Parameters, dreq.MaxResults)
		if err != nil {
			g.logger.Warn("adapter cache key failed", "instance_id", instanceID, "error", err)
		} else {
			key = k
		}
	}

	if key != "" {
		if resp, ok := g.cachedResponse(r.Context(), key); ok {
			writeJSON(w, http.StatusOK, executeResponse(instanceID, resp, true))
			return
		}
	}

	resp, err := g.adapters.Execute(r.Context(), instanceID, dreq)
	auditCtx := map[string]any{
		"instance_id": instanceID,
		"type":        typeID,
		"query":       dreq.Query,
		"authorized":  true,
	}
	if err != nil {
		auditCtx["error"] = err.Error()
	}
	g.recordAudit(r.Context(), audit.Event{
		Type:    audit.EventAdapterExecute,
		Actor:   actor,
		Outcome: audit.OutcomeOf(err == nil && resp.Error == ""),
		Context: auditCtx,
	})

	switch {
	case errors.Is(err, adapters.ErrInstanceNotFound):
		writeMessage(w, http.StatusNotFound, "Adapter instance not found: "+instanceID)
		return
	case errors.Is(err, context.DeadlineExceeded):
		writeMessage(w, http.StatusGatewayTimeout, "Execute timed out")
		return
	case err != nil:
		g.logger.Warn("adapter execute failed", "instance_id", instanceID, "error", err)
		writeMessage(w, http.StatusBadGateway, fmt.Sprintf("Execute failed: %v", err))
		return
	}

	if key != "" && resp.Error == "" && resp.StatusCode < 400 {
		if raw, err := json.Marshal(resp); err == nil {
			if err := g.cache.Set(r.Context(), key, raw, cache.DefaultTTL); err != nil {
				g.logger.Warn("adapter cache write failed", "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, executeResponse(instanceID, resp, false))
}

func (g *Gateway) cachedResponse(ctx context.Context, key string) (*adapters.DataResponse, bool) {
	raw, ok, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("adapter cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var resp adapters.DataResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func executeResponse(instanceID string, resp *adapters.DataResponse, cached bool) ExecuteResponse {
	out := ExecuteResponse{
		Message:    "Executed",
		InstanceID: instanceID,
		StatusCode: resp.StatusCode,
		Data:       resp.Data,
		Metadata:   resp.Metadata,
		Cached:     cached,
	}
	if resp.Error != "" {
		e := resp.Error
		out.Error = &e
	}
	return out
}

func (g *Gateway) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if !g.authorize(r, authz.ResourceSystem, "cache", authz.ActionRead) {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	stats, err := g.cache.Stats(r.Context())
	if err != nil {
		g.logger.Error("reading cache stats", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read cache stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (g *Gateway) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if !g.authorize(r, authz.ResourceSystem, "cache", authz.ActionDelete) {
		writeMessage(w, http.StatusForbidden, "Forbidden")
		return
	}
	if err := g.cache.Clear(r.Context()); err != nil {
		g.logger.Error("clearing cache", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to clear cache"})
		return
	}
	g.logger.Info("cache cleared", "actor", actorOf(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
