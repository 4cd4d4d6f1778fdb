// ABOUTME: Tests for the MCP HTTP server including sessions, tool listing and execution.
// ABOUTME: Validates bearer auth, per-principal authorization, caching and error responses.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tool-gateway/internal/audit"
	"github.com/2389/tool-gateway/internal/auth"
	"github.com/2389/tool-gateway/internal/authz"
	"github.com/2389/tool-gateway/internal/cache"
	"github.com/2389/tool-gateway/internal/metrics"
	"github.com/2389/tool-gateway/internal/packs"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) last() audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type testEnv struct {
	server  *Server
	tokens  map[string]string
	audit   *recordingAudit
	cache   *cache.Manager[json.RawMessage]
	lookups *atomic.Int32
}

type rpcReply struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *JSONRPCError   `json:"error"`
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, requireAuth bool) *testEnv {
	t.Helper()
	logger := quietLogger()
	lookups := &atomic.Int32{}

	registry := packs.NewRegistry(logger)
	pack := &packs.BuiltinPack{
		ID: "builtin:test",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            "echo",
					Description:     "Echo a message",
					InputSchemaJSON: `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`,
					Resource:        authz.ResourceFunction,
					Action:          authz.ActionExecute,
				},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return input, nil
				},
			},
			{
				Definition: &packs.ToolDefinition{
					Name:      "lookup",
					Resource:  authz.ResourceFunction,
					Action:    authz.ActionRead,
					Cacheable: true,
					CacheTTL:  time.Minute,
				},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					n := lookups.Add(1)
					return json.Marshal(map[string]int32{"call": n})
				},
			},
			{
				Definition: &packs.ToolDefinition{
					Name:     "fail",
					Resource: authz.ResourceFunction,
					Action:   authz.ActionExecute,
				},
				Handler: func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
					return nil, errors.New("boom")
				},
			},
		},
	}
	require.NoError(t, registry.RegisterBuiltinPack(pack))

	router, err := packs.NewRouter(packs.RouterConfig{Registry: registry, Logger: logger, Timeout: 5 * time.Second})
	require.NoError(t, err)

	memory := auth.NewMemoryProvider(auth.WithLogger(logger))
	memory.AddUser("admin", "pw", []string{authz.RoleAdmin}, nil)
	memory.AddUser("reader", "pw", []string{authz.RoleReadOnly}, nil)
	memory.AddUser("echoer", "pw", nil, []string{"function:echo:execute"})
	authManager := auth.NewManager(logger)
	authManager.RegisterProvider("memory", memory)

	tokens := map[string]string{}
	for _, u := range []string{"admin", "reader", "echoer"} {
		res := memory.Authenticate(context.Background(), auth.Credentials{"username": u, "password": "pw"})
		require.True(t, res.Authenticated, u)
		tokens[u] = res.Token
	}

	c := cache.NewManager[json.RawMessage](cache.NewMemory[json.RawMessage](cache.WithMaxSize(16)), nil, logger)
	rec := &recordingAudit{}

	server, err := NewServer(Config{
		Router:      router,
		Authz:       authz.NewManagerWithDefaults(logger),
		Auth:        authManager,
		Cache:       c,
		Metrics:     metrics.New(),
		Audit:       rec,
		Logger:      logger,
		RequireAuth: requireAuth,
	})
	require.NoError(t, err)

	return &testEnv{server: server, tokens: tokens, audit: rec, cache: c, lookups: lookups}
}

func (e *testEnv) post(t *testing.T, user, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	if session != "" {
		req.Header.Set("Mcp-Session-Id", session)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) initialize(t *testing.T, user string) string {
	t.Helper()
	rr := e.post(t, user, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	sid := rr.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sid)
	return sid
}

func decodeReply(t *testing.T, rr *httptest.ResponseRecorder) rpcReply {
	t.Helper()
	var reply rpcReply
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &reply), rr.Body.String())
	return reply
}

func callTool(t *testing.T, e *testEnv, user, session, name, args string) rpcReply {
	t.Helper()
	body := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"` + name + `","arguments":` + args + `}}`
	rr := e.post(t, user, session, body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeReply(t, rr)
}

func listToolNames(t *testing.T, e *testEnv, user, session string) []string {
	t.Helper()
	rr := e.post(t, user, session, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	reply := decodeReply(t, rr)
	require.Nil(t, reply.Error)
	var result MCPListToolsResult
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	names := make([]string, len(result.Tools))
	for i, tool := range result.Tools {
		names[i] = tool.Name
	}
	return names
}

func TestInitialize(t *testing.T) {
	env := newTestEnv(t, true)
	rr := env.post(t, "admin", "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Mcp-Session-Id"))

	reply := decodeReply(t, rr)
	require.Nil(t, reply.Error)
	var result map[string]any
	require.NoError(t, json.Unmarshal(reply.Result, &result))
	assert.Equal(t, latestProtocolVersion, result["protocolVersion"])
	assert.Equal(t, 1, env.server.SessionCount())
}

func TestAuthentication(t *testing.T) {
	t.Run("missing token rejected when auth required", func(t *testing.T) {
		env := newTestEnv(t, true)
		reply := decodeReply(t, env.post(t, "", "", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
		require.NotNil(t, reply.Error)
		assert.Equal(t, JSONRPCInvalidRequest, reply.Error.Code)
		assert.Equal(t, "authentication required", reply.Error.Message)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		env := newTestEnv(t, false)
		env.tokens["ghost"] = "not-a-token"
		reply := decodeReply(t, env.post(t, "ghost", "", `{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
		require.NotNil(t, reply.Error)
		assert.Equal(t, "invalid or expired token", reply.Error.Message)
	})

	t.Run("anonymous sees no tools when auth optional", func(t *testing.T) {
		env := newTestEnv(t, false)
		sid := env.initialize(t, "")
		assert.Empty(t, listToolNames(t, env, "", sid))
	})
}

func TestToolsListFiltersByPermission(t *testing.T) {
	env := newTestEnv(t, true)

	tests := []struct {
		user string
		want []string
	}{
		{"admin", []string{"echo", "fail", "lookup"}},
		{"reader", []string{"lookup"}},
		{"echoer", []string{"echo"}},
	}
	for _, tt := range tests {
		sid := env.initialize(t, tt.user)
		assert.Equal(t, tt.want, listToolNames(t, env, tt.user, sid), tt.user)
	}
}

func TestToolsCall(t *testing.T) {
	t.Run("executes allowed tool", func(t *testing.T) {
		env := newTestEnv(t, true)
		sid := env.initialize(t, "echoer")

		reply := callTool(t, env, "echoer", sid, "echo", `{"message":"hi"}`)
		require.Nil(t, reply.Error)
		var result MCPCallToolResult
		require.NoError(t, json.Unmarshal(reply.Result, &result))
		assert.False(t, result.IsError)
		require.Len(t, result.Content, 1)
		assert.JSONEq(t, `{"message":"hi"}`, result.Content[0].Text)

		evt := env.audit.last()
		assert.Equal(t, audit.EventToolExecute, evt.Type)
		assert.Equal(t, "echoer", evt.Actor)
		assert.Equal(t, audit.OutcomeSuccess, evt.Outcome)
		assert.Equal(t, "echo", evt.Context["tool"])
	})

	t.Run("denies tool without permission", func(t *testing.T) {
		env := newTestEnv(t, true)
		sid := env.initialize(t, "reader")

		reply := callTool(t, env, "reader", sid, "echo", `{"message":"hi"}`)
		require.NotNil(t, reply.Error)
		assert.Equal(t, JSONRPCInvalidRequest, reply.Error.Code)
		assert.Equal(t, "permission denied", reply.Error.Message)
		assert.Equal(t, audit.OutcomeFailure, env.audit.last().Outcome)
	})

	t.Run("handler error is an isError result", func(t *testing.T) {
		env := newTestEnv(t, true)
		sid := env.initialize(t, "admin")

		reply := callTool(t, env, "admin", sid, "fail", `{}`)
		require.Nil(t, reply.Error)
		var result MCPCallToolResult
		require.NoError(t, json.Unmarshal(reply.Result, &result))
		assert.True(t, result.IsError)
		assert.Equal(t, "boom", result.Content[0].Text)
	})

	t.Run("schema violation is invalid params", func(t *testing.T) {
		env := newTestEnv(t, true)
		sid := env.initialize(t, "admin")

		reply := callTool(t, env, "admin", sid, "echo", `{"message":42}`)
		require.NotNil(t, reply.Error)
		assert.Equal(t, JSONRPCInvalidParams, reply.Error.Code)
	})

	t.Run("unknown tool", func(t *testing.T) {
		env := newTestEnv(t, true)
		sid := env.initialize(t, "admin")

		reply := callTool(t, env, "admin", sid, "nope", `{}`)
		require.NotNil(t, reply.Error)
		assert.Equal(t, JSONRPCInvalidParams, reply.Error.Code)
		assert.Equal(t, "tool not found", reply.Error.Message)
	})
}

func TestToolsCallCachesCacheableResults(t *testing.T) {
	env := newTestEnv(t, true)
	sid := env.initialize(t, "reader")

	first := callTool(t, env, "reader", sid, "lookup", `{"a":1,"b":2}`)
	second := callTool(t, env, "reader", sid, "lookup", `{"b":2,"a":1}`)
	require.Nil(t, first.Error)
	require.Nil(t, second.Error)

	assert.Equal(t, int32(1), env.lookups.Load(), "second call should be served from cache")
	assert.JSONEq(t, string(first.Result), string(second.Result))

	callTool(t, env, "reader", sid, "lookup", `{"a":2}`)
	assert.Equal(t, int32(2), env.lookups.Load())

	stats, err := env.cache.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.L1Hits)
}

func TestSessionHandling(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("missing session id", func(t *testing.T) {
		rr := env.post(t, "admin", "", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown session id", func(t *testing.T) {
		rr := env.post(t, "admin", "does-not-exist", `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("session owned by another principal", func(t *testing.T) {
		sid := env.initialize(t, "admin")
		rr := env.post(t, "reader", sid, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("notification accepted", func(t *testing.T) {
		sid := env.initialize(t, "admin")
		rr := env.post(t, "admin", sid, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Empty(t, rr.Body.String())
	})

	t.Run("unknown method", func(t *testing.T) {
		sid := env.initialize(t, "admin")
		reply := decodeReply(t, env.post(t, "admin", sid, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`))
		require.NotNil(t, reply.Error)
		assert.Equal(t, JSONRPCMethodNotFound, reply.Error.Code)
	})

	t.Run("unsupported protocol version", func(t *testing.T) {
		sid := env.initialize(t, "admin")
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
		req.Header.Set("Authorization", "Bearer "+env.tokens["admin"])
		req.Header.Set("Mcp-Session-Id", sid)
		req.Header.Set("Mcp-Protocol-Version", "1999-01-01")
		rr := httptest.NewRecorder()
		env.server.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDeleteSession(t *testing.T) {
	env := newTestEnv(t, true)
	sid := env.initialize(t, "admin")

	del := func(user, session string) int {
		req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
		if user != "" {
			req.Header.Set("Authorization", "Bearer "+env.tokens[user])
		}
		if session != "" {
			req.Header.Set("Mcp-Session-Id", session)
		}
		rr := httptest.NewRecorder()
		env.server.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusBadRequest, del("admin", ""))
	assert.Equal(t, http.StatusNotFound, del("admin", "nope"))
	assert.Equal(t, http.StatusForbidden, del("reader", sid))
	assert.Equal(t, http.StatusNoContent, del("admin", sid))
	assert.Equal(t, 0, env.server.SessionCount())
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, true)

	reply := decodeReply(t, env.post(t, "admin", "", `{not json`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, JSONRPCParseError, reply.Error.Code)

	reply = decodeReply(t, env.post(t, "admin", "", `{"jsonrpc":"1.0","id":1,"method":"initialize"}`))
	require.NotNil(t, reply.Error)
	assert.Equal(t, JSONRPCInvalidRequest, reply.Error.Code)

	big := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	reply = decodeReply(t, env.post(t, "admin", "", big))
	require.NotNil(t, reply.Error)
	assert.Equal(t, "request body too large", reply.Error.Message)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestNewServerValidation(t *testing.T) {
	logger := quietLogger()
	router, err := packs.NewRouter(packs.RouterConfig{Registry: packs.NewRegistry(logger), Logger: logger})
	require.NoError(t, err)
	az := authz.NewManagerWithDefaults(logger)

	_, err = NewServer(Config{Authz: az})
	assert.Error(t, err, "router required")

	_, err = NewServer(Config{Router: router})
	assert.Error(t, err, "authz required")

	_, err = NewServer(Config{Router: router, Authz: az, RequireAuth: true})
	assert.Error(t, err, "validator required with RequireAuth")

	_, err = NewServer(Config{Router: router, Authz: az})
	assert.NoError(t, err)
}
