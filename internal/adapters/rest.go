// ABOUTME: rest_api adapter: forwards "METHOD /path" queries to a configured base URL
// ABOUTME: Responses decode as JSON when possible and fall back to text

package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TypeRESTAPI is the registry type id of the REST adapter.
const TypeRESTAPI = "rest_api"

const (
	defaultRESTTimeout = 30 * time.Second
	maxRESTBodyBytes   = 10 << 20
)

// RESTConfig is decoded from the adapter config map.
type RESTConfig struct {
	BaseURL         string            `mapstructure:"base_url"`
	Headers         map[string]string `mapstructure:"headers"`
	TimeoutSeconds  float64           `mapstructure:"timeout_seconds"`
	FollowRedirects *bool             `mapstructure:"follow_redirects"`
}

// RESTAdapter calls an HTTP API.
type RESTAdapter struct {
	mu     sync.RWMutex
	cfg    RESTConfig
	base   *url.URL
	client *http.Client
}

// NewRESTAdapter is the rest_api factory.
func NewRESTAdapter() Adapter {
	return &RESTAdapter{}
}

func (a *RESTAdapter) Initialize(ctx context.Context, config map[string]any) error {
	var cfg RESTConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return err
	}
	if cfg.BaseURL == "" {
		return fmt.Errorf("%w: base_url is required", ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return fmt.Errorf("%w: base_url must be an absolute URL", ErrInvalidConfig)
	}

	timeout := defaultRESTTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds * float64(time.Second))
	}
	client := &http.Client{Timeout: timeout}
	if cfg.FollowRedirects != nil && !*cfg.FollowRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	a.mu.Lock()
	a.cfg = cfg
	a.base = base
	a.client = client
	a.mu.Unlock()
	return nil
}

func (a *RESTAdapter) Metadata(ctx context.Context) Metadata {
	return Metadata{
		Name:                   "REST API Adapter",
		Version:                "1.0.0",
		Description:            "Forwards requests to a REST API",
		Capabilities:           []Capability{CapabilityRead, CapabilityWrite, CapabilitySearch},
		SchemaSupported:        false,
		AuthenticationRequired: false,
	}
}

// parseRESTQuery splits "METHOD /path". A bare path means GET.
func parseRESTQuery(query string) (method, path string) {
	fields := strings.Fields(query)
	switch len(fields) {
	case 0:
		return http.MethodGet, "/"
	case 1:
		return http.MethodGet, fields[0]
	default:
		return strings.ToUpper(fields[0]), fields[1]
	}
}

func (a *RESTAdapter) Execute(ctx context.Context, req DataRequest) (*DataResponse, error) {
	a.mu.RLock()
	base, client, cfg := a.base, a.client, a.cfg
	a.mu.RUnlock()
	if client == nil {
		return nil, ErrNotInitialized
	}

	method, path := parseRESTQuery(req.Query)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := *base
	target.Path = base.Path + path

	q := target.Query()
	for k, v := range stringMap(req.Parameters["params"]) {
		q.Set(k, v)
	}
	target.RawQuery = q.Encode()

	var body io.Reader
	if raw, ok := req.Parameters["body"]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range stringMap(req.Parameters["headers"]) {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rest request %s %s: %w", method, target.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRESTBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	out := &DataResponse{
		Data:       data,
		StatusCode: resp.StatusCode,
		Metadata: map[string]any{
			"status_code": resp.StatusCode,
			"headers":     headers,
			"url":         target.String(),
			"method":      method,
		},
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.Error = string(raw)
	}
	return out, nil
}

// HealthCheck reports whether the base URL answers without a server error.
func (a *RESTAdapter) HealthCheck(ctx context.Context) bool {
	a.mu.RLock()
	base, client := a.base, a.client
	a.mu.RUnlock()
	if client == nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < http.StatusInternalServerError
}

func (a *RESTAdapter) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil {
		return nil
	}
	a.client.CloseIdleConnections()
	a.client = nil
	return nil
}

// stringMap flattens a loose map into string values.
func stringMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		for k, val := range m {
			if val == nil {
				continue
			}
			if s, ok := val.(string); ok {
				out[k] = s
				continue
			}
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

var _ Adapter = (*RESTAdapter)(nil)
