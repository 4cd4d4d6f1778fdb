// ABOUTME: Adapter contract for external data sources plus request/response types
// ABOUTME: Adapter configs arrive as loose maps and are decoded with mapstructure

package adapters

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrUnknownAdapterType = errors.New("unknown adapter type")
	ErrAdapterTypeExists  = errors.New("adapter type already registered")
	ErrInstanceNotFound   = errors.New("adapter instance not found")
	ErrInstanceExists     = errors.New("adapter instance already exists")
	ErrNotInitialized     = errors.New("adapter not initialized")
	ErrInvalidConfig      = errors.New("invalid adapter config")
)

// Capability is something an adapter can do.
type Capability string

const (
	CapabilityRead         Capability = "read"
	CapabilityWrite        Capability = "write"
	CapabilitySearch       Capability = "search"
	CapabilityStream       Capability = "stream"
	CapabilityFunctionCall Capability = "function_call"
)

// Metadata describes an adapter implementation.
type Metadata struct {
	Name                   string       `json:"name"`
	Version                string       `json:"version"`
	Description            string       `json:"description"`
	Capabilities           []Capability `json:"capabilities"`
	SchemaSupported        bool         `json:"schema_supported"`
	AuthenticationRequired bool         `json:"authentication_required"`
}

// DataRequest is a single operation against an adapter instance.
type DataRequest struct {
	Query      string         `json:"query"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	MaxResults int            `json:"max_results,omitempty"`
	TimeoutMS  int            `json:"timeout_ms,omitempty"`
}

// DataResponse is what an adapter returns. A non-empty Error with a
// StatusCode describes an upstream failure that still produced a response.
type DataResponse struct {
	Data       any            `json:"data"`
	Metadata   map[string]any `json:"metadata"`
	StatusCode int            `json:"status_code"`
	Error      string         `json:"error,omitempty"`
}

// Adapter connects the gateway to one external data source.
type Adapter interface {
	Initialize(ctx context.Context, config map[string]any) error
	Metadata(ctx context.Context) Metadata
	Execute(ctx context.Context, req DataRequest) (*DataResponse, error)
	HealthCheck(ctx context.Context) bool
	Shutdown(ctx context.Context) error
}

// Factory creates an uninitialized adapter.
type Factory func() Adapter

// decodeConfig decodes a loose config map into out using mapstructure tags.
func decodeConfig(config map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("creating config decoder: %w", err)
	}
	if err := dec.Decode(config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
