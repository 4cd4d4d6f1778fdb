// ABOUTME: Tests for the adapter registry and instance manager lifecycle
// ABOUTME: Uses a recording fake adapter so no external service is needed

package adapters

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	initErr     error
	shutdownErr error
	initialized map[string]any
	shutdown    bool
	lastReq     DataRequest
	deadline    bool
}

func (f *fakeAdapter) Initialize(ctx context.Context, config map[string]any) error {
	f.initialized = config
	return f.initErr
}

func (f *fakeAdapter) Metadata(ctx context.Context) Metadata {
	return Metadata{Name: "fake", Capabilities: []Capability{CapabilityRead}}
}

func (f *fakeAdapter) Execute(ctx context.Context, req DataRequest) (*DataResponse, error) {
	f.lastReq = req
	_, f.deadline = ctx.Deadline()
	return &DataResponse{Data: req.Query, StatusCode: 200}, nil
}

func (f *fakeAdapter) HealthCheck(ctx context.Context) bool { return !f.shutdown }

func (f *fakeAdapter) Shutdown(ctx context.Context) error {
	f.shutdown = true
	return f.shutdownErr
}

func newFakeManager(t *testing.T, fake *fakeAdapter) *Manager {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register("fake", func() Adapter { return fake }))
	return NewManager(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry()
	assert.Equal(t, []string{TypePostgres, TypeRESTAPI}, reg.Types())

	err := reg.Register(TypeRESTAPI, NewRESTAdapter)
	assert.ErrorIs(t, err, ErrAdapterTypeExists)

	_, err = reg.Get("mongo")
	assert.ErrorIs(t, err, ErrUnknownAdapterType)
}

func TestManager_Lifecycle(t *testing.T) {
	fake := &fakeAdapter{}
	m := newFakeManager(t, fake)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "fake", "one", map[string]any{"k": "v"}))
	assert.Equal(t, "v", fake.initialized["k"])

	typ, ok := m.InstanceType("one")
	assert.True(t, ok)
	assert.Equal(t, "fake", typ)
	assert.Equal(t, []string{"one"}, m.InstanceIDs())

	err := m.Create(ctx, "fake", "one", nil)
	assert.ErrorIs(t, err, ErrInstanceExists)

	resp, err := m.Execute(ctx, "one", DataRequest{Query: "GET /x"})
	require.NoError(t, err)
	assert.Equal(t, "GET /x", resp.Data)
	assert.False(t, fake.deadline)

	_, err = m.Execute(ctx, "one", DataRequest{Query: "GET /y", TimeoutMS: 500})
	require.NoError(t, err)
	assert.True(t, fake.deadline, "TimeoutMS should bound the context")

	md, err := m.Metadata(ctx, "one")
	require.NoError(t, err)
	assert.Equal(t, "fake", md.Name)

	healthy, err := m.HealthCheck(ctx, "one")
	require.NoError(t, err)
	assert.True(t, healthy)

	require.NoError(t, m.Shutdown(ctx, "one"))
	assert.True(t, fake.shutdown)
	assert.Empty(t, m.InstanceIDs())
	assert.NoError(t, m.Shutdown(ctx, "one"), "unknown instance shutdown is a no-op")
}

func TestManager_Errors(t *testing.T) {
	fake := &fakeAdapter{initErr: errors.New("bad config")}
	m := newFakeManager(t, fake)
	ctx := context.Background()

	err := m.Create(ctx, "mongo", "x", nil)
	assert.ErrorIs(t, err, ErrUnknownAdapterType)

	err = m.Create(ctx, "fake", "x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")
	assert.Empty(t, m.InstanceIDs(), "failed init must not register an instance")

	_, err = m.Execute(ctx, "missing", DataRequest{})
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	_, err = m.Metadata(ctx, "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
	_, err = m.HealthCheck(ctx, "missing")
	assert.ErrorIs(t, err, ErrInstanceNotFound)
}

func TestManager_ShutdownAllJoinsErrors(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, reg.Register("ok", func() Adapter { return &fakeAdapter{} }))
	require.NoError(t, reg.Register("bad", func() Adapter { return &fakeAdapter{shutdownErr: boom} }))
	m := NewManager(reg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, "ok", "a", nil))
	require.NoError(t, m.Create(ctx, "bad", "b", nil))
	require.NoError(t, m.Create(ctx, "ok", "c", nil))

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := m.ShutdownAll(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, m.InstanceIDs())
}
