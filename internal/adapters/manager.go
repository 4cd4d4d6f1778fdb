// ABOUTME: Adapter type registry and the manager that owns live adapter instances
// ABOUTME: Instances are created from registered factories and addressed by instance id

package adapters

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry maps adapter type ids to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry creates a registry with the rest_api and postgres types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(TypeRESTAPI, NewRESTAdapter)
	_ = r.Register(TypePostgres, NewPostgresAdapter)
	return r
}

// Register adds a factory. Registering a type twice is an error.
func (r *Registry) Register(typeID string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[typeID]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterTypeExists, typeID)
	}
	r.factories[typeID] = f
	return nil
}

// Get returns the factory for typeID.
func (r *Registry) Get(typeID string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAdapterType, typeID)
	}
	return f, nil
}

// Types returns the registered type ids, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type instance struct {
	typeID  string
	adapter Adapter
}

// Manager owns initialized adapter instances.
type Manager struct {
	registry *Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	instances map[string]*instance
}

// NewManager creates a manager that builds instances from registry.
func NewManager(registry *Registry, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:  registry,
		logger:    logger.With("component", "adapters"),
		instances: make(map[string]*instance),
	}
}

// Create initializes a new adapter of typeID and stores it under instanceID.
func (m *Manager) Create(ctx context.Context, typeID, instanceID string, config map[string]any) error {
	factory, err := m.registry.Get(typeID)
	if err != nil {
		return err
	}

	m.mu.RLock()
	_, exists := m.instances[instanceID]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%w: %s", ErrInstanceExists, instanceID)
	}

	a := factory()
	if err := a.Initialize(ctx, config); err != nil {
		return fmt.Errorf("initializing %s adapter: %w", typeID, err)
	}

	m.mu.Lock()
	if _, exists := m.instances[instanceID]; exists {
		m.mu.Unlock()
		_ = a.Shutdown(ctx)
		return fmt.Errorf("%w: %s", ErrInstanceExists, instanceID)
	}
	m.instances[instanceID] = &instance{typeID: typeID, adapter: a}
	m.mu.Unlock()

	m.logger.Info("adapter created", "type", typeID, "instance_id", instanceID)
	return nil
}

func (m *Manager) get(instanceID string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	return inst, nil
}

// Execute runs req on the instance, bounded by req.TimeoutMS when set.
func (m *Manager) Execute(ctx context.Context, instanceID string, req DataRequest) (*DataResponse, error) {
	inst, err := m.get(instanceID)
	if err != nil {
		return nil, err
	}
	if req.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutMS)*time.Millisecond)
		defer cancel()
	}
	return inst.adapter.Execute(ctx, req)
}

// Metadata returns the instance's adapter metadata.
func (m *Manager) Metadata(ctx context.Context, instanceID string) (Metadata, error) {
	inst, err := m.get(instanceID)
	if err != nil {
		return Metadata{}, err
	}
	return inst.adapter.Metadata(ctx), nil
}

// HealthCheck reports whether the instance is healthy.
func (m *Manager) HealthCheck(ctx context.Context, instanceID string) (bool, error) {
	inst, err := m.get(instanceID)
	if err != nil {
		return false, err
	}
	return inst.adapter.HealthCheck(ctx), nil
}

// InstanceType returns the type id of an instance.
func (m *Manager) InstanceType(instanceID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[instanceID]
	if !ok {
		return "", false
	}
	return inst.typeID, true
}

// InstanceIDs returns every live instance id, sorted.
func (m *Manager) InstanceIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Shutdown stops and removes one instance. Unknown ids are a no-op.
func (m *Manager) Shutdown(ctx context.Context, instanceID string) error {
	m.mu.Lock()
	inst, ok := m.instances[instanceID]
	delete(m.instances, instanceID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := inst.adapter.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down adapter %s: %w", instanceID, err)
	}
	m.logger.Info("adapter shut down", "type", inst.typeID, "instance_id", instanceID)
	return nil
}

// ShutdownAll stops every instance and joins their errors.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.InstanceIDs() {
		errs = append(errs, m.Shutdown(ctx, id))
	}
	return errors.Join(errs...)
}

// Close implements io.Closer for shutdown sequencing.
func (m *Manager) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.ShutdownAll(ctx)
}
