// ABOUTME: Role registry and permission checks for authenticated principals
// ABOUTME: Direct permissions are checked first, then the permissions of each role

package authz

import (
	"log/slog"
	"sort"
	"sync"
)

// Predefined role names.
const (
	RoleAdmin         = "admin"
	RoleReadOnly      = "read_only"
	RoleDataScientist = "data_scientist"
)

// Role is a named bundle of permissions.
type Role struct {
	Name        string
	Permissions []Permission
}

// Manager holds the named roles known to the gateway.
type Manager struct {
	mu     sync.RWMutex
	roles  map[string]Role
	logger *slog.Logger
}

// NewManager creates a Manager with no roles.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		roles:  make(map[string]Role),
		logger: logger.With("component", "authz"),
	}
}

// NewManagerWithDefaults creates a Manager with the admin, read_only and
// data_scientist roles registered.
func NewManagerWithDefaults(logger *slog.Logger) *Manager {
	m := NewManager(logger)
	m.AddRole(AdminRole())
	m.AddRole(ReadOnlyRole())
	m.AddRole(DataScientistRole())
	return m
}

// AddRole registers a role, replacing any role with the same name.
func (m *Manager) AddRole(role Role) {
	perms := make([]Permission, len(role.Permissions))
	copy(perms, role.Permissions)

	m.mu.Lock()
	m.roles[role.Name] = Role{Name: role.Name, Permissions: perms}
	m.mu.Unlock()

	m.logger.Debug("role registered", "role", role.Name, "permissions", len(perms))
}

// GetRole returns the role with the given name.
func (m *Manager) GetRole(name string) (Role, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	role, ok := m.roles[name]
	if !ok {
		return Role{}, false
	}
	perms := make([]Permission, len(role.Permissions))
	copy(perms, role.Permissions)
	return Role{Name: role.Name, Permissions: perms}, true
}

// ListRoles returns the registered role names in sorted order.
func (m *Manager) ListRoles() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.roles))
	for name := range m.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckPermission reports whether the given roles or direct permission strings
// grant action on the resource. Malformed permission strings and unknown role
// names are skipped.
func (m *Manager) CheckPermission(roles, permissions []string, resourceType ResourceType, resourceID string, action Action) bool {
	for _, s := range permissions {
		perm, err := ParsePermission(s)
		if err != nil {
			m.logger.Debug("skipping malformed permission", "permission", s, "error", err)
			continue
		}
		if perm.Matches(resourceType, resourceID, action) {
			return true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range roles {
		role, ok := m.roles[name]
		if !ok {
			continue
		}
		for _, perm := range role.Permissions {
			if perm.Matches(resourceType, resourceID, action) {
				return true
			}
		}
	}
	return false
}

// AdminRole grants admin on every resource of every type.
func AdminRole() Role {
	perms := make([]Permission, 0, len(ResourceTypes))
	for _, rt := range ResourceTypes {
		perms = append(perms, Permission{ResourceType: rt, ResourceID: "*", Action: ActionAdmin})
	}
	return Role{Name: RoleAdmin, Permissions: perms}
}

// ReadOnlyRole grants read on every resource of every type.
func ReadOnlyRole() Role {
	perms := make([]Permission, 0, len(ResourceTypes))
	for _, rt := range ResourceTypes {
		perms = append(perms, Permission{ResourceType: rt, ResourceID: "*", Action: ActionRead})
	}
	return Role{Name: RoleReadOnly, Permissions: perms}
}

// DataScientistRole grants read and execute on data and functions, and read
// on adapters.
func DataScientistRole() Role {
	return Role{
		Name: RoleDataScientist,
		Permissions: []Permission{
			MustParsePermission("adapter:*:read"),
			MustParsePermission("data:*:read"),
			MustParsePermission("data:*:execute"),
			MustParsePermission("function:*:read"),
			MustParsePermission("function:*:execute"),
		},
	}
}
