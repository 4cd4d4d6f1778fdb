// ABOUTME: Permission triples of the form resource_type:resource_id:action
// ABOUTME: Parses permission strings and matches them against requested operations

package authz

import (
	"errors"
	"fmt"
	"strings"
)

// Permission errors
var (
	ErrInvalidPermission   = errors.New("invalid permission")
	ErrUnknownResourceType = errors.New("unknown resource type")
	ErrUnknownAction       = errors.New("unknown action")
)

// ResourceType is the kind of resource a permission protects.
type ResourceType string

const (
	ResourceAdapter  ResourceType = "adapter"
	ResourceData     ResourceType = "data"
	ResourceFunction ResourceType = "function"
	ResourceSystem   ResourceType = "system"
)

// ResourceTypes lists every known resource type.
var ResourceTypes = []ResourceType{
	ResourceAdapter,
	ResourceData,
	ResourceFunction,
	ResourceSystem,
}

// Action is an operation performed on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	// ActionAdmin grants every other action on the matching resources.
	ActionAdmin Action = "admin"
)

// Actions lists every known action.
var Actions = []Action{
	ActionCreate,
	ActionRead,
	ActionUpdate,
	ActionDelete,
	ActionExecute,
	ActionAdmin,
}

// ParseResourceType converts a string into a known ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	for _, rt := range ResourceTypes {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResourceType, s)
}

// ParseAction converts a string into a known Action.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Permission grants an action on one resource, a wildcard set, or a prefix set.
//
// ResourceID "*" matches every id. A ResourceID ending in "*" matches every id
// that starts with the part before the star.
type Permission struct {
	ResourceType ResourceType
	ResourceID   string
	Action       Action
}

// ParsePermission parses a string like "adapter:postgres:read".
func ParsePermission(s string) (Permission, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("%w: %q: expected resource_type:resource_id:action", ErrInvalidPermission, s)
	}

	rt, err := ParseResourceType(parts[0])
	if err != nil {
		return Permission{}, fmt.Errorf("%w: %w", ErrInvalidPermission, err)
	}

	action, err := ParseAction(parts[2])
	if err != nil {
		return Permission{}, fmt.Errorf("%w: %w", ErrInvalidPermission, err)
	}

	return Permission{
		ResourceType: rt,
		ResourceID:   parts[1],
		Action:       action,
	}, nil
}

// MustParsePermission is like ParsePermission but panics on error.
// Intended for static role tables.
func MustParsePermission(s string) Permission {
	p, err := ParsePermission(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the resource_type:resource_id:action form.
func (p Permission) String() string {
	return string(p.ResourceType) + ":" + p.ResourceID + ":" + string(p.Action)
}

// Matches reports whether p grants action on the given resource.
func (p Permission) Matches(resourceType ResourceType, resourceID string, action Action) bool {
	if p.ResourceType != resourceType {
		return false
	}
	if !p.matchesID(resourceID) {
		return false
	}
	return p.Action == ActionAdmin || p.Action == action
}

func (p Permission) matchesID(resourceID string) bool {
	switch {
	case p.ResourceID == "*":
		return true
	case p.ResourceID == resourceID:
		return true
	case strings.HasSuffix(p.ResourceID, "*"):
		return strings.HasPrefix(resourceID, strings.TrimSuffix(p.ResourceID, "*"))
	default:
		return false
	}
}
