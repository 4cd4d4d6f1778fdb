// Package authz decides whether a principal may perform an action on a resource.
//
// Permissions are triples written as resource_type:resource_id:action, for
// example "adapter:postgres:read" or "function:filesystem_*:execute". The
// resource id may be "*" or end with "*" to match a prefix, and the "admin"
// action implies every other action.
//
// A Manager holds named roles. CheckPermission looks at the caller's direct
// permission strings first and then at the permissions of each role the caller
// holds:
//
//	m := authz.NewManagerWithDefaults(logger)
//	ok := m.CheckPermission(principal.Roles, principal.Permissions,
//		authz.ResourceAdapter, "postgres", authz.ActionCreate)
package authz
