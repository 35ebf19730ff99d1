// Package roles resolves the effective permission set of organization roles,
// including permissions acquired through role inheritance.
//
// A role maps resource names to sets of allowed actions and may inherit from
// other roles. Resolution walks the inheritance graph depth-first with a
// visited set, so cyclic role graphs terminate and each role's permissions
// are merged exactly once. Role data is read through the RoleSource
// collaborator; resolved maps are memoized per organization and role in a
// bounded TTL cache.
//
// Basic usage:
//
//	source := roles.NewInMemRoleSource([]roles.Role{
//	    {OrgID: "org1", ID: "viewer", Permissions: roles.PermissionMap{
//	        "doc": {"read"},
//	    }},
//	    {OrgID: "org1", ID: "editor", Inherits: []string{"viewer"}, Permissions: roles.PermissionMap{
//	        "doc": {"write"},
//	    }},
//	})
//
//	resolver := roles.NewResolver(source)
//	perms, err := resolver.ResolveRolePermissions(ctx, "org1", "editor")
//	// perms = {"doc": ["read", "write"]}
//
// After a role changes, call InvalidateOrgPermissions to drop the
// organization's cached resolutions ahead of the TTL.
package roles
