package roles

import (
	"context"
	"slices"
	"sync"
)

// RoleSource provides role data to the resolver.
type RoleSource interface {
	// GetRole returns the role identified by orgID and roleID,
	// or (nil, nil) if no such role exists.
	GetRole(ctx context.Context, orgID, roleID string) (*Role, error)
}

// inMemRoleSource is a RoleSource backed by an in-memory role set.
// It's thread-safe and makes defensive copies to prevent external modifications.
type inMemRoleSource struct {
	mu    sync.RWMutex
	roles map[string]map[string]Role // orgID -> roleID -> role
}

// NewInMemRoleSource creates a RoleSource from a static role set.
// Useful for tests and for systems that load all roles at startup.
func NewInMemRoleSource(roles []Role) RoleSource {
	byOrg := make(map[string]map[string]Role)
	for _, role := range roles {
		org, ok := byOrg[role.OrgID]
		if !ok {
			org = make(map[string]Role)
			byOrg[role.OrgID] = org
		}
		org[role.ID] = Role{
			OrgID:       role.OrgID,
			ID:          role.ID,
			Permissions: role.Permissions.Clone(),
			Inherits:    slices.Clone(role.Inherits),
		}
	}

	return &inMemRoleSource{roles: byOrg}
}

// GetRole returns a copy of the stored role, or (nil, nil) when absent.
func (s *inMemRoleSource) GetRole(ctx context.Context, orgID, roleID string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[orgID][roleID]
	if !ok {
		return nil, nil
	}

	out := Role{
		OrgID:       role.OrgID,
		ID:          role.ID,
		Permissions: role.Permissions.Clone(),
		Inherits:    slices.Clone(role.Inherits),
	}
	return &out, nil
}
