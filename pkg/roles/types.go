package roles

import (
	"slices"
	"sort"
)

// PermissionMap maps a resource name to the set of actions allowed on it.
// Resource names are case-sensitive; action sets carry no duplicates and
// their order is not significant.
type PermissionMap map[string][]string

// Role is a named permission set scoped to one organization.
// Roles may inherit from other roles in the same organization.
type Role struct {
	OrgID       string        `yaml:"org_id" json:"org_id"`
	ID          string        `yaml:"id" json:"id"`
	Permissions PermissionMap `yaml:"permissions" json:"permissions"`
	Inherits    []string      `yaml:"inherits" json:"inherits,omitempty"`
}

// Membership connects a user to an organization with either a role
// reference or a literal permission map.
type Membership struct {
	OrgID       string        `json:"org_id"`
	UserID      string        `json:"user_id"`
	RoleID      string        `json:"role_id,omitempty"`
	Permissions PermissionMap `json:"permissions,omitempty"`
}

// Normalize returns a copy with deduplicated, sorted action sets.
// Empty action names and resources left without actions are dropped,
// guarding against loosely-typed role data from storage.
func (m PermissionMap) Normalize() PermissionMap {
	out := make(PermissionMap, len(m))
	for resource, actions := range m {
		if resource == "" {
			continue
		}
		cleaned := make([]string, 0, len(actions))
		for _, action := range actions {
			if action == "" || slices.Contains(cleaned, action) {
				continue
			}
			cleaned = append(cleaned, action)
		}
		if len(cleaned) == 0 {
			continue
		}
		sort.Strings(cleaned)
		out[resource] = cleaned
	}

	return out
}

// Merge returns the union of m and other: per resource, the union of both
// action sets. Neither input is modified.
func (m PermissionMap) Merge(other PermissionMap) PermissionMap {
	merged := m.Clone()
	for resource, actions := range other {
		existing := merged[resource]
		for _, action := range actions {
			if !slices.Contains(existing, action) {
				existing = append(existing, action)
			}
		}
		sort.Strings(existing)
		merged[resource] = existing
	}

	return merged
}

// Clone returns a deep copy of the map.
func (m PermissionMap) Clone() PermissionMap {
	out := make(PermissionMap, len(m))
	for resource, actions := range m {
		out[resource] = slices.Clone(actions)
	}
	return out
}

// Has reports whether the map grants action on resource.
func (m PermissionMap) Has(resource, action string) bool {
	return slices.Contains(m[resource], action)
}

// Equal reports whether two maps grant exactly the same permissions,
// ignoring action order.
func (m PermissionMap) Equal(other PermissionMap) bool {
	if len(m) != len(other) {
		return false
	}
	for resource, actions := range m {
		otherActions, ok := other[resource]
		if !ok || len(actions) != len(otherActions) {
			return false
		}
		a := slices.Clone(actions)
		b := slices.Clone(otherActions)
		sort.Strings(a)
		sort.Strings(b)
		if !slices.Equal(a, b) {
			return false
		}
	}

	return true
}
