package roles

import (
	"context"
	"io"
	"log/slog"

	"github.com/crewsuite/authz/pkg/ttlcache"
)

// Resolver computes effective permission maps by walking the role
// inheritance graph. Resolutions are memoized per "{orgID}:{roleID}" in a
// bounded TTL cache.
type Resolver struct {
	source RoleSource
	cache  *ttlcache.Cache[PermissionMap]
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*resolverOptions)

type resolverOptions struct {
	cacheOpts []ttlcache.Option
	logger    *slog.Logger
}

// WithCacheOptions forwards options to the resolver's permission cache.
func WithCacheOptions(opts ...ttlcache.Option) ResolverOption {
	return func(o *resolverOptions) {
		o.cacheOpts = append(o.cacheOpts, opts...)
	}
}

// WithLogger sets the resolver's logger. Nil loggers are ignored.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(o *resolverOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewResolver creates a Resolver reading role data from source.
// Panics if source is nil.
func NewResolver(source RoleSource, opts ...ResolverOption) *Resolver {
	if source == nil {
		panic("roles: source cannot be nil")
	}

	o := resolverOptions{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Resolver{
		source: source,
		cache:  ttlcache.New[PermissionMap](o.cacheOpts...),
		logger: o.logger,
	}
}

// ResolveRolePermissions returns the effective permission map of a role:
// the union of its own permissions and everything it transitively inherits,
// deduplicated per resource. Unknown roles resolve to an empty map.
// Source errors propagate unchanged; the caller decides whether a
// resolution failure is fail-open or fail-closed.
func (r *Resolver) ResolveRolePermissions(ctx context.Context, orgID, roleID string) (PermissionMap, error) {
	key := orgID + ":" + roleID
	if cached, ok := r.cache.Get(key); ok {
		return cached.Clone(), nil
	}

	resolved, err := r.resolve(ctx, orgID, roleID, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, resolved)
	r.logger.DebugContext(ctx, "resolved role permissions",
		slog.String("org_id", orgID),
		slog.String("role_id", roleID),
		slog.Int("resources", len(resolved)),
	)

	return resolved.Clone(), nil
}

// ResolveMembershipPermissions returns the permission map that applies to a
// membership. Memberships without a role reference carry their own literal
// permissions; memberships with one resolve through the role graph, falling
// back to the literal map only when the role resolves to nothing (for
// example when the role was deleted out from under the membership).
func (r *Resolver) ResolveMembershipPermissions(ctx context.Context, member Membership) (PermissionMap, error) {
	if member.RoleID == "" {
		return member.Permissions.Normalize(), nil
	}

	resolved, err := r.ResolveRolePermissions(ctx, member.OrgID, member.RoleID)
	if err != nil {
		return nil, err
	}
	if len(resolved) == 0 {
		return member.Permissions.Normalize(), nil
	}

	return resolved, nil
}

// InvalidateOrgPermissions drops every cached resolution for the
// organization. There is no per-role invalidation: a role change can affect
// any role that inherits from it.
func (r *Resolver) InvalidateOrgPermissions(orgID string) {
	removed := r.cache.DeletePrefix(orgID + ":")
	r.logger.Debug("invalidated org permission cache",
		slog.String("org_id", orgID),
		slog.Int("entries", removed),
	)
}

// resolve walks the inheritance graph depth-first. A role already in
// visited resolves to an empty map, which both terminates cycles and
// guarantees each role is merged at most once per resolution.
func (r *Resolver) resolve(ctx context.Context, orgID, roleID string, visited map[string]bool) (PermissionMap, error) {
	if visited[roleID] {
		return PermissionMap{}, nil
	}
	visited[roleID] = true

	role, err := r.source.GetRole(ctx, orgID, roleID)
	if err != nil {
		return nil, err
	}
	if role == nil {
		return PermissionMap{}, nil
	}

	merged := role.Permissions.Normalize()
	for _, inheritedID := range role.Inherits {
		if visited[inheritedID] {
			continue
		}
		inherited, err := r.resolve(ctx, orgID, inheritedID, visited)
		if err != nil {
			return nil, err
		}
		merged = merged.Merge(inherited)
	}

	return merged, nil
}
