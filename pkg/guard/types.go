package guard

import (
	"github.com/crewsuite/authz/pkg/roles"
)

// AccessInput describes the operation a call site wants authorized.
// Before evaluation it is merged with the authorizer's defaults: required
// permission maps become the per-resource union of both, while the
// classification, residency, and audit source fields prefer call-site
// values over defaults.
type AccessInput struct {
	OrgID                  string
	UserID                 string
	Operation              string
	Resource               string
	ResourceID             string
	RequiredPermissions    roles.PermissionMap
	ExpectedClassification string
	ExpectedResidency      string
	AuditSource            string
	Metadata               map[string]string
}

// Context is the authorization context of one authorized operation.
// The evaluator creates it, the authorizer completes the tenant scope and
// correlation ID, and from then on it is treated as immutable while it is
// carried by reference through the call chain.
type Context struct {
	OrgID              string
	UserID             string
	RoleKey            string
	Permissions        roles.PermissionMap
	DataClassification string
	DataResidency      string
	TenantScope        TenantScope
	CorrelationID      string
	AuditSource        string
	PIIAccessRequired  bool
	MFAVerified        bool
}

// TenantScope is the bounded context an operation and its records must
// remain within.
type TenantScope struct {
	OrgID              string
	DataResidency      string
	DataClassification string
	AuditSource        string
}

// DeriveTenantScope builds the tenant scope for an access context.
// The derivation is deterministic: equal contexts produce equal scopes.
func DeriveTenantScope(c Context) TenantScope {
	return TenantScope{
		OrgID:              c.OrgID,
		DataResidency:      c.DataResidency,
		DataClassification: c.DataClassification,
		AuditSource:        c.AuditSource,
	}
}

// TenantRecord is any persisted record that knows which organization owns it.
type TenantRecord interface {
	TenantOrgID() string
}
