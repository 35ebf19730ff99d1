// Package guard authorizes tenant-scoped operations and keeps fetched
// records inside the caller's tenant boundary.
//
// An Authorizer wraps an external ABAC decision function (the Evaluator).
// Authorize merges the call site's access requirements with the
// authorizer's defaults, runs the evaluator, derives a tenant scope from
// the returned access context, and only then invokes the caller's handler.
// Every failure on that path is normalized into a single *Error carrying a
// readable message, the preserved cause, and the operation being attempted.
//
// AssertTenantRecord is the one choke point between storage and handlers:
// every record read from a repository must pass through it before use, so a
// row from another organization can never leak across the tenant boundary.
//
// Basic usage:
//
//	authorizer := guard.New(evaluator, guard.WithDefaults(guard.Defaults{
//	    RequiredPermissions: roles.PermissionMap{"leave": {"read"}},
//	    AuditSource:         "hr-api",
//	}))
//
//	req, err := guard.Authorize(ctx, authorizer, guard.AccessInput{
//	    OrgID:               orgID,
//	    UserID:              userID,
//	    Operation:           "approve",
//	    Resource:            "leave_request",
//	    ResourceID:          id,
//	    RequiredPermissions: roles.PermissionMap{"leave": {"approve"}},
//	}, func(ctx context.Context, ac *guard.Context) (*LeaveRequest, error) {
//	    rec, err := repo.Find(ctx, id)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return guard.AssertTenantRecord(rec, ac)
//	})
//
// A process-wide instance is available through Default for call sites that
// do not need custom wiring; explicit construction with New remains the
// primary path.
package guard
