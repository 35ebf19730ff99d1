package guard

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crewsuite/authz/pkg/roles"
)

// Evaluator is the external ABAC decision function. It returns the access
// context of a granted request and an error for a denied one. Evaluators
// may suspend on I/O: role resolution, policy lookups, network calls.
type Evaluator func(ctx context.Context, input AccessInput) (*Context, error)

// Defaults are merged into every AccessInput before evaluation.
type Defaults struct {
	RequiredPermissions    roles.PermissionMap
	ExpectedClassification string
	ExpectedResidency      string
	AuditSource            string
}

// Authorizer authorizes tenant-scoped operations through an Evaluator.
type Authorizer struct {
	evaluator Evaluator
	defaults  Defaults
	logger    *slog.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithDefaults sets engine-level access requirements merged into every input.
func WithDefaults(defaults Defaults) Option {
	return func(a *Authorizer) {
		a.defaults = defaults
	}
}

// WithLogger sets the authorizer's logger. Nil loggers are ignored.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Authorizer around the given evaluator.
// Panics if evaluator is nil.
func New(evaluator Evaluator, opts ...Option) *Authorizer {
	if evaluator == nil {
		panic("guard: evaluator cannot be nil")
	}

	a := &Authorizer{
		evaluator: evaluator,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler runs the authorized operation with a completed access context.
type Handler[T any] func(ctx context.Context, ac *Context) (T, error)

// Authorize merges input with the authorizer's defaults, runs the
// evaluator, and on success invokes handler with the completed access
// context (tenant scope derived, correlation ID assigned) both as an
// argument and stored in the request context. Evaluator failures and
// panics are normalized into a single *Error before propagating.
func Authorize[T any](ctx context.Context, a *Authorizer, input AccessInput, handler Handler[T]) (T, error) {
	var zero T

	merged := a.mergeInput(input)

	ac, err := a.evaluate(ctx, merged)
	if err != nil {
		normalized := normalizeError(err, merged)
		a.logger.WarnContext(ctx, "authorization denied",
			slog.String("org_id", merged.OrgID),
			slog.String("user_id", merged.UserID),
			slog.String("operation", merged.Operation),
			slog.String("resource", merged.Resource),
			slog.String("error", normalized.Message),
		)
		return zero, normalized
	}

	ac.TenantScope = DeriveTenantScope(*ac)
	if ac.CorrelationID == "" {
		ac.CorrelationID = uuid.New().String()
	}
	if ac.AuditSource == "" {
		ac.AuditSource = merged.AuditSource
		ac.TenantScope.AuditSource = merged.AuditSource
	}

	return handler(WithContext(ctx, ac), ac)
}

// evaluate runs the evaluator, converting panics from misbehaving
// collaborators into ordinary errors so a denial path always produces a
// normalized failure instead of tearing down the request.
func (a *Authorizer) evaluate(ctx context.Context, input AccessInput) (ac *Context, err error) {
	defer func() {
		if r := recover(); r != nil {
			ac = nil
			err = fmt.Errorf("%w: %s", ErrDenied, describeValue(r))
		}
	}()

	ac, err = a.evaluator(ctx, input)
	if err == nil && ac == nil {
		err = fmt.Errorf("%w: evaluator returned no access context", ErrDenied)
	}
	return ac, err
}

// mergeInput combines call-site requirements with the authorizer's
// defaults. Permission requirements are unioned per resource; scalar
// expectations prefer the call site.
func (a *Authorizer) mergeInput(input AccessInput) AccessInput {
	merged := input
	merged.RequiredPermissions = a.defaults.RequiredPermissions.Merge(input.RequiredPermissions)

	if merged.ExpectedClassification == "" {
		merged.ExpectedClassification = a.defaults.ExpectedClassification
	}
	if merged.ExpectedResidency == "" {
		merged.ExpectedResidency = a.defaults.ExpectedResidency
	}
	if merged.AuditSource == "" {
		merged.AuditSource = a.defaults.AuditSource
	}

	return merged
}
