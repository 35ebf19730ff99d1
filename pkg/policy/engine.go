package policy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/crewsuite/authz/pkg/securitylog"
	"github.com/crewsuite/authz/pkg/ttlcache"
)

// ActionExecutor performs the side effect named by a policy action:
// issuing an MFA challenge, notifying an administrator, quarantining data.
// Executors receive the full evaluation result for context.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, action Action, ectx EvaluationContext, operation, resourceType, resourceID string, result *EvaluationResult) error
}

// ActionExecutorFunc adapts a function to the ActionExecutor interface.
type ActionExecutorFunc func(ctx context.Context, action Action, ectx EvaluationContext, operation, resourceType, resourceID string, result *EvaluationResult) error

func (f ActionExecutorFunc) ExecuteAction(ctx context.Context, action Action, ectx EvaluationContext, operation, resourceType, resourceID string, result *EvaluationResult) error {
	return f(ctx, action, ectx, operation, resourceType, resourceID, result)
}

// OrgSecurityConfig holds an organization's baseline security settings,
// read by InitializeDefaultPolicies.
type OrgSecurityConfig struct {
	// RestrictedClassification denies any operation on data carrying this
	// classification. Empty disables the baseline policy.
	RestrictedClassification string `json:"restricted_classification"`

	// RequiredResidency denies operations on data outside this residency.
	// Empty disables the baseline policy.
	RequiredResidency string `json:"required_residency"`

	// RequireMFA triggers an MFA challenge for unverified sessions.
	RequireMFA bool `json:"require_mfa"`
}

// OrgConfigProvider supplies per-organization security configuration.
type OrgConfigProvider interface {
	GetOrgConfig(ctx context.Context, orgID string) (OrgSecurityConfig, error)
}

// Engine owns a priority-sorted policy list and a bounded decision cache.
type Engine struct {
	mu       sync.RWMutex
	policies []SecurityPolicy

	cache    *ttlcache.Cache[*EvaluationResult]
	events   securitylog.Logger
	executor ActionExecutor
	configs  OrgConfigProvider
	logger   *slog.Logger
	now      func() time.Time
	metrics  *engineMetrics
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	cacheOpts []ttlcache.Option
	events    securitylog.Logger
	executor  ActionExecutor
	configs   OrgConfigProvider
	logger    *slog.Logger
	now       func() time.Time
	metrics   *engineMetrics
}

// WithCacheOptions forwards options to the engine's decision cache.
func WithCacheOptions(opts ...ttlcache.Option) EngineOption {
	return func(o *engineOptions) {
		o.cacheOpts = append(o.cacheOpts, opts...)
	}
}

// WithEventLogger sets the security event logger used for decision auditing.
func WithEventLogger(events securitylog.Logger) EngineOption {
	return func(o *engineOptions) {
		if events != nil {
			o.events = events
		}
	}
}

// WithActionExecutor sets the collaborator that performs policy actions.
// Without one, Enforce skips action execution.
func WithActionExecutor(executor ActionExecutor) EngineOption {
	return func(o *engineOptions) {
		o.executor = executor
	}
}

// WithOrgConfigProvider sets the provider read by InitializeDefaultPolicies.
func WithOrgConfigProvider(configs OrgConfigProvider) EngineOption {
	return func(o *engineOptions) {
		o.configs = configs
	}
}

// WithLogger sets the engine's logger. Nil loggers are ignored.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets the time source used by time-based conditions.
// Intended for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(o *engineOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewEngine creates a policy engine.
func NewEngine(opts ...EngineOption) *Engine {
	o := engineOptions{
		events: securitylog.NewNopLogger(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{
		cache:    ttlcache.New[*EvaluationResult](o.cacheOpts...),
		events:   o.events,
		executor: o.executor,
		configs:  o.configs,
		logger:   o.logger,
		now:      o.now,
		metrics:  o.metrics,
	}
}

// AddPolicy upserts a policy by ID and re-sorts the policy list ascending
// by priority. Adding a policy invalidates cached decisions.
func (e *Engine) AddPolicy(p SecurityPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	replaced := false
	for i := range e.policies {
		if e.policies[i].ID == p.ID {
			e.policies[i] = p.clone()
			replaced = true
			break
		}
	}
	if !replaced {
		e.policies = append(e.policies, p.clone())
	}
	sort.SliceStable(e.policies, func(i, j int) bool {
		return e.policies[i].Priority < e.policies[j].Priority
	})
	e.mu.Unlock()

	e.cache.Clear()
	return nil
}

// AddPolicies upserts several policies at once.
func (e *Engine) AddPolicies(policies ...SecurityPolicy) error {
	for _, p := range policies {
		if err := e.AddPolicy(p); err != nil {
			return err
		}
	}
	return nil
}

// RemovePolicy removes a policy by ID and clears the entire decision cache:
// a removed policy can change any future decision, so no fine-grained
// invalidation is attempted. Removing an unknown ID is a no-op.
func (e *Engine) RemovePolicy(id string) {
	e.mu.Lock()
	kept := e.policies[:0]
	for _, p := range e.policies {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	e.policies = kept
	e.mu.Unlock()

	e.cache.Clear()
}

// GetPolicies returns a copy of the policy list in evaluation order.
func (e *Engine) GetPolicies() []SecurityPolicy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]SecurityPolicy, len(e.policies))
	for i, p := range e.policies {
		out[i] = p.clone()
	}
	return out
}

// ClearCache drops all cached decisions.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// Evaluate runs the enabled policies against the context in ascending
// priority order and returns the combined decision. A matched policy whose
// action set contains deny short-circuits the walk with a denied result;
// otherwise the decision is allowed unless any matched policy denies.
// Evaluate never reports a denial as an error; that conversion is Enforce's.
func (e *Engine) Evaluate(ctx context.Context, ectx EvaluationContext, operation, resourceType, resourceID string) *EvaluationResult {
	key := decisionCacheKey(ectx, operation, resourceType, resourceID)

	if cached, ok := e.cache.Get(key); ok {
		e.metrics.cacheHit()
		return cached.clone()
	}
	e.metrics.cacheMiss()

	now := e.now()
	result := &EvaluationResult{
		Allowed:         true,
		Actions:         []Action{},
		MatchedPolicies: []SecurityPolicy{},
	}

	e.mu.RLock()
	snapshot := make([]SecurityPolicy, len(e.policies))
	copy(snapshot, e.policies)
	e.mu.RUnlock()

	enabled := 0
	for _, p := range snapshot {
		if p.Enabled {
			enabled++
		}
	}
	result.DecisionLog = append(result.DecisionLog,
		fmt.Sprintf("evaluating %d enabled policies for operation=%s resource=%s", enabled, operation, resourceType))

	for _, p := range snapshot {
		if !p.Enabled {
			continue
		}

		if !matchPolicy(p, ectx, now) {
			result.DecisionLog = append(result.DecisionLog,
				fmt.Sprintf("policy %s (priority %d) did not match", p.ID, p.Priority))
			continue
		}

		result.MatchedPolicies = append(result.MatchedPolicies, p.clone())
		result.Actions = append(result.Actions, p.clone().Actions...)
		result.DecisionLog = append(result.DecisionLog,
			fmt.Sprintf("policy %s (priority %d) matched", p.ID, p.Priority))

		if p.Denies() {
			// A higher-priority deny is final; lower-priority policies
			// are never consulted.
			result.Allowed = false
			result.DecisionLog = append(result.DecisionLog,
				fmt.Sprintf("policy %s denies; evaluation short-circuited", p.ID))
			e.finishDecision(ctx, key, ectx, operation, resourceType, resourceID, result)
			return result.clone()
		}
	}

	for _, p := range result.MatchedPolicies {
		if p.Denies() {
			result.Allowed = false
		}
	}
	result.DecisionLog = append(result.DecisionLog,
		fmt.Sprintf("decision: allowed=%t with %d matched policies", result.Allowed, len(result.MatchedPolicies)))

	e.finishDecision(ctx, key, ectx, operation, resourceType, resourceID, result)
	return result.clone()
}

// Enforce evaluates the applicable policies, executes every resulting
// action through the ActionExecutor, and fails with ErrPolicyDenied when
// the decision is not allowed. This is the only place a policy decision
// becomes an error.
func (e *Engine) Enforce(ctx context.Context, ectx EvaluationContext, operation, resourceType, resourceID string) (*EvaluationResult, error) {
	result := e.Evaluate(ctx, ectx, operation, resourceType, resourceID)

	if e.executor != nil {
		for _, action := range result.Actions {
			if err := e.executor.ExecuteAction(ctx, action, ectx, operation, resourceType, resourceID, result); err != nil {
				return result, fmt.Errorf("policy: execute action %s: %w", action.Type, err)
			}
		}
	}

	if !result.Allowed {
		return result, fmt.Errorf("%w: operation %s on %s/%s", ErrPolicyDenied, operation, resourceType, resourceID)
	}

	return result, nil
}

// InitializeDefaultPolicies installs an organization's baseline policy set
// from its security configuration: classification and residency denials and
// an MFA requirement. A bootstrapping helper, not part of the hot path.
func (e *Engine) InitializeDefaultPolicies(ctx context.Context, orgID string) error {
	if e.configs == nil {
		return fmt.Errorf("policy: no org config provider configured")
	}

	cfg, err := e.configs.GetOrgConfig(ctx, orgID)
	if err != nil {
		return fmt.Errorf("policy: load org config for %s: %w", orgID, err)
	}

	var defaults []SecurityPolicy

	if cfg.RestrictedClassification != "" {
		defaults = append(defaults, SecurityPolicy{
			ID:       orgID + ":default:classification",
			Name:     "Deny restricted data classification",
			Priority: 10,
			Enabled:  true,
			Conditions: []Condition{
				{Type: ConditionDataClassification, Operator: OperatorEquals, Value: cfg.RestrictedClassification},
			},
			Actions: []Action{
				{Type: ActionDeny},
				{Type: ActionLogEvent, Parameters: map[string]any{"reason": "restricted_classification"}},
			},
		})
	}

	if cfg.RequiredResidency != "" {
		defaults = append(defaults, SecurityPolicy{
			ID:       orgID + ":default:residency",
			Name:     "Deny out-of-residency data access",
			Priority: 20,
			Enabled:  true,
			Conditions: []Condition{
				{Type: ConditionDataResidency, Operator: OperatorNotEquals, Value: cfg.RequiredResidency},
			},
			Actions: []Action{
				{Type: ActionDeny},
				{Type: ActionNotifyAdmin, Parameters: map[string]any{"reason": "residency_violation"}},
			},
		})
	}

	if cfg.RequireMFA {
		defaults = append(defaults, SecurityPolicy{
			ID:       orgID + ":default:mfa",
			Name:     "Require MFA for unverified sessions",
			Priority: 30,
			Enabled:  true,
			Conditions: []Condition{
				{Type: ConditionMFAStatus, Operator: OperatorEquals, Value: "false"},
			},
			Actions: []Action{
				{Type: ActionRequireMFA},
				{Type: ActionLogEvent, Parameters: map[string]any{"reason": "mfa_not_verified"}},
			},
		})
	}

	if err := e.AddPolicies(defaults...); err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "initialized default policies",
		slog.String("org_id", orgID),
		slog.Int("policies", len(defaults)),
	)
	return nil
}

// finishDecision caches the result, records metrics, and emits the
// decision audit event. Event delivery is fire-and-forget.
func (e *Engine) finishDecision(ctx context.Context, key string, ectx EvaluationContext, operation, resourceType, resourceID string, result *EvaluationResult) {
	e.cache.Set(key, result.clone())
	e.metrics.decision(result.Allowed)

	decision := securitylog.DecisionAllowed
	severity := securitylog.SeverityInfo
	if !result.Allowed {
		decision = securitylog.DecisionDenied
		severity = securitylog.SeverityWarning
	}

	e.events.LogSecurityEvent(ctx, securitylog.Event{
		OrgID:      ectx.OrgID,
		UserID:     ectx.UserID,
		Type:       "policy_decision",
		Operation:  operation,
		Resource:   resourceType,
		ResourceID: resourceID,
		Decision:   decision,
		Severity:   severity,
		Message:    "policy evaluation completed",
		Metadata: map[string]any{
			"matched_policies": len(result.MatchedPolicies),
		},
	})
}

// decisionCacheKey derives a deterministic composite key from the
// evaluation context and the requested operation. JSON encoding sorts map
// keys, so equal contexts always produce equal keys.
func decisionCacheKey(ectx EvaluationContext, operation, resourceType, resourceID string) string {
	payload := struct {
		Context      EvaluationContext `json:"context"`
		Operation    string            `json:"operation"`
		ResourceType string            `json:"resource_type"`
		ResourceID   string            `json:"resource_id"`
	}{ectx, operation, resourceType, resourceID}

	encoded, err := json.Marshal(payload)
	if err != nil {
		// The payload is plain data; this cannot realistically fail.
		// Fall back to an uncacheable composite.
		return fmt.Sprintf("%s|%s|%s|%s|%s", ectx.OrgID, ectx.UserID, operation, resourceType, resourceID)
	}
	return string(encoded)
}
