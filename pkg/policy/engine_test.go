package policy_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsuite/authz/pkg/policy"
	"github.com/crewsuite/authz/pkg/securitylog"
	"github.com/crewsuite/authz/pkg/ttlcache"
)

// recordingEvents counts emitted security events.
type recordingEvents struct {
	mu     sync.Mutex
	events []securitylog.Event
}

func (r *recordingEvents) LogSecurityEvent(ctx context.Context, event securitylog.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEvents) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// recordingExecutor captures executed actions.
type recordingExecutor struct {
	actions []policy.Action
	err     error
}

func (r *recordingExecutor) ExecuteAction(ctx context.Context, action policy.Action, ectx policy.EvaluationContext, operation, resourceType, resourceID string, result *policy.EvaluationResult) error {
	r.actions = append(r.actions, action)
	return r.err
}

func denyPolicy(id string, priority int, conditions ...policy.Condition) policy.SecurityPolicy {
	return policy.SecurityPolicy{
		ID:         id,
		Name:       id,
		Priority:   priority,
		Enabled:    true,
		Conditions: conditions,
		Actions:    []policy.Action{{Type: policy.ActionDeny}},
	}
}

func allowPolicy(id string, priority int, conditions ...policy.Condition) policy.SecurityPolicy {
	return policy.SecurityPolicy{
		ID:         id,
		Name:       id,
		Priority:   priority,
		Enabled:    true,
		Conditions: conditions,
		Actions:    []policy.Action{{Type: policy.ActionAllow}},
	}
}

func TestEngine_EvaluateNoPolicies(t *testing.T) {
	engine := policy.NewEngine()

	result := engine.Evaluate(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "leave_request", "")

	assert.True(t, result.Allowed)
	assert.Empty(t, result.Actions)
	assert.Empty(t, result.MatchedPolicies)
	assert.NotEmpty(t, result.DecisionLog)
}

func TestEngine_DisabledPoliciesAreSkipped(t *testing.T) {
	engine := policy.NewEngine()

	p := denyPolicy("disabled-deny", 1)
	p.Enabled = false
	require.NoError(t, engine.AddPolicy(p))

	result := engine.Evaluate(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "")

	assert.True(t, result.Allowed)
	assert.Empty(t, result.MatchedPolicies)
}

func TestEngine_HighPriorityDenyShortCircuits(t *testing.T) {
	engine := policy.NewEngine()

	require.NoError(t, engine.AddPolicy(denyPolicy("deny-secret", 1,
		policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "SECRET"},
	)))
	require.NoError(t, engine.AddPolicy(allowPolicy("allow-all", 2)))

	result := engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "SECRET",
	}, "read", "doc", "d1")

	assert.False(t, result.Allowed)
	require.Len(t, result.MatchedPolicies, 1)
	assert.Equal(t, "deny-secret", result.MatchedPolicies[0].ID)

	// The lower-priority policy is never consulted after the short-circuit.
	joined := strings.Join(result.DecisionLog, "\n")
	assert.Contains(t, joined, "short-circuited")
	assert.NotContains(t, joined, "allow-all")
}

func TestEngine_AllowWhenNoMatchedPolicyDenies(t *testing.T) {
	engine := policy.NewEngine()

	require.NoError(t, engine.AddPolicy(allowPolicy("allow-internal", 1,
		policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "INTERNAL"},
	)))
	require.NoError(t, engine.AddPolicy(policy.SecurityPolicy{
		ID:       "log-internal",
		Name:     "log access to internal data",
		Priority: 5,
		Enabled:  true,
		Conditions: []policy.Condition{
			{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "INTERNAL"},
		},
		Actions: []policy.Action{{Type: policy.ActionLogEvent}},
	}))

	result := engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "INTERNAL",
	}, "read", "doc", "")

	assert.True(t, result.Allowed)
	assert.Len(t, result.MatchedPolicies, 2)
	assert.Len(t, result.Actions, 2)
}

func TestEngine_ConditionsAreConjunctive(t *testing.T) {
	engine := policy.NewEngine()

	require.NoError(t, engine.AddPolicy(denyPolicy("deny-secret-eu", 1,
		policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "SECRET"},
		policy.Condition{Type: policy.ConditionDataResidency, Operator: policy.OperatorEquals, Value: "eu"},
	)))

	// Only one of the two conditions holds.
	result := engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "SECRET",
		DataResidency:      "us",
	}, "read", "doc", "")

	assert.True(t, result.Allowed)
	assert.Empty(t, result.MatchedPolicies)
}

func TestEngine_PoliciesEvaluatedInPriorityOrder(t *testing.T) {
	engine := policy.NewEngine()

	// Insert out of order; evaluation order must be ascending priority.
	require.NoError(t, engine.AddPolicy(allowPolicy("third", 30)))
	require.NoError(t, engine.AddPolicy(allowPolicy("first", 10)))
	require.NoError(t, engine.AddPolicy(allowPolicy("second", 20)))

	policies := engine.GetPolicies()
	require.Len(t, policies, 3)
	assert.Equal(t, "first", policies[0].ID)
	assert.Equal(t, "second", policies[1].ID)
	assert.Equal(t, "third", policies[2].ID)

	result := engine.Evaluate(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "")
	require.Len(t, result.MatchedPolicies, 3)
	assert.Equal(t, "first", result.MatchedPolicies[0].ID)
	assert.Equal(t, "third", result.MatchedPolicies[2].ID)
}

func TestEngine_AddPolicyUpsertsByID(t *testing.T) {
	engine := policy.NewEngine()

	require.NoError(t, engine.AddPolicy(allowPolicy("p1", 10)))
	require.NoError(t, engine.AddPolicy(denyPolicy("p1", 5)))

	policies := engine.GetPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, 5, policies[0].Priority)
	assert.True(t, policies[0].Denies())
}

func TestEngine_AddPolicyRejectsInvalid(t *testing.T) {
	engine := policy.NewEngine()

	err := engine.AddPolicy(policy.SecurityPolicy{Name: "no id"})
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)

	err = engine.AddPolicy(policy.SecurityPolicy{
		ID: "bad-cond",
		Conditions: []policy.Condition{
			{Type: "unknown", Operator: policy.OperatorEquals, Value: "x"},
		},
	})
	assert.ErrorIs(t, err, policy.ErrUnknownConditionType)
}

func TestEngine_DecisionCaching(t *testing.T) {
	events := &recordingEvents{}
	engine := policy.NewEngine(policy.WithEventLogger(events))

	require.NoError(t, engine.AddPolicy(allowPolicy("p1", 1)))

	ectx := policy.EvaluationContext{OrgID: "org1", UserID: "u1"}

	first := engine.Evaluate(context.Background(), ectx, "read", "doc", "d1")
	second := engine.Evaluate(context.Background(), ectx, "read", "doc", "d1")

	assert.Equal(t, first, second)
	// The decision event fires only on computation, not on cache hits.
	assert.Equal(t, 1, events.count())

	// A different context misses the cache.
	engine.Evaluate(context.Background(), policy.EvaluationContext{OrgID: "org1", UserID: "u2"}, "read", "doc", "d1")
	assert.Equal(t, 2, events.count())
}

func TestEngine_CacheTTLExpiry(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	events := &recordingEvents{}

	engine := policy.NewEngine(
		policy.WithEventLogger(events),
		policy.WithCacheOptions(ttlcache.WithTTL(time.Minute), ttlcache.WithClock(clock)),
	)
	require.NoError(t, engine.AddPolicy(allowPolicy("p1", 1)))

	ectx := policy.EvaluationContext{OrgID: "org1"}
	engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	assert.Equal(t, 1, events.count())

	now = now.Add(2 * time.Minute)
	engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	assert.Equal(t, 2, events.count())
}

func TestEngine_RemovePolicyClearsCache(t *testing.T) {
	engine := policy.NewEngine()

	require.NoError(t, engine.AddPolicy(denyPolicy("deny-all", 1)))

	ectx := policy.EvaluationContext{OrgID: "org1"}
	result := engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	assert.False(t, result.Allowed)

	engine.RemovePolicy("deny-all")

	result = engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	assert.True(t, result.Allowed, "cached denial must not survive policy removal")
	assert.Empty(t, engine.GetPolicies())
}

func TestEngine_ClearCache(t *testing.T) {
	events := &recordingEvents{}
	engine := policy.NewEngine(policy.WithEventLogger(events))
	require.NoError(t, engine.AddPolicy(allowPolicy("p1", 1)))

	ectx := policy.EvaluationContext{OrgID: "org1"}
	engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	engine.ClearCache()
	engine.Evaluate(context.Background(), ectx, "read", "doc", "")

	assert.Equal(t, 2, events.count())
}

func TestEngine_ResultIsIsolatedFromCache(t *testing.T) {
	engine := policy.NewEngine()
	require.NoError(t, engine.AddPolicy(allowPolicy("p1", 1)))

	ectx := policy.EvaluationContext{OrgID: "org1"}
	first := engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	first.Allowed = false
	first.Actions = append(first.Actions, policy.Action{Type: policy.ActionDeny})

	second := engine.Evaluate(context.Background(), ectx, "read", "doc", "")
	assert.True(t, second.Allowed)
	assert.Len(t, second.Actions, 1)
}

func TestEngine_OperatorMatching(t *testing.T) {
	ectx := policy.EvaluationContext{
		OrgID:              "org1",
		RoleKey:            "hr_manager",
		DataClassification: "CONFIDENTIAL",
		IPAddress:          "10.1.2.3",
		MFAVerified:        true,
		Attributes:         map[string]string{"department_size": "42"},
	}

	tests := []struct {
		name      string
		condition policy.Condition
		wantMatch bool
	}{
		{
			name:      "equals matches",
			condition: policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "CONFIDENTIAL"},
			wantMatch: true,
		},
		{
			name:      "equals is case-sensitive",
			condition: policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "confidential"},
			wantMatch: false,
		},
		{
			name:      "not_equals",
			condition: policy.Condition{Type: policy.ConditionDataResidency, Operator: policy.OperatorNotEquals, Value: "eu"},
			wantMatch: true,
		},
		{
			name:      "contains on role",
			condition: policy.Condition{Type: policy.ConditionUserRole, Operator: policy.OperatorContains, Value: "manager"},
			wantMatch: true,
		},
		{
			name:      "regex on ip address",
			condition: policy.Condition{Type: policy.ConditionIPAddress, Operator: policy.OperatorMatchesRegex, Value: `^10\.`},
			wantMatch: true,
		},
		{
			name:      "regex no match",
			condition: policy.Condition{Type: policy.ConditionIPAddress, Operator: policy.OperatorMatchesRegex, Value: `^192\.168\.`},
			wantMatch: false,
		},
		{
			name:      "mfa status as boolean string",
			condition: policy.Condition{Type: policy.ConditionMFAStatus, Operator: policy.OperatorEquals, Value: "true"},
			wantMatch: true,
		},
		{
			name:      "device compliance defaults false",
			condition: policy.Condition{Type: policy.ConditionDeviceCompliance, Operator: policy.OperatorEquals, Value: "true"},
			wantMatch: false,
		},
		{
			name:      "greater_than with custom attribute",
			condition: policy.Condition{Type: policy.ConditionUserRole, Operator: policy.OperatorGreaterThan, Value: "10", Attribute: "department_size"},
			wantMatch: true,
		},
		{
			name:      "less_than with custom attribute",
			condition: policy.Condition{Type: policy.ConditionUserRole, Operator: policy.OperatorLessThan, Value: "10", Attribute: "department_size"},
			wantMatch: false,
		},
		{
			name:      "greater_than on non-numeric attribute never matches",
			condition: policy.Condition{Type: policy.ConditionUserRole, Operator: policy.OperatorGreaterThan, Value: "10"},
			wantMatch: false,
		},
		{
			name:      "missing custom attribute never matches",
			condition: policy.Condition{Type: policy.ConditionUserRole, Operator: policy.OperatorEquals, Value: "x", Attribute: "missing"},
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := policy.NewEngine()
			require.NoError(t, engine.AddPolicy(denyPolicy("probe", 1, tt.condition)))

			result := engine.Evaluate(context.Background(), ectx, "read", "doc", "")
			assert.Equal(t, tt.wantMatch, !result.Allowed)
		})
	}
}

func TestEngine_TimeBasedCondition(t *testing.T) {
	at := func(hour int) func() time.Time {
		return func() time.Time {
			return time.Date(2025, 6, 1, hour, 30, 0, 0, time.UTC)
		}
	}

	// Deny outside business hours: before 09:00 or from 18:00.
	outsideHours := []policy.SecurityPolicy{
		denyPolicy("before-hours", 1,
			policy.Condition{Type: policy.ConditionTimeBased, Operator: policy.OperatorLessThan, Value: "9"},
		),
		denyPolicy("after-hours", 2,
			policy.Condition{Type: policy.ConditionTimeBased, Operator: policy.OperatorGreaterThan, Value: "17"},
		),
	}

	tests := []struct {
		hour        int
		wantAllowed bool
	}{
		{hour: 3, wantAllowed: false},
		{hour: 9, wantAllowed: true},
		{hour: 12, wantAllowed: true},
		{hour: 17, wantAllowed: true},
		{hour: 22, wantAllowed: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("hour=%d", tt.hour), func(t *testing.T) {
			engine := policy.NewEngine(policy.WithClock(at(tt.hour)))
			require.NoError(t, engine.AddPolicies(outsideHours...))

			result := engine.Evaluate(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "")
			assert.Equal(t, tt.wantAllowed, result.Allowed)
		})
	}
}

func TestEngine_EnforceExecutesActions(t *testing.T) {
	executor := &recordingExecutor{}
	engine := policy.NewEngine(policy.WithActionExecutor(executor))

	require.NoError(t, engine.AddPolicy(policy.SecurityPolicy{
		ID:       "mfa-and-log",
		Name:     "require mfa and log",
		Priority: 1,
		Enabled:  true,
		Actions: []policy.Action{
			{Type: policy.ActionRequireMFA},
			{Type: policy.ActionLogEvent, Parameters: map[string]any{"reason": "sensitive"}},
		},
	}))

	result, err := engine.Enforce(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "d1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	require.Len(t, executor.actions, 2)
	assert.Equal(t, policy.ActionRequireMFA, executor.actions[0].Type)
	assert.Equal(t, policy.ActionLogEvent, executor.actions[1].Type)
}

func TestEngine_EnforceDenied(t *testing.T) {
	executor := &recordingExecutor{}
	engine := policy.NewEngine(policy.WithActionExecutor(executor))

	require.NoError(t, engine.AddPolicy(denyPolicy("deny-all", 1)))

	result, err := engine.Enforce(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "delete", "employee", "e9")
	require.ErrorIs(t, err, policy.ErrPolicyDenied)
	assert.False(t, result.Allowed)

	// The deny action is still executed before the failure surfaces.
	require.Len(t, executor.actions, 1)
	assert.Equal(t, policy.ActionDeny, executor.actions[0].Type)

	// The error names the operation and resource without leaking rule internals.
	assert.Contains(t, err.Error(), "delete")
	assert.Contains(t, err.Error(), "employee/e9")
}

func TestEngine_EnforceExecutorErrorPropagates(t *testing.T) {
	wantErr := errors.New("notification service down")
	engine := policy.NewEngine(policy.WithActionExecutor(&recordingExecutor{err: wantErr}))

	require.NoError(t, engine.AddPolicy(policy.SecurityPolicy{
		ID:       "notify",
		Priority: 1,
		Enabled:  true,
		Actions:  []policy.Action{{Type: policy.ActionNotifyAdmin}},
	}))

	_, err := engine.Enforce(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "")
	assert.ErrorIs(t, err, wantErr)
}

func TestEngine_EnforceWithoutExecutor(t *testing.T) {
	engine := policy.NewEngine()
	require.NoError(t, engine.AddPolicy(denyPolicy("deny-all", 1)))

	_, err := engine.Enforce(context.Background(), policy.EvaluationContext{OrgID: "org1"}, "read", "doc", "")
	assert.ErrorIs(t, err, policy.ErrPolicyDenied)
}

// staticConfigProvider returns the same config for every org.
type staticConfigProvider struct {
	cfg policy.OrgSecurityConfig
	err error
}

func (p *staticConfigProvider) GetOrgConfig(ctx context.Context, orgID string) (policy.OrgSecurityConfig, error) {
	return p.cfg, p.err
}

func TestEngine_InitializeDefaultPolicies(t *testing.T) {
	engine := policy.NewEngine(policy.WithOrgConfigProvider(&staticConfigProvider{
		cfg: policy.OrgSecurityConfig{
			RestrictedClassification: "SECRET",
			RequiredResidency:        "eu",
			RequireMFA:               true,
		},
	}))

	require.NoError(t, engine.InitializeDefaultPolicies(context.Background(), "org1"))
	assert.Len(t, engine.GetPolicies(), 3)

	// SECRET data is denied by the baseline classification policy.
	result := engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "SECRET",
		DataResidency:      "eu",
		MFAVerified:        true,
	}, "read", "doc", "")
	assert.False(t, result.Allowed)

	// Out-of-residency access is denied.
	result = engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "INTERNAL",
		DataResidency:      "us",
		MFAVerified:        true,
	}, "read", "doc", "")
	assert.False(t, result.Allowed)

	// Unverified MFA is allowed but triggers a challenge action.
	result = engine.Evaluate(context.Background(), policy.EvaluationContext{
		OrgID:              "org1",
		DataClassification: "INTERNAL",
		DataResidency:      "eu",
		MFAVerified:        false,
	}, "read", "doc", "")
	assert.True(t, result.Allowed)
	require.NotEmpty(t, result.Actions)
	assert.Equal(t, policy.ActionRequireMFA, result.Actions[0].Type)
}

func TestEngine_InitializeDefaultPoliciesConfigError(t *testing.T) {
	wantErr := errors.New("config store unavailable")
	engine := policy.NewEngine(policy.WithOrgConfigProvider(&staticConfigProvider{err: wantErr}))

	err := engine.InitializeDefaultPolicies(context.Background(), "org1")
	assert.ErrorIs(t, err, wantErr)
}

func TestEngine_InitializeDefaultPoliciesWithoutProvider(t *testing.T) {
	engine := policy.NewEngine()
	assert.Error(t, engine.InitializeDefaultPolicies(context.Background(), "org1"))
}

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	engine := policy.NewEngine(policy.WithMetrics(reg))

	require.NoError(t, engine.AddPolicy(denyPolicy("deny-secret", 1,
		policy.Condition{Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "SECRET"},
	)))

	allowedCtx := policy.EvaluationContext{OrgID: "org1", DataClassification: "PUBLIC"}
	deniedCtx := policy.EvaluationContext{OrgID: "org1", DataClassification: "SECRET"}

	engine.Evaluate(context.Background(), allowedCtx, "read", "doc", "")
	engine.Evaluate(context.Background(), allowedCtx, "read", "doc", "") // cache hit
	engine.Evaluate(context.Background(), deniedCtx, "read", "doc", "")

	families, err := reg.Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, f := range families {
		for _, m := range f.GetMetric() {
			name := f.GetName()
			for _, label := range m.GetLabel() {
				name += ":" + label.GetValue()
			}
			values[name] = m.GetCounter().GetValue()
		}
	}

	assert.Equal(t, float64(1), values["authz_policy_decisions_total:allowed"])
	assert.Equal(t, float64(1), values["authz_policy_decisions_total:denied"])
	assert.Equal(t, float64(1), values["authz_policy_decision_cache_hits_total"])
	assert.Equal(t, float64(2), values["authz_policy_decision_cache_misses_total"])

	count, err := testutil.GatherAndCount(reg, "authz_policy_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
