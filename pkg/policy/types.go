package policy

import (
	"fmt"
	"regexp"
	"slices"
)

// ConditionType identifies the context attribute a condition inspects.
type ConditionType string

const (
	ConditionDataClassification ConditionType = "data_classification"
	ConditionDataResidency      ConditionType = "data_residency"
	ConditionUserRole           ConditionType = "user_role"
	ConditionIPAddress          ConditionType = "ip_address"
	ConditionTimeBased          ConditionType = "time_based"
	ConditionDeviceCompliance   ConditionType = "device_compliance"
	ConditionMFAStatus          ConditionType = "mfa_status"
)

// Valid reports whether the condition type is a known kind.
func (t ConditionType) Valid() bool {
	switch t {
	case ConditionDataClassification, ConditionDataResidency, ConditionUserRole,
		ConditionIPAddress, ConditionTimeBased, ConditionDeviceCompliance,
		ConditionMFAStatus:
		return true
	}
	return false
}

// Operator compares an extracted context attribute against a condition value.
type Operator string

const (
	OperatorEquals       Operator = "equals"
	OperatorNotEquals    Operator = "not_equals"
	OperatorGreaterThan  Operator = "greater_than"
	OperatorLessThan     Operator = "less_than"
	OperatorContains     Operator = "contains"
	OperatorMatchesRegex Operator = "matches_regex"
)

// Valid reports whether the operator is a known kind.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan,
		OperatorLessThan, OperatorContains, OperatorMatchesRegex:
		return true
	}
	return false
}

// ActionType identifies the effect a matched policy triggers.
type ActionType string

const (
	ActionAllow          ActionType = "allow"
	ActionDeny           ActionType = "deny"
	ActionRequireMFA     ActionType = "require_mfa"
	ActionLogEvent       ActionType = "log_event"
	ActionNotifyAdmin    ActionType = "notify_admin"
	ActionQuarantineData ActionType = "quarantine_data"
	ActionRestrictAccess ActionType = "restrict_access"
)

// Valid reports whether the action type is a known kind.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAllow, ActionDeny, ActionRequireMFA, ActionLogEvent,
		ActionNotifyAdmin, ActionQuarantineData, ActionRestrictAccess:
		return true
	}
	return false
}

// Condition is one matching rule inside a policy. Attribute optionally
// overrides the default attribute extraction for the condition type with a
// named custom attribute from the evaluation context.
type Condition struct {
	Type      ConditionType `yaml:"type" json:"type"`
	Operator  Operator      `yaml:"operator" json:"operator"`
	Value     string        `yaml:"value" json:"value"`
	Attribute string        `yaml:"attribute,omitempty" json:"attribute,omitempty"`
}

// Validate checks the condition for unknown kinds and unusable values.
func (c Condition) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: condition type %q", ErrUnknownConditionType, c.Type)
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("%w: operator %q", ErrUnknownOperator, c.Operator)
	}
	if c.Operator == OperatorMatchesRegex {
		if _, err := regexp.Compile(c.Value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCondition, err)
		}
	}
	return nil
}

// Action is one effect triggered by a matched policy.
type Action struct {
	Type       ActionType     `yaml:"type" json:"type"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Validate checks the action for unknown kinds.
func (a Action) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("%w: action type %q", ErrUnknownActionType, a.Type)
	}
	return nil
}

// SecurityPolicy is a named, prioritized rule. Lower priority numbers take
// precedence. Disabled policies are kept but never evaluated.
type SecurityPolicy struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
	Actions    []Action    `yaml:"actions" json:"actions"`
	Priority   int         `yaml:"priority" json:"priority"`
	Enabled    bool        `yaml:"enabled" json:"enabled"`
}

// Validate checks the policy and everything it contains.
func (p SecurityPolicy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing policy id", ErrInvalidPolicy)
	}
	for _, c := range p.Conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", p.ID, err)
		}
	}
	for _, a := range p.Actions {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", p.ID, err)
		}
	}
	return nil
}

// Denies reports whether the policy's action set contains an explicit deny.
func (p SecurityPolicy) Denies() bool {
	return slices.ContainsFunc(p.Actions, func(a Action) bool {
		return a.Type == ActionDeny
	})
}

func (p SecurityPolicy) clone() SecurityPolicy {
	out := p
	out.Conditions = slices.Clone(p.Conditions)
	out.Actions = make([]Action, len(p.Actions))
	for i, a := range p.Actions {
		params := make(map[string]any, len(a.Parameters))
		for k, v := range a.Parameters {
			params[k] = v
		}
		if len(params) == 0 {
			params = nil
		}
		out.Actions[i] = Action{Type: a.Type, Parameters: params}
	}
	return out
}

// EvaluationContext carries the request attributes conditions match against.
// It is created once per authorized operation and treated as immutable.
type EvaluationContext struct {
	OrgID              string            `json:"org_id"`
	UserID             string            `json:"user_id"`
	RoleKey            string            `json:"role_key"`
	DataClassification string            `json:"data_classification"`
	DataResidency      string            `json:"data_residency"`
	IPAddress          string            `json:"ip_address"`
	DeviceCompliant    bool              `json:"device_compliant"`
	MFAVerified        bool              `json:"mfa_verified"`
	Attributes         map[string]string `json:"attributes,omitempty"`
}

// EvaluationResult is the transient outcome of one policy evaluation.
// It is never persisted; the engine caches it only under a key derived from
// the evaluation context and the requested operation.
type EvaluationResult struct {
	Allowed         bool             `json:"allowed"`
	Actions         []Action         `json:"actions"`
	MatchedPolicies []SecurityPolicy `json:"matched_policies"`
	DecisionLog     []string         `json:"decision_log"`
}

func (r *EvaluationResult) clone() *EvaluationResult {
	out := &EvaluationResult{
		Allowed:         r.Allowed,
		Actions:         slices.Clone(r.Actions),
		MatchedPolicies: make([]SecurityPolicy, len(r.MatchedPolicies)),
		DecisionLog:     slices.Clone(r.DecisionLog),
	}
	for i, p := range r.MatchedPolicies {
		out.MatchedPolicies[i] = p.clone()
	}
	return out
}
