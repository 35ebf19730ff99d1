// Package policy implements an attribute-based security policy engine for
// multi-tenant authorization decisions.
//
// A policy is a named, prioritized set of conditions and actions. The engine
// keeps its policies sorted by ascending priority (lower number = higher
// precedence) and evaluates enabled policies against a request's evaluation
// context. All conditions within a policy must match for the policy to
// apply. A matched policy carrying a deny action short-circuits evaluation
// immediately: lower-priority policies can never override a higher-priority
// deny. When nothing denies, the decision is allowed and all matched
// policies contribute their actions.
//
// Decisions are memoized in a bounded TTL cache keyed by the evaluation
// context and the requested operation. Removing a policy clears the whole
// decision cache, since a removed policy can change any future decision.
//
// Evaluate never converts a decision into an error; Enforce does. Enforce
// additionally executes every action in the result through the configured
// ActionExecutor (MFA challenges, admin notification, quarantine) before
// failing denied operations.
//
// Basic usage:
//
//	engine := policy.NewEngine(
//	    policy.WithEventLogger(events),
//	    policy.WithActionExecutor(executor),
//	)
//
//	engine.AddPolicy(policy.SecurityPolicy{
//	    ID:       "deny-secret",
//	    Name:     "Deny access to secret data",
//	    Priority: 1,
//	    Enabled:  true,
//	    Conditions: []policy.Condition{
//	        {Type: policy.ConditionDataClassification, Operator: policy.OperatorEquals, Value: "SECRET"},
//	    },
//	    Actions: []policy.Action{{Type: policy.ActionDeny}},
//	})
//
//	result := engine.Evaluate(ctx, ectx, "read", "leave_request", "lr-42")
//	if !result.Allowed {
//	    // Denied by a matched policy
//	}
package policy
