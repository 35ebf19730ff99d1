package policy

import "errors"

// Domain errors for policy operations.
var (
	// ErrPolicyDenied is returned by Enforce when a matched policy denies
	// the operation.
	ErrPolicyDenied = errors.New("policy.denied")

	// ErrInvalidPolicy is returned when a policy fails validation.
	ErrInvalidPolicy = errors.New("policy.invalid_policy")

	// ErrInvalidCondition is returned when a condition value is unusable,
	// such as a regex that does not compile.
	ErrInvalidCondition = errors.New("policy.invalid_condition")

	// ErrUnknownConditionType is returned for condition kinds the engine
	// does not recognize.
	ErrUnknownConditionType = errors.New("policy.unknown_condition_type")

	// ErrUnknownOperator is returned for comparison operators the engine
	// does not recognize.
	ErrUnknownOperator = errors.New("policy.unknown_operator")

	// ErrUnknownActionType is returned for action kinds the engine does
	// not recognize.
	ErrUnknownActionType = errors.New("policy.unknown_action_type")
)
