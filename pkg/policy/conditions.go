package policy

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// extractAttribute returns the context attribute a condition inspects.
// A condition with an explicit Attribute reads that custom attribute from
// the context instead of the default extraction for its type.
func extractAttribute(cond Condition, ectx EvaluationContext, now time.Time) (string, bool) {
	if cond.Attribute != "" {
		v, ok := ectx.Attributes[cond.Attribute]
		return v, ok
	}

	switch cond.Type {
	case ConditionDataClassification:
		return ectx.DataClassification, true
	case ConditionDataResidency:
		return ectx.DataResidency, true
	case ConditionUserRole:
		return ectx.RoleKey, true
	case ConditionIPAddress:
		return ectx.IPAddress, true
	case ConditionTimeBased:
		// Hour of day in UTC, comparable with greater_than/less_than.
		return strconv.Itoa(now.UTC().Hour()), true
	case ConditionDeviceCompliance:
		return strconv.FormatBool(ectx.DeviceCompliant), true
	case ConditionMFAStatus:
		return strconv.FormatBool(ectx.MFAVerified), true
	}

	return "", false
}

// matchCondition reports whether a single condition holds for the context.
// Malformed values never panic; they simply fail to match.
func matchCondition(cond Condition, ectx EvaluationContext, now time.Time) bool {
	attribute, ok := extractAttribute(cond, ectx, now)
	if !ok {
		return false
	}

	switch cond.Operator {
	case OperatorEquals:
		return attribute == cond.Value
	case OperatorNotEquals:
		return attribute != cond.Value
	case OperatorGreaterThan:
		a, aErr := strconv.ParseFloat(attribute, 64)
		b, bErr := strconv.ParseFloat(cond.Value, 64)
		return aErr == nil && bErr == nil && a > b
	case OperatorLessThan:
		a, aErr := strconv.ParseFloat(attribute, 64)
		b, bErr := strconv.ParseFloat(cond.Value, 64)
		return aErr == nil && bErr == nil && a < b
	case OperatorContains:
		return strings.Contains(attribute, cond.Value)
	case OperatorMatchesRegex:
		matched, err := regexp.MatchString(cond.Value, attribute)
		return err == nil && matched
	}

	return false
}

// matchPolicy reports whether all of the policy's conditions hold.
// Policies with no conditions match unconditionally.
func matchPolicy(p SecurityPolicy, ectx EvaluationContext, now time.Time) bool {
	for _, cond := range p.Conditions {
		if !matchCondition(cond, ectx, now) {
			return false
		}
	}
	return true
}
