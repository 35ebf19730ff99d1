package guard

import (
	"fmt"
	"reflect"
)

// AssertTenantRecord validates that a record fetched from storage belongs
// to the caller's organization before it is exposed to a handler. It fails
// with ErrRecordNotFound for absent records and ErrCrossTenant when the
// record's organization differs from the access context's. Every record a
// repository returns must pass through this check.
func AssertTenantRecord[T TenantRecord](record T, ac *Context) (T, error) {
	var zero T

	if isNilRecord(record) {
		return zero, &Error{
			Kind:    ErrRecordNotFound,
			Message: "record not found",
		}
	}

	if orgID := record.TenantOrgID(); orgID != ac.OrgID {
		return zero, &Error{
			Kind:    ErrCrossTenant,
			Message: fmt.Sprintf("cross-tenant access detected: record belongs to %s", orgID),
		}
	}

	return record, nil
}

// isNilRecord reports whether a generic record value is absent. A typed
// nil pointer satisfies the TenantRecord interface but still carries no
// record, so plain comparison with nil is not enough.
func isNilRecord(record any) bool {
	if record == nil {
		return true
	}
	v := reflect.ValueOf(record)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}
