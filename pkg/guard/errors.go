package guard

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Domain errors for guard operations.
var (
	// ErrRecordNotFound is returned when a record required by an
	// authorized operation does not exist.
	ErrRecordNotFound = errors.New("guard.record_not_found")

	// ErrCrossTenant is returned when a fetched record belongs to a
	// different organization than the caller.
	ErrCrossTenant = errors.New("guard.cross_tenant_access")

	// ErrDenied is returned when the ABAC evaluator rejects a request.
	ErrDenied = errors.New("guard.denied")
)

// fallbackMessage is used when nothing usable can be extracted from a failure.
const fallbackMessage = "Authorization failed."

// maxMessageLen caps derived descriptions so an arbitrary collaborator
// failure cannot flood logs or API responses.
const maxMessageLen = 600

// Error is the single error type all guard and evaluator failures are
// normalized into. It keeps the original cause for inspection with
// errors.Is/As while presenting one readable message with enough request
// context to log and display.
type Error struct {
	Kind       error // sentinel classifying the failure
	Message    string
	Operation  string
	Resource   string
	ResourceID string
	Cause      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Operation != "" || e.Resource != "" {
		b.WriteString(" (operation=")
		b.WriteString(e.Operation)
		b.WriteString(" resource=")
		b.WriteString(e.Resource)
		if e.ResourceID != "" {
			b.WriteString("/")
			b.WriteString(e.ResourceID)
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the classifying sentinel and the preserved cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

// normalizeError converts any evaluator failure into a *Error tagged with
// the request being attempted. Already-normalized errors pass through with
// request context filled in.
func normalizeError(err error, input AccessInput) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		if ge.Operation == "" {
			ge.Operation = input.Operation
			ge.Resource = input.Resource
			ge.ResourceID = input.ResourceID
		}
		return ge
	}

	kind := ErrDenied
	switch {
	case errors.Is(err, ErrRecordNotFound):
		kind = ErrRecordNotFound
	case errors.Is(err, ErrCrossTenant):
		kind = ErrCrossTenant
	}

	return &Error{
		Kind:       kind,
		Message:    deriveMessage(err),
		Operation:  input.Operation,
		Resource:   input.Resource,
		ResourceID: input.ResourceID,
		Cause:      err,
	}
}

// deriveMessage picks the most specific human-readable description of a
// failure. Generic wrapper messages are replaced with the cause's own
// message when one is available.
func deriveMessage(err error) string {
	msg := strings.TrimSpace(err.Error())

	if isGenericMessage(msg) {
		if cause := errors.Unwrap(err); cause != nil {
			if causeMsg := strings.TrimSpace(cause.Error()); causeMsg != "" && !isGenericMessage(causeMsg) {
				msg = causeMsg
			}
		}
	}

	if msg == "" {
		return fallbackMessage
	}
	return truncate(msg, maxMessageLen)
}

// isGenericMessage detects wrapper messages that carry no information of
// their own, such as "Unknown error" or formatting artifacts left behind by
// stringifying a structured value.
func isGenericMessage(msg string) bool {
	if msg == "" {
		return true
	}
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "unknown error") ||
		strings.Contains(msg, "%!") ||
		strings.Contains(msg, "(MISSING)")
}

// describeValue renders an arbitrary recovered value as a message:
// errors and strings directly, anything else through a cycle-safe JSON
// encoding, with a generic fallback when nothing usable comes out.
func describeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return fallbackMessage
	case error:
		return truncate(val.Error(), maxMessageLen)
	case string:
		if val == "" {
			return fallbackMessage
		}
		return truncate(val, maxMessageLen)
	}

	// goccy/go-json detects reference cycles and errors instead of
	// recursing forever.
	encoded, err := json.Marshal(v)
	if err != nil || len(encoded) == 0 || string(encoded) == "{}" || string(encoded) == "null" {
		return fmt.Sprintf("%s (%T)", fallbackMessage, v)
	}
	return truncate(string(encoded), maxMessageLen)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
