package shared

import (
	"context"
	"errors"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERROR REPORTING
// ══════════════════════════════════════════════════════════════════════════════

// Severity decides whether a failure aborts the user-facing action.
type Severity string

const (
	// SeverityLow failures are logged and reported; the action still succeeds.
	SeverityLow Severity = "low"

	// SeverityMedium failures abort the action and are surfaced to the caller.
	SeverityMedium Severity = "medium"

	// SeverityHigh failures abort the action and indicate lost guarantees,
	// such as an unlock that could not be recorded.
	SeverityHigh Severity = "high"
)

// ErrorCategory groups reports for observability.
type ErrorCategory string

const (
	CategoryValidation   ErrorCategory = "validation"
	CategoryPersistence  ErrorCategory = "persistence"
	CategoryPrecondition ErrorCategory = "precondition"
	CategoryNotFound     ErrorCategory = "not_found"
	CategoryInternal     ErrorCategory = "internal"
)

// CategoryOf classifies an error by its kind.
func CategoryOf(err error) ErrorCategory {
	switch {
	case IsValidation(err):
		return CategoryValidation
	case IsPersistence(err), IsConflict(err):
		return CategoryPersistence
	case IsPrecondition(err):
		return CategoryPrecondition
	case IsNotFound(err):
		return CategoryNotFound
	default:
		return CategoryInternal
	}
}

// ErrorReport is one failure routed to the reporting collaborator.
type ErrorReport struct {
	Err       error
	Category  ErrorCategory
	Severity  Severity
	Operation string
	UserID    UserID
	Context   map[string]any
}

// ErrorReporter receives structured failure reports. Implementations must
// not block the caller for long.
type ErrorReporter interface {
	Report(ctx context.Context, report ErrorReport)
}

// NewErrorReport builds a report with the category derived from err.
func NewErrorReport(op string, userID UserID, severity Severity, err error) ErrorReport {
	return ErrorReport{
		Err:       err,
		Category:  CategoryOf(err),
		Severity:  severity,
		Operation: op,
		UserID:    userID,
		Context:   map[string]any{},
	}
}

// With adds a context entry.
func (r ErrorReport) With(key string, value any) ErrorReport {
	if r.Context == nil {
		r.Context = map[string]any{}
	}
	r.Context[key] = value
	return r
}

// NopReporter drops every report.
type NopReporter struct{}

// Report implements ErrorReporter.
func (NopReporter) Report(context.Context, ErrorReport) {}

// IsContextError reports whether err came from a cancelled or expired context.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
