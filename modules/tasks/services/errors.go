package services

import (
	"fmt"

	"github.com/iota-uz/taskflow/pkg/serrors"
)

// Engine error taxonomy. Route layers map these onto 404/403/409/400/500
// outcomes; the engine itself only decides the kind.
var (
	ErrNotFound = serrors.NewError(
		"TASKS_NOT_FOUND", "resource not found", "Tasks.Errors.NotFound")
	ErrForbidden = serrors.NewError(
		"TASKS_FORBIDDEN", "forbidden", "Tasks.Errors.Forbidden")
	ErrMembersForbidden = serrors.NewError(
		"TASKS_MEMBERS_FORBIDDEN", "Not authorized to manage area members", "Tasks.Errors.MembersForbidden")
	ErrConflict = serrors.NewError(
		"TASKS_CONFLICT", "conflict", "Tasks.Errors.Conflict")
	ErrValidation = serrors.NewError(
		"TASKS_VALIDATION", "validation failed", "Tasks.Errors.Validation")
	ErrLookupFailed = serrors.NewError(
		"TASKS_LOOKUP_FAILED", "store lookup failed", "Tasks.Errors.LookupFailed")
	ErrInternal = serrors.NewError(
		"TASKS_INTERNAL", "internal error", "Tasks.Errors.Internal")
)

func lookupFailed(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrLookupFailed, op, err)
}
