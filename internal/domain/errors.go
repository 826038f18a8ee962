package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. Every error returned by the ledger wraps exactly one of these.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrConflict          = errors.New("venue already booked")
	ErrCapacity          = errors.New("insufficient capacity")
)

// ErrLedgerInvariant means a counter update would break 0 <= available <= total.
// It is never expected and aborts the transaction.
var ErrLedgerInvariant = errors.New("ledger invariant violated")

// kindError is a specific error that belongs to a kind
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Domain errors
var (
	// Not found
	ErrEventNotFound    = newError(ErrNotFound, "event not found")
	ErrVenueNotFound    = newError(ErrNotFound, "venue not found")
	ErrResourceNotFound = newError(ErrNotFound, "resource not found")

	// Validation
	ErrInvalidTitle        = newError(ErrValidation, "title is required")
	ErrInvalidDate         = newError(ErrValidation, "date must be a calendar date (YYYY-MM-DD)")
	ErrInvalidDuration     = newError(ErrValidation, "duration cannot be negative")
	ErrInvalidParticipants = newError(ErrValidation, "participants cannot be negative")
	ErrTooManyParticipants = newError(ErrValidation, "participants exceed venue capacity")
	ErrInvalidVenueID      = newError(ErrValidation, "venue id is required")
	ErrInvalidResourceID   = newError(ErrValidation, "resource id is required")
	ErrInvalidQuantity     = newError(ErrValidation, "quantity must be greater than zero")
	ErrDuplicateClaim      = newError(ErrValidation, "resource claimed more than once")
	ErrReasonRequired      = newError(ErrValidation, "reason is required when rejecting")
	ErrUnknownAction       = newError(ErrValidation, "unknown action")
	ErrUnknownStatus       = newError(ErrValidation, "unknown status")
	ErrInvalidName         = newError(ErrValidation, "name is required")
	ErrInvalidCapacity     = newError(ErrValidation, "capacity must be greater than zero")
	ErrInvalidTotal        = newError(ErrValidation, "total must be greater than zero")
	ErrInvalidAuditLimit   = newError(ErrValidation, "limit must be between 0 and 500")

	// Forbidden
	ErrNotCoordinator     = newError(ErrForbidden, "only coordinators may submit events")
	ErrDepartmentMismatch = newError(ErrForbidden, "venue belongs to another department")
	ErrNotApprover        = newError(ErrForbidden, "actor is not the approver for this stage")
	ErrNotOwner           = newError(ErrForbidden, "only the owning coordinator may perform this action")
	ErrAuditAccessDenied  = newError(ErrForbidden, "audit log is restricted to governance roles")
	ErrAdminOnly          = newError(ErrForbidden, "only administrators may perform this action")
	ErrUnknownRole        = newError(ErrForbidden, "unknown role")
)

// IllegalTransitionError reports an action that is not valid from a status,
// or a target status that no single action reaches.
type IllegalTransitionError struct {
	From   Status
	Action Action
	To     Status
}

func (e *IllegalTransitionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("cannot move an event from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot %s an event in status %s", e.Action, e.From)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// ConflictError reports a (venue, date) already held by a non-terminal event
type ConflictError struct {
	VenueID string
	Date    time.Time
	HeldBy  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("venue %s is already booked on %s", e.VenueID, FormatDate(e.Date))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// CapacityError reports a claim that exceeds what a resource has left
type CapacityError struct {
	ResourceID   string
	ResourceName string
	Requested    int
	Available    int
}

func (e *CapacityError) Error() string {
	name := e.ResourceName
	if name == "" {
		name = e.ResourceID
	}
	return fmt.Sprintf("insufficient capacity for %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbiddenError checks if the error is an authorization error
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsIllegalTransitionError checks if the error is an illegal transition
func IsIllegalTransitionError(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsConflictError checks if the error is a venue/date conflict
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsCapacityError checks if the error is a capacity shortfall
func IsCapacityError(err error) bool {
	return errors.Is(err, ErrCapacity)
}
