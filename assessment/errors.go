package assessment

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected means assessor and assessed share no coaching, team or
	// organisation edge.
	ErrNotConnected = errors.New("users are not connected")
	// ErrRelationshipNotAllowed means the assessment does not carry a
	// relationship type matching the assessor/assessed role combination.
	ErrRelationshipNotAllowed = errors.New("relationship can't be accessed by the current assessor")
)

// PermissionDeniedError means the assessor has no access grant for the
// assessment's top category. Surfaced as a validation failure, never retried.
type PermissionDeniedError struct {
	AssessorID    uint
	AssessedID    uint
	TopCategoryID uint
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("assessor %d is not allowed to assess %d in top category %d",
		e.AssessorID, e.AssessedID, e.TopCategoryID)
}

// CooldownActiveError means the assessed already received an assessment
// within the cooldown window.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("assessment cooldown active, %s remaining", e.Remaining.Round(time.Second))
}

// IntegrityConflictError rejects writes that would violate a data invariant,
// such as an assessment flagged both private and public everywhere.
type IntegrityConflictError struct {
	Reason string
}

func (e *IntegrityConflictError) Error() string {
	return e.Reason
}

// ValueFormatError means the submitted value does not match the assessment
// format's validation regex.
type ValueFormatError struct {
	Value       string
	Unit        string
	Description string
}

func (e *ValueFormatError) Error() string {
	return fmt.Sprintf("wrong value format for %q: %s", e.Value, e.Description)
}
