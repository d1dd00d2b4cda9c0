package errs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/uwscope/scope-web-sub000/internal/model"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDuplicateKey     = errors.New("duplicate key")
	ErrRevisionConflict = errors.New("revision conflict")
	ErrSchemaViolation  = errors.New("schema violation")
	ErrIntegrity        = errors.New("integrity assertion failed")
)

// InvalidArgument wraps ErrInvalidArgument with a formatted reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the identity that was looked up.
func NotFound(id model.Identity) error {
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// RevisionConflictError is returned when a write was based on a stale
// revision or lost a race on the unique revision constraint.
// Current is the winning document, nil if the identity has no revisions.
type RevisionConflictError struct {
	Identity model.Identity
	BasisRev *int
	Current  *model.Document
}

func (e *RevisionConflictError) Error() string {
	basis := "none"
	if e.BasisRev != nil {
		basis = fmt.Sprintf("%d", *e.BasisRev)
	}
	current := 0
	if e.Current != nil {
		current = e.Current.Rev
	}
	return fmt.Sprintf("revision conflict on %s: basis rev %s, current rev %d", e.Identity, basis, current)
}

func (e *RevisionConflictError) Unwrap() error { return ErrRevisionConflict }

// CurrentRev returns the revision of the winning document, 0 when there is none.
func (e *RevisionConflictError) CurrentRev() int {
	if e.Current == nil {
		return 0
	}
	return e.Current.Rev
}

type SchemaViolationError struct {
	SchemaID   string
	Violations []string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("document does not satisfy schema %q: %s", e.SchemaID, strings.Join(e.Violations, "; "))
}

func (e *SchemaViolationError) Unwrap() error { return ErrSchemaViolation }

// IntegrityError reports a broken internal invariant. It is never retried.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity assertion failed: " + e.Reason
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }
