package core

import (
	"errors"
	"fmt"
)

// Outcome kinds reported by the service layer. Callers match with errors.Is
// and translate to their own transport; none of these should escape as an
// unstructured fault.
var (
	// ErrNotFound means the requested entity id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrTagInUse blocks tag deletion while transactions still reference it.
	ErrTagInUse = errors.New("tag still referenced by transactions")

	// ErrInvalidQuery means the caller supplied an under-specified query.
	ErrInvalidQuery = errors.New("under-specified query")

	// ErrDuplicateInvite means a pending invite for the same ledger and
	// receiver already exists.
	ErrDuplicateInvite = errors.New("pending invite already exists")

	// ErrCreateFailed, ErrUpdateFailed and ErrDeleteFailed mean the atomic
	// unit could not complete; the state is exactly as before the call.
	ErrCreateFailed = errors.New("create failed")
	ErrUpdateFailed = errors.New("update failed")
	ErrDeleteFailed = errors.New("delete failed")
)

// OpError tags a failure with its outcome kind while keeping the underlying
// cause available for diagnostics. errors.Is matches both the kind and the
// cause chain.
type OpError struct {
	Op   string // operation that failed, e.g. "create transaction"
	Kind error  // one of the sentinels above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func failed(op string, kind, cause error) error {
	return &OpError{Op: op, Kind: kind, Err: cause}
}

// CreateFailed wraps cause as an ErrCreateFailed outcome.
func CreateFailed(op string, cause error) error { return failed(op, ErrCreateFailed, cause) }

// UpdateFailed wraps cause as an ErrUpdateFailed outcome.
func UpdateFailed(op string, cause error) error { return failed(op, ErrUpdateFailed, cause) }

// DeleteFailed wraps cause as an ErrDeleteFailed outcome.
func DeleteFailed(op string, cause error) error { return failed(op, ErrDeleteFailed, cause) }
