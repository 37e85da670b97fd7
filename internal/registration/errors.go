package registration

import (
	"errors"
	"fmt"
	"strings"

	"ms-registration/internal/models"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyRegistered  = errors.New("participant already registered for this event")
	ErrCapacityExceeded   = errors.New("event full")
	ErrValidationFailed   = errors.New("submission validation failed")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrForbidden          = errors.New("registration belongs to another participant")
	ErrNotFound           = errors.New("registration not found")
	ErrStorageUnavailable = errors.New("registration storage unavailable")

	// ErrLockContended means the capacity lock could not be taken within the wait limit.
	ErrLockContended = errors.New("capacity lock contended")
	// ErrConcurrentUpdate means the record kept changing under a status update.
	ErrConcurrentUpdate = errors.New("registration changed concurrently")
)

// AlreadyRegisteredError points at the participant's active registration.
type AlreadyRegisteredError struct {
	RegistrationID string
}

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%s (registration %s)", ErrAlreadyRegistered, e.RegistrationID)
}

func (e *AlreadyRegisteredError) Is(target error) bool { return target == ErrAlreadyRegistered }

// ValidationError lists the required fields a submission left empty, in form order.
type ValidationError struct {
	MissingFields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: missing %s", ErrValidationFailed, strings.Join(e.MissingFields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

type TransitionError struct {
	From, To models.RegistrationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s → %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// StorageError wraps an infrastructure failure. It is never retried here.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorageUnavailable, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

// isBusinessError reports whether err is one of the typed outcomes callers render directly.
func isBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput, ErrAlreadyRegistered, ErrCapacityExceeded, ErrValidationFailed,
		ErrInvalidTransition, ErrForbidden, ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// WrapStorage tags an infrastructure failure as StorageError. Typed outcomes and
// errors that are already tagged pass through unchanged.
func WrapStorage(op string, err error) error {
	if err == nil || isBusinessError(err) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
