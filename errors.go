package quarry

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a backend can report into one of the
// four kinds callers are expected to handle.
type ErrorKind int

const (
	// KindConnection means a physical connection could not be established
	// or re-established.
	KindConnection ErrorKind = iota + 1
	// KindOperational covers malformed statements, unsupported features,
	// runtime data errors and unknown relation names.
	KindOperational
	// KindIntegrity is a constraint violation reported by the database.
	KindIntegrity
	// KindTransaction means commit or rollback was called on an already
	// finalized transaction scope.
	KindTransaction
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection error"
	case KindOperational:
		return "operational error"
	case KindIntegrity:
		return "integrity error"
	case KindTransaction:
		return "transaction management error"
	}
	return "unknown error"
}

// Error is the taxonomy error all driver failures are normalized into.
// The original driver failure, when any, is retained as Cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the original driver failure.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConnection)
// checks the kind regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// Kind sentinels for errors.Is checks.
var (
	ErrConnection  = &Error{Kind: KindConnection}
	ErrOperational = &Error{Kind: KindOperational}
	ErrIntegrity   = &Error{Kind: KindIntegrity}
	ErrTransaction = &Error{Kind: KindTransaction}
)

// NewError builds a taxonomy error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a taxonomy error retaining cause as context.
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsConnectionError reports whether err is a connection taxonomy error.
func IsConnectionError(err error) bool { return errors.Is(err, ErrConnection) }

// IsOperationalError reports whether err is an operational taxonomy error.
func IsOperationalError(err error) bool { return errors.Is(err, ErrOperational) }

// IsIntegrityError reports whether err is an integrity taxonomy error.
func IsIntegrityError(err error) bool { return errors.Is(err, ErrIntegrity) }

// IsTransactionError reports whether err is a transaction management error.
func IsTransactionError(err error) bool { return errors.Is(err, ErrTransaction) }
