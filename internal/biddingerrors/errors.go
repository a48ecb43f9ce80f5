package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrNotFound  = errors.New("not found")
	ErrNoBids    = errors.New("no bids found for auction")
	ErrDuplicate = errors.New("duplicate entry")
)

// business logic errors
var (
	ErrValidation      = errors.New("validation error")
	ErrInvalidState    = errors.New("invalid state")
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrPermission      = errors.New("permission denied")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrConflict        = errors.New("conflict")
)

// ErrDelivery marks a failed push delivery. It never leaves the notification dispatcher.
var ErrDelivery = errors.New("delivery failed")

// Error pairs an error kind with the message shown to the caller.
type Error struct {
	Kind error
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Kind }

// New returns an *Error of the given kind
func New(kind error, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Validation(msg string) error   { return New(ErrValidation, msg) }
func InvalidState(msg string) error { return New(ErrInvalidState, msg) }
func Quota(msg string) error        { return New(ErrQuotaExceeded, msg) }
func NotFound(msg string) error     { return New(ErrNotFound, msg) }
func Permission(msg string) error   { return New(ErrPermission, msg) }
func Conflict(msg string) error     { return New(ErrConflict, msg) }

func Unauthenticated(msg string) error { return New(ErrUnauthenticated, msg) }

// Message returns the caller-facing message of the first *Error in err's chain
func Message(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg, true
	}
	return "", false
}
