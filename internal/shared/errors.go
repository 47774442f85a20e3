package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness conflict at the storage layer.
	ErrConflict = errors.New("conflict")
	// ErrValidation indicates a request that failed input validation.
	ErrValidation = errors.New("validation failed")
)

// SafeError marks domain errors whose message may be shown to operators.
type SafeError interface {
	error
	UserMessage() string
}

// UserSafeMessage converts an error into a message safe for the scanner
// or browser client. Unknown errors collapse into a generic message so
// storage details never leak to the floor terminal.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var safe SafeError
	if errors.As(err, &safe) {
		return safe.UserMessage()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrConflict):
		return "The record already exists."
	case errors.Is(err, ErrValidation):
		return "The submitted data is not valid."
	default:
		return "Something went wrong. Please try again or contact support."
	}
}
