package dto

import "errors"

var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrAlreadyUpvoted     = errors.New("cannot upvote same question multiple times")
	ErrNotUpvoted         = errors.New("not upvoted yet")
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrorCode returns the stable machine-readable code of a sentinel error
// wrapped somewhere in err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrAlreadyUpvoted):
		return "ALREADY_UPVOTED"
	case errors.Is(err, ErrNotUpvoted):
		return "NOT_UPVOTED"
	case errors.Is(err, ErrInvalidInput):
		return "BAD_USER_INPUT"
	default:
		return "STORAGE_UNAVAILABLE"
	}
}
