package spoke

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedAction = errors.New("unsupported action type")
	ErrAuthentication    = errors.New("authentication error")
	ErrNotFound          = errors.New("not found")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrRateLimited       = errors.New("rate limited")

	errUnknown = errors.New("unknown error")
)

const (
	KindAuthentication   = "authentication"
	KindNotFound         = "not_found"
	KindInvalidParameter = "invalid_parameter"
	KindRateLimited      = "rate_limited"
	KindUnsupported      = "unsupported_action"
	KindOther            = "other"
)

// ExternalError is a rejection from an integration's remote API.
type ExternalError struct {
	Service    string
	StatusCode int
	Message    string
	RetryAfter int // seconds, rate limits only
}

func (e *ExternalError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error (status %d)", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s API error: %s", e.Service, e.Message)
}

// Is maps HTTP status codes onto the sentinel kinds.
func (e *ExternalError) Is(target error) bool {
	switch target {
	case ErrAuthentication:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}

// Kind classifies err for caller-visible messaging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrUnsupportedAction):
		return KindUnsupported
	default:
		return KindOther
	}
}

func StatusCode(err error) int {
	var ee *ExternalError
	if errors.As(err, &ee) {
		return ee.StatusCode
	}
	return 0
}

// Invalid wraps a parameter problem so Kind reports invalid_parameter.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// WithKind returns an error that reads as msg and classifies as kind.
func WithKind(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}
