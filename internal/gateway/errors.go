package gateway

import (
	"errors"
	"net/http"
	"time"
)

var (
	ErrRateLimited    = errors.New("rate limited")
	ErrMalformedInput = errors.New("malformed input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	// ErrUpstream marks a failure of the key store or another dependency on the
	// critical path. It is reported to clients as an internal error.
	ErrUpstream = errors.New("upstream failure")
	ErrInternal = errors.New("internal error")
)

const internalErrorText = "Internal server error"

// Rejection is a client-facing refusal. Message is safe to return verbatim.
type Rejection struct {
	Kind      error
	Message   string
	ResetTime time.Time
}

func (r *Rejection) Error() string { return r.Message }

func (r *Rejection) Unwrap() error { return r.Kind }

func reject(kind error, message string) *Rejection {
	return &Rejection{Kind: kind, Message: message}
}

// StatusCode maps a gate error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRateLimited), errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message to show the client. Anything that is not a
// Rejection is reported generically.
func PublicMessage(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Message
	}
	return internalErrorText
}
