package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackends means the pool has no backend configured at all.
	ErrNoBackends = errors.New("llm: no backends configured")
	// ErrEmptyResponse is a permanent failure: the backend answered with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrPoolExhausted is logged when every backend failed; callers receive fallback text instead.
	ErrPoolExhausted = errors.New("llm: backend pool exhausted")
)

// TransientError marks a failure worth retrying (rate limiting, temporary unavailability).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "llm: transient failure"
	}
	return fmt.Sprintf("llm: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func isTransientStatus(code int) bool {
	switch code {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
