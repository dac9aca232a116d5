package forum

import (
	"errors"
	"fmt"
	"time"
)

// ErrUsernameTaken reports the one conflict callers are expected to
// handle: the desired username already exists on the forum.
var ErrUsernameTaken = errors.New("username is not unique")

// TransientError is a retry-eligible failure: a network error, a 5xx
// response, or an explicit rate limit. RetryAfter carries the server's
// wait hint when one was returned, zero otherwise.
type TransientError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Body       string
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError is a failure retrying cannot fix: validation, not-found
// or a conflict other than the handled username collision.
type PermanentError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}
