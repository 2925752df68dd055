package sites

import (
	"errors"
	"fmt"
)

// ErrSkip means there is nothing to do. It is the expected steady state.
var ErrSkip = errors.New("nothing to do")

// ErrNotAuthenticated means the user is not logged into the site.
var ErrNotAuthenticated = fmt.Errorf("not authenticated: %w", ErrSkip)

// ParseError reports markup or token formats that no longer match.
type ParseError struct {
	Adapter string
	Version int
	What    string
	Err     error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s (parser v%d): cannot parse %s", e.Adapter, e.Version, e.What)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// NetworkError reports a failed or rejected request.
type NetworkError struct {
	Adapter string
	Op      string
	Status  int
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Adapter, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s: unexpected status %d", e.Adapter, e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsSkip reports whether err means no action is needed.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}
