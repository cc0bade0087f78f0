package bgg

import (
	"errors"
	"fmt"
)

var (
	// the upstream site rejected the session credential. This cannot be
	// self-healed: the run must abort and the operator must re-acquire
	// the cookie blob externally.
	ErrAuthExpired = errors.New("session credential rejected by upstream")

	// the upstream site throttled the request (HTTP 429). Retryable
	// under backoff.
	ErrRateLimited = errors.New("throttled by upstream")

	// a network or server-side failure that a later attempt may not hit.
	ErrTransient = errors.New("transient network failure")
)

// ParseError reports that a detail page could not be turned into a payload.
// It is scoped to a single identifier and never aborts the batch.
type ParseError struct {
	ID     int64
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse game %d: %s: %s", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse game %d: %s", e.ID, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
